package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrInvalidOwner     = errors.New("invalid_owner")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidCurrency  = errors.New("invalid_currency")
	ErrInvalidSourceRef = errors.New("invalid_source_ref")
	ErrInvalidEntrySet  = errors.New("invalid_entry_set")
	ErrEntryNotFound    = errors.New("not_found")

	// ErrLockConflict is returned when a competing payout request already
	// holds one of the entries. Retryable with a refreshed entry set.
	ErrLockConflict = errors.New("concurrency_conflict")

	// ErrInvalidTransition indicates a forward-only transition attempted from
	// the wrong prior status. Not retryable.
	ErrInvalidTransition = errors.New("state_error")
)

// CreateEntryRequest settles one billable event into the ledger.
type CreateEntryRequest struct {
	OwnerID   snowflake.ID
	Amount    int64
	Currency  string
	SourceRef string
}

// Service owns ledger entries and their locking primitives.
//
// The Tx-scoped methods accept the caller's transaction handle so that
// orchestrators compose locking with their own writes atomically; passing a
// nil tx runs against the service's own connection.
type Service interface {
	// CreateEntry settles one billable event. Idempotent on SourceRef: a
	// duplicate ref resolves to the already-settled entry.
	CreateEntry(ctx context.Context, tx *gorm.DB, req CreateEntryRequest) (*LedgerEntry, error)

	// LockForPayout atomically claims the given pending entries for a payout
	// request. All-or-nothing: if any entry is missing it returns
	// ErrEntryNotFound, and if any entry is not currently lockable it returns
	// ErrLockConflict. On success it returns the locked total amount.
	LockForPayout(ctx context.Context, tx *gorm.DB, ownerID snowflake.ID, entryIDs []snowflake.ID, payoutRequestID snowflake.ID, now time.Time) (int64, error)

	// Unlock reverts every entry of the request to pending. Used on rejection
	// and cancellation.
	Unlock(ctx context.Context, tx *gorm.DB, payoutRequestID snowflake.ID, now time.Time) error

	// MarkCleared moves locked entries into the clearing period.
	MarkCleared(ctx context.Context, tx *gorm.DB, payoutRequestID snowflake.ID, clearingEndsAt, now time.Time) error

	// MarkPaid finalizes cleared entries. Idempotent: entries already paid are
	// a no-op, anything else out of order is ErrInvalidTransition.
	MarkPaid(ctx context.Context, tx *gorm.DB, payoutRequestID snowflake.ID, now time.Time) error

	GetByID(ctx context.Context, id snowflake.ID) (*LedgerEntry, error)
	ListByPayoutRequest(ctx context.Context, payoutRequestID snowflake.ID) ([]LedgerEntry, error)
	ListPendingByOwner(ctx context.Context, ownerID snowflake.ID) ([]LedgerEntry, error)
}

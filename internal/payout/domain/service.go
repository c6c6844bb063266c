package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"

	frauddomain "github.com/clipverse/payrail/internal/fraud/domain"
	ledgerdomain "github.com/clipverse/payrail/internal/ledger/domain"
	"github.com/clipverse/payrail/pkg/db/pagination"
)

var (
	ErrInvalidOwner    = errors.New("invalid_owner")
	ErrInvalidEntrySet = errors.New("invalid_entry_set")
	ErrNotFound        = errors.New("not_found")

	// ErrTerminalState is returned for any mutation of a request that already
	// reached paid, rejected or cancelled.
	ErrTerminalState = errors.New("state_error")
)

// RequestPayoutResult is the outcome of the settlement request plus the
// fraud screen that ran on it.
type RequestPayoutResult struct {
	Request *PayoutRequest
	Flags   []frauddomain.FraudFlag
}

// Detail is the aggregate read model.
type Detail struct {
	Request *PayoutRequest
	Entries []ledgerdomain.LedgerEntry
	Flags   []frauddomain.FraudFlag
}

// ListRequest filters the payout request listing.
type ListRequest struct {
	OwnerID    snowflake.ID
	Status     PayoutStatus
	Pagination pagination.Pagination
}

// ListResponse is one page of payout requests.
type ListResponse struct {
	Requests []PayoutRequest
	PageInfo pagination.PageInfo
}

// Service orchestrates the payout pipeline.
type Service interface {
	// RequestPayout claims the owner's entries and runs the fraud screen.
	// With no flags the request is approved and enters clearing immediately;
	// any flag parks it in pending_evidence with an evidence deadline.
	RequestPayout(ctx context.Context, ownerID snowflake.ID, entryIDs []snowflake.ID) (*RequestPayoutResult, error)

	// Cancel aborts a non-terminal request and returns its entries to
	// pending.
	Cancel(ctx context.Context, id snowflake.ID) (*PayoutRequest, error)

	Get(ctx context.Context, id snowflake.ID) (*Detail, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
}

package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidParticipants = errors.New("invalid_participants")
	ErrInvalidUnits        = errors.New("invalid_units")
	ErrInvalidPrice        = errors.New("invalid_price")
	ErrSessionNotFound     = errors.New("not_found")

	// ErrInvalidTransition is returned when the lifecycle graph has no edge
	// from the session's current status to the requested one.
	ErrInvalidTransition = errors.New("state_error")

	// ErrTransitionConflict means a concurrent transition moved the session
	// first. Retryable after re-reading the session.
	ErrTransitionConflict = errors.New("concurrency_conflict")
)

// CreateSessionRequest books a new unit of work.
type CreateSessionRequest struct {
	BuyerID      snowflake.ID
	SellerID     snowflake.ID
	CommunityID  *snowflake.ID
	Units        int64
	PricePerUnit int64
	BuyerFunded  bool
}

// Service runs the session lifecycle and feeds completed sessions into the
// ledger.
type Service interface {
	Create(ctx context.Context, req CreateSessionRequest) (*Session, error)

	// Transition moves the session along the lifecycle graph. Entering
	// completed settles one ledger entry for the seller, consuming the
	// buyer's reservation when the session is buyer funded. A session that
	// re-enters completed out of a dispute never settles twice.
	Transition(ctx context.Context, id snowflake.ID, to SessionStatus) (*Session, error)

	Get(ctx context.Context, id snowflake.ID) (*Session, error)
	ListBySeller(ctx context.Context, sellerID snowflake.ID, status SessionStatus) ([]Session, error)
}

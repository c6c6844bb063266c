package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidRequester = errors.New("invalid_requester")
	ErrInvalidAmount    = errors.New("invalid_amount")
	ErrInvalidTarget    = errors.New("invalid_target")
	ErrInvalidDecider   = errors.New("invalid_decider")
	ErrNotFound         = errors.New("not_found")
	ErrInvalidState     = errors.New("state_error")
)

// CreateRefundRequest opens a refund case against a purchase or a session.
// Exactly one of PurchaseID or SessionID must be set.
type CreateRefundRequest struct {
	RequesterID     snowflake.ID
	PurchaseID      *snowflake.ID
	SessionID       *snowflake.ID
	AmountRequested int64
}

// Decision is the reviewer's verdict.
type Decision struct {
	Approve        bool
	AmountApproved int64
	DecidedBy      string
}

type Service interface {
	Create(ctx context.Context, req CreateRefundRequest) (*RefundRequest, error)

	// Decide approves or denies a pending request. Approving a refund for an
	// unsettled buyer-funded session also abandons that session, releasing
	// the buyer's wallet reservation.
	Decide(ctx context.Context, id snowflake.ID, d Decision) (*RefundRequest, error)

	// MarkProcessed records that the approved amount left the platform.
	MarkProcessed(ctx context.Context, id snowflake.ID) (*RefundRequest, error)

	Get(ctx context.Context, id snowflake.ID) (*RefundRequest, error)
	ListByRequester(ctx context.Context, requesterID snowflake.ID) ([]RefundRequest, error)
}

package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrInvalidOwner  = errors.New("invalid_owner")
	ErrFlagNotFound  = errors.New("not_found")
	ErrFlagsResolved = errors.New("state_error")
)

// PermanentFraudThreshold is the confirmed-flag count at which an owner is
// marked permanently fraudulent.
const PermanentFraudThreshold = 3

// Service evaluates payout candidates and maintains flag and owner state.
// Evaluate is pure; the Insert/Resolve/Increment methods accept the caller's
// transaction so flag state moves atomically with payout state.
type Service interface {
	Evaluate(c Candidate) []FlagDraft
	InsertFlags(ctx context.Context, tx *gorm.DB, payoutRequestID snowflake.ID, drafts []FlagDraft) ([]FraudFlag, error)
	ResolveFlags(ctx context.Context, tx *gorm.DB, payoutRequestID snowflake.ID, status FlagStatus) (int64, error)
	ListByPayoutRequest(ctx context.Context, payoutRequestID snowflake.ID) ([]FraudFlag, error)
	Stats(ctx context.Context, tx *gorm.DB, ownerID snowflake.ID) (*OwnerFraudStats, error)
	IncrementConfirmed(ctx context.Context, tx *gorm.DB, ownerID snowflake.ID) (*OwnerFraudStats, error)
}

package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidAmount = errors.New("invalid_amount")
	ErrInvalidBps    = errors.New("invalid_bps")
	ErrInvalidScope  = errors.New("invalid_scope")
	ErrInvalidActor  = errors.New("invalid_actor")
)

// SetRateRequest upserts the effective rate for a scope and records the
// change in the audit history.
type SetRateRequest struct {
	ScopeType ScopeType
	ScopeID   snowflake.ID
	FeeType   FeeType
	BpsValue  int64
	ChangedBy string
}

// EffectiveRates is the bps pair used to split one transaction.
type EffectiveRates struct {
	PlatformFeeBps  int64
	CommunityFeeBps int64
}

type ListChangesRequest struct {
	ScopeType ScopeType
	ScopeID   snowflake.ID
	FeeType   FeeType
	Limit     int
}

type Service interface {
	// Resolve finds the effective bps pair for a seller: seller-specific
	// override, else community override, else platform default.
	Resolve(ctx context.Context, sellerID, communityID snowflake.ID) (EffectiveRates, error)

	// ComputeSplit resolves rates and splits totalAmount.
	ComputeSplit(ctx context.Context, totalAmount int64, sellerID, communityID snowflake.ID) (SplitResult, error)

	SetRate(ctx context.Context, req SetRateRequest) (*CommissionRate, error)
	ListChanges(ctx context.Context, req ListChangesRequest) ([]CommissionChange, error)
}

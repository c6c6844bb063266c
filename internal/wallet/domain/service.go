package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrInvalidHolder = errors.New("invalid_holder")
	ErrInvalidSeller = errors.New("invalid_seller")
	ErrInvalidUnits  = errors.New("invalid_units")
	ErrInvalidPrice  = errors.New("invalid_price")
	ErrNotFound      = errors.New("not_found")

	// ErrInsufficientBalance is returned when a reservation or consumption
	// exceeds the available units.
	ErrInsufficientBalance = errors.New("insufficient_balance")

	// ErrReservationMismatch indicates a release or consume without a
	// matching reservation. Caller bug, not retryable.
	ErrReservationMismatch = errors.New("state_error")
)

// Service manages unit balances. Reserve, Release and Consume are single
// conditional updates so concurrent attempts on the same (holder, seller)
// pair cannot over-consume.
type Service interface {
	// Purchase credits units bought at a price and folds the cost into the
	// running weighted average purchase price.
	Purchase(ctx context.Context, holderID, sellerID snowflake.ID, units, pricePerUnit int64) (*WalletBalance, error)

	Reserve(ctx context.Context, holderID, sellerID snowflake.ID, units int64) error

	// Release returns reserved units to the available balance. Accepts the
	// caller's transaction handle so abandonment flows release atomically
	// with their state change.
	Release(ctx context.Context, tx *gorm.DB, holderID, sellerID snowflake.ID, units int64) error

	// Consume burns previously reserved units, decrementing both reserved and
	// balance and recomputing the weighted average over the remaining paid
	// total. Accepts the caller's transaction handle for settlement flows.
	Consume(ctx context.Context, tx *gorm.DB, holderID, sellerID snowflake.ID, units int64) error

	Get(ctx context.Context, holderID, sellerID snowflake.ID) (*WalletBalance, error)
	ListByHolder(ctx context.Context, holderID snowflake.ID) ([]WalletBalance, error)
}

package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	walletdomain "github.com/clipverse/payrail/internal/wallet/domain"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&walletdomain.WalletBalance{}))
	return db
}

func newTestService(t *testing.T, db *gorm.DB) walletdomain.Service {
	t.Helper()
	return NewService(Params{DB: db, Log: zaptest.NewLogger(t)})
}

func ids(t *testing.T) (snowflake.ID, snowflake.ID) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node.Generate(), node.Generate()
}

func TestPurchaseFoldsWeightedAverage(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	holder, seller := ids(t)

	balance, err := svc.Purchase(ctx, holder, seller, 10, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance.BalanceUnits)
	assert.Equal(t, int64(100), balance.AvgPurchasePricePerUnit)
	assert.Equal(t, int64(1000), balance.TotalPaid)

	// 10 units at 100 plus 10 units at 200 averages to 150.
	balance, err = svc.Purchase(ctx, holder, seller, 10, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(20), balance.BalanceUnits)
	assert.Equal(t, int64(150), balance.AvgPurchasePricePerUnit)
	assert.Equal(t, int64(3000), balance.TotalPaid)
}

func TestReserveRequiresAvailableUnits(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	holder, seller := ids(t)

	_, err := svc.Purchase(ctx, holder, seller, 10, 100)
	require.NoError(t, err)

	require.NoError(t, svc.Reserve(ctx, holder, seller, 6))

	// Only 4 units remain unreserved.
	err = svc.Reserve(ctx, holder, seller, 5)
	assert.ErrorIs(t, err, walletdomain.ErrInsufficientBalance)

	require.NoError(t, svc.Reserve(ctx, holder, seller, 4))

	balance, err := svc.Get(ctx, holder, seller)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance.ReservedUnits)
}

func TestReserveUnknownWallet(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(t, db)
	holder, seller := ids(t)

	err := svc.Reserve(context.Background(), holder, seller, 1)
	assert.ErrorIs(t, err, walletdomain.ErrNotFound)
}

func TestReleaseRequiresMatchingReservation(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	holder, seller := ids(t)

	_, err := svc.Purchase(ctx, holder, seller, 10, 100)
	require.NoError(t, err)
	require.NoError(t, svc.Reserve(ctx, holder, seller, 4))

	err = svc.Release(ctx, nil, holder, seller, 5)
	assert.ErrorIs(t, err, walletdomain.ErrReservationMismatch)

	require.NoError(t, svc.Release(ctx, nil, holder, seller, 4))

	balance, err := svc.Get(ctx, holder, seller)
	require.NoError(t, err)
	assert.Zero(t, balance.ReservedUnits)
	assert.Equal(t, int64(10), balance.BalanceUnits)
}

func TestConsumeBurnsReservationAndRecomputesAverage(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	holder, seller := ids(t)

	_, err := svc.Purchase(ctx, holder, seller, 10, 100)
	require.NoError(t, err)
	_, err = svc.Purchase(ctx, holder, seller, 10, 200)
	require.NoError(t, err)

	require.NoError(t, svc.Reserve(ctx, holder, seller, 5))
	require.NoError(t, svc.Consume(ctx, nil, holder, seller, 5))

	balance, err := svc.Get(ctx, holder, seller)
	require.NoError(t, err)
	assert.Equal(t, int64(15), balance.BalanceUnits)
	assert.Zero(t, balance.ReservedUnits)
	// Consumption at the average leaves the average unchanged.
	assert.Equal(t, int64(150), balance.AvgPurchasePricePerUnit)
	assert.Equal(t, int64(2250), balance.TotalPaid)
}

func TestConsumeWithoutReservation(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	holder, seller := ids(t)

	_, err := svc.Purchase(ctx, holder, seller, 10, 100)
	require.NoError(t, err)

	err = svc.Consume(ctx, nil, holder, seller, 3)
	assert.ErrorIs(t, err, walletdomain.ErrReservationMismatch)
}

func TestConsumeEverything(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	holder, seller := ids(t)

	_, err := svc.Purchase(ctx, holder, seller, 4, 250)
	require.NoError(t, err)
	require.NoError(t, svc.Reserve(ctx, holder, seller, 4))
	require.NoError(t, svc.Consume(ctx, nil, holder, seller, 4))

	balance, err := svc.Get(ctx, holder, seller)
	require.NoError(t, err)
	assert.Zero(t, balance.BalanceUnits)
	assert.Zero(t, balance.ReservedUnits)
	assert.Zero(t, balance.TotalPaid)
	assert.Zero(t, balance.AvgPurchasePricePerUnit)
}

func TestValidation(t *testing.T) {
	db := openTestDB(t)
	svc := newTestService(t, db)
	ctx := context.Background()
	holder, seller := ids(t)

	_, err := svc.Purchase(ctx, 0, seller, 1, 1)
	assert.ErrorIs(t, err, walletdomain.ErrInvalidHolder)

	_, err = svc.Purchase(ctx, holder, 0, 1, 1)
	assert.ErrorIs(t, err, walletdomain.ErrInvalidSeller)

	_, err = svc.Purchase(ctx, holder, seller, 0, 1)
	assert.ErrorIs(t, err, walletdomain.ErrInvalidUnits)

	_, err = svc.Purchase(ctx, holder, seller, 1, -1)
	assert.ErrorIs(t, err, walletdomain.ErrInvalidPrice)

	assert.ErrorIs(t, svc.Reserve(ctx, holder, seller, 0), walletdomain.ErrInvalidUnits)
	assert.ErrorIs(t, svc.Release(ctx, nil, holder, seller, -1), walletdomain.ErrInvalidUnits)
}

package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/clipverse/payrail/internal/clock"
	"github.com/clipverse/payrail/internal/config"
	ledgerdomain "github.com/clipverse/payrail/internal/ledger/domain"
	ledgerservice "github.com/clipverse/payrail/internal/ledger/service"
	sessiondomain "github.com/clipverse/payrail/internal/session/domain"
	walletdomain "github.com/clipverse/payrail/internal/wallet/domain"
	walletservice "github.com/clipverse/payrail/internal/wallet/service"
)

type fixture struct {
	db      *gorm.DB
	svc     sessiondomain.Service
	ledger  ledgerdomain.Service
	wallets walletdomain.Service
	node    *snowflake.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&sessiondomain.Session{},
		&ledgerdomain.LedgerEntry{},
		&walletdomain.WalletBalance{},
	))

	log := zaptest.NewLogger(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{DB: db, Log: log, GenID: node})
	walletSvc := walletservice.NewService(walletservice.Params{DB: db, Log: log})
	svc := NewService(Params{
		DB:      db,
		Log:     log,
		Config:  config.Config{Settlement: config.SettlementConfig{Currency: "USD"}},
		GenID:   node,
		Clock:   clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
		Ledger:  ledgerSvc,
		Wallets: walletSvc,
	})
	return &fixture{db: db, svc: svc, ledger: ledgerSvc, wallets: walletSvc, node: node}
}

func (f *fixture) book(t *testing.T, buyerFunded bool) *sessiondomain.Session {
	t.Helper()
	buyer := f.node.Generate()
	seller := f.node.Generate()
	if buyerFunded {
		_, err := f.wallets.Purchase(context.Background(), buyer, seller, 10, 100)
		require.NoError(t, err)
	}
	sess, err := f.svc.Create(context.Background(), sessiondomain.CreateSessionRequest{
		BuyerID:      buyer,
		SellerID:     seller,
		Units:        3,
		PricePerUnit: 100,
		BuyerFunded:  buyerFunded,
	})
	require.NoError(t, err)
	return sess
}

func (f *fixture) advance(t *testing.T, id snowflake.ID, statuses ...sessiondomain.SessionStatus) *sessiondomain.Session {
	t.Helper()
	var sess *sessiondomain.Session
	var err error
	for _, status := range statuses {
		sess, err = f.svc.Transition(context.Background(), id, status)
		require.NoError(t, err)
	}
	return sess
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := f.node.Generate()

	_, err := f.svc.Create(ctx, sessiondomain.CreateSessionRequest{BuyerID: buyer, SellerID: buyer, Units: 1, PricePerUnit: 1})
	assert.ErrorIs(t, err, sessiondomain.ErrInvalidParticipants)

	_, err = f.svc.Create(ctx, sessiondomain.CreateSessionRequest{BuyerID: buyer, SellerID: f.node.Generate(), Units: 0, PricePerUnit: 1})
	assert.ErrorIs(t, err, sessiondomain.ErrInvalidUnits)

	_, err = f.svc.Create(ctx, sessiondomain.CreateSessionRequest{BuyerID: buyer, SellerID: f.node.Generate(), Units: 1, PricePerUnit: 0})
	assert.ErrorIs(t, err, sessiondomain.ErrInvalidPrice)
}

func TestLifecycleRejectsInvalidEdges(t *testing.T) {
	f := newFixture(t)
	sess := f.book(t, false)

	_, err := f.svc.Transition(context.Background(), sess.ID, sessiondomain.StatusCompleted)
	assert.ErrorIs(t, err, sessiondomain.ErrInvalidTransition, "requested cannot jump to completed")

	_, err = f.svc.Transition(context.Background(), f.node.Generate(), sessiondomain.StatusAccepted)
	assert.ErrorIs(t, err, sessiondomain.ErrSessionNotFound)
}

func TestCompletionSettlesOneLedgerEntry(t *testing.T) {
	f := newFixture(t)
	sess := f.book(t, false)

	done := f.advance(t, sess.ID,
		sessiondomain.StatusAccepted,
		sessiondomain.StatusInProgress,
		sessiondomain.StatusCompleted,
	)
	require.NotNil(t, done.SettledEntryID)

	entry, err := f.ledger.GetByID(context.Background(), *done.SettledEntryID)
	require.NoError(t, err)
	assert.Equal(t, sess.SellerID, entry.OwnerID)
	assert.Equal(t, int64(300), entry.Amount)
	assert.Equal(t, ledgerdomain.StatusPending, entry.Status)
}

func TestDisputeRoundTripSettlesOnce(t *testing.T) {
	f := newFixture(t)
	sess := f.book(t, false)

	done := f.advance(t, sess.ID,
		sessiondomain.StatusAccepted,
		sessiondomain.StatusInProgress,
		sessiondomain.StatusCompleted,
		sessiondomain.StatusDisputed,
		sessiondomain.StatusCompleted,
	)
	require.NotNil(t, done.SettledEntryID)

	var count int64
	require.NoError(t, f.db.Model(&ledgerdomain.LedgerEntry{}).
		Where("owner_id = ?", sess.SellerID).
		Count(&count).Error)
	assert.Equal(t, int64(1), count, "a session settles at most one entry")
}

func TestBuyerFundedCompletionConsumesReservation(t *testing.T) {
	f := newFixture(t)
	sess := f.book(t, true)

	balance, err := f.wallets.Get(context.Background(), sess.BuyerID, sess.SellerID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), balance.ReservedUnits, "booking reserves the units")

	f.advance(t, sess.ID,
		sessiondomain.StatusAccepted,
		sessiondomain.StatusInProgress,
		sessiondomain.StatusCompleted,
	)

	balance, err = f.wallets.Get(context.Background(), sess.BuyerID, sess.SellerID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), balance.BalanceUnits)
	assert.Zero(t, balance.ReservedUnits)
}

func TestAbandonmentReleasesReservation(t *testing.T) {
	f := newFixture(t)

	for _, to := range []sessiondomain.SessionStatus{
		sessiondomain.StatusCancelled,
		sessiondomain.StatusDeclined,
	} {
		t.Run(string(to), func(t *testing.T) {
			sess := f.book(t, true)

			_, err := f.svc.Transition(context.Background(), sess.ID, to)
			require.NoError(t, err)

			balance, err := f.wallets.Get(context.Background(), sess.BuyerID, sess.SellerID)
			require.NoError(t, err)
			assert.Zero(t, balance.ReservedUnits)
			assert.Equal(t, int64(10), balance.BalanceUnits)
		})
	}
}

func TestNoShowReleasesReservation(t *testing.T) {
	f := newFixture(t)
	sess := f.book(t, true)

	f.advance(t, sess.ID, sessiondomain.StatusAccepted, sessiondomain.StatusNoShowBuyer)

	balance, err := f.wallets.Get(context.Background(), sess.BuyerID, sess.SellerID)
	require.NoError(t, err)
	assert.Zero(t, balance.ReservedUnits)
}

func TestInsufficientBalanceBlocksBuyerFundedBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := f.node.Generate()
	seller := f.node.Generate()

	_, err := f.wallets.Purchase(ctx, buyer, seller, 2, 100)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, sessiondomain.CreateSessionRequest{
		BuyerID:      buyer,
		SellerID:     seller,
		Units:        3,
		PricePerUnit: 100,
		BuyerFunded:  true,
	})
	assert.ErrorIs(t, err, walletdomain.ErrInsufficientBalance)
}

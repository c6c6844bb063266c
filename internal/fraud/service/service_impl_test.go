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
	frauddomain "github.com/clipverse/payrail/internal/fraud/domain"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&frauddomain.FraudFlag{}, &frauddomain.OwnerFraudStats{}))
	return db
}

func newTestService(t *testing.T, db *gorm.DB) (frauddomain.Service, *snowflake.Node) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	svc := NewService(Params{
		DB:  db,
		Log: zaptest.NewLogger(t),
		Config: config.Config{
			Fraud: config.FraudConfig{
				MinEngagementRatio:   0.02,
				VelocityMultiplier:   5.0,
				NewAccountMinAgeDays: 30,
				NewAccountAmountCap:  50000,
			},
		},
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
	})
	return svc, node
}

func cleanProfile() frauddomain.TrustProfile {
	return frauddomain.TrustProfile{
		AccountAgeDays:    365,
		EngagementRatio:   0.05,
		ViewVelocityRatio: 1.0,
	}
}

func TestEvaluateOrdersFlagsByRule(t *testing.T) {
	svc, node := newTestService(t, openTestDB(t))

	drafts := svc.Evaluate(frauddomain.Candidate{
		OwnerID:     node.Generate(),
		TotalAmount: 100000,
		Profile: frauddomain.TrustProfile{
			AccountAgeDays:    5,
			EngagementRatio:   0.001,
			ViewVelocityRatio: 8.0,
		},
		PriorConfirmedFlags: 1,
	})

	require.Len(t, drafts, 4)
	assert.Equal(t, frauddomain.FlagEngagement, drafts[0].FlagType)
	assert.Equal(t, frauddomain.FlagVelocity, drafts[1].FlagType)
	assert.Equal(t, frauddomain.FlagNewCreator, drafts[2].FlagType)
	assert.Equal(t, frauddomain.FlagPreviousFraud, drafts[3].FlagType)
}

func TestEvaluateCleanCandidate(t *testing.T) {
	svc, node := newTestService(t, openTestDB(t))

	drafts := svc.Evaluate(frauddomain.Candidate{
		OwnerID:     node.Generate(),
		TotalAmount: 10000,
		Profile:     cleanProfile(),
	})
	assert.Empty(t, drafts)
}

func TestInsertFlagsPersistsPending(t *testing.T) {
	db := openTestDB(t)
	svc, node := newTestService(t, db)
	ctx := context.Background()
	requestID := node.Generate()

	flags, err := svc.InsertFlags(ctx, nil, requestID, []frauddomain.FlagDraft{
		{FlagType: frauddomain.FlagEngagement, DetectedValue: 0.001, ThresholdValue: 0.02},
		{FlagType: frauddomain.FlagVelocity, DetectedValue: 8.0, ThresholdValue: 5.0},
	})
	require.NoError(t, err)
	require.Len(t, flags, 2)

	stored, err := svc.ListByPayoutRequest(ctx, requestID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, f := range stored {
		assert.Equal(t, frauddomain.FlagPending, f.Status)
		assert.Equal(t, requestID, f.PayoutRequestID)
	}

	empty, err := svc.InsertFlags(ctx, nil, requestID, nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestResolveFlagsTouchesOnlyPending(t *testing.T) {
	db := openTestDB(t)
	svc, node := newTestService(t, db)
	ctx := context.Background()
	requestID := node.Generate()

	_, err := svc.InsertFlags(ctx, nil, requestID, []frauddomain.FlagDraft{
		{FlagType: frauddomain.FlagEngagement, DetectedValue: 0.001, ThresholdValue: 0.02},
		{FlagType: frauddomain.FlagVelocity, DetectedValue: 8.0, ThresholdValue: 5.0},
	})
	require.NoError(t, err)

	n, err := svc.ResolveFlags(ctx, nil, requestID, frauddomain.FlagConfirmed)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Already resolved, nothing left to touch.
	n, err = svc.ResolveFlags(ctx, nil, requestID, frauddomain.FlagDismissed)
	require.NoError(t, err)
	assert.Zero(t, n)

	stored, err := svc.ListByPayoutRequest(ctx, requestID)
	require.NoError(t, err)
	for _, f := range stored {
		assert.Equal(t, frauddomain.FlagConfirmed, f.Status)
	}

	_, err = svc.ResolveFlags(ctx, nil, requestID, frauddomain.FlagPending)
	assert.ErrorIs(t, err, frauddomain.ErrFlagsResolved)
}

func TestStatsZeroValueForUnknownOwner(t *testing.T) {
	svc, node := newTestService(t, openTestDB(t))

	stats, err := svc.Stats(context.Background(), nil, node.Generate())
	require.NoError(t, err)
	assert.Zero(t, stats.ConfirmedCount)
	assert.False(t, stats.PermanentFraud)

	_, err = svc.Stats(context.Background(), nil, 0)
	assert.ErrorIs(t, err, frauddomain.ErrInvalidOwner)
}

func TestIncrementConfirmedTripsPermanentFraud(t *testing.T) {
	db := openTestDB(t)
	svc, node := newTestService(t, db)
	ctx := context.Background()
	owner := node.Generate()

	for i := int64(1); i < frauddomain.PermanentFraudThreshold; i++ {
		stats, err := svc.IncrementConfirmed(ctx, nil, owner)
		require.NoError(t, err)
		assert.Equal(t, i, stats.ConfirmedCount)
		assert.False(t, stats.PermanentFraud)
	}

	stats, err := svc.IncrementConfirmed(ctx, nil, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(frauddomain.PermanentFraudThreshold), stats.ConfirmedCount)
	assert.True(t, stats.PermanentFraud)

	// The marker never clears.
	stats, err = svc.IncrementConfirmed(ctx, nil, owner)
	require.NoError(t, err)
	assert.True(t, stats.PermanentFraud)
	assert.Equal(t, int64(4), stats.ConfirmedCount)
}

package review

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/clipverse/payrail/internal/clearing"
	"github.com/clipverse/payrail/internal/clock"
	"github.com/clipverse/payrail/internal/config"
	"github.com/clipverse/payrail/internal/evidence"
	frauddomain "github.com/clipverse/payrail/internal/fraud/domain"
	fraudservice "github.com/clipverse/payrail/internal/fraud/service"
	ledgerdomain "github.com/clipverse/payrail/internal/ledger/domain"
	ledgerservice "github.com/clipverse/payrail/internal/ledger/service"
	payoutdomain "github.com/clipverse/payrail/internal/payout/domain"
)

type fixture struct {
	db    *gorm.DB
	adj   *Adjudicator
	fraud frauddomain.Service
	clk   *clock.FakeClock
	node  *snowflake.Node
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
		&payoutdomain.PayoutRequest{},
		&ledgerdomain.LedgerEntry{},
		&frauddomain.FraudFlag{},
		&frauddomain.OwnerFraudStats{},
		&evidence.Item{},
		&PenaltyDispatch{},
	))

	log := zaptest.NewLogger(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	cfg := config.Config{
		Settlement: config.SettlementConfig{
			Currency:         "USD",
			ClearingDelay:    72 * time.Hour,
			EvidenceWindow:   48 * time.Hour,
			EvidenceMaxItems: 5,
			SweepBatchSize:   50,
		},
	}

	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{DB: db, Log: log, GenID: node})
	fraudSvc := fraudservice.NewService(fraudservice.Params{DB: db, Log: log, Config: cfg, GenID: node, Clock: clk})
	evidenceSvc := evidence.NewService(evidence.Params{DB: db, Log: log, Config: cfg, GenID: node, Clock: clk})
	scheduler, err := clearing.New(clearing.Params{DB: db, Log: log, Config: cfg, Clock: clk, LedgerSvc: ledgerSvc})
	require.NoError(t, err)

	adj := NewAdjudicator(AdjudicatorParams{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		LedgerSvc:   ledgerSvc,
		FraudSvc:    fraudSvc,
		EvidenceSvc: evidenceSvc,
		Scheduler:   scheduler,
	})
	return &fixture{db: db, adj: adj, fraud: fraudSvc, clk: clk, node: node}
}

// seedFlagged builds a request parked behind the evidence window: locked
// entries, pending flags and one submitted evidence item.
func (f *fixture) seedFlagged(t *testing.T, status payoutdomain.PayoutStatus) *payoutdomain.PayoutRequest {
	t.Helper()
	ctx := context.Background()
	owner := f.node.Generate()
	now := f.clk.Now()
	deadline := now.Add(48 * time.Hour)

	req := payoutdomain.PayoutRequest{
		ID:                 f.node.Generate(),
		OwnerID:            owner,
		TotalAmount:        5000,
		Currency:           "USD",
		Status:             status,
		AutoApprovalStatus: payoutdomain.AutoPendingEvidence,
		EvidenceDeadline:   &deadline,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	require.NoError(t, f.db.Create(&req).Error)

	entry := ledgerdomain.LedgerEntry{
		ID:              f.node.Generate(),
		OwnerID:         owner,
		Amount:          5000,
		Currency:        "USD",
		SourceRef:       fmt.Sprintf("session:%s", req.ID),
		Status:          ledgerdomain.StatusLocked,
		PayoutRequestID: &req.ID,
		LockedAt:        &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, f.db.Create(&entry).Error)

	_, err := f.fraud.InsertFlags(ctx, nil, req.ID, []frauddomain.FlagDraft{
		{FlagType: frauddomain.FlagEngagement, DetectedValue: 0.001, ThresholdValue: 0.02},
	})
	require.NoError(t, err)

	item := evidence.Item{
		ID:              f.node.Generate(),
		PayoutRequestID: req.ID,
		Kind:            evidence.KindRecording,
		Locator:         "s3://proof/stream.mp4",
		UploadedAt:      now,
	}
	require.NoError(t, f.db.Create(&item).Error)
	return &req
}

func (f *fixture) flags(t *testing.T, requestID snowflake.ID) []frauddomain.FraudFlag {
	t.Helper()
	flags, err := f.fraud.ListByPayoutRequest(context.Background(), requestID)
	require.NoError(t, err)
	return flags
}

func TestApproveClearsRequest(t *testing.T) {
	f := newFixture(t)
	req := f.seedFlagged(t, payoutdomain.StatusPendingReview)

	out, err := f.adj.Approve(context.Background(), req.ID, "alice")
	require.NoError(t, err)

	assert.Equal(t, payoutdomain.StatusApproved, out.Status)
	require.NotNil(t, out.ReviewedBy)
	assert.Equal(t, "alice", *out.ReviewedBy)
	require.NotNil(t, out.ReviewedAt)
	require.NotNil(t, out.ClearingEndsAt)
	assert.Equal(t, f.clk.Now().Add(72*time.Hour), out.ClearingEndsAt.UTC())

	for _, flag := range f.flags(t, req.ID) {
		assert.Equal(t, frauddomain.FlagDismissed, flag.Status)
	}

	var entry ledgerdomain.LedgerEntry
	require.NoError(t, f.db.First(&entry, "payout_request_id = ?", req.ID).Error)
	assert.Equal(t, ledgerdomain.StatusCleared, entry.Status)

	var item evidence.Item
	require.NoError(t, f.db.First(&item, "payout_request_id = ?", req.ID).Error)
	require.NotNil(t, item.ReviewStatus)
	assert.Equal(t, evidence.ReviewApproved, *item.ReviewStatus)
}

func TestRejectConfirmsFlagsAndQueuesPenalty(t *testing.T) {
	f := newFixture(t)
	req := f.seedFlagged(t, payoutdomain.StatusPendingReview)

	out, err := f.adj.Reject(context.Background(), req.ID, "bob", "stolen content")
	require.NoError(t, err)

	assert.Equal(t, payoutdomain.StatusRejected, out.Status)
	require.NotNil(t, out.RejectionReason)
	assert.Equal(t, "stolen content", *out.RejectionReason)

	for _, flag := range f.flags(t, req.ID) {
		assert.Equal(t, frauddomain.FlagConfirmed, flag.Status)
	}

	stats, err := f.fraud.Stats(context.Background(), nil, req.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ConfirmedCount)

	var entry ledgerdomain.LedgerEntry
	require.NoError(t, f.db.First(&entry, "owner_id = ?", req.OwnerID).Error)
	assert.Equal(t, ledgerdomain.StatusPending, entry.Status)
	assert.Nil(t, entry.PayoutRequestID)

	var dispatch PenaltyDispatch
	require.NoError(t, f.db.First(&dispatch, "payout_request_id = ?", req.ID).Error)
	assert.Equal(t, DispatchPending, dispatch.Status)

	var payload penaltyPayload
	require.NoError(t, json.Unmarshal(dispatch.Payload, &payload))
	assert.Equal(t, req.ID.String(), payload.PayoutRequestID)
	assert.Equal(t, req.OwnerID.String(), payload.OwnerID)
	assert.Equal(t, int64(5000), payload.TotalAmount)
	assert.Equal(t, "stolen content", payload.Reason)
	assert.Equal(t, int64(1), payload.ConfirmedFlags)
}

func TestRejectWithoutPendingFlagsSkipsCounter(t *testing.T) {
	f := newFixture(t)
	req := f.seedFlagged(t, payoutdomain.StatusPendingReview)

	// Another reviewer already dismissed the flags; the rejection stands on
	// its own.
	_, err := f.fraud.ResolveFlags(context.Background(), nil, req.ID, frauddomain.FlagDismissed)
	require.NoError(t, err)

	_, err = f.adj.Reject(context.Background(), req.ID, "bob", "manual takedown")
	require.NoError(t, err)

	stats, err := f.fraud.Stats(context.Background(), nil, req.OwnerID)
	require.NoError(t, err)
	assert.Zero(t, stats.ConfirmedCount)

	var count int64
	require.NoError(t, f.db.Model(&PenaltyDispatch{}).Where("payout_request_id = ?", req.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestAdjudicateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.seedFlagged(t, payoutdomain.StatusPendingEvidence)

	_, err := f.adj.Approve(ctx, req.ID, "  ")
	assert.ErrorIs(t, err, ErrInvalidReviewer)

	_, err = f.adj.Reject(ctx, req.ID, "bob", "")
	assert.ErrorIs(t, err, ErrMissingReason)

	_, err = f.adj.Approve(ctx, f.node.Generate(), "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdjudicateRequiresReviewableState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, status := range []payoutdomain.PayoutStatus{
		payoutdomain.StatusRequested,
		payoutdomain.StatusApproved,
		payoutdomain.StatusRejected,
		payoutdomain.StatusCancelled,
		payoutdomain.StatusPaid,
	} {
		req := f.seedFlagged(t, status)
		_, err := f.adj.Approve(ctx, req.ID, "alice")
		assert.ErrorIs(t, err, ErrNotAdjudicable, "status %s", status)
	}
}

func TestApproveFromPendingEvidence(t *testing.T) {
	f := newFixture(t)
	req := f.seedFlagged(t, payoutdomain.StatusPendingEvidence)

	// The evidence window lapsing does not strip the reviewer's authority.
	f.clk.Advance(72 * time.Hour)

	out, err := f.adj.Approve(context.Background(), req.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, payoutdomain.StatusApproved, out.Status)
}

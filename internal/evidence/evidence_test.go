package evidence

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
	payoutdomain "github.com/clipverse/payrail/internal/payout/domain"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&Item{}, &payoutdomain.PayoutRequest{}))
	return db
}

func newTestService(t *testing.T, db *gorm.DB) (*Service, *clock.FakeClock, *snowflake.Node) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(Params{
		DB:     db,
		Log:    zaptest.NewLogger(t),
		Config: config.Config{Settlement: config.SettlementConfig{EvidenceMaxItems: 3}},
		GenID:  node,
		Clock:  clk,
	})
	return svc, clk, node
}

func seedRequest(t *testing.T, db *gorm.DB, node *snowflake.Node, status payoutdomain.PayoutStatus, deadline *time.Time) *payoutdomain.PayoutRequest {
	t.Helper()
	req := payoutdomain.PayoutRequest{
		ID:                 node.Generate(),
		OwnerID:            node.Generate(),
		TotalAmount:        5000,
		Currency:           "USD",
		Status:             status,
		AutoApprovalStatus: payoutdomain.AutoPendingEvidence,
		EvidenceDeadline:   deadline,
	}
	require.NoError(t, db.Create(&req).Error)
	return &req
}

func deadlineIn(clk *clock.FakeClock, d time.Duration) *time.Time {
	dl := clk.Now().Add(d)
	return &dl
}

func TestFirstItemMovesRequestToPendingReview(t *testing.T) {
	db := openTestDB(t)
	svc, clk, node := newTestService(t, db)
	req := seedRequest(t, db, node, payoutdomain.StatusPendingEvidence, deadlineIn(clk, 48*time.Hour))

	item, err := svc.Submit(context.Background(), req.ID, KindRecording, "s3://proof/stream-1.mp4")
	require.NoError(t, err)
	assert.Equal(t, req.ID, item.PayoutRequestID)
	assert.Nil(t, item.ReviewStatus)

	var stored payoutdomain.PayoutRequest
	require.NoError(t, db.First(&stored, "id = ?", req.ID).Error)
	assert.Equal(t, payoutdomain.StatusPendingReview, stored.Status)
	assert.Equal(t, payoutdomain.AutoPendingReview, stored.AutoApprovalStatus)
}

func TestAdditionalItemsStayAdditive(t *testing.T) {
	db := openTestDB(t)
	svc, clk, node := newTestService(t, db)
	req := seedRequest(t, db, node, payoutdomain.StatusPendingEvidence, deadlineIn(clk, 48*time.Hour))
	ctx := context.Background()

	_, err := svc.Submit(ctx, req.ID, KindRecording, "s3://proof/stream-1.mp4")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, req.ID, KindLink, "https://clips.example.com/abc")
	require.NoError(t, err)

	items, err := svc.ListByRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, KindRecording, items[0].Kind)
	assert.Equal(t, KindLink, items[1].Kind)
}

func TestSubmitAfterDeadlineFails(t *testing.T) {
	db := openTestDB(t)
	svc, clk, node := newTestService(t, db)
	req := seedRequest(t, db, node, payoutdomain.StatusPendingEvidence, deadlineIn(clk, 48*time.Hour))

	clk.Advance(48*time.Hour + time.Minute)

	_, err := svc.Submit(context.Background(), req.ID, KindLink, "https://clips.example.com/late")
	assert.ErrorIs(t, err, ErrWindowClosed)
}

func TestSubmitEnforcesItemCap(t *testing.T) {
	db := openTestDB(t)
	svc, clk, node := newTestService(t, db)
	req := seedRequest(t, db, node, payoutdomain.StatusPendingEvidence, deadlineIn(clk, 48*time.Hour))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Submit(ctx, req.ID, KindLink, fmt.Sprintf("https://clips.example.com/%d", i))
		require.NoError(t, err)
	}

	_, err := svc.Submit(ctx, req.ID, KindLink, "https://clips.example.com/overflow")
	assert.ErrorIs(t, err, ErrLimitReached)
}

func TestSubmitRejectsNonCollectingStates(t *testing.T) {
	db := openTestDB(t)
	svc, _, node := newTestService(t, db)
	ctx := context.Background()

	for _, status := range []payoutdomain.PayoutStatus{
		payoutdomain.StatusRequested,
		payoutdomain.StatusApproved,
		payoutdomain.StatusRejected,
		payoutdomain.StatusPaid,
	} {
		req := seedRequest(t, db, node, status, nil)
		_, err := svc.Submit(ctx, req.ID, KindLink, "https://clips.example.com/x")
		assert.ErrorIs(t, err, ErrNotCollecting, "status %s", status)
	}
}

func TestSubmitValidation(t *testing.T) {
	db := openTestDB(t)
	svc, _, node := newTestService(t, db)
	ctx := context.Background()

	_, err := svc.Submit(ctx, node.Generate(), Kind("screenshot"), "x")
	assert.ErrorIs(t, err, ErrInvalidKind)

	_, err = svc.Submit(ctx, node.Generate(), KindLink, "   ")
	assert.ErrorIs(t, err, ErrInvalidLocator)

	_, err = svc.Submit(ctx, node.Generate(), KindLink, "https://clips.example.com/x")
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestMarkReviewedStampsAllItems(t *testing.T) {
	db := openTestDB(t)
	svc, clk, node := newTestService(t, db)
	req := seedRequest(t, db, node, payoutdomain.StatusPendingEvidence, deadlineIn(clk, 48*time.Hour))
	ctx := context.Background()

	_, err := svc.Submit(ctx, req.ID, KindRecording, "s3://proof/a.mp4")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, req.ID, KindLink, "https://clips.example.com/a")
	require.NoError(t, err)

	require.NoError(t, svc.MarkReviewed(ctx, nil, req.ID, ReviewApproved))

	items, err := svc.ListByRequest(ctx, req.ID)
	require.NoError(t, err)
	for _, item := range items {
		require.NotNil(t, item.ReviewStatus)
		assert.Equal(t, ReviewApproved, *item.ReviewStatus)
	}
}

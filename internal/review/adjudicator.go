package review

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/clipverse/payrail/internal/clearing"
	"github.com/clipverse/payrail/internal/clock"
	"github.com/clipverse/payrail/internal/evidence"
	frauddomain "github.com/clipverse/payrail/internal/fraud/domain"
	ledgerdomain "github.com/clipverse/payrail/internal/ledger/domain"
	obsmetrics "github.com/clipverse/payrail/internal/observability/metrics"
	payoutdomain "github.com/clipverse/payrail/internal/payout/domain"
)

var (
	ErrInvalidReviewer = errors.New("invalid_reviewer")
	ErrMissingReason   = errors.New("missing_reason")
	ErrNotFound        = errors.New("not_found")

	// ErrNotAdjudicable means the request is not awaiting a reviewer
	// decision.
	ErrNotAdjudicable = errors.New("state_error")
)

type AdjudicatorParams struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	LedgerSvc   ledgerdomain.Service
	FraudSvc    frauddomain.Service
	EvidenceSvc *evidence.Service
	Scheduler   *clearing.Scheduler
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

// Adjudicator is the only component that resolves fraud flags. Both
// decisions require a reviewer identity and a request still awaiting review.
type Adjudicator struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	ledgerSvc   ledgerdomain.Service
	fraudSvc    frauddomain.Service
	evidenceSvc *evidence.Service
	scheduler   *clearing.Scheduler
	obsMetrics  *obsmetrics.Metrics
}

func NewAdjudicator(p AdjudicatorParams) *Adjudicator {
	return &Adjudicator{
		db:          p.DB,
		log:         p.Log.Named("review.adjudicator"),
		genID:       p.GenID,
		clock:       p.Clock,
		ledgerSvc:   p.LedgerSvc,
		fraudSvc:    p.FraudSvc,
		evidenceSvc: p.EvidenceSvc,
		scheduler:   p.Scheduler,
		obsMetrics:  p.ObsMetrics,
	}
}

// Approve dismisses every pending flag, accepts the submitted evidence and
// moves the request into clearing.
func (a *Adjudicator) Approve(ctx context.Context, id snowflake.ID, reviewer string) (*payoutdomain.PayoutRequest, error) {
	reviewer = strings.TrimSpace(reviewer)
	if reviewer == "" {
		return nil, ErrInvalidReviewer
	}

	var out payoutdomain.PayoutRequest
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, now, err := a.claim(ctx, tx, id, payoutdomain.StatusApproved, reviewer, nil)
		if err != nil {
			return err
		}

		if _, err := a.fraudSvc.ResolveFlags(ctx, tx, id, frauddomain.FlagDismissed); err != nil {
			return err
		}
		if err := a.evidenceSvc.MarkReviewed(ctx, tx, id, evidence.ReviewApproved); err != nil {
			return err
		}
		if _, err := a.scheduler.Schedule(ctx, tx, id, now); err != nil {
			return err
		}

		a.obsMetrics.IncPayoutTransition(string(req.Status), string(payoutdomain.StatusApproved))
		return tx.First(&out, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}

	a.log.Info("payout approved",
		zap.String("payout_request_id", id.String()),
		zap.String("reviewed_by", reviewer),
	)
	return &out, nil
}

// Reject confirms every pending flag, increments the owner's permanent fraud
// counter, returns the locked entries to pending and queues the penalty
// notification. The queue write commits with the rejection; publishing
// happens later and its failure never reverses the decision.
func (a *Adjudicator) Reject(ctx context.Context, id snowflake.ID, reviewer, reason string) (*payoutdomain.PayoutRequest, error) {
	reviewer = strings.TrimSpace(reviewer)
	if reviewer == "" {
		return nil, ErrInvalidReviewer
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrMissingReason
	}

	var out payoutdomain.PayoutRequest
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, now, err := a.claim(ctx, tx, id, payoutdomain.StatusRejected, reviewer, &reason)
		if err != nil {
			return err
		}

		confirmed, err := a.fraudSvc.ResolveFlags(ctx, tx, id, frauddomain.FlagConfirmed)
		if err != nil {
			return err
		}
		if confirmed > 0 {
			if _, err := a.fraudSvc.IncrementConfirmed(ctx, tx, req.OwnerID); err != nil {
				return err
			}
		}
		if err := a.ledgerSvc.Unlock(ctx, tx, id, now); err != nil {
			return err
		}
		if err := a.enqueuePenalty(ctx, tx, req, reason, confirmed, now); err != nil {
			return err
		}

		a.obsMetrics.IncPayoutTransition(string(req.Status), string(payoutdomain.StatusRejected))
		return tx.First(&out, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}

	a.log.Info("payout rejected",
		zap.String("payout_request_id", id.String()),
		zap.String("reviewed_by", reviewer),
		zap.String("reason", reason),
	)
	return &out, nil
}

// claim loads the request and performs the reviewer transition as one
// conditional update. A request that left the reviewable states first loses
// the race and surfaces ErrNotAdjudicable.
func (a *Adjudicator) claim(ctx context.Context, tx *gorm.DB, id snowflake.ID, to payoutdomain.PayoutStatus, reviewer string, reason *string) (*payoutdomain.PayoutRequest, time.Time, error) {
	var req payoutdomain.PayoutRequest
	if err := tx.First(&req, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, time.Time{}, ErrNotFound
		}
		return nil, time.Time{}, err
	}
	if !req.Status.Adjudicable() {
		return nil, time.Time{}, ErrNotAdjudicable
	}

	now := a.clock.Now()
	result := tx.Exec(
		`UPDATE payout_requests
		 SET status = ?, rejection_reason = ?, reviewed_by = ?, reviewed_at = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		to, reason, reviewer, now, now,
		id,
		payoutdomain.StatusPendingEvidence,
		payoutdomain.StatusPendingReview,
	)
	if result.Error != nil {
		return nil, time.Time{}, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, time.Time{}, ErrNotAdjudicable
	}
	return &req, now, nil
}

func (a *Adjudicator) enqueuePenalty(ctx context.Context, tx *gorm.DB, req *payoutdomain.PayoutRequest, reason string, confirmed int64, now time.Time) error {
	payload, err := json.Marshal(penaltyPayload{
		PayoutRequestID: req.ID.String(),
		OwnerID:         req.OwnerID.String(),
		TotalAmount:     req.TotalAmount,
		Currency:        req.Currency,
		Reason:          reason,
		ConfirmedFlags:  confirmed,
		RejectedAt:      now,
	})
	if err != nil {
		return err
	}
	return tx.WithContext(ctx).Create(&PenaltyDispatch{
		ID:              a.genID.Generate(),
		PayoutRequestID: req.ID,
		OwnerID:         req.OwnerID,
		Payload:         payload,
		Status:          DispatchPending,
		CreatedAt:       now,
	}).Error
}

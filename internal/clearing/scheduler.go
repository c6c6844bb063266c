package clearing

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/clipverse/payrail/internal/clock"
	"github.com/clipverse/payrail/internal/config"
	ledgerdomain "github.com/clipverse/payrail/internal/ledger/domain"
	obsmetrics "github.com/clipverse/payrail/internal/observability/metrics"
	payoutdomain "github.com/clipverse/payrail/internal/payout/domain"
)

var ErrInvalidConfig = errors.New("clearing: missing dependency")

// PenaltyDrainer publishes queued penalty notifications. The sweep drains it
// after each run so rejected payouts eventually reach the penalty collaborator
// without the rejection path ever waiting on it.
type PenaltyDrainer interface {
	DispatchPending(ctx context.Context) (int, error)
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Config     config.Config
	Clock      clock.Clock
	LedgerSvc  ledgerdomain.Service
	Drainer    PenaltyDrainer      `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Scheduler enforces the clearing delay between approval and payability.
type Scheduler struct {
	db         *gorm.DB
	log        *zap.Logger
	delay      time.Duration
	interval   time.Duration
	batchSize  int
	clock      clock.Clock
	ledgerSvc  ledgerdomain.Service
	drainer    PenaltyDrainer
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.LedgerSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:         p.DB,
		log:        p.Log.Named("clearing.scheduler"),
		delay:      p.Config.Settlement.ClearingDelay,
		interval:   p.Config.Settlement.SweepInterval,
		batchSize:  p.Config.Settlement.SweepBatchSize,
		clock:      p.Clock,
		ledgerSvc:  p.LedgerSvc,
		drainer:    p.Drainer,
		obsMetrics: p.ObsMetrics,
	}, nil
}

// Schedule starts the clearing period for an approved request inside the
// caller's transaction and returns when the funds become payable.
func (s *Scheduler) Schedule(ctx context.Context, tx *gorm.DB, requestID snowflake.ID, now time.Time) (time.Time, error) {
	clearingEndsAt := now.Add(s.delay)
	if err := s.ledgerSvc.MarkCleared(ctx, tx, requestID, clearingEndsAt, now); err != nil {
		return time.Time{}, err
	}
	if err := tx.WithContext(ctx).Exec(
		`UPDATE payout_requests SET clearing_ends_at = ?, updated_at = ? WHERE id = ?`,
		clearingEndsAt, now, requestID,
	).Error; err != nil {
		return time.Time{}, err
	}
	return clearingEndsAt, nil
}

type dueRequest struct {
	ID      snowflake.ID
	OwnerID snowflake.ID
}

// RunOnce sweeps approved requests whose clearing period elapsed and pays
// them out. Safe to re-run after a crash: entries already paid are no-ops.
// Returns the number of requests transitioned to paid.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	start := s.clock.Now()
	runID := uuid.NewString()
	log := s.log.With(zap.String("run_id", runID))

	due, err := s.fetchDueRequests(ctx, start)
	if err != nil {
		s.obsMetrics.ObserveSweep(time.Since(start), 0)
		return 0, err
	}

	// Each request pays out in its own transaction so one bad request never
	// rolls back the rest of the batch.
	var paid int
	for _, req := range due {
		var done bool
		txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var payErr error
			done, payErr = s.payOut(ctx, tx, req, start)
			return payErr
		})
		if txErr != nil {
			log.Error("payout finalization failed",
				zap.String("payout_request_id", req.ID.String()),
				zap.Error(txErr),
			)
			err = errors.Join(err, txErr)
			continue
		}
		if done {
			paid++
		}
	}

	s.obsMetrics.ObserveSweep(time.Since(start), paid)
	if paid > 0 {
		log.Info("clearing sweep finished",
			zap.Int("paid", paid),
			zap.Duration("elapsed", time.Since(start)),
		)
	}

	if s.drainer != nil {
		if dispatched, drainErr := s.drainer.DispatchPending(ctx); drainErr != nil {
			log.Warn("penalty outbox drain failed",
				zap.Int("dispatched", dispatched),
				zap.Error(drainErr),
			)
		}
	}

	return paid, err
}

// fetchDueRequests lists approved requests whose clearing period elapsed,
// skipping any whose owner gained a permanent fraud marker after approval.
// Those stay approved for manual handling.
func (s *Scheduler) fetchDueRequests(ctx context.Context, now time.Time) ([]dueRequest, error) {
	var due []dueRequest
	err := s.db.WithContext(ctx).Raw(
		`SELECT pr.id, pr.owner_id
		 FROM payout_requests pr
		 WHERE pr.status = ?
		   AND pr.clearing_ends_at IS NOT NULL
		   AND pr.clearing_ends_at <= ?
		   AND NOT EXISTS (
			   SELECT 1 FROM owner_fraud_stats ofs
			   WHERE ofs.owner_id = pr.owner_id
				 AND ofs.permanent_fraud
		   )
		 ORDER BY pr.clearing_ends_at ASC, pr.id ASC
		 LIMIT ?`,
		payoutdomain.StatusApproved,
		now,
		s.batchSize,
	).Scan(&due).Error
	if err != nil {
		return nil, err
	}
	return due, nil
}

// payOut claims one due request and finalizes it. Returns false when a
// concurrent sweep already took or finished it.
func (s *Scheduler) payOut(ctx context.Context, tx *gorm.DB, req dueRequest, now time.Time) (bool, error) {
	var claimed []dueRequest
	if err := tx.WithContext(ctx).Raw(
		`SELECT id, owner_id FROM payout_requests
		 WHERE id = ? AND status = ? AND clearing_ends_at <= ?
		 FOR UPDATE SKIP LOCKED`,
		req.ID,
		payoutdomain.StatusApproved,
		now,
	).Scan(&claimed).Error; err != nil {
		return false, err
	}
	if len(claimed) == 0 {
		return false, nil
	}

	if err := s.ledgerSvc.MarkPaid(ctx, tx, req.ID, now); err != nil {
		return false, err
	}
	result := tx.WithContext(ctx).Exec(
		`UPDATE payout_requests SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		payoutdomain.StatusPaid,
		now,
		req.ID,
		payoutdomain.StatusApproved,
	)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	s.obsMetrics.IncPayoutTransition(string(payoutdomain.StatusApproved), string(payoutdomain.StatusPaid))
	return true, nil
}

// RunForever runs the sweep on the configured interval until ctx is done.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Warn("clearing sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

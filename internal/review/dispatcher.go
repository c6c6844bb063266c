package review

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/clipverse/payrail/internal/clock"
	"github.com/clipverse/payrail/internal/config"
	obsmetrics "github.com/clipverse/payrail/internal/observability/metrics"
)

const dispatchBatchSize = 50

type DispatcherParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	DB         *gorm.DB
	Log        *zap.Logger
	Config     config.Config
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Dispatcher publishes queued penalty notifications to Kafka. At-least-once:
// a row only turns dispatched after the broker acknowledges the write, so a
// crash in between republishes on the next drain.
type Dispatcher struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	writer     *kafka.Writer
	obsMetrics *obsmetrics.Metrics
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	d := &Dispatcher{
		db:         p.DB,
		log:        p.Log.Named("review.dispatcher"),
		clock:      p.Clock,
		obsMetrics: p.ObsMetrics,
	}
	if !p.Config.Penalty.Enabled || len(p.Config.Penalty.KafkaBrokers) == 0 {
		d.log.Info("penalty dispatch disabled, outbox rows will accumulate")
		return d
	}

	d.writer = &kafka.Writer{
		Addr:                   kafka.TCP(p.Config.Penalty.KafkaBrokers...),
		Topic:                  p.Config.Penalty.Topic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           10 * time.Second,
	}
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return d.writer.Close()
		},
	})
	return d
}

// DispatchPending publishes up to one batch of pending outbox rows and
// returns how many were delivered.
func (d *Dispatcher) DispatchPending(ctx context.Context) (int, error) {
	if d.writer == nil {
		return 0, nil
	}

	var rows []PenaltyDispatch
	if err := d.db.WithContext(ctx).
		Where("status = ?", DispatchPending).
		Order("id").
		Limit(dispatchBatchSize).
		Find(&rows).Error; err != nil {
		return 0, err
	}

	var dispatched int
	var errs error
	for _, row := range rows {
		if err := d.publish(ctx, row); err != nil {
			d.obsMetrics.IncPenaltyDispatch("error")
			d.log.Warn("penalty publish failed",
				zap.String("payout_request_id", row.PayoutRequestID.String()),
				zap.Int64("attempts", row.Attempts+1),
				zap.Error(err),
			)
			errs = errors.Join(errs, d.recordFailure(ctx, row, err))
			continue
		}
		d.obsMetrics.IncPenaltyDispatch("ok")
		if err := d.markDispatched(ctx, row); err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		dispatched++
	}
	return dispatched, errs
}

func (d *Dispatcher) publish(ctx context.Context, row PenaltyDispatch) error {
	return d.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(row.OwnerID.String()),
		Value: row.Payload,
		Time:  d.clock.Now(),
	})
}

func (d *Dispatcher) markDispatched(ctx context.Context, row PenaltyDispatch) error {
	now := d.clock.Now()
	return d.db.WithContext(ctx).Exec(
		`UPDATE penalty_dispatches
		 SET status = ?, attempts = attempts + 1, last_error = NULL, dispatched_at = ?
		 WHERE id = ? AND status = ?`,
		DispatchDispatched, now, row.ID, DispatchPending,
	).Error
}

func (d *Dispatcher) recordFailure(ctx context.Context, row PenaltyDispatch, cause error) error {
	msg := cause.Error()
	return d.db.WithContext(ctx).Exec(
		`UPDATE penalty_dispatches
		 SET attempts = attempts + 1, last_error = ?
		 WHERE id = ?`,
		msg, row.ID,
	).Error
}

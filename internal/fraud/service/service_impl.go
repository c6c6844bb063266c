package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/clipverse/payrail/internal/clock"
	"github.com/clipverse/payrail/internal/config"
	frauddomain "github.com/clipverse/payrail/internal/fraud/domain"
	obsmetrics "github.com/clipverse/payrail/internal/observability/metrics"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Config     config.Config
	GenID      *snowflake.Node
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	rules      []frauddomain.Rule
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) frauddomain.Service {
	// Rule order is fixed so the flag set for a given candidate is
	// deterministic across restarts.
	rules := []frauddomain.Rule{
		frauddomain.EngagementRule{MinRatio: p.Config.Fraud.MinEngagementRatio},
		frauddomain.VelocityRule{MaxMultiplier: p.Config.Fraud.VelocityMultiplier},
		frauddomain.NewCreatorRule{
			MinAgeDays: p.Config.Fraud.NewAccountMinAgeDays,
			AmountCap:  p.Config.Fraud.NewAccountAmountCap,
		},
		frauddomain.PreviousFraudRule{},
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("fraud.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		rules:      rules,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Evaluate(c frauddomain.Candidate) []frauddomain.FlagDraft {
	var drafts []frauddomain.FlagDraft
	for _, rule := range s.rules {
		if draft, hit := rule.Evaluate(c); hit {
			drafts = append(drafts, draft)
		}
	}
	return drafts
}

func (s *Service) InsertFlags(ctx context.Context, tx *gorm.DB, payoutRequestID snowflake.ID, drafts []frauddomain.FlagDraft) ([]frauddomain.FraudFlag, error) {
	if payoutRequestID == 0 {
		return nil, frauddomain.ErrInvalidOwner
	}
	if len(drafts) == 0 {
		return nil, nil
	}
	now := s.clock.Now()
	flags := make([]frauddomain.FraudFlag, 0, len(drafts))
	for _, d := range drafts {
		flags = append(flags, frauddomain.FraudFlag{
			ID:              s.genID.Generate(),
			PayoutRequestID: payoutRequestID,
			FlagType:        d.FlagType,
			DetectedValue:   d.DetectedValue,
			ThresholdValue:  d.ThresholdValue,
			Status:          frauddomain.FlagPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}
	if err := s.conn(tx).WithContext(ctx).Create(&flags).Error; err != nil {
		return nil, err
	}
	for _, f := range flags {
		s.obsMetrics.IncFraudFlag(string(f.FlagType))
	}
	return flags, nil
}

func (s *Service) ResolveFlags(ctx context.Context, tx *gorm.DB, payoutRequestID snowflake.ID, status frauddomain.FlagStatus) (int64, error) {
	if status != frauddomain.FlagDismissed && status != frauddomain.FlagConfirmed {
		return 0, frauddomain.ErrFlagsResolved
	}
	result := s.conn(tx).WithContext(ctx).Exec(
		`UPDATE fraud_flags
		 SET status = ?, updated_at = ?
		 WHERE payout_request_id = ? AND status = ?`,
		status,
		s.clock.Now(),
		payoutRequestID,
		frauddomain.FlagPending,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (s *Service) ListByPayoutRequest(ctx context.Context, payoutRequestID snowflake.ID) ([]frauddomain.FraudFlag, error) {
	var flags []frauddomain.FraudFlag
	err := s.db.WithContext(ctx).
		Where("payout_request_id = ?", payoutRequestID).
		Order("id").
		Find(&flags).Error
	return flags, err
}

func (s *Service) Stats(ctx context.Context, tx *gorm.DB, ownerID snowflake.ID) (*frauddomain.OwnerFraudStats, error) {
	if ownerID == 0 {
		return nil, frauddomain.ErrInvalidOwner
	}
	var stats frauddomain.OwnerFraudStats
	err := s.conn(tx).WithContext(ctx).First(&stats, "owner_id = ?", ownerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &frauddomain.OwnerFraudStats{OwnerID: ownerID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *Service) IncrementConfirmed(ctx context.Context, tx *gorm.DB, ownerID snowflake.ID) (*frauddomain.OwnerFraudStats, error) {
	if ownerID == 0 {
		return nil, frauddomain.ErrInvalidOwner
	}
	conn := s.conn(tx)
	now := s.clock.Now()

	// The counter only ever grows and the permanent marker never clears.
	result := conn.WithContext(ctx).Exec(
		`INSERT INTO owner_fraud_stats (owner_id, confirmed_count, permanent_fraud, updated_at)
		 VALUES (?, 1, ?, ?)
		 ON CONFLICT (owner_id) DO UPDATE SET
			confirmed_count = owner_fraud_stats.confirmed_count + 1,
			permanent_fraud = owner_fraud_stats.permanent_fraud OR owner_fraud_stats.confirmed_count + 1 >= ?,
			updated_at = ?`,
		ownerID,
		1 >= frauddomain.PermanentFraudThreshold,
		now,
		frauddomain.PermanentFraudThreshold,
		now,
	)
	if result.Error != nil {
		return nil, result.Error
	}

	var stats frauddomain.OwnerFraudStats
	if err := conn.WithContext(ctx).First(&stats, "owner_id = ?", ownerID).Error; err != nil {
		return nil, err
	}
	if stats.PermanentFraud {
		s.log.Warn("owner marked permanently fraudulent",
			zap.String("owner_id", ownerID.String()),
			zap.Int64("confirmed_count", stats.ConfirmedCount),
		)
	}
	return &stats, nil
}

func (s *Service) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

package evidence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/clipverse/payrail/internal/clock"
	"github.com/clipverse/payrail/internal/config"
	obsmetrics "github.com/clipverse/payrail/internal/observability/metrics"
	payoutdomain "github.com/clipverse/payrail/internal/payout/domain"
)

var (
	ErrInvalidKind     = errors.New("invalid_kind")
	ErrInvalidLocator  = errors.New("invalid_locator")
	ErrRequestNotFound = errors.New("not_found")

	// ErrWindowClosed means the evidence deadline passed before the first
	// item arrived. The request stays adjudicable on the record.
	ErrWindowClosed = errors.New("state_error")

	// ErrLimitReached rejects submissions past the per-request item cap.
	ErrLimitReached = errors.New("evidence_limit_reached")

	// ErrNotCollecting means the request is not in a state that accepts
	// evidence at all.
	ErrNotCollecting = errors.New("state_error")
)

// Kind classifies an evidence item.
type Kind string

const (
	KindRecording Kind = "recording"
	KindLink      Kind = "link"
)

// ReviewApproved marks items the adjudicator accepted.
const ReviewApproved = "approved"

// Item is one piece of creator-submitted proof. Append-only.
type Item struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	PayoutRequestID snowflake.ID `gorm:"not null;index:ix_fraud_evidence_request" json:"payout_request_id"`
	Kind            Kind         `gorm:"type:text;not null" json:"kind"`
	Locator         string       `gorm:"not null" json:"locator"`
	UploadedAt      time.Time    `gorm:"not null" json:"uploaded_at"`
	ReviewStatus    *string      `json:"review_status,omitempty"`
}

// TableName sets the database table name.
func (Item) TableName() string { return "fraud_evidence" }

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Config     config.Config
	GenID      *snowflake.Node
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Service collects evidence against flagged payout requests during the
// submission window.
type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	maxItems   int
	genID      *snowflake.Node
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("evidence.service"),
		maxItems:   p.Config.Settlement.EvidenceMaxItems,
		genID:      p.GenID,
		clock:      p.Clock,
		obsMetrics: p.ObsMetrics,
	}
}

// Submit appends one evidence item. The first item moves the request from
// pending_evidence to pending_review; later items are additive and do not
// re-trigger the deadline.
func (s *Service) Submit(ctx context.Context, payoutRequestID snowflake.ID, kind Kind, locator string) (*Item, error) {
	if kind != KindRecording && kind != KindLink {
		return nil, ErrInvalidKind
	}
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return nil, ErrInvalidLocator
	}

	var item Item
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req payoutdomain.PayoutRequest
		if err := tx.First(&req, "id = ?", payoutRequestID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRequestNotFound
			}
			return err
		}

		now := s.clock.Now()
		switch req.Status {
		case payoutdomain.StatusPendingEvidence:
			if req.EvidenceDeadline != nil && now.After(*req.EvidenceDeadline) {
				return ErrWindowClosed
			}
		case payoutdomain.StatusPendingReview:
			// Additive submissions stay open while the request awaits its
			// reviewer.
		default:
			return ErrNotCollecting
		}

		var count int64
		if err := tx.Model(&Item{}).
			Where("payout_request_id = ?", payoutRequestID).
			Count(&count).Error; err != nil {
			return err
		}
		if count >= int64(s.maxItems) {
			return ErrLimitReached
		}

		item = Item{
			ID:              s.genID.Generate(),
			PayoutRequestID: payoutRequestID,
			Kind:            kind,
			Locator:         locator,
			UploadedAt:      now,
		}
		if err := tx.Create(&item).Error; err != nil {
			return err
		}

		if req.Status == payoutdomain.StatusPendingEvidence {
			result := tx.Exec(
				`UPDATE payout_requests
				 SET status = ?, auto_approval_status = ?, updated_at = ?
				 WHERE id = ? AND status = ?`,
				payoutdomain.StatusPendingReview,
				payoutdomain.AutoPendingReview,
				now,
				payoutRequestID,
				payoutdomain.StatusPendingEvidence,
			)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected > 0 {
				s.obsMetrics.IncPayoutTransition(
					string(payoutdomain.StatusPendingEvidence),
					string(payoutdomain.StatusPendingReview),
				)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("evidence submitted",
		zap.String("payout_request_id", payoutRequestID.String()),
		zap.String("kind", string(kind)),
	)
	return &item, nil
}

// ListByRequest returns all items for a request in submission order.
func (s *Service) ListByRequest(ctx context.Context, payoutRequestID snowflake.ID) ([]Item, error) {
	var items []Item
	err := s.db.WithContext(ctx).
		Where("payout_request_id = ?", payoutRequestID).
		Order("id").
		Find(&items).Error
	return items, err
}

// MarkReviewed stamps every item of a request with the adjudication outcome.
// Runs in the caller's transaction.
func (s *Service) MarkReviewed(ctx context.Context, tx *gorm.DB, payoutRequestID snowflake.ID, status string) error {
	conn := tx
	if conn == nil {
		conn = s.db
	}
	return conn.WithContext(ctx).Exec(
		`UPDATE fraud_evidence SET review_status = ? WHERE payout_request_id = ?`,
		status, payoutRequestID,
	).Error
}

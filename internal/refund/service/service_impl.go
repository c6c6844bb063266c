package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/clipverse/payrail/internal/clock"
	refunddomain "github.com/clipverse/payrail/internal/refund/domain"
	sessiondomain "github.com/clipverse/payrail/internal/session/domain"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	SessionSvc sessiondomain.Service
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	sessionSvc sessiondomain.Service
}

func NewService(p Params) refunddomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("refund.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		sessionSvc: p.SessionSvc,
	}
}

func (s *Service) Create(ctx context.Context, req refunddomain.CreateRefundRequest) (*refunddomain.RefundRequest, error) {
	if req.RequesterID == 0 {
		return nil, refunddomain.ErrInvalidRequester
	}
	if req.AmountRequested <= 0 {
		return nil, refunddomain.ErrInvalidAmount
	}
	if (req.PurchaseID == nil) == (req.SessionID == nil) {
		return nil, refunddomain.ErrInvalidTarget
	}
	if req.SessionID != nil {
		if _, err := s.sessionSvc.Get(ctx, *req.SessionID); err != nil {
			return nil, err
		}
	}

	now := s.clock.Now()
	refund := refunddomain.RefundRequest{
		ID:              s.genID.Generate(),
		RequesterID:     req.RequesterID,
		PurchaseID:      req.PurchaseID,
		SessionID:       req.SessionID,
		AmountRequested: req.AmountRequested,
		Status:          refunddomain.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.db.WithContext(ctx).Create(&refund).Error; err != nil {
		return nil, err
	}

	s.log.Info("refund requested",
		zap.String("refund_id", refund.ID.String()),
		zap.String("requester_id", req.RequesterID.String()),
		zap.Int64("amount_requested", req.AmountRequested),
	)
	return &refund, nil
}

func (s *Service) Decide(ctx context.Context, id snowflake.ID, d refunddomain.Decision) (*refunddomain.RefundRequest, error) {
	if strings.TrimSpace(d.DecidedBy) == "" {
		return nil, refunddomain.ErrInvalidDecider
	}

	var out refunddomain.RefundRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var refund refunddomain.RefundRequest
		if err := tx.First(&refund, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return refunddomain.ErrNotFound
			}
			return err
		}
		if refund.Status != refunddomain.StatusPending {
			return refunddomain.ErrInvalidState
		}

		status := refunddomain.StatusDenied
		var amountApproved *int64
		if d.Approve {
			if d.AmountApproved <= 0 || d.AmountApproved > refund.AmountRequested {
				return refunddomain.ErrInvalidAmount
			}
			status = refunddomain.StatusApproved
			amountApproved = &d.AmountApproved
		}

		now := s.clock.Now()
		result := tx.Exec(
			`UPDATE refund_requests
			 SET status = ?, amount_approved = ?, decided_by = ?, decided_at = ?, updated_at = ?
			 WHERE id = ? AND status = ?`,
			status, amountApproved, d.DecidedBy, now, now,
			id, refunddomain.StatusPending,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return refunddomain.ErrInvalidState
		}

		return tx.First(&out, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}

	// The session transition runs its own transaction, so it follows the
	// committed decision rather than riding inside it.
	if d.Approve && out.SessionID != nil {
		if err := s.abandonSession(ctx, *out.SessionID); err != nil {
			s.log.Warn("session abandon after refund approval failed",
				zap.String("refund_id", id.String()),
				zap.String("session_id", out.SessionID.String()),
				zap.Error(err),
			)
		}
	}

	s.log.Info("refund decided",
		zap.String("refund_id", id.String()),
		zap.String("status", string(out.Status)),
		zap.String("decided_by", d.DecidedBy),
	)
	return &out, nil
}

// abandonSession cancels an unsettled session so a buyer-funded reservation
// flows back to the wallet. A session past the point of cancellation keeps
// its state; the refund is then money-side only.
func (s *Service) abandonSession(ctx context.Context, sessionID snowflake.ID) error {
	sess, err := s.sessionSvc.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.SettledEntryID != nil || !sessiondomain.CanTransition(sess.Status, sessiondomain.StatusCancelled) {
		return nil
	}
	if _, err := s.sessionSvc.Transition(ctx, sessionID, sessiondomain.StatusCancelled); err != nil {
		if errors.Is(err, sessiondomain.ErrInvalidTransition) {
			return nil
		}
		return err
	}
	return nil
}

func (s *Service) MarkProcessed(ctx context.Context, id snowflake.ID) (*refunddomain.RefundRequest, error) {
	now := s.clock.Now()
	result := s.db.WithContext(ctx).Exec(
		`UPDATE refund_requests SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		refunddomain.StatusProcessed, now, id, refunddomain.StatusApproved,
	)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		refund, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if refund.Status == refunddomain.StatusProcessed {
			return refund, nil
		}
		return nil, refunddomain.ErrInvalidState
	}
	return s.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*refunddomain.RefundRequest, error) {
	var refund refunddomain.RefundRequest
	err := s.db.WithContext(ctx).First(&refund, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, refunddomain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

func (s *Service) ListByRequester(ctx context.Context, requesterID snowflake.ID) ([]refunddomain.RefundRequest, error) {
	var refunds []refunddomain.RefundRequest
	err := s.db.WithContext(ctx).
		Where("requester_id = ?", requesterID).
		Order("id").
		Find(&refunds).Error
	return refunds, err
}

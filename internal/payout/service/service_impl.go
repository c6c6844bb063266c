package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/clipverse/payrail/internal/clearing"
	"github.com/clipverse/payrail/internal/clock"
	"github.com/clipverse/payrail/internal/config"
	frauddomain "github.com/clipverse/payrail/internal/fraud/domain"
	ledgerdomain "github.com/clipverse/payrail/internal/ledger/domain"
	obsmetrics "github.com/clipverse/payrail/internal/observability/metrics"
	payoutdomain "github.com/clipverse/payrail/internal/payout/domain"
	"github.com/clipverse/payrail/internal/providers/trust"
	"github.com/clipverse/payrail/pkg/db/pagination"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Config     config.Config
	GenID      *snowflake.Node
	Clock      clock.Clock
	LedgerSvc  ledgerdomain.Service
	FraudSvc   frauddomain.Service
	TrustSvc   trust.Provider
	Scheduler  *clearing.Scheduler
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        config.SettlementConfig
	genID      *snowflake.Node
	clock      clock.Clock
	ledgerSvc  ledgerdomain.Service
	fraudSvc   frauddomain.Service
	trustSvc   trust.Provider
	scheduler  *clearing.Scheduler
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) payoutdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payout.service"),
		cfg:        p.Config.Settlement,
		genID:      p.GenID,
		clock:      p.Clock,
		ledgerSvc:  p.LedgerSvc,
		fraudSvc:   p.FraudSvc,
		trustSvc:   p.TrustSvc,
		scheduler:  p.Scheduler,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) RequestPayout(ctx context.Context, ownerID snowflake.ID, entryIDs []snowflake.ID) (*payoutdomain.RequestPayoutResult, error) {
	if ownerID == 0 {
		return nil, payoutdomain.ErrInvalidOwner
	}
	if len(entryIDs) == 0 {
		return nil, payoutdomain.ErrInvalidEntrySet
	}

	now := s.clock.Now()
	requestID := s.genID.Generate()
	result := &payoutdomain.RequestPayoutResult{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req := payoutdomain.PayoutRequest{
			ID:                 requestID,
			OwnerID:            ownerID,
			Currency:           s.cfg.Currency,
			Status:             payoutdomain.StatusRequested,
			AutoApprovalStatus: payoutdomain.AutoPendingReview,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := tx.Create(&req).Error; err != nil {
			return err
		}

		total, err := s.ledgerSvc.LockForPayout(ctx, tx, ownerID, entryIDs, requestID, now)
		if err != nil {
			return err
		}
		req.TotalAmount = total

		status, auto, deadline, flags, err := s.screen(ctx, tx, &req, now)
		if err != nil {
			return err
		}

		if err := tx.Exec(
			`UPDATE payout_requests
			 SET total_amount = ?, status = ?, auto_approval_status = ?, evidence_deadline = ?, updated_at = ?
			 WHERE id = ?`,
			total, status, auto, deadline, now, requestID,
		).Error; err != nil {
			return err
		}

		if status == payoutdomain.StatusApproved {
			clearingEndsAt, err := s.scheduler.Schedule(ctx, tx, requestID, now)
			if err != nil {
				return err
			}
			req.ClearingEndsAt = &clearingEndsAt
		}

		req.Status = status
		req.AutoApprovalStatus = auto
		req.EvidenceDeadline = deadline
		result.Request = &req
		result.Flags = flags
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.IncPayoutTransition(string(payoutdomain.StatusRequested), string(result.Request.Status))
	s.log.Info("payout requested",
		zap.String("payout_request_id", requestID.String()),
		zap.String("owner_id", ownerID.String()),
		zap.Int64("total_amount", result.Request.TotalAmount),
		zap.String("status", string(result.Request.Status)),
		zap.Int("flags", len(result.Flags)),
	)
	return result, nil
}

// screen runs the fraud rules once against the freshly locked request. Any
// flag parks the request behind the evidence window; a clean screen approves
// it outright. A profile store failure never approves: the request falls
// back to manual review with auto approval marked failed.
func (s *Service) screen(ctx context.Context, tx *gorm.DB, req *payoutdomain.PayoutRequest, now time.Time) (payoutdomain.PayoutStatus, payoutdomain.AutoApprovalStatus, *time.Time, []frauddomain.FraudFlag, error) {
	stats, err := s.fraudSvc.Stats(ctx, tx, req.OwnerID)
	if err != nil {
		return "", "", nil, nil, err
	}

	profile, err := s.trustSvc.Profile(ctx, req.OwnerID)
	if err != nil {
		s.log.Warn("trust profile lookup failed, routing to manual review",
			zap.String("owner_id", req.OwnerID.String()),
			zap.Error(err),
		)
		return payoutdomain.StatusPendingReview, payoutdomain.AutoFailed, nil, nil, nil
	}

	drafts := s.fraudSvc.Evaluate(frauddomain.Candidate{
		OwnerID:             req.OwnerID,
		TotalAmount:         req.TotalAmount,
		Profile:             profile,
		PriorConfirmedFlags: stats.ConfirmedCount,
	})
	if len(drafts) == 0 {
		return payoutdomain.StatusApproved, payoutdomain.AutoApproved, nil, nil, nil
	}

	flags, err := s.fraudSvc.InsertFlags(ctx, tx, req.ID, drafts)
	if err != nil {
		return "", "", nil, nil, err
	}
	deadline := now.Add(s.cfg.EvidenceWindow)
	return payoutdomain.StatusPendingEvidence, payoutdomain.AutoPendingEvidence, &deadline, flags, nil
}

func (s *Service) Cancel(ctx context.Context, id snowflake.ID) (*payoutdomain.PayoutRequest, error) {
	var out payoutdomain.PayoutRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req payoutdomain.PayoutRequest
		if err := tx.First(&req, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return payoutdomain.ErrNotFound
			}
			return err
		}
		if req.Status.Terminal() {
			return payoutdomain.ErrTerminalState
		}

		now := s.clock.Now()
		result := tx.Exec(
			`UPDATE payout_requests SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			payoutdomain.StatusCancelled, now, id, req.Status,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return payoutdomain.ErrTerminalState
		}

		if err := s.ledgerSvc.Unlock(ctx, tx, id, now); err != nil {
			return err
		}

		s.obsMetrics.IncPayoutTransition(string(req.Status), string(payoutdomain.StatusCancelled))
		return tx.First(&out, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payout cancelled", zap.String("payout_request_id", id.String()))
	return &out, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*payoutdomain.Detail, error) {
	var req payoutdomain.PayoutRequest
	err := s.db.WithContext(ctx).First(&req, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, payoutdomain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	entries, err := s.ledgerSvc.ListByPayoutRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	flags, err := s.fraudSvc.ListByPayoutRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	return &payoutdomain.Detail{Request: &req, Entries: entries, Flags: flags}, nil
}

func (s *Service) List(ctx context.Context, req payoutdomain.ListRequest) (*payoutdomain.ListResponse, error) {
	pageSize := req.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&payoutdomain.PayoutRequest{})
	if req.OwnerID != 0 {
		query = query.Where("owner_id = ?", req.OwnerID)
	}
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if req.Pagination.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.Pagination.PageToken)
		if err != nil {
			return nil, payoutdomain.ErrInvalidEntrySet
		}
		lastID, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return nil, payoutdomain.ErrInvalidEntrySet
		}
		query = query.Where("id < ?", lastID)
	}

	var requests []payoutdomain.PayoutRequest
	if err := query.Order("id DESC").Limit(pageSize + 1).Find(&requests).Error; err != nil {
		return nil, err
	}

	resp := &payoutdomain.ListResponse{}
	if len(requests) > pageSize {
		requests = requests[:pageSize]
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID: requests[len(requests)-1].ID.String(),
		})
		if err != nil {
			return nil, err
		}
		resp.PageInfo = pagination.PageInfo{NextPageToken: token, HasMore: true}
	}
	resp.Requests = requests
	return resp, nil
}

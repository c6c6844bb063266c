package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/clipverse/payrail/internal/cache"
	commissiondomain "github.com/clipverse/payrail/internal/commission/domain"
	"github.com/clipverse/payrail/internal/config"
)

// Resolved rates may be up to resolveTTL stale after a rate change.
const resolveTTL = 30 * time.Second

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Config config.Config
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	defaults config.CommissionConfig
	resolved cache.Cache[string, commissiondomain.EffectiveRates]
}

func NewService(p Params) commissiondomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("commission.service"),
		genID:    p.GenID,
		defaults: p.Config.Commission,
		resolved: cache.NewTTLCache[string, commissiondomain.EffectiveRates](),
	}
}

func (s *Service) Resolve(ctx context.Context, sellerID, communityID snowflake.ID) (commissiondomain.EffectiveRates, error) {
	key := fmt.Sprintf("%d:%d", sellerID, communityID)
	if rates, ok := s.resolved.Get(key); ok {
		return rates, nil
	}

	platformBps, err := s.resolveFee(ctx, commissiondomain.FeePlatform, sellerID, communityID, s.defaults.PlatformFeeBps)
	if err != nil {
		return commissiondomain.EffectiveRates{}, err
	}
	communityBps, err := s.resolveFee(ctx, commissiondomain.FeeCommunity, sellerID, communityID, s.defaults.CommunityFeeBps)
	if err != nil {
		return commissiondomain.EffectiveRates{}, err
	}

	rates := commissiondomain.EffectiveRates{
		PlatformFeeBps:  platformBps,
		CommunityFeeBps: communityBps,
	}
	s.resolved.Set(key, rates, resolveTTL)
	return rates, nil
}

func (s *Service) resolveFee(ctx context.Context, feeType commissiondomain.FeeType, sellerID, communityID snowflake.ID, def int64) (int64, error) {
	type scopeProbe struct {
		scopeType commissiondomain.ScopeType
		scopeID   snowflake.ID
	}
	probes := make([]scopeProbe, 0, 3)
	if sellerID != 0 {
		probes = append(probes, scopeProbe{commissiondomain.ScopeSeller, sellerID})
	}
	if communityID != 0 {
		probes = append(probes, scopeProbe{commissiondomain.ScopeCommunity, communityID})
	}
	probes = append(probes, scopeProbe{commissiondomain.ScopePlatform, 0})

	for _, probe := range probes {
		var rate commissiondomain.CommissionRate
		err := s.db.WithContext(ctx).
			Where("scope_type = ? AND scope_id = ? AND fee_type = ?", probe.scopeType, probe.scopeID, feeType).
			First(&rate).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return rate.BpsValue, nil
	}
	return def, nil
}

func (s *Service) ComputeSplit(ctx context.Context, totalAmount int64, sellerID, communityID snowflake.ID) (commissiondomain.SplitResult, error) {
	rates, err := s.Resolve(ctx, sellerID, communityID)
	if err != nil {
		return commissiondomain.SplitResult{}, err
	}
	return commissiondomain.Split(totalAmount, rates.PlatformFeeBps, rates.CommunityFeeBps)
}

func (s *Service) SetRate(ctx context.Context, req commissiondomain.SetRateRequest) (*commissiondomain.CommissionRate, error) {
	switch req.ScopeType {
	case commissiondomain.ScopePlatform:
		if req.ScopeID != 0 {
			return nil, commissiondomain.ErrInvalidScope
		}
	case commissiondomain.ScopeCommunity, commissiondomain.ScopeSeller:
		if req.ScopeID == 0 {
			return nil, commissiondomain.ErrInvalidScope
		}
	default:
		return nil, commissiondomain.ErrInvalidScope
	}
	switch req.FeeType {
	case commissiondomain.FeePlatform, commissiondomain.FeeCommunity:
	default:
		return nil, commissiondomain.ErrInvalidScope
	}
	if req.BpsValue < 0 || req.BpsValue > 10000 {
		return nil, commissiondomain.ErrInvalidBps
	}
	changedBy := strings.TrimSpace(req.ChangedBy)
	if changedBy == "" {
		return nil, commissiondomain.ErrInvalidActor
	}

	now := time.Now().UTC()
	rateID := s.genID.Generate()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current commissiondomain.CommissionRate
		var oldBps *int64
		err := tx.WithContext(ctx).
			Where("scope_type = ? AND scope_id = ? AND fee_type = ?", req.ScopeType, req.ScopeID, req.FeeType).
			First(&current).Error
		switch {
		case err == nil:
			v := current.BpsValue
			oldBps = &v
			if err := tx.WithContext(ctx).Exec(
				`UPDATE commission_rates
				 SET bps_value = ?, changed_by = ?, changed_at = ?
				 WHERE scope_type = ? AND scope_id = ? AND fee_type = ?`,
				req.BpsValue,
				changedBy,
				now,
				req.ScopeType,
				req.ScopeID,
				req.FeeType,
			).Error; err != nil {
				return err
			}
			rateID = current.ID
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.WithContext(ctx).Exec(
				`INSERT INTO commission_rates (id, scope_type, scope_id, fee_type, bps_value, changed_by, changed_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				rateID,
				req.ScopeType,
				req.ScopeID,
				req.FeeType,
				req.BpsValue,
				changedBy,
				now,
			).Error; err != nil {
				return err
			}
		default:
			return err
		}

		return tx.WithContext(ctx).Exec(
			`INSERT INTO commission_changes (id, scope_type, scope_id, fee_type, old_bps, new_bps, changed_by, changed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			s.genID.Generate(),
			req.ScopeType,
			req.ScopeID,
			req.FeeType,
			oldBps,
			req.BpsValue,
			changedBy,
			now,
		).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("commission rate changed",
		zap.String("scope_type", string(req.ScopeType)),
		zap.String("scope_id", req.ScopeID.String()),
		zap.String("fee_type", string(req.FeeType)),
		zap.Int64("bps", req.BpsValue),
		zap.String("changed_by", changedBy),
	)

	var rate commissiondomain.CommissionRate
	if err := s.db.WithContext(ctx).First(&rate, "id = ?", rateID).Error; err != nil {
		return nil, err
	}
	return &rate, nil
}

func (s *Service) ListChanges(ctx context.Context, req commissiondomain.ListChangesRequest) ([]commissiondomain.CommissionChange, error) {
	limit := req.Limit
	if limit <= 0 || limit > 250 {
		limit = 50
	}
	stmt := s.db.WithContext(ctx).Model(&commissiondomain.CommissionChange{})
	if req.ScopeType != "" {
		stmt = stmt.Where("scope_type = ?", req.ScopeType)
	}
	if req.ScopeID != 0 {
		stmt = stmt.Where("scope_id = ?", req.ScopeID)
	}
	if req.FeeType != "" {
		stmt = stmt.Where("fee_type = ?", req.FeeType)
	}

	var changes []commissiondomain.CommissionChange
	err := stmt.Order("changed_at DESC, id DESC").Limit(limit).Find(&changes).Error
	return changes, err
}

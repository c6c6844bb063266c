package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/clipverse/payrail/internal/clock"
	"github.com/clipverse/payrail/internal/config"
	ledgerdomain "github.com/clipverse/payrail/internal/ledger/domain"
	sessiondomain "github.com/clipverse/payrail/internal/session/domain"
	walletdomain "github.com/clipverse/payrail/internal/wallet/domain"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Config  config.Config
	GenID   *snowflake.Node
	Clock   clock.Clock
	Ledger  ledgerdomain.Service
	Wallets walletdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	currency string
	genID    *snowflake.Node
	clock    clock.Clock
	ledger   ledgerdomain.Service
	wallets  walletdomain.Service
}

func NewService(p Params) sessiondomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("session.service"),
		currency: p.Config.Settlement.Currency,
		genID:    p.GenID,
		clock:    p.Clock,
		ledger:   p.Ledger,
		wallets:  p.Wallets,
	}
}

func (s *Service) Create(ctx context.Context, req sessiondomain.CreateSessionRequest) (*sessiondomain.Session, error) {
	if req.BuyerID == 0 || req.SellerID == 0 || req.BuyerID == req.SellerID {
		return nil, sessiondomain.ErrInvalidParticipants
	}
	if req.Units <= 0 {
		return nil, sessiondomain.ErrInvalidUnits
	}
	if req.PricePerUnit <= 0 {
		return nil, sessiondomain.ErrInvalidPrice
	}

	// A buyer-funded session holds its units from booking until completion
	// or abandonment.
	if req.BuyerFunded {
		if err := s.wallets.Reserve(ctx, req.BuyerID, req.SellerID, req.Units); err != nil {
			return nil, err
		}
	}

	now := s.clock.Now()
	sess := sessiondomain.Session{
		ID:           s.genID.Generate(),
		BuyerID:      req.BuyerID,
		SellerID:     req.SellerID,
		CommunityID:  req.CommunityID,
		Units:        req.Units,
		PricePerUnit: req.PricePerUnit,
		Status:       sessiondomain.StatusRequested,
		BuyerFunded:  req.BuyerFunded,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(&sess).Error; err != nil {
		if req.BuyerFunded {
			if relErr := s.wallets.Release(ctx, nil, req.BuyerID, req.SellerID, req.Units); relErr != nil {
				s.log.Error("failed to release reservation after create failure",
					zap.String("buyer_id", req.BuyerID.String()),
					zap.Error(relErr),
				)
			}
		}
		return nil, err
	}

	s.log.Info("session created",
		zap.String("session_id", sess.ID.String()),
		zap.String("seller_id", sess.SellerID.String()),
		zap.Int64("units", sess.Units),
		zap.Bool("buyer_funded", sess.BuyerFunded),
	)
	return &sess, nil
}

func (s *Service) Transition(ctx context.Context, id snowflake.ID, to sessiondomain.SessionStatus) (*sessiondomain.Session, error) {
	var out sessiondomain.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sess sessiondomain.Session
		if err := tx.First(&sess, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return sessiondomain.ErrSessionNotFound
			}
			return err
		}
		if !sessiondomain.CanTransition(sess.Status, to) {
			return sessiondomain.ErrInvalidTransition
		}

		now := s.clock.Now()
		result := tx.Exec(
			`UPDATE sessions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			to, now, id, sess.Status,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return sessiondomain.ErrTransitionConflict
		}

		if to == sessiondomain.StatusCompleted && sess.SettledEntryID == nil {
			if err := s.settle(ctx, tx, &sess, now); err != nil {
				return err
			}
		}
		if sess.BuyerFunded && sess.SettledEntryID == nil && sessiondomain.ReleasesReservation(to) {
			if err := s.wallets.Release(ctx, tx, sess.BuyerID, sess.SellerID, sess.Units); err != nil {
				return err
			}
		}

		if err := tx.First(&out, "id = ?", id).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("session transitioned",
		zap.String("session_id", id.String()),
		zap.String("status", string(out.Status)),
	)
	return &out, nil
}

// settle posts the session's single ledger entry and, for buyer-funded
// sessions, burns the reservation in the same transaction. The entry's
// source ref is derived from the session id so a replay resolves to the
// existing entry instead of settling twice.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, sess *sessiondomain.Session, now time.Time) error {
	entry, err := s.ledger.CreateEntry(ctx, tx, ledgerdomain.CreateEntryRequest{
		OwnerID:   sess.SellerID,
		Amount:    sess.Units * sess.PricePerUnit,
		Currency:  s.currency,
		SourceRef: sessionSourceRef(sess.ID),
	})
	if err != nil {
		return err
	}

	result := tx.Exec(
		`UPDATE sessions SET settled_entry_id = ?, updated_at = ? WHERE id = ? AND settled_entry_id IS NULL`,
		entry.ID, now, sess.ID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return nil
	}

	if sess.BuyerFunded {
		if err := s.wallets.Consume(ctx, tx, sess.BuyerID, sess.SellerID, sess.Units); err != nil {
			return err
		}
	}

	s.log.Info("session settled",
		zap.String("session_id", sess.ID.String()),
		zap.String("entry_id", entry.ID.String()),
		zap.Int64("amount", sess.Units*sess.PricePerUnit),
	)
	return nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*sessiondomain.Session, error) {
	var sess sessiondomain.Session
	err := s.db.WithContext(ctx).First(&sess, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, sessiondomain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Service) ListBySeller(ctx context.Context, sellerID snowflake.ID, status sessiondomain.SessionStatus) ([]sessiondomain.Session, error) {
	query := s.db.WithContext(ctx).Where("seller_id = ?", sellerID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var sessions []sessiondomain.Session
	err := query.Order("id").Find(&sessions).Error
	return sessions, err
}

func sessionSourceRef(id snowflake.ID) string {
	return fmt.Sprintf("session:%s", id.String())
}

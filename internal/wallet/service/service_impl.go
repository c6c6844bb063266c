package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	walletdomain "github.com/clipverse/payrail/internal/wallet/domain"
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(p Params) walletdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("wallet.service"),
	}
}

func (s *Service) Purchase(ctx context.Context, holderID, sellerID snowflake.ID, units, pricePerUnit int64) (*walletdomain.WalletBalance, error) {
	if holderID == 0 {
		return nil, walletdomain.ErrInvalidHolder
	}
	if sellerID == 0 {
		return nil, walletdomain.ErrInvalidSeller
	}
	if units <= 0 {
		return nil, walletdomain.ErrInvalidUnits
	}
	if pricePerUnit < 0 {
		return nil, walletdomain.ErrInvalidPrice
	}

	cost := units * pricePerUnit
	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Exec(
		`INSERT INTO wallet_balances (
			holder_id, seller_id, balance_units, reserved_units, avg_purchase_price_per_unit, total_paid, updated_at
		) VALUES (?, ?, ?, 0, ?, ?, ?)
		ON CONFLICT (holder_id, seller_id) DO UPDATE SET
			balance_units = wallet_balances.balance_units + excluded.balance_units,
			total_paid = wallet_balances.total_paid + excluded.total_paid,
			avg_purchase_price_per_unit =
				(wallet_balances.total_paid + excluded.total_paid) / (wallet_balances.balance_units + excluded.balance_units),
			updated_at = excluded.updated_at`,
		holderID,
		sellerID,
		units,
		pricePerUnit,
		cost,
		now,
	).Error; err != nil {
		return nil, err
	}

	return s.Get(ctx, holderID, sellerID)
}

func (s *Service) Reserve(ctx context.Context, holderID, sellerID snowflake.ID, units int64) error {
	if err := validatePair(holderID, sellerID, units); err != nil {
		return err
	}

	result := s.db.WithContext(ctx).Exec(
		`UPDATE wallet_balances
		 SET reserved_units = reserved_units + ?, updated_at = ?
		 WHERE holder_id = ? AND seller_id = ? AND balance_units - reserved_units >= ?`,
		units,
		time.Now().UTC(),
		holderID,
		sellerID,
		units,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := s.Get(ctx, holderID, sellerID); err != nil {
			return err
		}
		return walletdomain.ErrInsufficientBalance
	}
	return nil
}

func (s *Service) Release(ctx context.Context, tx *gorm.DB, holderID, sellerID snowflake.ID, units int64) error {
	if err := validatePair(holderID, sellerID, units); err != nil {
		return err
	}
	conn := tx
	if conn == nil {
		conn = s.db
	}

	result := conn.WithContext(ctx).Exec(
		`UPDATE wallet_balances
		 SET reserved_units = reserved_units - ?, updated_at = ?
		 WHERE holder_id = ? AND seller_id = ? AND reserved_units >= ?`,
		units,
		time.Now().UTC(),
		holderID,
		sellerID,
		units,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if err := s.exists(ctx, conn, holderID, sellerID); err != nil {
			return err
		}
		return walletdomain.ErrReservationMismatch
	}
	return nil
}

func (s *Service) Consume(ctx context.Context, tx *gorm.DB, holderID, sellerID snowflake.ID, units int64) error {
	if err := validatePair(holderID, sellerID, units); err != nil {
		return err
	}
	conn := tx
	if conn == nil {
		conn = s.db
	}

	// Single statement so the SET expressions all read the pre-update row
	// (postgres and sqlite semantics). The consumed cost leaves total_paid at
	// the average purchase price and the average is recomputed over what
	// remains.
	result := conn.WithContext(ctx).Exec(
		`UPDATE wallet_balances
		 SET total_paid = total_paid - (? * avg_purchase_price_per_unit),
		     avg_purchase_price_per_unit = CASE
		         WHEN balance_units - ? > 0
		         THEN (total_paid - (? * avg_purchase_price_per_unit)) / (balance_units - ?)
		         ELSE 0
		     END,
		     balance_units = balance_units - ?,
		     reserved_units = reserved_units - ?,
		     updated_at = ?
		 WHERE holder_id = ? AND seller_id = ? AND reserved_units >= ? AND balance_units >= ?`,
		units,
		units,
		units,
		units,
		units,
		units,
		time.Now().UTC(),
		holderID,
		sellerID,
		units,
		units,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if err := s.exists(ctx, conn, holderID, sellerID); err != nil {
			return err
		}
		return walletdomain.ErrReservationMismatch
	}
	return nil
}

// exists distinguishes a missing wallet from a failed conditional update,
// reading through the caller's connection so it never blocks on an open
// transaction.
func (s *Service) exists(ctx context.Context, conn *gorm.DB, holderID, sellerID snowflake.ID) error {
	var count int64
	err := conn.WithContext(ctx).Model(&walletdomain.WalletBalance{}).
		Where("holder_id = ? AND seller_id = ?", holderID, sellerID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return walletdomain.ErrNotFound
	}
	return nil
}

func (s *Service) Get(ctx context.Context, holderID, sellerID snowflake.ID) (*walletdomain.WalletBalance, error) {
	var balance walletdomain.WalletBalance
	err := s.db.WithContext(ctx).
		Where("holder_id = ? AND seller_id = ?", holderID, sellerID).
		First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, walletdomain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func (s *Service) ListByHolder(ctx context.Context, holderID snowflake.ID) ([]walletdomain.WalletBalance, error) {
	if holderID == 0 {
		return nil, walletdomain.ErrInvalidHolder
	}
	var balances []walletdomain.WalletBalance
	err := s.db.WithContext(ctx).
		Where("holder_id = ?", holderID).
		Order("seller_id").
		Find(&balances).Error
	return balances, err
}

func validatePair(holderID, sellerID snowflake.ID, units int64) error {
	if holderID == 0 {
		return walletdomain.ErrInvalidHolder
	}
	if sellerID == 0 {
		return walletdomain.ErrInvalidSeller
	}
	if units <= 0 {
		return walletdomain.ErrInvalidUnits
	}
	return nil
}

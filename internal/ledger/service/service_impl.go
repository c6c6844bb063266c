package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	ledgerdomain "github.com/clipverse/payrail/internal/ledger/domain"
	obsmetrics "github.com/clipverse/payrail/internal/observability/metrics"
	"github.com/clipverse/payrail/pkg/db"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) CreateEntry(ctx context.Context, tx *gorm.DB, req ledgerdomain.CreateEntryRequest) (*ledgerdomain.LedgerEntry, error) {
	if req.OwnerID == 0 {
		return nil, ledgerdomain.ErrInvalidOwner
	}
	if req.Amount <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return nil, ledgerdomain.ErrInvalidCurrency
	}
	sourceRef := strings.TrimSpace(req.SourceRef)
	if sourceRef == "" {
		return nil, ledgerdomain.ErrInvalidSourceRef
	}

	conn := s.conn(tx)
	entryID := s.genID.Generate()
	now := time.Now().UTC()
	result := conn.WithContext(ctx).Exec(
		`INSERT INTO ledger_entries (
			id, owner_id, amount, currency, source_ref, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_ref) DO NOTHING`,
		entryID,
		req.OwnerID,
		req.Amount,
		currency,
		sourceRef,
		ledgerdomain.StatusPending,
		now,
		now,
	)
	if result.Error != nil && !db.IsDuplicateKeyErr(result.Error) {
		return nil, result.Error
	}

	// Duplicate source refs resolve to the already-settled entry so that
	// repeated settlement submissions stay idempotent. Dialects that reject
	// the conflict clause surface the replay as a duplicate-key error.
	if result.Error != nil || result.RowsAffected == 0 {
		var existing ledgerdomain.LedgerEntry
		if err := conn.WithContext(ctx).
			Where("source_ref = ?", sourceRef).
			First(&existing).Error; err != nil {
			return nil, err
		}
		return &existing, nil
	}

	s.obsMetrics.IncLedgerTransition(string(ledgerdomain.StatusPending))
	s.log.Info("ledger entry created",
		zap.String("entry_id", entryID.String()),
		zap.String("owner_id", req.OwnerID.String()),
		zap.Int64("amount", req.Amount),
		zap.String("source_ref", sourceRef),
	)

	var entry ledgerdomain.LedgerEntry
	if err := conn.WithContext(ctx).First(&entry, "id = ?", entryID).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Service) LockForPayout(ctx context.Context, tx *gorm.DB, ownerID snowflake.ID, entryIDs []snowflake.ID, payoutRequestID snowflake.ID, now time.Time) (int64, error) {
	if ownerID == 0 {
		return 0, ledgerdomain.ErrInvalidOwner
	}
	if payoutRequestID == 0 || len(entryIDs) == 0 {
		return 0, ledgerdomain.ErrInvalidEntrySet
	}
	ids := dedupeIDs(entryIDs)
	conn := s.conn(tx)

	var existing int64
	if err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM ledger_entries WHERE id IN (?) AND owner_id = ?`,
		ids,
		ownerID,
	).Scan(&existing).Error; err != nil {
		return 0, err
	}
	if existing != int64(len(ids)) {
		return 0, ledgerdomain.ErrEntryNotFound
	}

	// The one mandatory atomic primitive in the pipeline: a conditional
	// update gated on status. A competing request that claimed any entry
	// first makes RowsAffected fall short and the whole claim fails.
	result := conn.WithContext(ctx).Exec(
		`UPDATE ledger_entries
		 SET status = ?, payout_request_id = ?, locked_at = ?, updated_at = ?
		 WHERE id IN (?) AND owner_id = ? AND status = ? AND payout_request_id IS NULL`,
		ledgerdomain.StatusLocked,
		payoutRequestID,
		now,
		now,
		ids,
		ownerID,
		ledgerdomain.StatusPending,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected != int64(len(ids)) {
		s.obsMetrics.IncLockConflict()
		return 0, ledgerdomain.ErrLockConflict
	}

	var total int64
	if err := conn.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE payout_request_id = ?`,
		payoutRequestID,
	).Scan(&total).Error; err != nil {
		return 0, err
	}

	s.obsMetrics.IncLedgerTransition(string(ledgerdomain.StatusLocked))
	return total, nil
}

func (s *Service) Unlock(ctx context.Context, tx *gorm.DB, payoutRequestID snowflake.ID, now time.Time) error {
	if payoutRequestID == 0 {
		return ledgerdomain.ErrInvalidEntrySet
	}
	result := s.conn(tx).WithContext(ctx).Exec(
		`UPDATE ledger_entries
		 SET status = ?, payout_request_id = NULL, locked_at = NULL, clearing_ends_at = NULL, updated_at = ?
		 WHERE payout_request_id = ? AND status IN (?, ?)`,
		ledgerdomain.StatusPending,
		now,
		payoutRequestID,
		ledgerdomain.StatusLocked,
		ledgerdomain.StatusCleared,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		s.obsMetrics.IncLedgerTransition(string(ledgerdomain.StatusPending))
	}
	return nil
}

func (s *Service) MarkCleared(ctx context.Context, tx *gorm.DB, payoutRequestID snowflake.ID, clearingEndsAt, now time.Time) error {
	if payoutRequestID == 0 {
		return ledgerdomain.ErrInvalidEntrySet
	}
	conn := s.conn(tx)
	result := conn.WithContext(ctx).Exec(
		`UPDATE ledger_entries
		 SET status = ?, clearing_ends_at = ?, updated_at = ?
		 WHERE payout_request_id = ? AND status = ?`,
		ledgerdomain.StatusCleared,
		clearingEndsAt,
		now,
		payoutRequestID,
		ledgerdomain.StatusLocked,
	)
	if result.Error != nil {
		return result.Error
	}

	var stragglers int64
	if err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM ledger_entries WHERE payout_request_id = ? AND status <> ?`,
		payoutRequestID,
		ledgerdomain.StatusCleared,
	).Scan(&stragglers).Error; err != nil {
		return err
	}
	if result.RowsAffected == 0 || stragglers > 0 {
		return ledgerdomain.ErrInvalidTransition
	}

	s.obsMetrics.IncLedgerTransition(string(ledgerdomain.StatusCleared))
	return nil
}

func (s *Service) MarkPaid(ctx context.Context, tx *gorm.DB, payoutRequestID snowflake.ID, now time.Time) error {
	if payoutRequestID == 0 {
		return ledgerdomain.ErrInvalidEntrySet
	}
	conn := s.conn(tx)
	result := conn.WithContext(ctx).Exec(
		`UPDATE ledger_entries
		 SET status = ?, updated_at = ?
		 WHERE payout_request_id = ? AND status = ?`,
		ledgerdomain.StatusPaid,
		now,
		payoutRequestID,
		ledgerdomain.StatusCleared,
	)
	if result.Error != nil {
		return result.Error
	}

	// The sweep may re-run after a crash; entries that are already paid are
	// fine, anything in another status is a caller bug.
	var stragglers int64
	if err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM ledger_entries WHERE payout_request_id = ? AND status <> ?`,
		payoutRequestID,
		ledgerdomain.StatusPaid,
	).Scan(&stragglers).Error; err != nil {
		return err
	}
	if stragglers > 0 {
		return ledgerdomain.ErrInvalidTransition
	}

	if result.RowsAffected > 0 {
		s.obsMetrics.IncLedgerTransition(string(ledgerdomain.StatusPaid))
	}
	return nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*ledgerdomain.LedgerEntry, error) {
	var entry ledgerdomain.LedgerEntry
	err := s.db.WithContext(ctx).First(&entry, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledgerdomain.ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Service) ListByPayoutRequest(ctx context.Context, payoutRequestID snowflake.ID) ([]ledgerdomain.LedgerEntry, error) {
	var entries []ledgerdomain.LedgerEntry
	err := s.db.WithContext(ctx).
		Where("payout_request_id = ?", payoutRequestID).
		Order("id").
		Find(&entries).Error
	return entries, err
}

func (s *Service) ListPendingByOwner(ctx context.Context, ownerID snowflake.ID) ([]ledgerdomain.LedgerEntry, error) {
	var entries []ledgerdomain.LedgerEntry
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND status = ?", ownerID, ledgerdomain.StatusPending).
		Order("id").
		Find(&entries).Error
	return entries, err
}

func (s *Service) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

func dedupeIDs(ids []snowflake.ID) []snowflake.ID {
	seen := make(map[snowflake.ID]struct{}, len(ids))
	out := make([]snowflake.ID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

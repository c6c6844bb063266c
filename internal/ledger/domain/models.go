package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// LedgerEntryStatus tracks an entry through the settlement pipeline.
type LedgerEntryStatus string

const (
	StatusPending LedgerEntryStatus = "pending"
	StatusLocked  LedgerEntryStatus = "locked"
	StatusCleared LedgerEntryStatus = "cleared"
	StatusPaid    LedgerEntryStatus = "paid"
)

// LedgerEntry is one unit of earned, not-yet-paid value. Entries are never
// deleted; they only transition between statuses.
type LedgerEntry struct {
	ID              snowflake.ID      `gorm:"primaryKey" json:"id"`
	OwnerID         snowflake.ID      `gorm:"not null;index:ix_ledger_entries_owner_status,priority:1" json:"owner_id"`
	Amount          int64             `gorm:"not null" json:"amount"`
	Currency        string            `gorm:"type:text;not null" json:"currency"`
	SourceRef       string            `gorm:"type:text;not null;uniqueIndex:ux_ledger_entries_source_ref" json:"source_ref"`
	Status          LedgerEntryStatus `gorm:"type:text;not null;default:pending;index:ix_ledger_entries_owner_status,priority:2" json:"status"`
	PayoutRequestID *snowflake.ID     `gorm:"index" json:"payout_request_id,omitempty"`
	LockedAt        *time.Time        `json:"locked_at,omitempty"`
	ClearingEndsAt  *time.Time        `json:"clearing_ends_at,omitempty"`
	CreatedAt       time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "ledger_entries" }

package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// FeeType identifies which share of a split a rate applies to.
type FeeType string

const (
	FeePlatform  FeeType = "platform"
	FeeCommunity FeeType = "community"
)

// ScopeType orders rate resolution: a seller override wins over a community
// override, which wins over the platform default.
type ScopeType string

const (
	ScopePlatform  ScopeType = "platform"
	ScopeCommunity ScopeType = "community"
	ScopeSeller    ScopeType = "seller"
)

// CommissionRate is the current effective rate for one scope and fee type.
type CommissionRate struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	ScopeType ScopeType    `gorm:"type:text;not null;uniqueIndex:ux_commission_rates_scope,priority:1" json:"scope_type"`
	ScopeID   snowflake.ID `gorm:"not null;default:0;uniqueIndex:ux_commission_rates_scope,priority:2" json:"scope_id"`
	FeeType   FeeType      `gorm:"type:text;not null;uniqueIndex:ux_commission_rates_scope,priority:3" json:"fee_type"`
	BpsValue  int64        `gorm:"not null" json:"bps_value"`
	ChangedBy string       `gorm:"type:text;not null" json:"changed_by"`
	ChangedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"changed_at"`
}

// TableName sets the database table name.
func (CommissionRate) TableName() string { return "commission_rates" }

// CommissionChange is the append-only audit record written for every rate
// change. History is never edited in place.
type CommissionChange struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	ScopeType ScopeType    `gorm:"type:text;not null;index:ix_commission_changes_scope,priority:1" json:"scope_type"`
	ScopeID   snowflake.ID `gorm:"not null;default:0;index:ix_commission_changes_scope,priority:2" json:"scope_id"`
	FeeType   FeeType      `gorm:"type:text;not null;index:ix_commission_changes_scope,priority:3" json:"fee_type"`
	OldBps    *int64       `json:"old_bps,omitempty"`
	NewBps    int64        `gorm:"not null" json:"new_bps"`
	ChangedBy string       `gorm:"type:text;not null" json:"changed_by"`
	ChangedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP;index:ix_commission_changes_scope,priority:4" json:"changed_at"`
}

// TableName sets the database table name.
func (CommissionChange) TableName() string { return "commission_changes" }

// SplitResult divides a transaction total into its three shares. The parts
// always sum exactly to the input amount.
type SplitResult struct {
	PlatformFee    int64 `json:"platform_fee"`
	CommunityFee   int64 `json:"community_fee"`
	SellerReceives int64 `json:"seller_receives"`
}

package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// FlagType identifies the rule that raised a flag.
type FlagType string

const (
	FlagEngagement    FlagType = "engagement"
	FlagVelocity      FlagType = "velocity"
	FlagNewCreator    FlagType = "new_creator"
	FlagPreviousFraud FlagType = "previous_fraud"
)

// FlagStatus tracks adjudication of a flag. Confirmed flags are permanent.
type FlagStatus string

const (
	FlagPending   FlagStatus = "pending"
	FlagDismissed FlagStatus = "dismissed"
	FlagConfirmed FlagStatus = "confirmed"
)

// FraudFlag is a suspicion marker attached to a payout request. Only the
// adjudicator resolves it.
type FraudFlag struct {
	ID              snowflake.ID   `gorm:"primaryKey" json:"id"`
	PayoutRequestID snowflake.ID   `gorm:"not null;index:ix_fraud_flags_request" json:"payout_request_id"`
	FlagType        FlagType       `gorm:"type:text;not null" json:"flag_type"`
	DetectedValue   float64        `gorm:"not null" json:"detected_value"`
	ThresholdValue  float64        `gorm:"not null" json:"threshold_value"`
	Status          FlagStatus     `gorm:"type:text;not null;default:pending" json:"status"`
	Metadata        datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt       time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (FraudFlag) TableName() string { return "fraud_flags" }

// OwnerFraudStats carries the monotonic per-owner confirmed-flag counter.
type OwnerFraudStats struct {
	OwnerID        snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"owner_id"`
	ConfirmedCount int64        `gorm:"not null;default:0" json:"confirmed_count"`
	PermanentFraud bool         `gorm:"not null;default:false" json:"permanent_fraud"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (OwnerFraudStats) TableName() string { return "owner_fraud_stats" }

// TrustProfile is the read-only view of an owner supplied by the external
// identity store.
type TrustProfile struct {
	AccountAgeDays    int
	EngagementRatio   float64
	ViewVelocityRatio float64
}

// Candidate is the payout under evaluation.
type Candidate struct {
	OwnerID             snowflake.ID
	TotalAmount         int64
	Profile             TrustProfile
	PriorConfirmedFlags int64
}

// FlagDraft is an unpersisted flag produced by a rule.
type FlagDraft struct {
	FlagType       FlagType
	DetectedValue  float64
	ThresholdValue float64
}

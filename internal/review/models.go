package review

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// DispatchStatus tracks a penalty outbox row.
type DispatchStatus string

const (
	DispatchPending    DispatchStatus = "pending"
	DispatchDispatched DispatchStatus = "dispatched"
)

// PenaltyDispatch is one queued notification for the external penalty
// collaborator. Written in the rejection transaction and published
// at-least-once afterward; pipeline correctness never depends on delivery.
type PenaltyDispatch struct {
	ID              snowflake.ID   `gorm:"primaryKey" json:"id"`
	PayoutRequestID snowflake.ID   `gorm:"not null" json:"payout_request_id"`
	OwnerID         snowflake.ID   `gorm:"not null" json:"owner_id"`
	Payload         datatypes.JSON `gorm:"not null" json:"payload"`
	Status          DispatchStatus `gorm:"type:text;not null;default:pending;index:ix_penalty_dispatches_status" json:"status"`
	Attempts        int64          `gorm:"not null;default:0" json:"attempts"`
	LastError       *string        `json:"last_error,omitempty"`
	CreatedAt       time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	DispatchedAt    *time.Time     `json:"dispatched_at,omitempty"`
}

// TableName sets the database table name.
func (PenaltyDispatch) TableName() string { return "penalty_dispatches" }

// penaltyPayload is the wire shape published to the penalty topic.
type penaltyPayload struct {
	PayoutRequestID string    `json:"payout_request_id"`
	OwnerID         string    `json:"owner_id"`
	TotalAmount     int64     `json:"total_amount"`
	Currency        string    `json:"currency"`
	Reason          string    `json:"reason"`
	ConfirmedFlags  int64     `json:"confirmed_flags"`
	RejectedAt      time.Time `json:"rejected_at"`
}

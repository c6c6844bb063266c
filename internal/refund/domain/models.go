package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// RefundStatus is the decision state of a refund request.
type RefundStatus string

const (
	StatusPending   RefundStatus = "pending"
	StatusApproved  RefundStatus = "approved"
	StatusDenied    RefundStatus = "denied"
	StatusProcessed RefundStatus = "processed"
)

// RefundRequest asks for money back against a purchase or a session.
type RefundRequest struct {
	ID              snowflake.ID  `gorm:"primaryKey" json:"id"`
	RequesterID     snowflake.ID  `gorm:"not null;index:ix_refund_requests_requester" json:"requester_id"`
	PurchaseID      *snowflake.ID `json:"purchase_id,omitempty"`
	SessionID       *snowflake.ID `json:"session_id,omitempty"`
	AmountRequested int64         `gorm:"not null" json:"amount_requested"`
	AmountApproved  *int64        `json:"amount_approved,omitempty"`
	Status          RefundStatus  `gorm:"type:text;not null;default:pending" json:"status"`
	DecidedBy       *string       `json:"decided_by,omitempty"`
	DecidedAt       *time.Time    `json:"decided_at,omitempty"`
	CreatedAt       time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (RefundRequest) TableName() string { return "refund_requests" }

package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// PayoutStatus is the externally visible state of a payout request.
type PayoutStatus string

const (
	StatusRequested       PayoutStatus = "requested"
	StatusPendingEvidence PayoutStatus = "pending_evidence"
	StatusPendingReview   PayoutStatus = "pending_review"
	StatusApproved        PayoutStatus = "approved"
	StatusRejected        PayoutStatus = "rejected"
	StatusCancelled       PayoutStatus = "cancelled"
	StatusPaid            PayoutStatus = "paid"
)

// AutoApprovalStatus records how the automatic fraud screen resolved.
type AutoApprovalStatus string

const (
	AutoPendingEvidence AutoApprovalStatus = "pending_evidence"
	AutoPendingReview   AutoApprovalStatus = "pending_review"
	AutoApproved        AutoApprovalStatus = "approved"
	AutoFailed          AutoApprovalStatus = "failed"
)

// PayoutRequest is the aggregate root tying ledger entries, fraud flags,
// evidence and clearing together. Terminal states are paid, rejected and
// cancelled.
type PayoutRequest struct {
	ID                 snowflake.ID       `gorm:"primaryKey" json:"id"`
	OwnerID            snowflake.ID       `gorm:"not null;index:ix_payout_requests_owner" json:"owner_id"`
	TotalAmount        int64              `gorm:"not null" json:"total_amount"`
	Currency           string             `gorm:"not null" json:"currency"`
	Status             PayoutStatus       `gorm:"type:text;not null;default:requested" json:"status"`
	AutoApprovalStatus AutoApprovalStatus `gorm:"type:text;not null;default:pending_review" json:"auto_approval_status"`
	EvidenceDeadline   *time.Time         `json:"evidence_deadline,omitempty"`
	ClearingEndsAt     *time.Time         `json:"clearing_ends_at,omitempty"`
	RejectionReason    *string            `json:"rejection_reason,omitempty"`
	ReviewedBy         *string            `json:"reviewed_by,omitempty"`
	ReviewedAt         *time.Time         `json:"reviewed_at,omitempty"`
	CreatedAt          time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (PayoutRequest) TableName() string { return "payout_requests" }

// Terminal reports whether no further transition may succeed.
func (s PayoutStatus) Terminal() bool {
	return s == StatusPaid || s == StatusRejected || s == StatusCancelled
}

// Adjudicable reports whether a reviewer decision applies in this state.
func (s PayoutStatus) Adjudicable() bool {
	return s == StatusPendingEvidence || s == StatusPendingReview
}

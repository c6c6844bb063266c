package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SessionStatus is the lifecycle state of a booked unit of work.
type SessionStatus string

const (
	StatusRequested            SessionStatus = "requested"
	StatusAccepted             SessionStatus = "accepted"
	StatusDeclined             SessionStatus = "declined"
	StatusCancelled            SessionStatus = "cancelled"
	StatusInProgress           SessionStatus = "in_progress"
	StatusCompleted            SessionStatus = "completed"
	StatusRated                SessionStatus = "rated"
	StatusNoShowBuyer          SessionStatus = "no_show_buyer"
	StatusNoShowSeller         SessionStatus = "no_show_seller"
	StatusDisputed             SessionStatus = "disputed"
	StatusAwaitingConfirmation SessionStatus = "awaiting_confirmation"
	StatusPaidOut              SessionStatus = "paid_out"
)

// Session is a billable unit of work between a buyer and a seller. Completing
// it settles exactly one ledger entry for the seller.
type Session struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	BuyerID        snowflake.ID  `gorm:"not null" json:"buyer_id"`
	SellerID       snowflake.ID  `gorm:"not null;index:ix_sessions_seller_status" json:"seller_id"`
	CommunityID    *snowflake.ID `json:"community_id,omitempty"`
	Units          int64         `gorm:"not null" json:"units"`
	PricePerUnit   int64         `gorm:"not null" json:"price_per_unit"`
	Status         SessionStatus `gorm:"type:text;not null;default:requested;index:ix_sessions_seller_status" json:"status"`
	BuyerFunded    bool          `gorm:"not null;default:false" json:"buyer_funded"`
	SettledEntryID *snowflake.ID `json:"settled_entry_id,omitempty"`
	CreatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Session) TableName() string { return "sessions" }

// transitions is the full lifecycle graph. A status missing from the map is
// terminal.
var transitions = map[SessionStatus][]SessionStatus{
	StatusRequested:            {StatusAccepted, StatusDeclined, StatusCancelled},
	StatusAccepted:             {StatusInProgress, StatusCancelled, StatusNoShowBuyer, StatusNoShowSeller},
	StatusInProgress:           {StatusCompleted, StatusDisputed},
	StatusCompleted:            {StatusRated, StatusDisputed, StatusAwaitingConfirmation},
	StatusRated:                {StatusAwaitingConfirmation},
	StatusDisputed:             {StatusCompleted, StatusCancelled},
	StatusAwaitingConfirmation: {StatusPaidOut},
}

// CanTransition reports whether the lifecycle graph allows from → to.
func CanTransition(from, to SessionStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ReleasesReservation reports whether entering this status abandons a
// buyer-funded reservation.
func ReleasesReservation(to SessionStatus) bool {
	switch to {
	case StatusDeclined, StatusCancelled, StatusNoShowBuyer, StatusNoShowSeller:
		return true
	default:
		return false
	}
}

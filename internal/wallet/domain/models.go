package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// WalletBalance is the per-(holder, seller) aggregate of purchased units.
// Invariant: 0 <= ReservedUnits <= BalanceUnits.
type WalletBalance struct {
	HolderID                snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"holder_id"`
	SellerID                snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"seller_id"`
	BalanceUnits            int64        `gorm:"not null;default:0" json:"balance_units"`
	ReservedUnits           int64        `gorm:"not null;default:0" json:"reserved_units"`
	AvgPurchasePricePerUnit int64        `gorm:"not null;default:0" json:"avg_purchase_price_per_unit"`
	TotalPaid               int64        `gorm:"not null;default:0" json:"total_paid"`
	UpdatedAt               time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (WalletBalance) TableName() string { return "wallet_balances" }

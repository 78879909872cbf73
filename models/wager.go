package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type WagerStatus string

const (
	WagerStatusOpen     WagerStatus = "open"
	WagerStatusWon      WagerStatus = "won"
	WagerStatusLost     WagerStatus = "lost"
	WagerStatusRefunded WagerStatus = "refunded"
)

// Wager is a single-auction bet: the user stakes an amount on whether the
// auction will end sold or unsold. Stake is debited through the ledger at
// creation; resolution credits winnings or nothing.
type Wager struct {
	ID             string `json:"id" gorm:"primaryKey"`
	ExternalUserID string `json:"external_user_id" gorm:"not null;index"`
	AuctionID      string `json:"auction_id" gorm:"not null;index"`

	Amount     decimal.Decimal `json:"amount" gorm:"type:numeric(18,2);not null"`
	PickSold   bool            `json:"pick_sold"` // true = bets the auction sells
	Status     WagerStatus     `json:"status" gorm:"type:varchar(16);default:'open';index"`
	Payout     decimal.Decimal `json:"payout" gorm:"type:numeric(18,2);default:0"`
	CreatedAt  time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
}

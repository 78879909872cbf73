package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LedgerType classifies a single money movement.
type LedgerType string

const (
	LedgerTypeWager    LedgerType = "wager"
	LedgerTypeDeposit  LedgerType = "deposit"
	LedgerTypeWithdraw LedgerType = "withdraw"
	LedgerTypeWinnings LedgerType = "winnings"
	LedgerTypeRefund   LedgerType = "refund"
	LedgerTypeBuyIn    LedgerType = "buy_in"
	LedgerTypeFee      LedgerType = "fee"
)

// LedgerStatus is the processing status of an entry. Entries are never
// mutated after creation except for the processing → success/failed
// transition.
type LedgerStatus string

const (
	LedgerStatusProcessing LedgerStatus = "processing"
	LedgerStatusSuccess    LedgerStatus = "success"
	LedgerStatusFailed     LedgerStatus = "failed"
)

// LedgerEntry is one append-only signed money movement against a user's
// balance. Amount is signed: credits positive, debits negative.
type LedgerEntry struct {
	ID             string `json:"id" gorm:"primaryKey"`
	ExternalUserID string `json:"external_user_id" gorm:"not null;index"`

	WagerID      string `json:"wager_id,omitempty" gorm:"index"`
	AuctionID    string `json:"auction_id,omitempty" gorm:"index"`
	TournamentID string `json:"tournament_id,omitempty" gorm:"index"`

	Type   LedgerType      `json:"type" gorm:"type:varchar(16);not null;index"`
	Amount decimal.Decimal `json:"amount" gorm:"type:numeric(18,2);not null"`
	Status LedgerStatus    `json:"status" gorm:"type:varchar(16);not null;default:'processing';index"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

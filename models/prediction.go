package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Prediction is a user's guess of an auction's final price, optionally
// scoped to a tournament. Immutable once created — only an admin delete
// removes one. Predictions on unsold (void) auctions never count toward
// a tournament score.
type Prediction struct {
	ID             string `json:"id" gorm:"primaryKey"`
	ExternalUserID string `json:"external_user_id" gorm:"not null;index"`
	AuctionID      string `json:"auction_id" gorm:"not null;index"`
	TournamentID   string `json:"tournament_id,omitempty" gorm:"index"`

	GuessedPrice decimal.Decimal `json:"guessed_price" gorm:"type:numeric(18,2);not null"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

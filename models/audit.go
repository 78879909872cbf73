package models

import "time"

// SettlementAudit is one record per settlement run: who won, what moved,
// how the run ended. Written fire-and-forget — a failed audit write never
// blocks settlement — and additionally uploaded as JSON to object storage.
type SettlementAudit struct {
	ID            string    `json:"id" gorm:"primaryKey"`
	TournamentID  string    `json:"tournament_id" gorm:"not null;index"`
	Outcome       string    `json:"outcome"` // settled, no_winner_refund, failed
	WinnersJSON   string    `json:"winners_json" gorm:"type:text"`
	TransfersJSON string    `json:"transfers_json" gorm:"type:text"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
}

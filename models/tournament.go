package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TournamentStatus is the settlement guard's state machine:
// open → running → settling → settled, with cancelled reachable from
// open/running. settling is transient — a failed settlement run reverts
// the tournament to running so a retry is possible.
type TournamentStatus string

const (
	TournamentStatusOpen      TournamentStatus = "open"
	TournamentStatusRunning   TournamentStatus = "running"
	TournamentStatusSettling  TournamentStatus = "settling"
	TournamentStatusSettled   TournamentStatus = "settled"
	TournamentStatusCancelled TournamentStatus = "cancelled"
)

// Tournament is a prediction contest over a fixed set of auctions.
// Participants buy in, submit price predictions per auction, and the
// settlement pipeline pays the prize pool to the winner set once every
// auction in the set is final.
type Tournament struct {
	ID          string `json:"id" gorm:"primaryKey"`
	Slug        string `json:"slug" gorm:"uniqueIndex;not null"`
	Name        string `json:"name" gorm:"not null"`
	Description string `json:"description" gorm:"type:text"`

	PrizePool decimal.Decimal `json:"prize_pool" gorm:"type:numeric(18,2);not null;default:0"`
	BuyInFee  decimal.Decimal `json:"buy_in_fee" gorm:"type:numeric(18,2);not null;default:0"`
	Capacity  int             `json:"capacity" gorm:"default:0"` // 0 = unlimited

	Status    TournamentStatus `json:"status" gorm:"type:varchar(16);default:'open';index"`
	StartTime time.Time        `json:"start_time"`
	EndTime   time.Time        `json:"end_time"`
	SettledAt *time.Time       `json:"settled_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	Auctions []TournamentAuction `json:"auctions,omitempty" gorm:"foreignKey:TournamentID"`
	Entries  []TournamentEntry   `json:"entries,omitempty" gorm:"foreignKey:TournamentID"`

	// Calculated, not stored
	EntryCount     int64 `json:"entry_count,omitempty" gorm:"-"`
	AvailableSlots int64 `json:"available_slots,omitempty" gorm:"-"`
}

// TournamentAuction links an auction into a tournament's ordered event set.
type TournamentAuction struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	TournamentID string    `json:"tournament_id" gorm:"not null;index:idx_tournament_auction,unique"`
	AuctionID    string    `json:"auction_id" gorm:"not null;index:idx_tournament_auction,unique"`
	SortOrder    int       `json:"sort_order" gorm:"column:sort_order;default:0"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`

	Auction Auction `json:"auction,omitempty" gorm:"foreignKey:AuctionID"`
}

// EntryKind distinguishes human participants from automated agents.
type EntryKind string

const (
	EntryKindHuman EntryKind = "human"
	EntryKindBot   EntryKind = "bot"
)

// TournamentEntry is one participant's membership in a tournament.
// FinalRank, CorrectCount and Delta are written exactly once, by a
// successful settlement run.
type TournamentEntry struct {
	ID             string    `json:"id" gorm:"primaryKey"`
	TournamentID   string    `json:"tournament_id" gorm:"not null;index:idx_tournament_entry,unique"`
	ExternalUserID string    `json:"external_user_id" gorm:"not null;index:idx_tournament_entry,unique"`
	DisplayName    string    `json:"display_name"`
	Kind           EntryKind `json:"kind" gorm:"type:varchar(8);default:'human'"`
	JoinedAt       time.Time `json:"joined_at" gorm:"autoCreateTime"`

	FinalRank    int             `json:"final_rank" gorm:"default:0"` // 0 = not ranked yet
	CorrectCount int             `json:"correct_count" gorm:"default:0"`
	Delta        decimal.Decimal `json:"delta" gorm:"type:numeric(18,2);default:0"`
}

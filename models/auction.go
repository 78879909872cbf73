package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionStatus is the lifecycle status of an auction as reported by the
// auction lifecycle service. Settlement only cares about sold/unsold.
type AuctionStatus string

const (
	AuctionStatusPending AuctionStatus = "pending"
	AuctionStatusLive    AuctionStatus = "live"
	AuctionStatusSold    AuctionStatus = "sold"
	AuctionStatusUnsold  AuctionStatus = "unsold"
)

// Auction is the local record of an auction listing. Lifecycle fields
// (Status, CurrentBid, BidCount, FinalPrice, IsFinal) are owned by the
// auction lifecycle service and written here by the outcome sync worker;
// everything else is admin-editable catalog data.
type Auction struct {
	ID          string        `json:"id" gorm:"primaryKey"`
	Title       string        `json:"title" gorm:"not null"`
	Description string        `json:"description" gorm:"type:text"`
	Make        string        `json:"make"`
	Model       string        `json:"model"`
	Year        int           `json:"year"`
	Status      AuctionStatus `json:"status" gorm:"type:varchar(16);default:'pending';index"`
	BidCount    int           `json:"bid_count" gorm:"default:0"`
	Deadline    time.Time     `json:"deadline"`

	CurrentBid decimal.Decimal  `json:"current_bid" gorm:"type:numeric(18,2);default:0"`
	FinalPrice *decimal.Decimal `json:"final_price,omitempty" gorm:"type:numeric(18,2)"`
	// IsFinal is set exactly once by the lifecycle service: FinalPrice and
	// Status are fixed from then on.
	IsFinal bool `json:"is_final" gorm:"default:false;index"`

	MainPhotoURL string    `json:"main_photo_url"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	Photos []AuctionPhoto `json:"photos,omitempty" gorm:"foreignKey:AuctionID"`
}

type AuctionPhoto struct {
	ID        string `json:"id" gorm:"primaryKey"`
	AuctionID string `json:"auction_id" gorm:"not null;index"`
	URL       string `json:"url"`
	SortOrder int    `json:"sort_order" gorm:"column:sort_order;default:0"`
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PlatformUser is a local snapshot of user data from the Profile Service,
// populated via the user sync worker, plus the wallet balance this service
// owns. Balance must at all times reconcile to the sum of signed
// success-status ledger entries for the user — every balance write happens
// in the same transaction as its ledger entry (see services/ledger.go).
type PlatformUser struct {
	ID             string  `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ExternalUserID string  `gorm:"uniqueIndex;not null" json:"external_user_id"` // profile service UUID
	Username       string  `gorm:"index;not null" json:"username"`
	Email          string  `json:"email,omitempty"`
	AvatarURL      *string `json:"avatar_url,omitempty"`

	Balance decimal.Decimal `gorm:"type:numeric(18,2);not null;default:0" json:"balance"`

	IsBanned  bool      `json:"is_banned" gorm:"default:false"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// RemoteProfileUser matches the JSON the profile sync service returns for a
// changed user. Only the fields we mirror are decoded.
type RemoteProfileUser struct {
	ExternalID string     `json:"external_id"`
	Username   string     `json:"username"`
	Email      string     `json:"email"`
	AvatarURL  *string    `json:"profile_picture_url,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

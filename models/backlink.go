package models

import (
	"time"

	"gorm.io/gorm"
)

// Link rel types, ordered weakest guarantee first.
const (
	LinkDofollow  = "dofollow"
	LinkNofollow  = "nofollow"
	LinkUGC       = "ugc"
	LinkSponsored = "sponsored"
)

// Backlink is a claimed placement (page -> target) for a prospect.
type Backlink struct {
	gorm.Model
	ProspectID uint `gorm:"not null;index" json:"prospect_id"`

	PageURL   string `gorm:"not null" json:"page_url"`
	TargetURL string `gorm:"not null" json:"target_url"`

	AnchorText string `json:"anchor_text"`
	LinkType   string `gorm:"default:'dofollow'" json:"link_type"`
	IsHidden   bool   `gorm:"default:false" json:"is_hidden"`

	IsLive     bool `gorm:"default:false;index" json:"is_live"`
	IsVerified bool `gorm:"default:false" json:"is_verified"`

	LastVerifiedAt *time.Time `json:"last_verified_at"`
	LostAt         *time.Time `json:"lost_at"`

	HTTPStatus int `json:"http_status"`

	// Relations
	Prospect Prospect `json:"-"`
}

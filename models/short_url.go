// Package models contains domain entities and business models for the short link service
package models

import "time"

// ShortURL represents a single version of a shortened link. Multiple rows may
// share a short code: updating a link inserts a new row rather than mutating
// the old one, and the row with IsPrimary set is the one used for redirects.
type ShortURL struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ShortCode   string    `gorm:"size:64;not null;index:idx_short_urls_short_code;uniqueIndex:uk_short_urls_primary_code,where:is_primary = true" json:"short_code"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	URL         string    `gorm:"type:text;not null" json:"url"`
	HitCount    int64     `gorm:"not null;default:0" json:"hit_count"`
	IsPrimary   *bool     `gorm:"default:false;index:idx_short_urls_is_primary" json:"is_primary"`
	CreatedAt   time.Time `gorm:"default:CURRENT_TIMESTAMP;index:idx_short_urls_created_at" json:"created_at"`
	CreatedByID uint      `gorm:"index:idx_short_urls_created_by_id" json:"created_by_id"`
	CreatedBy   User      `gorm:"foreignKey:CreatedByID;references:ID" json:"created_by,omitempty"`
}

// TableName returns the table name for ShortURL
func (ShortURL) TableName() string { return "short_urls" }

// ShortURLFilter represents filter criteria for short URL queries
type ShortURLFilter struct {
	ID            *uint
	ShortCode     *string
	IsPrimary     *bool
	CreatedByID   *uint
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Search        *string // case-insensitive match against title, short code and URL
}

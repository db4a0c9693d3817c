package models

import (
	"time"

	"github.com/google/uuid"
)

// AudioMetadata caches resolved track metadata keyed by the hash of the
// normalized query. StreamURL entries expire; an expired URL is treated as
// absent by readers.
type AudioMetadata struct {
	ID                 uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4()" json:"id"`
	QueryHash          string     `gorm:"uniqueIndex;not null" json:"query_hash"`
	Title              string     `gorm:"not null" json:"title"`
	DurationSeconds    int        `json:"duration_seconds"`
	ThumbnailURL       string     `json:"thumbnail_url"`
	Uploader           string     `json:"uploader"`
	SourceURL          string     `gorm:"index" json:"source_url"`
	StreamURL          string     `gorm:"type:text" json:"stream_url"`
	StreamURLExpiresAt *time.Time `gorm:"index" json:"stream_url_expires_at"`
	PlayCount          int        `gorm:"not null;default:0" json:"play_count"`
	LastPlayedAt       *time.Time `json:"last_played_at"`
	FileSizeBytes      int64      `json:"file_size_bytes"`
	FormatInfo         string     `gorm:"type:jsonb" json:"format_info"`
	AdditionalMetadata string     `gorm:"type:jsonb" json:"additional_metadata"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for AudioMetadata
func (AudioMetadata) TableName() string {
	return "audio_metadata"
}

// FreshStreamURL returns the cached stream URL if it has not expired
func (m *AudioMetadata) FreshStreamURL(now time.Time) string {
	if m.StreamURL == "" || m.StreamURLExpiresAt == nil {
		return ""
	}
	if !now.Before(*m.StreamURLExpiresAt) {
		return ""
	}
	return m.StreamURL
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// SavedPlaylist is a named snapshot of song records a guild can reload later
type SavedPlaylist struct {
	ID           uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4()" json:"id"`
	GuildID      string    `gorm:"uniqueIndex:idx_guild_playlist_name;not null" json:"guild_id"`
	PlaylistName string    `gorm:"uniqueIndex:idx_guild_playlist_name;not null" json:"playlist_name"`
	Songs        string    `gorm:"type:jsonb;not null" json:"songs"`
	CreatedBy    string    `gorm:"not null" json:"created_by"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for SavedPlaylist
func (SavedPlaylist) TableName() string {
	return "saved_playlists"
}

// GuildGifs holds the custom loading GIF set for a guild
type GuildGifs struct {
	GuildID       string     `gorm:"primaryKey" json:"guild_id"`
	GifURLs       StringList `gorm:"type:text[]" json:"gif_urls"`
	UseCustomGifs bool       `gorm:"default:false" json:"use_custom_gifs"`
	LastUpdated   time.Time  `gorm:"autoUpdateTime" json:"last_updated"`
}

// TableName specifies the table name for GuildGifs
func (GuildGifs) TableName() string {
	return "guild_gifs"
}

package models

import "time"

// GuildQueueState is the persisted queue snapshot for a guild. The jsonb
// columns hold serialized song records; marshalling lives in the repository
// so the model stays a plain row shape.
type GuildQueueState struct {
	GuildID         string    `gorm:"primaryKey" json:"guild_id"`
	NowPlaying      string    `gorm:"type:jsonb" json:"now_playing"`
	QueueItems      string    `gorm:"type:jsonb" json:"queue_items"`
	HistoryItems    string    `gorm:"type:jsonb" json:"history_items"`
	LazyLoadQueue   string    `gorm:"type:jsonb" json:"lazy_load_queue"`
	CurrentPlaylist string    `gorm:"type:jsonb" json:"current_playlist"`
	Volume          string    `gorm:"type:jsonb" json:"volume"`
	IsMuted         bool      `gorm:"default:false" json:"is_muted"`
	LastUpdated     time.Time `gorm:"autoUpdateTime" json:"last_updated"`
}

// TableName specifies the table name for GuildQueueState
func (GuildQueueState) TableName() string {
	return "guild_queues"
}

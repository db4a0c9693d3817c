package models

import "time"

// Message reference roles. One managed message per (guild, role).
const (
	RefPlaybackControls = "playback_controls"
	RefQueueMessage     = "queue_message"
	RefErrorEmbed       = "error_embed"
	RefLoadingMessage   = "loading_message"
)

// MessageRef records a bot-owned message so it can be edited in place
// instead of reposted.
type MessageRef struct {
	GuildID   string    `gorm:"primaryKey" json:"guild_id"`
	Type      string    `gorm:"primaryKey" json:"type"`
	ChannelID string    `gorm:"not null" json:"channel_id"`
	MessageID string    `gorm:"not null" json:"message_id"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for MessageRef
func (MessageRef) TableName() string {
	return "message_refs"
}

// KnownRefTypes lists every managed message role
func KnownRefTypes() []string {
	return []string{RefPlaybackControls, RefQueueMessage, RefErrorEmbed, RefLoadingMessage}
}

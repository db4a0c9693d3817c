package models

import (
	"time"

	"github.com/google/uuid"
)

// RuntimeLog is a persisted log entry. Only WARN and ERROR entries are
// written; routine levels stay on the structured logger.
type RuntimeLog struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4()" json:"id"`
	GuildID   string    `gorm:"index" json:"guild_id"`
	Component string    `gorm:"index;not null;default:'app'" json:"component"`
	Level     string    `gorm:"index;not null" json:"level"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	Error     string    `gorm:"type:text" json:"error"`
	Fields    string    `gorm:"type:jsonb" json:"fields"`
	UserID    string    `gorm:"index" json:"user_id"`
	ChannelID string    `gorm:"index" json:"channel_id"`
	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
}

// TableName specifies the table name for RuntimeLog
func (RuntimeLog) TableName() string {
	return "runtime_logs"
}

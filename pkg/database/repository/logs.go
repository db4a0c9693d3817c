package repository

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/latoulicious/groovebox/pkg/database/models"
	"github.com/latoulicious/groovebox/pkg/logging"
)

// RuntimeLogRepository persists WARN/ERROR log entries. It satisfies
// logging.LogRepository so the database logger factory can write through it.
type RuntimeLogRepository struct {
	db *gorm.DB
}

func NewRuntimeLogRepository(db *gorm.DB) *RuntimeLogRepository {
	return &RuntimeLogRepository{db: db}
}

// SaveLog writes one log entry
func (r *RuntimeLogRepository) SaveLog(entry logging.LogEntry) error {
	fields := ""
	if len(entry.Fields) > 0 {
		if data, err := json.Marshal(entry.Fields); err == nil {
			fields = string(data)
		}
	}

	component := entry.Component
	if component == "" {
		component = "app"
	}

	row := models.RuntimeLog{
		GuildID:   entry.GuildID,
		Component: component,
		Level:     entry.Level,
		Message:   entry.Message,
		Error:     entry.Error,
		Fields:    fields,
		UserID:    entry.UserID,
		ChannelID: entry.ChannelID,
		Timestamp: time.Now(),
	}
	return r.db.Create(&row).Error
}

// PurgeOlderThan deletes log rows older than the cutoff and returns how many
// were removed.
func (r *RuntimeLogRepository) PurgeOlderThan(cutoff time.Time) (int64, error) {
	result := r.db.Where("timestamp < ?", cutoff).Delete(&models.RuntimeLog{})
	return result.RowsAffected, result.Error
}

// RecentErrors returns the latest persisted WARN/ERROR entries for a guild
func (r *RuntimeLogRepository) RecentErrors(guildID string, limit int) ([]models.RuntimeLog, error) {
	var rows []models.RuntimeLog
	err := r.db.Where("guild_id = ? AND level IN ?", guildID, []string{"WARN", "ERROR"}).
		Order("timestamp DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

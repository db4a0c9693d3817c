package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/latoulicious/groovebox/pkg/database/models"
)

// SettingsRepository handles database operations for guild settings
type SettingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetOrCreate returns the settings row for a guild, creating the default
// row on first access.
func (r *SettingsRepository) GetOrCreate(guildID string) (*models.GuildSettings, error) {
	var settings models.GuildSettings
	err := r.db.Where("guild_id = ?", guildID).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		defaults := models.DefaultGuildSettings(guildID)
		if err := r.db.Create(defaults).Error; err != nil {
			return nil, err
		}
		return defaults, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// Save writes the full settings row
func (r *SettingsRepository) Save(settings *models.GuildSettings) error {
	return r.db.Save(settings).Error
}

// Delete removes the settings row for a guild
func (r *SettingsRepository) Delete(guildID string) error {
	return r.db.Where("guild_id = ?", guildID).Delete(&models.GuildSettings{}).Error
}

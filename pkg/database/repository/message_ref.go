package repository

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/latoulicious/groovebox/pkg/database/models"
)

// MessageRefRepository handles database operations for managed message refs
type MessageRefRepository struct {
	db *gorm.DB
}

func NewMessageRefRepository(db *gorm.DB) *MessageRefRepository {
	return &MessageRefRepository{db: db}
}

// Get returns the ref for a (guild, role) pair, nil when absent
func (r *MessageRefRepository) Get(guildID, refType string) (*models.MessageRef, error) {
	var ref models.MessageRef
	err := r.db.Where("guild_id = ? AND type = ?", guildID, refType).First(&ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// GetAll returns every ref stored for a guild
func (r *MessageRefRepository) GetAll(guildID string) ([]models.MessageRef, error) {
	var refs []models.MessageRef
	if err := r.db.Where("guild_id = ?", guildID).Find(&refs).Error; err != nil {
		return nil, err
	}
	return refs, nil
}

// Upsert writes a ref, replacing any existing row for the same (guild, role)
func (r *MessageRefRepository) Upsert(ref *models.MessageRef) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "guild_id"}, {Name: "type"}},
		DoUpdates: clause.AssignmentColumns([]string{"channel_id", "message_id", "updated_at"}),
	}).Create(ref).Error
}

// Delete removes a single ref
func (r *MessageRefRepository) Delete(guildID, refType string) error {
	return r.db.Where("guild_id = ? AND type = ?", guildID, refType).
		Delete(&models.MessageRef{}).Error
}

// DeleteAll removes every ref for a guild
func (r *MessageRefRepository) DeleteAll(guildID string) error {
	return r.db.Where("guild_id = ?", guildID).Delete(&models.MessageRef{}).Error
}

package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/latoulicious/groovebox/pkg/database/models"
)

// MetadataRepository handles database operations for the audio metadata cache
type MetadataRepository struct {
	db *gorm.DB
}

func NewMetadataRepository(db *gorm.DB) *MetadataRepository {
	return &MetadataRepository{db: db}
}

// GetByQueryHash returns the cached metadata for a query hash, nil on miss
func (r *MetadataRepository) GetByQueryHash(queryHash string) (*models.AudioMetadata, error) {
	var meta models.AudioMetadata
	err := r.db.Where("query_hash = ?", queryHash).First(&meta).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

// Upsert writes metadata, replacing any existing row for the same hash
func (r *MetadataRepository) Upsert(meta *models.AudioMetadata) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "query_hash"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "duration_seconds", "thumbnail_url", "uploader",
			"source_url", "stream_url", "stream_url_expires_at",
			"file_size_bytes", "format_info", "additional_metadata", "updated_at",
		}),
	}).Create(meta).Error
}

// TouchPlayed bumps the play counter and the last-played timestamp
func (r *MetadataRepository) TouchPlayed(queryHash string) error {
	return r.db.Model(&models.AudioMetadata{}).
		Where("query_hash = ?", queryHash).
		Updates(map[string]interface{}{
			"play_count":     gorm.Expr("play_count + 1"),
			"last_played_at": time.Now(),
		}).Error
}

// PurgeExpiredStreamURLs blanks stream URLs whose expiry has passed. Rows
// stay; only the perishable part is dropped.
func (r *MetadataRepository) PurgeExpiredStreamURLs(now time.Time) (int64, error) {
	result := r.db.Model(&models.AudioMetadata{}).
		Where("stream_url <> '' AND stream_url_expires_at IS NOT NULL AND stream_url_expires_at <= ?", now).
		Updates(map[string]interface{}{
			"stream_url":            "",
			"stream_url_expires_at": nil,
		})
	return result.RowsAffected, result.Error
}

// TopPlayed returns the most played cached tracks
func (r *MetadataRepository) TopPlayed(limit int) ([]models.AudioMetadata, error) {
	var rows []models.AudioMetadata
	err := r.db.Where("play_count > 0").
		Order("play_count DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

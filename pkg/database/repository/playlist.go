package repository

import (
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/latoulicious/groovebox/pkg/database/models"
	"github.com/latoulicious/groovebox/pkg/queue"
)

// PlaylistRepository handles database operations for saved playlists
type PlaylistRepository struct {
	db *gorm.DB
}

func NewPlaylistRepository(db *gorm.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

// Save writes a named playlist, replacing an existing one with the same name
func (r *PlaylistRepository) Save(guildID, name, createdBy string, songs []queue.SongRecord) error {
	raw, err := marshalSongs(songs)
	if err != nil {
		return err
	}

	playlist := models.SavedPlaylist{
		GuildID:      guildID,
		PlaylistName: name,
		Songs:        raw,
		CreatedBy:    createdBy,
	}

	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "guild_id"}, {Name: "playlist_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"songs", "created_by", "updated_at"}),
	}).Create(&playlist).Error
}

// Get returns the songs of a named playlist, nil when it does not exist
func (r *PlaylistRepository) Get(guildID, name string) ([]queue.SongRecord, error) {
	var playlist models.SavedPlaylist
	err := r.db.Where("guild_id = ? AND playlist_name = ?", guildID, name).First(&playlist).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	songs, err := unmarshalSongs(playlist.Songs)
	if err != nil {
		return nil, fmt.Errorf("playlist %q: %w", name, err)
	}
	return songs, nil
}

// List returns the playlist names stored for a guild with their sizes
func (r *PlaylistRepository) List(guildID string) ([]PlaylistSummary, error) {
	var playlists []models.SavedPlaylist
	err := r.db.Where("guild_id = ?", guildID).
		Order("playlist_name ASC").
		Find(&playlists).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]PlaylistSummary, 0, len(playlists))
	for _, pl := range playlists {
		var songs []json.RawMessage
		count := 0
		if err := json.Unmarshal([]byte(pl.Songs), &songs); err == nil {
			count = len(songs)
		}
		summaries = append(summaries, PlaylistSummary{
			Name:      pl.PlaylistName,
			SongCount: count,
			CreatedBy: pl.CreatedBy,
		})
	}
	return summaries, nil
}

// Delete removes a named playlist; reports whether a row existed
func (r *PlaylistRepository) Delete(guildID, name string) (bool, error) {
	result := r.db.Where("guild_id = ? AND playlist_name = ?", guildID, name).
		Delete(&models.SavedPlaylist{})
	return result.RowsAffected > 0, result.Error
}

// PlaylistSummary is a list row for the playlist list command
type PlaylistSummary struct {
	Name      string
	SongCount int
	CreatedBy string
}

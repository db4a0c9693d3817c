package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/latoulicious/groovebox/pkg/database/models"
	"github.com/latoulicious/groovebox/pkg/queue"
)

// QueueStateRepository persists guild queue state. It backs the queue's
// overflow window and the engine's playback snapshot, both stored on the
// guild_queues row.
type QueueStateRepository struct {
	db *gorm.DB
}

func NewQueueStateRepository(db *gorm.DB) *QueueStateRepository {
	return &QueueStateRepository{db: db}
}

type volumePayload struct {
	Pct int `json:"pct"`
}

func marshalSongs(songs []queue.SongRecord) (string, error) {
	if len(songs) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(songs)
	if err != nil {
		return "", fmt.Errorf("marshal songs: %w", err)
	}
	return string(data), nil
}

func unmarshalSongs(raw string) ([]queue.SongRecord, error) {
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var songs []queue.SongRecord
	if err := json.Unmarshal([]byte(raw), &songs); err != nil {
		return nil, fmt.Errorf("unmarshal songs: %w", err)
	}
	return songs, nil
}

func (r *QueueStateRepository) getOrInitLocked(tx *gorm.DB, guildID string) (*models.GuildQueueState, error) {
	var state models.GuildQueueState
	err := tx.Where("guild_id = ?", guildID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		state = models.GuildQueueState{
			GuildID:       guildID,
			NowPlaying:    "null",
			QueueItems:    "[]",
			HistoryItems:  "[]",
			LazyLoadQueue: "[]",
			Volume:        `{"pct":50}`,
		}
		if err := tx.Create(&state).Error; err != nil {
			return nil, err
		}
		return &state, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// PushOverflow appends songs to the lazy-load column
func (r *QueueStateRepository) PushOverflow(guildID string, songs []queue.SongRecord) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		state, err := r.getOrInitLocked(tx, guildID)
		if err != nil {
			return err
		}

		stored, err := unmarshalSongs(state.LazyLoadQueue)
		if err != nil {
			return err
		}
		stored = append(stored, songs...)

		raw, err := marshalSongs(stored)
		if err != nil {
			return err
		}
		return tx.Model(&models.GuildQueueState{}).
			Where("guild_id = ?", guildID).
			Updates(map[string]interface{}{
				"lazy_load_queue": raw,
				"last_updated":    time.Now(),
			}).Error
	})
}

// PopOverflow atomically removes and returns up to n songs from the head of
// the lazy-load column.
func (r *QueueStateRepository) PopOverflow(guildID string, n int) ([]queue.SongRecord, error) {
	var popped []queue.SongRecord
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var state models.GuildQueueState
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("guild_id = ?", guildID).
			First(&state).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		stored, err := unmarshalSongs(state.LazyLoadQueue)
		if err != nil {
			return err
		}
		if len(stored) == 0 {
			return nil
		}
		if n > len(stored) {
			n = len(stored)
		}
		popped = stored[:n]
		rest := stored[n:]

		raw, err := marshalSongs(rest)
		if err != nil {
			return err
		}
		return tx.Model(&models.GuildQueueState{}).
			Where("guild_id = ?", guildID).
			Updates(map[string]interface{}{
				"lazy_load_queue": raw,
				"last_updated":    time.Now(),
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return popped, nil
}

// OverflowCount returns how many songs sit in the lazy-load column
func (r *QueueStateRepository) OverflowCount(guildID string) (int, error) {
	var state models.GuildQueueState
	err := r.db.Select("lazy_load_queue").Where("guild_id = ?", guildID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	stored, err := unmarshalSongs(state.LazyLoadQueue)
	if err != nil {
		return 0, err
	}
	return len(stored), nil
}

// SaveSnapshot writes the playback snapshot columns, leaving the lazy-load
// column untouched.
func (r *QueueStateRepository) SaveSnapshot(guildID string, snap queue.Snapshot) error {
	nowPlaying := "null"
	if snap.NowPlaying != nil {
		data, err := json.Marshal(snap.NowPlaying)
		if err != nil {
			return fmt.Errorf("marshal now playing: %w", err)
		}
		nowPlaying = string(data)
	}

	queueItems, err := marshalSongs(snap.Queue)
	if err != nil {
		return err
	}
	historyItems, err := marshalSongs(snap.History)
	if err != nil {
		return err
	}

	playlist := "null"
	if snap.Playlist != nil {
		data, err := json.Marshal(snap.Playlist)
		if err != nil {
			return fmt.Errorf("marshal playlist context: %w", err)
		}
		playlist = string(data)
	}

	volume, err := json.Marshal(volumePayload{Pct: snap.VolumePct})
	if err != nil {
		return fmt.Errorf("marshal volume: %w", err)
	}

	state := models.GuildQueueState{
		GuildID:         guildID,
		NowPlaying:      nowPlaying,
		QueueItems:      queueItems,
		HistoryItems:    historyItems,
		CurrentPlaylist: playlist,
		Volume:          string(volume),
		IsMuted:         snap.Muted,
		LastUpdated:     time.Now(),
	}

	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "guild_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"now_playing", "queue_items", "history_items",
			"current_playlist", "volume", "is_muted", "last_updated",
		}),
	}).Create(&state).Error
}

// LoadSnapshot reads the playback snapshot and the overflow size. A missing
// row yields a nil snapshot.
func (r *QueueStateRepository) LoadSnapshot(guildID string) (*queue.Snapshot, int, error) {
	var state models.GuildQueueState
	err := r.db.Where("guild_id = ?", guildID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	snap := &queue.Snapshot{Muted: state.IsMuted}

	if state.NowPlaying != "" && state.NowPlaying != "null" {
		var rec queue.SongRecord
		if err := json.Unmarshal([]byte(state.NowPlaying), &rec); err != nil {
			return nil, 0, fmt.Errorf("unmarshal now playing: %w", err)
		}
		snap.NowPlaying = &rec
	}

	if snap.Queue, err = unmarshalSongs(state.QueueItems); err != nil {
		return nil, 0, err
	}
	if snap.History, err = unmarshalSongs(state.HistoryItems); err != nil {
		return nil, 0, err
	}

	if state.CurrentPlaylist != "" && state.CurrentPlaylist != "null" {
		var pl queue.PlaylistContext
		if err := json.Unmarshal([]byte(state.CurrentPlaylist), &pl); err != nil {
			return nil, 0, fmt.Errorf("unmarshal playlist context: %w", err)
		}
		snap.Playlist = &pl
	}

	var vol volumePayload
	if state.Volume != "" && state.Volume != "null" {
		if err := json.Unmarshal([]byte(state.Volume), &vol); err != nil {
			return nil, 0, fmt.Errorf("unmarshal volume: %w", err)
		}
	}
	snap.VolumePct = vol.Pct

	overflow, err := unmarshalSongs(state.LazyLoadQueue)
	if err != nil {
		return nil, 0, err
	}
	return snap, len(overflow), nil
}

// ClearGuild resets the guild row to an empty state
func (r *QueueStateRepository) ClearGuild(guildID string) error {
	return r.db.Model(&models.GuildQueueState{}).
		Where("guild_id = ?", guildID).
		Updates(map[string]interface{}{
			"now_playing":      "null",
			"queue_items":      "[]",
			"history_items":    "[]",
			"lazy_load_queue":  "[]",
			"current_playlist": "null",
			"last_updated":     time.Now(),
		}).Error
}

package queue

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Source identifies where a song record came from
type Source string

const (
	SourceYouTubeTrack        Source = "youtube-track"
	SourceYouTubePlaylistItem Source = "youtube-playlist-item"
	SourceSpotifyTrack        Source = "spotify-track"
	SourceSearch              Source = "search"
)

// PreloadState tracks the decode-ahead lifecycle of a record
type PreloadState string

const (
	PreloadNotStarted PreloadState = "not-started"
	PreloadInProgress PreloadState = "in-progress"
	PreloadReady      PreloadState = "ready"
	PreloadFailed     PreloadState = "failed"
)

// Requester identifies who asked for a song
type Requester struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// PreloadInfo carries the decoded-artifact state for a record. ArtifactPath
// is only meaningful while State is ready.
type PreloadInfo struct {
	State            PreloadState `json:"state"`
	ArtifactPath     string       `json:"artifact_path,omitempty"`
	VolumeAppliedPct int          `json:"volume_applied_pct,omitempty"`
}

// SongRecord is the unit of work that flows from the resolver through the
// queue to the player. StreamKey is opaque to everything but the process
// runner; for spotify-bridged records it is a search phrase rather than a URL.
type SongRecord struct {
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	Artist       string      `json:"artist,omitempty"`
	DurationMs   int64       `json:"duration_ms,omitempty"`
	ThumbnailURL string      `json:"thumbnail_url,omitempty"`
	Source       Source      `json:"source"`
	StreamKey    string      `json:"stream_key"`
	SourceURL    string      `json:"source_url,omitempty"`
	RequestedBy  Requester   `json:"requested_by"`
	Preload      PreloadInfo `json:"preload"`
}

// Duration returns the track length, zero when unknown
func (s *SongRecord) Duration() time.Duration {
	if s.DurationMs <= 0 {
		return 0
	}
	return time.Duration(s.DurationMs) * time.Millisecond
}

// Matches reports whether two records refer to the same song for dedup
// purposes: same stream key, same exact title, or same source URL.
func (s *SongRecord) Matches(other *SongRecord) bool {
	if other == nil {
		return false
	}
	if s.StreamKey != "" && s.StreamKey == other.StreamKey {
		return true
	}
	if s.Title != "" && s.Title == other.Title {
		return true
	}
	if s.SourceURL != "" && s.SourceURL == other.SourceURL {
		return true
	}
	return false
}

// ResetPreload clears any decode-ahead state on the record
func (s *SongRecord) ResetPreload() {
	s.Preload = PreloadInfo{State: PreloadNotStarted}
}

// NormalizeQuery lowercases a query and collapses internal whitespace so
// equivalent inputs hash identically.
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

// HashQuery returns the hex sha256 of the normalized query. Used as the
// record id and the metadata cache key.
func HashQuery(query string) string {
	sum := sha256.Sum256([]byte(NormalizeQuery(query)))
	return hex.EncodeToString(sum[:])
}

// PlaylistContext describes the playlist an overflow originated from
type PlaylistContext struct {
	Title       string `json:"title"`
	SourceURL   string `json:"source_url"`
	TotalTracks int    `json:"total_tracks"`
}

// Snapshot is the persisted form of a guild's playback state
type Snapshot struct {
	NowPlaying *SongRecord      `json:"now_playing,omitempty"`
	Queue      []SongRecord     `json:"queue"`
	History    []SongRecord     `json:"history"`
	Playlist   *PlaylistContext `json:"playlist,omitempty"`
	VolumePct  int              `json:"volume_pct"`
	Muted      bool             `json:"muted"`
}

package resolver

import (
	"context"
	"time"

	"github.com/latoulicious/groovebox/pkg/database/models"
	"github.com/latoulicious/groovebox/pkg/queue"
	"github.com/latoulicious/groovebox/pkg/runner"
)

// TrackResolver is the slice of the process runner the resolver needs
type TrackResolver interface {
	Resolve(ctx context.Context, kind runner.ResolveKind, query, guildID string, timeout time.Duration) (*runner.TrackMeta, error)
	PlaylistTitle(ctx context.Context, playlistURL, guildID string) (string, error)
	PlaylistItems(ctx context.Context, playlistURL, guildID string, max int) (title string, total int, items []runner.PlaylistItem, err error)
}

// CatalogClient is the Spotify surface the resolver consumes
type CatalogClient interface {
	Track(ctx context.Context, trackID string) (*SpotifyTrack, error)
	PlaylistName(ctx context.Context, playlistID string) (string, error)
	PlaylistTracks(ctx context.Context, playlistID string, cap int) ([]SpotifyTrack, int, error)
}

// MetadataStore is the read-through cache for resolved track metadata
type MetadataStore interface {
	GetByQueryHash(queryHash string) (*models.AudioMetadata, error)
	Upsert(meta *models.AudioMetadata) error
}

// Service resolves play intents into ordered song records
type Service interface {
	Resolve(ctx context.Context, intent *PlayIntent, guildID string, requester queue.Requester, maxDurationSec int) ([]queue.SongRecord, *Report, error)
}

package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/latoulicious/groovebox/pkg/database/models"
	"github.com/latoulicious/groovebox/pkg/faults"
	"github.com/latoulicious/groovebox/pkg/logging"
	"github.com/latoulicious/groovebox/pkg/queue"
	"github.com/latoulicious/groovebox/pkg/runner"
)

// IntentKind classifies what a play query asks for
type IntentKind string

const (
	IntentSpotifyPlaylist IntentKind = "spotify-playlist"
	IntentSpotifyTrack    IntentKind = "spotify-track"
	IntentYouTubePlaylist IntentKind = "youtube-playlist"
	IntentYouTubeTrack    IntentKind = "youtube-track"
	IntentSearch          IntentKind = "search"
)

// PlayIntent is a validated, classified play request. SpotifyID and VideoID
// are filled for the kinds that carry one.
type PlayIntent struct {
	Kind      IntentKind
	Raw       string
	SpotifyID string
	VideoID   string
}

// Report carries the side notes of a resolution: playlist identity and how
// many tracks were dropped by the cap or the duration filter.
type Report struct {
	PlaylistTitle string
	PlaylistURL   string
	TotalTracks   int
	Truncated     int
	OverLimit     int
}

// HasPlaylist reports whether the resolution expanded a playlist
func (r *Report) HasPlaylist() bool {
	return r != nil && r.PlaylistTitle != ""
}

var (
	spotifyTrackRe    = regexp.MustCompile(`spotify\.com/(?:intl-[a-z]+(?:-[A-Za-z]+)?/)?track/([a-zA-Z0-9]+)`)
	spotifyPlaylistRe = regexp.MustCompile(`spotify\.com/(?:intl-[a-z]+(?:-[A-Za-z]+)?/)?playlist/([a-zA-Z0-9]+)`)
)

// ParseIntent validates and classifies a raw play query
func ParseIntent(raw string) (*PlayIntent, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, faults.New(faults.CategoryValidation, faults.CodeValidationInvalidQuery,
			"the query is empty")
	}
	if looksLikeJSON(trimmed) {
		return nil, faults.New(faults.CategoryValidation, faults.CodeValidationInvalidQuery,
			"the query looks like structured data, not a song")
	}

	if !runner.IsURL(trimmed) {
		return &PlayIntent{Kind: IntentSearch, Raw: trimmed}, nil
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, faults.Wrap(faults.CategoryValidation, faults.CodeValidationInvalidURL,
			"the query is not a valid URL", err)
	}
	host := strings.ToLower(u.Hostname())

	switch {
	case host == "open.spotify.com" || strings.HasSuffix(host, ".spotify.com"):
		if m := spotifyPlaylistRe.FindStringSubmatch(trimmed); len(m) > 1 {
			return &PlayIntent{Kind: IntentSpotifyPlaylist, Raw: trimmed, SpotifyID: m[1]}, nil
		}
		if m := spotifyTrackRe.FindStringSubmatch(trimmed); len(m) > 1 {
			return &PlayIntent{Kind: IntentSpotifyTrack, Raw: trimmed, SpotifyID: m[1]}, nil
		}
		return nil, faults.New(faults.CategoryMedia, faults.CodeMediaUnsupportedURL,
			"only spotify tracks and playlists are supported")

	case isYouTubeHost(host):
		if u.Query().Get("list") != "" {
			return &PlayIntent{Kind: IntentYouTubePlaylist, Raw: trimmed}, nil
		}
		if id := youtubeVideoID(u); id != "" {
			return &PlayIntent{Kind: IntentYouTubeTrack, Raw: trimmed, VideoID: id}, nil
		}
		return nil, faults.New(faults.CategoryMedia, faults.CodeMediaUnsupportedURL,
			"the youtube URL does not point at a video or playlist")

	default:
		return nil, faults.New(faults.CategoryMedia, faults.CodeMediaUnsupportedURL,
			fmt.Sprintf("URLs from %s are not supported", host))
	}
}

func looksLikeJSON(s string) bool {
	if !strings.HasPrefix(s, "{") && !strings.HasPrefix(s, "[") {
		return false
	}
	return json.Valid([]byte(s))
}

func isYouTubeHost(host string) bool {
	return host == "youtu.be" || host == "youtube.com" || strings.HasSuffix(host, ".youtube.com")
}

// youtubeVideoID extracts the video id from watch, short-link, shorts, live
// and embed URL shapes. Empty when the URL has no video component.
func youtubeVideoID(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	if host == "youtu.be" {
		return strings.Trim(strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)[0], "/")
	}
	if u.Path == "/watch" {
		return u.Query().Get("v")
	}
	for _, prefix := range []string{"/shorts/", "/live/", "/embed/"} {
		if strings.HasPrefix(u.Path, prefix) {
			rest := strings.TrimPrefix(u.Path, prefix)
			return strings.SplitN(rest, "/", 2)[0]
		}
	}
	return ""
}

func canonicalVideoURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// DefaultResolver turns play intents into song records, bridging spotify
// tracks to the streaming provider and filtering by guild duration limits.
type DefaultResolver struct {
	runner    TrackResolver
	catalog   CatalogClient
	meta      MetadataStore
	maxTracks int
	logger    logging.Logger
}

// NewResolver creates the resolver. catalog may be nil when spotify is not
// configured; meta may be nil to disable the metadata cache.
func NewResolver(tracks TrackResolver, catalog CatalogClient, meta MetadataStore, maxPlaylistTracks int) *DefaultResolver {
	if maxPlaylistTracks <= 0 {
		maxPlaylistTracks = 100
	}
	return &DefaultResolver{
		runner:    tracks,
		catalog:   catalog,
		meta:      meta,
		maxTracks: maxPlaylistTracks,
		logger:    logging.GetGlobalLoggerFactory().CreateLogger("resolver"),
	}
}

// Resolve expands an intent into ordered song records. Records whose known
// duration exceeds maxDurationSec (0 = unlimited) are dropped; when nothing
// survives, the duration fault is returned so the user sees why.
func (r *DefaultResolver) Resolve(ctx context.Context, intent *PlayIntent, guildID string, requester queue.Requester, maxDurationSec int) ([]queue.SongRecord, *Report, error) {
	if intent == nil {
		return nil, nil, faults.New(faults.CategoryValidation, faults.CodeValidationMissingField,
			"no intent to resolve")
	}

	r.logger.Info("Resolving play intent", map[string]interface{}{
		"guild_id": guildID,
		"kind":     string(intent.Kind),
	})

	switch intent.Kind {
	case IntentYouTubeTrack:
		return r.resolveYouTubeTrack(ctx, intent, guildID, requester, maxDurationSec)
	case IntentSearch:
		return r.resolveSearch(ctx, intent, guildID, requester, maxDurationSec)
	case IntentYouTubePlaylist:
		return r.resolveYouTubePlaylist(ctx, intent, guildID, requester, maxDurationSec)
	case IntentSpotifyTrack:
		return r.resolveSpotifyTrack(ctx, intent, guildID, requester, maxDurationSec)
	case IntentSpotifyPlaylist:
		return r.resolveSpotifyPlaylist(ctx, intent, guildID, requester, maxDurationSec)
	default:
		return nil, nil, faults.New(faults.CategoryValidation, faults.CodeValidationInvalidQuery,
			fmt.Sprintf("unknown intent kind %q", intent.Kind))
	}
}

func (r *DefaultResolver) resolveYouTubeTrack(ctx context.Context, intent *PlayIntent, guildID string, requester queue.Requester, maxDurationSec int) ([]queue.SongRecord, *Report, error) {
	canonical := canonicalVideoURL(intent.VideoID)

	info, err := r.lookupTrack(ctx, runner.KindTrack, canonical, canonical, guildID)
	if err != nil {
		return nil, nil, err
	}
	if err := checkDuration(info.DurationMs, maxDurationSec); err != nil {
		return nil, nil, err
	}

	rec := r.newRecord(queue.SourceYouTubeTrack, canonical, canonical, requester, info)
	return []queue.SongRecord{rec}, &Report{TotalTracks: 1}, nil
}

func (r *DefaultResolver) resolveSearch(ctx context.Context, intent *PlayIntent, guildID string, requester queue.Requester, maxDurationSec int) ([]queue.SongRecord, *Report, error) {
	info, err := r.lookupTrack(ctx, runner.KindSearch, intent.Raw, intent.Raw, guildID)
	if err != nil {
		return nil, nil, err
	}
	if err := checkDuration(info.DurationMs, maxDurationSec); err != nil {
		return nil, nil, err
	}

	rec := r.newRecord(queue.SourceSearch, "ytsearch1:"+intent.Raw, intent.Raw, requester, info)
	return []queue.SongRecord{rec}, &Report{TotalTracks: 1}, nil
}

func (r *DefaultResolver) resolveYouTubePlaylist(ctx context.Context, intent *PlayIntent, guildID string, requester queue.Requester, maxDurationSec int) ([]queue.SongRecord, *Report, error) {
	title, err := r.runner.PlaylistTitle(ctx, intent.Raw, guildID)
	if err != nil {
		// Enumeration carries its own title; keep going
		r.logger.Warn("Playlist title fetch failed, falling back to enumeration title", map[string]interface{}{
			"guild_id": guildID,
			"error":    err.Error(),
		})
	}

	enumTitle, total, items, err := r.runner.PlaylistItems(ctx, intent.Raw, guildID, r.maxTracks)
	if err != nil {
		return nil, nil, err
	}
	if title == "" {
		title = enumTitle
	}

	report := &Report{
		PlaylistTitle: title,
		PlaylistURL:   intent.Raw,
		TotalTracks:   total,
	}
	if total > len(items) {
		report.Truncated = total - len(items)
	}

	var limitErr error
	records := make([]queue.SongRecord, 0, len(items))
	for _, item := range items {
		if err := checkDuration(item.DurationMs, maxDurationSec); err != nil {
			report.OverLimit++
			if limitErr == nil {
				limitErr = err
			}
			continue
		}
		records = append(records, r.newRecord(queue.SourceYouTubePlaylistItem, item.URL, item.URL, requester, &trackInfo{
			Title:        item.Title,
			Artist:       item.Uploader,
			DurationMs:   item.DurationMs,
			SourceURL:    item.URL,
			ThumbnailURL: "",
		}))
	}

	return r.finishPlaylist(guildID, records, report, limitErr)
}

func (r *DefaultResolver) resolveSpotifyTrack(ctx context.Context, intent *PlayIntent, guildID string, requester queue.Requester, maxDurationSec int) ([]queue.SongRecord, *Report, error) {
	if r.catalog == nil {
		return nil, nil, faults.New(faults.CategoryNetwork, faults.CodeNetworkAuthFailed,
			"spotify credentials are not configured")
	}

	track, err := r.catalog.Track(ctx, intent.SpotifyID)
	if err != nil {
		return nil, nil, err
	}
	// Pre-filter on the catalog-reported duration; the streaming provider's
	// own duration is checked again at decode time
	if err := checkDuration(track.DurationMs, maxDurationSec); err != nil {
		return nil, nil, err
	}

	rec := r.bridgeRecord(track, intent.SpotifyID, requester)
	return []queue.SongRecord{rec}, &Report{TotalTracks: 1}, nil
}

func (r *DefaultResolver) resolveSpotifyPlaylist(ctx context.Context, intent *PlayIntent, guildID string, requester queue.Requester, maxDurationSec int) ([]queue.SongRecord, *Report, error) {
	if r.catalog == nil {
		return nil, nil, faults.New(faults.CategoryNetwork, faults.CodeNetworkAuthFailed,
			"spotify credentials are not configured")
	}

	title, err := r.catalog.PlaylistName(ctx, intent.SpotifyID)
	if err != nil {
		r.logger.Warn("Spotify playlist name fetch failed", map[string]interface{}{
			"guild_id": guildID,
			"error":    err.Error(),
		})
		title = "Spotify playlist"
	}

	tracks, total, err := r.catalog.PlaylistTracks(ctx, intent.SpotifyID, r.maxTracks)
	if err != nil {
		return nil, nil, err
	}

	report := &Report{
		PlaylistTitle: title,
		PlaylistURL:   intent.Raw,
		TotalTracks:   total,
	}
	if total > len(tracks) {
		report.Truncated = total - len(tracks)
	}

	var limitErr error
	records := make([]queue.SongRecord, 0, len(tracks))
	for i := range tracks {
		track := &tracks[i]
		if err := checkDuration(track.DurationMs, maxDurationSec); err != nil {
			report.OverLimit++
			if limitErr == nil {
				limitErr = err
			}
			continue
		}
		records = append(records, r.bridgeRecord(track, "", requester))
	}

	return r.finishPlaylist(guildID, records, report, limitErr)
}

// finishPlaylist applies the empty-result policy shared by both playlist
// kinds: surface the duration fault when the filter ate everything, a media
// fault when the playlist had nothing playable to begin with.
func (r *DefaultResolver) finishPlaylist(guildID string, records []queue.SongRecord, report *Report, limitErr error) ([]queue.SongRecord, *Report, error) {
	if len(records) == 0 {
		if limitErr != nil {
			return nil, report, limitErr
		}
		return nil, report, faults.New(faults.CategoryMedia, faults.CodeMediaUnavailable,
			"the playlist has no playable tracks")
	}

	r.logger.Info("Resolved playlist", map[string]interface{}{
		"guild_id":   guildID,
		"title":      report.PlaylistTitle,
		"records":    len(records),
		"total":      report.TotalTracks,
		"truncated":  report.Truncated,
		"over_limit": report.OverLimit,
	})
	return records, report, nil
}

// trackInfo is the provider-agnostic view of one resolved track
type trackInfo struct {
	Title        string
	Artist       string
	Uploader     string
	ThumbnailURL string
	SourceURL    string
	DurationMs   int64
}

// lookupTrack serves single-track metadata through the cache: a fresh cache
// row answers immediately, otherwise the runner resolves and the result is
// written back.
func (r *DefaultResolver) lookupTrack(ctx context.Context, kind runner.ResolveKind, query, cacheKey, guildID string) (*trackInfo, error) {
	hash := queue.HashQuery(cacheKey)

	if r.meta != nil {
		cached, err := r.meta.GetByQueryHash(hash)
		if err != nil {
			r.logger.Warn("Metadata cache read failed", map[string]interface{}{
				"guild_id": guildID,
				"error":    err.Error(),
			})
		} else if cached != nil {
			r.logger.Debug("Metadata cache hit", map[string]interface{}{
				"guild_id": guildID,
				"title":    cached.Title,
			})
			return &trackInfo{
				Title:        cached.Title,
				Artist:       cached.Uploader,
				Uploader:     cached.Uploader,
				ThumbnailURL: cached.ThumbnailURL,
				SourceURL:    cached.SourceURL,
				DurationMs:   int64(cached.DurationSeconds) * 1000,
			}, nil
		}
	}

	meta, err := r.runner.Resolve(ctx, kind, query, guildID, 0)
	if err != nil {
		return nil, err
	}

	artist := meta.Artist
	if artist == "" {
		artist = meta.Uploader
	}
	info := &trackInfo{
		Title:        meta.Title,
		Artist:       artist,
		Uploader:     meta.Uploader,
		ThumbnailURL: meta.ThumbnailURL,
		SourceURL:    meta.WebpageURL,
		DurationMs:   meta.DurationMs,
	}

	if r.meta != nil {
		entry := &models.AudioMetadata{
			QueryHash:          hash,
			Title:              meta.Title,
			DurationSeconds:    int(meta.DurationMs / 1000),
			ThumbnailURL:       meta.ThumbnailURL,
			Uploader:           meta.Uploader,
			SourceURL:          meta.WebpageURL,
			StreamURL:          meta.StreamURL,
			StreamURLExpiresAt: meta.StreamExpires,
			FileSizeBytes:      meta.FileSizeBytes,
			FormatInfo:         "{}",
			AdditionalMetadata: "{}",
		}
		if err := r.meta.Upsert(entry); err != nil {
			r.logger.Warn("Metadata cache write failed", map[string]interface{}{
				"guild_id": guildID,
				"error":    err.Error(),
			})
		}
	}
	return info, nil
}

// newRecord builds a song record whose id is the stable hash of the track's
// canonical identity, so the same song resolves to the same id every time.
func (r *DefaultResolver) newRecord(source queue.Source, streamKey, identity string, requester queue.Requester, info *trackInfo) queue.SongRecord {
	return queue.SongRecord{
		ID:           queue.HashQuery(identity),
		Title:        info.Title,
		Artist:       info.Artist,
		DurationMs:   info.DurationMs,
		ThumbnailURL: info.ThumbnailURL,
		Source:       source,
		StreamKey:    streamKey,
		SourceURL:    info.SourceURL,
		RequestedBy:  requester,
		Preload:      queue.PreloadInfo{State: queue.PreloadNotStarted},
	}
}

// bridgeRecord maps a catalog track onto a record whose stream key is a
// search phrase resolved against the streaming provider at play time.
func (r *DefaultResolver) bridgeRecord(track *SpotifyTrack, trackID string, requester queue.Requester) queue.SongRecord {
	sourceURL := ""
	if trackID != "" {
		sourceURL = "https://open.spotify.com/track/" + trackID
	}
	return queue.SongRecord{
		ID:           queue.HashQuery(track.SearchPhrase()),
		Title:        track.Name,
		Artist:       track.PrimaryArtist(),
		DurationMs:   track.DurationMs,
		ThumbnailURL: track.ThumbnailURL(),
		Source:       queue.SourceSpotifyTrack,
		StreamKey:    track.SearchPhrase(),
		SourceURL:    sourceURL,
		RequestedBy:  requester,
		Preload:      queue.PreloadInfo{State: queue.PreloadNotStarted},
	}
}

// checkDuration rejects tracks whose known duration exceeds the guild limit.
// Unknown durations pass; they are re-checked once the provider reports one.
func checkDuration(durationMs int64, maxDurationSec int) error {
	if maxDurationSec <= 0 || durationMs <= 0 {
		return nil
	}
	if durationMs > int64(maxDurationSec)*1000 {
		return faults.New(faults.CategoryMedia, faults.CodeMediaDurationLimit,
			"the track exceeds the guild duration limit").
			WithDetail("duration_seconds", durationMs/1000).
			WithDetail("limit_seconds", maxDurationSec)
	}
	return nil
}

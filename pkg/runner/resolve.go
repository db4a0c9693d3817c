package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/latoulicious/groovebox/pkg/faults"
)

// ResolveKind selects the metadata operation
type ResolveKind string

const (
	// KindTrack resolves a direct media URL
	KindTrack ResolveKind = "track"
	// KindSearch resolves the first search result for a free-text query
	KindSearch ResolveKind = "search"
)

// TrackMeta is what the runner learns about a single track
type TrackMeta struct {
	ID            string
	Title         string
	Artist        string
	Uploader      string
	DurationMs    int64
	ThumbnailURL  string
	WebpageURL    string
	StreamURL     string
	StreamExpires *time.Time
	FileSizeBytes int64
}

// PlaylistItem is one flat-playlist entry. Duration may be missing for
// entries the provider did not expand.
type PlaylistItem struct {
	ID         string
	Title      string
	Uploader   string
	DurationMs int64
	URL        string
}

// ytdlpTrack mirrors the yt-dlp --dump-json fields the runner consumes
type ytdlpTrack struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Artist         string  `json:"artist"`
	Creator        string  `json:"creator"`
	Uploader       string  `json:"uploader"`
	Channel        string  `json:"channel"`
	Duration       float64 `json:"duration"`
	Thumbnail      string  `json:"thumbnail"`
	WebpageURL     string  `json:"webpage_url"`
	URL            string  `json:"url"`
	Filesize       int64   `json:"filesize"`
	FilesizeApprox int64   `json:"filesize_approx"`
}

type ytdlpPlaylist struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Count   int    `json:"playlist_count"`
	Entries []struct {
		ID       string  `json:"id"`
		Title    string  `json:"title"`
		Uploader string  `json:"uploader"`
		Duration float64 `json:"duration"`
		URL      string  `json:"url"`
	} `json:"entries"`
}

// Resolve fetches metadata for one track. For KindSearch the query is run
// through a single-result provider search; for KindTrack it must be a URL.
// timeout bounds each attempt; zero falls back to the configured default.
// Transient spawn and network failures are retried with backoff.
func (r *Runner) Resolve(ctx context.Context, kind ResolveKind, query, guildID string, timeout time.Duration) (*TrackMeta, error) {
	if timeout <= 0 {
		timeout = r.cfg.ResolveTimeout
	}

	target := query
	if kind == KindSearch {
		target = "ytsearch1:" + query
	}

	args := []string{
		"--dump-json",
		"--no-playlist",
		"--no-warnings",
		"-q",
		"-f", "bestaudio/best",
		target,
	}

	started := time.Now()
	var meta *TrackMeta

	err := faults.Retry(ctx, r.retry, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		out, stderr, err := r.runCapture(attemptCtx, guildID, "yt-dlp", r.cfg.YtDlpBinary, args)
		if err != nil {
			return err
		}

		parsed, err := parseTrackJSON(out)
		if err != nil {
			r.logger.Error("Failed to parse yt-dlp metadata", err, map[string]interface{}{
				"guild_id":    guildID,
				"stderr_tail": strings.Join(stderr, " | "),
			})
			return err
		}
		meta = parsed
		return nil
	})

	if r.metrics != nil {
		r.metrics.RecordResolve(err == nil, time.Since(started))
	}
	if err != nil {
		return nil, err
	}

	r.logger.Info("Resolved track metadata", map[string]interface{}{
		"guild_id": guildID,
		"kind":     string(kind),
		"title":    meta.Title,
		"duration": (time.Duration(meta.DurationMs) * time.Millisecond).String(),
	})
	return meta, nil
}

// PlaylistTitle fetches only the playlist title, on a short budget
func (r *Runner) PlaylistTitle(ctx context.Context, playlistURL, guildID string) (string, error) {
	args := []string{
		"--flat-playlist",
		"--dump-single-json",
		"--no-warnings",
		"-q",
		"--playlist-end", "1",
		playlistURL,
	}

	opCtx, cancel := context.WithTimeout(ctx, r.cfg.PlaylistTitleTimeout)
	defer cancel()

	out, _, err := r.runCapture(opCtx, guildID, "yt-dlp", r.cfg.YtDlpBinary, args)
	if err != nil {
		return "", err
	}

	var playlist ytdlpPlaylist
	if err := json.Unmarshal(out, &playlist); err != nil {
		return "", faults.Wrap(faults.CategoryMedia, faults.CodeMediaResolveFailed,
			"failed to parse playlist metadata", err)
	}
	if playlist.Title == "" {
		return "", faults.New(faults.CategoryMedia, faults.CodeMediaResolveFailed,
			"playlist has no title")
	}
	return playlist.Title, nil
}

// PlaylistItems enumerates a playlist without downloading anything. max
// bounds how far the provider enumerates; total is the provider-reported
// playlist size, which may exceed len(items) when max truncates.
func (r *Runner) PlaylistItems(ctx context.Context, playlistURL, guildID string, max int) (title string, total int, items []PlaylistItem, err error) {
	args := []string{
		"--flat-playlist",
		"--dump-single-json",
		"--no-warnings",
		"-q",
	}
	if max > 0 {
		args = append(args, "--playlist-end", strconv.Itoa(max))
	}
	args = append(args, playlistURL)

	opCtx, cancel := context.WithTimeout(ctx, r.cfg.PlaylistItemsTimeout)
	defer cancel()

	out, _, err := r.runCapture(opCtx, guildID, "yt-dlp", r.cfg.YtDlpBinary, args)
	if err != nil {
		return "", 0, nil, err
	}

	var playlist ytdlpPlaylist
	if err := json.Unmarshal(out, &playlist); err != nil {
		return "", 0, nil, faults.Wrap(faults.CategoryMedia, faults.CodeMediaResolveFailed,
			"failed to parse playlist enumeration", err)
	}

	items = make([]PlaylistItem, 0, len(playlist.Entries))
	for _, entry := range playlist.Entries {
		if entry.ID == "" && entry.URL == "" {
			continue
		}
		itemURL := entry.URL
		if itemURL == "" {
			itemURL = "https://www.youtube.com/watch?v=" + entry.ID
		}
		items = append(items, PlaylistItem{
			ID:         entry.ID,
			Title:      entry.Title,
			Uploader:   entry.Uploader,
			DurationMs: int64(entry.Duration * 1000),
			URL:        itemURL,
		})
	}

	total = playlist.Count
	if total < len(items) {
		total = len(items)
	}

	r.logger.Info("Enumerated playlist", map[string]interface{}{
		"guild_id": guildID,
		"title":    playlist.Title,
		"items":    len(items),
		"total":    total,
	})
	return playlist.Title, total, items, nil
}

func parseTrackJSON(out []byte) (*TrackMeta, error) {
	// yt-dlp may emit one JSON object per line; the first is the track
	line := out
	if idx := strings.IndexByte(string(out), '\n'); idx > 0 {
		line = out[:idx]
	}

	var track ytdlpTrack
	if err := json.Unmarshal(line, &track); err != nil {
		return nil, faults.Wrap(faults.CategoryMedia, faults.CodeMediaResolveFailed,
			"failed to parse track metadata", err)
	}
	if track.Title == "" {
		return nil, faults.New(faults.CategoryMedia, faults.CodeMediaResolveFailed,
			"resolver returned no usable metadata")
	}

	artist := track.Artist
	if artist == "" {
		artist = track.Creator
	}
	uploader := track.Uploader
	if uploader == "" {
		uploader = track.Channel
	}

	size := track.Filesize
	if size == 0 {
		size = track.FilesizeApprox
	}

	meta := &TrackMeta{
		ID:            track.ID,
		Title:         track.Title,
		Artist:        artist,
		Uploader:      uploader,
		DurationMs:    int64(track.Duration * 1000),
		ThumbnailURL:  track.Thumbnail,
		WebpageURL:    track.WebpageURL,
		StreamURL:     track.URL,
		FileSizeBytes: size,
	}
	if exp := streamURLExpiry(track.URL); exp != nil {
		meta.StreamExpires = exp
	}
	return meta, nil
}

// streamURLExpiry extracts the expiry of a provider stream URL. Google
// stream URLs carry an `expire` unix timestamp; anything else gets a
// conservative default so the cache never serves a dead link for long.
func streamURLExpiry(rawURL string) *time.Time {
	if rawURL == "" {
		return nil
	}

	if u, err := url.Parse(rawURL); err == nil {
		if expire := u.Query().Get("expire"); expire != "" {
			if unix, err := strconv.ParseInt(expire, 10, 64); err == nil {
				t := time.Unix(unix, 0)
				return &t
			}
		}
	}

	t := time.Now().Add(30 * time.Minute)
	return &t
}

// IsURL reports whether a stream key is a URL rather than a search phrase
func IsURL(streamKey string) bool {
	return strings.HasPrefix(streamKey, "http://") || strings.HasPrefix(streamKey, "https://")
}

// searchTarget maps a stream key onto a yt-dlp target. URLs and already
// prefixed search keys pass through; bare phrases become a single-result
// search.
func searchTarget(streamKey string) string {
	if IsURL(streamKey) || strings.HasPrefix(streamKey, "ytsearch") {
		return streamKey
	}
	return "ytsearch1:" + streamKey
}

func fmtVolumeFilter(volumePct int) string {
	if volumePct < 0 {
		volumePct = 0
	}
	if volumePct > 100 {
		volumePct = 100
	}
	return fmt.Sprintf("volume=%.2f", float64(volumePct)/100.0)
}

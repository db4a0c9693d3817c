package resolver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/latoulicious/groovebox/pkg/config"
	"github.com/latoulicious/groovebox/pkg/faults"
	"github.com/latoulicious/groovebox/pkg/logging"
)

const (
	defaultSpotifyAPIBase  = "https://api.spotify.com"
	defaultSpotifyTokenURL = "https://accounts.spotify.com/api/token"

	// spotifyPageSize is the catalog's page size for playlist tracks
	spotifyPageSize = 50

	// tokenExpirySlack is subtracted from expires_in so a token is never
	// used right at its deadline
	tokenExpirySlack = 300 * time.Second
)

// playlistTracksFields trims the playlist-tracks response to what the
// bridge consumes.
const playlistTracksFields = "items(track(name,duration_ms,artists(name),album(name,images))),next,total"

// SpotifyClient talks to the Spotify Web API with client-credentials auth.
// The token is cached and refreshed lazily; a 401 invalidates it and the
// request is retried once with a fresh token.
type SpotifyClient struct {
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       logging.Logger

	apiBase  string
	tokenURL string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// SpotifyTrack is the subset of the catalog's track object the bridge needs
type SpotifyTrack struct {
	Name    string `json:"name"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Name   string `json:"name"`
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
	} `json:"album"`
	DurationMs int64 `json:"duration_ms"`
}

// PrimaryArtist returns the first credited artist, empty when unknown
func (t *SpotifyTrack) PrimaryArtist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0].Name
}

// SearchPhrase builds the stream key used to bridge a catalog track to the
// streaming provider at play time.
func (t *SpotifyTrack) SearchPhrase() string {
	artist := t.PrimaryArtist()
	if artist == "" {
		return t.Name
	}
	return t.Name + " " + artist
}

// ThumbnailURL returns the largest album art, empty when the album has none
func (t *SpotifyTrack) ThumbnailURL() string {
	if len(t.Album.Images) == 0 {
		return ""
	}
	return t.Album.Images[0].URL
}

type spotifyTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type spotifyPlaylistInfo struct {
	Name string `json:"name"`
}

type spotifyPlaylistPage struct {
	Items []struct {
		Track *SpotifyTrack `json:"track"`
	} `json:"items"`
	Next  string `json:"next"`
	Total int    `json:"total"`
}

// NewSpotifyClient creates a catalog client. Credentials are required; the
// resolver treats a nil client as "spotify not configured".
func NewSpotifyClient(cfg config.SpotifyConfig, timeout time.Duration) (*SpotifyClient, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, faults.New(faults.CategoryNetwork, faults.CodeNetworkAuthFailed,
			"spotify credentials are not configured")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &SpotifyClient{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logging.GetGlobalLoggerFactory().CreateLogger("spotify"),
		apiBase:      defaultSpotifyAPIBase,
		tokenURL:     defaultSpotifyTokenURL,
	}, nil
}

// refreshToken fetches a fresh client-credentials token. Callers must hold
// the mutex.
func (c *SpotifyClient) refreshTokenLocked(ctx context.Context) error {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return faults.Wrap(faults.CategoryNetwork, faults.CodeNetworkConnectionFailed,
			"failed to build spotify token request", err)
	}
	auth := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransport(err, "spotify token endpoint unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return faults.New(faults.CategoryNetwork, faults.CodeNetworkAuthFailed,
			"spotify rejected the client credentials").
			WithDetail("status", resp.StatusCode).
			WithDetail("body", string(body))
	}

	var token spotifyTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return faults.Wrap(faults.CategoryNetwork, faults.CodeNetworkInvalidResponse,
			"failed to decode spotify token response", err)
	}

	c.accessToken = token.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn)*time.Second - tokenExpirySlack)

	c.logger.Debug("Spotify access token refreshed", map[string]interface{}{
		"expires_in": token.ExpiresIn,
	})
	return nil
}

func (c *SpotifyClient) bearerToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken == "" || !time.Now().Before(c.tokenExpiry) {
		if err := c.refreshTokenLocked(ctx); err != nil {
			return "", err
		}
	}
	return c.accessToken, nil
}

func (c *SpotifyClient) invalidateToken() {
	c.mu.Lock()
	c.accessToken = ""
	c.mu.Unlock()
}

// getJSON performs an authenticated GET and decodes the body into out.
// A single 401 triggers a token refresh and one replay; a second 401
// surfaces as an auth fault.
func (c *SpotifyClient) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	retried := false
	for {
		token, err := c.bearerToken(ctx)
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return faults.Wrap(faults.CategoryNetwork, faults.CodeNetworkConnectionFailed,
				"failed to build spotify request", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return classifyTransport(err, "spotify API unreachable")
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			err = json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				return faults.Wrap(faults.CategoryNetwork, faults.CodeNetworkInvalidResponse,
					"failed to decode spotify response", err)
			}
			return nil

		case resp.StatusCode == http.StatusUnauthorized:
			resp.Body.Close()
			if retried {
				return faults.New(faults.CategoryNetwork, faults.CodeNetworkAuthFailed,
					"spotify rejected the access token twice")
			}
			retried = true
			c.invalidateToken()
			c.logger.Warn("Spotify token rejected, refreshing and retrying once", map[string]interface{}{
				"endpoint": endpoint,
			})
			continue

		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return faults.New(faults.CategoryMedia, faults.CodeMediaUnavailable,
				"the spotify track or playlist does not exist")

		case resp.StatusCode == http.StatusTooManyRequests:
			retryAfter := resp.Header.Get("Retry-After")
			resp.Body.Close()
			return faults.New(faults.CategoryNetwork, faults.CodeNetworkRateLimited,
				"spotify is rate limiting requests").
				WithDetail("retry_after", retryAfter)

		case resp.StatusCode >= 500:
			resp.Body.Close()
			return faults.New(faults.CategoryNetwork, faults.CodeNetworkServerError,
				fmt.Sprintf("spotify returned %d", resp.StatusCode))

		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return faults.New(faults.CategoryNetwork, faults.CodeNetworkInvalidResponse,
				fmt.Sprintf("unexpected spotify status %d", resp.StatusCode)).
				WithDetail("body", string(body))
		}
	}
}

// Track fetches a single catalog track by id
func (c *SpotifyClient) Track(ctx context.Context, trackID string) (*SpotifyTrack, error) {
	var track SpotifyTrack
	endpoint := fmt.Sprintf("%s/v1/tracks/%s", c.apiBase, trackID)
	if err := c.getJSON(ctx, endpoint, &track); err != nil {
		return nil, err
	}
	if track.Name == "" {
		return nil, faults.New(faults.CategoryNetwork, faults.CodeNetworkInvalidResponse,
			"spotify track response is missing a name")
	}
	return &track, nil
}

// PlaylistName fetches only the playlist's display name
func (c *SpotifyClient) PlaylistName(ctx context.Context, playlistID string) (string, error) {
	var info spotifyPlaylistInfo
	endpoint := fmt.Sprintf("%s/v1/playlists/%s?fields=name", c.apiBase, playlistID)
	if err := c.getJSON(ctx, endpoint, &info); err != nil {
		return "", err
	}
	return info.Name, nil
}

// PlaylistTracks pages through a playlist, following next links, stopping
// once cap tracks are collected. total is the catalog-reported playlist
// length so callers can warn about truncation.
func (c *SpotifyClient) PlaylistTracks(ctx context.Context, playlistID string, cap int) ([]SpotifyTrack, int, error) {
	endpoint := fmt.Sprintf("%s/v1/playlists/%s/tracks?fields=%s&limit=%d",
		c.apiBase, playlistID, url.QueryEscape(playlistTracksFields), spotifyPageSize)

	var tracks []SpotifyTrack
	total := 0

	for endpoint != "" {
		var page spotifyPlaylistPage
		if err := c.getJSON(ctx, endpoint, &page); err != nil {
			return nil, 0, err
		}
		if page.Total > total {
			total = page.Total
		}

		for _, item := range page.Items {
			// Deleted and region-locked entries come back as null tracks
			if item.Track == nil || item.Track.Name == "" {
				continue
			}
			tracks = append(tracks, *item.Track)
			if cap > 0 && len(tracks) >= cap {
				return tracks, total, nil
			}
		}
		endpoint = page.Next
	}

	if total < len(tracks) {
		total = len(tracks)
	}
	return tracks, total, nil
}

// classifyTransport maps a client-side HTTP error onto a network fault
func classifyTransport(err error, message string) *faults.Fault {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "context deadline exceeded") || strings.Contains(msg, "timeout") {
		return faults.Wrap(faults.CategoryNetwork, faults.CodeNetworkTimeout, message, err)
	}
	return faults.Wrap(faults.CategoryNetwork, faults.CodeNetworkConnectionFailed, message, err)
}

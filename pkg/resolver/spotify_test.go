package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latoulicious/groovebox/pkg/config"
	"github.com/latoulicious/groovebox/pkg/faults"
)

func newTestSpotify(t *testing.T, handler http.Handler) *SpotifyClient {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewSpotifyClient(config.SpotifyConfig{
		ClientID:     "test-id",
		ClientSecret: "test-secret",
	}, 5*time.Second)
	require.NoError(t, err)

	client.apiBase = srv.URL
	client.tokenURL = srv.URL + "/api/token"
	return client
}

func writeToken(w http.ResponseWriter, token string) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

func TestSpotifyClientRequiresCredentials(t *testing.T) {
	_, err := NewSpotifyClient(config.SpotifyConfig{}, time.Second)
	assert.Equal(t, faults.CodeNetworkAuthFailed, faults.CodeOf(err))
}

func TestSpotifyTokenIsCached(t *testing.T) {
	var tokenCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
		writeToken(w, "token-1")
	})
	mux.HandleFunc("/v1/tracks/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"name": "Song", "duration_ms": 1000,
			"artists": []map[string]string{{"name": "Artist"}},
		})
	})

	client := newTestSpotify(t, mux)

	_, err := client.Track(context.Background(), "abc")
	require.NoError(t, err)
	_, err = client.Track(context.Background(), "def")
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls), "second call must reuse the cached token")
}

func TestSpotifyRetriesOnceAfter401(t *testing.T) {
	var tokenCalls, trackCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&tokenCalls, 1)
		writeToken(w, fmt.Sprintf("token-%d", n))
	})
	mux.HandleFunc("/v1/tracks/", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&trackCalls, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "Bearer token-2", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"name": "Song", "duration_ms": 1000,
			"artists": []map[string]string{{"name": "Artist"}},
		})
	})

	client := newTestSpotify(t, mux)

	track, err := client.Track(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "Song", track.Name)
	assert.Equal(t, int32(2), atomic.LoadInt32(&tokenCalls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&trackCalls))
}

func TestSpotifySecond401IsAuthFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		writeToken(w, "always-rejected")
	})
	mux.HandleFunc("/v1/tracks/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	client := newTestSpotify(t, mux)

	_, err := client.Track(context.Background(), "abc")
	assert.Equal(t, faults.CodeNetworkAuthFailed, faults.CodeOf(err))
}

func TestSpotifyStatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantCode string
	}{
		{"not found", http.StatusNotFound, faults.CodeMediaUnavailable},
		{"rate limited", http.StatusTooManyRequests, faults.CodeNetworkRateLimited},
		{"server error", http.StatusBadGateway, faults.CodeNetworkServerError},
		{"teapot", http.StatusTeapot, faults.CodeNetworkInvalidResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
				writeToken(w, "token")
			})
			mux.HandleFunc("/v1/tracks/", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			client := newTestSpotify(t, mux)
			_, err := client.Track(context.Background(), "abc")
			assert.Equal(t, tt.wantCode, faults.CodeOf(err))
		})
	}
}

func TestSpotifyPlaylistPagination(t *testing.T) {
	var pageCalls int32

	mux := http.NewServeMux()
	var baseURL string
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		writeToken(w, "token")
	})
	mux.HandleFunc("/v1/playlists/pl1/tracks", func(w http.ResponseWriter, r *http.Request) {
		page := atomic.AddInt32(&pageCalls, 1)
		items := make([]map[string]interface{}, 0, 2)
		for i := 0; i < 2; i++ {
			items = append(items, map[string]interface{}{
				"track": map[string]interface{}{
					"name":        fmt.Sprintf("Track %d-%d", page, i),
					"duration_ms": 1000,
					"artists":     []map[string]string{{"name": "Artist"}},
				},
			})
		}
		resp := map[string]interface{}{"items": items, "total": 4}
		if page == 1 {
			resp["next"] = baseURL + "/v1/playlists/pl1/tracks?offset=2"
		}
		json.NewEncoder(w).Encode(resp)
	})

	client := newTestSpotify(t, mux)
	baseURL = client.apiBase

	tracks, total, err := client.PlaylistTracks(context.Background(), "pl1", 100)
	require.NoError(t, err)

	assert.Len(t, tracks, 4)
	assert.Equal(t, 4, total)
	assert.Equal(t, int32(2), atomic.LoadInt32(&pageCalls))
}

func TestSpotifyPlaylistCapStopsPagination(t *testing.T) {
	var pageCalls int32

	mux := http.NewServeMux()
	var baseURL string
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		writeToken(w, "token")
	})
	mux.HandleFunc("/v1/playlists/pl2/tracks", func(w http.ResponseWriter, r *http.Request) {
		page := atomic.AddInt32(&pageCalls, 1)
		items := make([]map[string]interface{}, 0, 3)
		for i := 0; i < 3; i++ {
			items = append(items, map[string]interface{}{
				"track": map[string]interface{}{
					"name":        fmt.Sprintf("Track %d-%d", page, i),
					"duration_ms": 1000,
					"artists":     []map[string]string{{"name": "Artist"}},
				},
			})
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"items": items,
			"total": 300,
			"next":  baseURL + "/v1/playlists/pl2/tracks?offset=next",
		})
	})

	client := newTestSpotify(t, mux)
	baseURL = client.apiBase

	tracks, total, err := client.PlaylistTracks(context.Background(), "pl2", 5)
	require.NoError(t, err)

	assert.Len(t, tracks, 5)
	assert.Equal(t, 300, total)
	assert.Equal(t, int32(2), atomic.LoadInt32(&pageCalls), "cap reached mid-page stops following next")
}

func TestSpotifyPlaylistSkipsNullTracks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", func(w http.ResponseWriter, r *http.Request) {
		writeToken(w, "token")
	})
	mux.HandleFunc("/v1/playlists/pl3/tracks", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[{"track":null},{"track":{"name":"Alive","duration_ms":1000,"artists":[{"name":"A"}]}}],"total":2}`))
	})

	client := newTestSpotify(t, mux)

	tracks, _, err := client.PlaylistTracks(context.Background(), "pl3", 100)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "Alive", tracks[0].Name)
}

func TestSpotifyTrackHelpers(t *testing.T) {
	track := spTrack(t, "Blinding Lights", "The Weeknd", 200_000)

	assert.Equal(t, "The Weeknd", track.PrimaryArtist())
	assert.Equal(t, "Blinding Lights The Weeknd", track.SearchPhrase())

	var bare SpotifyTrack
	bare.Name = "Loner"
	assert.Equal(t, "", bare.PrimaryArtist())
	assert.Equal(t, "Loner", bare.SearchPhrase())
	assert.Equal(t, "", bare.ThumbnailURL())
}

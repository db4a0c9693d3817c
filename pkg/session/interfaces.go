package session

import (
	"context"
	"time"

	"github.com/latoulicious/groovebox/pkg/config"
	"github.com/latoulicious/groovebox/pkg/database/models"
	"github.com/latoulicious/groovebox/pkg/player"
	"github.com/latoulicious/groovebox/pkg/queue"
	"github.com/latoulicious/groovebox/pkg/voice"
)

// Preloader is the decode-ahead surface the engine drives
// (preload.Preloader satisfies it).
type Preloader interface {
	Begin(guildID string, song queue.SongRecord, volumePct int, justShuffled bool)
	Get(guildID, streamKey string, volumePct int) (string, bool)
	Await(ctx context.Context, guildID, streamKey string, volumePct int) (string, bool)
	State(guildID, streamKey string) queue.PreloadInfo
	Release(guildID, streamKey string)
	CancelGuild(guildID string)
}

// Decoder covers the live-decode fallback when no preloaded artifact is
// available at play time (runner.Runner satisfies it).
type Decoder interface {
	Decode(ctx context.Context, guildID, streamKey string, volumePct int, timeout time.Duration) (string, error)
	RemoveArtifact(path string) error
}

// Voice is the per-guild voice surface the engine needs. Join must be
// idempotent for a ready connection to the same channel.
type Voice interface {
	Join(ctx context.Context, guildID, channelID string) (player.Sink, error)
	Leave(guildID string)
	Active(guildID string) bool
}

// Playback is the controllable surface of a running stream
// (*player.Playback satisfies it).
type Playback interface {
	Done() <-chan player.Result
	Stop()
	Pause()
	Resume()
	SetMuted(muted bool)
	Elapsed() time.Duration
}

// Starter launches playback of a decoded artifact into a sink
type Starter interface {
	Start(sink player.Sink, artifactPath string, cfg config.AudioConfig) (Playback, error)
}

// Settings is the per-guild settings read path the engine consumes
type Settings interface {
	Get(guildID string) (*models.GuildSettings, error)
}

// Listener observes accepted transitions. Implementations must not block;
// the callback runs on the engine goroutine.
type Listener interface {
	OnTransition(snap Snapshot)
}

// GatewayVoice adapts voice.Gateway to the Voice interface
type GatewayVoice struct {
	Gateway *voice.Gateway
}

func (g GatewayVoice) Join(ctx context.Context, guildID, channelID string) (player.Sink, error) {
	conn, err := g.Gateway.Join(ctx, guildID, channelID)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (g GatewayVoice) Leave(guildID string) {
	g.Gateway.Leave(guildID)
}

func (g GatewayVoice) Active(guildID string) bool {
	conn := g.Gateway.Get(guildID)
	return conn != nil && conn.Ready()
}

// PlayerStarter adapts the player package to the Starter interface
type PlayerStarter struct{}

func (PlayerStarter) Start(sink player.Sink, artifactPath string, cfg config.AudioConfig) (Playback, error) {
	pb, err := player.Start(sink, artifactPath, cfg)
	if err != nil {
		return nil, err
	}
	return pb, nil
}

package ui

import (
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/groovebox/pkg/queue"
)

// Phase is the UI-visible playback state of a guild.
type Phase string

const (
	PhaseQuerying Phase = "querying"
	PhaseLoading  Phase = "loading"
	PhasePlaying  Phase = "playing"
	PhasePaused   Phase = "paused"
	PhaseIdle     Phase = "idle"
	PhaseError    Phase = "error"
)

// Queue display modes mirror the guild setting.
const (
	DisplayChat = "chat"
	DisplayMenu = "menu"
)

// State is everything the renderer needs. It is derived from an engine
// snapshot by the coordinator; rendering never reaches back into the
// session.
type State struct {
	Phase   Phase
	GuildID string

	// Querying
	SearchQuery string

	// Loading / Playing / Paused
	NowPlaying *queue.SongRecord
	Elapsed    time.Duration

	// Queue preview. Titles covers the in-memory window; TotalTracks
	// includes overflow.
	QueueTitles []string
	TotalTracks int

	VolumePct int
	Muted     bool

	// Idle
	Connected bool

	// Error
	ErrorMessage string
	ErrorCode    string

	// Loading artwork, chosen by the caller (see SelectGIF).
	GifURL string

	QueueDisplayMode string
}

// Payload is the rendered message body handed to the platform client.
type Payload struct {
	Embeds     []*discordgo.MessageEmbed
	Components []discordgo.MessageComponent
}

// activeAudio reports whether a track is loaded into the player.
func (s *State) activeAudio() bool {
	return s.Phase == PhasePlaying || s.Phase == PhasePaused
}

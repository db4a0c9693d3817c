package session

import (
	"time"

	"github.com/latoulicious/groovebox/pkg/queue"
	"github.com/latoulicious/groovebox/pkg/resolver"
)

// Phase is the logical state of a guild session
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseQuerying
	PhaseLoading
	PhasePlaying
	PhasePaused
	PhaseDestroyed
)

// String returns the string representation of the phase
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseQuerying:
		return "querying"
	case PhaseLoading:
		return "loading"
	case PhasePlaying:
		return "playing"
	case PhasePaused:
		return "paused"
	case PhaseDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// CommandKind identifies an engine command
type CommandKind int

const (
	CmdPlay CommandKind = iota
	CmdSkip
	CmdStop
	CmdPause
	CmdResume
	CmdShuffle
	CmdSetVolume
	CmdSetMuted
	CmdAdvanceDueToEnd
	CmdExternalDisconnect
	CmdAdminReset
)

// String returns the command name for logging
func (k CommandKind) String() string {
	switch k {
	case CmdPlay:
		return "play"
	case CmdSkip:
		return "skip"
	case CmdStop:
		return "stop"
	case CmdPause:
		return "pause"
	case CmdResume:
		return "resume"
	case CmdShuffle:
		return "shuffle"
	case CmdSetVolume:
		return "set_volume"
	case CmdSetMuted:
		return "set_muted"
	case CmdAdvanceDueToEnd:
		return "advance"
	case CmdExternalDisconnect:
		return "external_disconnect"
	case CmdAdminReset:
		return "admin_reset"
	default:
		return "unknown"
	}
}

// Command is one unit of work for the engine inbox. Play carries either a
// raw query to resolve or pre-resolved songs (saved playlists); the other
// kinds use only the fields they name.
type Command struct {
	Kind CommandKind

	Query          string
	Songs          []queue.SongRecord
	Requester      queue.Requester
	VoiceChannelID string
	TextChannelID  string

	VolumePct int
	Muted     bool

	// Reply, when non-nil, receives the outcome exactly once. It must be
	// buffered; the engine never blocks on it.
	Reply chan Outcome
}

// Outcome reports what a command did, for follow-up messaging
type Outcome struct {
	Err        error
	Added      int
	Duplicates int
	OverLimit  int
	Report     *resolver.Report
	NowPlaying *queue.SongRecord
	VolumePct  int
	Muted      bool
}

// Snapshot is a consistent copy of session state for rendering and status.
// Elapsed is computed at snapshot time from the running stream.
type Snapshot struct {
	GuildID        string
	Phase          Phase
	VoiceChannelID string
	TextChannelID  string
	NowPlaying     *queue.SongRecord
	Queue          []queue.SongRecord
	TotalTracks    int
	History        []queue.SongRecord
	Playlist       *queue.PlaylistContext
	VolumePct      int
	Muted          bool
	Connected      bool
	SearchQuery    string
	Elapsed        time.Duration
	LastError      error
	UpdatedAt      time.Time
}

// ActiveAudio reports whether a stream is playing or paused
func (s *Snapshot) ActiveAudio() bool {
	return s.Phase == PhasePlaying || s.Phase == PhasePaused
}

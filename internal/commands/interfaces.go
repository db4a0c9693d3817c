package commands

import (
	"github.com/latoulicious/groovebox/pkg/coordinator"
	"github.com/latoulicious/groovebox/pkg/database/models"
	"github.com/latoulicious/groovebox/pkg/database/repository"
	"github.com/latoulicious/groovebox/pkg/queue"
	"github.com/latoulicious/groovebox/pkg/session"
	"github.com/latoulicious/groovebox/pkg/settings"
	"github.com/latoulicious/groovebox/pkg/ui"
)

// Flow is the coordinator surface the handlers drive
// (coordinator.Coordinator satisfies it).
type Flow interface {
	Dispatch(guildID string, cmd session.Command, pri coordinator.Priority, userID string) error
	StateFor(guildID string) ui.State
}

// Snapshots reads current session state for toggles and queue displays
// (session.Manager satisfies it).
type Snapshots interface {
	Snapshot(guildID string) (session.Snapshot, bool)
}

// Access evaluates surface permissions and reads guild settings
// (settings.Cache satisfies it).
type Access interface {
	Allowed(guildID string, surface settings.Surface, isOwner bool, roleIDs []string) (bool, error)
	Get(guildID string) (*models.GuildSettings, error)
}

// Playlists is the saved-playlist store surface
// (repository.PlaylistRepository satisfies it).
type Playlists interface {
	Save(guildID, name, createdBy string, songs []queue.SongRecord) error
	Get(guildID, name string) ([]queue.SongRecord, error)
	List(guildID string) ([]repository.PlaylistSummary, error)
	Delete(guildID, name string) (bool, error)
}

// Gifs is the guild loading-artwork store surface
// (repository.GifRepository satisfies it).
type Gifs interface {
	Get(guildID string) (*models.GuildGifs, error)
	AddURL(guildID, url string) error
	Clear(guildID string) error
	SetUseCustom(guildID string, enabled bool) error
}

// ControlsPoster sends a fresh playback controls message and stores its ref
// (interactions.ControlsPublisher satisfies it).
type ControlsPoster interface {
	Post(guildID, channelID string, state ui.State) error
}

// VoiceStates locates the voice channel a member currently occupies.
type VoiceStates interface {
	VoiceChannel(guildID, userID string) (string, bool)
}

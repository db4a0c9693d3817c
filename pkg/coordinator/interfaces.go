package coordinator

import (
	"github.com/latoulicious/groovebox/pkg/database/models"
	"github.com/latoulicious/groovebox/pkg/session"
	"github.com/latoulicious/groovebox/pkg/ui"
)

// Sessions is the engine surface the coordinator drives. session.Manager
// satisfies it.
type Sessions interface {
	Submit(guildID string, cmd session.Command) error
	SubmitOrCreate(guildID string, cmd session.Command) error
	Snapshot(guildID string) (session.Snapshot, bool)
	Destroy(guildID string, reset bool)
}

// ControlsEditor pushes a rendered state into the guild's pinned playback
// controls message. The implementation lives with the platform client.
type ControlsEditor interface {
	EditControls(guildID string, state ui.State) error
}

// IdleTimers is the disconnect timer surface. idle.Supervisor satisfies it.
type IdleTimers interface {
	Arm(guildID string)
	Clear(guildID string)
}

// RefCleaner drops cached message references for a guild. msgref.Manager
// satisfies it.
type RefCleaner interface {
	ClearGuild(guildID string)
}

// SettingsSource resolves per-guild settings. settings.Cache satisfies it.
type SettingsSource interface {
	Get(guildID string) (*models.GuildSettings, error)
}

// GifSource resolves the guild's custom loading artwork set.
// repository.GifRepository satisfies it.
type GifSource interface {
	Get(guildID string) (*models.GuildGifs, error)
}

// PlayCounter records that a cached track started playing.
// repository.MetadataRepository satisfies it.
type PlayCounter interface {
	TouchPlayed(queryHash string) error
}

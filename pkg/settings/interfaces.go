package settings

import "github.com/latoulicious/groovebox/pkg/database/models"

// Store is the persistence layer behind the cache. Implemented by
// repository.SettingsRepository.
type Store interface {
	GetOrCreate(guildID string) (*models.GuildSettings, error)
	Save(settings *models.GuildSettings) error
	Delete(guildID string) error
}

// Surface identifies which interaction surface is being permission checked.
type Surface string

const (
	SurfaceSlashCommands Surface = "slash_commands"
	SurfaceComponents    Surface = "components"
	SurfaceBotControls   Surface = "bot_controls"
)

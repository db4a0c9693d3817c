package msgref

import (
	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/groovebox/pkg/database/models"
)

// Store is the persistence layer behind the manager. Implemented by
// repository.MessageRefRepository.
type Store interface {
	Get(guildID, refType string) (*models.MessageRef, error)
	GetAll(guildID string) ([]models.MessageRef, error)
	Upsert(ref *models.MessageRef) error
	Delete(guildID, refType string) error
	DeleteAll(guildID string) error
}

// Prober checks whether a stored message still exists on the platform.
// Implemented by *discordgo.Session.
type Prober interface {
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

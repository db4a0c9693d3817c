package interactions

import (
	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/groovebox/pkg/faults"
	"github.com/latoulicious/groovebox/pkg/logging"
)

// Definitions returns every slash command this build registers.
func Definitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "play",
			Description: "Play a track or playlist from YouTube, Spotify, or a search query",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "query",
					Description: "URL or search query",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "song",
					Description: "Song title (combined with artist)",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "artist",
					Description: "Artist name (combined with song)",
					Required:    false,
				},
			},
		},
		{Name: "skip", Description: "Skip the current track"},
		{Name: "stop", Description: "Stop playback and clear the queue"},
		{Name: "pause", Description: "Pause the current track"},
		{Name: "resume", Description: "Resume a paused track"},
		{Name: "shuffle", Description: "Shuffle the upcoming tracks"},
		{Name: "reset", Description: "Tear the session down and wipe the saved queue"},
		{Name: "components", Description: "Post the playback controls message in this channel"},
		{Name: "memory", Description: "Show runtime diagnostics"},
		{Name: "volumeup", Description: "Raise the volume one step"},
		{Name: "volumedown", Description: "Lower the volume one step"},
		{Name: "mute", Description: "Toggle mute"},
		{Name: "volumetest", Description: "Show the current audio settings"},
		{
			Name:        "playlist",
			Description: "Save, load, and manage named playlists",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "save",
					Description: "Save the current queue under a name",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "name",
							Description: "Playlist name",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "load",
					Description: "Queue a saved playlist",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "name",
							Description: "Playlist name",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "list",
					Description: "List this server's saved playlists",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "delete",
					Description: "Delete a saved playlist",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "name",
							Description: "Playlist name",
							Required:    true,
						},
					},
				},
			},
		},
		{
			Name:        "gif",
			Description: "Manage the loading artwork rotation",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "add",
					Description: "Add a GIF URL to this server's rotation",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "url",
							Description: "Direct link to the GIF",
							Required:    true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "clear",
					Description: "Remove every custom GIF",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "toggle",
					Description: "Switch between the custom set and the built-in rotation",
				},
			},
		},
	}
}

// Deploy bulk-overwrites the application command set. With a guild id the
// commands register guild-scoped, which propagates immediately; without
// one they register globally.
func Deploy(rest *discordgo.Session, appID, guildID string) error {
	logger := logging.GetGlobalLoggerFactory().CreateLogger("interactions")

	cmds, err := rest.ApplicationCommandBulkOverwrite(appID, guildID, Definitions())
	if err != nil {
		return faults.Wrap(faults.CategoryPlatform, faults.CodeNetworkServerError, "command deployment failed", err)
	}

	scope := "global"
	if guildID != "" {
		scope = "guild"
	}
	logger.Info("Deployed application commands", map[string]interface{}{
		"count": len(cmds),
		"scope": scope,
	})
	return nil
}

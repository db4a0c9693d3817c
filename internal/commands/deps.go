// Package commands implements the slash command, button, select menu and
// modal handlers behind the interaction dispatcher. Every handler gates on
// the guild's surface access rule, acknowledges within the webhook window,
// and pushes the actual work through the coordinator.
package commands

import (
	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/groovebox/internal/interactions"
	"github.com/latoulicious/groovebox/pkg/logging"
	"github.com/latoulicious/groovebox/pkg/metrics"
	"github.com/latoulicious/groovebox/pkg/settings"
	"github.com/latoulicious/groovebox/pkg/ui"
)

// Embed colors for command replies.
const (
	colorSuccess = 0x57f287
	colorInfo    = 0x5865f2
	colorWarn    = 0xfee75c
)

// Deps carries the collaborators the handlers share. Playlists, Gifs and
// Metrics may be nil; the commands that need them reply with an error
// instead of panicking.
type Deps struct {
	Flow      Flow
	Sessions  Snapshots
	Settings  Access
	Playlists Playlists
	Gifs      Gifs
	Controls  ControlsPoster
	Voice     VoiceStates
	Metrics   metrics.Collector
}

// Handlers holds the command implementations. Build one with New and wire
// it into a registry with Register.
type Handlers struct {
	deps *Deps

	playLog    logging.Logger
	controlLog logging.Logger
	volumeLog  logging.Logger
	uiLog      logging.Logger
	listLog    logging.Logger
	gifLog     logging.Logger
}

func New(deps *Deps) *Handlers {
	factory := logging.GetGlobalLoggerFactory()
	return &Handlers{
		deps:       deps,
		playLog:    factory.CreateCommandLogger("play"),
		controlLog: factory.CreateCommandLogger("controls"),
		volumeLog:  factory.CreateCommandLogger("volume"),
		uiLog:      factory.CreateCommandLogger("components"),
		listLog:    factory.CreateCommandLogger("playlist"),
		gifLog:     factory.CreateCommandLogger("gif"),
	}
}

// Register wires every command, component and modal handler into the
// dispatcher registry.
func Register(reg *interactions.Registry, deps *Deps) *Handlers {
	h := New(deps)

	reg.Command("play", h.Play)
	reg.Command("skip", h.Skip)
	reg.Command("stop", h.Stop)
	reg.Command("pause", h.Pause)
	reg.Command("resume", h.Resume)
	reg.Command("shuffle", h.Shuffle)
	reg.Command("reset", h.Reset)
	reg.Command("components", h.Components)
	reg.Command("memory", h.Memory)
	reg.Command("volumeup", h.VolumeUp)
	reg.Command("volumedown", h.VolumeDown)
	reg.Command("mute", h.Mute)
	reg.Command("volumetest", h.VolumeTest)
	reg.Command("playlist", h.Playlist)
	reg.Command("gif", h.Gif)

	reg.Component(ui.IDPlayPause, h.PlayPauseButton)
	reg.Component(ui.IDSkip, h.SkipButton)
	reg.Component(ui.IDStop, h.StopButton)
	reg.Component(ui.IDShuffle, h.ShuffleButton)
	reg.Component(ui.IDVolumeUp, h.VolumeUpButton)
	reg.Component(ui.IDVolumeDown, h.VolumeDownButton)
	reg.Component(ui.IDMute, h.MuteButton)
	reg.Component(ui.IDAddSong, h.AddSongButton)
	reg.Component(ui.IDQueueSelect, h.QueueSelect)

	reg.Modal(ui.IDAddSongModal, h.AddSongModal)

	return h
}

// allow gates a handler on the guild's access rule for a surface. A denial
// acknowledges the interaction with an ephemeral error, so callers just
// return false and stop.
func (h *Handlers) allow(ctx *interactions.Context, surface settings.Surface) bool {
	if ctx.GuildID == "" {
		ctx.ReplyError("This only works inside a server.")
		return false
	}
	ok, err := h.deps.Settings.Allowed(ctx.GuildID, surface, ctx.IsOwner, ctx.Roles)
	if err != nil {
		h.controlLog.Warn("Access check failed", map[string]interface{}{
			"guild_id": ctx.GuildID,
			"user_id":  ctx.UserID,
			"surface":  string(surface),
			"error":    err.Error(),
		})
		ctx.ReplyError("Couldn't check permissions just now, try again shortly.")
		return false
	}
	if !ok {
		ctx.ReplyError("You don't have permission to use this here.")
		return false
	}
	return true
}

// voiceChannelFor picks the channel playback should join: the invoker's
// current voice channel when the gateway knows it, otherwise the guild's
// configured default.
func (h *Handlers) voiceChannelFor(ctx *interactions.Context) string {
	if h.deps.Voice != nil {
		if id, ok := h.deps.Voice.VoiceChannel(ctx.GuildID, ctx.UserID); ok && id != "" {
			return id
		}
	}
	if row, err := h.deps.Settings.Get(ctx.GuildID); err == nil && row != nil {
		return row.VoiceChannelID
	}
	return ""
}

// GatewayVoiceStates adapts the gateway session's state cache to the
// VoiceStates interface.
type GatewayVoiceStates struct {
	Session *discordgo.Session
}

func (g GatewayVoiceStates) VoiceChannel(guildID, userID string) (string, bool) {
	guild, err := g.Session.State.Guild(guildID)
	if err != nil || guild == nil {
		return "", false
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID, true
		}
	}
	return "", false
}

// GatewayOwner builds the owner predicate the dispatcher needs, answered
// from the gateway state cache.
func GatewayOwner(s *discordgo.Session) func(guildID, userID string) bool {
	return func(guildID, userID string) bool {
		guild, err := s.State.Guild(guildID)
		if err != nil || guild == nil {
			return false
		}
		return guild.OwnerID == userID
	}
}

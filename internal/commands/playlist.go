package commands

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/groovebox/internal/interactions"
	"github.com/latoulicious/groovebox/pkg/coordinator"
	"github.com/latoulicious/groovebox/pkg/queue"
	"github.com/latoulicious/groovebox/pkg/session"
	"github.com/latoulicious/groovebox/pkg/settings"
)

const maxPlaylistNameLen = 64

// Playlist routes the /playlist subcommands over the saved playlist store.
func (h *Handlers) Playlist(ctx *interactions.Context) {
	if !h.allow(ctx, settings.SurfaceSlashCommands) {
		return
	}
	if h.deps.Playlists == nil {
		ctx.ReplyError("Saved playlists are unavailable right now.")
		return
	}

	sub, opts := ctx.Subcommand()
	switch sub {
	case "save":
		h.playlistSave(ctx, interactions.SubOption(opts, "name"))
	case "load":
		h.playlistLoad(ctx, interactions.SubOption(opts, "name"))
	case "list":
		h.playlistList(ctx)
	case "delete":
		h.playlistDelete(ctx, interactions.SubOption(opts, "name"))
	default:
		ctx.ReplyError("Unknown playlist action.")
	}
}

// playlistSave snapshots the current track plus the loaded queue window
// under a name. Overflow rows stay in the queue store; what you hear and
// see is what gets saved.
func (h *Handlers) playlistSave(ctx *interactions.Context, name string) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxPlaylistNameLen {
		ctx.ReplyError(fmt.Sprintf("Playlist names need 1 to %d characters.", maxPlaylistNameLen))
		return
	}

	snap, ok := h.deps.Sessions.Snapshot(ctx.GuildID)
	if !ok {
		ctx.ReplyError("Nothing is playing, so there's nothing to save.")
		return
	}

	var songs []queue.SongRecord
	if snap.NowPlaying != nil {
		songs = append(songs, *snap.NowPlaying)
	}
	songs = append(songs, snap.Queue...)
	if len(songs) == 0 {
		ctx.ReplyError("The queue is empty, so there's nothing to save.")
		return
	}

	if err := h.deps.Playlists.Save(ctx.GuildID, name, ctx.UserID, songs); err != nil {
		h.listLog.Error("Playlist save failed", err, map[string]interface{}{
			"guild_id": ctx.GuildID,
			"name":     name,
			"error":    err.Error(),
		})
		ctx.ReplyError("Couldn't save the playlist, try again shortly.")
		return
	}

	h.listLog.Info("Playlist saved", map[string]interface{}{
		"guild_id": ctx.GuildID,
		"user_id":  ctx.UserID,
		"name":     name,
		"songs":    len(songs),
	})
	ctx.ReplyEphemeral(fmt.Sprintf("Saved **%s** with %d track(s).", name, len(songs)))
}

// playlistLoad queues a saved playlist. The records are already resolved,
// so they skip the resolver and go straight into the queue.
func (h *Handlers) playlistLoad(ctx *interactions.Context, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		ctx.ReplyError("Which playlist? Give me a name.")
		return
	}

	songs, err := h.deps.Playlists.Get(ctx.GuildID, name)
	if err != nil {
		h.listLog.Error("Playlist load failed", err, map[string]interface{}{
			"guild_id": ctx.GuildID,
			"name":     name,
			"error":    err.Error(),
		})
		ctx.ReplyError("Couldn't load the playlist, try again shortly.")
		return
	}
	if len(songs) == 0 {
		ctx.ReplyError(fmt.Sprintf("No saved playlist called **%s**.", name))
		return
	}

	voiceID := h.voiceChannelFor(ctx)
	if voiceID == "" {
		ctx.ReplyError("Join a voice channel first, or configure a default one for this server.")
		return
	}

	ctx.DeferEphemeral()

	go func() {
		reply := make(chan session.Outcome, 1)
		cmd := session.Command{
			Kind:  session.CmdPlay,
			Songs: songs,
			Requester: queue.Requester{
				UserID:      ctx.UserID,
				DisplayName: ctx.DisplayName,
				AvatarURL:   ctx.AvatarURL,
			},
			VoiceChannelID: voiceID,
			TextChannelID:  ctx.ChannelID,
			Reply:          reply,
		}

		err := h.deps.Flow.Dispatch(ctx.GuildID, cmd, coordinator.PriorityNormal, ctx.UserID)
		switch {
		case errors.Is(err, coordinator.ErrDeferred):
			ctx.Followup(fmt.Sprintf("**%s** is queued behind the current operation and will load shortly.", name))
			return
		case err != nil:
			ctx.FollowupFault(err)
			return
		}

		select {
		case out := <-reply:
			if out.Err != nil {
				ctx.FollowupFault(out.Err)
				return
			}
			msg := fmt.Sprintf("Loaded **%s**: queued %d track(s).", name, out.Added)
			if out.Duplicates > 0 {
				msg += fmt.Sprintf(" Skipped %d duplicate(s).", out.Duplicates)
			}
			ctx.Followup(msg)
		case <-time.After(playOutcomeTimeout):
			ctx.Followup("Still loading; the controls message will update when it lands.")
		}
	}()
}

func (h *Handlers) playlistList(ctx *interactions.Context) {
	summaries, err := h.deps.Playlists.List(ctx.GuildID)
	if err != nil {
		h.listLog.Error("Playlist list failed", err, map[string]interface{}{
			"guild_id": ctx.GuildID,
			"error":    err.Error(),
		})
		ctx.ReplyError("Couldn't fetch the playlists, try again shortly.")
		return
	}
	if len(summaries) == 0 {
		ctx.ReplyEphemeral("No saved playlists yet. Queue something and run `/playlist save`.")
		return
	}

	var b strings.Builder
	for _, s := range summaries {
		fmt.Fprintf(&b, "• **%s** — %d track(s)\n", s.Name, s.SongCount)
	}
	ctx.ReplyEmbed(&discordgo.MessageEmbed{
		Title:       "Saved playlists",
		Description: b.String(),
		Color:       colorInfo,
	}, true)
}

func (h *Handlers) playlistDelete(ctx *interactions.Context, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		ctx.ReplyError("Which playlist? Give me a name.")
		return
	}

	deleted, err := h.deps.Playlists.Delete(ctx.GuildID, name)
	if err != nil {
		h.listLog.Error("Playlist delete failed", err, map[string]interface{}{
			"guild_id": ctx.GuildID,
			"name":     name,
			"error":    err.Error(),
		})
		ctx.ReplyError("Couldn't delete the playlist, try again shortly.")
		return
	}
	if !deleted {
		ctx.ReplyError(fmt.Sprintf("No saved playlist called **%s**.", name))
		return
	}

	h.listLog.Info("Playlist deleted", map[string]interface{}{
		"guild_id": ctx.GuildID,
		"user_id":  ctx.UserID,
		"name":     name,
	})
	ctx.ReplyEphemeral(fmt.Sprintf("Deleted **%s**.", name))
}

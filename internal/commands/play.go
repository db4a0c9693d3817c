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

const (
	// playOutcomeTimeout bounds how long a play followup waits for the
	// resolver before pointing the user at the controls message instead.
	// Playlist enumeration is the slow path at up to 45s plus decode.
	playOutcomeTimeout = 75 * time.Second
)

// Play handles the /play slash command. The query comes from either the
// free-form query option or the song + artist pair.
func (h *Handlers) Play(ctx *interactions.Context) {
	if !h.allow(ctx, settings.SurfaceSlashCommands) {
		return
	}

	query := strings.TrimSpace(ctx.Option("query"))
	if query == "" {
		song := strings.TrimSpace(ctx.Option("song"))
		artist := strings.TrimSpace(ctx.Option("artist"))
		query = strings.TrimSpace(song + " " + artist)
	}
	if query == "" {
		ctx.ReplyError("Give me something to play: a link, a search phrase, or song + artist.")
		return
	}

	h.queuePlay(ctx, query)
}

// queuePlay runs the shared play flow for the slash command and the
// add-song modal: find a voice channel, defer, dispatch, then follow up
// with the outcome.
func (h *Handlers) queuePlay(ctx *interactions.Context, query string) {
	voiceID := h.voiceChannelFor(ctx)
	if voiceID == "" {
		ctx.ReplyError("Join a voice channel first, or configure a default one for this server.")
		return
	}

	ctx.DeferEphemeral()

	h.playLog.Info("Play requested", map[string]interface{}{
		"guild_id": ctx.GuildID,
		"user_id":  ctx.UserID,
		"username": ctx.DisplayName,
		"query":    query,
	})

	go func() {
		reply := make(chan session.Outcome, 1)
		cmd := session.Command{
			Kind:  session.CmdPlay,
			Query: query,
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
			ctx.Followup("Your request is queued behind the current operation and will run shortly.")
			return
		case err != nil:
			ctx.FollowupFault(err)
			return
		}

		select {
		case out := <-reply:
			if out.Err != nil {
				h.playLog.Warn("Play failed", map[string]interface{}{
					"guild_id": ctx.GuildID,
					"user_id":  ctx.UserID,
					"query":    query,
					"error":    out.Err.Error(),
				})
				ctx.FollowupFault(out.Err)
				return
			}
			ctx.FollowupEmbed(playSummary(out))
		case <-time.After(playOutcomeTimeout):
			ctx.Followup("Still working on that one; the controls message will update when it lands.")
		}
	}()
}

// playSummary renders the outcome of a play into one followup embed. Bulk
// drops get a single summary line each rather than per-track noise.
func playSummary(out session.Outcome) *discordgo.MessageEmbed {
	var lines []string
	color := colorSuccess

	switch {
	case out.Report.HasPlaylist():
		lines = append(lines, fmt.Sprintf("Queued **%d** track(s) from **%s**.", out.Added, out.Report.PlaylistTitle))
		if out.Report.Truncated > 0 {
			lines = append(lines, fmt.Sprintf("The playlist was longer; %d track(s) past the cap were left behind.", out.Report.Truncated))
		}
	case out.Added > 1:
		lines = append(lines, fmt.Sprintf("Added **%d** tracks to the queue.", out.Added))
	case out.Added == 1:
		lines = append(lines, "Added **1** track to the queue.")
	case out.Duplicates > 0:
		lines = append(lines, "That's already in the queue.")
		color = colorWarn
	case out.OverLimit > 0:
		lines = append(lines, "That track is over this server's length limit.")
		color = colorWarn
	default:
		lines = append(lines, "Nothing was added.")
		color = colorWarn
	}

	if out.Added > 0 && out.Duplicates > 0 {
		lines = append(lines, fmt.Sprintf("Skipped %d duplicate(s) already queued.", out.Duplicates))
	}
	if out.Added > 0 && out.OverLimit > 0 {
		lines = append(lines, fmt.Sprintf("%d track(s) skipped over the length limit.", out.OverLimit))
	}

	return &discordgo.MessageEmbed{
		Description: strings.Join(lines, "\n"),
		Color:       color,
	}
}

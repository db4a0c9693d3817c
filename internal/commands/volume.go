package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/groovebox/internal/interactions"
	"github.com/latoulicious/groovebox/pkg/coordinator"
	"github.com/latoulicious/groovebox/pkg/session"
	"github.com/latoulicious/groovebox/pkg/settings"
)

// VolumeUp handles /volumeup.
func (h *Handlers) VolumeUp(ctx *interactions.Context) {
	if !h.allow(ctx, settings.SurfaceSlashCommands) {
		return
	}
	h.changeVolume(ctx, session.VolumeStep)
}

// VolumeDown handles /volumedown.
func (h *Handlers) VolumeDown(ctx *interactions.Context) {
	if !h.allow(ctx, settings.SurfaceSlashCommands) {
		return
	}
	h.changeVolume(ctx, -session.VolumeStep)
}

// Mute handles /mute as a toggle off the current snapshot.
func (h *Handlers) Mute(ctx *interactions.Context) {
	if !h.allow(ctx, settings.SurfaceSlashCommands) {
		return
	}

	snap, ok := h.deps.Sessions.Snapshot(ctx.GuildID)
	if !ok {
		ctx.ReplyError("Nothing is playing right now.")
		return
	}

	target := !snap.Muted
	reply := make(chan session.Outcome, 1)
	err := h.deps.Flow.Dispatch(ctx.GuildID, session.Command{Kind: session.CmdSetMuted, Muted: target, Reply: reply}, coordinator.PriorityNormal, ctx.UserID)
	switch {
	case errors.Is(err, coordinator.ErrDeferred):
		ctx.ReplyEphemeral("Queued; it will apply once the current operation finishes.")
		return
	case err != nil:
		ctx.ReplyFault(err)
		return
	}

	msg := "Muted. The stream keeps running silently."
	if !target {
		msg = "Unmuted."
	}
	select {
	case out := <-reply:
		if out.Err != nil {
			ctx.ReplyFault(out.Err)
			return
		}
		ctx.ReplyEphemeral(msg)
	case <-time.After(controlOutcomeTimeout):
		ctx.ReplyEphemeral(msg)
	}
}

// VolumeTest handles /volumetest: a diagnostic dump of the session's
// loudness settings and the decode filter they produce.
func (h *Handlers) VolumeTest(ctx *interactions.Context) {
	if !h.allow(ctx, settings.SurfaceSlashCommands) {
		return
	}

	snap, ok := h.deps.Sessions.Snapshot(ctx.GuildID)
	if !ok {
		ctx.ReplyError("No active session to inspect. Start something with /play first.")
		return
	}

	muted := "no"
	if snap.Muted {
		muted = "yes"
	}
	ctx.ReplyEmbed(&discordgo.MessageEmbed{
		Title: "Volume diagnostics",
		Color: colorInfo,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Volume", Value: fmt.Sprintf("%d%%", snap.VolumePct), Inline: true},
			{Name: "Muted", Value: muted, Inline: true},
			{Name: "Step", Value: fmt.Sprintf("%d%%", session.VolumeStep), Inline: true},
			{Name: "Decode filter", Value: fmt.Sprintf("`volume=%.2f`", float64(snap.VolumePct)/100), Inline: true},
			{Name: "Phase", Value: snap.Phase.String(), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Volume changes re-decode the staged track; the playing stream keeps its level.",
		},
	}, true)
}

// changeVolume moves the session volume by delta and replies with where it
// landed. The running stream keeps its loudness; the new level applies
// from the next decode.
func (h *Handlers) changeVolume(ctx *interactions.Context, delta int) {
	snap, ok := h.deps.Sessions.Snapshot(ctx.GuildID)
	if !ok {
		ctx.ReplyError("Nothing is playing right now.")
		return
	}

	target := clampPct(snap.VolumePct + delta)
	if target == snap.VolumePct {
		ctx.ReplyEphemeral(fmt.Sprintf("Volume is already at %d%%.", target))
		return
	}

	reply := make(chan session.Outcome, 1)
	err := h.deps.Flow.Dispatch(ctx.GuildID, session.Command{Kind: session.CmdSetVolume, VolumePct: target, Reply: reply}, coordinator.PriorityNormal, ctx.UserID)
	switch {
	case errors.Is(err, coordinator.ErrDeferred):
		ctx.ReplyEphemeral("Queued; it will apply once the current operation finishes.")
		return
	case err != nil:
		ctx.ReplyFault(err)
		return
	}

	h.volumeLog.Info("Volume changed", map[string]interface{}{
		"guild_id": ctx.GuildID,
		"user_id":  ctx.UserID,
		"from":     snap.VolumePct,
		"to":       target,
	})

	msg := fmt.Sprintf("Volume set to %d%%. It applies from the next track.", target)
	select {
	case out := <-reply:
		if out.Err != nil {
			ctx.ReplyFault(out.Err)
			return
		}
		ctx.ReplyEphemeral(fmt.Sprintf("Volume set to %d%%. It applies from the next track.", out.VolumePct))
	case <-time.After(controlOutcomeTimeout):
		ctx.ReplyEphemeral(msg)
	}
}

func clampPct(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

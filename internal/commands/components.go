package commands

import (
	"fmt"
	"runtime"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/groovebox/internal/interactions"
	"github.com/latoulicious/groovebox/pkg/settings"
)

// Components handles /components: it posts a fresh playback controls
// message into the invoking channel and stores its reference, so every
// later state change edits that message in place.
func (h *Handlers) Components(ctx *interactions.Context) {
	if !h.allow(ctx, settings.SurfaceSlashCommands) {
		return
	}

	state := h.deps.Flow.StateFor(ctx.GuildID)
	if err := h.deps.Controls.Post(ctx.GuildID, ctx.ChannelID, state); err != nil {
		h.uiLog.Error("Controls post failed", err, map[string]interface{}{
			"guild_id":   ctx.GuildID,
			"channel_id": ctx.ChannelID,
			"error":      err.Error(),
		})
		ctx.ReplyError("Couldn't post the controls message in this channel.")
		return
	}

	h.uiLog.Info("Controls posted", map[string]interface{}{
		"guild_id":   ctx.GuildID,
		"channel_id": ctx.ChannelID,
		"user_id":    ctx.UserID,
	})
	ctx.ReplyEphemeral("Controls posted. Playback updates will land on that message from now on.")
}

// Memory handles /memory: runtime allocator stats plus the pipeline
// counters, for poking at a live deployment.
func (h *Handlers) Memory(ctx *interactions.Context) {
	if !h.allow(ctx, settings.SurfaceSlashCommands) {
		return
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	fields := []*discordgo.MessageEmbedField{
		{Name: "Heap in use", Value: fmt.Sprintf("%.1f MiB", float64(ms.HeapInuse)/(1<<20)), Inline: true},
		{Name: "Heap allocated", Value: fmt.Sprintf("%.1f MiB", float64(ms.HeapAlloc)/(1<<20)), Inline: true},
		{Name: "System reserved", Value: fmt.Sprintf("%.1f MiB", float64(ms.Sys)/(1<<20)), Inline: true},
		{Name: "GC cycles", Value: fmt.Sprintf("%d", ms.NumGC), Inline: true},
		{Name: "Goroutines", Value: fmt.Sprintf("%d", runtime.NumGoroutine()), Inline: true},
	}

	if h.deps.Metrics != nil {
		snap := h.deps.Metrics.Snapshot()
		fields = append(fields,
			&discordgo.MessageEmbedField{Name: "Active sessions", Value: fmt.Sprintf("%d", snap.ActiveSessions), Inline: true},
			&discordgo.MessageEmbedField{Name: "Resolves", Value: fmt.Sprintf("%d (%d failed)", snap.Resolves, snap.ResolveFailures), Inline: true},
			&discordgo.MessageEmbedField{Name: "Decodes", Value: fmt.Sprintf("%d (%d failed)", snap.Decodes, snap.DecodeFailures), Inline: true},
			&discordgo.MessageEmbedField{Name: "Preload", Value: fmt.Sprintf("%d hits / %d misses", snap.PreloadHits, snap.PreloadMisses), Inline: true},
			&discordgo.MessageEmbedField{Name: "Tracked processes", Value: fmt.Sprintf("%d", snap.TrackedProcesses), Inline: true},
			&discordgo.MessageEmbedField{Name: "Uptime", Value: snap.Uptime.Round(time.Second).String(), Inline: true},
		)
	}

	ctx.ReplyEmbed(&discordgo.MessageEmbed{
		Title:  "Runtime diagnostics",
		Color:  colorInfo,
		Fields: fields,
	}, true)
}

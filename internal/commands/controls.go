package commands

import (
	"errors"
	"time"

	"github.com/latoulicious/groovebox/internal/interactions"
	"github.com/latoulicious/groovebox/pkg/coordinator"
	"github.com/latoulicious/groovebox/pkg/session"
	"github.com/latoulicious/groovebox/pkg/settings"
)

// controlOutcomeTimeout keeps synchronous control replies inside the
// webhook acknowledgement window.
const controlOutcomeTimeout = 2 * time.Second

// Skip handles /skip.
func (h *Handlers) Skip(ctx *interactions.Context) {
	if !h.allow(ctx, settings.SurfaceSlashCommands) {
		return
	}
	h.control(ctx, session.CmdSkip, coordinator.PriorityHigh, "Skipped.")
}

// Stop handles /stop. The queue is cleared; history survives.
func (h *Handlers) Stop(ctx *interactions.Context) {
	if !h.allow(ctx, settings.SurfaceSlashCommands) {
		return
	}
	h.control(ctx, session.CmdStop, coordinator.PriorityHigh, "Stopped and cleared the queue.")
}

// Pause handles /pause.
func (h *Handlers) Pause(ctx *interactions.Context) {
	if !h.allow(ctx, settings.SurfaceSlashCommands) {
		return
	}
	h.control(ctx, session.CmdPause, coordinator.PriorityNormal, "Paused.")
}

// Resume handles /resume.
func (h *Handlers) Resume(ctx *interactions.Context) {
	if !h.allow(ctx, settings.SurfaceSlashCommands) {
		return
	}
	h.control(ctx, session.CmdResume, coordinator.PriorityNormal, "Resumed.")
}

// Shuffle handles /shuffle.
func (h *Handlers) Shuffle(ctx *interactions.Context) {
	if !h.allow(ctx, settings.SurfaceSlashCommands) {
		return
	}
	h.control(ctx, session.CmdShuffle, coordinator.PriorityNormal, "Shuffled the queue.")
}

// Reset handles /reset: a full session teardown that wipes persisted queue
// state for the guild. Teardown waits for the engine to finish, so the ack
// is deferred.
func (h *Handlers) Reset(ctx *interactions.Context) {
	if !h.allow(ctx, settings.SurfaceSlashCommands) {
		return
	}

	ctx.DeferEphemeral()

	h.controlLog.Info("Reset requested", map[string]interface{}{
		"guild_id": ctx.GuildID,
		"user_id":  ctx.UserID,
	})

	go func() {
		err := h.deps.Flow.Dispatch(ctx.GuildID, session.Command{Kind: session.CmdAdminReset}, coordinator.PriorityCritical, ctx.UserID)
		if err != nil && !errors.Is(err, coordinator.ErrDeferred) {
			ctx.FollowupFault(err)
			return
		}
		ctx.Followup("Session reset. Queue, history and saved state for this server are gone.")
	}()
}

// control dispatches a quick session command and replies with its outcome.
// The engine answers control commands immediately unless it is mid
// resolution, so waiting briefly stays inside the ack window.
func (h *Handlers) control(ctx *interactions.Context, kind session.CommandKind, pri coordinator.Priority, okMsg string) {
	reply := make(chan session.Outcome, 1)
	err := h.deps.Flow.Dispatch(ctx.GuildID, session.Command{Kind: kind, Reply: reply}, pri, ctx.UserID)
	switch {
	case errors.Is(err, coordinator.ErrDeferred):
		ctx.ReplyEphemeral("Queued; it will run once the current operation finishes.")
		return
	case err != nil:
		ctx.ReplyFault(err)
		return
	}

	select {
	case out := <-reply:
		if out.Err != nil {
			ctx.ReplyFault(out.Err)
			return
		}
		ctx.ReplyEphemeral(okMsg)
	case <-time.After(controlOutcomeTimeout):
		ctx.ReplyEphemeral(okMsg)
	}
}

package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/latoulicious/groovebox/internal/interactions"
	"github.com/latoulicious/groovebox/pkg/coordinator"
	"github.com/latoulicious/groovebox/pkg/session"
	"github.com/latoulicious/groovebox/pkg/settings"
	"github.com/latoulicious/groovebox/pkg/ui"
)

// PlayPauseButton toggles between pause and resume off the current phase.
func (h *Handlers) PlayPauseButton(ctx *interactions.Context) {
	if !h.allow(ctx, settings.SurfaceComponents) {
		return
	}

	snap, ok := h.deps.Sessions.Snapshot(ctx.GuildID)
	if !ok || !snap.ActiveAudio() {
		ctx.ReplyError("Nothing is playing right now.")
		return
	}

	kind := session.CmdPause
	if snap.Phase == session.PhasePaused {
		kind = session.CmdResume
	}

	ctx.DeferUpdate()
	go h.backgroundDispatch(ctx, session.Command{Kind: kind}, coordinator.PriorityNormal)
}

func (h *Handlers) SkipButton(ctx *interactions.Context) {
	if !h.allow(ctx, settings.SurfaceComponents) {
		return
	}
	ctx.DeferUpdate()
	go h.backgroundDispatch(ctx, session.Command{Kind: session.CmdSkip}, coordinator.PriorityHigh)
}

func (h *Handlers) StopButton(ctx *interactions.Context) {
	if !h.allow(ctx, settings.SurfaceComponents) {
		return
	}
	ctx.DeferUpdate()
	go h.backgroundDispatch(ctx, session.Command{Kind: session.CmdStop}, coordinator.PriorityHigh)
}

func (h *Handlers) ShuffleButton(ctx *interactions.Context) {
	if !h.allow(ctx, settings.SurfaceComponents) {
		return
	}
	ctx.DeferUpdate()
	go h.backgroundDispatch(ctx, session.Command{Kind: session.CmdShuffle}, coordinator.PriorityNormal)
}

func (h *Handlers) VolumeUpButton(ctx *interactions.Context) {
	h.volumeButton(ctx, session.VolumeStep)
}

func (h *Handlers) VolumeDownButton(ctx *interactions.Context) {
	h.volumeButton(ctx, -session.VolumeStep)
}

// volumeButton nudges the volume silently; the rendered bar on the
// controls message is the feedback.
func (h *Handlers) volumeButton(ctx *interactions.Context, delta int) {
	if !h.allow(ctx, settings.SurfaceComponents) {
		return
	}

	snap, ok := h.deps.Sessions.Snapshot(ctx.GuildID)
	if !ok {
		ctx.ReplyError("Nothing is playing right now.")
		return
	}

	target := clampPct(snap.VolumePct + delta)
	ctx.DeferUpdate()
	if target == snap.VolumePct {
		return
	}
	go h.backgroundDispatch(ctx, session.Command{Kind: session.CmdSetVolume, VolumePct: target}, coordinator.PriorityNormal)
}

func (h *Handlers) MuteButton(ctx *interactions.Context) {
	if !h.allow(ctx, settings.SurfaceComponents) {
		return
	}

	snap, ok := h.deps.Sessions.Snapshot(ctx.GuildID)
	if !ok {
		ctx.ReplyError("Nothing is playing right now.")
		return
	}

	ctx.DeferUpdate()
	go h.backgroundDispatch(ctx, session.Command{Kind: session.CmdSetMuted, Muted: !snap.Muted}, coordinator.PriorityNormal)
}

// AddSongButton opens the add-song modal. A modal must be the immediate
// interaction response, so there is no deferral here.
func (h *Handlers) AddSongButton(ctx *interactions.Context) {
	if !h.allow(ctx, settings.SurfaceComponents) {
		return
	}
	ctx.Ack(ui.AddSongModal())
}

// AddSongModal handles the modal submit and feeds the shared play flow.
func (h *Handlers) AddSongModal(ctx *interactions.Context) {
	if !h.allow(ctx, settings.SurfaceComponents) {
		return
	}

	query := strings.TrimSpace(ctx.ModalValue(ui.IDSongQuery))
	if query == "" {
		ctx.ReplyError("Give me something to play: a link or a search phrase.")
		return
	}

	h.queuePlay(ctx, query)
}

// QueueSelect answers the queue menu with details about the chosen track.
// Selection is informational; the queue order does not change.
func (h *Handlers) QueueSelect(ctx *interactions.Context) {
	if !h.allow(ctx, settings.SurfaceComponents) {
		return
	}

	values := ctx.SelectedValues()
	if len(values) == 0 {
		ctx.ReplyError("Nothing selected.")
		return
	}
	idx, err := strconv.Atoi(values[0])
	if err != nil || idx < 0 {
		ctx.ReplyError("That queue entry is gone.")
		return
	}

	snap, ok := h.deps.Sessions.Snapshot(ctx.GuildID)
	if !ok || idx >= len(snap.Queue) {
		ctx.ReplyError("That queue entry is gone.")
		return
	}

	rec := snap.Queue[idx]
	detail := fmt.Sprintf("**#%d** %s", idx+1, rec.Title)
	if rec.Artist != "" {
		detail += " — " + rec.Artist
	}
	if d := rec.Duration(); d > 0 {
		detail += fmt.Sprintf(" (%s)", fmtTrackDuration(d))
	}
	if rec.RequestedBy.DisplayName != "" {
		detail += fmt.Sprintf("\nQueued by %s.", rec.RequestedBy.DisplayName)
	}
	ctx.ReplyEphemeral(detail)
}

// backgroundDispatch pushes a control command after a deferred ack and
// follows up only when something went wrong.
func (h *Handlers) backgroundDispatch(ctx *interactions.Context, cmd session.Command, pri coordinator.Priority) {
	reply := make(chan session.Outcome, 1)
	cmd.Reply = reply

	err := h.deps.Flow.Dispatch(ctx.GuildID, cmd, pri, ctx.UserID)
	switch {
	case errors.Is(err, coordinator.ErrDeferred):
		ctx.Followup("Queued behind the current operation; it will run shortly.")
		return
	case err != nil:
		ctx.FollowupFault(err)
		return
	}

	select {
	case out := <-reply:
		if out.Err != nil {
			ctx.FollowupFault(out.Err)
		}
	case <-time.After(controlOutcomeTimeout):
	}
}

func fmtTrackDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

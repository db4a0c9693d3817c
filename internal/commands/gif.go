package commands

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/latoulicious/groovebox/internal/interactions"
	"github.com/latoulicious/groovebox/pkg/settings"
)

// Gif routes the /gif subcommands over the guild's loading-artwork set.
func (h *Handlers) Gif(ctx *interactions.Context) {
	if !h.allow(ctx, settings.SurfaceSlashCommands) {
		return
	}
	if h.deps.Gifs == nil {
		ctx.ReplyError("Custom GIFs are unavailable right now.")
		return
	}

	sub, opts := ctx.Subcommand()
	switch sub {
	case "add":
		h.gifAdd(ctx, interactions.SubOption(opts, "url"))
	case "clear":
		h.gifClear(ctx)
	case "toggle":
		h.gifToggle(ctx)
	default:
		ctx.ReplyError("Unknown gif action.")
	}
}

func (h *Handlers) gifAdd(ctx *interactions.Context, raw string) {
	raw = strings.TrimSpace(raw)
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		ctx.ReplyError("That doesn't look like a link I can embed. Use a full http(s) URL.")
		return
	}

	if err := h.deps.Gifs.AddURL(ctx.GuildID, raw); err != nil {
		h.gifLog.Error("Gif add failed", err, map[string]interface{}{
			"guild_id": ctx.GuildID,
			"url":      raw,
			"error":    err.Error(),
		})
		ctx.ReplyError("Couldn't save that GIF, try again shortly.")
		return
	}

	h.gifLog.Info("Gif added", map[string]interface{}{
		"guild_id": ctx.GuildID,
		"user_id":  ctx.UserID,
		"url":      raw,
	})
	ctx.ReplyEphemeral("Added to this server's loading rotation. Run `/gif toggle` if custom GIFs are off.")
}

func (h *Handlers) gifClear(ctx *interactions.Context) {
	if err := h.deps.Gifs.Clear(ctx.GuildID); err != nil {
		h.gifLog.Error("Gif clear failed", err, map[string]interface{}{
			"guild_id": ctx.GuildID,
			"error":    err.Error(),
		})
		ctx.ReplyError("Couldn't clear the GIF set, try again shortly.")
		return
	}
	ctx.ReplyEphemeral("Cleared the custom GIF set. Loading screens use the built-in rotation again.")
}

func (h *Handlers) gifToggle(ctx *interactions.Context) {
	row, err := h.deps.Gifs.Get(ctx.GuildID)
	if err != nil || row == nil {
		ctx.ReplyError("Couldn't read the GIF settings, try again shortly.")
		return
	}

	target := !row.UseCustomGifs
	if target && len(row.GifURLs) == 0 {
		ctx.ReplyError("Add at least one GIF with `/gif add` before switching to custom ones.")
		return
	}

	if err := h.deps.Gifs.SetUseCustom(ctx.GuildID, target); err != nil {
		h.gifLog.Error("Gif toggle failed", err, map[string]interface{}{
			"guild_id": ctx.GuildID,
			"error":    err.Error(),
		})
		ctx.ReplyError("Couldn't flip the GIF setting, try again shortly.")
		return
	}

	if target {
		ctx.ReplyEphemeral(fmt.Sprintf("Custom GIFs on, rotating through %d of them.", len(row.GifURLs)))
	} else {
		ctx.ReplyEphemeral("Custom GIFs off. Loading screens use the built-in rotation.")
	}
}

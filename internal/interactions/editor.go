package interactions

import (
	"errors"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/groovebox/pkg/database/models"
	"github.com/latoulicious/groovebox/pkg/logging"
	"github.com/latoulicious/groovebox/pkg/msgref"
	"github.com/latoulicious/groovebox/pkg/ui"
)

// ControlsPublisher renders a state and pushes it into the guild's stored
// playback controls message, reposting when the stored message is gone.
// It is the coordinator's edit surface.
type ControlsPublisher struct {
	rest   *discordgo.Session
	refs   *msgref.Manager
	logger logging.Logger
}

func NewControlsPublisher(rest *discordgo.Session, refs *msgref.Manager) *ControlsPublisher {
	return &ControlsPublisher{
		rest:   rest,
		refs:   refs,
		logger: logging.GetGlobalLoggerFactory().CreateLogger("interactions"),
	}
}

// EditControls edits the stored message in place. When the message or its
// channel no longer exists, the stale ref is dropped and the controls are
// reposted into the same channel. With no stored ref at all the edit is
// skipped; the components command creates the first message.
func (p *ControlsPublisher) EditControls(guildID string, state ui.State) error {
	payload := ui.Render(&state)

	ref, ok := p.refs.Get(guildID, models.RefPlaybackControls)
	if !ok {
		return nil
	}

	_, err := p.rest.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:         ref.MessageID,
		Channel:    ref.ChannelID,
		Embeds:     &payload.Embeds,
		Components: &payload.Components,
	})
	if err == nil {
		return nil
	}
	if !isGone(err) {
		return err
	}

	p.refs.Clear(guildID, models.RefPlaybackControls)
	msg, err := p.rest.ChannelMessageSendComplex(ref.ChannelID, &discordgo.MessageSend{
		Embeds:     payload.Embeds,
		Components: payload.Components,
	})
	if err != nil {
		return err
	}
	p.refs.Set(guildID, models.RefPlaybackControls, ref.ChannelID, msg.ID)
	p.logger.Info("Reposted playback controls", map[string]interface{}{
		"guild_id":   guildID,
		"channel_id": ref.ChannelID,
	})
	return nil
}

// Post sends a fresh controls message into a channel and stores its ref,
// replacing whatever was stored before.
func (p *ControlsPublisher) Post(guildID, channelID string, state ui.State) error {
	payload := ui.Render(&state)

	msg, err := p.rest.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds:     payload.Embeds,
		Components: payload.Components,
	})
	if err != nil {
		return err
	}
	p.refs.Set(guildID, models.RefPlaybackControls, channelID, msg.ID)
	return nil
}

// isGone reports whether a REST error means the target message or channel
// no longer exists.
func isGone(err error) bool {
	var rerr *discordgo.RESTError
	if !errors.As(err, &rerr) || rerr.Message == nil {
		return false
	}
	switch rerr.Message.Code {
	case discordgo.ErrCodeUnknownMessage, discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeUnknownWebhook:
		return true
	default:
		return false
	}
}

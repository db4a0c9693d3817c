package interactions

import (
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/groovebox/pkg/faults"
	"github.com/latoulicious/groovebox/pkg/logging"
)

// Embed colors for dispatcher-level replies.
const (
	colorReplyError   = 0xed4245
	colorReplySuccess = 0x57f287
)

// Context carries one interaction through its handler. The first
// acknowledgement captured here becomes the HTTP response to the webhook;
// everything after it goes out over the REST followup endpoints using the
// interaction token.
type Context struct {
	Rest        *discordgo.Session
	Interaction *discordgo.Interaction

	GuildID     string
	ChannelID   string
	UserID      string
	DisplayName string
	AvatarURL   string
	Roles       []string
	IsOwner     bool

	logger logging.Logger

	mu  sync.Mutex
	ack *discordgo.InteractionResponse
}

func newContext(rest *discordgo.Session, i *discordgo.Interaction, isOwner func(guildID, userID string) bool, logger logging.Logger) *Context {
	ctx := &Context{
		Rest:        rest,
		Interaction: i,
		GuildID:     i.GuildID,
		ChannelID:   i.ChannelID,
		logger:      logger,
	}
	switch {
	case i.Member != nil && i.Member.User != nil:
		ctx.UserID = i.Member.User.ID
		ctx.DisplayName = i.Member.User.Username
		if i.Member.Nick != "" {
			ctx.DisplayName = i.Member.Nick
		}
		ctx.AvatarURL = i.Member.User.AvatarURL("")
		ctx.Roles = i.Member.Roles
	case i.User != nil:
		ctx.UserID = i.User.ID
		ctx.DisplayName = i.User.Username
		ctx.AvatarURL = i.User.AvatarURL("")
	}
	if isOwner != nil && ctx.GuildID != "" && ctx.UserID != "" {
		ctx.IsOwner = isOwner(ctx.GuildID, ctx.UserID)
	}
	return ctx
}

// Ack captures the synchronous interaction response. The first call wins;
// later calls are ignored so handlers can always fall through safely.
func (c *Context) Ack(resp *discordgo.InteractionResponse) {
	c.mu.Lock()
	if c.ack == nil {
		c.ack = resp
	}
	c.mu.Unlock()
}

// Response returns the captured acknowledgement, or nil when the handler
// never acked.
func (c *Context) Response() *discordgo.InteractionResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ack
}

// Reply acks with a plain channel message.
func (c *Context) Reply(content string) {
	c.Ack(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	})
}

// ReplyEphemeral acks with a message only the invoker sees.
func (c *Context) ReplyEphemeral(content string) {
	c.Ack(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

// ReplyEmbed acks with an embed.
func (c *Context) ReplyEmbed(embed *discordgo.MessageEmbed, ephemeral bool) {
	data := &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	c.Ack(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
}

// ReplyError acks with an ephemeral red embed.
func (c *Context) ReplyError(message string) {
	c.ReplyEmbed(&discordgo.MessageEmbed{
		Description: "❌ " + message,
		Color:       colorReplyError,
	}, true)
}

// ReplyFault acks with the canonical user message for an error. The
// message carries its own marker, so nothing is prepended.
func (c *Context) ReplyFault(err error) {
	c.ReplyEmbed(&discordgo.MessageEmbed{
		Description: faults.UserMessage(err),
		Color:       colorReplyError,
	}, true)
}

// DeferEphemeral acks with a deferred ephemeral response; the handler
// follows up once the slow work finishes.
func (c *Context) DeferEphemeral() {
	c.Ack(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
}

// DeferUpdate acks a component interaction without changing the message.
// The controls message catches up through the coordinator's edit path.
func (c *Context) DeferUpdate() {
	c.Ack(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
}

// Followup sends an ephemeral followup message. Failures are logged, not
// returned; by this point the interaction is already acknowledged.
func (c *Context) Followup(content string) {
	c.followup(&discordgo.WebhookParams{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
}

// FollowupEmbed sends an ephemeral followup embed.
func (c *Context) FollowupEmbed(embed *discordgo.MessageEmbed) {
	c.followup(&discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{embed},
		Flags:  discordgo.MessageFlagsEphemeral,
	})
}

// FollowupError sends an ephemeral red embed followup.
func (c *Context) FollowupError(message string) {
	c.FollowupEmbed(&discordgo.MessageEmbed{
		Description: "❌ " + message,
		Color:       colorReplyError,
	})
}

// FollowupFault sends the canonical user message for an error as an
// ephemeral followup.
func (c *Context) FollowupFault(err error) {
	c.FollowupEmbed(&discordgo.MessageEmbed{
		Description: faults.UserMessage(err),
		Color:       colorReplyError,
	})
}

func (c *Context) followup(params *discordgo.WebhookParams) {
	if c.Rest == nil {
		return
	}
	if _, err := c.Rest.FollowupMessageCreate(c.Interaction, true, params); err != nil {
		c.logger.Warn("Followup failed", map[string]interface{}{
			"guild_id": c.GuildID,
			"user_id":  c.UserID,
			"error":    err.Error(),
		})
	}
}

// Option returns a string command option by name, or "".
func (c *Context) Option(name string) string {
	if c.Interaction.Type != discordgo.InteractionApplicationCommand {
		return ""
	}
	for _, opt := range c.Interaction.ApplicationCommandData().Options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionString {
			return opt.StringValue()
		}
	}
	return ""
}

// Subcommand returns the invoked subcommand name and its options, or ""
// when the interaction is not a subcommand invocation.
func (c *Context) Subcommand() (string, []*discordgo.ApplicationCommandInteractionDataOption) {
	if c.Interaction.Type != discordgo.InteractionApplicationCommand {
		return "", nil
	}
	opts := c.Interaction.ApplicationCommandData().Options
	if len(opts) == 1 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return opts[0].Name, opts[0].Options
	}
	return "", nil
}

// SubOption returns a string option from a subcommand's option list.
func SubOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, opt := range opts {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionString {
			return opt.StringValue()
		}
	}
	return ""
}

// ModalValue returns a text input value from a modal submit by custom id.
func (c *Context) ModalValue(customID string) string {
	if c.Interaction.Type != discordgo.InteractionModalSubmit {
		return ""
	}
	for _, row := range c.Interaction.ModalSubmitData().Components {
		ar, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, comp := range ar.Components {
			if in, ok := comp.(*discordgo.TextInput); ok && in.CustomID == customID {
				return in.Value
			}
		}
	}
	return ""
}

// SelectedValues returns the chosen values of a select menu interaction.
func (c *Context) SelectedValues() []string {
	if c.Interaction.Type != discordgo.InteractionMessageComponent {
		return nil
	}
	return c.Interaction.MessageComponentData().Values
}

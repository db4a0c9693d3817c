package voice

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/groovebox/pkg/faults"
	"github.com/latoulicious/groovebox/pkg/logging"
)

const (
	// readyTimeout bounds how long Join waits for the voice handshake.
	readyTimeout = 10 * time.Second

	// readyPoll is the interval used while waiting for vc.Ready.
	readyPoll = 100 * time.Millisecond
)

// Gateway owns the Discord voice connections, one per guild. The session
// engine calls Join/Leave; shutdown calls DestroyAll.
type Gateway struct {
	session *discordgo.Session
	logger  logging.Logger

	mu    sync.Mutex
	conns map[string]*Conn
}

// Conn wraps a ready discordgo voice connection for one guild.
type Conn struct {
	guildID   string
	channelID string

	mu sync.RWMutex
	vc *discordgo.VoiceConnection
}

// NewGateway creates a voice gateway over an open Discord session.
func NewGateway(session *discordgo.Session) *Gateway {
	return &Gateway{
		session: session,
		logger:  logging.GetGlobalLoggerFactory().CreateLogger("voice"),
		conns:   make(map[string]*Conn),
	}
}

// Join connects the bot to a voice channel and waits for the connection to
// become ready. Joining the channel the guild is already connected to
// returns the existing connection; joining a different channel moves the
// bot there.
func (g *Gateway) Join(ctx context.Context, guildID, channelID string) (*Conn, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.conns[guildID]; ok {
		if existing.ChannelID() == channelID && existing.Ready() {
			return existing, nil
		}
		g.logger.Info("Moving voice connection", map[string]interface{}{
			"guild_id":     guildID,
			"from_channel": existing.ChannelID(),
			"to_channel":   channelID,
		})
		existing.close()
		delete(g.conns, guildID)
	}

	g.logger.Info("Joining voice channel", map[string]interface{}{
		"guild_id":   guildID,
		"channel_id": channelID,
	})

	// mute=false, deaf=true: the bot never listens.
	vc, err := g.session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, faults.Wrap(faults.CategorySession, faults.CodeSessionVoiceFailed,
			"failed to join the voice channel", err).
			WithDetail("guild_id", guildID).
			WithDetail("channel_id", channelID)
	}

	if err := waitReady(ctx, vc); err != nil {
		vc.Disconnect()
		return nil, err
	}

	conn := &Conn{guildID: guildID, channelID: channelID, vc: vc}
	g.conns[guildID] = conn
	return conn, nil
}

// waitReady polls the discordgo handshake flag. discordgo exposes no
// readiness channel, so every bot does this dance.
func waitReady(ctx context.Context, vc *discordgo.VoiceConnection) error {
	deadline := time.NewTimer(readyTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(readyPoll)
	defer tick.Stop()

	for !vc.Ready {
		select {
		case <-ctx.Done():
			return faults.Wrap(faults.CategorySession, faults.CodeSessionVoiceFailed,
				"voice connection canceled before ready", ctx.Err())
		case <-deadline.C:
			return faults.New(faults.CategorySession, faults.CodeSessionVoiceFailed,
				"voice connection not ready in time").
				WithDetail("timeout", readyTimeout.String())
		case <-tick.C:
		}
	}
	return nil
}

// Leave disconnects the guild's voice connection, if any.
func (g *Gateway) Leave(guildID string) {
	g.mu.Lock()
	conn, ok := g.conns[guildID]
	if ok {
		delete(g.conns, guildID)
	}
	g.mu.Unlock()

	if !ok {
		return
	}
	g.logger.Info("Leaving voice channel", map[string]interface{}{
		"guild_id":   guildID,
		"channel_id": conn.ChannelID(),
	})
	conn.close()
}

// Get returns the guild's connection, or nil when not connected.
func (g *Gateway) Get(guildID string) *Conn {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conns[guildID]
}

// Forget drops the tracked connection without calling Disconnect. Used when
// Discord already tore the connection down (external disconnect event).
func (g *Gateway) Forget(guildID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.conns, guildID)
}

// ActiveCount reports how many guilds hold a voice connection.
func (g *Gateway) ActiveCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

// DestroyAll disconnects every guild. Part of process shutdown.
func (g *Gateway) DestroyAll() {
	g.mu.Lock()
	conns := make([]*Conn, 0, len(g.conns))
	for _, conn := range g.conns {
		conns = append(conns, conn)
	}
	g.conns = make(map[string]*Conn)
	g.mu.Unlock()

	for _, conn := range conns {
		conn.close()
	}
	if len(conns) > 0 {
		g.logger.Info("Destroyed voice connections", map[string]interface{}{
			"count": len(conns),
		})
	}
}

// GuildID returns the guild this connection belongs to.
func (c *Conn) GuildID() string {
	return c.guildID
}

// ChannelID returns the joined channel.
func (c *Conn) ChannelID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channelID
}

// Ready reports whether the underlying connection finished its handshake.
func (c *Conn) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vc != nil && c.vc.Ready
}

// Speaking toggles the speaking indicator. Must be set true before opus
// frames are sent and false afterwards.
func (c *Conn) Speaking(on bool) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vc == nil {
		return faults.New(faults.CategorySession, faults.CodeSessionNotInVoice,
			"no voice connection")
	}
	return c.vc.Speaking(on)
}

// OpusSend returns the channel opus frames are written to.
func (c *Conn) OpusSend() chan<- []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vc == nil {
		return nil
	}
	return c.vc.OpusSend
}

func (c *Conn) close() {
	c.mu.Lock()
	vc := c.vc
	c.vc = nil
	c.mu.Unlock()

	if vc != nil {
		vc.Speaking(false)
		vc.Disconnect()
	}
}

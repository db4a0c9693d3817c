package voice

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/latoulicious/groovebox/pkg/faults"
)

func TestConnGuardsAgainstClosedConnection(t *testing.T) {
	conn := &Conn{guildID: "guild-1", channelID: "vc-1"}

	assert.False(t, conn.Ready())
	assert.Nil(t, conn.OpusSend())

	err := conn.Speaking(true)
	assert.Equal(t, faults.CodeSessionNotInVoice, faults.CodeOf(err))

	// close on an already-closed connection must not panic
	conn.close()
	conn.close()
}

func TestGatewayBookkeeping(t *testing.T) {
	g := NewGateway(nil)

	assert.Nil(t, g.Get("guild-1"))
	assert.Equal(t, 0, g.ActiveCount())

	g.conns["guild-1"] = &Conn{guildID: "guild-1", channelID: "vc-1"}
	g.conns["guild-2"] = &Conn{guildID: "guild-2", channelID: "vc-2"}
	assert.Equal(t, 2, g.ActiveCount())
	assert.Equal(t, "vc-1", g.Get("guild-1").ChannelID())

	g.Forget("guild-1")
	assert.Nil(t, g.Get("guild-1"))
	assert.Equal(t, 1, g.ActiveCount())

	g.Leave("guild-2")
	assert.Equal(t, 0, g.ActiveCount())

	// leaving a guild with no connection is harmless
	g.Leave("guild-2")

	g.conns["guild-3"] = &Conn{guildID: "guild-3"}
	g.DestroyAll()
	assert.Equal(t, 0, g.ActiveCount())
}

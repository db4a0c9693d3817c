package interactions_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latoulicious/groovebox/internal/interactions"
	"github.com/latoulicious/groovebox/pkg/faults"
	"github.com/latoulicious/groovebox/pkg/metrics"
)

type staticSessions int

func (s staticSessions) ActiveCount() int { return int(s) }

type serverHarness struct {
	srv      *interactions.Server
	registry *interactions.Registry
	metrics  *metrics.BasicCollector
	priv     ed25519.PrivateKey
}

func newServerHarness(t *testing.T) *serverHarness {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	reg := interactions.NewRegistry()
	col := metrics.NewBasicCollector()
	srv, err := interactions.NewServer(
		interactions.Config{PublicKey: hex.EncodeToString(pub)},
		interactions.Deps{
			Registry: reg,
			Sessions: staticSessions(3),
			Metrics:  col,
		},
	)
	require.NoError(t, err)

	return &serverHarness{srv: srv, registry: reg, metrics: col, priv: priv}
}

func signPayload(priv ed25519.PrivateKey, timestamp, body string) string {
	msg := append([]byte(timestamp), []byte(body)...)
	return hex.EncodeToString(ed25519.Sign(priv, msg))
}

func postSigned(t *testing.T, router http.Handler, priv ed25519.PrivateKey, body string) *httptest.ResponseRecorder {
	t.Helper()

	ts := time.Now().UTC().Format(time.RFC3339)
	req := httptest.NewRequest(http.MethodPost, "/interactions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature-Timestamp", ts)
	req.Header.Set("X-Signature-Ed25519", signPayload(priv, ts, body))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) *discordgo.InteractionResponse {
	t.Helper()

	var resp discordgo.InteractionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return &resp
}

const pingBody = `{"id":"10","application_id":"app-1","type":1}`

func commandBody(name string) string {
	return fmt.Sprintf(`{
		"id": "901",
		"application_id": "app-1",
		"type": 2,
		"guild_id": "guild-1",
		"channel_id": "chan-1",
		"member": {"nick": "DJ", "roles": ["role-1"], "user": {"id": "user-1", "username": "listener"}},
		"data": {"id": "cmd-1", "name": %q, "type": 1}
	}`, name)
}

func buttonBody(customID string) string {
	return fmt.Sprintf(`{
		"id": "902",
		"application_id": "app-1",
		"type": 3,
		"guild_id": "guild-1",
		"channel_id": "chan-1",
		"member": {"roles": [], "user": {"id": "user-2", "username": "presser"}},
		"data": {"custom_id": %q, "component_type": 2}
	}`, customID)
}

func menuBody(customID string, values ...string) string {
	vals, _ := json.Marshal(values)
	return fmt.Sprintf(`{
		"id": "903",
		"application_id": "app-1",
		"type": 3,
		"guild_id": "guild-1",
		"channel_id": "chan-1",
		"member": {"roles": [], "user": {"id": "user-2", "username": "presser"}},
		"data": {"custom_id": %q, "component_type": 3, "values": %s}
	}`, customID, vals)
}

func modalBody(customID, inputID, value string) string {
	return fmt.Sprintf(`{
		"id": "904",
		"application_id": "app-1",
		"type": 5,
		"guild_id": "guild-1",
		"channel_id": "chan-1",
		"member": {"roles": [], "user": {"id": "user-3", "username": "typer"}},
		"data": {"custom_id": %q, "components": [
			{"type": 1, "components": [{"type": 4, "custom_id": %q, "value": %q}]}
		]}
	}`, customID, inputID, value)
}

func TestServerRejectsBadSignature(t *testing.T) {
	h := newServerHarness(t)

	_, wrongPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	rec := postSigned(t, h.srv.Router(), wrongPriv, pingBody)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServerRejectsMissingSignatureHeaders(t *testing.T) {
	h := newServerHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/interactions", strings.NewReader(pingBody))
	rec := httptest.NewRecorder()
	h.srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServerAnswersPingWithPong(t *testing.T) {
	h := newServerHarness(t)

	rec := postSigned(t, h.srv.Router(), h.priv, pingBody)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	assert.Equal(t, discordgo.InteractionResponsePong, resp.Type)
}

func TestServerRoutesCommandToHandler(t *testing.T) {
	h := newServerHarness(t)

	var got *interactions.Context
	h.registry.Command("play", func(ctx *interactions.Context) {
		got = ctx
		ctx.ReplyEphemeral("on it")
	})

	rec := postSigned(t, h.srv.Router(), h.priv, commandBody("play"))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	assert.Equal(t, discordgo.InteractionResponseChannelMessageWithSource, resp.Type)
	require.NotNil(t, resp.Data)
	assert.Equal(t, "on it", resp.Data.Content)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, resp.Data.Flags)

	require.NotNil(t, got)
	assert.Equal(t, "guild-1", got.GuildID)
	assert.Equal(t, "chan-1", got.ChannelID)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "DJ", got.DisplayName)
	assert.Equal(t, []string{"role-1"}, got.Roles)
}

func TestServerRoutesComponentByCustomID(t *testing.T) {
	h := newServerHarness(t)

	h.registry.Component("unified_queue_select", func(ctx *interactions.Context) {
		vals := ctx.SelectedValues()
		require.Len(t, vals, 1)
		ctx.ReplyEphemeral("picked " + vals[0])
	})

	rec := postSigned(t, h.srv.Router(), h.priv, menuBody("unified_queue_select", "2"))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Data)
	assert.Equal(t, "picked 2", resp.Data.Content)
}

func TestServerRoutesModalSubmit(t *testing.T) {
	h := newServerHarness(t)

	h.registry.Modal("unified_add_song_modal", func(ctx *interactions.Context) {
		ctx.ReplyEphemeral("query " + ctx.ModalValue("song_query"))
	})

	rec := postSigned(t, h.srv.Router(), h.priv, modalBody("unified_add_song_modal", "song_query", "hello there"))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Data)
	assert.Equal(t, "query hello there", resp.Data.Content)
}

func TestServerFailsClosedOnUnknownInteraction(t *testing.T) {
	h := newServerHarness(t)

	rec := postSigned(t, h.srv.Router(), h.priv, buttonBody("mystery_button"))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	assert.Equal(t, discordgo.InteractionResponseChannelMessageWithSource, resp.Type)
	require.NotNil(t, resp.Data)
	assert.Contains(t, resp.Data.Content, "/components")
	assert.Equal(t, discordgo.MessageFlagsEphemeral, resp.Data.Flags)

	snap := h.metrics.Snapshot()
	assert.Equal(t, 1, snap.ErrorsByCode[faults.CodePlatformUnknownInteraction])
}

func TestServerFailsClosedWhenHandlerNeverAcks(t *testing.T) {
	h := newServerHarness(t)

	h.registry.Command("ghost", func(ctx *interactions.Context) {})

	rec := postSigned(t, h.srv.Router(), h.priv, commandBody("ghost"))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Data)
	assert.Contains(t, resp.Data.Content, "/components")
}

func TestServerFirstAckWins(t *testing.T) {
	h := newServerHarness(t)

	h.registry.Command("double", func(ctx *interactions.Context) {
		ctx.ReplyEphemeral("first")
		ctx.Reply("second")
	})

	rec := postSigned(t, h.srv.Router(), h.priv, commandBody("double"))
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Data)
	assert.Equal(t, "first", resp.Data.Content)
}

func TestHealthzReportsOK(t *testing.T) {
	h := newServerHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestHealthzReportsDegraded(t *testing.T) {
	h := newServerHarness(t)

	for i := 0; i < 6; i++ {
		h.metrics.RecordResolve(false, time.Millisecond)
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")
}

func TestStatusReportsRuntimeCounters(t *testing.T) {
	h := newServerHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	h.srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))

	assert.Equal(t, "ok", payload["status"])
	assert.NotEmpty(t, payload["version"])
	assert.EqualValues(t, 3, payload["active_sessions"])
	assert.Contains(t, payload, "uptime_seconds")
	assert.Contains(t, payload, "goroutines")
	assert.Contains(t, payload, "metrics")
}

func TestNewServerRejectsMalformedPublicKey(t *testing.T) {
	for _, key := range []string{"", "zz", "abcd"} {
		_, err := interactions.NewServer(
			interactions.Config{PublicKey: key},
			interactions.Deps{Registry: interactions.NewRegistry()},
		)
		require.Error(t, err)
		assert.Equal(t, faults.CodeSystemConfig, faults.CodeOf(err))
	}
}

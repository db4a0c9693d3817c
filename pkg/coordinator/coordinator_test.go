package coordinator_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latoulicious/groovebox/pkg/config"
	"github.com/latoulicious/groovebox/pkg/coordinator"
	"github.com/latoulicious/groovebox/pkg/database/models"
	"github.com/latoulicious/groovebox/pkg/faults"
	"github.com/latoulicious/groovebox/pkg/queue"
	"github.com/latoulicious/groovebox/pkg/session"
	"github.com/latoulicious/groovebox/pkg/ui"
)

type destroyCall struct {
	guildID string
	reset   bool
}

type mockSessions struct {
	mu       sync.Mutex
	snaps    map[string]session.Snapshot
	submits  []session.Command
	creates  []session.Command
	destroys []destroyCall
}

func newMockSessions() *mockSessions {
	return &mockSessions{snaps: make(map[string]session.Snapshot)}
}

func (m *mockSessions) Submit(guildID string, cmd session.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snaps[guildID]; !ok {
		return faults.New(faults.CategorySession, faults.CodeSessionNotFound, "no active session for this guild")
	}
	m.submits = append(m.submits, cmd)
	return nil
}

func (m *mockSessions) SubmitOrCreate(guildID string, cmd session.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates = append(m.creates, cmd)
	return nil
}

func (m *mockSessions) Snapshot(guildID string) (session.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[guildID]
	return snap, ok
}

func (m *mockSessions) Destroy(guildID string, reset bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroys = append(m.destroys, destroyCall{guildID: guildID, reset: reset})
}

func (m *mockSessions) setState(guildID string, phase session.Phase, totalTracks int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[guildID] = session.Snapshot{GuildID: guildID, Phase: phase, TotalTracks: totalTracks}
}

func (m *mockSessions) createCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.creates)
}

func (m *mockSessions) createdQueries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.creates))
	for _, cmd := range m.creates {
		out = append(out, cmd.Query)
	}
	return out
}

func (m *mockSessions) submitKinds() []session.CommandKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]session.CommandKind, 0, len(m.submits))
	for _, cmd := range m.submits {
		out = append(out, cmd.Kind)
	}
	return out
}

func (m *mockSessions) destroyCalls() []destroyCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]destroyCall(nil), m.destroys...)
}

type mockEditor struct {
	mu     sync.Mutex
	states []ui.State
}

func (m *mockEditor) EditControls(guildID string, state ui.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, state)
	return nil
}

func (m *mockEditor) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states)
}

func (m *mockEditor) last() ui.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[len(m.states)-1]
}

type mockIdle struct {
	mu      sync.Mutex
	armed   []string
	cleared []string
}

func (m *mockIdle) Arm(guildID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed = append(m.armed, guildID)
}

func (m *mockIdle) Clear(guildID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared = append(m.cleared, guildID)
}

func (m *mockIdle) armedGuilds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.armed...)
}

func (m *mockIdle) clearedGuilds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.cleared...)
}

type mockRefs struct {
	mu      sync.Mutex
	cleared []string
}

func (m *mockRefs) ClearGuild(guildID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared = append(m.cleared, guildID)
}

func (m *mockRefs) clearedGuilds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.cleared...)
}

type mockSettings struct {
	mu  sync.Mutex
	row *models.GuildSettings
}

func (m *mockSettings) Get(guildID string) (*models.GuildSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.row, nil
}

func (m *mockSettings) set(row *models.GuildSettings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.row = row
}

type mockGifs struct {
	mu  sync.Mutex
	row *models.GuildGifs
}

func (m *mockGifs) Get(guildID string) (*models.GuildGifs, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.row, nil
}

func (m *mockGifs) set(row *models.GuildGifs) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.row = row
}

type mockPlays struct {
	mu      sync.Mutex
	touched []string
}

func (m *mockPlays) TouchPlayed(queryHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched = append(m.touched, queryHash)
	return nil
}

func (m *mockPlays) touchedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.touched...)
}

type harness struct {
	sessions *mockSessions
	editor   *mockEditor
	idle     *mockIdle
	refs     *mockRefs
	settings *mockSettings
	gifs     *mockGifs
	plays    *mockPlays
	coord    *coordinator.Coordinator
}

func newHarness(t *testing.T, gate config.GateConfig) *harness {
	return newHarnessDebounce(t, gate, 20*time.Millisecond)
}

func newHarnessDebounce(t *testing.T, gate config.GateConfig, debounce time.Duration) *harness {
	t.Helper()
	h := &harness{
		sessions: newMockSessions(),
		editor:   &mockEditor{},
		idle:     &mockIdle{},
		refs:     &mockRefs{},
		settings: &mockSettings{},
		gifs:     &mockGifs{},
		plays:    &mockPlays{},
	}
	h.coord = coordinator.New(coordinator.Deps{
		Sessions: h.sessions,
		Editor:   h.editor,
		Idle:     h.idle,
		Refs:     h.refs,
		Settings: h.settings,
		Gifs:     h.gifs,
		Plays:    h.plays,
		Gate:     gate,
		Debounce: debounce,
	})
	t.Cleanup(h.coord.Stop)
	return h
}

func defaultGate() config.GateConfig {
	return config.GateConfig{
		RateWindow:  10 * time.Second,
		RateLimit:   50,
		DeferredCap: 4,
		DeferredTTL: time.Minute,
		LockTTL:     time.Minute,
	}
}

func playCmd(query string) session.Command {
	return session.Command{
		Kind:      session.CmdPlay,
		Query:     query,
		Requester: queue.Requester{UserID: "user-1", DisplayName: "listener"},
	}
}

func snapshot(guildID string, phase session.Phase, total int) session.Snapshot {
	return session.Snapshot{
		GuildID:     guildID,
		Phase:       phase,
		TotalTracks: total,
		VolumePct:   100,
		UpdatedAt:   time.Now(),
	}
}

func lockInfo(t *testing.T, c *coordinator.Coordinator, guildID string) coordinator.LockInfo {
	t.Helper()
	for _, lk := range c.Locks() {
		if lk.GuildID == guildID {
			return lk
		}
	}
	t.Fatalf("no lock for guild %s", guildID)
	return coordinator.LockInfo{}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestDispatchPlayLocksQueryingAndForwards(t *testing.T) {
	h := newHarness(t, defaultGate())

	err := h.coord.Dispatch("guild-1", playCmd("oasis wonderwall"), coordinator.PriorityNormal, "user-1")
	require.NoError(t, err)

	assert.Equal(t, 1, h.sessions.createCount())
	lk := lockInfo(t, h.coord, "guild-1")
	assert.Equal(t, string(coordinator.StateQuerying), lk.State)
	assert.Equal(t, "user-1", lk.RequesterID)
}

func TestSecondPlayDuringQueryingIsDeferred(t *testing.T) {
	h := newHarness(t, defaultGate())

	require.NoError(t, h.coord.Dispatch("guild-1", playCmd("first"), coordinator.PriorityNormal, "user-1"))

	err := h.coord.Dispatch("guild-1", playCmd("second"), coordinator.PriorityNormal, "user-2")
	require.ErrorIs(t, err, coordinator.ErrDeferred)

	assert.Equal(t, 1, h.sessions.createCount())
	assert.Equal(t, 1, lockInfo(t, h.coord, "guild-1").Deferred)
}

func TestDeferredPlayReplaysWhenFlowSettles(t *testing.T) {
	h := newHarness(t, defaultGate())

	require.NoError(t, h.coord.Dispatch("guild-1", playCmd("first"), coordinator.PriorityNormal, "user-1"))
	require.ErrorIs(t, h.coord.Dispatch("guild-1", playCmd("second"), coordinator.PriorityNormal, "user-2"), coordinator.ErrDeferred)

	// The engine resolved the first play and started it.
	h.sessions.setState("guild-1", session.PhasePlaying, 1)
	h.coord.OnTransition(snapshot("guild-1", session.PhasePlaying, 1))

	assert.Equal(t, 2, h.sessions.createCount())
	assert.Equal(t, 0, lockInfo(t, h.coord, "guild-1").Deferred)
}

func TestDeferredRunsInPriorityOrder(t *testing.T) {
	h := newHarness(t, defaultGate())

	require.NoError(t, h.coord.Dispatch("guild-1", playCmd("first"), coordinator.PriorityHigh, "admin-1"))
	require.ErrorIs(t, h.coord.Dispatch("guild-1", playCmd("second"), coordinator.PriorityNormal, "user-2"), coordinator.ErrDeferred)
	require.ErrorIs(t, h.coord.Dispatch("guild-1", playCmd("third"), coordinator.PriorityHigh, "admin-1"), coordinator.ErrDeferred)

	h.sessions.setState("guild-1", session.PhasePlaying, 1)
	h.coord.OnTransition(snapshot("guild-1", session.PhasePlaying, 1))

	assert.Equal(t, []string{"first", "third", "second"}, h.sessions.createdQueries())
}

func TestHigherPriorityPreemptsHeldLock(t *testing.T) {
	h := newHarness(t, defaultGate())

	require.NoError(t, h.coord.Dispatch("guild-1", playCmd("first"), coordinator.PriorityNormal, "user-1"))

	err := h.coord.Dispatch("guild-1", playCmd("urgent"), coordinator.PriorityHigh, "admin-1")
	require.NoError(t, err)

	assert.Equal(t, 2, h.sessions.createCount())
	lk := lockInfo(t, h.coord, "guild-1")
	assert.Equal(t, "admin-1", lk.RequesterID)
	assert.Equal(t, "high", lk.Priority)
}

func TestUserSkipOutranksEngineLock(t *testing.T) {
	h := newHarness(t, defaultGate())
	h.sessions.setState("guild-1", session.PhasePlaying, 2)
	h.coord.OnTransition(snapshot("guild-1", session.PhasePlaying, 2))

	err := h.coord.Dispatch("guild-1", session.Command{Kind: session.CmdSkip}, coordinator.PriorityHigh, "user-1")
	require.NoError(t, err)

	kinds := h.sessions.submitKinds()
	require.Len(t, kinds, 1)
	assert.Equal(t, session.CmdSkip, kinds[0])
	assert.Equal(t, string(coordinator.StateLoading), lockInfo(t, h.coord, "guild-1").State)
}

func TestStopFromQueryingNeedsNoPreemption(t *testing.T) {
	h := newHarness(t, defaultGate())

	require.NoError(t, h.coord.Dispatch("guild-1", playCmd("first"), coordinator.PriorityNormal, "user-1"))
	h.sessions.setState("guild-1", session.PhaseQuerying, 0)

	err := h.coord.Dispatch("guild-1", session.Command{Kind: session.CmdStop}, coordinator.PriorityNormal, "user-2")
	require.NoError(t, err)

	assert.Equal(t, string(coordinator.StateIdle), lockInfo(t, h.coord, "guild-1").State)
}

func TestRateLimitRejectsOverLimit(t *testing.T) {
	gate := defaultGate()
	gate.RateLimit = 3
	h := newHarness(t, gate)
	h.sessions.setState("guild-1", session.PhasePlaying, 1)

	pause := session.Command{Kind: session.CmdPause}
	for i := 0; i < 3; i++ {
		require.NoError(t, h.coord.Dispatch("guild-1", pause, coordinator.PriorityNormal, "user-1"))
	}

	err := h.coord.Dispatch("guild-1", pause, coordinator.PriorityNormal, "user-1")
	require.Error(t, err)
	assert.Equal(t, faults.CodeSystemRateLimited, faults.CodeOf(err))

	// Another user in the same guild keeps their own budget.
	assert.NoError(t, h.coord.Dispatch("guild-1", pause, coordinator.PriorityNormal, "user-2"))
}

func TestRateLimitWindowSlides(t *testing.T) {
	gate := defaultGate()
	gate.RateLimit = 1
	gate.RateWindow = 40 * time.Millisecond
	h := newHarness(t, gate)
	h.sessions.setState("guild-1", session.PhasePlaying, 1)

	pause := session.Command{Kind: session.CmdPause}
	require.NoError(t, h.coord.Dispatch("guild-1", pause, coordinator.PriorityNormal, "user-1"))
	require.Error(t, h.coord.Dispatch("guild-1", pause, coordinator.PriorityNormal, "user-1"))

	time.Sleep(60 * time.Millisecond)
	assert.NoError(t, h.coord.Dispatch("guild-1", pause, coordinator.PriorityNormal, "user-1"))
}

func TestDeferredQueueOverflowsAtCap(t *testing.T) {
	gate := defaultGate()
	gate.DeferredCap = 2
	h := newHarness(t, gate)

	require.NoError(t, h.coord.Dispatch("guild-1", playCmd("first"), coordinator.PriorityNormal, "user-1"))
	require.ErrorIs(t, h.coord.Dispatch("guild-1", playCmd("second"), coordinator.PriorityNormal, "user-1"), coordinator.ErrDeferred)
	require.ErrorIs(t, h.coord.Dispatch("guild-1", playCmd("third"), coordinator.PriorityNormal, "user-1"), coordinator.ErrDeferred)

	err := h.coord.Dispatch("guild-1", playCmd("fourth"), coordinator.PriorityNormal, "user-1")
	require.Error(t, err)
	require.NotErrorIs(t, err, coordinator.ErrDeferred)
	assert.Equal(t, faults.CodeSystemRateLimited, faults.CodeOf(err))
}

func TestDeferredEntriesExpire(t *testing.T) {
	gate := defaultGate()
	gate.DeferredTTL = 30 * time.Millisecond
	h := newHarness(t, gate)

	require.NoError(t, h.coord.Dispatch("guild-1", playCmd("first"), coordinator.PriorityNormal, "user-1"))
	require.ErrorIs(t, h.coord.Dispatch("guild-1", playCmd("second"), coordinator.PriorityNormal, "user-2"), coordinator.ErrDeferred)

	time.Sleep(50 * time.Millisecond)
	h.sessions.setState("guild-1", session.PhasePlaying, 1)
	h.coord.OnTransition(snapshot("guild-1", session.PhasePlaying, 1))

	assert.Equal(t, 1, h.sessions.createCount())
	assert.Equal(t, 0, lockInfo(t, h.coord, "guild-1").Deferred)
}

func TestIdleWithEmptyQueueArmsDisconnectTimer(t *testing.T) {
	h := newHarness(t, defaultGate())

	h.coord.OnTransition(snapshot("guild-1", session.PhaseIdle, 0))
	assert.Equal(t, []string{"guild-1"}, h.idle.armedGuilds())

	h.coord.OnTransition(snapshot("guild-1", session.PhasePlaying, 1))
	assert.Equal(t, []string{"guild-1"}, h.idle.clearedGuilds())
}

func TestIdleWithQueuedTracksDoesNotArmTimer(t *testing.T) {
	h := newHarness(t, defaultGate())

	h.coord.OnTransition(snapshot("guild-1", session.PhaseIdle, 2))

	assert.Empty(t, h.idle.armedGuilds())
	assert.Equal(t, []string{"guild-1"}, h.idle.clearedGuilds())
}

func TestDestroyedTransitionCleansUpGuild(t *testing.T) {
	h := newHarnessDebounce(t, defaultGate(), 100*time.Millisecond)

	require.NoError(t, h.coord.Dispatch("guild-1", playCmd("first"), coordinator.PriorityNormal, "user-1"))

	// A pending controls edit must die with the session.
	h.coord.OnTransition(snapshot("guild-1", session.PhaseQuerying, 0))
	h.coord.OnTransition(session.Snapshot{GuildID: "guild-1", Phase: session.PhaseDestroyed})

	assert.Empty(t, h.coord.Locks())
	assert.Equal(t, []string{"guild-1"}, h.refs.clearedGuilds())
	assert.Contains(t, h.idle.clearedGuilds(), "guild-1")

	time.Sleep(150 * time.Millisecond)
	assert.Zero(t, h.editor.count())
}

func TestEmitDebouncesBursts(t *testing.T) {
	h := newHarnessDebounce(t, defaultGate(), 100*time.Millisecond)

	h.coord.OnTransition(snapshot("guild-1", session.PhaseQuerying, 0))
	h.coord.OnTransition(snapshot("guild-1", session.PhaseLoading, 1))
	h.coord.OnTransition(snapshot("guild-1", session.PhasePlaying, 1))

	waitFor(t, func() bool { return h.editor.count() == 1 }, "controls edit never arrived")
	time.Sleep(150 * time.Millisecond)

	assert.Equal(t, 1, h.editor.count())
	assert.Equal(t, ui.PhasePlaying, h.editor.last().Phase)
}

func TestUIStateMapsIdleErrorToErrorPhase(t *testing.T) {
	h := newHarness(t, defaultGate())

	snap := snapshot("guild-1", session.PhaseIdle, 0)
	snap.LastError = faults.New(faults.CategoryMedia, faults.CodeMediaResolveFailed, "no results")
	h.coord.OnTransition(snap)

	waitFor(t, func() bool { return h.editor.count() == 1 }, "controls edit never arrived")
	st := h.editor.last()
	assert.Equal(t, ui.PhaseError, st.Phase)
	assert.Equal(t, faults.CodeMediaResolveFailed, st.ErrorCode)
	assert.NotEmpty(t, st.ErrorMessage)
}

func TestUIStatePullsGuildCustomization(t *testing.T) {
	h := newHarness(t, defaultGate())
	h.settings.set(&models.GuildSettings{GuildID: "guild-1", QueueDisplayMode: models.QueueDisplayMenu})
	h.gifs.set(&models.GuildGifs{
		GuildID:       "guild-1",
		GifURLs:       models.StringList{"https://example.com/loading.gif"},
		UseCustomGifs: true,
	})

	snap := snapshot("guild-1", session.PhaseQuerying, 0)
	snap.SearchQuery = "oasis wonderwall"
	h.coord.OnTransition(snap)

	waitFor(t, func() bool { return h.editor.count() == 1 }, "controls edit never arrived")
	st := h.editor.last()
	assert.Equal(t, ui.PhaseQuerying, st.Phase)
	assert.Equal(t, "oasis wonderwall", st.SearchQuery)
	assert.Equal(t, "https://example.com/loading.gif", st.GifURL)
	assert.Equal(t, ui.DisplayMenu, st.QueueDisplayMode)
}

func TestResetAndDisconnectTearDownSession(t *testing.T) {
	h := newHarness(t, defaultGate())
	h.sessions.setState("guild-1", session.PhasePlaying, 1)

	require.NoError(t, h.coord.Dispatch("guild-1", session.Command{Kind: session.CmdAdminReset}, coordinator.PriorityCritical, "admin-1"))
	require.NoError(t, h.coord.Dispatch("guild-2", session.Command{Kind: session.CmdExternalDisconnect}, coordinator.PriorityCritical, "gateway"))

	calls := h.sessions.destroyCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, destroyCall{guildID: "guild-1", reset: true}, calls[0])
	assert.Equal(t, destroyCall{guildID: "guild-2", reset: false}, calls[1])
}

func TestSweepReapsStaleLock(t *testing.T) {
	gate := defaultGate()
	gate.LockTTL = 30 * time.Millisecond
	h := newHarness(t, gate)

	require.NoError(t, h.coord.Dispatch("guild-1", playCmd("first"), coordinator.PriorityNormal, "user-1"))
	assert.Equal(t, string(coordinator.StateQuerying), lockInfo(t, h.coord, "guild-1").State)

	time.Sleep(50 * time.Millisecond)
	h.coord.Sweep()

	lk := lockInfo(t, h.coord, "guild-1")
	assert.Equal(t, string(coordinator.StateIdle), lk.State)
	assert.Equal(t, "engine", lk.RequesterID)

	// A second pass removes the now-idle entry entirely.
	time.Sleep(50 * time.Millisecond)
	h.coord.Sweep()
	assert.Empty(t, h.coord.Locks())
}

func TestSweepUnblocksDeferredBehindStaleLock(t *testing.T) {
	gate := defaultGate()
	gate.LockTTL = 30 * time.Millisecond
	h := newHarness(t, gate)

	require.NoError(t, h.coord.Dispatch("guild-1", playCmd("first"), coordinator.PriorityNormal, "user-1"))
	require.ErrorIs(t, h.coord.Dispatch("guild-1", playCmd("second"), coordinator.PriorityNormal, "user-2"), coordinator.ErrDeferred)

	time.Sleep(50 * time.Millisecond)
	h.coord.Sweep()

	assert.Equal(t, 2, h.sessions.createCount())
}

func TestPlayingTransitionBumpsPlayCounterOnce(t *testing.T) {
	h := newHarness(t, defaultGate())

	playing := snapshot("guild-1", session.PhasePlaying, 1)
	playing.NowPlaying = &queue.SongRecord{ID: "song-1", Title: "first"}
	h.coord.OnTransition(playing)

	waitFor(t, func() bool { return len(h.plays.touchedIDs()) == 1 }, "play counter never bumped")

	// Volume and pause transitions republish the same track.
	h.coord.OnTransition(playing)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"song-1"}, h.plays.touchedIDs())

	next := snapshot("guild-1", session.PhasePlaying, 1)
	next.NowPlaying = &queue.SongRecord{ID: "song-2", Title: "second"}
	h.coord.OnTransition(next)

	waitFor(t, func() bool { return len(h.plays.touchedIDs()) == 2 }, "second track never counted")
	assert.Equal(t, []string{"song-1", "song-2"}, h.plays.touchedIDs())
}

func TestPlayCounterResetsAfterSessionDestroyed(t *testing.T) {
	h := newHarness(t, defaultGate())

	playing := snapshot("guild-1", session.PhasePlaying, 1)
	playing.NowPlaying = &queue.SongRecord{ID: "song-1", Title: "first"}
	h.coord.OnTransition(playing)
	waitFor(t, func() bool { return len(h.plays.touchedIDs()) == 1 }, "play counter never bumped")

	h.coord.OnTransition(session.Snapshot{GuildID: "guild-1", Phase: session.PhaseDestroyed})
	h.coord.OnTransition(playing)

	waitFor(t, func() bool { return len(h.plays.touchedIDs()) == 2 }, "replay after teardown never counted")
}

func TestPlayCounterCountsReplayAfterStop(t *testing.T) {
	h := newHarness(t, defaultGate())

	playing := snapshot("guild-1", session.PhasePlaying, 1)
	playing.NowPlaying = &queue.SongRecord{ID: "song-1", Title: "first"}
	h.coord.OnTransition(playing)
	waitFor(t, func() bool { return len(h.plays.touchedIDs()) == 1 }, "play counter never bumped")

	// Pause and resume keep the filter; going idle drops it.
	h.coord.OnTransition(snapshot("guild-1", session.PhasePaused, 1))
	h.coord.OnTransition(playing)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"song-1"}, h.plays.touchedIDs())

	h.coord.OnTransition(snapshot("guild-1", session.PhaseIdle, 0))
	h.coord.OnTransition(playing)

	waitFor(t, func() bool { return len(h.plays.touchedIDs()) == 2 }, "replay after stop never counted")
}

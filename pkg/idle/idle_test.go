package idle

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSource struct {
	mu      sync.Mutex
	timeout time.Duration
}

func (m *mockSource) IdleTimeout(guildID string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeout
}

func (m *mockSource) set(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = d
}

type mockTeardown struct {
	mu        sync.Mutex
	busy      bool
	destroyed []string
	signal    chan string
}

func newMockTeardown() *mockTeardown {
	return &mockTeardown{signal: make(chan string, 8)}
}

func (m *mockTeardown) PlayerBusy(guildID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy
}

func (m *mockTeardown) DestroyIdleSession(guildID string) {
	m.mu.Lock()
	m.destroyed = append(m.destroyed, guildID)
	m.mu.Unlock()
	m.signal <- guildID
}

func (m *mockTeardown) destroyedGuilds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.destroyed...)
}

func waitForDestroy(t *testing.T, td *mockTeardown) string {
	t.Helper()
	select {
	case guildID := <-td.signal:
		return guildID
	case <-time.After(2 * time.Second):
		t.Fatal("teardown was not called")
		return ""
	}
}

func TestExpiryTearsDownIdleSession(t *testing.T) {
	source := &mockSource{timeout: 30 * time.Millisecond}
	teardown := newMockTeardown()
	s := NewSupervisor(source, teardown)
	defer s.StopAll()

	s.Arm("guild-1")
	assert.True(t, s.Armed("guild-1"))

	assert.Equal(t, "guild-1", waitForDestroy(t, teardown))
	assert.False(t, s.Armed("guild-1"))
}

func TestClearPreventsTeardown(t *testing.T) {
	source := &mockSource{timeout: 50 * time.Millisecond}
	teardown := newMockTeardown()
	s := NewSupervisor(source, teardown)
	defer s.StopAll()

	s.Arm("guild-1")
	s.Clear("guild-1")
	assert.False(t, s.Armed("guild-1"))

	time.Sleep(120 * time.Millisecond)
	assert.Empty(t, teardown.destroyedGuilds())
}

func TestRearmRestartsTheClock(t *testing.T) {
	source := &mockSource{timeout: 80 * time.Millisecond}
	teardown := newMockTeardown()
	s := NewSupervisor(source, teardown)
	defer s.StopAll()

	s.Arm("guild-1")
	time.Sleep(50 * time.Millisecond)
	s.Arm("guild-1")
	time.Sleep(50 * time.Millisecond)

	// 100ms total elapsed but the second Arm reset the 80ms window.
	assert.Empty(t, teardown.destroyedGuilds())
	assert.Equal(t, "guild-1", waitForDestroy(t, teardown))
}

func TestBusyPlayerBlocksTeardown(t *testing.T) {
	source := &mockSource{timeout: 30 * time.Millisecond}
	teardown := newMockTeardown()
	teardown.busy = true
	s := NewSupervisor(source, teardown)
	defer s.StopAll()

	s.Arm("guild-1")
	time.Sleep(100 * time.Millisecond)

	assert.Empty(t, teardown.destroyedGuilds())
	assert.False(t, s.Armed("guild-1"), "fired timer is dropped either way")
}

func TestRaisedTimeoutExtendsPendingTimer(t *testing.T) {
	source := &mockSource{timeout: 40 * time.Millisecond}
	teardown := newMockTeardown()
	s := NewSupervisor(source, teardown)
	defer s.StopAll()

	s.Arm("guild-1")
	// Raise the timeout before the first fire. The fire re-reads it and
	// re-arms for the remainder instead of tearing down.
	source.set(250 * time.Millisecond)

	time.Sleep(120 * time.Millisecond)
	assert.Empty(t, teardown.destroyedGuilds())
	assert.True(t, s.Armed("guild-1"))

	assert.Equal(t, "guild-1", waitForDestroy(t, teardown))
}

func TestStopAllCancelsEverything(t *testing.T) {
	source := &mockSource{timeout: 50 * time.Millisecond}
	teardown := newMockTeardown()
	s := NewSupervisor(source, teardown)

	s.Arm("guild-1")
	s.Arm("guild-2")
	require.Equal(t, 2, s.ActiveCount())

	s.StopAll()
	assert.Zero(t, s.ActiveCount())

	time.Sleep(120 * time.Millisecond)
	assert.Empty(t, teardown.destroyedGuilds())
}

func TestZeroTimeoutFallsBackToDefault(t *testing.T) {
	source := &mockSource{timeout: 0}
	teardown := newMockTeardown()
	s := NewSupervisor(source, teardown)
	defer s.StopAll()

	// A zero timeout would fire immediately; the fallback must keep the
	// timer pending instead.
	s.Arm("guild-1")
	time.Sleep(60 * time.Millisecond)
	assert.True(t, s.Armed("guild-1"))
	assert.Empty(t, teardown.destroyedGuilds())
}

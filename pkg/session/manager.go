package session

import (
	"context"
	"sync"
	"time"

	"github.com/latoulicious/groovebox/pkg/faults"
	"github.com/latoulicious/groovebox/pkg/logging"
)

const destroyWait = 5 * time.Second

// Manager owns the engine registry. It implements the teardown surface the
// idle supervisor calls into.
type Manager struct {
	mu      sync.RWMutex
	engines map[string]*Engine
	deps    Deps
	ctx     context.Context
	logger  logging.Logger
}

// NewManager creates the registry. Engines derive their lifetime from ctx;
// cancelling it shuts every engine down through its persist path.
func NewManager(ctx context.Context, deps Deps) *Manager {
	return &Manager{
		engines: make(map[string]*Engine),
		deps:    deps,
		ctx:     ctx,
		logger:  logging.GetGlobalLoggerFactory().CreateLogger("session"),
	}
}

// Get returns the running engine for a guild, or nil
func (m *Manager) Get(guildID string) *Engine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.engines[guildID]
}

// GetOrCreate returns the guild's engine, creating and starting one on first
// use. A persisted snapshot from a previous run is restored before start.
func (m *Manager) GetOrCreate(guildID string) *Engine {
	m.mu.Lock()
	defer m.mu.Unlock()

	if eng, ok := m.engines[guildID]; ok {
		return eng
	}

	eng := NewEngine(m.ctx, guildID, m.deps)
	if snap, overflow, err := m.deps.Store.LoadSnapshot(guildID); err != nil {
		m.logger.Warn("Failed to load persisted session state", map[string]interface{}{
			"guild_id": guildID,
			"error":    err.Error(),
		})
	} else if snap != nil {
		eng.restore(snap, overflow)
	}
	eng.Start()

	m.engines[guildID] = eng
	m.deps.Metrics.SetActiveSessions(len(m.engines))
	m.logger.Info("Session created", map[string]interface{}{"guild_id": guildID})
	return eng
}

// Snapshot reads a guild's session state without creating a session
func (m *Manager) Snapshot(guildID string) (Snapshot, bool) {
	eng := m.Get(guildID)
	if eng == nil {
		return Snapshot{}, false
	}
	return eng.Snapshot(), true
}

// Submit routes a command to a guild's running engine. Errors with
// SESSION_NOT_FOUND when no session exists, so control commands never
// spawn one as a side effect.
func (m *Manager) Submit(guildID string, cmd Command) error {
	eng := m.Get(guildID)
	if eng == nil {
		return faults.New(faults.CategorySession, faults.CodeSessionNotFound, "no active session for this guild")
	}
	return eng.Submit(cmd)
}

// SubmitOrCreate routes a command to a guild's engine, creating the
// session first if needed. Play commands come through here.
func (m *Manager) SubmitOrCreate(guildID string, cmd Command) error {
	return m.GetOrCreate(guildID).Submit(cmd)
}

// Destroy removes a guild's engine and tears it down. reset also wipes the
// persisted queue state.
func (m *Manager) Destroy(guildID string, reset bool) {
	m.mu.Lock()
	eng := m.engines[guildID]
	delete(m.engines, guildID)
	m.deps.Metrics.SetActiveSessions(len(m.engines))
	m.mu.Unlock()

	if eng == nil {
		return
	}

	kind := CmdExternalDisconnect
	if reset {
		kind = CmdAdminReset
	}
	if err := eng.Submit(Command{Kind: kind}); err != nil {
		eng.cancel()
	}

	select {
	case <-eng.Done():
	case <-time.After(destroyWait):
		eng.cancel()
		<-eng.Done()
	}

	m.deps.Voice.Leave(guildID)
	m.logger.Info("Session removed", map[string]interface{}{
		"guild_id": guildID,
		"reset":    reset,
	})
}

// ActiveCount returns how many engines are running
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.engines)
}

// PlayerBusy reports whether a guild has audio work in flight. The idle
// supervisor calls this before tearing a session down.
func (m *Manager) PlayerBusy(guildID string) bool {
	eng := m.Get(guildID)
	if eng == nil {
		return false
	}
	switch eng.Snapshot().Phase {
	case PhaseQuerying, PhaseLoading, PhasePlaying:
		return true
	default:
		return false
	}
}

// DestroyIdleSession tears down a guild that sat idle past its timeout
func (m *Manager) DestroyIdleSession(guildID string) {
	m.Destroy(guildID, false)
}

// Shutdown stops every engine through its persist path. Called on process
// exit after the signal handler fires.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	engines := make([]*Engine, 0, len(m.engines))
	for _, eng := range m.engines {
		engines = append(engines, eng)
	}
	m.engines = make(map[string]*Engine)
	m.deps.Metrics.SetActiveSessions(0)
	m.mu.Unlock()

	for _, eng := range engines {
		eng.cancel()
	}
	for _, eng := range engines {
		select {
		case <-eng.Done():
		case <-time.After(destroyWait):
		}
	}
	m.logger.Info("All sessions shut down", map[string]interface{}{"count": len(engines)})
}

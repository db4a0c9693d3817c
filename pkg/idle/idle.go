package idle

import (
	"sync"
	"time"

	"github.com/latoulicious/groovebox/pkg/logging"
	"github.com/latoulicious/groovebox/pkg/settings"
)

// rearmSlack is the smallest remainder worth scheduling a new timer for.
const rearmSlack = 50 * time.Millisecond

// TimeoutSource yields the current idle timeout for a guild. It is
// consulted again when a timer fires so live settings changes win over the
// value the timer was armed with.
type TimeoutSource interface {
	IdleTimeout(guildID string) time.Duration
}

// Teardown is what the supervisor calls on expiry. Implemented by the
// session manager; defined here to avoid an import cycle.
type Teardown interface {
	// PlayerBusy reports whether the guild is playing or buffering.
	// A busy guild is never torn down, whatever the timer says.
	PlayerBusy(guildID string) bool

	// DestroyIdleSession disconnects voice and destroys the session.
	DestroyIdleSession(guildID string)
}

// CacheTimeout adapts the guild settings cache to TimeoutSource.
type CacheTimeout struct {
	Cache *settings.Cache
}

// IdleTimeout reads the per-guild voice timeout, falling back to the
// default when the settings row cannot be loaded.
func (c CacheTimeout) IdleTimeout(guildID string) time.Duration {
	row, err := c.Cache.Get(guildID)
	if err != nil {
		return 5 * time.Minute
	}
	return row.VoiceTimeout()
}

type guildTimer struct {
	timer   *time.Timer
	armedAt time.Time
}

// Supervisor owns one disconnect timer per idle guild. Arm when the
// player goes idle with an empty queue; Clear on any activity.
type Supervisor struct {
	source   TimeoutSource
	teardown Teardown
	logger   logging.Logger

	mu     sync.Mutex
	timers map[string]*guildTimer
}

// NewSupervisor creates an idle supervisor.
func NewSupervisor(source TimeoutSource, teardown Teardown) *Supervisor {
	return &Supervisor{
		source:   source,
		teardown: teardown,
		logger:   logging.GetGlobalLoggerFactory().CreateLogger("idle"),
		timers:   make(map[string]*guildTimer),
	}
}

// Arm starts (or restarts) the guild's idle timer using the current
// settings value.
func (s *Supervisor) Arm(guildID string) {
	timeout := s.source.IdleTimeout(guildID)
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.timers[guildID]; ok {
		existing.timer.Stop()
	}

	entry := &guildTimer{armedAt: time.Now()}
	entry.timer = time.AfterFunc(timeout, func() { s.fire(guildID, entry) })
	s.timers[guildID] = entry

	s.logger.Debug("Armed idle timer", map[string]interface{}{
		"guild_id": guildID,
		"timeout":  timeout.String(),
	})
}

// Clear cancels the guild's idle timer. Safe when none is armed.
func (s *Supervisor) Clear(guildID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.timers[guildID]; ok {
		entry.timer.Stop()
		delete(s.timers, guildID)
		s.logger.Debug("Cleared idle timer", map[string]interface{}{
			"guild_id": guildID,
		})
	}
}

// Armed reports whether a timer is currently pending for the guild.
func (s *Supervisor) Armed(guildID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[guildID]
	return ok
}

// ActiveCount reports how many guilds have a pending timer.
func (s *Supervisor) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// StopAll cancels every timer. Part of process shutdown.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for guildID, entry := range s.timers {
		entry.timer.Stop()
		delete(s.timers, guildID)
	}
}

func (s *Supervisor) fire(guildID string, entry *guildTimer) {
	s.mu.Lock()
	if s.timers[guildID] != entry {
		// Re-armed or cleared after this timer was scheduled.
		s.mu.Unlock()
		return
	}

	// Re-read the timeout. A raised setting extends the timer instead
	// of firing it.
	timeout := s.source.IdleTimeout(guildID)
	if remaining := time.Until(entry.armedAt.Add(timeout)); remaining > rearmSlack {
		entry.timer = time.AfterFunc(remaining, func() { s.fire(guildID, entry) })
		s.mu.Unlock()
		s.logger.Debug("Idle timeout extended by settings change", map[string]interface{}{
			"guild_id":  guildID,
			"remaining": remaining.String(),
		})
		return
	}

	delete(s.timers, guildID)
	s.mu.Unlock()

	if s.teardown.PlayerBusy(guildID) {
		// The engine missed a Clear. Leave teardown alone; the next
		// idle transition re-arms.
		s.logger.Warn("Idle timer fired while audio active, skipping teardown", map[string]interface{}{
			"guild_id": guildID,
		})
		return
	}

	s.logger.Info("Idle timeout expired, tearing down session", map[string]interface{}{
		"guild_id": guildID,
	})
	s.teardown.DestroyIdleSession(guildID)
}

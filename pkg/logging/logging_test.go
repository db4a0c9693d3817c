package logging_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latoulicious/groovebox/pkg/logging"
)

// mockLogRepository records saved entries for assertions
type mockLogRepository struct {
	mu      sync.Mutex
	entries []logging.LogEntry
	saveErr error
}

func (m *mockLogRepository) SaveLog(entry logging.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.saveErr
}

func (m *mockLogRepository) saved() []logging.LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]logging.LogEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

func waitForEntries(t *testing.T, repo *mockLogRepository, want int) []logging.LogEntry {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if entries := repo.saved(); len(entries) >= want {
			return entries
		}
		time.Sleep(5 * time.Millisecond)
	}
	entries := repo.saved()
	require.Len(t, entries, want)
	return entries
}

func TestDatabaseLoggerPersistsWarnAndError(t *testing.T) {
	repo := &mockLogRepository{}
	logger := logging.NewDatabaseLogger(logging.NewZapLogger("test"), "test", repo)

	logger.Debug("debug stays local", nil)
	logger.Info("info stays local", nil)
	logger.Warn("disk almost full", map[string]interface{}{"guild_id": "g1"})
	logger.Error("decode failed", errors.New("exit status 1"), map[string]interface{}{
		"guild_id": "g1",
		"user_id":  "u1",
	})

	entries := waitForEntries(t, repo, 2)

	levels := map[string]logging.LogEntry{}
	for _, e := range entries {
		levels[e.Level] = e
	}

	warn, ok := levels["WARN"]
	require.True(t, ok)
	assert.Equal(t, "disk almost full", warn.Message)
	assert.Equal(t, "g1", warn.GuildID)

	errEntry, ok := levels["ERROR"]
	require.True(t, ok)
	assert.Equal(t, "exit status 1", errEntry.Error)
	assert.Equal(t, "u1", errEntry.UserID)
	assert.Equal(t, "test", errEntry.Component)
}

func TestDatabaseLoggerContextFlowsIntoEntries(t *testing.T) {
	repo := &mockLogRepository{}
	base := logging.NewDatabaseLogger(logging.NewZapLogger("session"), "session", repo)

	scoped := base.WithContext(map[string]interface{}{"guild_id": "g42"})
	scoped.Warn("idle timeout armed", nil)

	entries := waitForEntries(t, repo, 1)
	assert.Equal(t, "g42", entries[0].GuildID)
}

func TestFactoryCachesLoggersPerComponent(t *testing.T) {
	factory := logging.NewLoggerFactory()

	first := factory.CreateLogger("runner")
	second := factory.CreateLogger("runner")
	other := factory.CreateLogger("resolver")

	assert.Same(t, first, second)
	assert.NotSame(t, first, other)
}

func TestDatabaseFactoryProducesPersistingLoggers(t *testing.T) {
	repo := &mockLogRepository{}
	factory := logging.NewDatabaseLoggerFactory(repo)

	logger := factory.CreateCommandLogger("play")
	logger.Warn("rate limited", map[string]interface{}{"guild_id": "g1", "user_id": "u9"})

	entries := waitForEntries(t, repo, 1)
	assert.Equal(t, "g1", entries[0].GuildID)
	assert.Equal(t, "u9", entries[0].UserID)
}

func TestSessionLoggerAddsGuildContext(t *testing.T) {
	repo := &mockLogRepository{}
	factory := logging.NewDatabaseLoggerFactory(repo)

	logger := factory.CreateSessionLogger("g7")
	logger.Warn("voice reconnect", nil)

	entries := waitForEntries(t, repo, 1)
	assert.Equal(t, "g7", entries[0].GuildID)
}

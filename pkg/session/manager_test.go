package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latoulicious/groovebox/pkg/queue"
	"github.com/latoulicious/groovebox/pkg/session"
)

func newManager(t *testing.T, h *harness) *session.Manager {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return session.NewManager(ctx, h.deps)
}

func TestManagerCreatesOncePerGuild(t *testing.T) {
	h := newHarness()
	mgr := newManager(t, h)

	eng := mgr.GetOrCreate("guild-1")
	require.NotNil(t, eng)
	assert.Same(t, eng, mgr.GetOrCreate("guild-1"))
	assert.Equal(t, 1, mgr.ActiveCount())
	assert.NotSame(t, eng, mgr.GetOrCreate("guild-2"))
	assert.Equal(t, 2, mgr.ActiveCount())
}

func TestManagerRestoresPersistedState(t *testing.T) {
	h := newHarness()
	a := song("aaa", "Track A")
	h.store.snaps["guild-1"] = &queue.Snapshot{
		Queue:     []queue.SongRecord{a},
		History:   []queue.SongRecord{song("old", "Old Track")},
		VolumePct: 40,
		Muted:     true,
	}
	mgr := newManager(t, h)

	eng := mgr.GetOrCreate("guild-1")
	snap := eng.Snapshot()
	assert.Equal(t, 40, snap.VolumePct)
	assert.True(t, snap.Muted)
	assert.Equal(t, 1, snap.TotalTracks)
	require.Len(t, snap.History, 1)
	assert.Equal(t, "Old Track", snap.History[0].Title)
}

func TestManagerRestoreReplaysInterruptedTrack(t *testing.T) {
	h := newHarness()
	interrupted := song("aaa", "Track A")
	h.store.snaps["guild-1"] = &queue.Snapshot{
		NowPlaying: &interrupted,
		Queue:      []queue.SongRecord{song("bbb", "Track B")},
		VolumePct:  session.DefaultVolumePct,
	}
	mgr := newManager(t, h)

	eng := mgr.GetOrCreate("guild-1")
	snap := eng.Snapshot()
	assert.Equal(t, 2, snap.TotalTracks)
	require.NotEmpty(t, snap.Queue)
	assert.Equal(t, "Track A", snap.Queue[0].Title)
}

func TestManagerDestroyTearsDownAndLeavesVoice(t *testing.T) {
	h := newHarness()
	mgr := newManager(t, h)

	eng := mgr.GetOrCreate("guild-1")
	submitWait(t, eng, playSongs(song("aaa", "Track A")))
	waitFor(t, func() bool { return h.starter.count() == 1 }, "track never started")

	mgr.Destroy("guild-1", false)

	assert.Nil(t, mgr.Get("guild-1"))
	assert.Equal(t, 0, mgr.ActiveCount())
	assert.Equal(t, 1, h.voice.leaveCount())

	select {
	case <-eng.Done():
	case <-time.After(time.Second):
		t.Fatal("engine still running after destroy")
	}

	// destroyed engines refuse new work
	err := eng.Submit(session.Command{Kind: session.CmdStop})
	require.Error(t, err)
}

func TestManagerResetWipesPersistedState(t *testing.T) {
	h := newHarness()
	h.store.snaps["guild-1"] = &queue.Snapshot{
		Queue:     []queue.SongRecord{song("aaa", "Track A")},
		VolumePct: 70,
	}
	mgr := newManager(t, h)

	eng := mgr.GetOrCreate("guild-1")
	submitWait(t, eng, playSongs(song("bbb", "Track B")))
	waitFor(t, func() bool { return h.starter.count() == 1 }, "track never started")

	mgr.Destroy("guild-1", true)

	assert.Nil(t, h.store.savedSnap("guild-1"))
}

func TestManagerPlayerBusy(t *testing.T) {
	h := newHarness()
	mgr := newManager(t, h)

	assert.False(t, mgr.PlayerBusy("guild-1"))

	eng := mgr.GetOrCreate("guild-1")
	assert.False(t, mgr.PlayerBusy("guild-1"))

	submitWait(t, eng, playSongs(song("aaa", "Track A")))
	waitFor(t, func() bool { return h.starter.count() == 1 }, "track never started")
	assert.True(t, mgr.PlayerBusy("guild-1"))

	submitWait(t, eng, session.Command{Kind: session.CmdStop})
	assert.False(t, mgr.PlayerBusy("guild-1"))
}

func TestManagerShutdownPersistsEverySession(t *testing.T) {
	h := newHarness()
	mgr := newManager(t, h)

	for _, guildID := range []string{"guild-1", "guild-2"} {
		eng := mgr.GetOrCreate(guildID)
		submitWait(t, eng, playSongs(song("aaa-"+guildID, "Track "+guildID)))
	}
	waitFor(t, func() bool { return h.starter.count() == 2 }, "tracks never started")

	mgr.Shutdown()

	assert.Equal(t, 0, mgr.ActiveCount())
	assert.NotNil(t, h.store.savedSnap("guild-1"))
	assert.NotNil(t, h.store.savedSnap("guild-2"))
}

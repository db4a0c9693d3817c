package preload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latoulicious/groovebox/pkg/metrics"
	"github.com/latoulicious/groovebox/pkg/queue"
)

type mockDecoder struct {
	mu      sync.Mutex
	calls   int
	removed []string
	err     error

	// When block is non-nil, Decode waits for it to close or for the
	// context to cancel. started receives one signal per Decode entry.
	block   chan struct{}
	started chan struct{}
}

func (d *mockDecoder) Decode(ctx context.Context, guildID, streamKey string, volumePct int, timeout time.Duration) (string, error) {
	d.mu.Lock()
	d.calls++
	n := d.calls
	block := d.block
	err := d.err
	d.mu.Unlock()

	if d.started != nil {
		select {
		case d.started <- struct{}{}:
		default:
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("/tmp/groovebox-%s-%d.pcm", guildID, n), nil
}

func (d *mockDecoder) RemoveArtifact(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removed = append(d.removed, path)
	return nil
}

func (d *mockDecoder) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *mockDecoder) removedPaths() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.removed...)
}

func testSong(key string) queue.SongRecord {
	return queue.SongRecord{
		ID:        queue.HashQuery(key),
		Title:     "Test Track",
		Source:    queue.SourceYouTubeTrack,
		StreamKey: key,
	}
}

func TestBeginDecodesHead(t *testing.T) {
	decoder := &mockDecoder{}
	collector := metrics.NewBasicCollector()
	p := New(decoder, collector)
	defer p.Shutdown()

	song := testSong("https://www.youtube.com/watch?v=abc123def45")
	p.Begin("guild-1", song, 80, false)

	artifact, ok := p.Await(context.Background(), "guild-1", song.StreamKey, 80)
	require.True(t, ok)
	assert.NotEmpty(t, artifact)
	assert.Equal(t, 1, decoder.callCount())

	info := p.State("guild-1", song.StreamKey)
	assert.Equal(t, queue.PreloadReady, info.State)
	assert.Equal(t, artifact, info.ArtifactPath)
	assert.Equal(t, 80, info.VolumeAppliedPct)

	snap := collector.Snapshot()
	assert.Equal(t, int64(1), snap.PreloadHits)
}

func TestBeginIsIdempotentWhileInProgress(t *testing.T) {
	decoder := &mockDecoder{
		block:   make(chan struct{}),
		started: make(chan struct{}, 8),
	}
	p := New(decoder, metrics.NewBasicCollector())
	defer p.Shutdown()

	song := testSong("https://www.youtube.com/watch?v=abc123def45")
	p.Begin("guild-1", song, 80, false)
	<-decoder.started

	p.Begin("guild-1", song, 80, false)
	p.Begin("guild-1", song, 80, false)

	close(decoder.block)
	_, ok := p.Await(context.Background(), "guild-1", song.StreamKey, 80)
	require.True(t, ok)
	assert.Equal(t, 1, decoder.callCount())
}

func TestReadyArtifactIsNotOverwritten(t *testing.T) {
	decoder := &mockDecoder{}
	p := New(decoder, metrics.NewBasicCollector())
	defer p.Shutdown()

	song := testSong("https://www.youtube.com/watch?v=abc123def45")
	p.Begin("guild-1", song, 80, false)
	first, ok := p.Await(context.Background(), "guild-1", song.StreamKey, 80)
	require.True(t, ok)

	p.Begin("guild-1", song, 80, false)
	second, ok := p.Get("guild-1", song.StreamKey, 80)
	require.True(t, ok)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, decoder.callCount())
}

func TestVolumeChangeInvalidatesReadyArtifact(t *testing.T) {
	decoder := &mockDecoder{}
	p := New(decoder, metrics.NewBasicCollector())
	defer p.Shutdown()

	song := testSong("https://www.youtube.com/watch?v=abc123def45")
	p.Begin("guild-1", song, 80, false)
	first, ok := p.Await(context.Background(), "guild-1", song.StreamKey, 80)
	require.True(t, ok)

	p.Begin("guild-1", song, 100, false)
	second, ok := p.Await(context.Background(), "guild-1", song.StreamKey, 100)
	require.True(t, ok)

	assert.NotEqual(t, first, second)
	assert.Equal(t, 2, decoder.callCount())
	assert.Contains(t, decoder.removedPaths(), first)
}

func TestGetWithStaleVolumeIsMiss(t *testing.T) {
	decoder := &mockDecoder{}
	collector := metrics.NewBasicCollector()
	p := New(decoder, collector)
	defer p.Shutdown()

	song := testSong("https://www.youtube.com/watch?v=abc123def45")
	p.Begin("guild-1", song, 80, false)
	artifact, ok := p.Await(context.Background(), "guild-1", song.StreamKey, 80)
	require.True(t, ok)

	_, ok = p.Get("guild-1", song.StreamKey, 50)
	assert.False(t, ok)
	assert.Contains(t, decoder.removedPaths(), artifact)
	assert.Equal(t, queue.PreloadNotStarted, p.State("guild-1", song.StreamKey).State)

	snap := collector.Snapshot()
	assert.Equal(t, int64(1), snap.PreloadMisses)
}

func TestShuffleSkipsPreload(t *testing.T) {
	decoder := &mockDecoder{}
	p := New(decoder, metrics.NewBasicCollector())
	defer p.Shutdown()

	song := testSong("https://www.youtube.com/watch?v=abc123def45")
	p.Begin("guild-1", song, 80, true)

	assert.Equal(t, 0, decoder.callCount())
	assert.Equal(t, queue.PreloadNotStarted, p.State("guild-1", song.StreamKey).State)
}

func TestNewHeadSupersedesOldTask(t *testing.T) {
	decoder := &mockDecoder{
		block:   make(chan struct{}),
		started: make(chan struct{}, 8),
	}
	p := New(decoder, metrics.NewBasicCollector())
	defer p.Shutdown()

	oldHead := testSong("https://www.youtube.com/watch?v=old12345678")
	newHead := testSong("https://www.youtube.com/watch?v=new12345678")

	p.Begin("guild-1", oldHead, 80, false)
	<-decoder.started

	p.Begin("guild-1", newHead, 80, false)
	<-decoder.started
	close(decoder.block)

	artifact, ok := p.Await(context.Background(), "guild-1", newHead.StreamKey, 80)
	require.True(t, ok)
	assert.NotEmpty(t, artifact)
	assert.Equal(t, 2, decoder.callCount())

	_, ok = p.Get("guild-1", oldHead.StreamKey, 80)
	assert.False(t, ok)
}

func TestFailedDecodeLeavesLazyPath(t *testing.T) {
	decoder := &mockDecoder{err: errors.New("yt-dlp exited with status 1")}
	p := New(decoder, metrics.NewBasicCollector())
	defer p.Shutdown()

	song := testSong("https://www.youtube.com/watch?v=abc123def45")
	p.Begin("guild-1", song, 80, false)

	_, ok := p.Await(context.Background(), "guild-1", song.StreamKey, 80)
	assert.False(t, ok)
	assert.Equal(t, queue.PreloadFailed, p.State("guild-1", song.StreamKey).State)

	// A failed head is not retried by the preloader. Play time decodes
	// it lazily instead.
	p.Begin("guild-1", song, 80, false)
	assert.Equal(t, 1, decoder.callCount())
}

func TestReleaseDeletesArtifact(t *testing.T) {
	decoder := &mockDecoder{}
	p := New(decoder, metrics.NewBasicCollector())
	defer p.Shutdown()

	song := testSong("https://www.youtube.com/watch?v=abc123def45")
	p.Begin("guild-1", song, 80, false)
	artifact, ok := p.Await(context.Background(), "guild-1", song.StreamKey, 80)
	require.True(t, ok)

	p.Release("guild-1", song.StreamKey)
	assert.Contains(t, decoder.removedPaths(), artifact)
	assert.Equal(t, 0, p.ActiveGuilds())

	// Releasing an unknown song is harmless.
	p.Release("guild-1", "https://www.youtube.com/watch?v=other123456")
}

func TestCancelGuildAbortsInProgressTask(t *testing.T) {
	decoder := &mockDecoder{
		block:   make(chan struct{}),
		started: make(chan struct{}, 8),
	}
	p := New(decoder, metrics.NewBasicCollector())
	defer p.Shutdown()

	song := testSong("https://www.youtube.com/watch?v=abc123def45")
	p.Begin("guild-1", song, 80, false)
	<-decoder.started

	p.CancelGuild("guild-1")
	assert.Equal(t, 0, p.ActiveGuilds())

	_, ok := p.Await(context.Background(), "guild-1", song.StreamKey, 80)
	assert.False(t, ok)
}

func TestAwaitRespectsContext(t *testing.T) {
	decoder := &mockDecoder{
		block:   make(chan struct{}),
		started: make(chan struct{}, 8),
	}
	p := New(decoder, metrics.NewBasicCollector())
	defer p.Shutdown()
	defer close(decoder.block)

	song := testSong("https://www.youtube.com/watch?v=abc123def45")
	p.Begin("guild-1", song, 80, false)
	<-decoder.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ok := p.Await(ctx, "guild-1", song.StreamKey, 80)
	assert.False(t, ok)
}

func TestShutdownDeletesReadyArtifacts(t *testing.T) {
	decoder := &mockDecoder{}
	p := New(decoder, metrics.NewBasicCollector())

	first := testSong("https://www.youtube.com/watch?v=abc123def45")
	second := testSong("https://www.youtube.com/watch?v=other123456")
	p.Begin("guild-1", first, 80, false)
	p.Begin("guild-2", second, 80, false)

	a1, ok := p.Await(context.Background(), "guild-1", first.StreamKey, 80)
	require.True(t, ok)
	a2, ok := p.Await(context.Background(), "guild-2", second.StreamKey, 80)
	require.True(t, ok)

	p.Shutdown()
	assert.Equal(t, 0, p.ActiveGuilds())
	assert.Contains(t, decoder.removedPaths(), a1)
	assert.Contains(t, decoder.removedPaths(), a2)
}

func TestShutdownUnblocksInProgressDecode(t *testing.T) {
	decoder := &mockDecoder{
		block:   make(chan struct{}),
		started: make(chan struct{}, 8),
	}
	p := New(decoder, metrics.NewBasicCollector())

	song := testSong("https://www.youtube.com/watch?v=abc123def45")
	p.Begin("guild-1", song, 80, false)
	<-decoder.started

	// Shutdown cancels the decode context; a hang here would fail the
	// test by timeout.
	p.Shutdown()
	assert.Equal(t, 0, p.ActiveGuilds())
}

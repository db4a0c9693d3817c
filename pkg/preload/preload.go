package preload

import (
	"context"
	"errors"
	"sync"

	"github.com/latoulicious/groovebox/pkg/logging"
	"github.com/latoulicious/groovebox/pkg/metrics"
	"github.com/latoulicious/groovebox/pkg/queue"
)

// task is the per-guild decode-ahead state. At most one exists per guild
// and it always refers to the current head of that guild's queue.
type task struct {
	streamKey string
	title     string
	state     queue.PreloadState
	artifact  string
	volumePct int
	cancel    context.CancelFunc
	done      chan struct{}
}

// Preloader decodes the head of each guild's queue ahead of playback so
// track changes do not wait on yt-dlp. Artifacts are temp files owned by
// the preloader until Release or Shutdown deletes them.
type Preloader struct {
	decoder Decoder
	metrics metrics.Collector
	logger  logging.Logger

	rootCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu    sync.Mutex
	tasks map[string]*task
}

// New creates a preloader on top of the given decoder.
func New(decoder Decoder, collector metrics.Collector) *Preloader {
	ctx, cancel := context.WithCancel(context.Background())
	return &Preloader{
		decoder: decoder,
		metrics: collector,
		logger:  logging.GetGlobalLoggerFactory().CreateLogger("preload"),
		rootCtx: ctx,
		stop:    cancel,
		tasks:   make(map[string]*task),
	}
}

// Begin starts decoding the head-of-queue song for a guild. It is a no-op
// when the same song is already being decoded, when a ready artifact at the
// current volume exists, or when the queue was just shuffled (the head is
// about to change). A ready artifact decoded at a different volume is
// discarded and re-decoded.
func (p *Preloader) Begin(guildID string, song queue.SongRecord, volumePct int, justShuffled bool) {
	if song.StreamKey == "" {
		return
	}
	if justShuffled {
		p.logger.Debug("Skipping preload after shuffle", map[string]interface{}{
			"guild_id": guildID,
			"title":    song.Title,
		})
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.tasks[guildID]; ok {
		if existing.streamKey == song.StreamKey {
			switch existing.state {
			case queue.PreloadInProgress:
				return
			case queue.PreloadReady:
				if existing.volumePct == volumePct {
					return
				}
				p.logger.Debug("Invalidating preload after volume change", map[string]interface{}{
					"guild_id":    guildID,
					"title":       song.Title,
					"decoded_pct": existing.volumePct,
					"current_pct": volumePct,
				})
				p.discardLocked(guildID, existing)
			case queue.PreloadFailed:
				// Leave it to the lazy decode at play time.
				return
			}
		} else {
			// The head changed underneath the old task.
			p.discardLocked(guildID, existing)
		}
	}

	ctx, cancel := context.WithCancel(p.rootCtx)
	t := &task{
		streamKey: song.StreamKey,
		title:     song.Title,
		state:     queue.PreloadInProgress,
		volumePct: volumePct,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	p.tasks[guildID] = t

	p.wg.Add(1)
	go p.run(ctx, guildID, t)
}

func (p *Preloader) run(ctx context.Context, guildID string, t *task) {
	defer p.wg.Done()
	defer close(t.done)

	artifact, err := p.decoder.Decode(ctx, guildID, t.streamKey, t.volumePct, 0)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.tasks[guildID] != t {
		// Superseded or discarded while decoding. The decoder already
		// cleaned up on failure; drop a stray success.
		if err == nil && artifact != "" {
			p.removeArtifact(artifact)
		}
		return
	}

	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			// Canceled, not failed. Do not poison the entry.
			delete(p.tasks, guildID)
			return
		}
		t.state = queue.PreloadFailed
		p.logger.Warn("Preload decode failed", map[string]interface{}{
			"guild_id": guildID,
			"title":    t.title,
			"error":    err.Error(),
		})
		return
	}

	t.state = queue.PreloadReady
	t.artifact = artifact
	p.logger.Debug("Preload ready", map[string]interface{}{
		"guild_id": guildID,
		"title":    t.title,
		"artifact": artifact,
	})
}

// Get returns the ready artifact for a guild's head song, or false when no
// usable artifact exists. A ready artifact decoded at a different volume is
// discarded and reported as a miss.
func (p *Preloader) Get(guildID, streamKey string, volumePct int) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getLocked(guildID, streamKey, volumePct)
}

func (p *Preloader) getLocked(guildID, streamKey string, volumePct int) (string, bool) {
	t, ok := p.tasks[guildID]
	if !ok || t.streamKey != streamKey || t.state != queue.PreloadReady {
		p.metrics.RecordPreloadMiss()
		return "", false
	}
	if t.volumePct != volumePct {
		p.discardLocked(guildID, t)
		p.metrics.RecordPreloadMiss()
		return "", false
	}
	p.metrics.RecordPreloadHit()
	return t.artifact, true
}

// Await blocks until an in-progress preload for the song settles, then
// behaves like Get. It returns immediately when no matching task exists.
func (p *Preloader) Await(ctx context.Context, guildID, streamKey string, volumePct int) (string, bool) {
	p.mu.Lock()
	t, ok := p.tasks[guildID]
	if !ok || t.streamKey != streamKey {
		defer p.mu.Unlock()
		p.metrics.RecordPreloadMiss()
		return "", false
	}
	done := t.done
	p.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		p.metrics.RecordPreloadMiss()
		return "", false
	}

	return p.Get(guildID, streamKey, volumePct)
}

// State reports the current preload state for a guild's head song. Used by
// the session engine to mirror progress onto the queued record.
func (p *Preloader) State(guildID, streamKey string) queue.PreloadInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.tasks[guildID]
	if !ok || t.streamKey != streamKey {
		return queue.PreloadInfo{State: queue.PreloadNotStarted}
	}
	return queue.PreloadInfo{
		State:            t.state,
		ArtifactPath:     t.artifact,
		VolumeAppliedPct: t.volumePct,
	}
}

// Release deletes the artifact for a song after the engine reports that
// playback finished and the file handle is closed.
func (p *Preloader) Release(guildID, streamKey string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.tasks[guildID]
	if !ok || t.streamKey != streamKey {
		return
	}
	p.discardLocked(guildID, t)
}

// CancelGuild aborts any active preload for a guild and deletes its
// artifact. Called on shuffle, disconnect, and session teardown.
func (p *Preloader) CancelGuild(guildID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.tasks[guildID]; ok {
		p.discardLocked(guildID, t)
	}
}

// ActiveGuilds reports how many guilds currently have preload state.
func (p *Preloader) ActiveGuilds() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

// Shutdown cancels all tasks, waits for their goroutines, and deletes any
// remaining artifacts.
func (p *Preloader) Shutdown() {
	p.stop()
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	for guildID, t := range p.tasks {
		p.discardLocked(guildID, t)
	}
}

// discardLocked cancels the task, deletes its artifact if one exists, and
// removes the guild entry. Caller holds p.mu.
func (p *Preloader) discardLocked(guildID string, t *task) {
	t.cancel()
	if t.artifact != "" {
		p.removeArtifact(t.artifact)
	}
	delete(p.tasks, guildID)
}

func (p *Preloader) removeArtifact(path string) {
	if err := p.decoder.RemoveArtifact(path); err != nil {
		p.logger.Warn("Failed to remove preload artifact", map[string]interface{}{
			"artifact": path,
			"error":    err.Error(),
		})
	}
}

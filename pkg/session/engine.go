package session

import (
	"context"
	"sync"
	"time"

	"github.com/latoulicious/groovebox/pkg/config"
	"github.com/latoulicious/groovebox/pkg/database/models"
	"github.com/latoulicious/groovebox/pkg/faults"
	"github.com/latoulicious/groovebox/pkg/logging"
	"github.com/latoulicious/groovebox/pkg/metrics"
	"github.com/latoulicious/groovebox/pkg/player"
	"github.com/latoulicious/groovebox/pkg/queue"
	"github.com/latoulicious/groovebox/pkg/resolver"
)

const (
	// DefaultVolumePct is the volume a fresh session starts at
	DefaultVolumePct = 100
	// VolumeStep is the increment used by the volume up/down commands
	VolumeStep = 10
	// DefaultHistoryCap bounds the newest-first play history
	DefaultHistoryCap = 10

	inboxCap         = 16
	stashCap         = 8
	voiceJoinTimeout = 15 * time.Second
)

// Deps carries everything an engine needs. All fields except Listener and
// Settings are required.
type Deps struct {
	Resolver resolver.Service
	Preload  Preloader
	Decoder  Decoder
	Voice    Voice
	Starter  Starter
	Store    queue.Store
	Settings Settings
	Metrics  metrics.Collector
	Listener Listener
	Audio    config.AudioConfig
	Session  config.SessionConfig
}

// Engine owns all mutable state for one guild's playback session. Every
// mutation happens on the run goroutine; other goroutines talk to it through
// Submit and read it through Snapshot.
type Engine struct {
	guildID string
	deps    Deps
	queue   *queue.Queue
	logger  logging.Logger

	inbox  chan Command
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// run-goroutine state
	phase          Phase
	nowPlaying     *queue.SongRecord
	history        []queue.SongRecord
	playlist       *queue.PlaylistContext
	volumePct      int
	muted          bool
	voiceChannelID string
	textChannelID  string
	searchQuery    string
	lastErr        error
	justShuffled   bool
	playback       Playback
	doneCh         <-chan player.Result
	artifact       string
	artifactKey    string
	artifactOwned  bool
	deferred       []Command

	// snapshot mirror for concurrent readers
	mu   sync.RWMutex
	snap Snapshot
	pb   Playback
}

// NewEngine builds an engine for a guild. Start launches its run loop.
func NewEngine(ctx context.Context, guildID string, deps Deps) *Engine {
	ectx, cancel := context.WithCancel(ctx)
	e := &Engine{
		guildID: guildID,
		deps:    deps,
		queue: queue.NewQueue(guildID, queue.Config{
			Cap:         deps.Session.QueueCap,
			RefillBatch: deps.Session.RefillBatch,
		}, deps.Store),
		logger: logging.GetGlobalLoggerFactory().CreateLogger("session").WithContext(map[string]interface{}{
			"guild_id": guildID,
		}),
		inbox:     make(chan Command, inboxCap),
		ctx:       ectx,
		cancel:    cancel,
		done:      make(chan struct{}),
		phase:     PhaseIdle,
		volumePct: DefaultVolumePct,
	}
	e.snap = Snapshot{GuildID: guildID, Phase: PhaseIdle, VolumePct: e.volumePct, UpdatedAt: time.Now()}
	return e
}

// Start launches the run loop. Call exactly once.
func (e *Engine) Start() {
	go e.run()
}

// Submit hands a command to the engine without blocking. It fails when the
// session is gone or the inbox is saturated.
func (e *Engine) Submit(cmd Command) error {
	select {
	case <-e.done:
		return faults.New(faults.CategorySession, faults.CodeSessionNotFound, "session is destroyed")
	default:
	}
	select {
	case e.inbox <- cmd:
		return nil
	case <-e.done:
		return faults.New(faults.CategorySession, faults.CodeSessionNotFound, "session is destroyed")
	default:
		return faults.New(faults.CategorySystem, faults.CodeSystemRateLimited, "session command inbox is full")
	}
}

// Snapshot returns a consistent copy of session state. Elapsed is read live
// from the running stream, everything else is as of the last transition.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	snap := e.snap
	pb := e.pb
	e.mu.RUnlock()

	if pb != nil {
		snap.Elapsed = pb.Elapsed()
	}
	return snap
}

// Done is closed when the run loop has exited
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// GuildID returns the guild this engine serves
func (e *Engine) GuildID() string {
	return e.guildID
}

func (e *Engine) run() {
	defer close(e.done)

	for {
		select {
		case cmd := <-e.inbox:
			e.handle(cmd)
		case res := <-e.doneCh:
			e.onPlaybackEnd(res, true)
		case <-e.ctx.Done():
			e.shutdown()
			return
		}
		if e.phase == PhaseDestroyed {
			return
		}
	}
}

func (e *Engine) handle(cmd Command) {
	e.logger.Debug("Handling command", map[string]interface{}{"command": cmd.Kind.String()})

	switch cmd.Kind {
	case CmdPlay:
		e.handlePlay(cmd)
	case CmdSkip:
		e.handleSkip(cmd)
	case CmdStop:
		e.handleStop(cmd)
	case CmdPause:
		e.handlePause(cmd)
	case CmdResume:
		e.handleResume(cmd)
	case CmdShuffle:
		e.handleShuffle(cmd)
	case CmdSetVolume:
		e.handleSetVolume(cmd)
	case CmdSetMuted:
		e.handleSetMuted(cmd)
	case CmdAdvanceDueToEnd:
		if e.playback == nil {
			e.startNext()
		}
	case CmdExternalDisconnect:
		e.destroy(false)
		reply(cmd, Outcome{})
	case CmdAdminReset:
		e.destroy(true)
		reply(cmd, Outcome{})
	}
}

func (e *Engine) handlePlay(cmd Command) {
	if cmd.VoiceChannelID != "" {
		e.voiceChannelID = cmd.VoiceChannelID
	}
	if cmd.TextChannelID != "" {
		e.textChannelID = cmd.TextChannelID
	}

	records := cmd.Songs
	var report *resolver.Report
	if len(records) == 0 {
		intent, err := resolver.ParseIntent(cmd.Query)
		if err != nil {
			e.lastErr = err
			reply(cmd, Outcome{Err: err})
			e.publish()
			return
		}

		if e.phase == PhaseIdle {
			e.phase = PhaseQuerying
			e.searchQuery = cmd.Query
			e.lastErr = nil
			e.publish()
		}

		records, report, err = e.resolveInterruptible(intent, cmd.Requester)
		if err != nil {
			e.failResolution(cmd, err)
			return
		}
	}

	added, duplicates, err := e.queue.Enqueue(records)
	if pending := e.queue.DrainPending(); len(pending) > 0 {
		pAdded, pDups, pErr := e.queue.Enqueue(pending)
		added += pAdded
		duplicates += pDups
		if err == nil {
			err = pErr
		}
	}
	if report.HasPlaylist() {
		e.playlist = &queue.PlaylistContext{
			Title:       report.PlaylistTitle,
			SourceURL:   report.PlaylistURL,
			TotalTracks: report.TotalTracks,
		}
	}

	out := Outcome{Err: err, Added: added, Duplicates: duplicates, Report: report}
	if report != nil {
		out.OverLimit = report.OverLimit
	}
	reply(cmd, out)

	if e.playback == nil {
		e.startNext()
	} else {
		e.beginHeadPreload()
		e.publish()
	}
	e.replayDeferred()
}

type resolveOutcome struct {
	records []queue.SongRecord
	report  *resolver.Report
	err     error
}

// resolveInterruptible awaits the resolver while still servicing the inbox.
// Pre-resolved plays are staged into pending, everything else is deferred
// until the resolution settles, so the currently resolving head never moves.
func (e *Engine) resolveInterruptible(intent *resolver.PlayIntent, requester queue.Requester) ([]queue.SongRecord, *resolver.Report, error) {
	rctx, cancel := context.WithCancel(e.ctx)
	defer cancel()

	ch := make(chan resolveOutcome, 1)
	maxDur := e.maxDurationSec()
	go func() {
		records, report, err := e.deps.Resolver.Resolve(rctx, intent, e.guildID, requester, maxDur)
		ch <- resolveOutcome{records, report, err}
	}()

	for {
		select {
		case out := <-ch:
			return out.records, out.report, out.err
		case cmd := <-e.inbox:
			e.stash(cmd)
		case res := <-e.doneCh:
			// track ended mid-resolution; advance once the resolver returns
			e.onPlaybackEnd(res, false)
			e.deferred = append(e.deferred, Command{Kind: CmdAdvanceDueToEnd})
		case <-e.ctx.Done():
			return nil, nil, faults.Wrap(faults.CategorySession, faults.CodeSessionNotFound,
				"session shut down during resolution", e.ctx.Err())
		}
	}
}

func (e *Engine) stash(cmd Command) {
	if cmd.Kind == CmdPlay && len(cmd.Songs) > 0 {
		e.queue.PushPending(cmd.Songs...)
		reply(cmd, Outcome{Added: len(cmd.Songs)})
		return
	}
	if len(e.deferred) >= stashCap {
		reply(cmd, Outcome{Err: faults.New(faults.CategorySystem, faults.CodeSystemRateLimited,
			"session is busy, try again shortly")})
		return
	}
	e.deferred = append(e.deferred, cmd)
}

func (e *Engine) replayDeferred() {
	for len(e.deferred) > 0 {
		cmd := e.deferred[0]
		e.deferred = e.deferred[1:]
		e.handle(cmd)
		if e.phase == PhaseDestroyed {
			return
		}
	}
}

func (e *Engine) failResolution(cmd Command, err error) {
	e.logger.Error("Resolution failed", err, map[string]interface{}{"query": cmd.Query})
	e.deps.Metrics.RecordError(faults.CodeOf(err))
	e.lastErr = err
	e.searchQuery = ""
	reply(cmd, Outcome{Err: err})

	if e.phase == PhaseQuerying {
		if e.queue.IsEmpty() {
			e.phase = PhaseIdle
			e.publish()
		} else {
			e.startNext()
		}
	} else {
		e.publish()
	}
	e.replayDeferred()
}

func (e *Engine) handleSkip(cmd Command) {
	if e.playback == nil && e.queue.IsEmpty() {
		reply(cmd, Outcome{Err: faults.New(faults.CategoryQueue, faults.CodeQueueEmpty, "nothing to skip")})
		return
	}
	var skipped *queue.SongRecord
	if e.nowPlaying != nil {
		rec := *e.nowPlaying
		skipped = &rec
	}
	e.stopCurrent()
	reply(cmd, Outcome{NowPlaying: skipped})
	e.startNext()
}

func (e *Engine) handleStop(cmd Command) {
	e.stopCurrent()
	e.deps.Preload.CancelGuild(e.guildID)
	if err := e.queue.Clear(); err != nil {
		e.logger.Warn("Queue clear failed during stop", map[string]interface{}{"error": err.Error()})
	}
	e.playlist = nil
	e.justShuffled = false
	e.lastErr = nil
	e.becomeIdle()
	reply(cmd, Outcome{})
}

func (e *Engine) handlePause(cmd Command) {
	switch e.phase {
	case PhasePlaying:
		e.playback.Pause()
		e.phase = PhasePaused
		e.publish()
		reply(cmd, Outcome{})
	case PhasePaused:
		reply(cmd, Outcome{})
	default:
		reply(cmd, Outcome{Err: faults.New(faults.CategoryQueue, faults.CodeQueueEmpty, "nothing is playing")})
	}
}

func (e *Engine) handleResume(cmd Command) {
	switch e.phase {
	case PhasePaused:
		e.playback.Resume()
		e.phase = PhasePlaying
		e.publish()
		reply(cmd, Outcome{})
	case PhasePlaying:
		reply(cmd, Outcome{})
	default:
		reply(cmd, Outcome{Err: faults.New(faults.CategoryQueue, faults.CodeQueueEmpty, "nothing is paused")})
	}
}

func (e *Engine) handleShuffle(cmd Command) {
	_, changed := e.queue.Shuffle()
	if !changed {
		reply(cmd, Outcome{})
		return
	}
	// the staged artifact was decoded for the old head
	e.deps.Preload.CancelGuild(e.guildID)
	e.justShuffled = true
	e.publish()
	reply(cmd, Outcome{})
}

func (e *Engine) handleSetVolume(cmd Command) {
	v := cmd.VolumePct
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	if v != e.volumePct {
		e.volumePct = v
		// the running stream keeps its loudness; only the staged head re-decodes
		if e.playback != nil {
			e.beginHeadPreload()
		}
		e.publish()
	}
	reply(cmd, Outcome{VolumePct: v})
}

func (e *Engine) handleSetMuted(cmd Command) {
	if e.muted != cmd.Muted {
		e.muted = cmd.Muted
		if e.playback != nil {
			e.playback.SetMuted(cmd.Muted)
		}
		e.publish()
	}
	reply(cmd, Outcome{Muted: e.muted})
}

// startNext dequeues and plays the next track, skipping over records that
// fail to decode. An empty queue lands the session in idle.
func (e *Engine) startNext() {
	if e.queue.IsEmpty() {
		e.becomeIdle()
		return
	}

	e.phase = PhaseLoading
	e.publish()

	sink, err := e.ensureVoice()
	if err != nil {
		// leave the queue intact so a retry can pick it back up
		e.logger.Error("Voice connection failed", err, nil)
		e.deps.Metrics.RecordError(faults.CodeOf(err))
		e.lastErr = err
		e.becomeIdle()
		return
	}

	for {
		rec := e.queue.Dequeue()
		if rec == nil {
			e.becomeIdle()
			return
		}
		if e.startTrack(sink, rec) {
			return
		}
	}
}

func (e *Engine) startTrack(sink player.Sink, rec *queue.SongRecord) bool {
	e.phase = PhaseLoading
	e.nowPlaying = rec
	e.searchQuery = ""
	e.publish()

	artifact, owned, err := e.obtainArtifact(rec)
	if err != nil {
		e.failTrack(rec, err)
		return false
	}

	pb, err := e.deps.Starter.Start(sink, artifact, e.deps.Audio)
	if err != nil && !owned {
		// stale preloaded artifact; drop it and decode live
		e.deps.Preload.Release(e.guildID, rec.StreamKey)
		artifact, err = e.deps.Decoder.Decode(e.ctx, e.guildID, rec.StreamKey, e.volumePct, e.deps.Audio.DecodeTimeout)
		if err == nil {
			owned = true
			pb, err = e.deps.Starter.Start(sink, artifact, e.deps.Audio)
		}
	}
	if err != nil {
		if owned {
			if rmErr := e.deps.Decoder.RemoveArtifact(artifact); rmErr != nil {
				e.logger.Warn("Failed to remove artifact", map[string]interface{}{"error": rmErr.Error()})
			}
		}
		e.failTrack(rec, err)
		return false
	}

	e.playback = pb
	e.doneCh = pb.Done()
	e.artifact = artifact
	e.artifactKey = rec.StreamKey
	e.artifactOwned = owned
	if e.muted {
		pb.SetMuted(true)
	}
	e.phase = PhasePlaying
	e.lastErr = nil
	e.deps.Metrics.RecordPlayStart()
	e.logger.Info("Playback started", map[string]interface{}{
		"title":      rec.Title,
		"stream_key": rec.StreamKey,
		"preloaded":  !owned,
	})
	e.publish()

	e.beginHeadPreload()
	return true
}

// obtainArtifact settles any staged preload for the record, falling back to
// a live decode on miss. The bool reports engine ownership of the file.
func (e *Engine) obtainArtifact(rec *queue.SongRecord) (string, bool, error) {
	actx, cancel := context.WithTimeout(e.ctx, e.deps.Audio.DecodeTimeout)
	artifact, ok := e.deps.Preload.Await(actx, e.guildID, rec.StreamKey, e.volumePct)
	cancel()
	if ok {
		return artifact, false, nil
	}

	artifact, err := e.deps.Decoder.Decode(e.ctx, e.guildID, rec.StreamKey, e.volumePct, e.deps.Audio.DecodeTimeout)
	if err != nil {
		return "", false, err
	}
	return artifact, true, nil
}

func (e *Engine) failTrack(rec *queue.SongRecord, err error) {
	e.logger.Error("Track failed to start", err, map[string]interface{}{"title": rec.Title})
	e.deps.Metrics.RecordError(faults.CodeOf(err))
	e.lastErr = err
	e.pushHistory(*rec)
	e.nowPlaying = nil
}

func (e *Engine) ensureVoice() (player.Sink, error) {
	if e.voiceChannelID == "" {
		return nil, faults.New(faults.CategorySession, faults.CodeSessionNotInVoice, "no voice channel to join")
	}
	vctx, cancel := context.WithTimeout(e.ctx, voiceJoinTimeout)
	defer cancel()
	return e.deps.Voice.Join(vctx, e.guildID, e.voiceChannelID)
}

// beginHeadPreload stages the queue head for decode-ahead. A shuffle skips
// exactly one staging cycle since the head prediction just changed.
func (e *Engine) beginHeadPreload() {
	shuffled := e.justShuffled
	e.justShuffled = false
	next := e.queue.Peek()
	if next == nil {
		return
	}
	e.deps.Preload.Begin(e.guildID, *next, e.volumePct, shuffled)
}

// stopCurrent halts the running stream and settles its bookkeeping. No-op
// when nothing plays.
func (e *Engine) stopCurrent() {
	if e.playback == nil {
		return
	}
	e.playback.Stop()
	res := <-e.doneCh
	e.onPlaybackEnd(res, false)
}

// onPlaybackEnd releases the finished track's artifact, records history and
// metrics, and optionally advances to the next track.
func (e *Engine) onPlaybackEnd(res player.Result, advance bool) {
	pb := e.playback
	e.playback = nil
	e.doneCh = nil

	if pb != nil {
		e.deps.Metrics.RecordPlayEnd(pb.Elapsed())
	}
	e.releaseArtifact()
	if e.nowPlaying != nil {
		e.pushHistory(*e.nowPlaying)
		e.nowPlaying = nil
	}
	if res.Err != nil {
		e.logger.Error("Playback ended with error", res.Err, nil)
		e.deps.Metrics.RecordError(faults.CodeOf(res.Err))
		e.lastErr = res.Err
	}

	e.phase = PhaseLoading
	if advance {
		e.startNext()
	}
}

func (e *Engine) releaseArtifact() {
	if e.artifact == "" {
		return
	}
	if e.artifactOwned {
		if err := e.deps.Decoder.RemoveArtifact(e.artifact); err != nil {
			e.logger.Warn("Failed to remove artifact", map[string]interface{}{
				"path":  e.artifact,
				"error": err.Error(),
			})
		}
	} else {
		e.deps.Preload.Release(e.guildID, e.artifactKey)
	}
	e.artifact = ""
	e.artifactKey = ""
	e.artifactOwned = false
}

func (e *Engine) pushHistory(rec queue.SongRecord) {
	rec.ResetPreload()
	e.history = append([]queue.SongRecord{rec}, e.history...)
	if limit := e.historyCap(); len(e.history) > limit {
		e.history = e.history[:limit]
	}
}

func (e *Engine) historyCap() int {
	if e.deps.Session.HistoryCap > 0 {
		return e.deps.Session.HistoryCap
	}
	return DefaultHistoryCap
}

func (e *Engine) maxDurationSec() int {
	if e.deps.Settings == nil {
		return models.DefaultMaxDurationSeconds
	}
	row, err := e.deps.Settings.Get(e.guildID)
	if err != nil {
		return models.DefaultMaxDurationSeconds
	}
	return row.MaxDurationSeconds
}

func (e *Engine) becomeIdle() {
	e.phase = PhaseIdle
	e.nowPlaying = nil
	e.searchQuery = ""
	e.publish()
}

// destroy tears the session down. A reset wipes persisted queue state, an
// external disconnect keeps the store as-is.
func (e *Engine) destroy(reset bool) {
	e.stopCurrent()
	e.deps.Preload.CancelGuild(e.guildID)
	if reset {
		if err := e.queue.Clear(); err != nil {
			e.logger.Warn("Queue clear failed during reset", map[string]interface{}{"error": err.Error()})
		}
	} else {
		e.persist()
	}
	e.phase = PhaseDestroyed
	e.logger.Info("Session destroyed", map[string]interface{}{"reset": reset})
	e.publish()
}

// shutdown is the process-exit path: stop the stream and flush state so the
// next boot can restore it. The interrupted track stays in the snapshot as
// nowPlaying so restore replays it.
func (e *Engine) shutdown() {
	if e.playback != nil {
		e.playback.Stop()
		<-e.doneCh
		e.deps.Metrics.RecordPlayEnd(e.playback.Elapsed())
		e.playback = nil
		e.doneCh = nil
		e.releaseArtifact()
	}
	e.deps.Preload.CancelGuild(e.guildID)
	e.persist()
	e.phase = PhaseDestroyed
	e.publish()
}

func (e *Engine) persist() {
	snap := queue.Snapshot{
		NowPlaying: e.nowPlaying,
		History:    e.history,
		Playlist:   e.playlist,
		VolumePct:  e.volumePct,
		Muted:      e.muted,
	}
	// Persist fills the queue window itself and logs its own failures
	_ = e.queue.Persist(snap)
}

// restore seeds pre-run state from a persisted snapshot. Only called by the
// manager before Start.
func (e *Engine) restore(snap *queue.Snapshot, overflow int) {
	window := snap.Queue
	if snap.NowPlaying != nil {
		// the interrupted track plays first on the next boot
		window = append([]queue.SongRecord{*snap.NowPlaying}, window...)
	}
	e.queue.Restore(window, overflow)

	if snap.VolumePct > 0 && snap.VolumePct <= 100 {
		e.volumePct = snap.VolumePct
	}
	e.muted = snap.Muted
	e.playlist = snap.Playlist
	e.history = append([]queue.SongRecord(nil), snap.History...)
	if limit := e.historyCap(); len(e.history) > limit {
		e.history = e.history[:limit]
	}
	e.publishLocked()
}

// publish refreshes the snapshot mirror and notifies the listener
func (e *Engine) publish() {
	e.publishLocked()
	if e.deps.Listener != nil {
		e.deps.Listener.OnTransition(e.Snapshot())
	}
}

func (e *Engine) publishLocked() {
	snap := Snapshot{
		GuildID:        e.guildID,
		Phase:          e.phase,
		VoiceChannelID: e.voiceChannelID,
		TextChannelID:  e.textChannelID,
		Queue:          e.queue.Window(),
		TotalTracks:    e.queue.TotalCount(),
		History:        append([]queue.SongRecord(nil), e.history...),
		VolumePct:      e.volumePct,
		Muted:          e.muted,
		Connected:      e.deps.Voice.Active(e.guildID),
		SearchQuery:    e.searchQuery,
		LastError:      e.lastErr,
		UpdatedAt:      time.Now(),
	}
	if e.nowPlaying != nil {
		np := *e.nowPlaying
		snap.NowPlaying = &np
	}
	if e.playlist != nil {
		pl := *e.playlist
		snap.Playlist = &pl
	}

	e.mu.Lock()
	e.snap = snap
	e.pb = e.playback
	e.mu.Unlock()
}

func reply(cmd Command, out Outcome) {
	if cmd.Reply == nil {
		return
	}
	select {
	case cmd.Reply <- out:
	default:
	}
}

// Package coordinator gates user commands into the session engines. It
// owns one advisory flow lock per guild, a per-user rate limit, and a
// bounded queue of commands deferred behind in-flight transitions. It is
// also the engine listener: every snapshot publish comes back through it
// to drive idle timers and the debounced controls message.
package coordinator

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/latoulicious/groovebox/pkg/config"
	"github.com/latoulicious/groovebox/pkg/database/models"
	"github.com/latoulicious/groovebox/pkg/faults"
	"github.com/latoulicious/groovebox/pkg/logging"
	"github.com/latoulicious/groovebox/pkg/metrics"
	"github.com/latoulicious/groovebox/pkg/session"
	"github.com/latoulicious/groovebox/pkg/ui"
)

// ErrDeferred reports that a command was queued behind an in-flight
// transition and will run when the flow settles.
var ErrDeferred = errors.New("command deferred until the current transition settles")

// Priority orders contention for a guild's playback flow. Lower values
// win: a command preempts the lock holder only when its priority value is
// strictly lower.
type Priority int

const (
	PriorityCritical Priority = iota // shutdown, reset
	PriorityHigh                     // skip, stop
	PriorityNormal                   // play, pause, user controls
	PriorityLow                      // engine-origin transitions
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// State is the coarse playback flow a guild lock tracks. Paused counts as
// playing; the lock only cares whether the flow is occupied.
type State string

const (
	StateIdle     State = "idle"
	StateQuerying State = "querying"
	StateLoading  State = "loading"
	StatePlaying  State = "playing"
)

// allowedNext lists the transitions a lock accepts without preemption.
var allowedNext = map[State][]State{
	StateIdle:     {StateQuerying, StateLoading, StateIdle},
	StateQuerying: {StateLoading, StateIdle},
	StateLoading:  {StatePlaying, StateIdle},
	StatePlaying:  {StateIdle},
}

func transitionAllowed(from, to State) bool {
	for _, next := range allowedNext[from] {
		if next == to {
			return true
		}
	}
	return false
}

// engineRequester marks locks held by the engines themselves rather than
// a user. Engine-origin locks sit at PriorityLow so user commands always
// outrank the steady state.
const engineRequester = "engine"

type flowLock struct {
	state       State
	priority    Priority
	requesterID string
	since       time.Time
}

type deferredCmd struct {
	seq      uint64
	cmd      session.Command
	priority Priority
	userID   string
	queuedAt time.Time
}

type pendingEmit struct {
	timer *time.Timer
	snap  session.Snapshot
}

// Deps carries the coordinator's collaborators. Settings, Gifs, Plays,
// and Metrics may be nil; the corresponding features degrade to defaults.
type Deps struct {
	Sessions Sessions
	Editor   ControlsEditor
	Idle     IdleTimers
	Refs     RefCleaner
	Settings SettingsSource
	Gifs     GifSource
	Plays    PlayCounter
	Metrics  metrics.Collector

	Gate     config.GateConfig
	Debounce time.Duration
}

// Coordinator is safe for concurrent use. One instance serves every guild.
type Coordinator struct {
	deps   Deps
	logger logging.Logger
	rate   *rateLimiter

	mu       sync.Mutex
	locks    map[string]*flowLock
	deferred map[string][]deferredCmd
	deferSeq uint64

	emitMu  sync.Mutex
	pending map[string]*pendingEmit
	stopped bool

	playMu     sync.Mutex
	lastPlayed map[string]string

	gifTick atomic.Int64

	cron *cron.Cron
}

// New builds the coordinator and starts its background sweep. Zero-valued
// gate fields fall back to the config defaults.
func New(deps Deps) *Coordinator {
	if deps.Gate.RateWindow <= 0 {
		deps.Gate.RateWindow = 10 * time.Second
	}
	if deps.Gate.RateLimit <= 0 {
		deps.Gate.RateLimit = 10
	}
	if deps.Gate.DeferredCap <= 0 {
		deps.Gate.DeferredCap = 16
	}
	if deps.Gate.DeferredTTL <= 0 {
		deps.Gate.DeferredTTL = 60 * time.Second
	}
	if deps.Gate.LockTTL <= 0 {
		deps.Gate.LockTTL = 5 * time.Minute
	}
	if deps.Gate.SweepInterval <= 0 {
		deps.Gate.SweepInterval = 30 * time.Second
	}
	if deps.Debounce <= 0 {
		deps.Debounce = 100 * time.Millisecond
	}

	c := &Coordinator{
		deps:       deps,
		logger:     logging.GetGlobalLoggerFactory().CreateLogger("coordinator"),
		rate:       newRateLimiter(deps.Gate.RateWindow, deps.Gate.RateLimit),
		locks:      make(map[string]*flowLock),
		deferred:   make(map[string][]deferredCmd),
		pending:    make(map[string]*pendingEmit),
		lastPlayed: make(map[string]string),
	}

	c.cron = cron.New()
	if _, err := c.cron.AddFunc(fmt.Sprintf("@every %s", deps.Gate.SweepInterval), c.Sweep); err != nil {
		c.logger.Error("Failed to schedule gate sweep", err, map[string]interface{}{
			"error": err.Error(),
		})
	}
	c.cron.Start()
	return c
}

// Stop halts the sweep scheduler and cancels pending controls edits.
func (c *Coordinator) Stop() {
	if c.cron != nil {
		c.cron.Stop()
	}

	c.emitMu.Lock()
	c.stopped = true
	for guildID, p := range c.pending {
		p.timer.Stop()
		delete(c.pending, guildID)
	}
	c.emitMu.Unlock()
}

// Dispatch gates a user command through the guild's rate limit and flow
// lock, then forwards it to the session engine. A command that would break
// an in-flight transition is queued until the flow settles and Dispatch
// returns ErrDeferred, unless the caller's priority preempts the holder.
func (c *Coordinator) Dispatch(guildID string, cmd session.Command, pri Priority, userID string) error {
	if retryAfter, ok := c.rate.allow(guildID, userID, time.Now()); !ok {
		if c.deps.Metrics != nil {
			c.deps.Metrics.RecordError(faults.CodeSystemRateLimited)
		}
		c.logger.Warn("Rate limited", map[string]interface{}{
			"guild_id":    guildID,
			"user_id":     userID,
			"command":     cmd.Kind.String(),
			"retry_after": retryAfter.Round(time.Millisecond).String(),
		})
		return faults.New(faults.CategorySystem, faults.CodeSystemRateLimited, "slow down, too many requests").
			WithDetail("retry_after", retryAfter.Round(time.Millisecond).String())
	}
	return c.dispatch(guildID, cmd, pri, userID)
}

// dispatch applies lock validation without spending rate budget. Deferred
// replays come back through here.
func (c *Coordinator) dispatch(guildID string, cmd session.Command, pri Priority, userID string) error {
	target, gated := c.targetState(guildID, cmd.Kind)
	if !gated {
		return c.forward(guildID, cmd)
	}

	c.mu.Lock()
	if !c.acquireLocked(guildID, target, pri, userID) {
		err := c.deferLocked(guildID, cmd, pri, userID)
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	return c.forward(guildID, cmd)
}

// targetState derives the lock transition a command requests. Commands
// that only adjust the current flow, like pause or volume, are not gated
// and forward directly after the rate check.
func (c *Coordinator) targetState(guildID string, kind session.CommandKind) (State, bool) {
	snap, live := c.deps.Sessions.Snapshot(guildID)
	switch kind {
	case session.CmdPlay:
		if live && snap.ActiveAudio() {
			// Appending to a running flow never touches the lock.
			return "", false
		}
		return StateQuerying, true
	case session.CmdSkip:
		if live && snap.TotalTracks > 0 {
			return StateLoading, true
		}
		return StateIdle, true
	case session.CmdStop, session.CmdAdminReset, session.CmdExternalDisconnect:
		return StateIdle, true
	default:
		return "", false
	}
}

// acquireLocked moves the guild lock to target when the transition is
// legal or the caller outranks the holder. Caller holds mu.
func (c *Coordinator) acquireLocked(guildID string, target State, pri Priority, userID string) bool {
	lk := c.lockFor(guildID)
	if !transitionAllowed(lk.state, target) {
		if pri >= lk.priority {
			return false
		}
		c.logger.Info("Preempting flow lock", map[string]interface{}{
			"guild_id":   guildID,
			"held_by":    lk.requesterID,
			"held_state": string(lk.state),
			"priority":   pri.String(),
		})
	}
	lk.state = target
	lk.priority = pri
	lk.requesterID = userID
	lk.since = time.Now()
	return true
}

// deferLocked queues a blocked command in priority order, ties broken by
// arrival time. Caller holds mu.
func (c *Coordinator) deferLocked(guildID string, cmd session.Command, pri Priority, userID string) error {
	entries := c.deferred[guildID]
	if len(entries) >= c.deps.Gate.DeferredCap {
		return faults.New(faults.CategorySystem, faults.CodeSystemRateLimited, "too many queued commands, try again shortly")
	}

	c.deferSeq++
	entry := deferredCmd{
		seq:      c.deferSeq,
		cmd:      cmd,
		priority: pri,
		userID:   userID,
		queuedAt: time.Now(),
	}
	at := len(entries)
	for i, e := range entries {
		if pri < e.priority {
			at = i
			break
		}
	}
	entries = append(entries, deferredCmd{})
	copy(entries[at+1:], entries[at:])
	entries[at] = entry
	c.deferred[guildID] = entries

	c.logger.Debug("Deferred command until flow settles", map[string]interface{}{
		"guild_id": guildID,
		"command":  cmd.Kind.String(),
		"queued":   len(entries),
	})
	return ErrDeferred
}

// forward hands a command to the engine layer. Only plays may create a
// session; resets and disconnects tear the whole session down instead of
// going through the inbox.
func (c *Coordinator) forward(guildID string, cmd session.Command) error {
	switch cmd.Kind {
	case session.CmdPlay:
		return c.deps.Sessions.SubmitOrCreate(guildID, cmd)
	case session.CmdAdminReset:
		c.deps.Sessions.Destroy(guildID, true)
		return nil
	case session.CmdExternalDisconnect:
		c.deps.Sessions.Destroy(guildID, false)
		return nil
	default:
		return c.deps.Sessions.Submit(guildID, cmd)
	}
}

// lockFor returns the guild's lock, creating an idle one on first use.
// Caller holds mu.
func (c *Coordinator) lockFor(guildID string) *flowLock {
	lk, ok := c.locks[guildID]
	if !ok {
		lk = &flowLock{
			state:       StateIdle,
			priority:    PriorityLow,
			requesterID: engineRequester,
			since:       time.Now(),
		}
		c.locks[guildID] = lk
	}
	return lk
}

// OnTransition receives every engine snapshot publish. It mirrors the
// flow lock, drives the idle disconnect timers, replays deferred
// commands, and schedules a debounced controls edit. It runs on the
// engine goroutine, so nothing here blocks.
func (c *Coordinator) OnTransition(snap session.Snapshot) {
	guildID := snap.GuildID

	if snap.Phase == session.PhaseDestroyed {
		c.mu.Lock()
		delete(c.locks, guildID)
		delete(c.deferred, guildID)
		c.mu.Unlock()

		c.playMu.Lock()
		delete(c.lastPlayed, guildID)
		c.playMu.Unlock()

		c.cancelEmit(guildID)
		c.deps.Idle.Clear(guildID)
		c.deps.Refs.ClearGuild(guildID)
		return
	}

	c.mu.Lock()
	lk := c.lockFor(guildID)
	lk.state = stateForPhase(snap.Phase)
	lk.priority = PriorityLow
	lk.requesterID = engineRequester
	lk.since = time.Now()
	c.mu.Unlock()

	if snap.Phase == session.PhaseIdle && snap.TotalTracks == 0 {
		c.deps.Idle.Arm(guildID)
	} else {
		c.deps.Idle.Clear(guildID)
	}

	c.notePlay(snap)
	c.scheduleEmit(snap)
	c.drainDeferred(guildID)
}

// notePlay bumps the cached track's play counter once per track start.
// Song ids double as metadata cache keys; pause, resume, and volume
// transitions republish the same track and are filtered out here, while
// any phase that ends playback drops the filter so the same song counts
// again on its next start. The write happens off the engine goroutine.
func (c *Coordinator) notePlay(snap session.Snapshot) {
	if c.deps.Plays == nil {
		return
	}

	switch snap.Phase {
	case session.PhasePlaying:
	case session.PhasePaused:
		return
	default:
		c.playMu.Lock()
		delete(c.lastPlayed, snap.GuildID)
		c.playMu.Unlock()
		return
	}

	if snap.NowPlaying == nil {
		return
	}

	c.playMu.Lock()
	if c.lastPlayed[snap.GuildID] == snap.NowPlaying.ID {
		c.playMu.Unlock()
		return
	}
	c.lastPlayed[snap.GuildID] = snap.NowPlaying.ID
	c.playMu.Unlock()

	songID := snap.NowPlaying.ID
	go func() {
		if err := c.deps.Plays.TouchPlayed(songID); err != nil {
			c.logger.Debug("Play counter update failed", map[string]interface{}{
				"guild_id": snap.GuildID,
				"song_id":  songID,
				"error":    err.Error(),
			})
		}
	}()
}

// stateForPhase folds engine phases into lock states. Paused keeps the
// playing lock since the flow is still occupied.
func stateForPhase(p session.Phase) State {
	switch p {
	case session.PhaseQuerying:
		return StateQuerying
	case session.PhaseLoading:
		return StateLoading
	case session.PhasePlaying, session.PhasePaused:
		return StatePlaying
	default:
		return StateIdle
	}
}

// drainDeferred replays queued commands now that the flow moved. Entries
// run in priority order; the first still-blocked entry stops the drain so
// ordering holds.
func (c *Coordinator) drainDeferred(guildID string) {
	for {
		c.mu.Lock()
		entries := c.pruneExpiredLocked(guildID, time.Now())
		if len(entries) == 0 {
			c.mu.Unlock()
			return
		}
		head := entries[0]
		c.mu.Unlock()

		// Derive the target outside mu; it reads the session snapshot.
		target, gated := c.targetState(guildID, head.cmd.Kind)

		c.mu.Lock()
		entries = c.deferred[guildID]
		if len(entries) == 0 || entries[0].seq != head.seq {
			// Another drain raced us and already took the head.
			c.mu.Unlock()
			return
		}
		if gated && !c.acquireLocked(guildID, target, head.priority, head.userID) {
			c.mu.Unlock()
			return
		}
		if len(entries) == 1 {
			delete(c.deferred, guildID)
		} else {
			c.deferred[guildID] = entries[1:]
		}
		c.mu.Unlock()

		if err := c.forward(guildID, head.cmd); err != nil {
			c.logger.Warn("Deferred command failed on replay", map[string]interface{}{
				"guild_id": guildID,
				"command":  head.cmd.Kind.String(),
				"error":    err.Error(),
			})
		}
	}
}

// pruneExpiredLocked drops deferred entries older than the TTL and
// returns what remains. Caller holds mu.
func (c *Coordinator) pruneExpiredLocked(guildID string, now time.Time) []deferredCmd {
	entries := c.deferred[guildID]
	kept := entries[:0]
	for _, e := range entries {
		if now.Sub(e.queuedAt) > c.deps.Gate.DeferredTTL {
			c.logger.Warn("Dropped expired deferred command", map[string]interface{}{
				"guild_id": guildID,
				"command":  e.cmd.Kind.String(),
				"user_id":  e.userID,
			})
			continue
		}
		kept = append(kept, e)
	}
	if len(kept) == 0 {
		delete(c.deferred, guildID)
		return nil
	}
	c.deferred[guildID] = kept
	return kept
}

// Sweep reaps stale locks, expired deferred commands, and spent rate
// windows. The cron scheduler runs it every SweepInterval; tests call it
// directly.
func (c *Coordinator) Sweep() {
	now := time.Now()

	c.mu.Lock()
	for guildID, lk := range c.locks {
		if now.Sub(lk.since) <= c.deps.Gate.LockTTL {
			continue
		}
		if lk.state == StateIdle && lk.requesterID == engineRequester {
			delete(c.locks, guildID)
			continue
		}
		c.logger.Warn("Reaped stale flow lock", map[string]interface{}{
			"guild_id": guildID,
			"state":    string(lk.state),
			"held_by":  lk.requesterID,
		})
		lk.state = StateIdle
		lk.priority = PriorityLow
		lk.requesterID = engineRequester
		lk.since = now
	}
	stillQueued := make([]string, 0, len(c.deferred))
	for guildID := range c.deferred {
		if len(c.pruneExpiredLocked(guildID, now)) > 0 {
			stillQueued = append(stillQueued, guildID)
		}
	}
	c.mu.Unlock()

	// A reaped lock may have been what blocked these.
	for _, guildID := range stillQueued {
		c.drainDeferred(guildID)
	}

	c.rate.sweep(now)

	if pruner, ok := c.deps.Settings.(interface{ Prune() int }); ok {
		pruner.Prune()
	}
}

// StateFor derives the renderer input for a guild's current session,
// falling back to an idle state when no session exists. Used to seed a
// fresh controls message.
func (c *Coordinator) StateFor(guildID string) ui.State {
	if snap, ok := c.deps.Sessions.Snapshot(guildID); ok {
		return c.uiState(snap)
	}
	return c.uiState(session.Snapshot{GuildID: guildID})
}

// LockInfo is a point-in-time view of one guild's flow lock, exposed on
// the status surface.
type LockInfo struct {
	GuildID     string    `json:"guild_id"`
	State       string    `json:"state"`
	Priority    string    `json:"priority"`
	RequesterID string    `json:"requester_id"`
	Since       time.Time `json:"since"`
	Deferred    int       `json:"deferred"`
}

// Locks reports the current flow locks.
func (c *Coordinator) Locks() []LockInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]LockInfo, 0, len(c.locks))
	for guildID, lk := range c.locks {
		out = append(out, LockInfo{
			GuildID:     guildID,
			State:       string(lk.state),
			Priority:    lk.priority.String(),
			RequesterID: lk.requesterID,
			Since:       lk.since,
			Deferred:    len(c.deferred[guildID]),
		})
	}
	return out
}

// scheduleEmit coalesces snapshot bursts into one controls edit per
// debounce window. The latest snapshot wins.
func (c *Coordinator) scheduleEmit(snap session.Snapshot) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	if c.stopped {
		return
	}
	if p, ok := c.pending[snap.GuildID]; ok {
		p.snap = snap
		return
	}
	guildID := snap.GuildID
	p := &pendingEmit{snap: snap}
	p.timer = time.AfterFunc(c.deps.Debounce, func() { c.emit(guildID) })
	c.pending[guildID] = p
}

func (c *Coordinator) emit(guildID string) {
	c.emitMu.Lock()
	p, ok := c.pending[guildID]
	if !ok {
		c.emitMu.Unlock()
		return
	}
	delete(c.pending, guildID)
	snap := p.snap
	c.emitMu.Unlock()

	if err := c.deps.Editor.EditControls(guildID, c.uiState(snap)); err != nil {
		c.logger.Warn("Controls edit failed", map[string]interface{}{
			"guild_id": guildID,
			"error":    err.Error(),
		})
	}
}

func (c *Coordinator) cancelEmit(guildID string) {
	c.emitMu.Lock()
	if p, ok := c.pending[guildID]; ok {
		p.timer.Stop()
		delete(c.pending, guildID)
	}
	c.emitMu.Unlock()
}

// uiState maps an engine snapshot onto the renderer's input.
func (c *Coordinator) uiState(snap session.Snapshot) ui.State {
	st := ui.State{
		GuildID:          snap.GuildID,
		SearchQuery:      snap.SearchQuery,
		NowPlaying:       snap.NowPlaying,
		Elapsed:          snap.Elapsed,
		TotalTracks:      snap.TotalTracks,
		VolumePct:        snap.VolumePct,
		Muted:            snap.Muted,
		Connected:        snap.Connected,
		QueueDisplayMode: ui.DisplayChat,
	}
	for _, rec := range snap.Queue {
		st.QueueTitles = append(st.QueueTitles, rec.Title)
	}
	if c.deps.Settings != nil {
		if row, err := c.deps.Settings.Get(snap.GuildID); err == nil && row != nil && row.QueueDisplayMode == models.QueueDisplayMenu {
			st.QueueDisplayMode = ui.DisplayMenu
		}
	}

	switch snap.Phase {
	case session.PhaseQuerying:
		st.Phase = ui.PhaseQuerying
		st.GifURL = c.loadingGIF(snap.GuildID)
	case session.PhaseLoading:
		st.Phase = ui.PhaseLoading
		st.GifURL = c.loadingGIF(snap.GuildID)
	case session.PhasePlaying:
		st.Phase = ui.PhasePlaying
	case session.PhasePaused:
		st.Phase = ui.PhasePaused
	default:
		if snap.LastError != nil {
			st.Phase = ui.PhaseError
			st.ErrorMessage = faults.UserMessage(snap.LastError)
			st.ErrorCode = faults.CodeOf(snap.LastError)
		} else {
			st.Phase = ui.PhaseIdle
		}
	}
	return st
}

// loadingGIF rotates through the guild's artwork set, falling back to the
// built-in rotation when the guild never opted in.
func (c *Coordinator) loadingGIF(guildID string) string {
	tick := int(c.gifTick.Add(1))

	var custom []string
	useCustom := false
	if c.deps.Gifs != nil {
		if row, err := c.deps.Gifs.Get(guildID); err == nil && row != nil {
			custom = []string(row.GifURLs)
			useCustom = row.UseCustomGifs
		}
	}
	return ui.SelectGIF(custom, useCustom, tick)
}

package metrics

import (
	"sync"
	"time"
)

// Collector records pipeline events for the status endpoint and the memory
// command. Implementations must be safe for concurrent use.
type Collector interface {
	RecordResolve(success bool, duration time.Duration)
	RecordDecode(success bool, duration time.Duration)
	RecordPlayStart()
	RecordPlayEnd(duration time.Duration)
	RecordError(code string)
	RecordPreloadHit()
	RecordPreloadMiss()
	SetActiveSessions(n int)
	SetTrackedProcesses(n int)
	Snapshot() Snapshot
}

// Snapshot is a point-in-time copy of all counters
type Snapshot struct {
	Uptime             time.Duration  `json:"uptime"`
	Resolves           int64          `json:"resolves"`
	ResolveFailures    int64          `json:"resolve_failures"`
	AvgResolveTime     time.Duration  `json:"avg_resolve_time"`
	Decodes            int64          `json:"decodes"`
	DecodeFailures     int64          `json:"decode_failures"`
	AvgDecodeTime      time.Duration  `json:"avg_decode_time"`
	PlaysStarted       int64          `json:"plays_started"`
	PlaysCompleted     int64          `json:"plays_completed"`
	TotalPlaybackTime  time.Duration  `json:"total_playback_time"`
	PreloadHits        int64          `json:"preload_hits"`
	PreloadMisses      int64          `json:"preload_misses"`
	ErrorsByCode       map[string]int `json:"errors_by_code"`
	ActiveSessions     int            `json:"active_sessions"`
	TrackedProcesses   int            `json:"tracked_processes"`
}

// sampleCap bounds the rolling duration windows
const sampleCap = 100

// BasicCollector is the in-memory Collector implementation
type BasicCollector struct {
	mu sync.Mutex

	startedAt time.Time

	resolves        int64
	resolveFailures int64
	resolveTimes    []time.Duration

	decodes        int64
	decodeFailures int64
	decodeTimes    []time.Duration

	playsStarted      int64
	playsCompleted    int64
	totalPlaybackTime time.Duration

	preloadHits   int64
	preloadMisses int64

	errorsByCode map[string]int

	activeSessions   int
	trackedProcesses int
}

// NewBasicCollector creates an empty collector
func NewBasicCollector() *BasicCollector {
	return &BasicCollector{
		startedAt:    time.Now(),
		errorsByCode: make(map[string]int),
	}
}

func (c *BasicCollector) RecordResolve(success bool, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resolves++
	if !success {
		c.resolveFailures++
		return
	}
	c.resolveTimes = appendSample(c.resolveTimes, duration)
}

func (c *BasicCollector) RecordDecode(success bool, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.decodes++
	if !success {
		c.decodeFailures++
		return
	}
	c.decodeTimes = appendSample(c.decodeTimes, duration)
}

func (c *BasicCollector) RecordPlayStart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playsStarted++
}

func (c *BasicCollector) RecordPlayEnd(duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playsCompleted++
	c.totalPlaybackTime += duration
}

func (c *BasicCollector) RecordError(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorsByCode[code]++
}

func (c *BasicCollector) RecordPreloadHit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.preloadHits++
}

func (c *BasicCollector) RecordPreloadMiss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.preloadMisses++
}

func (c *BasicCollector) SetActiveSessions(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeSessions = n
}

func (c *BasicCollector) SetTrackedProcesses(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trackedProcesses = n
}

// Snapshot copies every counter under one lock acquisition
func (c *BasicCollector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	errors := make(map[string]int, len(c.errorsByCode))
	for code, count := range c.errorsByCode {
		errors[code] = count
	}

	return Snapshot{
		Uptime:            time.Since(c.startedAt),
		Resolves:          c.resolves,
		ResolveFailures:   c.resolveFailures,
		AvgResolveTime:    average(c.resolveTimes),
		Decodes:           c.decodes,
		DecodeFailures:    c.decodeFailures,
		AvgDecodeTime:     average(c.decodeTimes),
		PlaysStarted:      c.playsStarted,
		PlaysCompleted:    c.playsCompleted,
		TotalPlaybackTime: c.totalPlaybackTime,
		PreloadHits:       c.preloadHits,
		PreloadMisses:     c.preloadMisses,
		ErrorsByCode:      errors,
		ActiveSessions:    c.activeSessions,
		TrackedProcesses:  c.trackedProcesses,
	}
}

// IsHealthy applies a coarse heuristic: more than half of all resolve and
// decode attempts failing means something upstream is broken.
func (c *BasicCollector) IsHealthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	attempts := c.resolves + c.decodes
	if attempts < 5 {
		return true
	}
	failures := c.resolveFailures + c.decodeFailures
	return failures*2 < attempts
}

func appendSample(samples []time.Duration, d time.Duration) []time.Duration {
	if len(samples) >= sampleCap {
		samples = samples[1:]
	}
	return append(samples, d)
}

func average(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range samples {
		total += d
	}
	return total / time.Duration(len(samples))
}

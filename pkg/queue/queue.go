package queue

import (
	"math/rand"
	"sync"

	"github.com/latoulicious/groovebox/pkg/faults"
	"github.com/latoulicious/groovebox/pkg/logging"
)

// Store persists the parts of a guild queue that do not fit in memory plus
// the playback snapshot. Implemented by the database repository layer.
type Store interface {
	PushOverflow(guildID string, songs []SongRecord) error
	PopOverflow(guildID string, n int) ([]SongRecord, error)
	OverflowCount(guildID string) (int, error)
	SaveSnapshot(guildID string, snap Snapshot) error
	LoadSnapshot(guildID string) (*Snapshot, int, error)
	ClearGuild(guildID string) error
}

const (
	// DefaultCap is the in-memory window size
	DefaultCap = 3
	// DefaultRefillBatch is how many records a refill pulls from the store
	DefaultRefillBatch = 3
)

// Queue is the bounded per-guild song queue. At most Cap records are held in
// memory; the rest live in the overflow store and are pulled back in batches
// as the window drains. Memory per guild stays O(cap) regardless of how much
// was enqueued.
type Queue struct {
	mu          sync.RWMutex
	guildID     string
	cap         int
	refillBatch int

	items      []SongRecord
	pending    []SongRecord
	loadedKeys map[string]struct{}
	overflow   int

	store  Store
	logger logging.Logger
}

// Config carries queue tunables. Zero values fall back to the defaults.
type Config struct {
	Cap         int
	RefillBatch int
}

// NewQueue creates a queue for a guild backed by the given store
func NewQueue(guildID string, cfg Config, store Store) *Queue {
	if cfg.Cap <= 0 {
		cfg.Cap = DefaultCap
	}
	if cfg.RefillBatch <= 0 {
		cfg.RefillBatch = DefaultRefillBatch
	}

	loggerFactory := logging.GetGlobalLoggerFactory()

	return &Queue{
		guildID:     guildID,
		cap:         cfg.Cap,
		refillBatch: cfg.RefillBatch,
		items:       make([]SongRecord, 0, cfg.Cap),
		loadedKeys:  make(map[string]struct{}),
		store:       store,
		logger:      loggerFactory.CreateQueueLogger(guildID),
	}
}

// Enqueue appends records, deduplicating against the in-memory window and
// within the batch itself. Records beyond the window cap are pushed to the
// overflow store. Returns how many were accepted and how many were dropped
// as duplicates.
func (q *Queue) Enqueue(songs []SongRecord) (added int, duplicates int, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	accepted := make([]SongRecord, 0, len(songs))
	for i := range songs {
		song := songs[i]
		if q.isDuplicateLocked(&song, accepted) {
			duplicates++
			q.logger.Debug("Dropped duplicate song", map[string]interface{}{
				"title":      song.Title,
				"stream_key": song.StreamKey,
			})
			continue
		}
		song.ResetPreload()
		accepted = append(accepted, song)
	}

	if len(accepted) == 0 {
		return 0, duplicates, nil
	}

	room := q.cap - len(q.items)
	if room < 0 {
		room = 0
	}

	var window, excess []SongRecord
	if len(accepted) <= room {
		window = accepted
	} else {
		window = accepted[:room]
		excess = accepted[room:]
	}

	for i := range window {
		q.items = append(q.items, window[i])
		q.loadedKeys[window[i].ID] = struct{}{}
	}
	added = len(window)

	if len(excess) > 0 {
		if pushErr := q.store.PushOverflow(q.guildID, excess); pushErr != nil {
			q.logger.Error("Failed to push overflow to store", pushErr, map[string]interface{}{
				"excess_count": len(excess),
			})
			return added, duplicates, faults.Wrap(faults.CategoryQueue, faults.CodeQueuePersistFailed,
				"failed to persist queue overflow", pushErr)
		}
		q.overflow += len(excess)
		added += len(excess)
	}

	q.logger.Info("Enqueued songs", map[string]interface{}{
		"accepted":   added,
		"duplicates": duplicates,
		"in_memory":  len(q.items),
		"overflow":   q.overflow,
	})
	return added, duplicates, nil
}

// Dequeue pops the head of the window. When the window has drained to half
// the cap and overflow remains, a batch is pulled back from the store.
func (q *Queue) Dequeue() *SongRecord {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}

	head := q.items[0]
	q.items = q.items[1:]

	q.refillLocked()
	return &head
}

// Peek returns a copy of the head without removing it
func (q *Queue) Peek() *SongRecord {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if len(q.items) == 0 {
		return nil
	}
	head := q.items[0]
	return &head
}

// UpdateHeadPreload stores fresh preload state on the head record if it still
// matches the given stream key.
func (q *Queue) UpdateHeadPreload(streamKey string, info PreloadInfo) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 || q.items[0].StreamKey != streamKey {
		return false
	}
	q.items[0].Preload = info
	return true
}

// refillLocked pulls overflow records back into the window. The batch is
// clamped so the window never exceeds cap. Records already seen this epoch
// are skipped; the store removes them either way.
func (q *Queue) refillLocked() {
	if q.overflow <= 0 || len(q.items) > q.cap/2 {
		return
	}

	n := q.refillBatch
	if room := q.cap - len(q.items); n > room {
		n = room
	}
	if n <= 0 {
		return
	}

	pulled, err := q.store.PopOverflow(q.guildID, n)
	if err != nil {
		q.logger.Error("Failed to refill from overflow store", err, map[string]interface{}{
			"requested": n,
		})
		return
	}

	q.overflow -= len(pulled)
	if q.overflow < 0 {
		q.overflow = 0
	}

	loaded := 0
	for i := range pulled {
		if _, seen := q.loadedKeys[pulled[i].ID]; seen {
			continue
		}
		pulled[i].ResetPreload()
		q.items = append(q.items, pulled[i])
		q.loadedKeys[pulled[i].ID] = struct{}{}
		loaded++
	}

	// Epoch over; the seen-set only guards against store cursor resets
	// while overflow is live.
	if q.overflow == 0 {
		q.loadedKeys = make(map[string]struct{})
		for i := range q.items {
			q.loadedKeys[q.items[i].ID] = struct{}{}
		}
	}

	q.logger.Debug("Refilled queue window", map[string]interface{}{
		"pulled":    len(pulled),
		"loaded":    loaded,
		"in_memory": len(q.items),
		"overflow":  q.overflow,
	})
}

// Shuffle permutes the in-memory window in place. Windows shorter than two
// records are left unchanged. Returns the previous head when the window
// changed so its preload artifact can be invalidated.
func (q *Queue) Shuffle() (prevHead *SongRecord, changed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) < 2 {
		return nil, false
	}

	old := q.items[0]
	rand.Shuffle(len(q.items), func(i, j int) {
		q.items[i], q.items[j] = q.items[j], q.items[i]
	})

	old.ResetPreload()
	for i := range q.items {
		q.items[i].ResetPreload()
	}

	q.logger.Info("Shuffled queue window", map[string]interface{}{
		"window_size": len(q.items),
	})
	return &old, true
}

// Clear empties the window, the overflow store, and the pending buffer, and
// persists the empty state.
func (q *Queue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	cleared := len(q.items) + q.overflow + len(q.pending)
	q.items = q.items[:0]
	q.pending = nil
	q.overflow = 0
	q.loadedKeys = make(map[string]struct{})

	if err := q.store.ClearGuild(q.guildID); err != nil {
		q.logger.Error("Failed to clear persisted queue state", err, nil)
		return faults.Wrap(faults.CategoryQueue, faults.CodeQueuePersistFailed,
			"failed to clear persisted queue state", err)
	}

	q.logger.Info("Cleared queue", map[string]interface{}{
		"items_cleared": cleared,
	})
	return nil
}

// PushPending stages songs that arrived before the session or lock was
// ready. Drained in insertion order once the engine accepts them.
func (q *Queue) PushPending(songs ...SongRecord) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending = append(q.pending, songs...)
	q.logger.Debug("Staged pending songs", map[string]interface{}{
		"staged":        len(songs),
		"pending_total": len(q.pending),
	})
}

// DrainPending removes and returns all staged songs in insertion order
func (q *Queue) DrainPending() []SongRecord {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}
	drained := q.pending
	q.pending = nil
	return drained
}

// PendingLen returns how many songs are staged
func (q *Queue) PendingLen() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.pending)
}

// Len returns the in-memory window size
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

// OverflowCount returns how many records sit in the overflow store
func (q *Queue) OverflowCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.overflow
}

// TotalCount returns window plus overflow
func (q *Queue) TotalCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items) + q.overflow
}

// IsEmpty reports whether both window and overflow are empty
func (q *Queue) IsEmpty() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items) == 0 && q.overflow == 0
}

// Window returns a copy of the in-memory records for rendering
func (q *Queue) Window() []SongRecord {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]SongRecord, len(q.items))
	copy(out, q.items)
	return out
}

// Persist writes the playback snapshot. The caller fills the session-owned
// fields; the queue contributes its own window.
func (q *Queue) Persist(snap Snapshot) error {
	q.mu.RLock()
	snap.Queue = make([]SongRecord, len(q.items))
	copy(snap.Queue, q.items)
	q.mu.RUnlock()

	if err := q.store.SaveSnapshot(q.guildID, snap); err != nil {
		q.logger.Error("Failed to persist queue snapshot", err, nil)
		return faults.Wrap(faults.CategoryQueue, faults.CodeQueuePersistFailed,
			"failed to persist queue snapshot", err)
	}
	return nil
}

// Restore seeds the window and overflow counter from a loaded snapshot.
// Records beyond cap are ignored; they remain in the store.
func (q *Queue) Restore(window []SongRecord, overflowCount int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = q.items[:0]
	q.loadedKeys = make(map[string]struct{})
	for i := range window {
		if len(q.items) >= q.cap {
			break
		}
		window[i].ResetPreload()
		q.items = append(q.items, window[i])
		q.loadedKeys[window[i].ID] = struct{}{}
	}
	if overflowCount < 0 {
		overflowCount = 0
	}
	q.overflow = overflowCount

	q.logger.Info("Restored queue state", map[string]interface{}{
		"in_memory": len(q.items),
		"overflow":  q.overflow,
	})
}

func (q *Queue) isDuplicateLocked(song *SongRecord, batch []SongRecord) bool {
	for i := range q.items {
		if song.Matches(&q.items[i]) {
			return true
		}
	}
	for i := range batch {
		if song.Matches(&batch[i]) {
			return true
		}
	}
	return false
}

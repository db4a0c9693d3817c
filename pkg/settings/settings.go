package settings

import (
	"container/list"
	"sync"
	"time"

	"github.com/latoulicious/groovebox/pkg/database/models"
	"github.com/latoulicious/groovebox/pkg/logging"
)

const (
	// DefaultTTL bounds how stale a cached settings row may get.
	DefaultTTL = 5 * time.Minute

	// DefaultCapacity bounds how many guilds are held in memory at once.
	DefaultCapacity = 50
)

type cacheEntry struct {
	guildID   string
	settings  *models.GuildSettings
	expiresAt time.Time
}

func (e *cacheEntry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// Cache is a read-through cache over the guild settings table. Entries
// expire after the TTL, and when the cache is full the oldest inserted
// entry is evicted first. Writes go straight to the store and drop the
// cached entry so the next read observes the persisted row.
type Cache struct {
	store    Store
	ttl      time.Duration
	capacity int
	logger   logging.Logger

	mu    sync.Mutex
	items map[string]*list.Element
	// order holds *cacheEntry in insertion order, oldest at the front.
	order *list.List

	now func() time.Time
}

// NewCache creates a settings cache backed by the given store. Non-positive
// ttl or capacity fall back to the defaults.
func NewCache(store Store, ttl time.Duration, capacity int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		store:    store,
		ttl:      ttl,
		capacity: capacity,
		logger:   logging.GetGlobalLoggerFactory().CreateLogger("settings"),
		items:    make(map[string]*list.Element),
		order:    list.New(),
		now:      time.Now,
	}
}

// Get returns the settings for a guild, loading and caching them on a miss.
// A miss creates the default row for guilds seen for the first time.
func (c *Cache) Get(guildID string) (*models.GuildSettings, error) {
	c.mu.Lock()
	if elem, ok := c.items[guildID]; ok {
		entry := elem.Value.(*cacheEntry)
		if !entry.expired(c.now()) {
			settings := entry.settings.Clone()
			c.mu.Unlock()
			return settings, nil
		}
		c.removeLocked(elem)
	}
	c.mu.Unlock()

	settings, err := c.store.GetOrCreate(guildID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.insertLocked(guildID, settings)
	c.mu.Unlock()

	return settings.Clone(), nil
}

// Save persists the settings row and invalidates the cached entry.
// The next Get reloads from the store.
func (c *Cache) Save(settings *models.GuildSettings) error {
	if err := c.store.Save(settings); err != nil {
		return err
	}
	c.Invalidate(settings.GuildID)
	return nil
}

// Invalidate drops the cached entry for a guild, if present.
func (c *Cache) Invalidate(guildID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[guildID]; ok {
		c.removeLocked(elem)
	}
}

// Size reports how many guilds are currently cached.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Prune removes expired entries and reports how many were dropped. Expiry
// is otherwise handled lazily on Get; the periodic sweep keeps guilds that
// went quiet from holding slots until capacity eviction reaches them.
func (c *Cache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	var next *list.Element
	for elem := c.order.Front(); elem != nil; elem = next {
		next = elem.Next()
		if elem.Value.(*cacheEntry).expired(now) {
			c.removeLocked(elem)
			removed++
		}
	}
	return removed
}

// Allowed evaluates the access rule for an interaction surface. The guild
// owner always passes. Role-restricted surfaces require at least one of the
// member's roles to be listed.
func (c *Cache) Allowed(guildID string, surface Surface, isOwner bool, roleIDs []string) (bool, error) {
	settings, err := c.Get(guildID)
	if err != nil {
		return false, err
	}
	return Allowed(settings, surface, isOwner, roleIDs), nil
}

// Allowed applies a surface access rule to a member. See Cache.Allowed.
func Allowed(settings *models.GuildSettings, surface Surface, isOwner bool, roleIDs []string) bool {
	if isOwner {
		return true
	}
	mode, allowed := accessRule(settings, surface)
	switch mode {
	case models.AccessServerOwner:
		return false
	case models.AccessRoles:
		return hasAnyRole(roleIDs, allowed)
	default:
		return true
	}
}

func accessRule(settings *models.GuildSettings, surface Surface) (string, models.StringList) {
	switch surface {
	case SurfaceSlashCommands:
		return settings.SlashCommandsAccess, settings.SlashCommandsRoles
	case SurfaceComponents:
		return settings.ComponentsAccess, settings.ComponentsRoles
	case SurfaceBotControls:
		return settings.BotControlsAccess, settings.BotControlsRoles
	default:
		return models.AccessEveryone, nil
	}
}

func hasAnyRole(memberRoles []string, allowed models.StringList) bool {
	if len(allowed) == 0 {
		return false
	}
	for _, role := range memberRoles {
		for _, want := range allowed {
			if role == want {
				return true
			}
		}
	}
	return false
}

func (c *Cache) insertLocked(guildID string, settings *models.GuildSettings) {
	if elem, ok := c.items[guildID]; ok {
		c.removeLocked(elem)
	}
	for c.order.Len() >= c.capacity {
		c.evictOldestLocked()
	}
	entry := &cacheEntry{
		guildID:   guildID,
		settings:  settings.Clone(),
		expiresAt: c.now().Add(c.ttl),
	}
	c.items[guildID] = c.order.PushBack(entry)
}

func (c *Cache) removeLocked(elem *list.Element) {
	entry := c.order.Remove(elem).(*cacheEntry)
	delete(c.items, entry.guildID)
}

func (c *Cache) evictOldestLocked() {
	oldest := c.order.Front()
	if oldest == nil {
		return
	}
	entry := oldest.Value.(*cacheEntry)
	c.logger.Debug("Evicting cached guild settings", map[string]interface{}{
		"guild_id": entry.guildID,
	})
	c.removeLocked(oldest)
}

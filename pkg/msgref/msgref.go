package msgref

import (
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/groovebox/pkg/database/models"
	"github.com/latoulicious/groovebox/pkg/logging"
)

// Ref locates a bot-owned message.
type Ref struct {
	ChannelID string
	MessageID string
}

// Manager maintains the (guild, role) → message map the UI edits against.
// Reads hit the in-memory cache first, then the store. Writes go through
// both; a store failure keeps the in-memory entry so the current process
// can still edit the right message.
type Manager struct {
	store  Store
	prober Prober
	logger logging.Logger

	mu    sync.RWMutex
	cache map[string]map[string]Ref
}

// NewManager creates a manager over a store and a platform prober. The
// prober may be nil, in which case Validate always reports not editable.
func NewManager(store Store, prober Prober) *Manager {
	return &Manager{
		store:  store,
		prober: prober,
		logger: logging.GetGlobalLoggerFactory().CreateLogger("msgref"),
		cache:  make(map[string]map[string]Ref),
	}
}

// Get returns the stored ref for a (guild, role) pair.
func (m *Manager) Get(guildID, role string) (Ref, bool) {
	m.mu.RLock()
	if roles, ok := m.cache[guildID]; ok {
		if ref, ok := roles[role]; ok {
			m.mu.RUnlock()
			return ref, true
		}
	}
	m.mu.RUnlock()

	stored, err := m.store.Get(guildID, role)
	if err != nil {
		m.logger.Warn("Failed to load message ref", map[string]interface{}{
			"guild_id": guildID,
			"role":     role,
			"error":    err.Error(),
		})
		return Ref{}, false
	}
	if stored == nil {
		return Ref{}, false
	}

	ref := Ref{ChannelID: stored.ChannelID, MessageID: stored.MessageID}
	m.putCache(guildID, role, ref)
	return ref, true
}

// Set records a new managed message and persists it. A persistence failure
// is logged and otherwise ignored; the in-memory entry wins for this
// process lifetime.
func (m *Manager) Set(guildID, role, channelID, messageID string) {
	ref := Ref{ChannelID: channelID, MessageID: messageID}
	m.putCache(guildID, role, ref)

	err := m.store.Upsert(&models.MessageRef{
		GuildID:   guildID,
		Type:      role,
		ChannelID: channelID,
		MessageID: messageID,
	})
	if err != nil {
		m.logger.Warn("Failed to persist message ref", map[string]interface{}{
			"guild_id":   guildID,
			"role":       role,
			"message_id": messageID,
			"error":      err.Error(),
		})
	}
}

// Clear removes one (guild, role) entry from cache and store.
func (m *Manager) Clear(guildID, role string) {
	m.mu.Lock()
	if roles, ok := m.cache[guildID]; ok {
		delete(roles, role)
		if len(roles) == 0 {
			delete(m.cache, guildID)
		}
	}
	m.mu.Unlock()

	if err := m.store.Delete(guildID, role); err != nil {
		m.logger.Warn("Failed to delete message ref", map[string]interface{}{
			"guild_id": guildID,
			"role":     role,
			"error":    err.Error(),
		})
	}
}

// ClearGuild removes every entry for a guild. Used on session teardown.
func (m *Manager) ClearGuild(guildID string) {
	m.mu.Lock()
	delete(m.cache, guildID)
	m.mu.Unlock()

	if err := m.store.DeleteAll(guildID); err != nil {
		m.logger.Warn("Failed to delete guild message refs", map[string]interface{}{
			"guild_id": guildID,
			"error":    err.Error(),
		})
	}
}

// Preload warms the cache for a guild from the store. Called when a
// session is created so the first UI edit does not need a round trip.
func (m *Manager) Preload(guildID string) {
	refs, err := m.store.GetAll(guildID)
	if err != nil {
		m.logger.Warn("Failed to preload message refs", map[string]interface{}{
			"guild_id": guildID,
			"error":    err.Error(),
		})
		return
	}
	for _, stored := range refs {
		m.putCache(guildID, stored.Type, Ref{
			ChannelID: stored.ChannelID,
			MessageID: stored.MessageID,
		})
	}
}

// Validate probes the platform for the stored message. It returns true
// when the message still exists and can be edited in place. A stale ref
// (message or channel deleted) is dropped so the caller sends a fresh
// message and stores the new id.
func (m *Manager) Validate(guildID, role string) bool {
	ref, ok := m.Get(guildID, role)
	if !ok || m.prober == nil {
		return false
	}

	_, err := m.prober.ChannelMessage(ref.ChannelID, ref.MessageID)
	if err == nil {
		return true
	}

	if isGone(err) {
		m.logger.Info("Dropping stale message ref", map[string]interface{}{
			"guild_id":   guildID,
			"role":       role,
			"message_id": ref.MessageID,
		})
		m.Clear(guildID, role)
		return false
	}

	// Transient failure. Keep the ref and let the caller try the edit.
	m.logger.Warn("Message ref probe failed", map[string]interface{}{
		"guild_id": guildID,
		"role":     role,
		"error":    err.Error(),
	})
	return true
}

// isGone reports whether the platform says the message can never be
// edited again.
func isGone(err error) bool {
	restErr, ok := err.(*discordgo.RESTError)
	if !ok || restErr.Message == nil {
		return false
	}
	switch restErr.Message.Code {
	case discordgo.ErrCodeUnknownMessage, discordgo.ErrCodeUnknownChannel:
		return true
	}
	return false
}

func (m *Manager) putCache(guildID, role string, ref Ref) {
	m.mu.Lock()
	defer m.mu.Unlock()
	roles, ok := m.cache[guildID]
	if !ok {
		roles = make(map[string]Ref)
		m.cache[guildID] = roles
	}
	roles[role] = ref
}

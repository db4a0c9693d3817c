package interactions

import (
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Handler processes one interaction. It must capture an acknowledgement
// through the context before returning; slow work belongs in a goroutine
// behind a deferral.
type Handler func(ctx *Context)

// Registry maps interactions to handlers. Commands are keyed by name,
// components and modals by custom id.
type Registry struct {
	mu         sync.RWMutex
	commands   map[string]Handler
	components map[string]Handler
	modals     map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{
		commands:   make(map[string]Handler),
		components: make(map[string]Handler),
		modals:     make(map[string]Handler),
	}
}

// Command registers a slash command handler.
func (r *Registry) Command(name string, h Handler) {
	r.mu.Lock()
	r.commands[name] = h
	r.mu.Unlock()
}

// Component registers a button or select menu handler.
func (r *Registry) Component(customID string, h Handler) {
	r.mu.Lock()
	r.components[customID] = h
	r.mu.Unlock()
}

// Modal registers a modal submit handler.
func (r *Registry) Modal(customID string, h Handler) {
	r.mu.Lock()
	r.modals[customID] = h
	r.mu.Unlock()
}

// resolve picks the handler for a parsed interaction and returns the key
// it dispatched on, for logging.
func (r *Registry) resolve(i *discordgo.Interaction) (Handler, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		name := i.ApplicationCommandData().Name
		h, ok := r.commands[name]
		return h, name, ok
	case discordgo.InteractionMessageComponent:
		id := i.MessageComponentData().CustomID
		h, ok := r.components[id]
		return h, id, ok
	case discordgo.InteractionModalSubmit:
		id := i.ModalSubmitData().CustomID
		h, ok := r.modals[id]
		return h, id, ok
	default:
		return nil, "", false
	}
}

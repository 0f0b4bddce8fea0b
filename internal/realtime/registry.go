package realtime

import (
	"sort"
	"sync"

	"github.com/gosuda/taskboard/internal/event"
)

// Handler receives decoded events for one topic. Handlers run on the
// client's executor and must not block.
type Handler func(event.Event)

// Registry is a simple map-based topic → handler table. Each topic has at
// most one handler; registering again replaces it.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register sets the handler for topic, replacing any previous one.
func (r *Registry) Register(topic string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[topic] = h
}

// Get returns the handler for topic, or false if none is registered.
func (r *Registry) Get(topic string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[topic]
	return h, ok
}

// Dispatch invokes the handler for topic with ev. It reports whether a
// handler was found; events for unknown topics are dropped.
func (r *Registry) Dispatch(topic string, ev event.Event) bool {
	h, ok := r.Get(topic)
	if !ok || h == nil {
		return false
	}
	h(ev)
	return true
}

// Clear removes every registration.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.handlers)
}

// Topics returns the registered topics in sorted order.
func (r *Registry) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	topics := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

package cache

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"calimport/internal/api"
)

const defaultCleanupInterval = 10 * time.Minute

// EventCache keeps imported events in memory, keyed by server event ID.
type EventCache struct {
	mu    sync.Mutex
	items *gocache.Cache
}

// NewEventCache creates a cache whose entries expire after ttl. A
// non-positive ttl keeps entries until they are deleted.
func NewEventCache(ttl time.Duration) *EventCache {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &EventCache{items: gocache.New(ttl, defaultCleanupInterval)}
}

// Upsert stores ev. An older copy of an event never replaces a newer one,
// so replaying the same response is harmless.
func (c *EventCache) Upsert(ev api.Event) {
	if ev.ID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.items.Get(ev.ID); ok && cur.(api.Event).ModifyTime > ev.ModifyTime {
		return
	}
	c.items.Set(ev.ID, ev, gocache.DefaultExpiration)
}

// Get returns the cached event with the given ID.
func (c *EventCache) Get(id string) (api.Event, bool) {
	v, ok := c.items.Get(id)
	if !ok {
		return api.Event{}, false
	}
	return v.(api.Event), true
}

// Delete drops an event.
func (c *EventCache) Delete(id string) {
	c.items.Delete(id)
}

// Len returns the number of cached events, expired ones included until the
// next cleanup.
func (c *EventCache) Len() int {
	return c.items.ItemCount()
}

// ByCalendar returns the cached events of calendarID.
func (c *EventCache) ByCalendar(calendarID string) []api.Event {
	var out []api.Event
	for _, item := range c.items.Items() {
		if ev := item.Object.(api.Event); ev.CalendarID == calendarID {
			out = append(out, ev)
		}
	}
	return out
}

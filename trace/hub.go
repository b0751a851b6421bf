package trace

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

type subscription struct {
	obs  Observer
	mask Flag
}

// Hub fans events out to subscribed observers. It is safe for concurrent use;
// subscribers may come and go while events are being published.
type Hub struct {
	subs   *xsync.MapOf[uint64, subscription]
	nextID atomic.Uint64
	mask   atomic.Uint32
}

var _ Observer = (*Hub)(nil)

// NewHub creates a hub that forwards only events matching mask.
func NewHub(mask Flag) *Hub {
	h := &Hub{subs: xsync.NewMapOf[uint64, subscription]()}
	h.mask.Store(uint32(mask))

	return h
}

// Subscribe registers obs for events matching mask and returns a function that removes it.
func (h *Hub) Subscribe(obs Observer, mask Flag) (unsubscribe func()) {
	id := h.nextID.Add(1)
	h.subs.Store(id, subscription{obs: obs, mask: mask})

	return func() { h.subs.Delete(id) }
}

// Observe forwards ev to every subscriber whose mask matches the event flag.
func (h *Hub) Observe(ev Event) {
	if Flag(h.mask.Load())&ev.Flag == 0 {
		return
	}

	h.subs.Range(func(_ uint64, sub subscription) bool {
		if sub.mask&ev.Flag != 0 {
			sub.obs.Observe(ev)
		}
		return true
	})
}

// SetMask changes the hub-wide filter.
func (h *Hub) SetMask(mask Flag) { h.mask.Store(uint32(mask)) }

// Mask returns the hub-wide filter.
func (h *Hub) Mask() Flag { return Flag(h.mask.Load()) }

// Len returns the number of subscribers.
func (h *Hub) Len() int { return h.subs.Size() }

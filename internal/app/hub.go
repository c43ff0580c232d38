package app

import (
	"sync"

	"scilab-live-service/internal/domain"
)

// feed fans change events out to per-session subscribers. It is the
// in-process realization of the persistence collaborator's
// change-notification contract: subscribe by session, optionally filtered to
// a set of tables, and receive {table, event_type, new_row} events.
type feed struct {
	mu   sync.RWMutex
	hubs map[string]*sessionHub
}

type sessionHub struct {
	mu          sync.Mutex
	subscribers map[chan domain.Event]tableFilter
}

type tableFilter map[domain.Table]struct{}

func newFeed() *feed {
	return &feed{hubs: make(map[string]*sessionHub)}
}

func (f *feed) hub(sessionID string) *sessionHub {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hubs[sessionID]
	if !ok {
		h = &sessionHub{subscribers: make(map[chan domain.Event]tableFilter)}
		f.hubs[sessionID] = h
	}
	return h
}

// subscribe registers a buffered channel for a session's events. An empty
// table list means all tables. The cancel func must be called to avoid leaks.
func (f *feed) subscribe(sessionID string, tables ...domain.Table) (<-chan domain.Event, func()) {
	var filter tableFilter
	if len(tables) > 0 {
		filter = make(tableFilter, len(tables))
		for _, t := range tables {
			filter[t] = struct{}{}
		}
	}

	h := f.hub(sessionID)
	ch := make(chan domain.Event, 16)

	h.mu.Lock()
	h.subscribers[ch] = filter
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

func (f *feed) publish(event domain.Event) {
	f.mu.RLock()
	h, ok := f.hubs[event.SessionID]
	f.mu.RUnlock()
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch, filter := range h.subscribers {
		if filter != nil {
			if _, want := filter[event.Table]; !want {
				continue
			}
		}
		select {
		case ch <- event:
		default:
			// Drop the oldest queued event so a slow consumer never blocks
			// the publisher; the feed promises delivery, not completeness.
			select {
			case <-ch:
			default:
			}
			ch <- event
		}
	}
}

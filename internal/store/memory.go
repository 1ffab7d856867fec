package store

import (
	"sync"
	"time"
)

// subscriberBuffer is the buffer of each subscription channel.
const subscriberBuffer = 100

type eventLog struct {
	events []Event
	lastID int64
}

// MemoryStore is an in-memory implementation of [Store].
//
// Subscribers receive appended events on buffered channels. Sends are
// non-blocking; a subscriber whose buffer is full misses the notification
// but can always catch up through [MemoryStore.Since].
type MemoryStore struct {
	mu   sync.RWMutex
	logs map[string]*eventLog

	subMu       sync.RWMutex
	subscribers map[string]map[chan Event]struct{}

	now func() time.Time
}

// NewMemoryStore creates an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		logs:        make(map[string]*eventLog),
		subscribers: make(map[string]map[chan Event]struct{}),
		now:         time.Now,
	}
}

// Append implements [Store]. A zero CreatedAt is set to the current time.
func (m *MemoryStore) Append(channel string, ev Event) Event {
	m.mu.Lock()
	log, ok := m.logs[channel]
	if !ok {
		log = &eventLog{}
		m.logs[channel] = log
	}
	log.lastID++
	ev.ID = log.lastID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = m.now().UTC()
	}
	log.events = append(log.events, ev)
	m.mu.Unlock()

	m.notifySubscribers(channel, ev)
	return ev
}

// Since implements [Store].
func (m *MemoryStore) Since(channel string, lastID int64, room string, limit int) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	log, ok := m.logs[channel]
	if !ok {
		return nil
	}

	var out []Event
	for _, ev := range log.events {
		if ev.ID <= lastID {
			continue
		}
		if room != "" && ev.Room != room {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// LastID implements [Store].
func (m *MemoryStore) LastID(channel string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if log, ok := m.logs[channel]; ok {
		return log.lastID
	}
	return 0
}

// Drop implements [Store].
func (m *MemoryStore) Drop(channel string) {
	m.mu.Lock()
	delete(m.logs, channel)
	m.mu.Unlock()

	m.subMu.Lock()
	defer m.subMu.Unlock()
	for ch := range m.subscribers[channel] {
		close(ch)
	}
	delete(m.subscribers, channel)
}

// Subscribe implements [Store].
func (m *MemoryStore) Subscribe(channel string) <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	m.subMu.Lock()
	subs, ok := m.subscribers[channel]
	if !ok {
		subs = make(map[chan Event]struct{})
		m.subscribers[channel] = subs
	}
	subs[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe implements [Store].
func (m *MemoryStore) Unsubscribe(channel string, ch <-chan Event) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	subs := m.subscribers[channel]
	for subCh := range subs {
		if subCh == ch {
			delete(subs, subCh)
			close(subCh)
			break
		}
	}
	if len(subs) == 0 {
		delete(m.subscribers, channel)
	}
}

func (m *MemoryStore) notifySubscribers(channel string, ev Event) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers[channel] {
		select {
		case ch <- ev:
		default:
			// slow subscriber, it can catch up with Since
		}
	}
}

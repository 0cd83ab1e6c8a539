// Package liveevents fans accepted usage reports out to subscribers of an
// entity type, keeping a short backlog for late joiners.
package liveevents

import (
	"errors"
	"strings"
	"sync"
)

const (
	SourceReport = "report"
	SourceRollup = "rollup"
)

const (
	DefaultBufferSize       = 50
	DefaultSubscriberBuffer = 16
)

var (
	ErrHubUnavailable    = errors.New("hub_unavailable")
	ErrInvalidEntityType = errors.New("invalid_entity_type")
)

type UsageEvent struct {
	EntityType   string `json:"entityType"`
	EntityID     string `json:"entityId"`
	Date         string `json:"date"`
	DailyCount   int64  `json:"dailyCount"`
	WeeklyCount  int64  `json:"weeklyCount"`
	MonthlyCount int64  `json:"monthlyCount"`
	Source       string `json:"source"`
}

type Hub struct {
	mu               sync.RWMutex
	streams          map[string]*stream
	bufferSize       int
	subscriberBuffer int
}

type stream struct {
	mu     sync.Mutex
	buffer []UsageEvent
	subs   map[uint64]chan UsageEvent
	nextID uint64
}

type Subscription struct {
	hub        *Hub
	entityType string
	id         uint64
	ch         chan UsageEvent
	once       sync.Once
}

func NewHub() *Hub {
	return &Hub{
		streams:          make(map[string]*stream),
		bufferSize:       DefaultBufferSize,
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

// Publish delivers event to current subscribers of its entity type. Slow
// subscribers miss events instead of blocking the publisher. Types nobody
// listens to are not buffered.
func (h *Hub) Publish(event UsageEvent) {
	if h == nil {
		return
	}
	key := streamKey(event.EntityType)
	if key == "" {
		return
	}
	h.mu.RLock()
	s := h.streams[key]
	h.mu.RUnlock()
	if s == nil {
		return
	}

	s.mu.Lock()
	s.buffer = append(s.buffer, event)
	if len(s.buffer) > h.bufferSize {
		s.buffer = s.buffer[len(s.buffer)-h.bufferSize:]
	}
	subs := make([]chan UsageEvent, 0, len(s.subs))
	for _, ch := range s.subs {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe registers for events of entityType and returns the buffered
// backlog, oldest first.
func (h *Hub) Subscribe(entityType string) (*Subscription, []UsageEvent, error) {
	if h == nil {
		return nil, nil, ErrHubUnavailable
	}
	key := streamKey(entityType)
	if key == "" {
		return nil, nil, ErrInvalidEntityType
	}

	s := h.ensureStream(key)
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	ch := make(chan UsageEvent, h.subscriberBuffer)
	s.subs[id] = ch
	backlog := append([]UsageEvent(nil), s.buffer...)
	s.mu.Unlock()

	return &Subscription{hub: h, entityType: key, id: id, ch: ch}, backlog, nil
}

func (h *Hub) ensureStream(key string) *stream {
	h.mu.RLock()
	current := h.streams[key]
	h.mu.RUnlock()
	if current != nil {
		return current
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	current = h.streams[key]
	if current == nil {
		current = &stream{subs: make(map[uint64]chan UsageEvent)}
		h.streams[key] = current
	}
	return current
}

// unsubscribe drops the stream once its last subscriber leaves, backlog
// included.
func (h *Hub) unsubscribe(key string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.streams[key]
	if s == nil {
		return
	}
	s.mu.Lock()
	delete(s.subs, id)
	empty := len(s.subs) == 0
	s.mu.Unlock()
	if empty {
		delete(h.streams, key)
	}
}

func (s *Subscription) Events() <-chan UsageEvent {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.entityType, s.id)
	})
}

func streamKey(entityType string) string {
	return strings.ToLower(strings.TrimSpace(entityType))
}

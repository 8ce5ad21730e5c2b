package engine

import (
	"sync"
	"time"

	"github.com/germanamz/guibridge/pkg/dispatch"
)

// EventKind identifies the type of engine event.
type EventKind string

const (
	EventConnectionStateChanged EventKind = "connection_state_changed"
	EventError                  EventKind = "error"

	EventIntentReceived      = EventKind(dispatch.KindIntentReceived)
	EventListeningChanged    = EventKind(dispatch.KindListeningChanged)
	EventSpeakingChanged     = EventKind(dispatch.KindSpeakingChanged)
	EventCurrentSkillChanged = EventKind(dispatch.KindCurrentSkillChanged)
	EventNotUnderstood       = EventKind(dispatch.KindNotUnderstood)
	EventStopped             = EventKind(dispatch.KindStopped)
	EventFallbackText        = EventKind(dispatch.KindFallbackText)
	EventTriggered           = EventKind(dispatch.KindEventTriggered)
	EventDelegateCreated     = EventKind(dispatch.KindDelegateCreated)
	EventActiveSkillsChanged = EventKind(dispatch.KindActiveSkillsChanged)
	EventSessionChanged      = EventKind(dispatch.KindSessionChanged)
)

// Event is an immutable notification of engine activity. Data holds the
// payload: a connection.Status, a bool for listening/speaking changes, or one
// of the dispatch payload types.
type Event struct {
	Kind      EventKind
	Skill     string
	Timestamp time.Time
	Data      any
}

// Subscription receives events from an EventBus.
type Subscription struct {
	C  <-chan Event
	ch chan Event
}

// EventBus fans out events to all active subscribers. It is safe for
// concurrent use.
type EventBus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// NewEventBus creates an EventBus ready for use.
func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[*Subscription]struct{}),
	}
}

// Subscribe creates a new subscription with the given channel buffer size.
// The caller should read from sub.C and eventually call Unsubscribe.
func (b *EventBus) Subscribe(bufSize int) *Subscription {
	ch := make(chan Event, bufSize)
	sub := &Subscription{C: ch, ch: ch}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes the subscription and closes its channel.
func (b *EventBus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

// Publish sends an event to all subscribers. A subscriber whose buffer is full
// misses the event; the dispatch loop never waits on a slow frontend.
func (b *EventBus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		select {
		case sub.ch <- e:
		default:
		}
	}
}

// Close unsubscribes every subscriber, closing their channels.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.ch)
	}
}

func eventFromNotice(n dispatch.Notice) Event {
	return Event{
		Kind:      EventKind(n.Kind),
		Skill:     n.Skill,
		Timestamp: time.Now(),
		Data:      n.Data,
	}
}

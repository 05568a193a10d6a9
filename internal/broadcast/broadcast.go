// Package broadcast fans out committed mutation events to the connections
// subscribed to the affected project, with bounded per-connection queues
// and drop-on-overflow backpressure.
package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/pmcore/pmcored/internal/events"
	"github.com/pmcore/pmcored/internal/types"
)

// DefaultQueueDepth is the default bound on a subscriber's outbound event
// queue, per connection per subscription.
const DefaultQueueDepth = 100

// Broadcaster holds the process-wide subscriber index: project_id -> the
// set of connections following it, and the reverse index used to drop a
// connection's subscriptions in one pass on Closed.
type Broadcaster struct {
	mu            sync.RWMutex
	byProject     map[types.ID]map[string]chan *events.Event
	byConn        map[string]map[types.ID]bool
	queueDepth    int
	droppedEvents atomic.Int64
}

// New builds a Broadcaster whose per-subscriber queues hold queueDepth
// events before the broadcaster drops the connection as a SlowSubscriber.
func New(queueDepth int) *Broadcaster {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	return &Broadcaster{
		byProject:  make(map[types.ID]map[string]chan *events.Event),
		byConn:     make(map[string]map[types.ID]bool),
		queueDepth: queueDepth,
	}
}

// Subscribe registers connID as a subscriber of projectID, returning the
// channel its events will arrive on. Subscribing twice to the same project
// is a no-op and returns the existing channel.
func (b *Broadcaster) Subscribe(connID string, projectID types.ID) <-chan *events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.byProject[projectID]
	if !ok {
		subs = make(map[string]chan *events.Event)
		b.byProject[projectID] = subs
	}
	ch, ok := subs[connID]
	if !ok {
		ch = make(chan *events.Event, b.queueDepth)
		subs[connID] = ch
	}

	projects, ok := b.byConn[connID]
	if !ok {
		projects = make(map[types.ID]bool)
		b.byConn[connID] = projects
	}
	projects[projectID] = true

	return ch
}

// Unsubscribe removes connID from projectID's subscriber set.
func (b *Broadcaster) Unsubscribe(connID string, projectID types.ID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unsubscribeLocked(connID, projectID)
}

func (b *Broadcaster) unsubscribeLocked(connID string, projectID types.ID) {
	if subs, ok := b.byProject[projectID]; ok {
		delete(subs, connID)
		if len(subs) == 0 {
			delete(b.byProject, projectID)
		}
	}
	if projects, ok := b.byConn[connID]; ok {
		delete(projects, projectID)
		if len(projects) == 0 {
			delete(b.byConn, connID)
		}
	}
}

// UnsubscribeAll drops every subscription connID holds. Called when a
// connection transitions to Closed so its queues don't outlive it.
func (b *Broadcaster) UnsubscribeAll(connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for projectID := range b.byConn[connID] {
		if subs, ok := b.byProject[projectID]; ok {
			delete(subs, connID)
			if len(subs) == 0 {
				delete(b.byProject, projectID)
			}
		}
	}
	delete(b.byConn, connID)
}

// Publish delivers ev to every connection subscribed to ev.ProjectID. A
// subscriber whose queue is full is dropped from every project it follows
// and returned in full; Publish never blocks on a slow subscriber.
func (b *Broadcaster) Publish(ev *events.Event) (dropped []string) {
	b.mu.RLock()
	subs := b.byProject[ev.ProjectID]
	recipients := make(map[string]chan *events.Event, len(subs))
	for connID, ch := range subs {
		recipients[connID] = ch
	}
	b.mu.RUnlock()

	for connID, ch := range recipients {
		select {
		case ch <- ev:
		default:
			b.droppedEvents.Add(1)
			dropped = append(dropped, connID)
		}
	}

	if len(dropped) > 0 {
		b.mu.Lock()
		for _, connID := range dropped {
			for projectID := range b.byConn[connID] {
				b.unsubscribeLocked(connID, projectID)
			}
		}
		b.mu.Unlock()
	}

	return dropped
}

// BroadcastAll delivers ev to every connection subscribed to any project,
// used for server-wide notices such as ServerClosing. Slow subscribers are
// dropped the same way Publish drops them, but shutdown proceeds regardless.
func (b *Broadcaster) BroadcastAll(ev *events.Event) {
	b.mu.RLock()
	seen := make(map[string]chan *events.Event)
	for _, subs := range b.byProject {
		for connID, ch := range subs {
			seen[connID] = ch
		}
	}
	b.mu.RUnlock()

	var dropped []string
	for connID, ch := range seen {
		select {
		case ch <- ev:
		default:
			b.droppedEvents.Add(1)
			dropped = append(dropped, connID)
		}
	}

	if len(dropped) > 0 {
		b.mu.Lock()
		for _, connID := range dropped {
			for projectID := range b.byConn[connID] {
				b.unsubscribeLocked(connID, projectID)
			}
		}
		b.mu.Unlock()
	}
}

// DroppedEvents returns the count of events dropped to backpressure since
// the broadcaster was created.
func (b *Broadcaster) DroppedEvents() int64 {
	return b.droppedEvents.Load()
}

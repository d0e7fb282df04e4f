package host

import "sync"

// subscriberBufferSize is the channel buffer for each event subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// EventBroker fans out committed events to subscribers, keyed by event name.
// It is a broadcast channel only: there is no backlog, so a subscriber sees
// events published after it subscribed and nothing earlier.
// It is safe for concurrent use.
type EventBroker struct {
	mu     sync.Mutex
	topics map[string]*eventTopic
	closed bool
}

type eventTopic struct {
	subs   map[int]chan string
	nextID int
}

// NewEventBroker creates a new event broker.
func NewEventBroker() *EventBroker {
	return &EventBroker{
		topics: make(map[string]*eventTopic),
	}
}

// Subscribe returns a channel that receives events published under name and
// an unsubscribe function. After Close the returned channel is already closed.
func (b *EventBroker) Subscribe(name string) (<-chan string, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan string, subscriberBufferSize)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	t, ok := b.topics[name]
	if !ok {
		t = &eventTopic{subs: make(map[int]chan string)}
		b.topics[name] = t
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(sub)
		}
	}
}

// Publish sends an event to all subscribers of name. It reports how many
// subscribers received it; full buffers drop the event for that subscriber.
func (b *EventBroker) Publish(name, event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[name]
	if !ok || b.closed {
		return 0
	}

	delivered := 0
	for _, ch := range t.subs {
		select {
		case ch <- event:
			delivered++
		default:
			// Drop for slow subscribers so commits never block on readers.
		}
	}
	return delivered
}

// Subscribers returns the number of live subscribers for name.
func (b *EventBroker) Subscribers(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t, ok := b.topics[name]; ok {
		return len(t.subs)
	}
	return 0
}

// Close ends every subscription. Subsequent Subscribe calls return a closed channel.
func (b *EventBroker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for _, t := range b.topics {
		for id, ch := range t.subs {
			close(ch)
			delete(t.subs, id)
		}
	}
}

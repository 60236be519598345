package eventbus

import (
	"sync"
)

// EventBus is a simple typed event bus with topic-based publish/subscribe.
// Delivery is best-effort: a subscriber with a full queue misses the message.
type EventBus[T any] interface {
	Publish(topic string, message T)
	Subscribe(topic string, bufSize int, filter func(T) bool) Subscriber[T]
}

type Subscriber[T any] interface {
	C() <-chan T
	Unsubscribe()
}

type eventBus[T any] struct {
	subscribers map[string]map[*subscriber[T]]func(T) bool
	mu          sync.Mutex
}

type subscriber[T any] struct {
	mu     sync.Mutex
	ch     chan T
	closed bool
}

// MatchAll is a filter accepting every message.
func MatchAll[T any](T) bool {
	return true
}

// New returns an initialized EventBus.
func New[T any]() EventBus[T] {
	return &eventBus[T]{
		subscribers: make(map[string]map[*subscriber[T]]func(T) bool),
	}
}

// Publish a message to a topic without blocking.
func (eb *eventBus[T]) Publish(topic string, message T) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs, ok := eb.subscribers[topic]
	if !ok {
		return
	}

	for sub, filter := range subs {
		sub.mu.Lock()
		// Clean up closed subscribers
		if sub.closed {
			sub.mu.Unlock()
			delete(subs, sub)
			continue
		}

		if filter(message) {
			select {
			case sub.ch <- message:
			default:
			}
		}
		sub.mu.Unlock()
	}
}

// Subscribe to a topic with a filter function. Returns a channel with given buffer size.
func (eb *eventBus[T]) Subscribe(topic string, bufSize int, filter func(T) bool) Subscriber[T] {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	sub := &subscriber[T]{
		ch: make(chan T, bufSize),
	}

	if _, ok := eb.subscribers[topic]; !ok {
		eb.subscribers[topic] = make(map[*subscriber[T]]func(T) bool)
	}
	eb.subscribers[topic][sub] = filter

	return sub
}

func (s *subscriber[T]) C() <-chan T {
	return s.ch
}

func (s *subscriber[T]) Unsubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	close(s.ch)
	s.closed = true
}

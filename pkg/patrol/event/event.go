// Package event provides synchronous typed observer feeds.
//
// A Feed holds an ordered set of listener callbacks invoked synchronously,
// in subscription order, each time a value is published. There is no global
// bus and no background delivery goroutine: publishers pay the cost of
// notifying their own listeners, which keeps event ordering identical to
// state-change ordering.
package event

import (
	"sync"
	"sync/atomic"
)

// Subscription represents an active listener registration.
type Subscription interface {
	// Unsubscribe removes the listener. Safe to call more than once.
	Unsubscribe()

	// Pause temporarily stops delivery to this listener.
	Pause()

	// Resume continues delivery after Pause.
	Resume()

	// IsPaused reports whether the subscription is paused.
	IsPaused() bool
}

// Feed is a synchronous fan-out of values of type T.
// The zero value is not usable; create feeds with NewFeed.
type Feed[T any] struct {
	mu     sync.Mutex
	subs   []*subscription[T]
	nextID int64
}

// NewFeed creates an empty feed.
func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{}
}

// subscription is the internal Subscription implementation.
type subscription[T any] struct {
	id     int64
	fn     func(T)
	paused atomic.Bool
	feed   *Feed[T]
}

// Subscribe registers fn to be called on every published value.
// Listeners are invoked in subscription order.
func (f *Feed[T]) Subscribe(fn func(T)) Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	sub := &subscription[T]{id: f.nextID, fn: fn, feed: f}
	f.subs = append(f.subs, sub)
	return sub
}

// Publish delivers v to every non-paused listener, synchronously and in
// subscription order. Listeners registered during delivery do not receive v.
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	subs := make([]*subscription[T], len(f.subs))
	copy(subs, f.subs)
	f.mu.Unlock()

	for _, sub := range subs {
		if sub.paused.Load() {
			continue
		}
		sub.fn(v)
	}
}

// Len returns the number of active subscriptions.
func (f *Feed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Unsubscribe removes the subscription from its feed.
func (s *subscription[T]) Unsubscribe() {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()

	for i, sub := range s.feed.subs {
		if sub.id == s.id {
			s.feed.subs = append(s.feed.subs[:i], s.feed.subs[i+1:]...)
			return
		}
	}
}

// Pause temporarily stops delivery.
func (s *subscription[T]) Pause() {
	s.paused.Store(true)
}

// Resume continues delivery after pause.
func (s *subscription[T]) Resume() {
	s.paused.Store(false)
}

// IsPaused reports whether the subscription is paused.
func (s *subscription[T]) IsPaused() bool {
	return s.paused.Load()
}

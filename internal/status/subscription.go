package status

import (
	"sync"

	"github.com/netysoft/Rag-ChatbotIA/internal/models"
)

// Subscription receives a Transition for every successful mutation of a Store.
type Subscription struct {
	store *Store
	ch    chan models.Transition

	// Set for subscriptions created by SubscribeQueued. Events are parked in
	// pending and handed to ch by pump, which owns closing ch.
	queued  bool
	qmu     sync.Mutex
	cond    *sync.Cond
	pending []models.Transition
	ending  bool
	stopped bool
	stop    chan struct{}
}

// Subscribe registers a new subscriber. A closed store returns a subscription
// whose channel is already closed.
func (s *Store) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	sub := &Subscription{store: s, ch: make(chan models.Transition, buffer)}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(sub.ch)
		return sub
	}
	s.subs[sub] = struct{}{}
	return sub
}

// SubscribeQueued registers a subscriber that never misses a transition.
// Events the reader has not taken yet are queued without bound, so a slow
// reader delays delivery instead of losing it. When the store closes, the
// queue is drained before the channel is closed.
func (s *Store) SubscribeQueued(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	sub := &Subscription{
		store:  s,
		ch:     make(chan models.Transition, buffer),
		queued: true,
		stop:   make(chan struct{}),
	}
	sub.cond = sync.NewCond(&sub.qmu)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		sub.stopped = true
		close(sub.stop)
		close(sub.ch)
		return sub
	}
	s.subs[sub] = struct{}{}
	go sub.pump()
	return sub
}

// C returns the notification channel. It is closed when the subscription or
// the store is closed.
func (sub *Subscription) C() <-chan models.Transition {
	return sub.ch
}

// Close unregisters the subscription. Safe to call more than once. Events
// still queued on a queued subscription are discarded.
func (sub *Subscription) Close() {
	s := sub.store
	s.mu.Lock()
	_, ok := s.subs[sub]
	delete(s.subs, sub)
	if ok && !sub.queued {
		close(sub.ch)
	}
	s.mu.Unlock()

	if sub.queued {
		sub.qmu.Lock()
		if !sub.stopped {
			sub.stopped = true
			sub.pending = nil
			close(sub.stop)
			sub.cond.Signal()
		}
		sub.qmu.Unlock()
	}
}

// enqueue is called by the store with s.mu held.
func (sub *Subscription) enqueue(t models.Transition) {
	sub.qmu.Lock()
	if !sub.stopped {
		sub.pending = append(sub.pending, t)
		sub.cond.Signal()
	}
	sub.qmu.Unlock()
}

// finish is called by the store with s.mu held once the store is closed.
func (sub *Subscription) finish() {
	sub.qmu.Lock()
	sub.ending = true
	sub.cond.Signal()
	sub.qmu.Unlock()
}

func (sub *Subscription) pump() {
	defer close(sub.ch)
	for {
		sub.qmu.Lock()
		for len(sub.pending) == 0 && !sub.ending && !sub.stopped {
			sub.cond.Wait()
		}
		if sub.stopped || len(sub.pending) == 0 {
			sub.qmu.Unlock()
			return
		}
		batch := sub.pending
		sub.pending = nil
		sub.qmu.Unlock()

		for _, t := range batch {
			select {
			case sub.ch <- t:
			case <-sub.stop:
				return
			}
		}
	}
}

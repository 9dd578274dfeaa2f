package stream

import (
	"sync"
	"sync/atomic"

	"github.com/skarlatos/foliograph/internal/packet"
)

// Feed fans packets out to subscribers synchronously, in publish order.
// Subscribers receive each packet exactly once; a cancelled subscription is
// never invoked again, checked immediately before every delivery.
type Feed struct {
	mu   sync.Mutex
	subs []*Subscription
}

type Subscription struct {
	feed      *Feed
	fn        func(*packet.Packet)
	cancelled atomic.Bool
}

func NewFeed() *Feed {
	return &Feed{}
}

func (f *Feed) Subscribe(fn func(*packet.Packet)) *Subscription {
	s := &Subscription{feed: f, fn: fn}
	f.mu.Lock()
	f.subs = append(f.subs, s)
	f.mu.Unlock()
	return s
}

// Cancel stops delivery. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s == nil || !s.cancelled.CompareAndSwap(false, true) {
		return
	}
	f := s.feed
	f.mu.Lock()
	for i, sub := range f.subs {
		if sub == s {
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			break
		}
	}
	f.mu.Unlock()
}

// Publish delivers p to every live subscriber in subscription order.
func (f *Feed) Publish(p *packet.Packet) {
	f.mu.Lock()
	snapshot := make([]*Subscription, len(f.subs))
	copy(snapshot, f.subs)
	f.mu.Unlock()

	for _, s := range snapshot {
		if s.cancelled.Load() {
			continue
		}
		s.fn(p)
	}
}

// CancelAll drops every subscriber, for coordinator resets.
func (f *Feed) CancelAll() {
	f.mu.Lock()
	subs := f.subs
	f.subs = nil
	f.mu.Unlock()
	for _, s := range subs {
		s.cancelled.Store(true)
	}
}

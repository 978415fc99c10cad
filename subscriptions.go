package nipc

import (
	"sync"

	"github.com/nivrem/nipc/pubsub"
)

func newSubscriptions(log Logger) *subscriptions {
	return &subscriptions{
		log:  log,
		subs: make(map[int]pubsub.Subscription),
	}
}

// subscriptions tracks the live subscriptions of a node so closing the node
// can drop them all at once.
type subscriptions struct {
	log Logger

	m      sync.Mutex
	nextID int
	subs   map[int]pubsub.Subscription
}

// track registers a subscription and returns a wrapper that removes it from
// the registry when unsubscribed.
func (s *subscriptions) track(sub pubsub.Subscription) pubsub.Subscription {
	s.m.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = sub
	s.m.Unlock()

	return &trackedSub{reg: s, id: id, sub: sub}
}

func (s *subscriptions) remove(id int) pubsub.Subscription {
	s.m.Lock()
	defer s.m.Unlock()

	sub, ok := s.subs[id]
	if !ok {
		return nil
	}
	delete(s.subs, id)
	return sub
}

// unsubscribeAll drops all tracked subscriptions.
func (s *subscriptions) unsubscribeAll() {
	s.m.Lock()
	subs := s.subs
	s.subs = make(map[int]pubsub.Subscription)
	s.m.Unlock()

	for _, sub := range subs {
		if r := sub.Unsubscribe(); r != nil {
			s.log.Errorf("failed to unsubscribe: %v", r)
		}
	}
}

type trackedSub struct {
	reg *subscriptions
	id  int
	sub pubsub.Subscription
}

// Unsubscribe implements the pubsub.Subscription interface.
func (s *trackedSub) Unsubscribe() error {
	if sub := s.reg.remove(s.id); sub != nil {
		return sub.Unsubscribe()
	}
	return nil
}

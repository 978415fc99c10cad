// Package memory provides a process-local pubsub transport. It is used for
// tests and single process deployments where no broker is available.
package memory

import (
	"context"
	"math/rand"
	"sync"

	"github.com/nivrem/nipc/pubsub"
)

// PubSub is a process-local transport implementing both the pubsub.Publisher
// and the pubsub.Subscriber interface. Subjects are matched exactly, without
// wildcards. Subscribers sharing a queue name form a queue group: each message
// is delivered to one member of the group.
type PubSub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]*subscription

	wg sync.WaitGroup
}

// New creates an in-memory pubsub transport.
func New() *PubSub {
	return &PubSub{subs: make(map[string]map[int]*subscription)}
}

var _ pubsub.Publisher = (*PubSub)(nil)
var _ pubsub.Subscriber = (*PubSub)(nil)

// Publish implements the pubsub.Publisher interface.
func (m *PubSub) Publish(msg pubsub.Message) error {
	msg.Data = append([]byte(nil), msg.Data...)

	m.mu.RLock()
	targets := m.targets(msg.Subject)
	// senders register under the lock: once Unsubscribe has removed the
	// subscription, no uncounted sender can appear.
	for _, sub := range targets {
		m.wg.Add(1)
		sub.senders.Add(1)
	}
	m.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.ch <- msg:
		case <-sub.done:
			m.wg.Done()
		}
		sub.senders.Done()
	}
	return nil
}

// targets selects the subscriptions a message on the given subject is
// delivered to. Called with the read lock held.
func (m *PubSub) targets(subject string) []*subscription {
	var (
		targets []*subscription
		queues  map[string][]*subscription
	)
	for _, sub := range m.subs[subject] {
		if sub.queue == "" {
			targets = append(targets, sub)
			continue
		}
		if queues == nil {
			queues = make(map[string][]*subscription)
		}
		queues[sub.queue] = append(queues[sub.queue], sub)
	}
	for _, members := range queues {
		// nolint: gosec
		targets = append(targets, members[rand.Intn(len(members))])
	}
	return targets
}

// Subscribe implements the pubsub.Subscriber interface. The handler is called
// sequentially per subscription, preserving message order.
func (m *PubSub) Subscribe(subject, queue string, handler pubsub.Handler) (pubsub.Subscription, error) {
	return m.subscribe(subject, queue, handler, false)
}

// SubscribeAsync implements the pubsub.Subscriber interface. The handler is
// called in a new goroutine per message.
func (m *PubSub) SubscribeAsync(subject, queue string, handler pubsub.Handler) (pubsub.Subscription, error) {
	return m.subscribe(subject, queue, handler, true)
}

func (m *PubSub) subscribe(subject, queue string, handler pubsub.Handler, async bool) (pubsub.Subscription, error) {
	sub := &subscription{
		bus:     m,
		subject: subject,
		queue:   queue,
		handler: handler,
		async:   async,
		ch:      make(chan pubsub.Message, 64),
		done:    make(chan struct{}),
	}

	m.mu.Lock()
	if _, ok := m.subs[subject]; !ok {
		m.subs[subject] = make(map[int]*subscription)
	}
	sub.id = m.nextID
	m.nextID++
	m.subs[subject][sub.id] = sub
	m.mu.Unlock()

	go sub.loop()
	return sub, nil
}

// Flush implements the pubsub.Subscriber interface. It blocks until all
// messages published before the call have been handled. Must not be called
// from inside a handler.
func (m *PubSub) Flush() error {
	m.wg.Wait()
	return nil
}

type subscription struct {
	bus     *PubSub
	id      int
	subject string
	queue   string
	handler pubsub.Handler
	async   bool

	ch        chan pubsub.Message
	done      chan struct{}
	senders   sync.WaitGroup
	closeOnce sync.Once
}

// Unsubscribe implements the pubsub.Subscription interface.
func (s *subscription) Unsubscribe() error {
	s.closeOnce.Do(func() {
		s.bus.mu.Lock()
		if subs, ok := s.bus.subs[s.subject]; ok {
			delete(subs, s.id)
			if len(subs) == 0 {
				delete(s.bus.subs, s.subject)
			}
		}
		s.bus.mu.Unlock()

		close(s.done)
	})
	return nil
}

func (s *subscription) loop() {
	for {
		select {
		case msg := <-s.ch:
			s.dispatch(msg)
		case <-s.done:
			// closing done resolves every pending send, so after the wait
			// no further message can reach the channel
			s.senders.Wait()
			s.drain()
			return
		}
	}
}

// drain discards messages enqueued before the subscription was removed.
func (s *subscription) drain() {
	for {
		select {
		case <-s.ch:
			s.bus.wg.Done()
		default:
			return
		}
	}
}

func (s *subscription) dispatch(msg pubsub.Message) {
	if s.async {
		go func() {
			defer s.bus.wg.Done()
			s.handler(context.Background(), msg)
		}()
		return
	}
	defer s.bus.wg.Done()
	s.handler(context.Background(), msg)
}

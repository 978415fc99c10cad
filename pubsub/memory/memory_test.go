package memory_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/nivrem/nipc/pubsub"
	"github.com/nivrem/nipc/pubsub/memory"
)

func TestFanOut(t *testing.T) {
	asrt := is.New(t)
	bus := memory.New()

	var (
		m     sync.Mutex
		got   []string
		count int
	)
	handler := func(name string) pubsub.Handler {
		return func(_ context.Context, msg pubsub.Message) {
			m.Lock()
			defer m.Unlock()
			got = append(got, name+":"+string(msg.Data))
			count++
		}
	}

	_, err := bus.Subscribe("events.test", "", handler("a"))
	asrt.NoErr(err)
	_, err = bus.Subscribe("events.test", "", handler("b"))
	asrt.NoErr(err)

	asrt.NoErr(bus.Publish(pubsub.Message{Subject: "events.test", Data: []byte("hello")}))
	asrt.NoErr(bus.Flush())

	m.Lock()
	defer m.Unlock()
	asrt.Equal(count, 2)
	asrt.True(contains(got, "a:hello"))
	asrt.True(contains(got, "b:hello"))
}

func TestExactSubjectMatch(t *testing.T) {
	asrt := is.New(t)
	bus := memory.New()

	var calls int64
	_, err := bus.Subscribe("events.test", "", func(_ context.Context, _ pubsub.Message) {
		atomic.AddInt64(&calls, 1)
	})
	asrt.NoErr(err)

	asrt.NoErr(bus.Publish(pubsub.Message{Subject: "events.other", Data: []byte("x")}))
	asrt.NoErr(bus.Publish(pubsub.Message{Subject: "events", Data: []byte("x")}))
	asrt.NoErr(bus.Publish(pubsub.Message{Subject: "events.test", Data: []byte("x")}))
	asrt.NoErr(bus.Flush())

	asrt.Equal(atomic.LoadInt64(&calls), int64(1))
}

func TestQueueGroup(t *testing.T) {
	asrt := is.New(t)
	bus := memory.New()

	var calls int64
	handler := func(_ context.Context, _ pubsub.Message) {
		atomic.AddInt64(&calls, 1)
	}

	_, err := bus.Subscribe("work.items", "workers", handler)
	asrt.NoErr(err)
	_, err = bus.Subscribe("work.items", "workers", handler)
	asrt.NoErr(err)
	_, err = bus.Subscribe("work.items", "workers", handler)
	asrt.NoErr(err)

	for i := 0; i < 20; i++ {
		asrt.NoErr(bus.Publish(pubsub.Message{Subject: "work.items", Data: []byte("job")}))
	}
	asrt.NoErr(bus.Flush())

	// one delivery per message, regardless of group size
	asrt.Equal(atomic.LoadInt64(&calls), int64(20))
}

func TestUnsubscribe(t *testing.T) {
	asrt := is.New(t)
	bus := memory.New()

	var calls int64
	sub, err := bus.Subscribe("events.test", "", func(_ context.Context, _ pubsub.Message) {
		atomic.AddInt64(&calls, 1)
	})
	asrt.NoErr(err)

	asrt.NoErr(bus.Publish(pubsub.Message{Subject: "events.test", Data: []byte("x")}))
	asrt.NoErr(bus.Flush())
	asrt.NoErr(sub.Unsubscribe())

	asrt.NoErr(bus.Publish(pubsub.Message{Subject: "events.test", Data: []byte("x")}))
	asrt.NoErr(bus.Flush())

	asrt.Equal(atomic.LoadInt64(&calls), int64(1))
}

func TestFlushAfterConcurrentUnsubscribe(t *testing.T) {
	asrt := is.New(t)
	bus := memory.New()

	// slow handlers fill the subscription buffers, so publishers are
	// still mid-send when the subscriptions go away
	subs := make([]pubsub.Subscription, 4)
	for i := range subs {
		sub, err := bus.Subscribe("events.test", "", func(_ context.Context, _ pubsub.Message) {
			time.Sleep(200 * time.Microsecond)
		})
		asrt.NoErr(err)
		subs[i] = sub
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = bus.Publish(pubsub.Message{Subject: "events.test", Data: []byte("x")})
			}
		}()
	}
	for _, sub := range subs {
		sub := sub
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sub.Unsubscribe()
		}()
	}
	wg.Wait()

	flushed := make(chan struct{})
	go func() {
		_ = bus.Flush()
		close(flushed)
	}()
	select {
	case <-flushed:
	case <-time.After(2 * time.Second):
		t.Fatal("flush hangs after unsubscribing during publishes")
	}
}

func TestDataCopied(t *testing.T) {
	asrt := is.New(t)
	bus := memory.New()

	recv := make(chan []byte, 1)
	_, err := bus.Subscribe("events.test", "", func(_ context.Context, msg pubsub.Message) {
		recv <- msg.Data
	})
	asrt.NoErr(err)

	data := []byte("before")
	asrt.NoErr(bus.Publish(pubsub.Message{Subject: "events.test", Data: data}))
	copy(data, "mutate")
	asrt.NoErr(bus.Flush())

	asrt.Equal(string(<-recv), "before")
}

func contains(s []string, v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}

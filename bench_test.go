package nipc_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/nivrem/nipc"
	"github.com/nivrem/nipc/pubsub/memory"
)

func newBenchPair(b *testing.B) (*nipc.Node, *nipc.Node) {
	b.Helper()
	ctx := context.Background()
	bus := memory.New()

	server, err := nipc.NewNode(bus, bus, nipc.WithID("bench-server"))
	if err != nil {
		b.Fatal(err)
	}
	if err := server.Register("echo", func(_ context.Context, args nipc.Args) (interface{}, error) {
		var msg string
		if r := args.Decode(&msg); r != nil {
			return nil, r
		}
		return msg, nil
	}); err != nil {
		b.Fatal(err)
	}
	if err := server.Run(ctx); err != nil {
		b.Fatal(err)
	}

	client, err := nipc.NewNode(bus, bus, nipc.WithID("bench-client"))
	if err != nil {
		b.Fatal(err)
	}
	if err := client.Run(ctx); err != nil {
		b.Fatal(err)
	}

	b.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return server, client
}

func BenchmarkCall(b *testing.B) {
	_, client := newBenchPair(b)
	ctx := context.Background()

	for _, size := range []int{10, 1000, 100000} {
		payload := strings.Repeat("x", size)
		b.Run(fmt.Sprintf("payload_%dB", size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				var got string
				if err := client.Call(ctx, "bench-server", "echo", &got, payload); err != nil {
					b.Fatal(err)
				}
			}
		})
	}

	b.Run("parallel", func(b *testing.B) {
		b.ReportAllocs()
		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				var got string
				if err := client.Call(ctx, "bench-server", "echo", &got, "hi"); err != nil {
					b.Error(err)
					return
				}
			}
		})
	})
}

func BenchmarkBroadcast(b *testing.B) {
	ctx := context.Background()
	bus := memory.New()

	node, err := nipc.NewNode(bus, bus, nipc.WithID("bench-caster"))
	if err != nil {
		b.Fatal(err)
	}
	if err := node.Run(ctx); err != nil {
		b.Fatal(err)
	}
	b.Cleanup(node.Close)

	if _, err := node.Subscribe("bench", func(context.Context, nipc.Value) {}); err != nil {
		b.Fatal(err)
	}

	payload := map[string]int{"x": 1}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := node.Broadcast("bench", payload); err != nil {
			b.Fatal(err)
		}
	}
}

// Package nipc implements request/response RPC and broadcast messaging
// between processes over pubsub like NATS. Each call carries a correlation
// id and is resolved by the matching reply or failed by timeout, turning
// the fire-and-forget transport into a request/response call.
// The interfaces defined in the `pubsub` package can be implemented
// for more pubsub solutions and then used with this module; in-process
// and libp2p gossipsub transports are included.
package nipc

import (
	"fmt"
	"time"

	"github.com/nivrem/nipc/metrics"
	"github.com/nivrem/nipc/pubsub"
)

const (
	// DefaultCallTimeout bounds calls whose context carries no deadline.
	// The config package reads NATS_TIMEOUT to override it per node.
	DefaultCallTimeout = 30 * time.Second

	randSubjectLen = 10
)

// NewNode creates a node on top of the given pubsub transport. The node
// serves requests once started with Run or Listen.
func NewNode(pub pubsub.Publisher, sub pubsub.Subscriber, opts ...Option) (*Node, error) {
	opt := getOptions(opts)

	id := opt.id
	if id == "" {
		id = GenerateNodeID()
	}
	if !ValidNodeID(id) {
		return nil, InvalidRequestError{Reason: fmt.Sprintf("invalid node id %q", id)}
	}

	return &Node{
		id:         id,
		pub:        pub,
		sub:        sub,
		log:        opt.logger,
		codec:      opt.codec,
		timeout:    opt.timeout,
		metrics:    opt.metrics,
		middleware: opt.middleware,
		inbox:      replySubject(id, randString(randSubjectLen)),
		pending:    newPendingCalls(),
		subs:       newSubscriptions(opt.logger),
		stats:      metrics.NewStats(),
		methods:    make(map[string]Handler),
		closed:     make(chan struct{}),
	}, nil
}

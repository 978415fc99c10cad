package nats

import (
	"github.com/nats-io/nats.go"
	"github.com/nivrem/nipc/pubsub"
)

// Publisher returns a NATS wrapper implementing the pubsub.Publisher interface.
func Publisher(nats *nats.Conn) pubsub.Publisher {
	return &publisher{nats: nats}
}

type publisher struct {
	nats *nats.Conn
}

// Publish implements the pubsub.Publisher interface.
func (s *publisher) Publish(msg pubsub.Message) error {
	return s.nats.Publish(msg.Subject, msg.Data)
}

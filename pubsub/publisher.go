package pubsub

// Publisher sends messages into the bus. At-least-once delivery and
// ordering are whatever the backing transport provides.
type Publisher interface {
	Publish(msg Message) error
}

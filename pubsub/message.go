package pubsub

// Message defines a pubsub message.
type Message struct {
	Subject string
	Data    []byte
}

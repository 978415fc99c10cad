package nipc

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotRunning is returned by calls on a node that has not been started
// with Run or Listen yet, or that has already been closed.
var ErrNotRunning = errors.New("node is not running")

// TimeoutError is returned when no reply arrives within the call timeout.
type TimeoutError struct {
	Target  string
	Method  string
	Timeout time.Duration
}

func (err TimeoutError) Error() string {
	return fmt.Sprintf("call to %s.%s timed out after %s", err.Target, err.Method, err.Timeout)
}

// CanceledError is returned when the caller context is canceled while
// waiting for a reply.
type CanceledError struct {
	Target string
	Method string
}

func (err CanceledError) Error() string {
	return fmt.Sprintf("call to %s.%s canceled", err.Target, err.Method)
}

// RemoteError is returned when the remote handler failed. It carries the
// error description reported by the remote node.
type RemoteError struct {
	Target      string
	Method      string
	Description string
}

func (err RemoteError) Error() string {
	return fmt.Sprintf("remote error in %s.%s: %s", err.Target, err.Method, err.Description)
}

// MethodNotFoundError is returned when the target node has no handler
// registered under the requested method name.
type MethodNotFoundError struct {
	Method string
	NodeID string
}

func (err MethodNotFoundError) Error() string {
	if err.NodeID == "" {
		return fmt.Sprintf("method %q not found", err.Method)
	}
	return fmt.Sprintf("method %q not found on node %s", err.Method, err.NodeID)
}

// SerializationError is returned when arguments, results or envelopes cannot
// be encoded or decoded. It embeds the underlying cause.
type SerializationError struct {
	Op  string
	Err error
}

func (err SerializationError) Error() string {
	return fmt.Sprintf("serialization error: %s: %s", err.Op, err.Err)
}

func (err SerializationError) Unwrap() error {
	return err.Err
}

// InvalidRequestError is returned to callers whose request the remote node
// could not parse, and raised locally for malformed targets or methods.
type InvalidRequestError struct {
	Reason string
}

func (err InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid request format: %s", err.Reason)
}

// TransportError is returned when the underlying pubsub transport fails to
// publish or subscribe. It embeds the underlying cause.
type TransportError struct {
	Op  string
	Err error
}

func (err TransportError) Error() string {
	return fmt.Sprintf("transport error: %s: %s", err.Op, err.Err)
}

func (err TransportError) Unwrap() error {
	return err.Err
}

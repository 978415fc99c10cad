package nipc

import "context"

// Handler implements a callable method. Args carries the positional
// arguments sent by the caller. The returned value is encoded and sent
// back as the result; a returned error is forwarded to the caller as a
// remote error.
type Handler func(ctx context.Context, args Args) (interface{}, error)

// BroadcastHandler consumes messages from a subscribed channel.
type BroadcastHandler func(ctx context.Context, v Value)

// Middleware wraps a handler, e.g. for logging or rate limiting. Node-level
// middleware is applied to every registered handler, outermost first.
type Middleware func(next Handler) Handler

func applyMiddleware(h Handler, mw []Middleware) Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

type ctxKey int

const (
	methodKey ctxKey = iota
	callerKey
)

// MethodFromContext returns the method name of the call being handled, or
// an empty string outside a call.
func MethodFromContext(ctx context.Context) string {
	name, _ := ctx.Value(methodKey).(string)
	return name
}

// CallerFromContext returns the node id of the calling node, or an empty
// string outside a call.
func CallerFromContext(ctx context.Context) string {
	id, _ := ctx.Value(callerKey).(string)
	return id
}

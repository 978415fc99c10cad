package nipc

import (
	"time"

	"github.com/nivrem/nipc/codec"
	"github.com/nivrem/nipc/metrics"
)

// Option defines an option for configuring the node.
type Option func(opt *options)

func getOptions(opts []Option) options {
	opt := options{
		logger:  noopLogger{},
		codec:   codec.Default(),
		timeout: DefaultCallTimeout,
		metrics: metrics.Noop{},
	}

	for _, o := range opts {
		o(&opt)
	}
	return opt
}

type options struct {
	id         string
	logger     Logger
	codec      codec.Codec
	timeout    time.Duration
	metrics    metrics.Provider
	middleware []Middleware
}

// WithID sets the node id other nodes address calls to. Defaults to a
// generated id. Running several nodes under the same id forms a queue
// group: each request is delivered to one of them.
func WithID(id string) Option {
	return func(opt *options) {
		opt.id = id
	}
}

// WithLogger sets the logger for the node.
func WithLogger(log Logger) Option {
	return func(opt *options) {
		opt.logger = log
	}
}

// WithCodec sets the codec used to encode call arguments, results and
// broadcast payloads. Defaults to JSON.
func WithCodec(c codec.Codec) Option {
	return func(opt *options) {
		opt.codec = c
	}
}

// WithCallTimeout sets the timeout applied to calls whose context carries
// no deadline. Defaults to DefaultCallTimeout.
func WithCallTimeout(timeout time.Duration) Option {
	return func(opt *options) {
		opt.timeout = timeout
	}
}

// WithMetrics sets the metrics provider.
func WithMetrics(m metrics.Provider) Option {
	return func(opt *options) {
		opt.metrics = m
	}
}

// WithMiddleware appends middleware applied to every registered handler,
// outermost first.
func WithMiddleware(mw ...Middleware) Option {
	return func(opt *options) {
		opt.middleware = append(opt.middleware, mw...)
	}
}

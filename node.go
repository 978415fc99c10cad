package nipc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nivrem/nipc/codec"
	"github.com/nivrem/nipc/metrics"
	"github.com/nivrem/nipc/pubsub"
)

// Node is a peer in the mesh. It calls methods on other nodes, serves its
// own registered methods and exchanges broadcasts, all over a pubsub
// transport.
type Node struct {
	id  string
	pub pubsub.Publisher
	sub pubsub.Subscriber
	log Logger

	codec      codec.Codec
	timeout    time.Duration
	metrics    metrics.Provider
	middleware []Middleware

	inbox   string
	pending *pendingCalls
	subs    *subscriptions
	stats   *metrics.Stats

	methodsMu sync.RWMutex
	methods   map[string]Handler

	runMu   sync.Mutex
	running bool
	closed  chan struct{}
}

// ID returns the node id.
func (s *Node) ID() string {
	return s.id
}

// Register adds a handler under the given method name. Registering works
// before and after the node is started. An existing handler under the same
// name is replaced.
func (s *Node) Register(name string, handler Handler) error {
	if !ValidNodeID(name) {
		return InvalidRequestError{Reason: fmt.Sprintf("invalid method name %q", name)}
	}
	if handler == nil {
		return InvalidRequestError{Reason: "nil handler"}
	}

	wrapped := applyMiddleware(handler, s.middleware)

	s.methodsMu.Lock()
	if _, ok := s.methods[name]; ok {
		s.log.Infof("replacing handler: method => %v", name)
	}
	s.methods[name] = wrapped
	s.methodsMu.Unlock()

	return nil
}

// Unregister removes the handler registered under the given method name.
func (s *Node) Unregister(name string) {
	s.methodsMu.Lock()
	delete(s.methods, name)
	s.methodsMu.Unlock()
}

// Methods returns the names of the registered methods, sorted.
func (s *Node) Methods() []string {
	s.methodsMu.RLock()
	defer s.methodsMu.RUnlock()

	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run starts the node by subscribing to its request and reply subjects.
// It returns once the subscriptions are active. The node shuts down when
// the context is canceled or Close is called.
func (s *Node) Run(ctx context.Context) error {
	if r := s.start(); r != nil {
		return r
	}

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.closed:
		}
	}()
	return nil
}

// Listen starts the node and blocks until the context is canceled or the
// node is closed.
func (s *Node) Listen(ctx context.Context) error {
	if r := s.start(); r != nil {
		return r
	}

	select {
	case <-ctx.Done():
		s.Close()
		return ctx.Err()
	case <-s.closed:
		return nil
	}
}

func (s *Node) start() error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	select {
	case <-s.closed:
		return ErrNotRunning
	default:
	}
	if s.running {
		return nil
	}

	// Nodes sharing an id form a queue group on the request subject, so
	// each request is handled by one of them.
	reqSub, err := s.sub.SubscribeAsync(requestSubject(s.id), s.id, s.handleRequest)
	if err != nil {
		return TransportError{Op: "subscribe requests", Err: err}
	}
	s.subs.track(reqSub)

	inboxSub, err := s.sub.Subscribe(s.inbox, "", s.handleReply)
	if err != nil {
		s.subs.unsubscribeAll()
		return TransportError{Op: "subscribe replies", Err: err}
	}
	s.subs.track(inboxSub)

	if r := s.sub.Flush(); r != nil {
		s.subs.unsubscribeAll()
		return TransportError{Op: "flush", Err: r}
	}

	s.running = true
	s.log.Infof("node running: id => %v", s.id)
	return nil
}

// Close stops the node. Outstanding calls fail with CanceledError, further
// operations return ErrNotRunning. A closed node cannot be restarted.
func (s *Node) Close() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	select {
	case <-s.closed:
		return
	default:
	}

	close(s.closed)
	s.running = false
	s.subs.unsubscribeAll()
	s.log.Infof("node closed: id => %v", s.id)
}

func (s *Node) isRunning() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	return s.running
}

// Call invokes a method on the target node and decodes the reply into
// result, which must be a pointer. Pass nil to ignore the reply value.
// The deadline comes from ctx; if ctx has none, the node's call timeout
// applies.
func (s *Node) Call(ctx context.Context, target, method string, result interface{}, args ...interface{}) error {
	if !s.isRunning() {
		return ErrNotRunning
	}
	if !ValidNodeID(target) {
		return InvalidRequestError{Reason: fmt.Sprintf("invalid target %q", target)}
	}
	if !ValidNodeID(method) {
		return InvalidRequestError{Reason: fmt.Sprintf("invalid method %q", method)}
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	err := s.call(ctx, target, method, result, args)
	s.record(target+"."+method, time.Since(start), err)
	return err
}

func (s *Node) call(ctx context.Context, target, method string, result interface{}, args []interface{}) error {
	deadline, _ := ctx.Deadline()
	budget := time.Until(deadline)

	encoded := make([][]byte, 0, len(args))
	for _, arg := range args {
		data, err := s.codec.Marshal(arg)
		if err != nil {
			return SerializationError{Op: fmt.Sprintf("encode argument for %s.%s", target, method), Err: err}
		}
		encoded = append(encoded, data)
	}

	if budget < 0 {
		return s.ctxError(ctx, target, method, budget)
	}

	id := uuid.NewString()
	payload, err := marshalEnvelope(&requestEnvelope{
		Version: envelopeVersion,
		ID:      id,
		From:    s.id,
		Method:  method,
		Reply:   s.inbox,
		Codec:   s.codec.Name(),
		Args:    encoded,
		Timeout: budget.Nanoseconds(),
	})
	if err != nil {
		return err
	}

	ch := s.pending.add(id)
	defer s.dropPending(id)
	s.metrics.SetGauge(metrics.CallsInflight, float64(s.pending.size()))

	req := pubsub.Message{
		Subject: requestSubject(target),
		Data:    payload,
	}
	s.log.Infof("request: subject => %v, method => %v, id => %v", req.Subject, method, id)
	if r := s.pub.Publish(req); r != nil {
		return TransportError{Op: "publish request", Err: r}
	}

	select {
	case env := <-ch:
		return s.decodeReply(target, method, env, result)
	case <-ctx.Done():
		return s.ctxError(ctx, target, method, budget)
	case <-s.closed:
		return CanceledError{Target: target, Method: method}
	}
}

func (s *Node) dropPending(id string) {
	s.pending.remove(id)
	s.metrics.SetGauge(metrics.CallsInflight, float64(s.pending.size()))
}

func (s *Node) decodeReply(target, method string, env *responseEnvelope, result interface{}) error {
	if env.Status == statusError {
		return callError(target, method, env)
	}
	if result == nil {
		return nil
	}

	c := s.lookupCodec(env.Codec)
	if c == nil {
		return SerializationError{
			Op:  fmt.Sprintf("decode reply from %s.%s", target, method),
			Err: fmt.Errorf("unknown codec %q", env.Codec),
		}
	}
	return Value{codec: c, data: env.Value}.Decode(result)
}

func (s *Node) ctxError(ctx context.Context, target, method string, budget time.Duration) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return TimeoutError{Target: target, Method: method, Timeout: budget.Round(time.Millisecond)}
	}
	return CanceledError{Target: target, Method: method}
}

func (s *Node) record(method string, dur time.Duration, err error) {
	s.stats.RecordCall(method, dur, err == nil)

	s.metrics.IncCounter(metrics.CallsTotal, 1)
	if err != nil {
		s.metrics.IncCounter(metrics.CallErrorsTotal, 1)
	}
	s.metrics.Observe(metrics.CallDurationMs, float64(dur.Microseconds())/1000.0)
}

// Stats returns a snapshot of the per-call statistics of this node. Calls
// are keyed by "<target>.<method>".
func (s *Node) Stats() metrics.Summary {
	return s.stats.Summary()
}

// Broadcast publishes data to every subscriber of the channel. Fire and
// forget: there is no acknowledgment and no delivery guarantee beyond the
// at-least-once guarantee of the transport.
func (s *Node) Broadcast(channel string, data interface{}) error {
	if !s.isRunning() {
		return ErrNotRunning
	}
	if !ValidChannel(channel) {
		return InvalidRequestError{Reason: fmt.Sprintf("invalid channel %q", channel)}
	}

	encoded, err := s.codec.Marshal(data)
	if err != nil {
		return SerializationError{Op: fmt.Sprintf("encode broadcast for %s", channel), Err: err}
	}
	payload, err := marshalEnvelope(&broadcastEnvelope{
		Version: envelopeVersion,
		From:    s.id,
		Codec:   s.codec.Name(),
		Data:    encoded,
	})
	if err != nil {
		return err
	}

	s.log.Infof("broadcast: channel => %v", channel)
	if r := s.pub.Publish(pubsub.Message{Subject: broadcastSubject(channel), Data: payload}); r != nil {
		return TransportError{Op: "publish broadcast", Err: r}
	}
	s.metrics.IncCounter(metrics.BroadcastsTotal, 1)
	return nil
}

// Subscribe registers a handler for a broadcast channel. Every subscription
// receives each message published to the channel, including messages
// published by this node. Unsubscribing the returned subscription stops
// delivery to this handler only.
func (s *Node) Subscribe(channel string, handler BroadcastHandler) (pubsub.Subscription, error) {
	if !s.isRunning() {
		return nil, ErrNotRunning
	}
	if !ValidChannel(channel) {
		return nil, InvalidRequestError{Reason: fmt.Sprintf("invalid channel %q", channel)}
	}
	if handler == nil {
		return nil, InvalidRequestError{Reason: "nil handler"}
	}

	sub, err := s.sub.Subscribe(broadcastSubject(channel), "", func(ctx context.Context, msg pubsub.Message) {
		s.handleBroadcast(ctx, channel, handler, msg)
	})
	if err != nil {
		return nil, TransportError{Op: "subscribe " + channel, Err: err}
	}
	if r := s.sub.Flush(); r != nil {
		_ = sub.Unsubscribe()
		return nil, TransportError{Op: "flush", Err: r}
	}

	s.log.Infof("subscribed: channel => %v", channel)
	return s.subs.track(sub), nil
}

func (s *Node) handleBroadcast(ctx context.Context, channel string, handler BroadcastHandler, msg pubsub.Message) {
	env, err := unmarshalBroadcast(msg.Data)
	if err != nil {
		s.log.Errorf("dropping broadcast: channel => %v: %v", channel, err)
		return
	}
	c := s.lookupCodec(env.Codec)
	if c == nil {
		s.log.Errorf("dropping broadcast: channel => %v: unknown codec %q", channel, env.Codec)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("node.handleBroadcast: panic recovered: %v", r)
		}
	}()
	handler(ctx, Value{codec: c, data: env.Data})
}

func (s *Node) handleRequest(ctx context.Context, msg pubsub.Message) {
	s.metrics.IncCounter(metrics.RequestsTotal, 1)

	env, err := unmarshalRequest(msg.Data)
	if err != nil {
		s.metrics.IncCounter(metrics.RequestErrorsTotal, 1)
		if env != nil && env.Reply != "" {
			s.respond(env.Reply, errorResponse(env.ID, s.id, codeInvalidRequest, err.Error()))
			return
		}
		s.log.Errorf("dropping unreadable request: %v", err)
		return
	}

	handler, ok := s.handler(env.Method)
	if !ok {
		s.metrics.IncCounter(metrics.RequestErrorsTotal, 1)
		s.log.Infof("method not found: method => %v, from => %v", env.Method, env.From)
		desc := MethodNotFoundError{Method: env.Method, NodeID: s.id}.Error()
		s.respond(env.Reply, errorResponse(env.ID, s.id, codeMethodNotFound, desc))
		return
	}

	c := s.lookupCodec(env.Codec)
	if c == nil {
		s.metrics.IncCounter(metrics.RequestErrorsTotal, 1)
		s.respond(env.Reply, errorResponse(env.ID, s.id, codeInvalidRequest, fmt.Sprintf("unknown codec %q", env.Codec)))
		return
	}

	args := make(Args, 0, len(env.Args))
	for _, raw := range env.Args {
		args = append(args, Value{codec: c, data: raw})
	}

	ctx = context.WithValue(ctx, methodKey, env.Method)
	ctx = context.WithValue(ctx, callerKey, env.From)
	ctx, cancel := contextTimeout(ctx, env.Timeout)
	defer cancel()

	result, err := func() (_ interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("node.handleRequest: panic recovered: %v", r)
			}
		}()

		return handler(ctx, args)
	}()
	if err != nil {
		s.metrics.IncCounter(metrics.RequestErrorsTotal, 1)
		s.respond(env.Reply, errorResponse(env.ID, s.id, codeRemoteError, err.Error()))
		return
	}

	var value []byte
	if result != nil {
		value, err = c.Marshal(result)
		if err != nil {
			s.metrics.IncCounter(metrics.RequestErrorsTotal, 1)
			desc := SerializationError{Op: fmt.Sprintf("encode result of %s", env.Method), Err: err}.Error()
			s.respond(env.Reply, errorResponse(env.ID, s.id, codeRemoteError, desc))
			return
		}
	}

	s.respond(env.Reply, &responseEnvelope{
		Version: envelopeVersion,
		ID:      env.ID,
		From:    s.id,
		Status:  statusOK,
		Codec:   c.Name(),
		Value:   value,
	})
}

func (s *Node) handleReply(_ context.Context, msg pubsub.Message) {
	env, err := unmarshalResponse(msg.Data)
	if err != nil {
		s.log.Errorf("dropping reply: %v", err)
		return
	}

	if !s.pending.resolve(env.ID, env) {
		// late or duplicate reply
		s.log.Infof("discarding reply: id => %v", env.ID)
	}
}

func (s *Node) handler(name string) (Handler, bool) {
	s.methodsMu.RLock()
	defer s.methodsMu.RUnlock()

	h, ok := s.methods[name]
	return h, ok
}

func (s *Node) respond(subject string, env *responseEnvelope) {
	payload, err := marshalEnvelope(env)
	if err != nil {
		s.log.Errorf("failed to marshal response: %v", err)
		return
	}

	s.log.Infof("reply: subject => %v, status => %v", subject, env.Status)
	if r := s.pub.Publish(pubsub.Message{Subject: subject, Data: payload}); r != nil {
		s.log.Errorf("failed to reply: %v", r)
	}
}

func (s *Node) lookupCodec(name string) codec.Codec {
	if name == "" || name == s.codec.Name() {
		return s.codec
	}
	return codec.Get(name)
}

func contextTimeout(ctx context.Context, timeout int64) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(timeout))
}

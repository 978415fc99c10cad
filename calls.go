package nipc

import "sync"

func newPendingCalls() *pendingCalls {
	return &pendingCalls{
		calls: make(map[string]chan *responseEnvelope),
	}
}

// pendingCalls tracks in-flight calls by correlation id. Each call owns a
// buffered channel of size one. resolve removes the entry before delivering,
// so every call is resolved at most once and duplicate or late replies are
// dropped.
type pendingCalls struct {
	m     sync.Mutex
	calls map[string]chan *responseEnvelope
}

func (s *pendingCalls) add(id string) chan *responseEnvelope {
	ch := make(chan *responseEnvelope, 1)

	s.m.Lock()
	s.calls[id] = ch
	s.m.Unlock()

	return ch
}

// resolve hands the response to the waiting caller. It reports whether a
// caller was still waiting on the given correlation id.
func (s *pendingCalls) resolve(id string, env *responseEnvelope) bool {
	s.m.Lock()
	ch, ok := s.calls[id]
	if ok {
		delete(s.calls, id)
	}
	s.m.Unlock()

	if !ok {
		return false
	}
	ch <- env
	return true
}

// remove drops a pending call without resolving it.
func (s *pendingCalls) remove(id string) {
	s.m.Lock()
	delete(s.calls, id)
	s.m.Unlock()
}

func (s *pendingCalls) size() int {
	s.m.Lock()
	defer s.m.Unlock()

	return len(s.calls)
}

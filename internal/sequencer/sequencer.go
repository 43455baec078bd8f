// Package sequencer serializes request handling per session: requests in
// one session run strictly in arrival order, while different sessions
// proceed concurrently. Ordering is by chaining each request onto the
// previous one's completion, so a failed turn never wedges the session
// behind it.
package sequencer

import (
	"context"
	"sync"

	"butler/internal/agent"
	"butler/internal/logging"
)

// Handler processes one envelope. *agent.Orchestrator satisfies it.
type Handler interface {
	Handle(ctx context.Context, env agent.Envelope) (agent.Response, error)
}

// Sequencer enforces per-session FIFO over a Handler.
type Sequencer struct {
	handler Handler

	mu      sync.Mutex
	tails   map[string]chan struct{}
	pending map[string]int
}

// New creates a sequencer over the given handler.
func New(handler Handler) *Sequencer {
	return &Sequencer{
		handler: handler,
		tails:   make(map[string]chan struct{}),
		pending: make(map[string]int),
	}
}

// Do runs one envelope, blocking until every earlier request in the same
// session has finished and then until the handler returns. Cancellation
// while queued releases the caller immediately; the abandoned slot still
// resolves in order, so successors never overtake a running predecessor.
func (s *Sequencer) Do(ctx context.Context, env agent.Envelope) (agent.Response, error) {
	s.mu.Lock()
	prev := s.tails[env.SessionID]
	done := make(chan struct{})
	s.tails[env.SessionID] = done
	s.pending[env.SessionID]++
	s.mu.Unlock()

	release := func() {
		close(done)
		s.mu.Lock()
		s.pending[env.SessionID]--
		if s.pending[env.SessionID] == 0 {
			delete(s.tails, env.SessionID)
			delete(s.pending, env.SessionID)
		}
		s.mu.Unlock()
	}

	if prev != nil {
		logging.SessionDebug("request %s queued behind session %s", env.RequestID, env.SessionID)
		select {
		case <-prev:
		case <-ctx.Done():
			go func() {
				<-prev
				release()
			}()
			return agent.Response{}, ctx.Err()
		}
	}

	defer release()
	return s.handler.Handle(ctx, env)
}

// InFlight returns how many requests are queued or running for a session.
// Zero means the session has no live state in the sequencer.
func (s *Sequencer) InFlight(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[sessionID]
}

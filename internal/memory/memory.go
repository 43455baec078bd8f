// Package memory defines the per-session transcript store boundary. The
// store is append-only from the runtime's point of view; the orchestrator
// never reads back what it appended within the same turn.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"butler/internal/logging"
)

// Store is the session memory collaborator.
type Store interface {
	// Read returns the memory text for a session. An empty string is a
	// valid result for a fresh session.
	Read(ctx context.Context, sessionID string) (string, error)

	// Append adds one entry to a session's transcript.
	Append(ctx context.Context, sessionID, entry string) error
}

// InMemoryStore keeps transcripts in process memory, bounded per session.
// It backs the CLI and tests; durable stores live behind the same
// interface elsewhere.
type InMemoryStore struct {
	mu          sync.RWMutex
	transcripts map[string][]string
	maxEntries  int
}

// NewInMemoryStore creates a store keeping at most maxEntries lines per
// session; older lines are dropped first.
func NewInMemoryStore(maxEntries int) *InMemoryStore {
	if maxEntries < 1 {
		maxEntries = 100
	}
	return &InMemoryStore{
		transcripts: make(map[string][]string),
		maxEntries:  maxEntries,
	}
}

// Read implements Store.
func (s *InMemoryStore) Read(ctx context.Context, sessionID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lines := s.transcripts[sessionID]
	if len(lines) == 0 {
		return "", nil
	}
	return strings.Join(lines, "\n"), nil
}

// Append implements Store.
func (s *InMemoryStore) Append(ctx context.Context, sessionID, entry string) error {
	stamped := time.Now().Format(time.RFC3339) + " " + entry

	s.mu.Lock()
	defer s.mu.Unlock()
	lines := append(s.transcripts[sessionID], stamped)
	if over := len(lines) - s.maxEntries; over > 0 {
		lines = lines[over:]
	}
	s.transcripts[sessionID] = lines

	logging.Memory("appended to session %s (entries=%d)", sessionID, len(lines))
	return nil
}

// Sessions returns the known session ids. Intended for diagnostics.
func (s *InMemoryStore) Sessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.transcripts))
	for id := range s.transcripts {
		out = append(out, id)
	}
	return out
}

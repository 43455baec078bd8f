// Package audit defines the structured event log boundary. Records are
// fire-and-forget: the runtime never waits on the sink for correctness,
// only for best-effort durability.
package audit

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"butler/internal/action"
	"butler/internal/logging"
)

// Record kinds.
const (
	KindRespond       = "respond"
	KindToolExhausted = "tool_exhausted"
	KindPolicyReject  = "policy_reject"
	KindAsyncResult   = "async_result"
	KindPlannerFailed = "planner_failed"
)

// Record is one structured audit event. User-visible replies never carry
// internal detail; this record is where tool names, ops, and validation
// reasons go instead.
type Record struct {
	ID        string
	Time      time.Time
	Kind      string
	RequestID string
	SessionID string
	Source    string

	Tool   string
	Op     string
	Detail string
	OK     bool

	Iterations int

	// Meta cites the planner call that authored the action this record
	// describes, when one exists.
	Meta *action.PlanMeta
}

// NewRecord creates a record with id and timestamp filled in.
func NewRecord(kind string) Record {
	return Record{
		ID:   uuid.NewString(),
		Time: time.Now(),
		Kind: kind,
	}
}

// Sink receives audit records.
type Sink interface {
	Write(rec Record)
}

// ZapSink writes audit records as structured log entries.
type ZapSink struct {
	log *zap.Logger
}

// NewZapSink creates a sink over the given logger. A nil logger uses the
// process root logger.
func NewZapSink(log *zap.Logger) *ZapSink {
	if log == nil {
		log = logging.Root()
	}
	return &ZapSink{log: log.Named("audit")}
}

// Write implements Sink.
func (s *ZapSink) Write(rec Record) {
	fields := []zap.Field{
		zap.String("id", rec.ID),
		zap.Time("time", rec.Time),
		zap.String("kind", rec.Kind),
		zap.String("request_id", rec.RequestID),
		zap.String("session_id", rec.SessionID),
		zap.String("source", rec.Source),
		zap.Bool("ok", rec.OK),
		zap.Int("iterations", rec.Iterations),
	}
	if rec.Tool != "" {
		fields = append(fields, zap.String("tool", rec.Tool), zap.String("op", rec.Op))
	}
	if rec.Detail != "" {
		fields = append(fields, zap.String("detail", rec.Detail))
	}
	if rec.Meta != nil {
		fields = append(fields,
			zap.String("planner_provider", rec.Meta.Provider),
			zap.String("planner_model", rec.Meta.Model),
			zap.Int("planner_retries", rec.Meta.Retries),
			zap.Bool("planner_parse_ok", rec.Meta.ParseOK),
			zap.Bool("planner_fallback", rec.Meta.Fallback),
		)
	}
	s.log.Info("audit", fields...)
}

// MemorySink collects records for inspection in tests.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Write implements Sink.
func (s *MemorySink) Write(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

// Records returns a copy of everything written so far.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

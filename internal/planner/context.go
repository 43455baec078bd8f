package planner

import (
	"time"

	"butler/internal/capability"
)

// Reason tags describe why a planning turn is happening. They live under
// the "reason" key of the next-step context.
const (
	ReasonInitial      = "initial_selection"
	ReasonToolResult   = "tool_result"
	ReasonSkillDetail  = "skill_detail"
	ReasonSkillResult  = "skill_result"
	ReasonPlannerError = "planner_error"
)

// HistoryEntry is one line of the trimmed action history.
type HistoryEntry struct {
	Iteration int    `json:"iteration"`
	Action    string `json:"action"`
}

// Context is the structured state handed to the planner each turn. It is
// never mutated in place: every iteration derives a new Context from the
// previous one, and derivation only ever adds or overrides next-step
// fields, never drops one.
type Context struct {
	Now      time.Time
	Timezone string

	// Memory is the prior per-session memory text.
	Memory string

	// History is the trimmed action history of this request.
	History []HistoryEntry

	// ToolsContext is the registry's runtime context snapshot, including
	// the declared schema under capability.RuntimeContextKey.
	ToolsContext map[string]any

	// SkillsContext lists the known skills.
	SkillsContext []capability.SkillInfo

	// NextStep describes why this turn is happening. Always carries a
	// "reason" key.
	NextStep map[string]any

	historyLimit int
}

// NewContext seeds the first context of a request.
func NewContext(now time.Time, timezone, memory string, tools map[string]any, skills []capability.SkillInfo, historyLimit int) *Context {
	if historyLimit < 1 {
		historyLimit = 20
	}
	return &Context{
		Now:           now,
		Timezone:      timezone,
		Memory:        memory,
		ToolsContext:  tools,
		SkillsContext: skills,
		NextStep:      map[string]any{"reason": ReasonInitial},
		historyLimit:  historyLimit,
	}
}

// Reason returns the current next-step reason tag.
func (c *Context) Reason() string {
	reason, _ := c.NextStep["reason"].(string)
	return reason
}

// Merge derives a new Context whose next-step context is the previous
// one plus the given fields. Keys not present in fields survive
// unchanged; keys present in both are overridden by fields.
func (c *Context) Merge(fields map[string]any) *Context {
	next := c.clone()
	for k, v := range fields {
		next.NextStep[k] = v
	}
	return next
}

// WithHistory derives a new Context with one more history entry,
// trimming the oldest entries beyond the history limit.
func (c *Context) WithHistory(entry HistoryEntry) *Context {
	next := c.clone()
	next.History = append(next.History, entry)
	if over := len(next.History) - c.historyLimit; over > 0 {
		next.History = next.History[over:]
	}
	return next
}

func (c *Context) clone() *Context {
	next := &Context{
		Now:          c.Now,
		Timezone:     c.Timezone,
		Memory:       c.Memory,
		ToolsContext: c.ToolsContext,
		NextStep:     make(map[string]any, len(c.NextStep)+4),
		historyLimit: c.historyLimit,
	}
	next.History = make([]HistoryEntry, len(c.History))
	copy(next.History, c.History)
	next.SkillsContext = make([]capability.SkillInfo, len(c.SkillsContext))
	copy(next.SkillsContext, c.SkillsContext)
	for k, v := range c.NextStep {
		next.NextStep[k] = v
	}
	return next
}

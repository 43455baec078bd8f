package capability

import "context"

// SkillInfo describes one named skill known to the skill manager.
type SkillInfo struct {
	Name        string
	Description string

	// Tools force-includes capability names in the schema context built
	// for this skill's detail follow-up.
	Tools []string

	// Terminal marks skills that need the terminal capability included
	// in their schema context.
	Terminal bool

	// HasHandler reports whether the skill exposes an embedded handler
	// that can be invoked directly with input.
	HasHandler bool
}

// SkillResult is the outcome of a direct skill invocation.
type SkillResult struct {
	Text string
	Data map[string]any
}

// SkillManager resolves skill names to descriptive detail text and
// optionally invokes an embedded handler. It is an external collaborator;
// invocation failures are returned as errors and folded into planner
// context by the orchestrator rather than propagated.
type SkillManager interface {
	List() []SkillInfo
	Get(name string) (SkillInfo, bool)
	Detail(name string) (string, error)
	Invoke(ctx context.Context, name, input string, pctx map[string]any) (*SkillResult, error)
}

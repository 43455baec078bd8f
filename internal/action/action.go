// Package action defines the closed set of instructions the runtime can
// execute. An Action is produced by the planner or synthesized by the
// orchestrator; it is decoded once at the planner boundary and handled
// as a typed value everywhere else.
package action

// Kind discriminates the Action union.
type Kind string

const (
	KindRespond   Kind = "respond"
	KindToolCall  Kind = "tool_call"
	KindSkillCall Kind = "skill_call"
	KindLlmCall   Kind = "llm_call"
)

// Action is the closed union of runtime instructions. Only the four
// variants in this package implement it.
type Action interface {
	Kind() Kind

	// Meta returns the provenance of the planner call that authored
	// this action, or nil for synthesized actions.
	Meta() *PlanMeta

	setMeta(*PlanMeta)
}

// Respond is terminal: emit text to the user.
type Respond struct {
	Text string

	meta *PlanMeta
}

// ToolCall invokes a registered capability. OnSuccess/OnFailure, when
// set, are executed on the matching outcome without a fresh planner
// round trip.
type ToolCall struct {
	Tool string
	Op   string
	Args map[string]any

	OnSuccess Action
	OnFailure Action

	meta *PlanMeta
}

// SkillCall selects or invokes a named skill. Empty Input means
// "describe, don't execute yet".
type SkillCall struct {
	Name  string
	Input string

	meta *PlanMeta
}

// LlmCall asks the planner again with the given prompt. It is the
// loop's own re-entry action and is never user visible. Context carries
// the reason this turn is happening.
type LlmCall struct {
	Prompt  string
	Context map[string]any

	meta *PlanMeta
}

func (a *Respond) Kind() Kind   { return KindRespond }
func (a *ToolCall) Kind() Kind  { return KindToolCall }
func (a *SkillCall) Kind() Kind { return KindSkillCall }
func (a *LlmCall) Kind() Kind   { return KindLlmCall }

func (a *Respond) Meta() *PlanMeta   { return a.meta }
func (a *ToolCall) Meta() *PlanMeta  { return a.meta }
func (a *SkillCall) Meta() *PlanMeta { return a.meta }
func (a *LlmCall) Meta() *PlanMeta   { return a.meta }

func (a *Respond) setMeta(m *PlanMeta)   { a.meta = m }
func (a *ToolCall) setMeta(m *PlanMeta)  { a.meta = m }
func (a *SkillCall) setMeta(m *PlanMeta) { a.meta = m }
func (a *LlmCall) setMeta(m *PlanMeta)   { a.meta = m }

// Stamp attaches meta to act and to any nested branch actions, so audit
// records stay attributable to the planner call that authored them even
// when a branch executes without another round trip.
func Stamp(act Action, meta *PlanMeta) {
	if act == nil || meta == nil {
		return
	}
	act.setMeta(meta)
	if tc, ok := act.(*ToolCall); ok {
		Stamp(tc.OnSuccess, meta)
		Stamp(tc.OnFailure, meta)
	}
}

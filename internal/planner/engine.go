// Package planner defines the boundary to the language-model planner.
// The engine receives prompt text plus structured runtime context and
// returns a single proposed action with planning metadata. Prompt
// construction, transport, and malformed-output repair live behind this
// interface; the orchestrator only ever sees schema-conformant actions.
package planner

import (
	"context"

	"butler/internal/action"
)

// Result is one planner decision: the proposed action and the
// provenance of the call that produced it.
type Result struct {
	Action action.Action
	Meta   *action.PlanMeta
}

// Engine is the language-model planner boundary.
type Engine interface {
	// PlanWithMeta proposes the next action for the given prompt and
	// context. The returned action is structured and schema-conformant;
	// repairing or rejecting malformed model output is the engine's
	// responsibility, not the caller's.
	PlanWithMeta(ctx context.Context, prompt string, pc *Context) (Result, error)
}

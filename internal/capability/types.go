// Package capability holds the registry of tool and skill handlers, the
// declared operation schemas the planner is validated against, and the
// router that dispatches actions to handlers.
package capability

import (
	"context"
)

// OpSpec declares a single operation a capability supports.
type OpSpec struct {
	Op                string            `json:"op"`
	Params            []string          `json:"params,omitempty"`
	ParamDescriptions map[string]string `json:"param_descriptions,omitempty"`
}

// SchemaItem is the declared contract of one named capability. It is
// registered once at startup and read-only thereafter; the orchestrator
// validates planner output against it.
type SchemaItem struct {
	// Name is the capability name the planner addresses.
	Name string `json:"name"`

	// Resource optionally tags the external resource the capability
	// touches (e.g. "home", "market").
	Resource string `json:"resource,omitempty"`

	// Ops lists the operations this capability accepts.
	Ops []OpSpec `json:"ops"`

	// Keywords hint which user inputs the capability is relevant to.
	// Used when filtering schema context for a skill.
	Keywords []string `json:"keywords,omitempty"`
}

// OpNames returns the declared operation names.
func (s SchemaItem) OpNames() []string {
	names := make([]string, 0, len(s.Ops))
	for _, op := range s.Ops {
		names = append(names, op.Op)
	}
	return names
}

// Result is the uniform outcome of dispatching one action. Failures are
// data, never panics: OK false plus Error describes an execution
// failure the planner may recover from.
type Result struct {
	OK     bool           `json:"ok"`
	Output string         `json:"output,omitempty"`
	Error  string         `json:"error,omitempty"`
	Data   map[string]any `json:"data,omitempty"`

	// ImagePath points at an image produced by the handler, attached to
	// the final response instead of being folded into planner context.
	ImagePath string `json:"image_path,omitempty"`

	// Handler names the handler that served the action. Empty when no
	// handler matched.
	Handler string `json:"handler,omitempty"`
}

// Handler executes operations for one or more registered capabilities.
type Handler interface {
	// Name is the unique handler name.
	Name() string

	// Execute runs one operation. pctx is the runtime context view the
	// orchestrator built for this turn. Returning an error is
	// equivalent to Result{OK: false, Error: err.Error()}.
	Execute(ctx context.Context, op string, args map[string]any, pctx map[string]any) (Result, error)
}

// RuntimeContextProvider is optionally implemented by handlers that want
// live state (known entity ids, current limits) exposed to the planner
// without being queried per turn.
type RuntimeContextProvider interface {
	RuntimeContext() map[string]any
}

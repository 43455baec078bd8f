package capability

import (
	"context"
	"fmt"

	"butler/internal/action"
	"butler/internal/logging"
)

// SkillHandlerName is the reserved handler name skill calls route to.
const SkillHandlerName = "skill"

// Router resolves an action's capability name to a registered handler
// and invokes it uniformly, whether the capability is a tool or a skill.
// Routing failure is never an error: an unmatched action comes back as
// an OK result describing the miss so the orchestrator can feed it to
// the planner.
type Router struct {
	registry *Registry
}

// NewRouter creates a router over the given registry.
func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry}
}

// Route dispatches a concrete action and returns the uniform result.
func (r *Router) Route(ctx context.Context, act action.Action, pctx map[string]any) Result {
	switch a := act.(type) {
	case *action.ToolCall:
		h, ok := r.registry.Resolve(a.Tool)
		if !ok {
			logging.Routing("no handler matched tool %s", a.Tool)
			return Result{
				OK:     true,
				Output: fmt.Sprintf("no registered handler matched tool %q (op %q); the action was not executed", a.Tool, a.Op),
			}
		}
		return r.invoke(ctx, h, a.Op, a.Args, pctx)

	case *action.SkillCall:
		h, ok := r.registry.Resolve(SkillHandlerName)
		if !ok {
			logging.Routing("no skill handler registered, skill %s unmatched", a.Name)
			return Result{
				OK:     true,
				Output: fmt.Sprintf("no skill handler is registered; skill %q was not executed", a.Name),
			}
		}
		return r.invoke(ctx, h, a.Name, map[string]any{"input": a.Input}, pctx)

	default:
		return Result{
			OK:     true,
			Output: fmt.Sprintf("action kind %q is not routable", act.Kind()),
		}
	}
}

func (r *Router) invoke(ctx context.Context, h Handler, op string, args map[string]any, pctx map[string]any) Result {
	res, err := h.Execute(ctx, op, args, pctx)
	res.Handler = h.Name()
	if err != nil {
		res.OK = false
		if res.Error == "" {
			res.Error = err.Error()
		}
	}
	logging.RoutingDebug("handler=%s op=%s ok=%v", h.Name(), op, res.OK)
	return res
}

// SkillHandler adapts a SkillManager to the Handler interface so skill
// calls flow through the same dispatch path as tool calls. The op is the
// skill name; args carry the raw input.
type SkillHandler struct {
	mgr SkillManager
}

// NewSkillHandler wraps a skill manager as the reserved skill handler.
func NewSkillHandler(mgr SkillManager) *SkillHandler {
	return &SkillHandler{mgr: mgr}
}

// Name implements Handler.
func (h *SkillHandler) Name() string { return SkillHandlerName }

// Execute invokes the named skill with the given input.
func (h *SkillHandler) Execute(ctx context.Context, op string, args map[string]any, pctx map[string]any) (Result, error) {
	input, _ := args["input"].(string)
	res, err := h.mgr.Invoke(ctx, op, input, pctx)
	if err != nil {
		return Result{OK: false, Error: err.Error()}, nil
	}
	out := Result{OK: true}
	if res != nil {
		out.Output = res.Text
		out.Data = res.Data
	}
	return out, nil
}

package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"butler/internal/action"
	"butler/internal/audit"
	"butler/internal/capability"
	"butler/internal/logging"
	"butler/internal/planner"
)

// outcome is the result of dispatching one action inside the loop.
// Exactly one of response/followup is set for a productive step; both
// nil signals the loop has nothing left to do.
type outcome struct {
	response      *Response
	followup      action.Action
	contextFields map[string]any
	image         string
	history       string
}

func (o *Orchestrator) dispatch(ctx context.Context, env Envelope, act action.Action, pc *planner.Context, iter int, pendingImage string) outcome {
	switch a := act.(type) {
	case *action.Respond:
		return o.handleRespond(ctx, env, a, pendingImage, iter)
	case *action.ToolCall:
		return o.handleToolCall(ctx, env, a, pc, iter)
	case *action.SkillCall:
		return o.handleSkillCall(ctx, env, a, pc, iter)
	default:
		// Unreachable after validation; treated as a no-op step.
		logging.AgentWarn("request %s dispatched unhandled kind %s", env.RequestID, act.Kind())
		return outcome{}
	}
}

// handleRespond terminates the turn: memory, audit, cache, reply.
func (o *Orchestrator) handleRespond(ctx context.Context, env Envelope, a *action.Respond, pendingImage string, iter int) outcome {
	if env.Text != "" {
		if err := o.deps.Memory.Append(ctx, env.SessionID, "user: "+env.Text); err != nil {
			logging.MemoryError("append failed for session %s: %v", env.SessionID, err)
		}
	}
	if err := o.deps.Memory.Append(ctx, env.SessionID, "assistant: "+a.Text); err != nil {
		logging.MemoryError("append failed for session %s: %v", env.SessionID, err)
	}

	o.writeAudit(env, audit.KindRespond, iter, func(rec *audit.Record) {
		rec.OK = true
		rec.Detail = truncate(a.Text, o.cfg.MaxToolResultBytes)
		rec.Meta = a.Meta()
	})

	resp := o.finish(env, Response{Text: a.Text, ImagePath: pendingImage})
	return outcome{response: &resp}
}

// handleToolCall routes the call and decides what the result feeds:
// a declared branch, a fresh planner turn, or the exhaustion path when
// the iteration budget ran out with no branch to take.
func (o *Orchestrator) handleToolCall(ctx context.Context, env Envelope, a *action.ToolCall, pc *planner.Context, iter int) outcome {
	res := o.deps.Router.Route(ctx, a, pc.ToolsContext)

	resultText := res.Output
	if !res.OK {
		resultText = res.Error
	}
	if resultText == "" {
		resultText = "(no output)"
	}
	resultText = truncate(resultText, o.cfg.MaxToolResultBytes)

	history := fmt.Sprintf("tool:%s.%s ok=%v", a.Tool, a.Op, res.OK)
	fields := map[string]any{
		"reason":      planner.ReasonToolResult,
		"tool":        a.Tool,
		"op":          a.Op,
		"tool_ok":     res.OK,
		"tool_result": resultText,
	}

	branch := a.OnSuccess
	if !res.OK {
		branch = a.OnFailure
	}
	if branch != nil {
		return outcome{
			followup:      branch,
			contextFields: fields,
			image:         res.ImagePath,
			history:       history,
		}
	}

	if iter >= o.cfg.MaxIterations {
		o.writeAudit(env, audit.KindToolExhausted, iter, func(rec *audit.Record) {
			rec.Tool, rec.Op = a.Tool, a.Op
			rec.OK = res.OK
			rec.Detail = resultText
			rec.Meta = a.Meta()
		})
		return outcome{history: history}
	}

	followup := &action.LlmCall{Prompt: env.Text}
	action.Stamp(followup, a.Meta())
	return outcome{
		followup:      followup,
		contextFields: fields,
		image:         res.ImagePath,
		history:       history,
	}
}

// handleSkillCall runs one phase of the skill contract. With input and
// an embedded handler it invokes the skill; otherwise it fetches detail
// and narrows the tool schema for the follow-up planning turn.
func (o *Orchestrator) handleSkillCall(ctx context.Context, env Envelope, a *action.SkillCall, pc *planner.Context, iter int) outcome {
	info, _ := o.skill(a.Name)

	if a.Input != "" && info.HasHandler {
		fields := map[string]any{
			"reason": planner.ReasonSkillResult,
			"skill":  a.Name,
		}
		res, err := o.deps.Skills.Invoke(ctx, a.Name, a.Input, pc.ToolsContext)
		switch {
		case err != nil:
			fields["skill_ok"] = false
			fields["skill_result"] = truncate(err.Error(), o.cfg.MaxToolResultBytes)
		case res != nil:
			fields["skill_ok"] = true
			fields["skill_result"] = truncate(res.Text, o.cfg.MaxToolResultBytes)
			if res.Data != nil {
				fields["skill_data"] = res.Data
			}
		default:
			fields["skill_ok"] = true
			fields["skill_result"] = "(no output)"
		}

		followup := &action.LlmCall{Prompt: env.Text}
		action.Stamp(followup, a.Meta())
		return outcome{
			followup:      followup,
			contextFields: fields,
			history:       fmt.Sprintf("skill:%s invoked", a.Name),
		}
	}

	detail, err := o.deps.Skills.Detail(a.Name)
	fields := map[string]any{"skill": a.Name}
	if err != nil {
		fields["reason"] = planner.ReasonPlannerError
		fields["error"] = fmt.Sprintf("skill %q detail unavailable: %v", a.Name, err)
	} else {
		fields["reason"] = planner.ReasonSkillDetail
		fields["skill_detail"] = truncate(detail, o.cfg.MaxToolResultBytes)
		fields["tools_context"] = o.filterSchemaForSkill(detail, info)
	}

	followup := &action.LlmCall{Prompt: env.Text}
	action.Stamp(followup, a.Meta())
	return outcome{
		followup:      followup,
		contextFields: fields,
		history:       fmt.Sprintf("skill:%s detail", a.Name),
	}
}

// acceptAsync handles a fire-and-forget direct route: the ack is cached
// and returned immediately, the real work runs detached, and its result
// goes to the audit sink instead of the user.
func (o *Orchestrator) acceptAsync(env Envelope, tc *action.ToolCall, route capability.DirectRoute, pc *planner.Context) Response {
	ack := route.Ack
	if ack == "" {
		ack = textAsyncAccepted
	}
	resp := o.finish(env, Response{
		Text:  ack,
		Async: &AsyncTask{ID: uuid.NewString(), Description: route.Command},
	})

	toolsCtx := pc.ToolsContext
	o.async.Go(func() {
		res := o.deps.Router.Route(context.Background(), tc, toolsCtx)
		o.writeAudit(env, audit.KindAsyncResult, 0, func(rec *audit.Record) {
			rec.Tool, rec.Op = tc.Tool, tc.Op
			rec.OK = res.OK
			detail := res.Output
			if !res.OK {
				detail = res.Error
			}
			rec.Detail = truncate(detail, o.cfg.MaxToolResultBytes)
		})
	})
	return resp
}

// asyncTracker tracks detached goroutines so shutdown can drain them.
type asyncTracker struct {
	wg sync.WaitGroup
}

func (t *asyncTracker) Go(fn func()) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		fn()
	}()
}

func (t *asyncTracker) Wait() { t.wg.Wait() }

func truncate(s string, max int) string {
	if max < 1 || len(s) <= max {
		return s
	}
	return s[:max] + " [truncated]"
}

func containsFold(lower, needle string) bool {
	return needle != "" && strings.Contains(lower, strings.ToLower(needle))
}

func keywordMatch(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if containsFold(lower, kw) {
			return true
		}
	}
	return false
}

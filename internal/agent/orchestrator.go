package agent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"butler/internal/action"
	"butler/internal/audit"
	"butler/internal/capability"
	"butler/internal/logging"
	"butler/internal/memory"
	"butler/internal/planner"
)

// Fixed user-visible replies. Internal detail (tool names, validation
// reasons) goes to the audit record, never to the user.
const (
	textPolicyRejected = "I'm not allowed to do that, so I'll stop here."
	textExhausted      = "I couldn't finish that within my action budget. Try rephrasing or splitting the request."
	textSelfPlanning   = "I got tangled up planning that one. Mind asking again?"
	textNoResponse     = "I finished working on that but have nothing further to report."
	textPlannerDown    = "I'm having trouble reaching my planner right now. Please try again shortly."
	textAsyncAccepted  = "On it. I'll report back when it's done."
)

// Config tunes the orchestrator loop. Zero values fall back to defaults.
type Config struct {
	// MaxIterations bounds the plan-act loop per request.
	MaxIterations int

	// TurnTimeout bounds one request end to end. Zero disables the
	// deadline, matching the historical behavior of unbounded turns.
	TurnTimeout time.Duration

	// MaxToolResultBytes limits how much tool or skill output is folded
	// back into planner context.
	MaxToolResultBytes int

	// HistoryLimit trims the action history handed to the planner.
	HistoryLimit int

	// Timezone names the location stamped into planning context.
	Timezone string

	// CacheMaxEntries and CacheTTL bound the completed-response cache.
	CacheMaxEntries int
	CacheTTL        time.Duration
}

// DefaultConfig returns the built-in loop settings.
func DefaultConfig() Config {
	return Config{
		MaxIterations:      5,
		MaxToolResultBytes: 8192,
		HistoryLimit:       20,
		Timezone:           "Local",
		CacheMaxEntries:    1024,
		CacheTTL:           24 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxIterations < 1 {
		c.MaxIterations = d.MaxIterations
	}
	if c.MaxToolResultBytes < 1 {
		c.MaxToolResultBytes = d.MaxToolResultBytes
	}
	if c.HistoryLimit < 1 {
		c.HistoryLimit = d.HistoryLimit
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.CacheMaxEntries < 1 {
		c.CacheMaxEntries = d.CacheMaxEntries
	}
	return c
}

// Deps are the orchestrator's injected collaborators. Planner, Registry,
// Router, Memory, Audit, and Policy are required; Skills is optional
// (a runtime without skills simply never validates a skill call as known).
type Deps struct {
	Planner  planner.Engine
	Registry *capability.Registry
	Router   *capability.Router
	Skills   capability.SkillManager
	Memory   memory.Store
	Audit    audit.Sink
	Policy   PolicyChecker
}

// Orchestrator owns the bounded plan-validate-act-recontextualize loop,
// the completed-response cache, and memory/audit side effects.
type Orchestrator struct {
	cfg   Config
	deps  Deps
	cache *responseCache
	group singleflight.Group
	loc   *time.Location
	now   func() time.Time

	async asyncTracker
}

// NewOrchestrator wires the orchestrator. Missing required dependencies
// fail here, at construction time, not per request.
func NewOrchestrator(deps Deps, cfg Config) (*Orchestrator, error) {
	switch {
	case deps.Planner == nil:
		return nil, errors.New("orchestrator requires a planner engine")
	case deps.Registry == nil:
		return nil, errors.New("orchestrator requires a capability registry")
	case deps.Router == nil:
		return nil, errors.New("orchestrator requires a router")
	case deps.Memory == nil:
		return nil, errors.New("orchestrator requires a memory store")
	case deps.Audit == nil:
		return nil, errors.New("orchestrator requires an audit sink")
	case deps.Policy == nil:
		return nil, errors.New("orchestrator requires a policy checker")
	}

	cfg = cfg.withDefaults()
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		cfg:   cfg,
		deps:  deps,
		cache: newResponseCache(cfg.CacheMaxEntries, cfg.CacheTTL),
		loc:   loc,
		now:   time.Now,
	}, nil
}

// Handle is the single public entry point: one envelope in, exactly one
// response out. Duplicate deliveries of the same request id are served
// from cache; concurrent duplicates are coalesced onto one execution.
func (o *Orchestrator) Handle(ctx context.Context, env Envelope) (Response, error) {
	if env.RequestID == "" {
		env.RequestID = uuid.NewString()
	}

	if resp, ok := o.cache.Get(env.RequestID); ok {
		logging.AgentDebug("request %s served from cache", env.RequestID)
		return resp, nil
	}

	v, err, _ := o.group.Do(env.RequestID, func() (any, error) {
		if resp, ok := o.cache.Get(env.RequestID); ok {
			return resp, nil
		}

		runCtx := ctx
		if o.cfg.TurnTimeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, o.cfg.TurnTimeout)
			defer cancel()
		}
		return o.run(runCtx, env)
	})
	if err != nil {
		return Response{}, err
	}
	return v.(Response), nil
}

// Close waits for in-flight fire-and-forget work to settle. Call it on
// shutdown so async tool results still reach the audit sink.
func (o *Orchestrator) Close() {
	o.async.Wait()
}

// run executes one request through the plan-act loop.
func (o *Orchestrator) run(ctx context.Context, env Envelope) (Response, error) {
	memText, err := o.deps.Memory.Read(ctx, env.SessionID)
	if err != nil {
		logging.MemoryError("memory read failed for session %s: %v", env.SessionID, err)
		memText = ""
	}

	pc := planner.NewContext(
		o.now().In(o.loc),
		o.loc.String(),
		memText,
		o.deps.Registry.BuildRuntimeContext(),
		o.skillsContext(),
		o.cfg.HistoryLimit,
	)

	var current action.Action
	if tc, route, ok := o.deps.Registry.MatchDirect(env.Text); ok {
		logging.Agent("request %s matched direct command %s", env.RequestID, route.Command)
		if route.FireAndForget {
			// The async path never re-enters the loop, so the policy
			// gate has to fire here before the work detaches.
			if dec := o.deps.Policy.Check(tc); !dec.Allowed {
				return o.rejectPolicy(env, tc, dec.Reason, 0), nil
			}
			return o.acceptAsync(env, tc, route, pc), nil
		}
		current = tc
	} else {
		current = &action.LlmCall{Prompt: env.Text}
	}

	var pendingImage string

	for iter := 1; iter <= o.cfg.MaxIterations; iter++ {
		if lc, ok := current.(*action.LlmCall); ok {
			logging.PlannerDebug("request %s iteration %d reason=%s", env.RequestID, iter, pc.Reason())

			res, err := o.deps.Planner.PlanWithMeta(ctx, lc.Prompt, pc)
			if err != nil {
				logging.AgentError("planner failed for request %s: %v", env.RequestID, err)
				o.writeAudit(env, audit.KindPlannerFailed, iter, func(rec *audit.Record) {
					rec.Detail = err.Error()
				})
				return o.finish(env, Response{Text: textPlannerDown}), nil
			}

			planned := res.Action
			if planned == nil {
				planned = &action.LlmCall{Prompt: lc.Prompt}
			}
			action.Stamp(planned, res.Meta)

			// The planner asking to ask itself again is a contract
			// violation; it must never loop on itself.
			if inner, isLlm := planned.(*action.LlmCall); isLlm {
				logging.AgentWarn("request %s planner emitted llm call, terminating", env.RequestID)
				apology := &action.Respond{Text: textSelfPlanning}
				action.Stamp(apology, inner.Meta())
				out := o.handleRespond(ctx, env, apology, pendingImage, iter)
				return *out.response, nil
			}

			validated, corrective := o.validatePlanned(planned, pc)
			if corrective != nil {
				logging.AgentDebug("request %s iteration %d planner output rejected: %v",
					env.RequestID, iter, corrective["error"])
				pc = pc.Merge(corrective).
					WithHistory(planner.HistoryEntry{Iteration: iter, Action: string(planned.Kind()) + ":rejected"})
				current = &action.LlmCall{Prompt: lc.Prompt}
				continue
			}
			current = validated
		}

		if dec := o.deps.Policy.Check(current); !dec.Allowed {
			return o.rejectPolicy(env, current, dec.Reason, iter), nil
		}

		out := o.dispatch(ctx, env, current, pc, iter, pendingImage)

		if out.history != "" {
			pc = pc.WithHistory(planner.HistoryEntry{Iteration: iter, Action: out.history})
		}
		if out.response != nil {
			return *out.response, nil
		}
		if out.followup == nil {
			if iter >= o.cfg.MaxIterations {
				break
			}
			return o.finish(env, Response{Text: textNoResponse}), nil
		}
		if out.contextFields != nil {
			pc = pc.Merge(out.contextFields)
		}
		if out.image != "" {
			pendingImage = out.image
		}
		// A pre-declared terminal branch costs no planner turn, so it may
		// still run when the budget is spent. Anything else cannot.
		if iter >= o.cfg.MaxIterations {
			if resp, ok := out.followup.(*action.Respond); ok {
				if dec := o.deps.Policy.Check(resp); !dec.Allowed {
					return o.rejectPolicy(env, resp, dec.Reason, iter), nil
				}
				final := o.handleRespond(ctx, env, resp, pendingImage, iter)
				return *final.response, nil
			}
			break
		}
		current = out.followup
	}

	logging.AgentWarn("request %s exhausted %d iterations", env.RequestID, o.cfg.MaxIterations)
	return o.finish(env, Response{Text: textExhausted}), nil
}

// finish caches a terminal response so duplicate deliveries stay
// idempotent, and returns it.
func (o *Orchestrator) finish(env Envelope, resp Response) Response {
	o.cache.Put(env.RequestID, resp)
	return resp
}

// rejectPolicy audits a denied action and returns the fixed rejection
// reply. The denial reason goes to the audit record, not the user.
func (o *Orchestrator) rejectPolicy(env Envelope, act action.Action, reason string, iter int) Response {
	logging.AgentWarn("request %s rejected by policy: %s", env.RequestID, reason)
	o.writeAudit(env, audit.KindPolicyReject, iter, func(rec *audit.Record) {
		rec.Detail = reason
		if tc, ok := act.(*action.ToolCall); ok {
			rec.Tool, rec.Op = tc.Tool, tc.Op
		}
		rec.Meta = act.Meta()
	})
	return o.finish(env, Response{Text: textPolicyRejected})
}

func (o *Orchestrator) writeAudit(env Envelope, kind string, iter int, fill func(*audit.Record)) {
	rec := audit.NewRecord(kind)
	rec.RequestID = env.RequestID
	rec.SessionID = env.SessionID
	rec.Source = env.Source
	rec.Iterations = iter
	if fill != nil {
		fill(&rec)
	}
	o.deps.Audit.Write(rec)
}

func (o *Orchestrator) skillsContext() []capability.SkillInfo {
	if o.deps.Skills == nil {
		return nil
	}
	return o.deps.Skills.List()
}

func (o *Orchestrator) skill(name string) (capability.SkillInfo, bool) {
	if o.deps.Skills == nil {
		return capability.SkillInfo{}, false
	}
	return o.deps.Skills.Get(name)
}

func (o *Orchestrator) skillNames() []string {
	skills := o.skillsContext()
	names := make([]string, 0, len(skills))
	for _, s := range skills {
		names = append(names, s.Name)
	}
	return names
}

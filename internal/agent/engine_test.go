package agent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"butler/internal/action"
	"butler/internal/audit"
	"butler/internal/capability"
	"butler/internal/memory"
	"butler/internal/planner"
)

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

// scriptedPlanner returns pre-programmed results in order, repeating the
// last step once the script runs out, and records every context it saw.
type scriptedPlanner struct {
	mu       sync.Mutex
	steps    []func(pc *planner.Context) planner.Result
	contexts []*planner.Context
	calls    int
	err      error
}

func (p *scriptedPlanner) PlanWithMeta(ctx context.Context, prompt string, pc *planner.Context) (planner.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.contexts = append(p.contexts, pc)
	idx := p.calls
	p.calls++
	if p.err != nil {
		return planner.Result{}, p.err
	}
	if idx >= len(p.steps) {
		idx = len(p.steps) - 1
	}
	return p.steps[idx](pc), nil
}

func (p *scriptedPlanner) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *scriptedPlanner) contextAt(i int) *planner.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.contexts[i]
}

func respondStep(text string) func(*planner.Context) planner.Result {
	return func(*planner.Context) planner.Result {
		return planner.Result{Action: &action.Respond{Text: text}, Meta: testMeta()}
	}
}

func testMeta() *action.PlanMeta {
	return &action.PlanMeta{Provider: "scripted", Model: "test-1", ParseOK: true}
}

// stubHandler is a capability handler with a programmable body.
type stubHandler struct {
	name string
	fn   func(op string, args map[string]any) (capability.Result, error)

	mu    sync.Mutex
	calls []string
}

func (h *stubHandler) Name() string { return h.name }

func (h *stubHandler) Execute(ctx context.Context, op string, args map[string]any, pctx map[string]any) (capability.Result, error) {
	h.mu.Lock()
	h.calls = append(h.calls, op)
	h.mu.Unlock()
	if h.fn != nil {
		return h.fn(op, args)
	}
	return capability.Result{OK: true, Output: h.name + " ran " + op}, nil
}

func (h *stubHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

type invokeCall struct {
	name  string
	input string
}

// fakeSkills is a programmable SkillManager recording detail and invoke
// traffic.
type fakeSkills struct {
	mu          sync.Mutex
	infos       map[string]capability.SkillInfo
	detailText  string
	detailCalls []string
	invokes     []invokeCall
	result      *capability.SkillResult
	invokeErr   error
}

func (f *fakeSkills) List() []capability.SkillInfo {
	out := make([]capability.SkillInfo, 0, len(f.infos))
	for _, info := range f.infos {
		out = append(out, info)
	}
	return out
}

func (f *fakeSkills) Get(name string) (capability.SkillInfo, bool) {
	info, ok := f.infos[name]
	return info, ok
}

func (f *fakeSkills) Detail(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls = append(f.detailCalls, name)
	return f.detailText, nil
}

func (f *fakeSkills) Invoke(ctx context.Context, name, input string, pctx map[string]any) (*capability.SkillResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invokes = append(f.invokes, invokeCall{name: name, input: input})
	return f.result, f.invokeErr
}

// fixture bundles one fully wired orchestrator with inspectable doubles.
type fixture struct {
	orch     *Orchestrator
	planner  *scriptedPlanner
	registry *capability.Registry
	clock    *stubHandler
	skills   *fakeSkills
	sink     *audit.MemorySink
	mem      *memory.InMemoryStore
}

func newFixture(t *testing.T, p *scriptedPlanner, cfg Config, policy PolicyChecker) *fixture {
	t.Helper()

	registry := capability.NewRegistry()
	clock := &stubHandler{name: "clock"}
	require.NoError(t, registry.Register(clock, capability.SchemaItem{
		Name: "clock",
		Ops:  []capability.OpSpec{{Op: "now"}, {Op: "timer"}},
	}))
	echo := &stubHandler{name: "echo", fn: func(op string, args map[string]any) (capability.Result, error) {
		input, _ := args["input"].(string)
		return capability.Result{OK: true, Output: input}, nil
	}}
	require.NoError(t, registry.Register(echo, capability.SchemaItem{
		Name: "echo",
		Ops:  []capability.OpSpec{{Op: "say"}},
	}))

	skills := &fakeSkills{
		infos: map[string]capability.SkillInfo{
			"research": {Name: "research", Description: "look things up", HasHandler: true},
		},
		detailText: "research uses the echo tool to repeat findings",
		result:     &capability.SkillResult{Text: "research complete"},
	}

	sink := audit.NewMemorySink()
	mem := memory.NewInMemoryStore(50)

	if policy == nil {
		policy = AllowAll()
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}

	orch, err := NewOrchestrator(Deps{
		Planner:  p,
		Registry: registry,
		Router:   capability.NewRouter(registry),
		Skills:   skills,
		Memory:   mem,
		Audit:    sink,
		Policy:   policy,
	}, cfg)
	require.NoError(t, err)

	return &fixture{orch: orch, planner: p, registry: registry, clock: clock, skills: skills, sink: sink, mem: mem}
}

func auditKinds(sink *audit.MemorySink) []string {
	recs := sink.Records()
	kinds := make([]string, 0, len(recs))
	for _, rec := range recs {
		kinds = append(kinds, rec.Kind)
	}
	return kinds
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestRespondFlow(t *testing.T) {
	p := &scriptedPlanner{steps: []func(*planner.Context) planner.Result{respondStep("hi there")}}
	f := newFixture(t, p, Config{}, nil)

	resp, err := f.orch.Handle(context.Background(), NewEnvelope("s1", "cli", "hello"))
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Text)
	assert.Equal(t, 1, p.callCount())

	mem, err := f.mem.Read(context.Background(), "s1")
	require.NoError(t, err)
	assert.Contains(t, mem, "user: hello")
	assert.Contains(t, mem, "assistant: hi there")

	recs := f.sink.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, audit.KindRespond, recs[0].Kind)
	require.NotNil(t, recs[0].Meta)
	assert.Equal(t, "test-1", recs[0].Meta.Model)
}

func TestDuplicateDeliveryIsIdempotent(t *testing.T) {
	p := &scriptedPlanner{steps: []func(*planner.Context) planner.Result{respondStep("once")}}
	f := newFixture(t, p, Config{}, nil)

	env := NewEnvelope("s1", "cli", "hello")
	first, err := f.orch.Handle(context.Background(), env)
	require.NoError(t, err)
	second, err := f.orch.Handle(context.Background(), env)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, p.callCount(), "duplicate delivery must not re-plan")
	assert.Len(t, f.sink.Records(), 1, "duplicate delivery must not re-audit")
}

func TestIterationBudgetExhaustion(t *testing.T) {
	// A planner that always wants another tool call must be cut off after
	// exactly MaxIterations planning turns.
	p := &scriptedPlanner{steps: []func(*planner.Context) planner.Result{
		func(*planner.Context) planner.Result {
			return planner.Result{Action: &action.ToolCall{Tool: "clock", Op: "now"}, Meta: testMeta()}
		},
	}}
	f := newFixture(t, p, Config{MaxIterations: 2}, nil)

	resp, err := f.orch.Handle(context.Background(), NewEnvelope("s1", "cli", "loop forever"))
	require.NoError(t, err)
	assert.Equal(t, textExhausted, resp.Text)
	assert.Equal(t, 2, p.callCount())
	assert.Equal(t, 2, f.clock.callCount())

	recs := f.sink.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, audit.KindToolExhausted, recs[0].Kind)
	assert.Equal(t, "clock", recs[0].Tool)
	assert.Equal(t, "now", recs[0].Op)
	assert.Equal(t, 2, recs[0].Iterations)
}

func TestUnknownToolTriggersSelfCorrection(t *testing.T) {
	p := &scriptedPlanner{steps: []func(*planner.Context) planner.Result{
		func(*planner.Context) planner.Result {
			return planner.Result{Action: &action.ToolCall{Tool: "nonexistent", Op: "go"}, Meta: testMeta()}
		},
		respondStep("recovered"),
	}}
	f := newFixture(t, p, Config{}, nil)

	resp, err := f.orch.Handle(context.Background(), NewEnvelope("s1", "cli", "do something"))
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Text)
	require.Equal(t, 2, p.callCount())

	pc := p.contextAt(1)
	assert.Equal(t, planner.ReasonPlannerError, pc.Reason())
	assert.Equal(t, []string{"clock", "echo"}, pc.NextStep["allowed_tools"])
	assert.Equal(t, []string{"research"}, pc.NextStep["allowed_skills"])
	assert.Contains(t, pc.NextStep["error"], "nonexistent")
}

func TestUnknownOpTriggersSelfCorrection(t *testing.T) {
	p := &scriptedPlanner{steps: []func(*planner.Context) planner.Result{
		func(*planner.Context) planner.Result {
			return planner.Result{Action: &action.ToolCall{Tool: "clock", Op: "explode"}, Meta: testMeta()}
		},
		respondStep("recovered"),
	}}
	f := newFixture(t, p, Config{}, nil)

	resp, err := f.orch.Handle(context.Background(), NewEnvelope("s1", "cli", "do something"))
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Text)

	pc := p.contextAt(1)
	assert.Equal(t, planner.ReasonPlannerError, pc.Reason())
	assert.Equal(t, []string{"now", "timer"}, pc.NextStep["allowed_ops"])
	assert.Zero(t, f.clock.callCount(), "invalid op must never reach the handler")
}

func TestToolResultFoldsIntoNextContext(t *testing.T) {
	p := &scriptedPlanner{steps: []func(*planner.Context) planner.Result{
		func(*planner.Context) planner.Result {
			return planner.Result{Action: &action.ToolCall{Tool: "clock", Op: "now"}, Meta: testMeta()}
		},
		respondStep("it is late"),
	}}
	f := newFixture(t, p, Config{}, nil)

	resp, err := f.orch.Handle(context.Background(), NewEnvelope("s1", "cli", "what time is it"))
	require.NoError(t, err)
	assert.Equal(t, "it is late", resp.Text)

	pc := p.contextAt(1)
	assert.Equal(t, planner.ReasonToolResult, pc.Reason())
	assert.Equal(t, "clock", pc.NextStep["tool"])
	assert.Equal(t, true, pc.NextStep["tool_ok"])
	assert.Equal(t, "clock ran now", pc.NextStep["tool_result"])
	require.Len(t, pc.History, 1)
	assert.Equal(t, "tool:clock.now ok=true", pc.History[0].Action)
}

func TestToolResultTruncatedAtLimit(t *testing.T) {
	big := make([]byte, 256)
	for i := range big {
		big[i] = 'x'
	}
	p := &scriptedPlanner{steps: []func(*planner.Context) planner.Result{
		func(*planner.Context) planner.Result {
			return planner.Result{Action: &action.ToolCall{Tool: "echo", Op: "say",
				Args: map[string]any{"input": string(big)}}, Meta: testMeta()}
		},
		respondStep("done"),
	}}
	f := newFixture(t, p, Config{MaxToolResultBytes: 64}, nil)

	_, err := f.orch.Handle(context.Background(), NewEnvelope("s1", "cli", "say a lot"))
	require.NoError(t, err)

	result, _ := p.contextAt(1).NextStep["tool_result"].(string)
	assert.Len(t, result, 64+len(" [truncated]"))
	assert.Contains(t, result, "[truncated]")
}

func TestBranchRunsWithoutReplanAndKeepsMeta(t *testing.T) {
	meta := testMeta()
	p := &scriptedPlanner{steps: []func(*planner.Context) planner.Result{
		func(*planner.Context) planner.Result {
			return planner.Result{Action: &action.ToolCall{
				Tool:      "clock",
				Op:        "now",
				OnSuccess: &action.Respond{Text: "branch reply"},
			}, Meta: meta}
		},
	}}
	f := newFixture(t, p, Config{}, nil)

	resp, err := f.orch.Handle(context.Background(), NewEnvelope("s1", "cli", "time please"))
	require.NoError(t, err)
	assert.Equal(t, "branch reply", resp.Text)
	assert.Equal(t, 1, p.callCount(), "success branch must not cost a planner turn")

	recs := f.sink.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, audit.KindRespond, recs[0].Kind)
	require.NotNil(t, recs[0].Meta, "branch action must carry its planner provenance")
	assert.Equal(t, meta.Model, recs[0].Meta.Model)
}

func TestFailureBranchSelectedOnToolError(t *testing.T) {
	p := &scriptedPlanner{steps: []func(*planner.Context) planner.Result{
		func(*planner.Context) planner.Result {
			return planner.Result{Action: &action.ToolCall{
				Tool:      "clock",
				Op:        "timer",
				OnSuccess: &action.Respond{Text: "set"},
				OnFailure: &action.Respond{Text: "could not set a timer"},
			}, Meta: testMeta()}
		},
	}}
	f := newFixture(t, p, Config{}, nil)
	f.clock.fn = func(op string, args map[string]any) (capability.Result, error) {
		return capability.Result{}, errors.New("hardware unavailable")
	}

	resp, err := f.orch.Handle(context.Background(), NewEnvelope("s1", "cli", "set a timer"))
	require.NoError(t, err)
	assert.Equal(t, "could not set a timer", resp.Text)
}

func TestSkillTwoPhaseContract(t *testing.T) {
	p := &scriptedPlanner{steps: []func(*planner.Context) planner.Result{
		// Input supplied before the detail fetch must be dropped.
		func(*planner.Context) planner.Result {
			return planner.Result{Action: &action.SkillCall{Name: "research", Input: "premature"}, Meta: testMeta()}
		},
		func(*planner.Context) planner.Result {
			return planner.Result{Action: &action.SkillCall{Name: "research", Input: "topic: tides"}, Meta: testMeta()}
		},
		respondStep("research says: tides"),
	}}
	f := newFixture(t, p, Config{}, nil)

	resp, err := f.orch.Handle(context.Background(), NewEnvelope("s1", "cli", "research the tides"))
	require.NoError(t, err)
	assert.Equal(t, "research says: tides", resp.Text)
	assert.Equal(t, 3, p.callCount())

	assert.Equal(t, []string{"research"}, f.skills.detailCalls)
	require.Len(t, f.skills.invokes, 1)
	assert.Equal(t, invokeCall{name: "research", input: "topic: tides"}, f.skills.invokes[0])

	detailCtx := p.contextAt(1)
	assert.Equal(t, planner.ReasonSkillDetail, detailCtx.Reason())
	items, ok := detailCtx.NextStep["tools_context"].([]capability.SchemaItem)
	require.True(t, ok)
	require.Len(t, items, 1, "detail text mentions only the echo tool")
	assert.Equal(t, "echo", items[0].Name)

	resultCtx := p.contextAt(2)
	assert.Equal(t, planner.ReasonSkillResult, resultCtx.Reason())
	assert.Equal(t, "research complete", resultCtx.NextStep["skill_result"])
}

func TestUnknownSkillTriggersSelfCorrection(t *testing.T) {
	p := &scriptedPlanner{steps: []func(*planner.Context) planner.Result{
		func(*planner.Context) planner.Result {
			return planner.Result{Action: &action.SkillCall{Name: "alchemy"}, Meta: testMeta()}
		},
		respondStep("recovered"),
	}}
	f := newFixture(t, p, Config{}, nil)

	resp, err := f.orch.Handle(context.Background(), NewEnvelope("s1", "cli", "turn lead into gold"))
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Text)

	pc := p.contextAt(1)
	assert.Equal(t, planner.ReasonPlannerError, pc.Reason())
	assert.Equal(t, []string{"research"}, pc.NextStep["allowed_skills"])
}

func TestToolNameThatIsASkillIsRewritten(t *testing.T) {
	p := &scriptedPlanner{steps: []func(*planner.Context) planner.Result{
		func(*planner.Context) planner.Result {
			return planner.Result{Action: &action.ToolCall{Tool: "research", Op: "run"}, Meta: testMeta()}
		},
		respondStep("done"),
	}}
	f := newFixture(t, p, Config{}, nil)

	_, err := f.orch.Handle(context.Background(), NewEnvelope("s1", "cli", "research something"))
	require.NoError(t, err)

	// The slip costs no correction turn: the rewrite goes straight to the
	// detail phase.
	assert.Equal(t, []string{"research"}, f.skills.detailCalls)
	assert.Equal(t, planner.ReasonSkillDetail, p.contextAt(1).Reason())
}

func TestDirectCommandBypassesPlanner(t *testing.T) {
	p := &scriptedPlanner{steps: []func(*planner.Context) planner.Result{respondStep("never")}}
	f := newFixture(t, p, Config{}, nil)

	var gotInput string
	f.clock.fn = func(op string, args map[string]any) (capability.Result, error) {
		gotInput, _ = args["input"].(string)
		return capability.Result{OK: true, Output: "12:00"}, nil
	}
	require.NoError(t, f.registry.RegisterDirect(capability.DirectRoute{
		Command: "/time", Tool: "clock", Op: "now",
	}))

	// A direct tool call has no branches; the result feeds one planner
	// turn to phrase the reply. The initial selection is bypassed.
	p.steps = []func(*planner.Context) planner.Result{respondStep("the time is 12:00")}

	resp, err := f.orch.Handle(context.Background(), NewEnvelope("s1", "cli", "/TIME in berlin"))
	require.NoError(t, err)
	assert.Equal(t, "the time is 12:00", resp.Text)
	assert.Equal(t, "in berlin", gotInput)
	assert.Equal(t, 1, p.callCount(), "direct match skips the initial planning turn")
	assert.Equal(t, planner.ReasonToolResult, p.contextAt(0).Reason())
}

func TestDirectFireAndForgetAcksImmediately(t *testing.T) {
	p := &scriptedPlanner{steps: []func(*planner.Context) planner.Result{respondStep("never")}}
	f := newFixture(t, p, Config{}, nil)

	require.NoError(t, f.registry.RegisterDirect(capability.DirectRoute{
		Command: "/sync", Tool: "clock", Op: "now",
		FireAndForget: true, Ack: "sync queued",
	}))

	resp, err := f.orch.Handle(context.Background(), NewEnvelope("s1", "cli", "/sync"))
	require.NoError(t, err)
	assert.Equal(t, "sync queued", resp.Text)
	require.NotNil(t, resp.Async)
	assert.Equal(t, "/sync", resp.Async.Description)
	assert.Zero(t, p.callCount())

	f.orch.Close()
	kinds := auditKinds(f.sink)
	require.Len(t, kinds, 1)
	assert.Equal(t, audit.KindAsyncResult, kinds[0])
	assert.Equal(t, 1, f.clock.callCount())
}

func TestPolicyRejectionStopsTheTurn(t *testing.T) {
	p := &scriptedPlanner{steps: []func(*planner.Context) planner.Result{
		func(*planner.Context) planner.Result {
			return planner.Result{Action: &action.ToolCall{Tool: "clock", Op: "now"}, Meta: testMeta()}
		},
	}}
	policy := PolicyFunc(func(act action.Action) Decision {
		if act.Kind() == action.KindToolCall {
			return Decision{Allowed: false, Reason: "tools disabled for this session"}
		}
		return Decision{Allowed: true}
	})
	f := newFixture(t, p, Config{}, policy)

	resp, err := f.orch.Handle(context.Background(), NewEnvelope("s1", "cli", "what time is it"))
	require.NoError(t, err)
	assert.Equal(t, textPolicyRejected, resp.Text)
	assert.Zero(t, f.clock.callCount(), "rejected action must not execute")

	recs := f.sink.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, audit.KindPolicyReject, recs[0].Kind)
	assert.Equal(t, "tools disabled for this session", recs[0].Detail)
	assert.Equal(t, "clock", recs[0].Tool)
}

func TestFireAndForgetRouteIsPolicyChecked(t *testing.T) {
	// Async direct routes skip the loop, not the policy gate: a denied
	// capability must stay denied behind a fire-and-forget command.
	p := &scriptedPlanner{steps: []func(*planner.Context) planner.Result{respondStep("never")}}
	policy := PolicyFunc(func(act action.Action) Decision {
		if act.Kind() == action.KindToolCall {
			return Decision{Allowed: false, Reason: "tools disabled"}
		}
		return Decision{Allowed: true}
	})
	f := newFixture(t, p, Config{}, policy)

	require.NoError(t, f.registry.RegisterDirect(capability.DirectRoute{
		Command: "/wipe", Tool: "clock", Op: "now",
		FireAndForget: true, Ack: "queued",
	}))

	resp, err := f.orch.Handle(context.Background(), NewEnvelope("s1", "cli", "/wipe"))
	require.NoError(t, err)
	assert.Equal(t, textPolicyRejected, resp.Text)
	assert.Nil(t, resp.Async)

	f.orch.Close()
	assert.Zero(t, f.clock.callCount(), "denied tool must not run asynchronously")
	assert.Zero(t, p.callCount())

	recs := f.sink.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, audit.KindPolicyReject, recs[0].Kind)
	assert.Equal(t, "clock", recs[0].Tool)
}

func TestTerminalBranchRunsOnFinalIteration(t *testing.T) {
	// A pre-declared Respond branch needs no planner turn, so spending
	// the last iteration on its tool call must not forfeit the reply.
	meta := testMeta()
	p := &scriptedPlanner{steps: []func(*planner.Context) planner.Result{
		func(*planner.Context) planner.Result {
			return planner.Result{Action: &action.ToolCall{
				Tool:      "clock",
				Op:        "now",
				OnSuccess: &action.Respond{Text: "finished"},
			}, Meta: meta}
		},
	}}
	f := newFixture(t, p, Config{MaxIterations: 1}, nil)

	resp, err := f.orch.Handle(context.Background(), NewEnvelope("s1", "cli", "time please"))
	require.NoError(t, err)
	assert.Equal(t, "finished", resp.Text)
	assert.Equal(t, 1, p.callCount())
	assert.Equal(t, 1, f.clock.callCount())

	recs := f.sink.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, audit.KindRespond, recs[0].Kind)
	require.NotNil(t, recs[0].Meta)
	assert.Equal(t, meta.Model, recs[0].Meta.Model)
}

func TestPlannerEmittedLlmCallTerminates(t *testing.T) {
	p := &scriptedPlanner{steps: []func(*planner.Context) planner.Result{
		func(*planner.Context) planner.Result {
			return planner.Result{Action: &action.LlmCall{Prompt: "ask me again"}, Meta: testMeta()}
		},
	}}
	f := newFixture(t, p, Config{}, nil)

	env := NewEnvelope("s1", "cli", "hello")
	resp, err := f.orch.Handle(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, textSelfPlanning, resp.Text)
	assert.Equal(t, 1, p.callCount(), "the loop must not re-enter the planner")

	// The apology is a terminal response like any other: cached.
	again, err := f.orch.Handle(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, resp, again)
	assert.Equal(t, 1, p.callCount())
}

func TestPlannerFailureYieldsFixedReply(t *testing.T) {
	p := &scriptedPlanner{err: errors.New("upstream 503")}
	f := newFixture(t, p, Config{}, nil)

	resp, err := f.orch.Handle(context.Background(), NewEnvelope("s1", "cli", "hello"))
	require.NoError(t, err)
	assert.Equal(t, textPlannerDown, resp.Text)

	recs := f.sink.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, audit.KindPlannerFailed, recs[0].Kind)
	assert.Contains(t, recs[0].Detail, "503")
}

func TestImageFromToolAttachedToFinalReply(t *testing.T) {
	p := &scriptedPlanner{steps: []func(*planner.Context) planner.Result{
		func(*planner.Context) planner.Result {
			return planner.Result{Action: &action.ToolCall{Tool: "clock", Op: "now"}, Meta: testMeta()}
		},
		respondStep("here is the chart"),
	}}
	f := newFixture(t, p, Config{}, nil)
	f.clock.fn = func(op string, args map[string]any) (capability.Result, error) {
		return capability.Result{OK: true, Output: "rendered", ImagePath: "/tmp/chart.png"}, nil
	}

	resp, err := f.orch.Handle(context.Background(), NewEnvelope("s1", "cli", "chart please"))
	require.NoError(t, err)
	assert.Equal(t, "here is the chart", resp.Text)
	assert.Equal(t, "/tmp/chart.png", resp.ImagePath)
}

func TestNewOrchestratorRejectsMissingDeps(t *testing.T) {
	p := &scriptedPlanner{}
	registry := capability.NewRegistry()

	_, err := NewOrchestrator(Deps{}, Config{})
	assert.Error(t, err)

	_, err = NewOrchestrator(Deps{
		Planner:  p,
		Registry: registry,
		Router:   capability.NewRouter(registry),
		Memory:   memory.NewInMemoryStore(10),
		Audit:    audit.NewMemorySink(),
	}, Config{})
	assert.Error(t, err, "missing policy must fail construction")
}

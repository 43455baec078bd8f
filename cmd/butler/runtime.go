package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"butler/internal/action"
	"butler/internal/agent"
	"butler/internal/audit"
	"butler/internal/capability"
	"butler/internal/config"
	"butler/internal/memory"
	"butler/internal/planner"
	"butler/internal/sequencer"
)

// runtime bundles the wired agent stack behind the chat REPL.
type runtime struct {
	orch *agent.Orchestrator
	seq  *sequencer.Sequencer
}

func (r *runtime) Close() {
	r.orch.Close()
}

// buildRuntime wires the demo registry, planner rules, and orchestrator
// from configuration. Everything here is swappable: a deployment replaces
// the rule engine with a model-backed planner and the in-memory stores
// with durable ones without touching the loop.
func buildRuntime(cfg *config.Config) (*runtime, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	registry := capability.NewRegistry()
	if err := registry.Register(&clockHandler{loc: loc}, capability.SchemaItem{
		Name:     "clock",
		Resource: "time",
		Ops: []capability.OpSpec{
			{Op: "now", ParamDescriptions: map[string]string{"input": "ignored"}},
		},
		Keywords: []string{"time", "clock", "date"},
	}); err != nil {
		return nil, err
	}
	if err := registry.Register(&echoHandler{}, capability.SchemaItem{
		Name: "echo",
		Ops: []capability.OpSpec{
			{Op: "say", Params: []string{"input"}},
		},
		Keywords: []string{"echo", "repeat"},
	}); err != nil {
		return nil, err
	}

	skills := newDemoSkills()
	if err := registry.Register(capability.NewSkillHandler(skills)); err != nil {
		return nil, err
	}

	directRoutes := []capability.DirectRoute{
		{Command: "/time", Tool: "clock", Op: "now", ArgMode: capability.ArgModeRest},
		{Command: "/echo", Tool: "echo", Op: "say", ArgMode: capability.ArgModeRest},
		{Command: "/ping", Tool: "echo", Op: "say", ArgMode: capability.ArgModeFull,
			FireAndForget: true, Ack: "pong (queued)"},
	}
	for _, route := range directRoutes {
		if err := registry.RegisterDirect(route); err != nil {
			return nil, err
		}
	}

	engine := planner.NewRuleEngine(
		planner.KeywordRule("clock", func(string, *planner.Context) action.Action {
			return &action.ToolCall{Tool: "clock", Op: "now"}
		}, "time", "clock", "date"),
		planner.KeywordRule("shout", func(prompt string, _ *planner.Context) action.Action {
			return &action.SkillCall{Name: "shout", Input: strings.TrimSpace(prompt)}
		}, "shout", "louder"),
	)

	turnTimeout, err := cfg.TurnTimeout()
	if err != nil {
		return nil, err
	}
	cacheTTL, err := cfg.CacheTTL()
	if err != nil {
		return nil, err
	}

	orch, err := agent.NewOrchestrator(agent.Deps{
		Planner:  engine,
		Registry: registry,
		Router:   capability.NewRouter(registry),
		Skills:   skills,
		Memory:   memory.NewInMemoryStore(cfg.Agent.HistoryLimit * 4),
		Audit:    audit.NewZapSink(nil),
		Policy:   agent.AllowAll(),
	}, agent.Config{
		MaxIterations:      cfg.Agent.MaxIterations,
		TurnTimeout:        turnTimeout,
		MaxToolResultBytes: cfg.Agent.MaxToolResultBytes,
		HistoryLimit:       cfg.Agent.HistoryLimit,
		Timezone:           cfg.Timezone,
		CacheMaxEntries:    cfg.Cache.MaxEntries,
		CacheTTL:           cacheTTL,
	})
	if err != nil {
		return nil, err
	}

	return &runtime{orch: orch, seq: sequencer.New(orch)}, nil
}

// clockHandler serves the demo clock capability.
type clockHandler struct {
	loc *time.Location
}

func (h *clockHandler) Name() string { return "clock" }

func (h *clockHandler) Execute(ctx context.Context, op string, args map[string]any, pctx map[string]any) (capability.Result, error) {
	switch op {
	case "now":
		now := time.Now().In(h.loc)
		return capability.Result{
			OK:     true,
			Output: now.Format("Mon Jan 2 15:04:05 MST 2006"),
			Data:   map[string]any{"unix": now.Unix()},
		}, nil
	default:
		return capability.Result{}, fmt.Errorf("clock does not support op %q", op)
	}
}

// RuntimeContext exposes the configured timezone to the planner.
func (h *clockHandler) RuntimeContext() map[string]any {
	return map[string]any{"timezone": h.loc.String()}
}

// echoHandler repeats its input back.
type echoHandler struct{}

func (h *echoHandler) Name() string { return "echo" }

func (h *echoHandler) Execute(ctx context.Context, op string, args map[string]any, pctx map[string]any) (capability.Result, error) {
	input, _ := args["input"].(string)
	if input == "" {
		return capability.Result{OK: false, Error: "nothing to echo"}, nil
	}
	return capability.Result{OK: true, Output: input}, nil
}

// demoSkills is a static skill table with one invocable skill.
type demoSkills struct {
	infos map[string]capability.SkillInfo
}

func newDemoSkills() *demoSkills {
	return &demoSkills{
		infos: map[string]capability.SkillInfo{
			"shout": {
				Name:        "shout",
				Description: "repeat the input at full volume",
				Tools:       []string{"echo"},
				HasHandler:  true,
			},
		},
	}
}

func (s *demoSkills) List() []capability.SkillInfo {
	out := make([]capability.SkillInfo, 0, len(s.infos))
	for _, info := range s.infos {
		out = append(out, info)
	}
	return out
}

func (s *demoSkills) Get(name string) (capability.SkillInfo, bool) {
	info, ok := s.infos[name]
	return info, ok
}

func (s *demoSkills) Detail(name string) (string, error) {
	info, ok := s.infos[name]
	if !ok {
		return "", fmt.Errorf("unknown skill %q", name)
	}
	return fmt.Sprintf("%s: %s. Provide the text to shout as input.", info.Name, info.Description), nil
}

func (s *demoSkills) Invoke(ctx context.Context, name, input string, pctx map[string]any) (*capability.SkillResult, error) {
	if _, ok := s.infos[name]; !ok {
		return nil, fmt.Errorf("unknown skill %q", name)
	}
	return &capability.SkillResult{Text: strings.ToUpper(input) + "!!!"}, nil
}

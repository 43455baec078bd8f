package planner

import (
	"context"
	"fmt"
	"strings"

	"butler/internal/action"
	"butler/internal/logging"
)

// Rule maps recognizable prompts to actions. Rules are evaluated in
// order; the first match wins.
type Rule struct {
	// Name identifies the rule in logs.
	Name string

	// Match reports whether the rule applies to this prompt and context.
	Match func(prompt string, pc *Context) bool

	// Plan produces the action for a matched prompt.
	Plan func(prompt string, pc *Context) action.Action
}

// RuleEngine is a deterministic Engine built from an ordered rule list.
// It backs the CLI and tests; a model-backed engine implements the same
// interface behind the same contract.
type RuleEngine struct {
	rules []Rule
}

// NewRuleEngine creates an engine over the given rules.
func NewRuleEngine(rules ...Rule) *RuleEngine {
	return &RuleEngine{rules: rules}
}

// PlanWithMeta implements Engine. When no rule matches, the engine
// falls back to phrasing whatever result the context carries, or to a
// plain echo of the prompt on the first turn.
func (e *RuleEngine) PlanWithMeta(ctx context.Context, prompt string, pc *Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	meta := &action.PlanMeta{
		Provider:  "rules",
		Model:     "rule-engine-v1",
		ParseOK:   true,
		RawLength: len(prompt),
	}

	for _, rule := range e.rules {
		if rule.Match(prompt, pc) {
			logging.PlannerDebug("rule %s matched", rule.Name)
			return Result{Action: rule.Plan(prompt, pc), Meta: meta}, nil
		}
	}

	meta.Fallback = true
	return Result{Action: e.fallback(prompt, pc), Meta: meta}, nil
}

func (e *RuleEngine) fallback(prompt string, pc *Context) action.Action {
	switch pc.Reason() {
	case ReasonToolResult:
		result, _ := pc.NextStep["tool_result"].(string)
		if ok, _ := pc.NextStep["tool_ok"].(bool); !ok {
			return &action.Respond{Text: fmt.Sprintf("That didn't work: %s", result)}
		}
		return &action.Respond{Text: result}
	case ReasonSkillResult:
		result, _ := pc.NextStep["skill_result"].(string)
		return &action.Respond{Text: result}
	case ReasonSkillDetail:
		detail, _ := pc.NextStep["skill_detail"].(string)
		return &action.Respond{Text: detail}
	case ReasonPlannerError:
		reason, _ := pc.NextStep["error"].(string)
		return &action.Respond{Text: "I can't do that: " + reason}
	default:
		return &action.Respond{Text: "You said: " + strings.TrimSpace(prompt)}
	}
}

// KeywordRule builds a rule matching any of the given keywords,
// case-insensitively, on the initial planning turn only.
func KeywordRule(name string, plan func(prompt string, pc *Context) action.Action, keywords ...string) Rule {
	return Rule{
		Name: name,
		Match: func(prompt string, pc *Context) bool {
			if pc.Reason() != ReasonInitial {
				return false
			}
			lower := strings.ToLower(prompt)
			for _, kw := range keywords {
				if strings.Contains(lower, strings.ToLower(kw)) {
					return true
				}
			}
			return false
		},
		Plan: plan,
	}
}

package agent

import (
	"fmt"
	"strings"

	"butler/internal/action"
	"butler/internal/capability"
	"butler/internal/planner"
)

// validatePlanned checks a planner-produced action against the registry
// and the skill table before it may execute. On success it returns the
// action to run (possibly rewritten). On failure it returns corrective
// next-step fields; the caller merges them and asks the planner again,
// so a bad plan costs an iteration but never crashes the turn.
func (o *Orchestrator) validatePlanned(planned action.Action, pc *planner.Context) (action.Action, map[string]any) {
	switch a := planned.(type) {
	case *action.Respond:
		return a, nil

	case *action.ToolCall:
		if !o.deps.Registry.Has(a.Tool) {
			// A tool name that is actually a skill name is a common
			// planner slip; rewrite instead of rejecting.
			if _, ok := o.skill(a.Tool); ok {
				input, _ := a.Args["input"].(string)
				sc := &action.SkillCall{Name: a.Tool, Input: input}
				action.Stamp(sc, a.Meta())
				return o.validatePlanned(sc, pc)
			}
			return nil, map[string]any{
				"reason":         planner.ReasonPlannerError,
				"error":          fmt.Sprintf("tool %q is not registered", a.Tool),
				"allowed_tools":  o.deps.Registry.SchemaNames(),
				"allowed_skills": o.skillNames(),
			}
		}
		if !o.deps.Registry.KnownOp(a.Tool, a.Op) {
			return nil, map[string]any{
				"reason":      planner.ReasonPlannerError,
				"error":       fmt.Sprintf("tool %q has no operation %q", a.Tool, a.Op),
				"tool":        a.Tool,
				"allowed_ops": o.deps.Registry.Ops(a.Tool),
			}
		}
		for _, branch := range []action.Action{a.OnSuccess, a.OnFailure} {
			if branch == nil {
				continue
			}
			if _, corrective := o.validatePlanned(branch, pc); corrective != nil {
				return nil, corrective
			}
		}
		return a, nil

	case *action.SkillCall:
		if _, ok := o.skill(a.Name); !ok {
			return nil, map[string]any{
				"reason":         planner.ReasonPlannerError,
				"error":          fmt.Sprintf("skill %q is not known", a.Name),
				"allowed_skills": o.skillNames(),
			}
		}
		// Skills execute in two phases: detail first, input only after
		// the planner has seen the detail. Input supplied too early is
		// dropped, forcing the detail fetch.
		if a.Input != "" && pc.Reason() != planner.ReasonSkillDetail {
			cleared := &action.SkillCall{Name: a.Name}
			action.Stamp(cleared, a.Meta())
			return cleared, nil
		}
		return a, nil

	default:
		return nil, map[string]any{
			"reason": planner.ReasonPlannerError,
			"error":  fmt.Sprintf("action kind %q cannot be executed", planned.Kind()),
		}
	}
}

// filterSchemaForSkill narrows the declared schema to the capabilities a
// skill's detail text plausibly needs: force-included tools, the terminal
// capability for terminal skills, and anything the detail mentions by
// name or keyword.
func (o *Orchestrator) filterSchemaForSkill(detail string, info capability.SkillInfo) []capability.SchemaItem {
	forced := make(map[string]bool, len(info.Tools)+1)
	for _, name := range info.Tools {
		forced[name] = true
	}
	if info.Terminal {
		forced["terminal"] = true
	}

	lower := strings.ToLower(detail)
	var out []capability.SchemaItem
	for _, item := range o.deps.Registry.ListSchema() {
		if forced[item.Name] || containsFold(lower, item.Name) || keywordMatch(lower, item.Keywords) {
			out = append(out, item)
		}
	}
	return out
}

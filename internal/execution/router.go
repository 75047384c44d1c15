package execution

import (
	"context"
	"fmt"

	"github.com/quantpulse/autotrader/internal/intent"
	"github.com/quantpulse/autotrader/internal/mode"
	"github.com/quantpulse/autotrader/internal/observ"
)

// Router maps an intent's execution mode to executors and runs them. DUAL
// fans out to live plus a paper mirror. The environment safety flags are
// re-checked here so a LIVE intent can never reach the broker when live
// trading got disabled between preflight and execution.
type Router struct {
	executors map[string]Executor
	plan      *PlanLog
}

func NewRouter(paper, live, historical Executor, plan *PlanLog) *Router {
	ex := map[string]Executor{}
	if paper != nil {
		ex["paper"] = paper
	}
	if live != nil {
		ex["live"] = live
	}
	if historical != nil {
		ex["historical"] = historical
	}
	return &Router{executors: ex, plan: plan}
}

// Plan lists the executor names the intent would run under, applying the
// single-broker override and the live downgrade.
func (r *Router) Plan(ti *intent.TradeIntent, f mode.Flags) []string {
	if f.SingleBroker != "" {
		return []string{f.SingleBroker}
	}
	switch ti.ExecutionMode {
	case intent.ModeLive:
		if !f.LiveAllowed() {
			return []string{"paper"}
		}
		return []string{"live"}
	case intent.ModeDual:
		if !f.DualAllowed() {
			if f.LiveAllowed() {
				return []string{"live"}
			}
			return []string{"paper"}
		}
		return []string{"live", "paper"}
	case intent.ModeHistorical:
		return []string{"historical"}
	default:
		return []string{"paper"}
	}
}

// Execute runs the intent through its planned executors, in order. Results
// come back in plan order; an infrastructure error aborts remaining
// executors.
func (r *Router) Execute(ctx context.Context, ti *intent.TradeIntent, f mode.Flags) ([]*intent.ExecutionResult, error) {
	names := r.Plan(ti, f)

	if downgraded(ti.ExecutionMode, names) {
		observ.Log("execution_downgraded", map[string]any{
			"intent_id": ti.ID, "requested_mode": ti.ExecutionMode, "plan": names,
		})
	}
	if r.plan != nil {
		r.plan.Record(ti, names)
	}

	var results []*intent.ExecutionResult
	for _, name := range names {
		ex, ok := r.executors[name]
		if !ok {
			return results, fmt.Errorf("no executor registered for %q", name)
		}
		res, err := ex.Execute(ctx, ti)
		if err != nil {
			return results, fmt.Errorf("executor %s: %w", name, err)
		}
		if !res.Consistent() {
			observ.IncConsistencyError()
			observ.Log("execution_result_inconsistent", map[string]any{
				"intent_id": ti.ID, "broker": res.Broker, "status": res.Status,
			})
		}
		observ.IncExecution(string(ti.ExecutionMode), string(res.Status))
		results = append(results, res)
	}
	return results, nil
}

func downgraded(m intent.Mode, plan []string) bool {
	switch m {
	case intent.ModeLive:
		return len(plan) != 1 || plan[0] != "live"
	case intent.ModeDual:
		return len(plan) != 2
	default:
		return false
	}
}

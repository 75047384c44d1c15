// Package review is the human-in-the-loop path: signals the controller did
// not auto-execute can be approved or rejected explicitly. Approvals run the
// same preflight gate and router as the automatic loop and share its dedupe
// ledger, so a signal approved by hand can never double-execute.
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/quantpulse/autotrader/internal/config"
	"github.com/quantpulse/autotrader/internal/dedupe"
	"github.com/quantpulse/autotrader/internal/execution"
	"github.com/quantpulse/autotrader/internal/intent"
	"github.com/quantpulse/autotrader/internal/mode"
	"github.com/quantpulse/autotrader/internal/observ"
	"github.com/quantpulse/autotrader/internal/positions"
	"github.com/quantpulse/autotrader/internal/preflight"
	"github.com/quantpulse/autotrader/internal/signal"
)

// Action is one recorded review decision.
type Action struct {
	Timestamp time.Time `json:"ts"`
	SignalID  string    `json:"signal_id"`
	Decision  string    `json:"decision"` // approved | rejected
	Mode      string    `json:"mode,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	IntentID  string    `json:"intent_id,omitempty"`
	Status    string    `json:"status,omitempty"`
}

// Outcome reports what an approval did.
type Outcome struct {
	SignalID string                    `json:"signal_id"`
	IntentID string                    `json:"intent_id,omitempty"`
	Executed bool                      `json:"executed"`
	Blocked  string                    `json:"blocked,omitempty"`
	Results  []*intent.ExecutionResult `json:"results,omitempty"`
}

// Queue handles review decisions against the shared stores.
type Queue struct {
	mu       sync.Mutex
	path     string // review actions ledger
	signals  *signal.Store
	executed *dedupe.Store
	pos      *positions.Store
	gate     *preflight.Gate
	router   *execution.Router
	settings *config.SettingsStore
	flags    func() mode.Flags
}

func NewQueue(
	path string,
	signals *signal.Store,
	executed *dedupe.Store,
	pos *positions.Store,
	gate *preflight.Gate,
	router *execution.Router,
	settings *config.SettingsStore,
) *Queue {
	return &Queue{
		path:     path,
		signals:  signals,
		executed: executed,
		pos:      pos,
		gate:     gate,
		router:   router,
		settings: settings,
		flags:    mode.FromEnv,
	}
}

// Pending lists recent signals that have not executed under the effective
// mode and have not been rejected.
func (q *Queue) Pending(limit int) ([]signal.Signal, error) {
	sigs, err := q.signals.Recent(limit)
	if err != nil {
		return nil, err
	}
	set := q.settings.Load()
	dec := mode.Resolve(mode.ParseRequested(set.RequestedMode), false, q.flags())

	rejected, err := q.rejectedIDs()
	if err != nil {
		return nil, err
	}

	var out []signal.Signal
	for _, s := range sigs {
		if s.Classification != signal.ClassSignal {
			continue
		}
		if q.executed.IsExecuted(s.ID, dec.Effective) || rejected[s.ID] {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Approve builds the intent for a signal, gates it, and executes it in the
// requested mode (or the settings mode when requested is empty).
func (q *Queue) Approve(ctx context.Context, signalID, requestedMode string) (*Outcome, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	sig, err := q.signals.Find(signalID)
	if err != nil {
		return nil, err
	}
	if sig == nil {
		return nil, fmt.Errorf("signal %s not found", signalID)
	}

	set := q.settings.Load()
	if requestedMode == "" {
		requestedMode = set.RequestedMode
	}
	f := q.flags()
	dec := mode.Resolve(mode.ParseRequested(requestedMode), false, f)

	ti, err := signal.BuildIntent(sig, dec.Effective)
	if err != nil {
		return nil, err
	}
	if ti.IsExit() {
		legs := make([]intent.OptionLeg, 0, len(sig.Legs))
		for _, l := range sig.Legs {
			legs = append(legs, intent.OptionLeg{
				Side: l.Side, Quantity: l.Quantity, Strike: l.Strike,
				OptionType: l.OptionType, Expiration: l.Expiration,
			})
		}
		if p := q.pos.FindOpenForExit(sig.Ticker, legs); p != nil {
			ti.MatchedPositionID = p.ID
		}
	}

	out := &Outcome{SignalID: signalID, IntentID: ti.ID}

	pf := q.gate.Check(ti, set, dec, time.Now())
	if !pf.OK {
		out.Blocked = pf.BlockedReason
		q.record(Action{
			SignalID: signalID, Decision: "approved", Mode: string(dec.Effective),
			IntentID: ti.ID, Status: "BLOCKED", Notes: pf.BlockedReason,
		})
		return out, nil
	}

	// Claim the pair before executing so an automatic tick in flight for the
	// same signal cannot slip in between the gate and the mark.
	if !q.executed.TryReserve(signalID, ti.ExecutionMode) {
		out.Blocked = "signal claimed by another execution path"
		q.record(Action{
			SignalID: signalID, Decision: "approved", Mode: string(dec.Effective),
			IntentID: ti.ID, Status: "BLOCKED", Notes: out.Blocked,
		})
		return out, nil
	}

	results, err := q.router.Execute(ctx, ti, f)
	if err != nil {
		q.executed.Release(signalID, ti.ExecutionMode)
		return nil, err
	}
	out.Results = results
	out.Executed = true

	status := ""
	if len(results) > 0 {
		status = string(results[0].Status)
	}
	if err := q.executed.MarkExecuted(dedupe.Record{
		SignalID:   signalID,
		Mode:       ti.ExecutionMode,
		IntentID:   ti.ID,
		Status:     status,
		Underlying: ti.Underlying,
		Action:     string(ti.Action),
	}); err != nil {
		observ.Log("dedupe_mark_conflict", map[string]any{"signal_id": signalID, "error": err.Error()})
	}

	q.record(Action{
		SignalID: signalID, Decision: "approved", Mode: string(dec.Effective),
		IntentID: ti.ID, Status: status,
	})
	return out, nil
}

// Reject records a rejection so the signal drops out of the pending queue.
// Rejection is advisory: it does not mark the dedupe ledger, so an operator
// can still approve later.
func (q *Queue) Reject(signalID, notes string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	sig, err := q.signals.Find(signalID)
	if err != nil {
		return err
	}
	if sig == nil {
		return fmt.Errorf("signal %s not found", signalID)
	}
	return q.record(Action{SignalID: signalID, Decision: "rejected", Notes: notes})
}

func (q *Queue) record(a Action) error {
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	b, err := json.Marshal(a)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(q.path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(q.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return err
	}
	observ.Log("review_action", map[string]any{
		"signal_id": a.SignalID, "decision": a.Decision, "status": a.Status,
	})
	return nil
}

func (q *Queue) rejectedIDs() (map[string]bool, error) {
	out := map[string]bool{}
	f, err := os.Open(q.path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	for dec.More() {
		var a Action
		if err := dec.Decode(&a); err != nil {
			break
		}
		if a.Decision == "rejected" {
			out[a.SignalID] = true
		}
	}
	return out, nil
}

package execution

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/quantpulse/autotrader/internal/intent"
	"github.com/quantpulse/autotrader/internal/observ"
)

// PlanLog is the append-only audit trail of what the router decided to do
// with each intent, written before any executor runs.
type PlanLog struct {
	mu   sync.Mutex
	path string
}

func NewPlanLog(path string) *PlanLog {
	return &PlanLog{path: path}
}

type planEntry struct {
	Timestamp      time.Time   `json:"ts"`
	IntentID       string      `json:"intent_id"`
	SourceSignalID string      `json:"source_signal_id,omitempty"`
	Underlying     string      `json:"underlying"`
	Action         string      `json:"action"`
	Mode           intent.Mode `json:"mode"`
	Executors      []string    `json:"executors"`
}

// Record appends one plan line. Audit failures are logged, not fatal; an
// unwritable audit file must not stop trading decisions already made.
func (p *PlanLog) Record(ti *intent.TradeIntent, executors []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry := planEntry{
		Timestamp:      time.Now().UTC(),
		IntentID:       ti.ID,
		SourceSignalID: ti.SourceSignalID,
		Underlying:     ti.Underlying,
		Action:         string(ti.Action),
		Mode:           ti.ExecutionMode,
		Executors:      executors,
	}
	b, err := json.Marshal(entry)
	if err != nil {
		observ.Log("plan_log_marshal_failed", map[string]any{"error": err.Error()})
		return
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		observ.Log("plan_log_write_failed", map[string]any{"error": err.Error()})
		return
	}
	f, err := os.OpenFile(p.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		observ.Log("plan_log_write_failed", map[string]any{"error": err.Error()})
		return
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		observ.Log("plan_log_write_failed", map[string]any{"error": err.Error()})
	}
}

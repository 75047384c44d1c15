package auto

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quantpulse/autotrader/internal/observ"
)

// Summary is the once-daily activity report written on day rollover and at
// shutdown.
type Summary struct {
	Date           string         `json:"date"`
	Trigger        string         `json:"trigger"`
	GeneratedAt    time.Time      `json:"generated_at"`
	Executions     int            `json:"executions"`
	ByStatus       map[string]int `json:"by_status,omitempty"`
	ByTicker       map[string]int `json:"by_ticker,omitempty"`
	NotionalUSD    float64        `json:"notional_usd"`
	ClosedPnLUSD   float64        `json:"closed_pnl_usd"`
	OpenPositions  int            `json:"open_positions"`
}

// writeSummary writes the report for the given day, at most once per day.
// Counters are passed in because a rollover resets the store before the
// report for the finished day gets written. PnL covers paper positions closed
// that day and is a best-effort estimate.
func (c *Controller) writeSummary(day time.Time, trigger string, counters Counters) {
	key := day.Format("2006-01-02")

	c.mu.Lock()
	if c.summaryDay == key {
		c.mu.Unlock()
		return
	}
	c.summaryDay = key
	c.mu.Unlock()

	recs := c.executed.ExecutedOn(day)

	sum := Summary{
		Date:          key,
		Trigger:       trigger,
		GeneratedAt:   time.Now().UTC(),
		Executions:    len(recs),
		ByStatus:      map[string]int{},
		ByTicker:      map[string]int{},
		ClosedPnLUSD:  c.pos.EstimateClosedPnL(day),
		OpenPositions: len(c.pos.Open()),
	}
	if counters.Date == key {
		sum.NotionalUSD = counters.NotionalToday
	}
	for _, r := range recs {
		if r.Status != "" {
			sum.ByStatus[r.Status]++
		}
		if r.Underlying != "" {
			sum.ByTicker[r.Underlying]++
		}
	}

	path := filepath.Join(c.cfg.Paths.SummaryDir, fmt.Sprintf("summary-%s.json", key))
	b, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		observ.Log("summary_marshal_failed", map[string]any{"error": err.Error()})
		return
	}
	if err := os.MkdirAll(c.cfg.Paths.SummaryDir, 0755); err != nil {
		observ.Log("summary_write_failed", map[string]any{"error": err.Error()})
		return
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		observ.Log("summary_write_failed", map[string]any{"error": err.Error()})
		return
	}
	observ.Log("daily_summary_written", map[string]any{
		"date": key, "trigger": trigger, "executions": sum.Executions,
		"closed_pnl_usd": sum.ClosedPnLUSD,
	})
}

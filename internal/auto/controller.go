// Package auto is the timer-driven controller that watches the signal ledger
// and executes new signals unattended. Every tick re-reads the environment
// safety flags and fails closed: any doubt about safety disables automation
// rather than trading through it.
package auto

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quantpulse/autotrader/internal/config"
	"github.com/quantpulse/autotrader/internal/dedupe"
	"github.com/quantpulse/autotrader/internal/execution"
	"github.com/quantpulse/autotrader/internal/intent"
	"github.com/quantpulse/autotrader/internal/market"
	"github.com/quantpulse/autotrader/internal/mode"
	"github.com/quantpulse/autotrader/internal/observ"
	"github.com/quantpulse/autotrader/internal/positions"
	"github.com/quantpulse/autotrader/internal/preflight"
	"github.com/quantpulse/autotrader/internal/signal"
)

// Tick outcomes, one per tick.
const (
	OutcomeSkip     = "skip"     // automation disabled or tripped
	OutcomePause    = "pause"    // outside the market auto window
	OutcomeLimit    = "limit"    // a rate limit is exhausted
	OutcomeBlocked  = "blocked"  // preflight gate refused the intent
	OutcomeIdle     = "idle"     // no actionable signal
	OutcomeExecuted = "executed" // trade went through
	OutcomeFailed   = "failed"   // executor ran but the trade did not go through
	OutcomeError    = "error"    // infrastructure failure
)

// TickResult summarizes one tick for status reporting.
type TickResult struct {
	At       time.Time `json:"at"`
	Outcome  string    `json:"outcome"`
	Reason   string    `json:"reason,omitempty"`
	SignalID string    `json:"signal_id,omitempty"`
	IntentID string    `json:"intent_id,omitempty"`
}

// FlagSource returns the current environment safety flags. Indirected for
// tests; production uses mode.FromEnv.
type FlagSource func() mode.Flags

// Controller runs the automation loop.
type Controller struct {
	cfg      config.Root
	signals  *signal.Store
	executed *dedupe.Store
	pos      *positions.Store
	gate     *preflight.Gate
	router   *execution.Router
	settings *config.SettingsStore
	counters *CounterStore
	oracle   market.Oracle
	flags    FlagSource

	// tickMu makes ticks single-flight: the manual tick endpoint and the
	// timer loop never run the pipeline concurrently.
	tickMu sync.Mutex

	mu       sync.Mutex
	enabled  bool
	tripped  string // non-empty after a safety trip, cleared by Enable
	lastTick TickResult

	summaryDay string // last day a summary was written for
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewController(
	cfg config.Root,
	signals *signal.Store,
	executed *dedupe.Store,
	pos *positions.Store,
	gate *preflight.Gate,
	router *execution.Router,
	settings *config.SettingsStore,
	counters *CounterStore,
	oracle market.Oracle,
) *Controller {
	return &Controller{
		cfg:      cfg,
		signals:  signals,
		executed: executed,
		pos:      pos,
		gate:     gate,
		router:   router,
		settings: settings,
		counters: counters,
		oracle:   oracle,
		flags:    mode.FromEnv,
		enabled:  config.EnvBool("AUTO_MODE_ENABLED", false),
	}
}

// Enable turns automation on and clears any safety trip.
func (c *Controller) Enable() {
	c.mu.Lock()
	c.enabled = true
	c.tripped = ""
	c.mu.Unlock()
	observ.Log("auto_mode_enabled", nil)
}

// Disable turns automation off.
func (c *Controller) Disable(reason string) {
	c.mu.Lock()
	c.enabled = false
	c.mu.Unlock()
	observ.Log("auto_mode_disabled", map[string]any{"reason": reason})
}

// Enabled reports whether the loop will act on the next tick.
func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Start runs the tick loop until the context is canceled or Stop is called.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.done != nil {
		c.mu.Unlock()
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.run(ctx)
}

func (c *Controller) run(ctx context.Context) {
	defer close(c.done)

	interval := time.Duration(c.cfg.Auto.PollSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	observ.Log("auto_loop_started", map[string]any{"poll_seconds": c.cfg.Auto.PollSeconds})
	for {
		select {
		case <-ctx.Done():
			observ.Log("auto_loop_stopped", nil)
			return
		case now := <-ticker.C:
			c.Tick(now)
		}
	}
}

// Stop cancels the loop, waits for it to exit, and writes the daily summary
// for whatever activity happened.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	c.writeSummary(time.Now(), "shutdown", c.counters.Peek())
}

// Tick runs one pass of the automation pipeline and returns its outcome.
func (c *Controller) Tick(now time.Time) TickResult {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	res := c.tick(now)

	c.mu.Lock()
	c.lastTick = res
	c.mu.Unlock()

	observ.IncTick(res.Outcome)
	observ.Log("auto_tick", map[string]any{
		"outcome": res.Outcome, "reason": res.Reason,
		"signal_id": res.SignalID, "intent_id": res.IntentID,
	})
	return res
}

func (c *Controller) tick(now time.Time) TickResult {
	res := TickResult{At: now}

	f := c.flags()

	// A day rollover writes the finished day's summary before the roll
	// resets its counters.
	if prev := c.counters.Peek(); prev.Date != "" && prev.Date != now.Format("2006-01-02") {
		if day, err := time.ParseInLocation("2006-01-02", prev.Date, now.Location()); err == nil {
			c.writeSummary(day, "day rollover", prev)
		}
	}
	counters, _ := c.counters.Snapshot(now)
	observ.SetTradesToday(counters.TradesToday)
	observ.SetNotionalToday(counters.NotionalToday)
	observ.SetOpenPositions(len(c.pos.Open()))

	if trip := c.safetyCheck(f); trip != "" {
		c.mu.Lock()
		wasEnabled := c.enabled
		c.enabled = false
		c.tripped = trip
		c.mu.Unlock()
		if wasEnabled {
			observ.IncSafetyTrip(trip)
			observ.Log("auto_safety_trip", map[string]any{"invariant": trip})
		}
		res.Outcome = OutcomeSkip
		res.Reason = "safety trip: " + trip
		return res
	}

	if !c.Enabled() {
		res.Outcome = OutcomeSkip
		res.Reason = "automation disabled"
		return res
	}

	set := c.settings.Load()

	win := c.oracle.Window(now, set.WindowBufferMinutes)
	if !win.IsOpen || !win.WithinAutoWindow {
		res.Outcome = OutcomePause
		res.Reason = win.Reason
		return res
	}

	if reason := rateLimited(counters, set); reason != "" {
		res.Outcome = OutcomeLimit
		res.Reason = reason
		return res
	}

	dec := mode.Resolve(mode.ParseRequested(set.RequestedMode), true, f)

	sig, matched := c.selectSignal(dec.Effective)
	if sig == nil {
		res.Outcome = OutcomeIdle
		res.Reason = "no actionable signal"
		return res
	}
	res.SignalID = sig.ID

	ti, err := signal.BuildIntent(sig, dec.Effective)
	if err != nil {
		res.Outcome = OutcomeError
		res.Reason = fmt.Sprintf("build intent: %v", err)
		return res
	}
	if matched != nil {
		ti.MatchedPositionID = matched.ID
	}
	res.IntentID = ti.ID

	pf := c.gate.Check(ti, set, dec, now)
	if !pf.OK {
		res.Outcome = OutcomeBlocked
		res.Reason = pf.BlockedReason
		return res
	}

	// Second dedupe checkpoint right before execution. The claim is held
	// through the whole execute+mark sequence, so the review path cannot
	// execute the same pair in the window between gate and mark.
	if !c.executed.TryReserve(sig.ID, ti.ExecutionMode) {
		res.Outcome = OutcomeBlocked
		res.Reason = "signal claimed since preflight"
		return res
	}

	results, err := c.router.Execute(context.Background(), ti, f)
	if err != nil {
		c.executed.Release(sig.ID, ti.ExecutionMode)
		res.Outcome = OutcomeError
		res.Reason = err.Error()
		return res
	}

	status := worstStatus(results)
	if err := c.executed.MarkExecuted(dedupe.Record{
		SignalID:   sig.ID,
		Mode:       ti.ExecutionMode,
		IntentID:   ti.ID,
		Status:     string(status),
		Underlying: ti.Underlying,
		Action:     string(ti.Action),
		ExecutedAt: now,
	}); err != nil {
		observ.IncConsistencyError()
		observ.Log("dedupe_mark_conflict", map[string]any{"signal_id": sig.ID, "error": err.Error()})
	}

	switch status {
	case intent.StatusSimulated, intent.StatusSubmitted, intent.StatusFilled:
		fill := primaryFill(results)
		if counters, err = c.counters.RecordTrade(now, ti.Notional(fill)); err != nil {
			observ.Log("counters_persist_failed", map[string]any{"error": err.Error()})
		}
		observ.SetTradesToday(counters.TradesToday)
		observ.SetNotionalToday(counters.NotionalToday)
		res.Outcome = OutcomeExecuted
		res.Reason = string(status)
	default:
		res.Outcome = OutcomeFailed
		res.Reason = resultMessage(results)
	}
	return res
}

// safetyCheck returns the name of the violated invariant, or "". Automation
// demands a fully papered environment on every tick: dry-run on, live trading
// off, the single-broker override pinned to a paper-safe broker, kill switch
// off. A live-armed environment under automation is operator error and trips
// the loop rather than trading through it.
func (c *Controller) safetyCheck(f mode.Flags) string {
	if f.KillSwitch {
		return "kill_switch"
	}
	if !f.DryRun {
		return "dry_run_off"
	}
	if f.LiveTrading {
		return "live_trading_on"
	}
	switch f.SingleBroker {
	case "":
		return "single_broker_off"
	case "live":
		return "single_broker_live"
	}
	return ""
}

func rateLimited(c Counters, set config.Settings) string {
	if set.MaxTradesPerDay > 0 && c.TradesToday >= set.MaxTradesPerDay {
		return fmt.Sprintf("daily trade cap reached (%d)", set.MaxTradesPerDay)
	}
	if set.MaxTradesPerHour > 0 && c.TradesHour >= set.MaxTradesPerHour {
		return fmt.Sprintf("hourly trade cap reached (%d)", set.MaxTradesPerHour)
	}
	if set.MaxNotionalPerDay > 0 && c.NotionalToday >= set.MaxNotionalPerDay {
		return fmt.Sprintf("daily notional cap reached (%.0f)", set.MaxNotionalPerDay)
	}
	return ""
}

// selectSignal scans recent signals newest first. Entries win over exits: the
// newest unexecuted entry is taken even when a newer exit exists; exits are
// considered only when no entry is actionable, and only when they resolve to
// an open position. The matched position rides along for exits.
func (c *Controller) selectSignal(m intent.Mode) (*signal.Signal, *positions.Position) {
	sigs, err := c.signals.Recent(c.cfg.Auto.SignalLookback)
	if err != nil {
		observ.Log("signal_ledger_read_failed", map[string]any{"error": err.Error()})
		return nil, nil
	}
	for i := range sigs {
		sig := &sigs[i]
		if !c.actionable(sig, m) {
			continue
		}
		if sig.Type() == intent.SignalEntry {
			return sig, nil
		}
	}
	for i := range sigs {
		sig := &sigs[i]
		if !c.actionable(sig, m) || sig.Type() != intent.SignalExit {
			continue
		}
		legs := make([]intent.OptionLeg, 0, len(sig.Legs))
		for _, l := range sig.Legs {
			legs = append(legs, intent.OptionLeg{
				Side: l.Side, Quantity: l.Quantity, Strike: l.Strike,
				OptionType: l.OptionType, Expiration: l.Expiration,
			})
		}
		if p := c.pos.FindOpenForExit(sig.Ticker, legs); p != nil {
			return sig, p
		}
	}
	return nil, nil
}

func (c *Controller) actionable(sig *signal.Signal, m intent.Mode) bool {
	return sig.Classification == signal.ClassSignal && !c.executed.IsExecuted(sig.ID, m)
}

func worstStatus(results []*intent.ExecutionResult) intent.Status {
	rank := func(s intent.Status) int {
		switch s {
		case intent.StatusError:
			return 4
		case intent.StatusRejected:
			return 3
		case intent.StatusSubmitted:
			return 2
		case intent.StatusFilled:
			return 1
		default: // SIMULATED
			return 0
		}
	}
	if len(results) == 0 {
		return intent.StatusError
	}
	worst := results[0].Status
	for _, r := range results[1:] {
		if rank(r.Status) > rank(worst) {
			worst = r.Status
		}
	}
	return worst
}

func primaryFill(results []*intent.ExecutionResult) float64 {
	for _, r := range results {
		if r.FillPrice > 0 {
			return r.FillPrice
		}
	}
	return 0
}

func resultMessage(results []*intent.ExecutionResult) string {
	for _, r := range results {
		if r.Message != "" {
			return r.Message
		}
	}
	return "execution did not go through"
}

// Status is the controller snapshot served by the control surface.
type Status struct {
	Enabled   bool          `json:"enabled"`
	Tripped   string        `json:"tripped,omitempty"`
	LastTick  TickResult    `json:"last_tick"`
	Counters  Counters      `json:"counters"`
	Mode      mode.Decision `json:"mode"`
	OpenCount int           `json:"open_positions"`
}

// Status reports current controller state without ticking.
func (c *Controller) Status(now time.Time) Status {
	counters, _ := c.counters.Snapshot(now)
	set := c.settings.Load()
	dec := mode.Resolve(mode.ParseRequested(set.RequestedMode), true, c.flags())

	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Enabled:   c.enabled,
		Tripped:   c.tripped,
		LastTick:  c.lastTick,
		Counters:  counters,
		Mode:      dec,
		OpenCount: len(c.pos.Open()),
	}
}

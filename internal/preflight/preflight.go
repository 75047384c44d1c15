// Package preflight is the gate every intent passes before any executor sees
// it. Checks run in a fixed order and the first failure sets the blocked
// reason; later checks still run so the report shows everything wrong at once.
package preflight

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/quantpulse/autotrader/internal/config"
	"github.com/quantpulse/autotrader/internal/intent"
	"github.com/quantpulse/autotrader/internal/mode"
	"github.com/quantpulse/autotrader/internal/observ"
)

// Check names, in evaluation order.
const (
	CheckCompleteness   = "completeness"
	CheckSupportedAsset = "supported_asset"
	CheckRiskMode       = "risk_mode"
	CheckRiskPerTrade   = "risk_per_trade"
	CheckDTEGuard       = "dte_guard"
	CheckModeGuard      = "mode_guard"
	CheckDedupe         = "dedupe"
)

// Tickers we never trade: crypto symbols that show up in the alert stream.
var rejectedAssets = map[string]bool{"BTC": true, "ETH": true, "DOGE": true, "SOL": true}

// Index option trading is limited to the S&P complex.
var allowedIndexUnderlyings = map[string]bool{"SPX": true, "SPXW": true}

// RiskCaps bound a single trade under a named risk mode.
type RiskCaps struct {
	MaxRiskPct       float64
	MaxQuantity      int
	MaxNotionalTrade float64
}

// Caps per risk mode. RISK_MODE selects one; unknown values get balanced.
var riskModeCaps = map[string]RiskCaps{
	"conservative": {MaxRiskPct: 0.01, MaxQuantity: 2, MaxNotionalTrade: 5_000},
	"balanced":     {MaxRiskPct: 0.02, MaxQuantity: 5, MaxNotionalTrade: 15_000},
	"aggressive":   {MaxRiskPct: 0.05, MaxQuantity: 10, MaxNotionalTrade: 50_000},
}

// ActiveRiskMode resolves the risk mode name and its caps. RISK_MODE
// overrides the configured fallback; unknown names get balanced.
func ActiveRiskMode(fallback string) (string, RiskCaps) {
	name := strings.ToLower(strings.TrimSpace(os.Getenv("RISK_MODE")))
	if name == "" {
		name = strings.ToLower(strings.TrimSpace(fallback))
	}
	caps, ok := riskModeCaps[name]
	if !ok {
		return "balanced", riskModeCaps["balanced"]
	}
	return name, caps
}

// CheckResult is one named check's outcome.
type CheckResult struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Summary string `json:"summary"`
}

// Result is the full gate report for one intent.
type Result struct {
	OK            bool          `json:"ok"`
	Checks        []CheckResult `json:"checks"`
	BlockedReason string        `json:"blocked_reason,omitempty"`
	Warnings      []string      `json:"warnings,omitempty"`
}

func (r *Result) add(name string, ok bool, summary string) {
	r.Checks = append(r.Checks, CheckResult{Name: name, OK: ok, Summary: summary})
	if !ok {
		if r.BlockedReason == "" {
			r.BlockedReason = fmt.Sprintf("%s: %s", name, summary)
			observ.IncPreflightBlock(name)
		}
		r.OK = false
	}
}

// Passed returns the names of checks that passed.
func (r *Result) Passed() []string {
	var out []string
	for _, c := range r.Checks {
		if c.OK {
			out = append(out, c.Name)
		}
	}
	return out
}

// Blocked returns the names of checks that failed.
func (r *Result) Blocked() []string {
	var out []string
	for _, c := range r.Checks {
		if !c.OK {
			out = append(out, c.Name)
		}
	}
	return out
}

// ExecutedChecker is the dedupe lookup the gate needs.
type ExecutedChecker interface {
	IsExecuted(signalID string, mode intent.Mode) bool
}

// Gate evaluates intents against the settings and safety state in effect.
// RiskMode is the configured fallback when RISK_MODE is unset.
type Gate struct {
	Executed ExecutedChecker
	RiskMode string
}

func NewGate(executed ExecutedChecker, riskMode string) *Gate {
	return &Gate{Executed: executed, RiskMode: riskMode}
}

// Check runs the full ordered gate for one intent.
func (g *Gate) Check(ti *intent.TradeIntent, set config.Settings, dec mode.Decision, now time.Time) *Result {
	res := &Result{OK: true}

	g.checkCompleteness(res, ti)
	g.checkSupportedAsset(res, ti)
	g.checkRiskMode(res, ti)
	g.checkRiskPerTrade(res, ti, set)
	g.checkDTEGuard(res, ti, set, now)
	g.checkModeGuard(res, ti, dec)
	g.checkDedupe(res, ti)

	observ.Log("preflight_result", map[string]any{
		"intent_id":      ti.ID,
		"underlying":     ti.Underlying,
		"ok":             res.OK,
		"gates_passed":   res.Passed(),
		"gates_blocked":  res.Blocked(),
		"blocked_reason": res.BlockedReason,
	})
	return res
}

func (g *Gate) checkCompleteness(res *Result, ti *intent.TradeIntent) {
	switch {
	case ti.Underlying == "":
		res.add(CheckCompleteness, false, "missing underlying")
	case ti.Quantity <= 0:
		res.add(CheckCompleteness, false, "non-positive quantity")
	case (ti.OrderType == intent.OrderLimit || ti.OrderType == intent.OrderStopLimit) && !hasLimitPrice(ti):
		res.add(CheckCompleteness, false, "limit order without a usable price")
	case ti.IsExit() && len(ti.Legs) == 0 && ti.MatchedPositionID == "":
		res.add(CheckCompleteness, false, "exit without legs or a matched position")
	case ti.Instrument != intent.InstrumentStock && len(ti.Legs) == 0 && !ti.IsExit():
		res.add(CheckCompleteness, false, "option entry without legs")
	default:
		res.add(CheckCompleteness, true, "intent fields complete")
		if ti.IsExit() && ti.MatchedPositionID == "" {
			res.Warnings = append(res.Warnings, "exit intent has no matched position; executor will skip position close")
		}
	}
}

func hasLimitPrice(ti *intent.TradeIntent) bool {
	_, ok := ti.EffectiveLimitPrice()
	return ok
}

func (g *Gate) checkSupportedAsset(res *Result, ti *intent.TradeIntent) {
	u := strings.ToUpper(ti.Underlying)
	switch {
	case rejectedAssets[u]:
		res.add(CheckSupportedAsset, false, fmt.Sprintf("crypto asset %s not tradable", u))
	case strings.HasPrefix(u, "/"):
		res.add(CheckSupportedAsset, false, fmt.Sprintf("futures symbol %s not tradable", u))
	case ti.Instrument == intent.InstrumentIndexOption && !allowedIndexUnderlyings[u]:
		res.add(CheckSupportedAsset, false, fmt.Sprintf("index options limited to SPX/SPXW, got %s", u))
	default:
		res.add(CheckSupportedAsset, true, "asset supported")
	}
}

func (g *Gate) checkRiskMode(res *Result, ti *intent.TradeIntent) {
	// Exits are always allowed: reducing exposure must never be rate-capped.
	if ti.IsExit() {
		res.add(CheckRiskMode, true, "exit, risk caps not applied")
		return
	}
	name, caps := ActiveRiskMode(g.RiskMode)
	switch {
	case ti.Quantity > caps.MaxQuantity:
		res.add(CheckRiskMode, false, fmt.Sprintf("quantity %d exceeds %s cap %d", ti.Quantity, name, caps.MaxQuantity))
	case ti.RiskFraction > caps.MaxRiskPct:
		res.add(CheckRiskMode, false, fmt.Sprintf("risk %.4f exceeds %s cap %.4f", ti.RiskFraction, name, caps.MaxRiskPct))
	default:
		if p, ok := ti.EffectiveLimitPrice(); ok && ti.Notional(p) > caps.MaxNotionalTrade {
			res.add(CheckRiskMode, false, fmt.Sprintf("notional %.0f exceeds %s cap %.0f", ti.Notional(p), name, caps.MaxNotionalTrade))
			return
		}
		res.add(CheckRiskMode, true, fmt.Sprintf("within %s caps", name))
	}
}

func (g *Gate) checkRiskPerTrade(res *Result, ti *intent.TradeIntent, set config.Settings) {
	if ti.IsExit() {
		res.add(CheckRiskPerTrade, true, "exit, risk caps not applied")
		return
	}
	risk := ti.RiskFraction
	if risk == 0 && set.MaxRiskPctPerTrade > 0 {
		// No declared size: assume the cap and say so instead of passing silently.
		risk = set.MaxRiskPctPerTrade
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("no declared position size; assuming per-trade cap %.4f", set.MaxRiskPctPerTrade))
	}
	if set.MaxRiskPctPerTrade > 0 && risk > set.MaxRiskPctPerTrade {
		res.add(CheckRiskPerTrade, false,
			fmt.Sprintf("declared risk %.4f exceeds per-trade limit %.4f", risk, set.MaxRiskPctPerTrade))
		return
	}
	res.add(CheckRiskPerTrade, true, "within per-trade risk limit")
}

// checkDTEGuard rejects same-day expirations on the designated index
// underlyings unless the allow_0dte_index setting opts in. Other underlyings
// only fail on an expiration already in the past.
func (g *Gate) checkDTEGuard(res *Result, ti *intent.TradeIntent, set config.Settings, now time.Time) {
	if ti.IsExit() {
		res.add(CheckDTEGuard, true, "exit, expirations not guarded")
		return
	}
	if ti.Instrument == intent.InstrumentStock || len(ti.Legs) == 0 {
		res.add(CheckDTEGuard, true, "no expiration to guard")
		return
	}
	today := now.Format("2006-01-02")
	guarded := allowedIndexUnderlyings[strings.ToUpper(ti.Underlying)]
	for _, leg := range ti.Legs {
		if leg.Expiration == "" {
			continue
		}
		if leg.Expiration < today {
			res.add(CheckDTEGuard, false, fmt.Sprintf("leg expiration %s already passed", leg.Expiration))
			return
		}
		if leg.Expiration == today && guarded {
			if set.Allow0DTEIndex {
				res.Warnings = append(res.Warnings, "trading 0DTE index option")
				continue
			}
			res.add(CheckDTEGuard, false, "0DTE index expiration blocked")
			return
		}
	}
	res.add(CheckDTEGuard, true, "expirations clear")
}

func (g *Gate) checkModeGuard(res *Result, ti *intent.TradeIntent, dec mode.Decision) {
	switch ti.ExecutionMode {
	case intent.ModeLive:
		if !dec.LiveAllowed {
			res.add(CheckModeGuard, false, "live intent while live trading is not enabled")
			return
		}
	case intent.ModeDual:
		if !dec.DualAllowed {
			res.add(CheckModeGuard, false, "dual intent while dual mode is not enabled")
			return
		}
	}
	if ti.ExecutionMode != dec.Effective {
		res.add(CheckModeGuard, false,
			fmt.Sprintf("intent mode %s does not match effective mode %s", ti.ExecutionMode, dec.Effective))
		return
	}
	res.add(CheckModeGuard, true, fmt.Sprintf("mode %s permitted", ti.ExecutionMode))
}

func (g *Gate) checkDedupe(res *Result, ti *intent.TradeIntent) {
	if ti.SourceSignalID == "" {
		res.add(CheckDedupe, true, "no source signal to dedupe")
		return
	}
	if g.Executed != nil && g.Executed.IsExecuted(ti.SourceSignalID, ti.ExecutionMode) {
		observ.IncDedupeHit()
		res.add(CheckDedupe, false, fmt.Sprintf("signal %s already executed in %s", ti.SourceSignalID, ti.ExecutionMode))
		return
	}
	res.add(CheckDedupe, true, "signal not yet executed")
}

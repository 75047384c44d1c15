package preflight

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/autotrader/internal/config"
	"github.com/quantpulse/autotrader/internal/intent"
	"github.com/quantpulse/autotrader/internal/mode"
)

type fakeExecuted map[string]bool

func (f fakeExecuted) IsExecuted(signalID string, m intent.Mode) bool {
	return f[signalID+"|"+string(m)]
}

func testSettings() config.Settings {
	return config.Settings{MaxRiskPctPerTrade: 0.02, Allow0DTEIndex: false}
}

func paperDecision() mode.Decision {
	return mode.Decision{Requested: intent.ModePaper, Effective: intent.ModePaper}
}

func goodIntent(t *testing.T) *intent.TradeIntent {
	t.Helper()
	ti, err := intent.New(intent.TradeIntent{
		ExecutionMode: intent.ModePaper,
		Instrument:    intent.InstrumentSpread,
		Underlying:    "AMD",
		Action:        intent.ActionBuyToOpen,
		OrderType:     intent.OrderLimit,
		LimitMax:      1.40,
		Quantity:      1,
		SignalType:    intent.SignalEntry,
		SourceSignalID: "sig-1",
		RiskFraction:  0.01,
		Legs: []intent.OptionLeg{
			{Side: "BUY", Quantity: 1, Strike: 170, OptionType: "CALL", Expiration: "2030-01-18"},
			{Side: "SELL", Quantity: 1, Strike: 175, OptionType: "CALL", Expiration: "2030-01-18"},
		},
	})
	require.NoError(t, err)
	return ti
}

func now() time.Time {
	return time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC)
}

func TestAllChecksPass(t *testing.T) {
	g := NewGate(fakeExecuted{}, "balanced")
	res := g.Check(goodIntent(t), testSettings(), paperDecision(), now())

	assert.True(t, res.OK)
	assert.Empty(t, res.BlockedReason)
	require.Len(t, res.Checks, 7)

	wantOrder := []string{
		CheckCompleteness, CheckSupportedAsset, CheckRiskMode,
		CheckRiskPerTrade, CheckDTEGuard, CheckModeGuard, CheckDedupe,
	}
	for i, name := range wantOrder {
		assert.Equal(t, name, res.Checks[i].Name)
	}
}

func TestFirstFailureSetsBlockedReason(t *testing.T) {
	g := NewGate(fakeExecuted{"sig-1|PAPER": true}, "balanced")
	ti := goodIntent(t)
	ti.Underlying = ""

	res := g.Check(ti, testSettings(), paperDecision(), now())
	assert.False(t, res.OK)
	assert.Contains(t, res.BlockedReason, CheckCompleteness)
	// Later checks still reported.
	assert.Len(t, res.Checks, 7)
	assert.Contains(t, res.Blocked(), CheckDedupe)
}

func TestSupportedAsset(t *testing.T) {
	g := NewGate(fakeExecuted{}, "balanced")
	set := testSettings()

	for _, tc := range []struct {
		underlying string
		instrument intent.Instrument
		ok         bool
	}{
		{"BTC", intent.InstrumentStock, false},
		{"/ES", intent.InstrumentStock, false},
		{"NDX", intent.InstrumentIndexOption, false},
		{"SPX", intent.InstrumentIndexOption, true},
		{"AMD", intent.InstrumentSpread, true},
	} {
		ti := goodIntent(t)
		ti.Underlying = tc.underlying
		ti.Instrument = tc.instrument
		res := g.Check(ti, set, paperDecision(), now())
		got := true
		for _, c := range res.Checks {
			if c.Name == CheckSupportedAsset {
				got = c.OK
			}
		}
		assert.Equal(t, tc.ok, got, "underlying %s", tc.underlying)
	}
}

func TestRiskPerTradeLimit(t *testing.T) {
	g := NewGate(fakeExecuted{}, "balanced")
	ti := goodIntent(t)
	ti.RiskFraction = 0.019

	res := g.Check(ti, testSettings(), paperDecision(), now())
	assert.True(t, res.OK)

	ti.RiskFraction = 0.03
	res = g.Check(ti, testSettings(), paperDecision(), now())
	assert.False(t, res.OK)
	assert.Contains(t, res.Blocked(), CheckRiskMode)
	assert.Contains(t, res.Blocked(), CheckRiskPerTrade)
}

func TestDTEGuard(t *testing.T) {
	g := NewGate(fakeExecuted{}, "balanced")
	set := testSettings()
	today := now().Format("2006-01-02")

	// Same-day expiration on a non-index underlying is fine.
	ti := goodIntent(t)
	for i := range ti.Legs {
		ti.Legs[i].Expiration = today
	}
	res := g.Check(ti, set, paperDecision(), now())
	assert.NotContains(t, res.Blocked(), CheckDTEGuard)

	// An expiration already in the past fails for any underlying.
	ti = goodIntent(t)
	ti.Legs[0].Expiration = "2026-08-27"
	res = g.Check(ti, set, paperDecision(), now())
	assert.Contains(t, res.Blocked(), CheckDTEGuard)

	// Same-day index expirations are blocked.
	spx := func() *intent.TradeIntent {
		ti := goodIntent(t)
		ti.Underlying = "SPX"
		ti.Instrument = intent.InstrumentIndexOption
		ti.Legs = ti.Legs[:1]
		ti.Legs[0].Expiration = today
		return ti
	}
	res = g.Check(spx(), set, paperDecision(), now())
	assert.Contains(t, res.Blocked(), CheckDTEGuard)

	// Unless the settings opt in.
	set.Allow0DTEIndex = true
	res = g.Check(spx(), set, paperDecision(), now())
	assert.NotContains(t, res.Blocked(), CheckDTEGuard)
	assert.NotEmpty(t, res.Warnings)
}

func TestRiskPerTradeDefaultsToCapWithWarning(t *testing.T) {
	g := NewGate(fakeExecuted{}, "balanced")
	ti := goodIntent(t)
	ti.RiskFraction = 0

	res := g.Check(ti, testSettings(), paperDecision(), now())
	assert.NotContains(t, res.Blocked(), CheckRiskPerTrade)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "assuming per-trade cap")
}

func TestExitWithoutLegsOrMatchFails(t *testing.T) {
	g := NewGate(fakeExecuted{}, "balanced")
	ti := goodIntent(t)
	ti.SignalType = intent.SignalExit
	ti.Action = intent.ActionSellToClose
	ti.Legs = nil
	ti.MatchedPositionID = ""

	res := g.Check(ti, testSettings(), paperDecision(), now())
	assert.Contains(t, res.Blocked(), CheckCompleteness)

	ti.MatchedPositionID = "pos-1"
	res = g.Check(ti, testSettings(), paperDecision(), now())
	assert.NotContains(t, res.Blocked(), CheckCompleteness)
}

func TestRiskModeFallsBackToConfigured(t *testing.T) {
	t.Setenv("RISK_MODE", "")
	g := NewGate(fakeExecuted{}, "conservative")
	ti := goodIntent(t)
	ti.Quantity = 3 // above the conservative quantity cap

	res := g.Check(ti, testSettings(), paperDecision(), now())
	assert.Contains(t, res.Blocked(), CheckRiskMode)

	// The environment variable still wins over the configured fallback.
	t.Setenv("RISK_MODE", "aggressive")
	res = g.Check(ti, testSettings(), paperDecision(), now())
	assert.NotContains(t, res.Blocked(), CheckRiskMode)
}

func TestExitsBypassRiskAndDTECaps(t *testing.T) {
	g := NewGate(fakeExecuted{}, "balanced")
	ti := goodIntent(t)
	ti.SignalType = intent.SignalExit
	ti.Action = intent.ActionSellToClose
	ti.MatchedPositionID = "pos-1"
	ti.RiskFraction = 0.50 // would block an entry
	for i := range ti.Legs {
		ti.Legs[i].Expiration = now().Format("2006-01-02")
	}

	res := g.Check(ti, testSettings(), paperDecision(), now())
	assert.True(t, res.OK, "blocked: %s", res.BlockedReason)
}

func TestModeGuardBlocksDisallowedLive(t *testing.T) {
	g := NewGate(fakeExecuted{}, "balanced")
	ti := goodIntent(t)
	ti.ExecutionMode = intent.ModeLive

	dec := mode.Decision{Requested: intent.ModeLive, Effective: intent.ModePaper, LiveAllowed: false}
	res := g.Check(ti, testSettings(), dec, now())
	assert.Contains(t, res.Blocked(), CheckModeGuard)

	dec = mode.Decision{Requested: intent.ModeLive, Effective: intent.ModeLive, LiveAllowed: true}
	res = g.Check(ti, testSettings(), dec, now())
	assert.NotContains(t, res.Blocked(), CheckModeGuard)
}

func TestDedupeBlocksRepeat(t *testing.T) {
	g := NewGate(fakeExecuted{"sig-1|PAPER": true}, "balanced")
	res := g.Check(goodIntent(t), testSettings(), paperDecision(), now())
	assert.False(t, res.OK)
	assert.Contains(t, res.BlockedReason, CheckDedupe)

	// Same signal under a different mode is allowed through.
	ti := goodIntent(t)
	ti.ExecutionMode = intent.ModeLive
	dec := mode.Decision{Requested: intent.ModeLive, Effective: intent.ModeLive, LiveAllowed: true}
	res = g.Check(ti, testSettings(), dec, now())
	assert.NotContains(t, res.Blocked(), CheckDedupe)
}

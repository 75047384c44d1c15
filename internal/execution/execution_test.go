package execution

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/autotrader/internal/broker"
	"github.com/quantpulse/autotrader/internal/intent"
	"github.com/quantpulse/autotrader/internal/mode"
	"github.com/quantpulse/autotrader/internal/positions"
)

func newPaper(t *testing.T) (*Paper, *positions.Store) {
	t.Helper()
	pos, err := positions.NewStore(filepath.Join(t.TempDir(), "positions.jsonl"))
	require.NoError(t, err)
	return NewPaper(pos), pos
}

func entryIntent(t *testing.T) *intent.TradeIntent {
	t.Helper()
	ti, err := intent.New(intent.TradeIntent{
		ExecutionMode: intent.ModePaper,
		Instrument:    intent.InstrumentSpread,
		Underlying:    "AMD",
		Action:        intent.ActionBuyToOpen,
		OrderType:     intent.OrderLimit,
		LimitMin:      1.20,
		LimitMax:      1.40,
		Quantity:      1,
		SignalType:    intent.SignalEntry,
		SourceSignalID: "sig-1",
		Legs: []intent.OptionLeg{
			{Side: "BUY", Quantity: 1, Strike: 170, OptionType: "CALL", Expiration: "2026-09-18"},
			{Side: "SELL", Quantity: 1, Strike: 175, OptionType: "CALL", Expiration: "2026-09-18"},
		},
	})
	require.NoError(t, err)
	return ti
}

func TestFillPricePrecedence(t *testing.T) {
	ti := &intent.TradeIntent{Instrument: intent.InstrumentSpread, LimitPrice: 2.00, LimitMin: 1.00, LimitMax: 1.50}
	assert.Equal(t, 2.00, FillPrice(ti))

	ti = &intent.TradeIntent{Instrument: intent.InstrumentSpread, LimitMin: 1.00, LimitMax: 1.50}
	assert.Equal(t, 1.25, FillPrice(ti))

	ti = &intent.TradeIntent{Instrument: intent.InstrumentSpread, LimitMax: 1.50}
	assert.Equal(t, 1.50, FillPrice(ti))

	ti = &intent.TradeIntent{Instrument: intent.InstrumentSpread, LimitMin: 1.00}
	assert.Equal(t, 1.00, FillPrice(ti))

	assert.Equal(t, 100.00, FillPrice(&intent.TradeIntent{Instrument: intent.InstrumentStock}))
	assert.Equal(t, 1.50, FillPrice(&intent.TradeIntent{Instrument: intent.InstrumentSpread}))
	assert.Equal(t, 2.50, FillPrice(&intent.TradeIntent{Instrument: intent.InstrumentOption}))
}

func TestPaperEntryOpensPosition(t *testing.T) {
	p, pos := newPaper(t)

	res, err := p.Execute(context.Background(), entryIntent(t))
	require.NoError(t, err)
	assert.Equal(t, intent.StatusSimulated, res.Status)
	assert.NotEmpty(t, res.OrderID)
	assert.InDelta(t, 1.30, res.FillPrice, 1e-9)
	assert.True(t, res.Consistent())

	open := pos.Open()
	require.Len(t, open, 1)
	assert.Equal(t, "AMD", open[0].Underlying)
	assert.InDelta(t, 1.30, open[0].EntryPrice, 1e-9)
}

func TestPaperExitClosesMatchedPosition(t *testing.T) {
	p, pos := newPaper(t)

	res, err := p.Execute(context.Background(), entryIntent(t))
	require.NoError(t, err)
	require.Equal(t, intent.StatusSimulated, res.Status)
	opened := pos.Open()[0]

	exit, err := intent.New(intent.TradeIntent{
		ExecutionMode:     intent.ModePaper,
		Instrument:        intent.InstrumentSpread,
		Underlying:        "AMD",
		Action:            intent.ActionSellToClose,
		Quantity:          1,
		SignalType:        intent.SignalExit,
		SourceSignalID:    "sig-2",
		MatchedPositionID: opened.ID,
		LimitMax:          2.00,
	})
	require.NoError(t, err)

	res, err = p.Execute(context.Background(), exit)
	require.NoError(t, err)
	assert.Equal(t, intent.StatusSimulated, res.Status)
	assert.Empty(t, pos.Open())
	assert.Equal(t, positions.StatusClosed, pos.Get(opened.ID).Status)
}

func TestValidateRejectsBeforeSideEffects(t *testing.T) {
	p, pos := newPaper(t)

	bad := entryIntent(t)
	bad.OrderType = intent.OrderLimit
	bad.LimitMin, bad.LimitMax, bad.LimitPrice = 0, 0, 0

	res, err := p.Execute(context.Background(), bad)
	require.NoError(t, err)
	assert.Equal(t, intent.StatusRejected, res.Status)
	assert.Empty(t, pos.Open())
}

type fakeBroker struct {
	resp *broker.OrderResponse
	err  error
	got  *broker.OrderRequest
}

func (f *fakeBroker) Name() string { return "fake" }
func (f *fakeBroker) PlaceStockOrder(ctx context.Context, req broker.OrderRequest) (*broker.OrderResponse, error) {
	f.got = &req
	return f.resp, f.err
}
func (f *fakeBroker) PlaceOptionOrder(ctx context.Context, req broker.OrderRequest) (*broker.OrderResponse, error) {
	f.got = &req
	return f.resp, f.err
}
func (f *fakeBroker) GetAccount(ctx context.Context) (*broker.Account, error) { return nil, nil }
func (f *fakeBroker) GetQuote(ctx context.Context, symbol string) (*broker.Quote, error) {
	return nil, nil
}

func singleLegIntent(t *testing.T) *intent.TradeIntent {
	t.Helper()
	ti := entryIntent(t)
	ti.Instrument = intent.InstrumentOption
	ti.Legs = ti.Legs[:1]
	return ti
}

func TestLiveSubmittedRequiresOrderID(t *testing.T) {
	fb := &fakeBroker{resp: &broker.OrderResponse{ID: "42", Status: "ok"}}
	l := NewLive(fb)

	res, err := l.Execute(context.Background(), singleLegIntent(t))
	require.NoError(t, err)
	assert.Equal(t, intent.StatusSubmitted, res.Status)
	assert.Equal(t, "42", res.OrderID)
	assert.True(t, res.Consistent())
	require.NotNil(t, fb.got)
	assert.Equal(t, "option", fb.got.Class)
	assert.Equal(t, 1.40, fb.got.Price)

	// An ack without an id is an error, not a submit.
	fb.resp = &broker.OrderResponse{ID: "", Status: "ok"}
	res, err = l.Execute(context.Background(), singleLegIntent(t))
	require.NoError(t, err)
	assert.Equal(t, intent.StatusError, res.Status)
	assert.True(t, res.Consistent())
}

func TestLiveOptionOrderUsesLegSideAndQuantity(t *testing.T) {
	fb := &fakeBroker{resp: &broker.OrderResponse{ID: "7", Status: "ok"}}
	l := NewLive(fb)

	ti := singleLegIntent(t)
	ti.Legs[0].Quantity = 2
	ti.Quantity = 3

	_, err := l.Execute(context.Background(), ti)
	require.NoError(t, err)
	require.NotNil(t, fb.got)
	assert.Equal(t, "buy_to_open", fb.got.Side)
	assert.Equal(t, 6, fb.got.Quantity)

	// A closing sell submits with the leg's close side.
	fb.got = nil
	ti = singleLegIntent(t)
	ti.Action = intent.ActionSellToClose
	ti.Legs[0].Side = "SELL"

	_, err = l.Execute(context.Background(), ti)
	require.NoError(t, err)
	require.NotNil(t, fb.got)
	assert.Equal(t, "sell_to_close", fb.got.Side)
}

func TestLiveRejectsMultiLeg(t *testing.T) {
	fb := &fakeBroker{resp: &broker.OrderResponse{ID: "42", Status: "ok"}}
	l := NewLive(fb)

	res, err := l.Execute(context.Background(), entryIntent(t))
	require.NoError(t, err)
	assert.Equal(t, intent.StatusRejected, res.Status)
	assert.Nil(t, fb.got)
}

func TestHistoricalSequentialIDs(t *testing.T) {
	h := NewHistorical(map[string]float64{"amd": 1.35})

	res, err := h.Execute(context.Background(), entryIntent(t))
	require.NoError(t, err)
	assert.Equal(t, "HIST-000001", res.OrderID)
	assert.Equal(t, 1.35, res.FillPrice)

	res, err = h.Execute(context.Background(), entryIntent(t))
	require.NoError(t, err)
	assert.Equal(t, "HIST-000002", res.OrderID)
}

func TestRouterPlan(t *testing.T) {
	p, _ := newPaper(t)
	r := NewRouter(p, NewLive(&fakeBroker{resp: &broker.OrderResponse{ID: "1"}}), NewHistorical(nil), nil)

	off := mode.Flags{DryRun: true}
	live := mode.Flags{DryRun: false, LiveTrading: true}
	dual := mode.Flags{DryRun: false, LiveTrading: true, AllowDual: true}

	ti := entryIntent(t)
	ti.ExecutionMode = intent.ModeLive
	assert.Equal(t, []string{"paper"}, r.Plan(ti, off))
	assert.Equal(t, []string{"live"}, r.Plan(ti, live))

	ti.ExecutionMode = intent.ModeDual
	assert.Equal(t, []string{"live", "paper"}, r.Plan(ti, dual))
	assert.Equal(t, []string{"live"}, r.Plan(ti, live))
	assert.Equal(t, []string{"paper"}, r.Plan(ti, off))

	ti.ExecutionMode = intent.ModeHistorical
	assert.Equal(t, []string{"historical"}, r.Plan(ti, off))

	// Single-broker override wins over everything.
	assert.Equal(t, []string{"paper"}, r.Plan(ti, mode.Flags{SingleBroker: "paper"}))
}

func TestRouterLiveDowngradeExecutesPaper(t *testing.T) {
	p, pos := newPaper(t)
	r := NewRouter(p, nil, nil, NewPlanLog(filepath.Join(t.TempDir(), "plan.jsonl")))

	ti := entryIntent(t)
	ti.ExecutionMode = intent.ModeLive
	results, err := r.Execute(context.Background(), ti, mode.Flags{DryRun: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, intent.StatusSimulated, results[0].Status)
	assert.Equal(t, "paper", results[0].Broker)
	assert.Len(t, pos.Open(), 1)
}

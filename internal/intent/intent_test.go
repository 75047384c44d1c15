package intent

import "testing"

func TestNewRejectsNonPositiveQuantity(t *testing.T) {
	_, err := New(TradeIntent{Underlying: "SPY", Quantity: 0})
	if err == nil {
		t.Fatal("want error for zero quantity")
	}
	_, err = New(TradeIntent{Underlying: "SPY", Quantity: 1, Legs: []OptionLeg{
		{Side: "BUY", Quantity: -2, Strike: 500, OptionType: "CALL", Expiration: "2026-09-18"},
	}})
	if err == nil {
		t.Fatal("want error for negative leg quantity")
	}
}

func TestNewDefaults(t *testing.T) {
	ti, err := New(TradeIntent{Underlying: "SPY", Quantity: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if ti.ID == "" {
		t.Fatal("id not assigned")
	}
	if ti.ExecutionMode != ModePaper {
		t.Fatalf("default mode = %s, want PAPER", ti.ExecutionMode)
	}
	if ti.SignalType != SignalUnknown {
		t.Fatalf("default signal type = %s, want UNKNOWN", ti.SignalType)
	}
}

func TestEffectiveLimitPrice(t *testing.T) {
	cases := []struct {
		name   string
		intent TradeIntent
		want   float64
		ok     bool
	}{
		{"explicit wins", TradeIntent{LimitPrice: 1.25, LimitMin: 1.0, LimitMax: 1.5}, 1.25, true},
		{"debit uses max", TradeIntent{LimitKind: LimitDebit, LimitMin: 1.0, LimitMax: 1.5}, 1.5, true},
		{"credit uses min", TradeIntent{LimitKind: LimitCredit, LimitMin: 1.0, LimitMax: 1.5}, 1.0, true},
		{"none", TradeIntent{}, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := tc.intent.EffectiveLimitPrice()
			if ok != tc.ok || got != tc.want {
				t.Fatalf("got (%v,%v), want (%v,%v)", got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestNotionalUsesContractMultiplier(t *testing.T) {
	stock := TradeIntent{Instrument: InstrumentStock, Quantity: 10}
	if n := stock.Notional(50); n != 500 {
		t.Fatalf("stock notional = %v, want 500", n)
	}
	opt := TradeIntent{Instrument: InstrumentSpread, Quantity: 2}
	if n := opt.Notional(1.5); n != 300 {
		t.Fatalf("spread notional = %v, want 300", n)
	}
}

func TestConsistent(t *testing.T) {
	r := ExecutionResult{Status: StatusSubmitted}
	if r.Consistent() {
		t.Fatal("SUBMITTED without order id must be inconsistent")
	}
	r.OrderID = "12345"
	if !r.Consistent() {
		t.Fatal("SUBMITTED with order id must be consistent")
	}
	rj := ExecutionResult{Status: StatusRejected}
	if !rj.Consistent() {
		t.Fatal("REJECTED without order id is fine")
	}
}

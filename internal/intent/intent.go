// Package intent holds the broker-agnostic trade vocabulary: what we want to
// trade (TradeIntent) and what happened when we tried (ExecutionResult).
// Everything here is immutable value data; executors and stores depend on this
// package, never the other way around.
package intent

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Mode is the execution mode a trade runs under.
type Mode string

const (
	ModePaper      Mode = "PAPER"
	ModeLive       Mode = "LIVE"
	ModeDual       Mode = "DUAL"
	ModeHistorical Mode = "HISTORICAL"
)

// Instrument classifies what kind of contract the intent trades.
type Instrument string

const (
	InstrumentStock       Instrument = "STOCK"
	InstrumentOption      Instrument = "OPTION"
	InstrumentSpread      Instrument = "SPREAD"
	InstrumentIndexOption Instrument = "INDEX_OPTION"
)

// Action encodes direction and open/close. Quantity is always positive;
// direction lives here, never in a sign.
type Action string

const (
	ActionBuy         Action = "BUY"
	ActionSell        Action = "SELL"
	ActionBuyToOpen   Action = "BUY_TO_OPEN"
	ActionBuyToClose  Action = "BUY_TO_CLOSE"
	ActionSellToOpen  Action = "SELL_TO_OPEN"
	ActionSellToClose Action = "SELL_TO_CLOSE"
)

// IsClose reports whether the action reduces or exits a position.
func (a Action) IsClose() bool {
	return a == ActionBuyToClose || a == ActionSellToClose
}

// IsOpen reports whether the action opens or adds to a position.
func (a Action) IsOpen() bool {
	return a == ActionBuy || a == ActionBuyToOpen || a == ActionSellToOpen
}

// OrderType selects the broker order shape.
type OrderType string

const (
	OrderMarket    OrderType = "MARKET"
	OrderLimit     OrderType = "LIMIT"
	OrderStop      OrderType = "STOP"
	OrderStopLimit OrderType = "STOP_LIMIT"
)

// SignalType tags the intent with the kind of signal that produced it.
type SignalType string

const (
	SignalEntry   SignalType = "ENTRY"
	SignalExit    SignalType = "EXIT"
	SignalUnknown SignalType = "UNKNOWN"
)

// LimitKind distinguishes debit (paying) from credit (receiving) price ranges.
type LimitKind string

const (
	LimitDebit  LimitKind = "DEBIT"
	LimitCredit LimitKind = "CREDIT"
)

// OptionLeg is one leg of an option or spread order. Quantity is positive;
// Side carries the direction.
type OptionLeg struct {
	Side       string  `json:"side"` // BUY or SELL
	Quantity   int     `json:"quantity"`
	Strike     float64 `json:"strike"`
	OptionType string  `json:"option_type"` // CALL or PUT
	Expiration string  `json:"expiration"`  // YYYY-MM-DD
}

// TradeIntent is a single desired trade, created once per signal-execution
// attempt and never mutated afterwards.
type TradeIntent struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	ExecutionMode Mode       `json:"execution_mode"`
	Instrument    Instrument `json:"instrument_type"`
	Underlying    string     `json:"underlying"`
	Action        Action     `json:"action"`
	OrderType     OrderType  `json:"order_type"`

	LimitPrice float64 `json:"limit_price,omitempty"`
	LimitMin   float64 `json:"limit_min,omitempty"`
	LimitMax   float64 `json:"limit_max,omitempty"`
	StopPrice  float64 `json:"stop_price,omitempty"`
	LimitKind  LimitKind `json:"limit_kind,omitempty"`

	Quantity int         `json:"quantity"`
	Legs     []OptionLeg `json:"legs,omitempty"`

	// Typed signal context. These used to travel in the metadata bag; they
	// are load-bearing for exit resolution and dedupe so they get real fields.
	SignalType        SignalType `json:"signal_type"`
	SourceSignalID    string     `json:"source_signal_id,omitempty"`
	MatchedPositionID string     `json:"matched_position_id,omitempty"`
	RiskFraction      float64    `json:"risk_fraction,omitempty"` // declared position size, 0..1

	RawSignal string            `json:"raw_signal,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"` // provenance annotations only
}

// New builds a validated TradeIntent with a fresh id and creation time.
func New(ti TradeIntent) (*TradeIntent, error) {
	if ti.Quantity <= 0 {
		return nil, fmt.Errorf("intent quantity must be positive, got %d", ti.Quantity)
	}
	for i, leg := range ti.Legs {
		if leg.Quantity <= 0 {
			return nil, fmt.Errorf("leg %d quantity must be positive, got %d", i+1, leg.Quantity)
		}
	}
	if ti.ID == "" {
		ti.ID = uuid.NewString()
	}
	if ti.CreatedAt.IsZero() {
		ti.CreatedAt = time.Now().UTC()
	}
	if ti.ExecutionMode == "" {
		ti.ExecutionMode = ModePaper
	}
	if ti.OrderType == "" {
		ti.OrderType = OrderMarket
	}
	if ti.SignalType == "" {
		ti.SignalType = SignalUnknown
	}
	return &ti, nil
}

// EffectiveLimitPrice resolves the price to use for order submission.
// Precedence: explicit limit, then range max for debit orders, then range min
// for credit orders. Returns (0, false) when no usable price exists.
func (t *TradeIntent) EffectiveLimitPrice() (float64, bool) {
	if t.LimitPrice > 0 {
		return t.LimitPrice, true
	}
	if t.LimitKind == LimitCredit {
		if t.LimitMin > 0 {
			return t.LimitMin, true
		}
		if t.LimitMax > 0 {
			return t.LimitMax, true
		}
		return 0, false
	}
	if t.LimitMax > 0 {
		return t.LimitMax, true
	}
	if t.LimitMin > 0 {
		return t.LimitMin, true
	}
	return 0, false
}

// IsExit reports whether the intent closes a position, either by tagged
// signal type or by close-class action.
func (t *TradeIntent) IsExit() bool {
	return t.SignalType == SignalExit || t.Action.IsClose()
}

// Notional estimates dollar exposure for rate limiting: price times quantity,
// times the contract multiplier for option-class instruments.
func (t *TradeIntent) Notional(fillPrice float64) float64 {
	mult := 1.0
	if t.Instrument != InstrumentStock {
		mult = 100.0
	}
	return fillPrice * float64(t.Quantity) * mult
}

// Status is the outcome class of an execution attempt.
type Status string

const (
	StatusFilled    Status = "FILLED"
	StatusSubmitted Status = "SUBMITTED"
	StatusRejected  Status = "REJECTED"
	StatusSimulated Status = "SIMULATED"
	StatusError     Status = "ERROR"
)

// ExecutionResult is the normalized outcome of executing one TradeIntent.
// Invariant: SUBMITTED or FILLED must carry a non-empty OrderID; a violation
// is a reportable consistency error, never silently corrected.
type ExecutionResult struct {
	IntentID string `json:"intent_id"`
	Status   Status `json:"status"`
	Broker   string `json:"broker"`
	OrderID  string `json:"order_id,omitempty"`
	Message  string `json:"message,omitempty"`

	FillPrice      float64 `json:"fill_price,omitempty"`
	FilledQuantity int     `json:"filled_quantity,omitempty"`

	SubmittedAt time.Time  `json:"submitted_at"`
	FilledAt    *time.Time `json:"filled_at,omitempty"`

	SubmittedPayload map[string]any `json:"submitted_payload,omitempty"`
}

// Consistent reports whether the result honors the order-id invariant.
func (r *ExecutionResult) Consistent() bool {
	if r.Status == StatusSubmitted || r.Status == StatusFilled {
		return r.OrderID != ""
	}
	return true
}

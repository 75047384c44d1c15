// Package signal defines the classified signal records consumed by the
// controller and the mapping from a signal to a TradeIntent. Parsing raw
// alerts into these records happens upstream; this package starts at the
// classified form.
package signal

import (
	"strings"
	"time"

	"github.com/quantpulse/autotrader/internal/intent"
)

type Classification string

const (
	ClassSignal    Classification = "SIGNAL"
	ClassNonSignal Classification = "NON_SIGNAL"
)

// Leg mirrors intent.OptionLeg at the parsed-signal layer.
type Leg struct {
	Side       string  `json:"side"`
	Quantity   int     `json:"quantity"`
	Strike     float64 `json:"strike"`
	OptionType string  `json:"option_type"`
	Expiration string  `json:"expiration,omitempty"`
}

// Signal is one classified alert record from the signal ledger.
type Signal struct {
	ID             string         `json:"signal_id"`
	Timestamp      time.Time      `json:"ts"`
	Classification Classification `json:"classification"`
	Ticker         string         `json:"ticker"`
	Strategy       string         `json:"strategy"` // e.g. CALL_DEBIT_SPREAD, LONG_STOCK, EXIT
	Expiration     string         `json:"expiration,omitempty"`
	Legs           []Leg          `json:"legs,omitempty"`
	LimitMin       float64        `json:"limit_min,omitempty"`
	LimitMax       float64        `json:"limit_max,omitempty"`
	LimitKind      string         `json:"limit_kind,omitempty"` // DEBIT | CREDIT
	SizePct        float64        `json:"size_pct,omitempty"`   // declared risk fraction, 0..1
	Quantity       int            `json:"quantity,omitempty"`
	RawText        string         `json:"raw_text,omitempty"`
}

// Type classifies the signal as ENTRY, EXIT or UNKNOWN.
func (s *Signal) Type() intent.SignalType {
	if s.Classification != ClassSignal {
		return intent.SignalUnknown
	}
	if strings.EqualFold(s.Strategy, "EXIT") {
		return intent.SignalExit
	}
	raw := strings.ToLower(s.RawText)
	for _, kw := range []string{"exit", "close position", "take profit", "selling to close", "buy to close"} {
		if strings.Contains(raw, kw) {
			return intent.SignalExit
		}
	}
	if s.Strategy != "" {
		return intent.SignalEntry
	}
	return intent.SignalUnknown
}

// HasCompleteLegs reports whether every leg carries the fields an order needs.
// Exit signals without complete legs must be resolved against an open position.
func (s *Signal) HasCompleteLegs() bool {
	if len(s.Legs) == 0 {
		return false
	}
	for _, l := range s.Legs {
		if l.Side == "" || l.Quantity <= 0 || l.Strike <= 0 || l.OptionType == "" {
			return false
		}
		if l.Expiration == "" && s.Expiration == "" {
			return false
		}
	}
	return true
}

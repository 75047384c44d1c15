package signal

import (
	"fmt"
	"strings"

	"github.com/quantpulse/autotrader/internal/intent"
)

// Index underlyings that map to INDEX_OPTION instruments.
var indexUnderlyings = map[string]bool{"SPX": true, "SPXW": true}

// BuildIntent maps a classified signal to a TradeIntent for the given mode.
//
// Mapping rules, in order: action from exit keywords then strategy kind,
// instrument from leg count and ticker, order type LIMIT whenever a price
// range exists. The range rides on the intent unchanged; executors resolve
// it with the debit/credit rule at fill time.
func BuildIntent(sig *Signal, execMode intent.Mode) (*intent.TradeIntent, error) {
	if sig.Classification != ClassSignal {
		return nil, fmt.Errorf("signal %s is not classified as a trade signal", sig.ID)
	}
	ticker := strings.ToUpper(strings.TrimSpace(sig.Ticker))
	if ticker == "" {
		return nil, fmt.Errorf("signal %s has no ticker", sig.ID)
	}

	qty := sig.Quantity
	if qty <= 0 {
		qty = 1
	}

	legs := buildLegs(sig)
	ti := intent.TradeIntent{
		ExecutionMode: execMode,
		Instrument:    determineInstrument(sig, ticker, legs),
		Underlying:    ticker,
		Action:        determineAction(sig),
		OrderType:     determineOrderType(sig),
		LimitMin:      sig.LimitMin,
		LimitMax:      sig.LimitMax,
		LimitKind:     limitKind(sig),
		Quantity:      qty,
		Legs:          legs,
		SignalType:    sig.Type(),
		SourceSignalID: sig.ID,
		RiskFraction:  sig.SizePct,
		RawSignal:     sig.RawText,
		Metadata:      map[string]string{"strategy": sig.Strategy},
	}
	return intent.New(ti)
}

func determineAction(sig *Signal) intent.Action {
	raw := strings.ToLower(sig.RawText)
	strat := strings.ToUpper(sig.Strategy)

	if sig.Type() == intent.SignalExit {
		if strings.Contains(raw, "buy to close") {
			return intent.ActionBuyToClose
		}
		if strings.Contains(raw, "sell to close") || strings.Contains(raw, "selling to close") {
			return intent.ActionSellToClose
		}
		// Credit positions were sold to open, so they close with a buy.
		for _, kw := range []string{"credit spread", "credit", "sold", "sell to open", "iron condor"} {
			if strings.Contains(raw, kw) {
				return intent.ActionBuyToClose
			}
		}
		return intent.ActionSellToClose
	}

	if strings.Contains(strat, "CREDIT") {
		return intent.ActionSellToOpen
	}
	return intent.ActionBuyToOpen
}

func determineInstrument(sig *Signal, ticker string, legs []intent.OptionLeg) intent.Instrument {
	strat := strings.ToUpper(sig.Strategy)
	if strat == "LONG_STOCK" {
		return intent.InstrumentStock
	}
	if len(legs) >= 2 {
		return intent.InstrumentSpread
	}
	if len(legs) == 1 || strat == "LONG_OPTION" || strat == "EXIT" {
		if indexUnderlyings[ticker] {
			return intent.InstrumentIndexOption
		}
		return intent.InstrumentOption
	}
	if strings.Contains(strat, "SPREAD") {
		return intent.InstrumentSpread
	}
	if strings.Contains(strat, "CALL") || strings.Contains(strat, "PUT") || strings.Contains(strat, "OPTION") {
		return intent.InstrumentOption
	}
	return intent.InstrumentStock
}

func determineOrderType(sig *Signal) intent.OrderType {
	if sig.LimitMin > 0 || sig.LimitMax > 0 {
		return intent.OrderLimit
	}
	return intent.OrderMarket
}

func limitKind(sig *Signal) intent.LimitKind {
	if strings.EqualFold(sig.LimitKind, "CREDIT") || strings.Contains(strings.ToUpper(sig.Strategy), "CREDIT") {
		return intent.LimitCredit
	}
	return intent.LimitDebit
}

func buildLegs(sig *Signal) []intent.OptionLeg {
	out := make([]intent.OptionLeg, 0, len(sig.Legs))
	for _, l := range sig.Legs {
		side := strings.ToUpper(l.Side)
		if side != "BUY" && side != "SELL" {
			side = "BUY"
		}
		ot := strings.ToUpper(l.OptionType)
		if ot != "CALL" && ot != "PUT" {
			ot = "CALL"
		}
		qty := l.Quantity
		if qty < 0 {
			qty = -qty
		}
		if qty == 0 {
			qty = 1
		}
		exp := l.Expiration
		if exp == "" {
			exp = sig.Expiration
		}
		out = append(out, intent.OptionLeg{
			Side:       side,
			Quantity:   qty,
			Strike:     l.Strike,
			OptionType: ot,
			Expiration: exp,
		})
	}
	return out
}

// Package broker holds the brokerage API client used by the live executor.
// The Client interface keeps executors testable against a fake; HTTPClient is
// the Tradier-style REST implementation.
package broker

import (
	"context"
	"fmt"

	"github.com/quantpulse/autotrader/internal/intent"
)

// OrderRequest is the broker-vocabulary order form.
type OrderRequest struct {
	Class      string  // equity | option
	Symbol     string  // underlying symbol
	Side       string  // buy, sell, buy_to_open, buy_to_close, sell_to_open, sell_to_close
	Quantity   int
	Type       string // market | limit | stop | stop_limit
	Duration   string // day | gtc
	Price      float64
	Stop       float64
	OptionLegs []OrderLeg
}

// OrderLeg is one leg of a multileg order in broker vocabulary.
type OrderLeg struct {
	OptionSymbol string // OCC symbol, e.g. AMD260918C00170000
	Side         string
	Quantity     int
}

// OrderResponse is the normalized broker acknowledgment.
type OrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Account is the subset of account state the controller reports.
type Account struct {
	ID          string  `json:"id"`
	Equity      float64 `json:"equity"`
	CashBalance float64 `json:"cash_balance"`
	BuyingPower float64 `json:"buying_power"`
}

// Quote is a point-in-time price.
type Quote struct {
	Symbol string  `json:"symbol"`
	Last   float64 `json:"last"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

// Client is the brokerage surface executors depend on.
type Client interface {
	Name() string
	PlaceStockOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error)
	PlaceOptionOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error)
	GetAccount(ctx context.Context) (*Account, error)
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
}

// APIError is a non-2xx broker response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("broker API error: status %d: %s", e.StatusCode, e.Body)
}

// SideFor translates an intent action into broker order vocabulary.
// Stock orders use plain buy/sell; option orders keep the open/close form.
func SideFor(action intent.Action, instrument intent.Instrument) string {
	if instrument == intent.InstrumentStock {
		switch action {
		case intent.ActionBuy, intent.ActionBuyToOpen, intent.ActionBuyToClose:
			return "buy"
		default:
			return "sell"
		}
	}
	switch action {
	case intent.ActionBuyToOpen, intent.ActionBuy:
		return "buy_to_open"
	case intent.ActionBuyToClose:
		return "buy_to_close"
	case intent.ActionSellToOpen:
		return "sell_to_open"
	default:
		return "sell_to_close"
	}
}

// OCCSymbol renders a leg as an OCC option symbol: underlying, yymmdd
// expiration, C/P, strike in thousandths padded to eight digits.
func OCCSymbol(underlying, expiration, optionType string, strike float64) (string, error) {
	if len(expiration) != 10 {
		return "", fmt.Errorf("expiration must be YYYY-MM-DD, got %q", expiration)
	}
	yymmdd := expiration[2:4] + expiration[5:7] + expiration[8:10]
	cp := "C"
	if optionType == "PUT" || optionType == "put" {
		cp = "P"
	}
	return fmt.Sprintf("%s%s%s%08d", underlying, yymmdd, cp, int(strike*1000)), nil
}

package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/quantpulse/autotrader/internal/config"
	"github.com/quantpulse/autotrader/internal/observ"
)

// TradierConfig configures the REST client. Token and account come from the
// environment so they never land in a config file; the YAML section names
// which variables to read.
type TradierConfig struct {
	BaseURL        string
	AccessToken    string
	AccountID      string
	TimeoutSeconds int
	RatePerSecond  int
}

// TradierConfigFromEnv builds the client config from the YAML broker section
// plus the environment variables it names.
func TradierConfigFromEnv(cfg config.Broker) TradierConfig {
	base := cfg.BaseURL
	if base == "" {
		base = "https://sandbox.tradier.com/v1"
	}
	return TradierConfig{
		BaseURL:        strings.TrimRight(base, "/"),
		AccessToken:    strings.TrimSpace(os.Getenv(cfg.TokenEnv)),
		AccountID:      strings.TrimSpace(os.Getenv(cfg.AccountIDEnv)),
		TimeoutSeconds: cfg.TimeoutSeconds,
		RatePerSecond:  cfg.RatePerSecond,
	}
}

// Tradier is the REST client. All requests pass a shared rate limiter so
// bursts of order activity stay inside the API quota.
type Tradier struct {
	cfg     TradierConfig
	http    *http.Client
	limiter *rate.Limiter
}

func NewTradier(cfg TradierConfig) (*Tradier, error) {
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("broker API token is required")
	}
	if cfg.AccountID == "" {
		return nil, fmt.Errorf("broker account id is required")
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 10
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 2
	}
	return &Tradier{
		cfg:     cfg,
		http:    &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RatePerSecond),
	}, nil
}

func (t *Tradier) Name() string { return "tradier" }

func (t *Tradier) do(ctx context.Context, method, path string, form url.Values, out any) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if method == http.MethodPost && form != nil {
		body = strings.NewReader(form.Encode())
	}
	u := t.cfg.BaseURL + path
	if method == http.MethodGet && form != nil && len(form) > 0 {
		u += "?" + form.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+t.cfg.AccessToken)
	req.Header.Set("Accept", "application/json")
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observ.Log("broker_api_error", map[string]any{
			"method": method, "path": path, "status": resp.StatusCode,
		})
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(b, out)
}

type orderEnvelope struct {
	Order struct {
		ID     json.Number `json:"id"`
		Status string      `json:"status"`
	} `json:"order"`
}

func (t *Tradier) placeOrder(ctx context.Context, form url.Values) (*OrderResponse, error) {
	path := "/accounts/" + t.cfg.AccountID + "/orders"
	var env orderEnvelope
	if err := t.do(ctx, http.MethodPost, path, form, &env); err != nil {
		return nil, err
	}
	return &OrderResponse{ID: env.Order.ID.String(), Status: env.Order.Status}, nil
}

// PlaceStockOrder submits an equity order.
func (t *Tradier) PlaceStockOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	form := url.Values{}
	form.Set("class", "equity")
	form.Set("symbol", req.Symbol)
	form.Set("side", req.Side)
	form.Set("quantity", strconv.Itoa(req.Quantity))
	form.Set("type", req.Type)
	form.Set("duration", orDay(req.Duration))
	if req.Price > 0 {
		form.Set("price", formatPrice(req.Price))
	}
	if req.Stop > 0 {
		form.Set("stop", formatPrice(req.Stop))
	}
	return t.placeOrder(ctx, form)
}

// PlaceOptionOrder submits a single-leg option order.
func (t *Tradier) PlaceOptionOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	if len(req.OptionLegs) > 1 {
		return nil, fmt.Errorf("multi-leg orders are not supported")
	}
	form := url.Values{}
	form.Set("class", "option")
	form.Set("symbol", req.Symbol)
	form.Set("type", req.Type)
	form.Set("duration", orDay(req.Duration))
	if req.Price > 0 {
		form.Set("price", formatPrice(req.Price))
	}
	if len(req.OptionLegs) == 1 {
		form.Set("option_symbol", req.OptionLegs[0].OptionSymbol)
	}
	form.Set("side", req.Side)
	form.Set("quantity", strconv.Itoa(req.Quantity))
	return t.placeOrder(ctx, form)
}

// GetAccount fetches account balances.
func (t *Tradier) GetAccount(ctx context.Context) (*Account, error) {
	var env struct {
		Balances struct {
			TotalEquity float64 `json:"total_equity"`
			TotalCash   float64 `json:"total_cash"`
			Margin      struct {
				StockBuyingPower float64 `json:"stock_buying_power"`
			} `json:"margin"`
		} `json:"balances"`
	}
	path := "/accounts/" + t.cfg.AccountID + "/balances"
	if err := t.do(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	return &Account{
		ID:          t.cfg.AccountID,
		Equity:      env.Balances.TotalEquity,
		CashBalance: env.Balances.TotalCash,
		BuyingPower: env.Balances.Margin.StockBuyingPower,
	}, nil
}

// GetQuote fetches a single quote.
func (t *Tradier) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	form := url.Values{}
	form.Set("symbols", symbol)
	var env struct {
		Quotes struct {
			Quote struct {
				Symbol string  `json:"symbol"`
				Last   float64 `json:"last"`
				Bid    float64 `json:"bid"`
				Ask    float64 `json:"ask"`
			} `json:"quote"`
		} `json:"quotes"`
	}
	if err := t.do(ctx, http.MethodGet, "/markets/quotes", form, &env); err != nil {
		return nil, err
	}
	q := env.Quotes.Quote
	return &Quote{Symbol: q.Symbol, Last: q.Last, Bid: q.Bid, Ask: q.Ask}, nil
}

func orDay(d string) string {
	if d == "" {
		return "day"
	}
	return d
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', 2, 64)
}

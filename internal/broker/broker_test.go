package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/autotrader/internal/intent"
)

func TestSideFor(t *testing.T) {
	assert.Equal(t, "buy", SideFor(intent.ActionBuyToOpen, intent.InstrumentStock))
	assert.Equal(t, "sell", SideFor(intent.ActionSellToClose, intent.InstrumentStock))
	assert.Equal(t, "buy_to_open", SideFor(intent.ActionBuyToOpen, intent.InstrumentOption))
	assert.Equal(t, "buy_to_close", SideFor(intent.ActionBuyToClose, intent.InstrumentSpread))
	assert.Equal(t, "sell_to_open", SideFor(intent.ActionSellToOpen, intent.InstrumentSpread))
	assert.Equal(t, "sell_to_close", SideFor(intent.ActionSell, intent.InstrumentOption))
}

func TestOCCSymbol(t *testing.T) {
	sym, err := OCCSymbol("AMD", "2026-09-18", "CALL", 170)
	require.NoError(t, err)
	assert.Equal(t, "AMD260918C00170000", sym)

	sym, err = OCCSymbol("SPX", "2026-08-31", "PUT", 6407.5)
	require.NoError(t, err)
	assert.Equal(t, "SPX260831P06407500", sym)

	_, err = OCCSymbol("AMD", "9/18/26", "CALL", 170)
	assert.Error(t, err)
}

func TestTradierPlaceStockOrder(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{}
		for k := range r.PostForm {
			gotForm[k] = r.PostForm.Get(k)
		}
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"order": map[string]any{"id": 123456, "status": "ok"},
		})
	}))
	defer srv.Close()

	cl, err := NewTradier(TradierConfig{BaseURL: srv.URL, AccessToken: "tok", AccountID: "acct-1"})
	require.NoError(t, err)

	resp, err := cl.PlaceStockOrder(context.Background(), OrderRequest{
		Symbol: "F", Side: "buy", Quantity: 100, Type: "limit", Price: 11.25,
	})
	require.NoError(t, err)
	assert.Equal(t, "123456", resp.ID)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "equity", gotForm["class"])
	assert.Equal(t, "11.25", gotForm["price"])
	assert.Equal(t, "day", gotForm["duration"])
}

func TestTradierOptionOrderForm(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{}
		for k := range r.PostForm {
			gotForm[k] = r.PostForm.Get(k)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"order": map[string]any{"id": "789", "status": "ok"},
		})
	}))
	defer srv.Close()

	cl, err := NewTradier(TradierConfig{BaseURL: srv.URL, AccessToken: "tok", AccountID: "acct-1"})
	require.NoError(t, err)

	_, err = cl.PlaceOptionOrder(context.Background(), OrderRequest{
		Symbol: "AMD", Side: "buy_to_open", Quantity: 1, Type: "limit", Price: 1.40,
		OptionLegs: []OrderLeg{
			{OptionSymbol: "AMD260918C00170000", Side: "buy_to_open", Quantity: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "option", gotForm["class"])
	assert.Equal(t, "AMD260918C00170000", gotForm["option_symbol"])
	assert.Equal(t, "buy_to_open", gotForm["side"])

	// More than one leg never reaches the wire.
	_, err = cl.PlaceOptionOrder(context.Background(), OrderRequest{
		Symbol: "AMD", Type: "limit",
		OptionLegs: []OrderLeg{
			{OptionSymbol: "AMD260918C00170000", Side: "buy_to_open", Quantity: 1},
			{OptionSymbol: "AMD260918C00175000", Side: "sell_to_open", Quantity: 1},
		},
	})
	assert.Error(t, err)
}

func TestTradierAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient buying power", http.StatusBadRequest)
	}))
	defer srv.Close()

	cl, err := NewTradier(TradierConfig{BaseURL: srv.URL, AccessToken: "tok", AccountID: "acct-1"})
	require.NoError(t, err)

	_, err = cl.PlaceStockOrder(context.Background(), OrderRequest{Symbol: "F", Side: "buy", Quantity: 1, Type: "market"})
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "insufficient buying power")
}

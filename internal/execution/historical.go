package execution

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/quantpulse/autotrader/internal/intent"
)

// Historical replays intents against a fixed price table, for backtesting a
// signal ledger. Order ids are sequential so a replay is reproducible.
type Historical struct {
	mu     sync.Mutex
	prices map[string]float64 // underlying -> fill price
	seq    int
}

func NewHistorical(prices map[string]float64) *Historical {
	norm := make(map[string]float64, len(prices))
	for k, v := range prices {
		norm[strings.ToUpper(k)] = v
	}
	return &Historical{prices: norm}
}

func (h *Historical) BrokerName() string { return "historical" }

func (h *Historical) Execute(ctx context.Context, ti *intent.TradeIntent) (*intent.ExecutionResult, error) {
	if rej := Validate(ti); rej != nil {
		rej.Broker = h.BrokerName()
		return rej, nil
	}

	h.mu.Lock()
	h.seq++
	orderID := fmt.Sprintf("HIST-%06d", h.seq)
	price, ok := h.prices[strings.ToUpper(ti.Underlying)]
	h.mu.Unlock()

	if !ok {
		if p, has := ti.EffectiveLimitPrice(); has {
			price = p
		} else {
			price = defaultStockFill
		}
	}

	now := time.Now().UTC()
	return &intent.ExecutionResult{
		IntentID:       ti.ID,
		Status:         intent.StatusSimulated,
		Broker:         h.BrokerName(),
		OrderID:        orderID,
		FillPrice:      price,
		FilledQuantity: ti.Quantity,
		SubmittedAt:    now,
		FilledAt:       &now,
	}, nil
}

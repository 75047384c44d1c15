// Package execution turns validated TradeIntents into orders. Three executors
// implement the same interface: paper (simulated fills plus position
// tracking), live (broker REST), and historical (replay fills). The Router
// picks executors from the effective mode and enforces result consistency.
package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/quantpulse/autotrader/internal/intent"
)

// Executor executes one intent and reports a normalized result. Execute
// returns an error only for infrastructure failures; trade-level rejections
// come back as a result with StatusRejected or StatusError.
type Executor interface {
	BrokerName() string
	Execute(ctx context.Context, ti *intent.TradeIntent) (*intent.ExecutionResult, error)
}

// Validate applies the order-shape checks shared by all executors. A failure
// produces a REJECTED result before any side effect happens.
func Validate(ti *intent.TradeIntent) *intent.ExecutionResult {
	reject := func(msg string) *intent.ExecutionResult {
		return &intent.ExecutionResult{
			IntentID:    ti.ID,
			Status:      intent.StatusRejected,
			Message:     msg,
			SubmittedAt: time.Now().UTC(),
		}
	}

	if ti.Underlying == "" {
		return reject("missing underlying")
	}
	if ti.Quantity <= 0 {
		return reject(fmt.Sprintf("invalid quantity %d", ti.Quantity))
	}
	switch ti.OrderType {
	case intent.OrderLimit:
		if _, ok := ti.EffectiveLimitPrice(); !ok {
			return reject("limit order requires a limit price")
		}
	case intent.OrderStop:
		if ti.StopPrice <= 0 {
			return reject("stop order requires a stop price")
		}
	case intent.OrderStopLimit:
		if _, ok := ti.EffectiveLimitPrice(); !ok {
			return reject("stop-limit order requires a limit price")
		}
		if ti.StopPrice <= 0 {
			return reject("stop-limit order requires a stop price")
		}
	}
	return nil
}

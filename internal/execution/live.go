package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/quantpulse/autotrader/internal/broker"
	"github.com/quantpulse/autotrader/internal/intent"
	"github.com/quantpulse/autotrader/internal/observ"
)

// Live submits orders to the brokerage. Status is SUBMITTED only when the
// broker acknowledged with an order id; an acknowledgment without an id is an
// ERROR, never a silent success.
type Live struct {
	Client broker.Client
}

func NewLive(client broker.Client) *Live {
	return &Live{Client: client}
}

func (l *Live) BrokerName() string { return l.Client.Name() }

func (l *Live) Execute(ctx context.Context, ti *intent.TradeIntent) (*intent.ExecutionResult, error) {
	if rej := Validate(ti); rej != nil {
		rej.Broker = l.BrokerName()
		return rej, nil
	}

	// The live path submits stocks and single-leg options only. Spreads stay
	// papered until the position can be expressed as one broker order.
	if len(ti.Legs) > 1 {
		return &intent.ExecutionResult{
			IntentID:    ti.ID,
			Status:      intent.StatusRejected,
			Broker:      l.BrokerName(),
			Message:     "multi-leg orders are not submitted live",
			SubmittedAt: time.Now().UTC(),
		}, nil
	}

	req, err := l.buildRequest(ti)
	if err != nil {
		return &intent.ExecutionResult{
			IntentID:    ti.ID,
			Status:      intent.StatusRejected,
			Broker:      l.BrokerName(),
			Message:     err.Error(),
			SubmittedAt: time.Now().UTC(),
		}, nil
	}

	res := &intent.ExecutionResult{
		IntentID:    ti.ID,
		Broker:      l.BrokerName(),
		SubmittedAt: time.Now().UTC(),
		SubmittedPayload: map[string]any{
			"class": req.Class, "symbol": req.Symbol, "side": req.Side,
			"quantity": req.Quantity, "type": req.Type, "price": req.Price,
			"legs": len(req.OptionLegs),
		},
	}

	var resp *broker.OrderResponse
	if ti.Instrument == intent.InstrumentStock {
		resp, err = l.Client.PlaceStockOrder(ctx, *req)
	} else {
		resp, err = l.Client.PlaceOptionOrder(ctx, *req)
	}
	if err != nil {
		res.Status = intent.StatusError
		res.Message = err.Error()
		observ.Log("live_order_failed", map[string]any{
			"intent_id": ti.ID, "underlying": ti.Underlying, "error": err.Error(),
		})
		return res, nil
	}

	if resp.ID == "" {
		res.Status = intent.StatusError
		res.Message = "broker acknowledged without an order id"
		observ.Log("live_order_no_id", map[string]any{
			"intent_id": ti.ID, "broker_status": resp.Status,
		})
		return res, nil
	}

	res.Status = intent.StatusSubmitted
	res.OrderID = resp.ID
	res.Message = "broker status " + resp.Status
	observ.Log("live_order_submitted", map[string]any{
		"intent_id": ti.ID, "order_id": resp.ID, "underlying": ti.Underlying,
	})
	return res, nil
}

func (l *Live) buildRequest(ti *intent.TradeIntent) (*broker.OrderRequest, error) {
	req := &broker.OrderRequest{
		Symbol:   ti.Underlying,
		Side:     broker.SideFor(ti.Action, ti.Instrument),
		Quantity: ti.Quantity,
		Duration: "day",
	}

	switch ti.OrderType {
	case intent.OrderLimit:
		req.Type = "limit"
		p, _ := ti.EffectiveLimitPrice()
		req.Price = p
	case intent.OrderStop:
		req.Type = "stop"
		req.Stop = ti.StopPrice
	case intent.OrderStopLimit:
		req.Type = "stop_limit"
		p, _ := ti.EffectiveLimitPrice()
		req.Price = p
		req.Stop = ti.StopPrice
	default:
		req.Type = "market"
	}

	if ti.Instrument == intent.InstrumentStock {
		req.Class = "equity"
		return req, nil
	}

	if len(ti.Legs) == 0 {
		return nil, fmt.Errorf("option order requires a leg")
	}
	for _, leg := range ti.Legs {
		sym, err := broker.OCCSymbol(ti.Underlying, leg.Expiration, leg.OptionType, leg.Strike)
		if err != nil {
			return nil, err
		}
		side := "buy_to_open"
		switch {
		case leg.Side == "SELL" && ti.Action.IsOpen():
			side = "sell_to_open"
		case leg.Side == "SELL":
			side = "sell_to_close"
		case ti.Action.IsClose():
			side = "buy_to_close"
		}
		req.OptionLegs = append(req.OptionLegs, broker.OrderLeg{
			OptionSymbol: sym,
			Side:         side,
			Quantity:     leg.Quantity * ti.Quantity,
		})
	}
	// The broker form reads side and quantity from the request itself; for a
	// single-leg option those are the leg's, not the intent's, so a leg
	// quantity above one submits the full contract count.
	req.Class = "option"
	req.Side = req.OptionLegs[0].Side
	req.Quantity = req.OptionLegs[0].Quantity
	return req, nil
}

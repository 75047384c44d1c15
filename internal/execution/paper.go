package execution

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/quantpulse/autotrader/internal/intent"
	"github.com/quantpulse/autotrader/internal/observ"
	"github.com/quantpulse/autotrader/internal/positions"
)

// Default fill prices when a signal carries no price at all.
const (
	defaultStockFill  = 100.00
	defaultSpreadFill = 1.50
	defaultOptionFill = 2.50
)

// Paper simulates fills and maintains the paper position ledger. Every result
// is SIMULATED; paper never reports FILLED so downstream consumers cannot
// mistake a simulation for a real trade.
type Paper struct {
	Positions *positions.Store
}

func NewPaper(pos *positions.Store) *Paper {
	return &Paper{Positions: pos}
}

func (p *Paper) BrokerName() string { return "paper" }

// FillPrice resolves the simulated fill. Precedence: explicit limit, then the
// range midpoint when both ends exist, then whichever end exists, then an
// instrument-class default.
func FillPrice(ti *intent.TradeIntent) float64 {
	if ti.LimitPrice > 0 {
		return ti.LimitPrice
	}
	if ti.LimitMin > 0 && ti.LimitMax > 0 {
		return (ti.LimitMin + ti.LimitMax) / 2
	}
	if ti.LimitMax > 0 {
		return ti.LimitMax
	}
	if ti.LimitMin > 0 {
		return ti.LimitMin
	}
	switch ti.Instrument {
	case intent.InstrumentStock:
		return defaultStockFill
	case intent.InstrumentSpread:
		return defaultSpreadFill
	default:
		return defaultOptionFill
	}
}

func (p *Paper) Execute(ctx context.Context, ti *intent.TradeIntent) (*intent.ExecutionResult, error) {
	if rej := Validate(ti); rej != nil {
		rej.Broker = p.BrokerName()
		return rej, nil
	}

	now := time.Now().UTC()
	price := FillPrice(ti)
	res := &intent.ExecutionResult{
		IntentID:       ti.ID,
		Status:         intent.StatusSimulated,
		Broker:         p.BrokerName(),
		OrderID:        "paper-" + uuid.NewString(),
		FillPrice:      price,
		FilledQuantity: ti.Quantity,
		SubmittedAt:    now,
		FilledAt:       &now,
	}

	if ti.Action.IsOpen() {
		pos, err := p.Positions.AppendOpen(positions.Position{
			Underlying:     ti.Underlying,
			Instrument:     ti.Instrument,
			Action:         ti.Action,
			Quantity:       ti.Quantity,
			Legs:           ti.Legs,
			EntryPrice:     price,
			SourceSignalID: ti.SourceSignalID,
			OpenedAt:       now,
		})
		if err != nil {
			return nil, err
		}
		res.Message = "simulated open, position " + pos.ID
		observ.Log("paper_position_opened", map[string]any{
			"position_id": pos.ID, "underlying": pos.Underlying, "entry_price": price,
		})
	} else if ti.IsExit() {
		if ti.MatchedPositionID == "" {
			res.Message = "simulated exit with no matched position; ledger unchanged"
		} else {
			closed, err := p.Positions.MarkClosed(ti.MatchedPositionID, price, ti.SourceSignalID, now)
			if err != nil {
				return nil, err
			}
			if closed {
				res.Message = "simulated close of position " + ti.MatchedPositionID
				observ.Log("paper_position_closed", map[string]any{
					"position_id": ti.MatchedPositionID, "exit_price": price,
				})
			} else {
				res.Message = "position " + ti.MatchedPositionID + " already closed or unknown"
			}
		}
	}

	return res, nil
}

// Replay runs a signal ledger through the historical executor and prints
// per-signal fills plus totals, for sanity-checking a signal source before
// letting the controller act on it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/quantpulse/autotrader/internal/execution"
	"github.com/quantpulse/autotrader/internal/intent"
	"github.com/quantpulse/autotrader/internal/signal"
)

func main() {
	ledger := flag.String("signals", "logs/signals_parsed.jsonl", "signal ledger to replay")
	pricesPath := flag.String("prices", "", "optional JSON file of underlying -> fill price")
	limit := flag.Int("limit", 0, "replay at most N signals, 0 for all")
	flag.Parse()

	prices := map[string]float64{}
	if *pricesPath != "" {
		b, err := os.ReadFile(*pricesPath)
		if err != nil {
			log.Fatalf("read prices: %v", err)
		}
		if err := json.Unmarshal(b, &prices); err != nil {
			log.Fatalf("parse prices: %v", err)
		}
	}

	store := signal.NewStore(*ledger)
	sigs, err := store.Recent(*limit)
	if err != nil {
		log.Fatalf("read signals: %v", err)
	}
	// Recent is newest first; replay oldest first.
	for i, j := 0, len(sigs)-1; i < j; i, j = i+1, j-1 {
		sigs[i], sigs[j] = sigs[j], sigs[i]
	}

	exec := execution.NewHistorical(prices)
	enc := json.NewEncoder(os.Stdout)

	var executed, skipped int
	var notional float64
	for i := range sigs {
		sig := &sigs[i]
		if sig.Classification != signal.ClassSignal {
			skipped++
			continue
		}
		ti, err := signal.BuildIntent(sig, intent.ModeHistorical)
		if err != nil {
			skipped++
			fmt.Fprintf(os.Stderr, "skip %s: %v\n", sig.ID, err)
			continue
		}
		res, err := exec.Execute(context.Background(), ti)
		if err != nil {
			log.Fatalf("execute %s: %v", sig.ID, err)
		}
		if res.Status != intent.StatusSimulated {
			skipped++
			fmt.Fprintf(os.Stderr, "skip %s: %s %s\n", sig.ID, res.Status, res.Message)
			continue
		}
		executed++
		notional += ti.Notional(res.FillPrice)
		_ = enc.Encode(map[string]any{
			"signal_id":  sig.ID,
			"underlying": ti.Underlying,
			"action":     ti.Action,
			"order_id":   res.OrderID,
			"fill_price": res.FillPrice,
			"notional":   ti.Notional(res.FillPrice),
		})
	}

	fmt.Fprintf(os.Stderr, "replayed %d signals (%d skipped), total notional %.2f\n",
		executed, skipped, notional)
}

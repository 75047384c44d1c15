// Prometheus metrics for the execution control plane.
//
//   - trader_ticks_total{outcome}          – controller ticks by outcome
//   - trader_executions_total{mode,status} – execution attempts by mode/result
//   - trader_preflight_blocks_total{check} – preflight failures by check name
//   - trader_dedupe_hits_total             – signals skipped as already executed
//   - trader_safety_trips_total{invariant} – fail-closed controller shutdowns
//   - trader_trades_today                  – rolling daily trade counter
//   - trader_notional_today_usd            – rolling daily notional
//   - trader_open_positions                – currently open paper positions
//   - trader_consistency_errors_total      – SUBMITTED results missing order id
//
// Served at /metrics by the control HTTP server.
package observ

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mtxTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_ticks_total",
			Help: "Auto controller ticks by outcome",
		},
		[]string{"outcome"},
	)

	mtxExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_executions_total",
			Help: "Execution attempts by mode and result status",
		},
		[]string{"mode", "status"},
	)

	mtxPreflightBlocks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_preflight_blocks_total",
			Help: "Preflight failures by check name",
		},
		[]string{"check"},
	)

	mtxDedupeHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trader_dedupe_hits_total",
			Help: "Signals skipped because the dedupe ledger already holds them",
		},
	)

	mtxSafetyTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_safety_trips_total",
			Help: "Fail-closed controller shutdowns by violated invariant",
		},
		[]string{"invariant"},
	)

	mtxTradesToday = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_trades_today",
			Help: "Trades executed so far this calendar day",
		},
	)

	mtxNotionalToday = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_notional_today_usd",
			Help: "Notional executed so far this calendar day",
		},
	)

	mtxOpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_open_positions",
			Help: "Currently open paper positions",
		},
	)

	mtxConsistencyErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trader_consistency_errors_total",
			Help: "SUBMITTED/FILLED results observed without a broker order id",
		},
	)
)

func init() {
	prometheus.MustRegister(
		mtxTicks,
		mtxExecutions,
		mtxPreflightBlocks,
		mtxDedupeHits,
		mtxSafetyTrips,
		mtxTradesToday,
		mtxNotionalToday,
		mtxOpenPositions,
		mtxConsistencyErrors,
	)
}

func IncTick(outcome string)                { mtxTicks.WithLabelValues(outcome).Inc() }
func IncExecution(mode, status string)      { mtxExecutions.WithLabelValues(mode, status).Inc() }
func IncPreflightBlock(check string)        { mtxPreflightBlocks.WithLabelValues(check).Inc() }
func IncDedupeHit()                         { mtxDedupeHits.Inc() }
func IncSafetyTrip(invariant string)        { mtxSafetyTrips.WithLabelValues(invariant).Inc() }
func SetTradesToday(n int)                  { mtxTradesToday.Set(float64(n)) }
func SetNotionalToday(usd float64)          { mtxNotionalToday.Set(usd) }
func SetOpenPositions(n int)                { mtxOpenPositions.Set(float64(n)) }
func IncConsistencyError()                  { mtxConsistencyErrors.Inc() }

// Handler serves the Prometheus text exposition format.
func Handler() http.Handler { return promhttp.Handler() }

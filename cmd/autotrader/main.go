package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/quantpulse/autotrader/internal/auto"
	"github.com/quantpulse/autotrader/internal/broker"
	"github.com/quantpulse/autotrader/internal/config"
	"github.com/quantpulse/autotrader/internal/dedupe"
	"github.com/quantpulse/autotrader/internal/execution"
	"github.com/quantpulse/autotrader/internal/market"
	"github.com/quantpulse/autotrader/internal/mode"
	"github.com/quantpulse/autotrader/internal/observ"
	"github.com/quantpulse/autotrader/internal/positions"
	"github.com/quantpulse/autotrader/internal/preflight"
	"github.com/quantpulse/autotrader/internal/review"
	sigstore "github.com/quantpulse/autotrader/internal/signal"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (defaults apply when empty)")
	flag.Parse()

	// Missing .env is fine; env vars may come from the shell.
	_ = godotenv.Load()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "autotrader: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Root) error {
	signals := sigstore.NewStore(cfg.Paths.SignalLedger)
	executed, err := dedupe.NewStore(cfg.Paths.DedupeLedger)
	if err != nil {
		return fmt.Errorf("open dedupe ledger: %w", err)
	}
	pos, err := positions.NewStore(cfg.Paths.PositionLedger)
	if err != nil {
		return fmt.Errorf("open position ledger: %w", err)
	}
	counters, err := auto.NewCounterStore(cfg.Paths.CountersFile)
	if err != nil {
		return fmt.Errorf("open counters: %w", err)
	}
	settings := config.NewSettingsStore(cfg.Paths.SettingsFile, cfg)

	oracle, err := market.NewClock(cfg.Market)
	if err != nil {
		return err
	}

	// The live executor exists only when broker credentials are present.
	// Everything else still works papered.
	var live execution.Executor
	bcfg := broker.TradierConfigFromEnv(cfg.Broker)
	if bcfg.AccessToken != "" && bcfg.AccountID != "" {
		client, err := broker.NewTradier(bcfg)
		if err != nil {
			return fmt.Errorf("broker client: %w", err)
		}
		live = execution.NewLive(client)
		observ.Log("broker_client_ready", map[string]any{"broker": client.Name()})
	} else {
		observ.Log("broker_client_absent", map[string]any{
			"reason": "missing token or account id; live executor disabled",
		})
	}

	router := execution.NewRouter(
		execution.NewPaper(pos), live, execution.NewHistorical(nil),
		execution.NewPlanLog(cfg.Paths.PlanLog))
	gate := preflight.NewGate(executed, cfg.Risk.Mode)

	ctrl := auto.NewController(cfg, signals, executed, pos, gate, router, settings, counters, oracle)
	queue := review.NewQueue(cfg.Paths.ReviewLog, signals, executed, pos, gate, router, settings)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctrl.Start(ctx)

	srv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: newMux(ctrl, queue, settings, executed),
	}
	go func() {
		observ.Log("http_listening", map[string]any{"addr": cfg.Server.ListenAddr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			observ.Log("http_server_failed", map[string]any{"error": err.Error()})
			stop()
		}
	}()

	<-ctx.Done()
	observ.Log("shutting_down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	ctrl.Stop()
	return nil
}

func newMux(ctrl *auto.Controller, queue *review.Queue, settings *config.SettingsStore, executed *dedupe.Store) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.Handle("GET /metrics", observ.Handler())

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		st := ctrl.Status(time.Now())
		writeJSON(w, http.StatusOK, map[string]any{
			"auto":           st,
			"flags":          mode.FromEnv(),
			"settings":       settings.Load(),
			"executed_today": executed.CountToday(time.Now()),
		})
	})

	mux.HandleFunc("POST /auto/enable", func(w http.ResponseWriter, r *http.Request) {
		ctrl.Enable()
		writeJSON(w, http.StatusOK, map[string]any{"enabled": true})
	})
	mux.HandleFunc("POST /auto/disable", func(w http.ResponseWriter, r *http.Request) {
		ctrl.Disable("operator request")
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
	})
	mux.HandleFunc("POST /auto/tick", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ctrl.Tick(time.Now()))
	})

	mux.HandleFunc("POST /mode", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Mode string `json:"mode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := settings.SetRequestedMode(body.Mode); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		dec := mode.Resolve(mode.ParseRequested(body.Mode), false, mode.FromEnv())
		writeJSON(w, http.StatusOK, dec)
	})

	mux.HandleFunc("GET /review/pending", func(w http.ResponseWriter, r *http.Request) {
		limit := 25
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}
		pending, err := queue.Pending(limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"pending": pending})
	})

	mux.HandleFunc("POST /review/approve", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			SignalID string `json:"signal_id"`
			Mode     string `json:"mode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.SignalID == "" {
			writeError(w, http.StatusBadRequest, fmt.Errorf("signal_id is required"))
			return
		}
		out, err := queue.Approve(r.Context(), body.SignalID, body.Mode)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	mux.HandleFunc("POST /review/reject", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			SignalID string `json:"signal_id"`
			Notes    string `json:"notes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.SignalID == "" {
			writeError(w, http.StatusBadRequest, fmt.Errorf("signal_id is required"))
			return
		}
		if err := queue.Reject(body.SignalID, body.Notes); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"rejected": body.SignalID})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Settings are the user-adjustable knobs persisted to a single JSON document.
// Resolution order per key: persisted file, then environment variable, then
// the built-in default. Safety-critical flags (live trading, kill switch) are
// deliberately NOT here; those are environment-only and read per tick.
type Settings struct {
	RequestedMode       string  `json:"requested_execution_mode"`
	MaxRiskPctPerTrade  float64 `json:"max_risk_pct_per_trade"`
	MaxTradesPerDay     int     `json:"auto_max_trades_per_day"`
	MaxTradesPerHour    int     `json:"auto_max_trades_per_hour"`
	MaxNotionalPerDay   float64 `json:"auto_max_notional_per_day_usd"`
	WindowBufferMinutes int     `json:"auto_window_buffer_minutes"`
	Allow0DTEIndex      bool    `json:"allow_0dte_index"`
}

// SettingsStore persists Settings with a coarse read-modify-write pattern.
// Single writer by convention: the control surface.
type SettingsStore struct {
	mu   sync.Mutex
	path string
	defs Settings
}

func NewSettingsStore(path string, cfg Root) *SettingsStore {
	return &SettingsStore{
		path: path,
		defs: Settings{
			RequestedMode:       "paper",
			MaxRiskPctPerTrade:  cfg.Risk.MaxRiskPctPerTrade,
			MaxTradesPerDay:     cfg.Auto.MaxTradesPerDay,
			MaxTradesPerHour:    cfg.Auto.MaxTradesPerHour,
			MaxNotionalPerDay:   cfg.Auto.MaxNotionalPerDay,
			WindowBufferMinutes: cfg.Auto.WindowBufferMinutes,
			Allow0DTEIndex:      cfg.Risk.Allow0DTEIndex,
		},
	}
}

// Load resolves the effective settings: file over env over defaults.
func (s *SettingsStore) Load() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadUnsafe()
}

func (s *SettingsStore) loadUnsafe() Settings {
	out := s.defs
	out.RequestedMode = envString("REQUESTED_EXECUTION_MODE", out.RequestedMode)
	out.MaxRiskPctPerTrade = envFloat("MAX_RISK_PCT_PER_TRADE", out.MaxRiskPctPerTrade)
	out.MaxTradesPerDay = envInt("AUTO_MAX_TRADES_PER_DAY", out.MaxTradesPerDay)
	out.MaxTradesPerHour = envInt("AUTO_MAX_TRADES_PER_HOUR", out.MaxTradesPerHour)
	out.MaxNotionalPerDay = envFloat("AUTO_MAX_NOTIONAL_PER_DAY", out.MaxNotionalPerDay)
	out.WindowBufferMinutes = envInt("AUTO_WINDOW_BUFFER_MINUTES", out.WindowBufferMinutes)
	out.Allow0DTEIndex = EnvBool("ALLOW_0DTE_INDEX", out.Allow0DTEIndex)

	b, err := os.ReadFile(s.path)
	if err != nil {
		return out
	}
	var file Settings
	if err := json.Unmarshal(b, &file); err != nil {
		return out
	}
	if file.RequestedMode != "" {
		out.RequestedMode = file.RequestedMode
	}
	if file.MaxRiskPctPerTrade > 0 {
		out.MaxRiskPctPerTrade = file.MaxRiskPctPerTrade
	}
	if file.MaxTradesPerDay > 0 {
		out.MaxTradesPerDay = file.MaxTradesPerDay
	}
	if file.MaxTradesPerHour > 0 {
		out.MaxTradesPerHour = file.MaxTradesPerHour
	}
	if file.MaxNotionalPerDay > 0 {
		out.MaxNotionalPerDay = file.MaxNotionalPerDay
	}
	if file.WindowBufferMinutes > 0 {
		out.WindowBufferMinutes = file.WindowBufferMinutes
	}
	out.Allow0DTEIndex = file.Allow0DTEIndex
	return out
}

// Save writes the settings document atomically (temp file + rename).
func (s *SettingsStore) Save(set Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if set.RequestedMode == "" {
		set.RequestedMode = "paper"
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// SetRequestedMode persists just the requested execution mode.
func (s *SettingsStore) SetRequestedMode(mode string) error {
	s.mu.Lock()
	cur := s.loadUnsafe()
	s.mu.Unlock()
	mode = strings.ToLower(mode)
	switch mode {
	case "paper", "live", "dual":
	default:
		mode = "paper"
	}
	cur.RequestedMode = mode
	return s.Save(cur)
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// EnvBool reads a boolean environment flag. Also used by the mode manager for
// the safety flags that are never cached.
func EnvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

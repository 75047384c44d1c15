package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Paths struct {
	DedupeLedger   string `yaml:"dedupe_ledger"`
	PositionLedger string `yaml:"position_ledger"`
	PlanLog        string `yaml:"plan_log"`
	ReviewLog      string `yaml:"review_log"`
	CountersFile   string `yaml:"counters_file"`
	SettingsFile   string `yaml:"settings_file"`
	SignalLedger   string `yaml:"signal_ledger"`
	SummaryDir     string `yaml:"summary_dir"`
}

type Auto struct {
	PollSeconds         int     `yaml:"poll_seconds"`
	MaxTradesPerDay     int     `yaml:"max_trades_per_day"`
	MaxTradesPerHour    int     `yaml:"max_trades_per_hour"`
	MaxNotionalPerDay   float64 `yaml:"max_notional_per_day_usd"`
	WindowBufferMinutes int     `yaml:"window_buffer_minutes"`
	SignalLookback      int     `yaml:"signal_lookback"`
}

type Risk struct {
	Mode               string  `yaml:"mode"` // conservative | balanced | aggressive
	MaxRiskPctPerTrade float64 `yaml:"max_risk_pct_per_trade"`
	Allow0DTEIndex     bool    `yaml:"allow_0dte_index"`
}

type Broker struct {
	Name           string `yaml:"name"`
	BaseURL        string `yaml:"base_url"`
	AccountIDEnv   string `yaml:"account_id_env"`
	TokenEnv       string `yaml:"token_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	RatePerSecond  int    `yaml:"rate_per_second"`
}

type Market struct {
	Timezone    string `yaml:"timezone"`
	OpenHour    int    `yaml:"open_hour"`
	OpenMinute  int    `yaml:"open_minute"`
	CloseHour   int    `yaml:"close_hour"`
	CloseMinute int    `yaml:"close_minute"`
}

type Server struct {
	ListenAddr string `yaml:"listen_addr"`
}

type Root struct {
	Paths  Paths  `yaml:"paths"`
	Auto   Auto   `yaml:"auto"`
	Risk   Risk   `yaml:"risk"`
	Broker Broker `yaml:"broker"`
	Market Market `yaml:"market"`
	Server Server `yaml:"server"`
}

func Load(path string) (Root, error) {
	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}
	applyDefaults(&c)
	return c, nil
}

// Default returns a config with every default applied, for running without
// a config file.
func Default() Root {
	var c Root
	applyDefaults(&c)
	return c
}

func applyDefaults(c *Root) {
	if c.Paths.DedupeLedger == "" {
		c.Paths.DedupeLedger = "data/executed_signals.jsonl"
	}
	if c.Paths.PositionLedger == "" {
		c.Paths.PositionLedger = "data/paper_positions.jsonl"
	}
	if c.Paths.PlanLog == "" {
		c.Paths.PlanLog = "logs/execution_plan.jsonl"
	}
	if c.Paths.ReviewLog == "" {
		c.Paths.ReviewLog = "data/review_actions.jsonl"
	}
	if c.Paths.CountersFile == "" {
		c.Paths.CountersFile = "data/auto_counters.json"
	}
	if c.Paths.SettingsFile == "" {
		c.Paths.SettingsFile = "data/settings.json"
	}
	if c.Paths.SignalLedger == "" {
		c.Paths.SignalLedger = "logs/signals_parsed.jsonl"
	}
	if c.Paths.SummaryDir == "" {
		c.Paths.SummaryDir = "logs"
	}

	if c.Auto.PollSeconds == 0 {
		c.Auto.PollSeconds = 30
	}
	if c.Auto.MaxTradesPerDay == 0 {
		c.Auto.MaxTradesPerDay = 10
	}
	if c.Auto.MaxTradesPerHour == 0 {
		c.Auto.MaxTradesPerHour = 3
	}
	if c.Auto.MaxNotionalPerDay == 0 {
		c.Auto.MaxNotionalPerDay = 25000
	}
	if c.Auto.WindowBufferMinutes == 0 {
		c.Auto.WindowBufferMinutes = 60
	}
	if c.Auto.SignalLookback == 0 {
		c.Auto.SignalLookback = 50
	}

	if c.Risk.Mode == "" {
		c.Risk.Mode = "balanced"
	}
	if c.Risk.MaxRiskPctPerTrade == 0 {
		c.Risk.MaxRiskPctPerTrade = 0.02
	}

	if c.Broker.Name == "" {
		c.Broker.Name = "tradier"
	}
	if c.Broker.BaseURL == "" {
		c.Broker.BaseURL = "https://sandbox.tradier.com/v1"
	}
	if c.Broker.AccountIDEnv == "" {
		c.Broker.AccountIDEnv = "BROKER_ACCOUNT_ID"
	}
	if c.Broker.TokenEnv == "" {
		c.Broker.TokenEnv = "BROKER_API_TOKEN"
	}
	if c.Broker.TimeoutSeconds == 0 {
		c.Broker.TimeoutSeconds = 10
	}
	if c.Broker.RatePerSecond == 0 {
		c.Broker.RatePerSecond = 2
	}

	if c.Market.Timezone == "" {
		c.Market.Timezone = "America/New_York"
	}
	if c.Market.OpenHour == 0 && c.Market.OpenMinute == 0 {
		c.Market.OpenHour, c.Market.OpenMinute = 9, 30
	}
	if c.Market.CloseHour == 0 {
		c.Market.CloseHour, c.Market.CloseMinute = 16, 0
	}

	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8090"
	}
}

// Package mode resolves the effective execution mode from the requested mode
// plus environment-level safety flags. UI or settings state can request a
// mode; only the environment can unlock live trading.
package mode

import (
	"fmt"
	"os"
	"strings"

	"github.com/quantpulse/autotrader/internal/config"
	"github.com/quantpulse/autotrader/internal/intent"
)

// Flags is a point-in-time snapshot of the environment safety switches.
// Snapshots are taken per tick and never cached beyond it.
type Flags struct {
	DryRun       bool // DRY_RUN, defaults true: the master paper-only latch
	LiveTrading  bool // LIVE_TRADING
	AllowDual    bool // ALLOW_DUAL_MODE
	AutoLive     bool // AUTO_LIVE_ENABLED
	KillSwitch   bool // KILL_SWITCH: unconditionally disables automation
	SingleBroker string // EXECUTION_BROKER_MODE: broker name forces one executor, "" = normal routing
}

// FromEnv reads the safety flags. Missing DRY_RUN means dry-run stays on:
// every default here degrades toward paper.
func FromEnv() Flags {
	return Flags{
		DryRun:       config.EnvBool("DRY_RUN", true),
		LiveTrading:  config.EnvBool("LIVE_TRADING", false),
		AllowDual:    config.EnvBool("ALLOW_DUAL_MODE", false),
		AutoLive:     config.EnvBool("AUTO_LIVE_ENABLED", false),
		KillSwitch:   config.EnvBool("KILL_SWITCH", false),
		SingleBroker: strings.ToLower(strings.TrimSpace(os.Getenv("EXECUTION_BROKER_MODE"))),
	}
}

// LiveAllowed requires both the live flag on and dry-run off.
func (f Flags) LiveAllowed() bool { return f.LiveTrading && !f.DryRun }

// DualAllowed requires live to be allowed plus the explicit dual flag.
func (f Flags) DualAllowed() bool { return f.LiveAllowed() && f.AllowDual }

// Decision explains how a requested mode resolved.
type Decision struct {
	Requested     intent.Mode `json:"requested"`
	Effective     intent.Mode `json:"effective"`
	LiveAllowed   bool        `json:"live_allowed"`
	DualAllowed   bool        `json:"dual_allowed"`
	AutoLive      bool        `json:"auto_live_enabled"`
	PrimaryBroker string      `json:"primary_broker,omitempty"`
	Message       string      `json:"message"`
}

// Resolve computes the effective mode. forAuto applies the extra automatic
// loop restriction: without AUTO_LIVE_ENABLED the controller is paper-only no
// matter what was requested. Every fallback degrades toward paper.
func Resolve(requested intent.Mode, forAuto bool, f Flags) Decision {
	d := Decision{
		Requested:     requested,
		LiveAllowed:   f.LiveAllowed(),
		DualAllowed:   f.DualAllowed(),
		AutoLive:      f.AutoLive,
		PrimaryBroker: f.SingleBroker,
	}

	if forAuto && !f.AutoLive {
		d.Effective = intent.ModePaper
		if requested == intent.ModeLive || requested == intent.ModeDual {
			d.Message = "auto mode restricted to paper; set AUTO_LIVE_ENABLED=true for live auto trading"
		} else {
			d.Message = "auto mode using paper trading"
		}
		return d
	}

	switch requested {
	case intent.ModeDual:
		switch {
		case d.DualAllowed:
			d.Effective = intent.ModeDual
			d.Message = "dual mode active: live orders with paper mirror"
		case d.LiveAllowed:
			d.Effective = intent.ModeLive
			d.Message = "dual mode not allowed (ALLOW_DUAL_MODE unset); falling back to live only"
		default:
			d.Effective = intent.ModePaper
			d.Message = "live trading not enabled; set LIVE_TRADING=true and DRY_RUN=false"
		}
	case intent.ModeLive:
		if d.LiveAllowed {
			d.Effective = intent.ModeLive
			d.Message = "live trading active"
		} else {
			d.Effective = intent.ModePaper
			d.Message = "live trading not enabled; set LIVE_TRADING=true and DRY_RUN=false"
		}
	case intent.ModeHistorical:
		d.Effective = intent.ModeHistorical
		d.Message = "historical replay mode"
	default:
		d.Effective = intent.ModePaper
		d.Message = "paper trading mode active"
	}
	return d
}

// ParseRequested normalizes a user-supplied mode string; anything unknown
// resolves to paper.
func ParseRequested(s string) intent.Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "live":
		return intent.ModeLive
	case "dual":
		return intent.ModeDual
	case "historical":
		return intent.ModeHistorical
	default:
		return intent.ModePaper
	}
}

// String renders the decision for status output.
func (d Decision) String() string {
	return fmt.Sprintf("%s->%s (%s)", d.Requested, d.Effective, d.Message)
}

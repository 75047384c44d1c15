// Package market answers one question for the controller: is now a safe time
// to trade automatically. Unknown state fails closed.
package market

import (
	"fmt"
	"time"

	"github.com/quantpulse/autotrader/internal/config"
)

// Status is the market-window verdict for one instant.
type Status struct {
	IsOpen           bool   `json:"is_open"`
	WithinAutoWindow bool   `json:"within_auto_window"`
	Reason           string `json:"reason"`
}

// Oracle reports the market window state. Implementations must fail closed:
// when they cannot tell, both fields are false.
type Oracle interface {
	Window(now time.Time, bufferMinutes int) Status
}

// Clock is the wall-clock Oracle: regular trading hours in the configured
// exchange timezone, weekends excluded. The auto window shrinks the session
// by the buffer on both ends so automation avoids the open and close auctions.
type Clock struct {
	loc       *time.Location
	openMins  int
	closeMins int
}

// NewClock builds the oracle from the market config section.
func NewClock(cfg config.Market) (*Clock, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load market timezone %q: %w", cfg.Timezone, err)
	}
	return &Clock{
		loc:       loc,
		openMins:  cfg.OpenHour*60 + cfg.OpenMinute,
		closeMins: cfg.CloseHour*60 + cfg.CloseMinute,
	}, nil
}

func (c *Clock) Window(now time.Time, bufferMinutes int) Status {
	local := now.In(c.loc)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return Status{Reason: "weekend"}
	}

	mins := local.Hour()*60 + local.Minute()
	if mins < c.openMins || mins >= c.closeMins {
		return Status{Reason: "outside regular trading hours"}
	}

	st := Status{IsOpen: true}
	if mins < c.openMins+bufferMinutes {
		st.Reason = fmt.Sprintf("within %d minutes of the open", bufferMinutes)
		return st
	}
	if mins >= c.closeMins-bufferMinutes {
		st.Reason = fmt.Sprintf("within %d minutes of the close", bufferMinutes)
		return st
	}
	st.WithinAutoWindow = true
	st.Reason = "market open, inside auto window"
	return st
}

// Always is a fixed Oracle for replay and tests.
type Always struct {
	Open bool
}

func (a Always) Window(now time.Time, bufferMinutes int) Status {
	if a.Open {
		return Status{IsOpen: true, WithinAutoWindow: true, Reason: "forced open"}
	}
	return Status{Reason: "forced closed"}
}

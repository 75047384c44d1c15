package auto

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/quantpulse/autotrader/internal/observ"
)

// Counters track automation activity against the daily and hourly caps.
// Buckets are keyed by calendar date and date-hour so a restart inside the
// same hour keeps counting where it left off.
type Counters struct {
	Date          string  `json:"date"`       // 2006-01-02
	HourBucket    string  `json:"hour"`       // 2006-01-02T15
	TradesToday   int     `json:"trades_today"`
	TradesHour    int     `json:"trades_this_hour"`
	NotionalToday float64 `json:"notional_today_usd"`
}

// CounterStore persists Counters as a single JSON document.
type CounterStore struct {
	mu   sync.Mutex
	path string
	cur  Counters
}

func NewCounterStore(path string) (*CounterStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	s := &CounterStore{path: path}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(b, &s.cur); err != nil {
		observ.Log("counters_file_malformed", map[string]any{"path": path, "error": err.Error()})
	}
	return s, nil
}

func dateKey(t time.Time) string { return t.Format("2006-01-02") }
func hourKey(t time.Time) string { return t.Format("2006-01-02T15") }

// Peek returns the counters as stored, without rolling buckets.
func (s *CounterStore) Peek() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Snapshot rolls the buckets to now and returns the current counters.
// RolledDay is true when a new calendar day just started.
func (s *CounterStore) Snapshot(now time.Time) (Counters, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rolledDay := s.rollLocked(now)
	return s.cur, rolledDay
}

func (s *CounterStore) rollLocked(now time.Time) bool {
	rolledDay := false
	if d := dateKey(now); s.cur.Date != d {
		rolledDay = s.cur.Date != ""
		s.cur.Date = d
		s.cur.TradesToday = 0
		s.cur.NotionalToday = 0
	}
	if h := hourKey(now); s.cur.HourBucket != h {
		s.cur.HourBucket = h
		s.cur.TradesHour = 0
	}
	return rolledDay
}

// RecordTrade counts one executed trade and its notional, persisting the
// updated counters.
func (s *CounterStore) RecordTrade(now time.Time, notional float64) (Counters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollLocked(now)
	s.cur.TradesToday++
	s.cur.TradesHour++
	s.cur.NotionalToday += notional
	return s.cur, s.saveLocked()
}

func (s *CounterStore) saveLocked() error {
	b, err := json.MarshalIndent(s.cur, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

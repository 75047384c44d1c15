// Package dedupe guarantees at-most-once execution per (signal, mode) pair.
// Records live in an append-only JSONL ledger and are indexed in memory; all
// checks and marks go through one mutex so two concurrent paths cannot both
// observe "not executed" for the same signal.
package dedupe

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/quantpulse/autotrader/internal/intent"
	"github.com/quantpulse/autotrader/internal/observ"
)

// Record is one execution mark in the ledger.
type Record struct {
	SignalID   string      `json:"signal_id"`
	Mode       intent.Mode `json:"mode"`
	IntentID   string      `json:"intent_id,omitempty"`
	Status     string      `json:"status,omitempty"`
	Underlying string      `json:"underlying,omitempty"`
	Action     string      `json:"action,omitempty"`
	ExecutedAt time.Time   `json:"executed_at"`
}

// Store is the executed-signals ledger.
type Store struct {
	mu       sync.Mutex
	path     string
	index    map[string]Record // key: signalID|mode
	reserved map[string]bool   // pairs claimed for an in-flight execution
}

func key(signalID string, mode intent.Mode) string {
	return signalID + "|" + string(mode)
}

// NewStore opens the ledger at path, loading all existing marks into the
// in-memory index. Malformed lines are logged and skipped.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	s := &Store{path: path, index: make(map[string]Record), reserved: make(map[string]bool)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			observ.Log("dedupe_ledger_malformed_line", map[string]any{"path": s.path, "error": err.Error()})
			continue
		}
		s.index[key(rec.SignalID, rec.Mode)] = rec
	}
	return sc.Err()
}

// IsExecuted reports whether the signal already executed under the mode.
func (s *Store) IsExecuted(signalID string, mode intent.Mode) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[key(signalID, mode)]
	return ok
}

// ExecutionInfo returns the recorded mark for the pair, or nil.
func (s *Store) ExecutionInfo(signalID string, mode intent.Mode) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.index[key(signalID, mode)]; ok {
		return &rec
	}
	return nil
}

// TryReserve claims the pair for one in-flight execution. It fails when the
// pair is already marked or another path holds the claim, so a check that
// passed cannot be invalidated by a concurrent execution between the check
// and the mark. The claim ends with MarkExecuted or Release.
func (s *Store) TryReserve(signalID string, mode intent.Mode) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(signalID, mode)
	if _, ok := s.index[k]; ok {
		return false
	}
	if s.reserved[k] {
		return false
	}
	s.reserved[k] = true
	return true
}

// Release drops a claim without recording an execution, for claims whose
// execution never happened.
func (s *Store) Release(signalID string, mode intent.Mode) {
	s.mu.Lock()
	delete(s.reserved, key(signalID, mode))
	s.mu.Unlock()
}

// MarkExecuted records an execution mark. Marking an already-marked pair
// returns an error and leaves the ledger untouched; callers that checked
// IsExecuted first only hit this when racing themselves.
func (s *Store) MarkExecuted(rec Record) error {
	if rec.SignalID == "" {
		return fmt.Errorf("dedupe mark requires a signal id")
	}
	if rec.Mode == "" {
		return fmt.Errorf("dedupe mark requires a mode")
	}
	if rec.ExecutedAt.IsZero() {
		rec.ExecutedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(rec.SignalID, rec.Mode)
	delete(s.reserved, k)
	if prev, ok := s.index[k]; ok {
		return fmt.Errorf("signal %s already executed in mode %s at %s",
			rec.SignalID, rec.Mode, prev.ExecutedAt.Format(time.RFC3339))
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return err
	}
	s.index[k] = rec
	return nil
}

// ExecutedOn returns all marks that landed on the given calendar day in the
// day's location.
func (s *Store) ExecutedOn(day time.Time) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	y, m, d := day.Date()
	var out []Record
	for _, rec := range s.index {
		ry, rm, rd := rec.ExecutedAt.In(day.Location()).Date()
		if ry == y && rm == m && rd == d {
			out = append(out, rec)
		}
	}
	return out
}

// CountToday returns how many marks landed on the given calendar day in the
// day's location.
func (s *Store) CountToday(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	y, m, d := now.Date()
	n := 0
	for _, rec := range s.index {
		ry, rm, rd := rec.ExecutedAt.In(now.Location()).Date()
		if ry == y && rm == m && rd == d {
			n++
		}
	}
	return n
}

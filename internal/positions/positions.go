// Package positions tracks simulated paper positions opened and closed by the
// executors. The store is a JSONL file rewritten atomically on close so a
// crash never leaves a half-written ledger.
package positions

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantpulse/autotrader/internal/intent"
	"github.com/quantpulse/autotrader/internal/observ"
)

const (
	StatusOpen   = "OPEN"
	StatusClosed = "CLOSED"
)

// Position is one paper position. A position is CLOSED exactly once; closing
// again is a no-op.
type Position struct {
	ID         string             `json:"id"`
	Underlying string             `json:"underlying"`
	Instrument intent.Instrument  `json:"instrument_type"`
	Action     intent.Action      `json:"action"` // the opening action
	Quantity   int                `json:"quantity"`
	Legs       []intent.OptionLeg `json:"legs,omitempty"`
	EntryPrice float64            `json:"entry_price"`
	Status     string             `json:"status"`

	SourceSignalID string     `json:"source_signal_id,omitempty"`
	OpenedAt       time.Time  `json:"opened_at"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
	ExitPrice      float64    `json:"exit_price,omitempty"`
	ExitSignalID   string     `json:"exit_signal_id,omitempty"`
}

// LegSignature is a canonical string for leg-set matching, independent of
// leg order.
func (p *Position) LegSignature() string {
	return legSignature(p.Legs)
}

func legSignature(legs []intent.OptionLeg) string {
	if len(legs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(legs))
	for _, l := range legs {
		parts = append(parts, fmt.Sprintf("%s:%.2f:%s:%s",
			strings.ToUpper(l.Side), l.Strike, strings.ToUpper(l.OptionType), l.Expiration))
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

// Store is the paper-position ledger.
type Store struct {
	mu   sync.Mutex
	path string
	all  []Position
}

// NewStore opens the ledger at path and loads existing positions.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	s := &Store{path: path}
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
		var p Position
		if err := json.Unmarshal(line, &p); err != nil {
			observ.Log("positions_ledger_malformed_line", map[string]any{"path": s.path, "error": err.Error()})
			continue
		}
		s.all = append(s.all, p)
	}
	return sc.Err()
}

// AppendOpen records a new OPEN position and returns it with a fresh id.
func (s *Store) AppendOpen(p Position) (*Position, error) {
	if p.Underlying == "" {
		return nil, fmt.Errorf("position requires an underlying")
	}
	if p.Quantity <= 0 {
		return nil, fmt.Errorf("position quantity must be positive, got %d", p.Quantity)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.OpenedAt.IsZero() {
		p.OpenedAt = time.Now().UTC()
	}
	p.Status = StatusOpen
	p.Underlying = strings.ToUpper(p.Underlying)

	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return nil, err
	}
	s.all = append(s.all, p)
	return &p, nil
}

// MarkClosed transitions the position to CLOSED and rewrites the ledger.
// Returns false when the id is unknown or the position is already closed.
func (s *Store) MarkClosed(id string, exitPrice float64, exitSignalID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.all {
		if s.all[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 || s.all[idx].Status != StatusOpen {
		return false, nil
	}

	if at.IsZero() {
		at = time.Now().UTC()
	}
	s.all[idx].Status = StatusClosed
	s.all[idx].ClosedAt = &at
	s.all[idx].ExitPrice = exitPrice
	s.all[idx].ExitSignalID = exitSignalID

	if err := s.rewrite(); err != nil {
		return false, err
	}
	return true, nil
}

// rewrite writes the whole ledger to a temp file and renames it into place.
// Callers hold the lock.
func (s *Store) rewrite() error {
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for i := range s.all {
		b, err := json.Marshal(s.all[i])
		if err != nil {
			f.Close()
			return err
		}
		if _, err := w.Write(append(b, '\n')); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Open returns all OPEN positions, oldest first.
func (s *Store) Open() []Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Position
	for i := range s.all {
		if s.all[i].Status == StatusOpen {
			out = append(out, s.all[i])
		}
	}
	return out
}

// OpenForTicker returns OPEN positions for the ticker, case-insensitive.
func (s *Store) OpenForTicker(ticker string) []Position {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Position
	for i := range s.all {
		if s.all[i].Status == StatusOpen && strings.ToUpper(s.all[i].Underlying) == t {
			out = append(out, s.all[i])
		}
	}
	return out
}

// FindOpenForExit resolves which open position an exit signal targets.
// An exact leg-signature match wins; with no match (or no legs on the exit)
// the most recently opened position for the ticker is used.
func (s *Store) FindOpenForExit(ticker string, legs []intent.OptionLeg) *Position {
	candidates := s.OpenForTicker(ticker)
	if len(candidates) == 0 {
		return nil
	}

	if sig := legSignature(legs); sig != "" {
		for i := range candidates {
			if candidates[i].LegSignature() == sig {
				return &candidates[i]
			}
		}
	}

	newest := &candidates[0]
	for i := range candidates {
		if candidates[i].OpenedAt.After(newest.OpenedAt) {
			newest = &candidates[i]
		}
	}
	return newest
}

// Get returns the position with the given id, or nil.
func (s *Store) Get(id string) *Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.all {
		if s.all[i].ID == id {
			p := s.all[i]
			return &p
		}
	}
	return nil
}

// EstimateClosedPnL sums per-contract profit over positions closed on the
// given calendar day. Sign follows the opening direction: long positions
// profit when exit exceeds entry, short positions the other way.
func (s *Store) EstimateClosedPnL(day time.Time) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	y, m, d := day.Date()
	total := 0.0
	for i := range s.all {
		p := &s.all[i]
		if p.Status != StatusClosed || p.ClosedAt == nil {
			continue
		}
		cy, cm, cd := p.ClosedAt.In(day.Location()).Date()
		if cy != y || cm != m || cd != d {
			continue
		}
		mult := 1.0
		if p.Instrument != intent.InstrumentStock {
			mult = 100.0
		}
		diff := p.ExitPrice - p.EntryPrice
		if p.Action == intent.ActionSellToOpen {
			diff = -diff
		}
		total += diff * float64(p.Quantity) * mult
	}
	return total
}

package signal

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
)

// Store reads classified signals from a newline-delimited JSON ledger written
// by the upstream parser. The ledger is append-only; Recent re-reads it so
// new signals show up without coordination.
type Store struct {
	mu   sync.Mutex
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Recent returns up to limit signals, newest first. Malformed lines are
// skipped rather than failing the whole read.
func (s *Store) Recent(limit int) ([]Signal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var all []Signal
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var sig Signal
		if err := json.Unmarshal(line, &sig); err != nil {
			continue
		}
		all = append(all, sig)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	// Ledger order is oldest first; callers want newest first.
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Append writes a signal record to the ledger (used by tests and replay
// tooling; production records arrive from the parser process).
func (s *Store) Append(sig Signal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := json.Marshal(sig)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(b, '\n'))
	return err
}

// Find returns the signal with the given id, or nil.
func (s *Store) Find(id string) (*Signal, error) {
	sigs, err := s.Recent(0)
	if err != nil {
		return nil, err
	}
	for i := range sigs {
		if sigs[i].ID == id {
			return &sigs[i], nil
		}
	}
	return nil, nil
}

package dedupe

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/autotrader/internal/intent"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "executed.jsonl")
	s, err := NewStore(path)
	require.NoError(t, err)
	return s, path
}

func TestMarkAndCheck(t *testing.T) {
	s, _ := newTestStore(t)

	assert.False(t, s.IsExecuted("sig-1", intent.ModePaper))
	require.NoError(t, s.MarkExecuted(Record{
		SignalID: "sig-1", Mode: intent.ModePaper,
		IntentID: "i-1", Status: "SIMULATED", Underlying: "SPY", Action: "BUY_TO_OPEN",
	}))
	assert.True(t, s.IsExecuted("sig-1", intent.ModePaper))

	// Same signal, different mode, is a distinct pair.
	assert.False(t, s.IsExecuted("sig-1", intent.ModeLive))

	info := s.ExecutionInfo("sig-1", intent.ModePaper)
	require.NotNil(t, info)
	assert.Equal(t, "SIMULATED", info.Status)
	assert.False(t, info.ExecutedAt.IsZero())
}

func TestDuplicateMarkRejected(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.MarkExecuted(Record{SignalID: "sig-1", Mode: intent.ModePaper}))
	err := s.MarkExecuted(Record{SignalID: "sig-1", Mode: intent.ModePaper})
	assert.Error(t, err)
}

func TestLedgerSurvivesRestart(t *testing.T) {
	s, path := newTestStore(t)
	require.NoError(t, s.MarkExecuted(Record{SignalID: "sig-1", Mode: intent.ModePaper}))
	require.NoError(t, s.MarkExecuted(Record{SignalID: "sig-2", Mode: intent.ModeLive}))

	reopened, err := NewStore(path)
	require.NoError(t, err)
	assert.True(t, reopened.IsExecuted("sig-1", intent.ModePaper))
	assert.True(t, reopened.IsExecuted("sig-2", intent.ModeLive))
	assert.False(t, reopened.IsExecuted("sig-2", intent.ModePaper))
}

func TestConcurrentMarksAtMostOnce(t *testing.T) {
	s, _ := newTestStore(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	okCount := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.MarkExecuted(Record{SignalID: "race", Mode: intent.ModePaper}) == nil {
				mu.Lock()
				okCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, okCount)
}

func TestReserveClaimsPair(t *testing.T) {
	s, _ := newTestStore(t)

	require.True(t, s.TryReserve("sig-1", intent.ModePaper))
	assert.False(t, s.TryReserve("sig-1", intent.ModePaper))
	// Different mode is a distinct claim.
	assert.True(t, s.TryReserve("sig-1", intent.ModeLive))

	// Marking ends the claim and makes the pair permanent.
	require.NoError(t, s.MarkExecuted(Record{SignalID: "sig-1", Mode: intent.ModePaper}))
	assert.False(t, s.TryReserve("sig-1", intent.ModePaper))

	// Releasing an unexecuted claim frees the pair again.
	s.Release("sig-1", intent.ModeLive)
	assert.True(t, s.TryReserve("sig-1", intent.ModeLive))
}

func TestReserveRefusedForMarkedPair(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.MarkExecuted(Record{SignalID: "sig-1", Mode: intent.ModePaper}))
	assert.False(t, s.TryReserve("sig-1", intent.ModePaper))
}

func TestCountToday(t *testing.T) {
	s, _ := newTestStore(t)
	now := time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC)

	require.NoError(t, s.MarkExecuted(Record{SignalID: "a", Mode: intent.ModePaper, ExecutedAt: now}))
	require.NoError(t, s.MarkExecuted(Record{SignalID: "b", Mode: intent.ModePaper, ExecutedAt: now.Add(2 * time.Hour)}))
	require.NoError(t, s.MarkExecuted(Record{SignalID: "c", Mode: intent.ModePaper, ExecutedAt: now.Add(-24 * time.Hour)}))

	assert.Equal(t, 2, s.CountToday(now))
}

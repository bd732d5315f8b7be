package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircularBuffer_EvictsOldest(t *testing.T) {
	buf := NewCircularBuffer[string](3)

	for _, q := range []string{"q1", "q2", "q3", "q4"} {
		buf.Add(q)
	}

	assert.Equal(t, 3, buf.Size())
	assert.Equal(t, []string{"q2", "q3", "q4"}, buf.Items())
}

func TestCircularBuffer_Empty(t *testing.T) {
	buf := NewCircularBuffer[int](0)

	assert.Equal(t, 0, buf.Size())
	assert.Empty(t, buf.Items())
}

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		latency  time.Duration
		expected LatencyBucket
	}{
		{5 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{49 * time.Millisecond, BucketP50},
		{50 * time.Millisecond, BucketP100},
		{100 * time.Millisecond, BucketP500},
		{499 * time.Millisecond, BucketP500},
		{500 * time.Millisecond, BucketP1000},
		{5 * time.Second, BucketP1000},
	}

	for _, tt := range tests {
		t.Run(tt.latency.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, LatencyToBucket(tt.latency))
		})
	}
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"who", "agent"}, ExtractTerms("  Who is Agent 47 "))
	assert.Nil(t, ExtractTerms("   "))
}

func TestQueryMetrics_Record(t *testing.T) {
	// Given: an in-memory collector
	m := NewQueryMetrics(nil, DefaultConfig())
	defer m.Close()

	// When: three searches are recorded
	m.Record(QueryEvent{Query: "blood money reception", Mode: ModeHybrid, ResultCount: 2,
		Sections: []string{"Reception", ""}, Latency: 25 * time.Millisecond})
	m.Record(QueryEvent{Query: "blood money reception", Mode: ModeHybrid, ResultCount: 1,
		Sections: []string{"Reception"}, Latency: 5 * time.Millisecond})
	m.Record(QueryEvent{Query: "xyzzy", Mode: ModeLexical, ResultCount: 0, Latency: 600 * time.Millisecond})

	// Then: every aggregate reflects them
	s := m.Snapshot()
	assert.Equal(t, int64(3), s.TotalQueries)
	assert.Equal(t, int64(2), s.ModeCounts[ModeHybrid])
	assert.Equal(t, int64(1), s.ModeCounts[ModeLexical])
	assert.Equal(t, map[string]int64{"Reception": 2}, s.SectionHits)
	assert.Equal(t, int64(1), s.ZeroResultCount)
	assert.Equal(t, []string{"xyzzy"}, s.ZeroResultQueries)
	assert.Equal(t, int64(1), s.ExactRepeatCount)
	assert.Equal(t, int64(1), s.LatencyDistribution[BucketP50])
	assert.Equal(t, int64(1), s.LatencyDistribution[BucketP1000])
	assert.InDelta(t, 33.333, s.ZeroResultPercentage(), 0.01)

	require.NotEmpty(t, s.TopTerms)
	assert.Equal(t, int64(2), s.TopTerms[0].Count)
	assert.Equal(t, "blood", s.TopTerms[0].Term)
}

func TestQueryMetrics_RecordAfterCloseIsIgnored(t *testing.T) {
	m := NewQueryMetrics(nil, DefaultConfig())
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	m.Record(QueryEvent{Query: "late", Mode: ModeHybrid, ResultCount: 1})

	assert.Equal(t, int64(0), m.Snapshot().TotalQueries)
}

// memStore records what was flushed.
type memStore struct {
	modes    map[Mode]int64
	sections map[string]int64
	terms    map[string]int64
	zero     []string
	failOnce bool
}

func newMemStore() *memStore {
	return &memStore{modes: map[Mode]int64{}, sections: map[string]int64{}, terms: map[string]int64{}}
}

func (s *memStore) SaveModeCounts(_ string, c map[Mode]int64) error {
	if s.failOnce {
		s.failOnce = false
		return errors.New("disk full")
	}
	for k, v := range c {
		s.modes[k] += v
	}
	return nil
}
func (s *memStore) GetModeCounts(_, _ string) (map[Mode]int64, error) { return s.modes, nil }
func (s *memStore) SaveSectionHits(_ string, h map[string]int64) error {
	for k, v := range h {
		s.sections[k] += v
	}
	return nil
}
func (s *memStore) GetSectionHits(_, _ string) (map[string]int64, error) { return s.sections, nil }
func (s *memStore) UpsertTermCounts(t map[string]int64) error {
	for k, v := range t {
		s.terms[k] += v
	}
	return nil
}
func (s *memStore) GetTopTerms(int) ([]TermCount, error) { return nil, nil }
func (s *memStore) AddZeroResultQuery(q string, _ time.Time) error {
	s.zero = append(s.zero, q)
	return nil
}
func (s *memStore) GetZeroResultQueries(int) ([]string, error)                       { return s.zero, nil }
func (s *memStore) SaveLatencyCounts(string, map[LatencyBucket]int64) error          { return nil }
func (s *memStore) GetLatencyCounts(string, string) (map[LatencyBucket]int64, error) { return nil, nil }
func (s *memStore) Close() error                                                     { return nil }

func TestQueryMetrics_FlushWritesDeltasOnly(t *testing.T) {
	// Given: a collector with a store and no auto-flush
	store := newMemStore()
	m := NewQueryMetrics(store, Config{FlushInterval: 0})

	// When: flushing twice around new records
	m.Record(QueryEvent{Query: "agent 47", Mode: ModeHybrid, ResultCount: 1, Sections: []string{"Gameplay"}})
	require.NoError(t, m.Flush())
	m.Record(QueryEvent{Query: "agent diana", Mode: ModeHybrid, ResultCount: 0})
	require.NoError(t, m.Close())

	// Then: the store holds each event exactly once
	assert.Equal(t, int64(2), store.modes[ModeHybrid])
	assert.Equal(t, int64(1), store.sections["Gameplay"])
	assert.Equal(t, int64(2), store.terms["agent"])
	assert.Equal(t, []string{"agent diana"}, store.zero)
}

func TestQueryMetrics_FailedFlushIsRetried(t *testing.T) {
	store := newMemStore()
	store.failOnce = true
	m := NewQueryMetrics(store, Config{})

	m.Record(QueryEvent{Query: "hitman", Mode: ModeLexical, ResultCount: 3})
	require.Error(t, m.Flush())
	require.NoError(t, m.Flush())

	assert.Equal(t, int64(1), store.modes[ModeLexical])
}

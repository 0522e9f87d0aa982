package stats

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyRecorder_Percentiles(t *testing.T) {
	r := NewLatencyRecorder(4)
	for _, ms := range []int{1, 2, 3, 4, 100} {
		r.Record("op", time.Duration(ms)*time.Millisecond)
	}
	snap := r.Snapshot(false)
	s, ok := snap["op"]
	require.True(t, ok)
	assert.Equal(t, uint64(5), s.Count)
	// 容量 4：样本 1ms 已被覆盖
	assert.Equal(t, 100*time.Millisecond, s.Max)
	assert.Equal(t, 3*time.Millisecond, s.P50)

	r.Snapshot(true)
	assert.Empty(t, r.Snapshot(false))
}

func TestStats_Observe(t *testing.T) {
	s := NewStats(16)
	func() {
		var err error
		defer s.Observe("StartExit", time.Now(), &err)
	}()
	func() {
		err := errors.New("boom")
		defer s.Observe("StartExit", time.Now(), &err)
	}()

	c := s.Counts()["StartExit"]
	assert.Equal(t, OpCounts{OK: 1, Failed: 1}, c)
	assert.Equal(t, uint64(2), s.Latency(false)["StartExit"].Count)
}

package stats

import (
	"sync"
	"time"
)

// OpCounts 单个入口的调用结果计数
type OpCounts struct {
	OK     uint64 `json:"ok"`
	Failed uint64 `json:"failed"`
}

// Stats 入口调用计数 + 延迟
type Stats struct {
	mu      sync.RWMutex
	counts  map[string]*OpCounts
	latency *LatencyRecorder
}

func NewStats(latencySamples int) *Stats {
	return &Stats{
		counts:  make(map[string]*OpCounts),
		latency: NewLatencyRecorder(latencySamples),
	}
}

// Observe 记录一次调用；用法：defer s.Observe("StartExit", time.Now(), &err)
func (s *Stats) Observe(op string, start time.Time, errp *error) {
	if s == nil {
		return
	}
	s.latency.Record(op, time.Since(start))

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counts[op]
	if !ok {
		c = &OpCounts{}
		s.counts[op] = c
	}
	if errp != nil && *errp != nil {
		c.Failed++
	} else {
		c.OK++
	}
}

// Counts 复制当前计数
func (s *Stats) Counts() map[string]OpCounts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]OpCounts, len(s.counts))
	for op, c := range s.counts {
		out[op] = *c
	}
	return out
}

// Latency 延迟分位快照
func (s *Stats) Latency(reset bool) map[string]LatencySummary {
	return s.latency.Snapshot(reset)
}

package processor

import (
	"sync/atomic"
	"time"

	"github.com/nimasrn/sms-credits/pkg/prom"
)

// ReplayMetrics counts inbox replays for the periodic log line and mirrors
// each one into prometheus.
type ReplayMetrics struct {
	replayed   atomic.Int64
	failed     atomic.Int64
	durationNs atomic.Int64
	startedAt  atomic.Int64
}

type ReplaySnapshot struct {
	Replayed      int64
	Failed        int64
	RatePerSecond float64
	AvgDuration   time.Duration
	Uptime        time.Duration
}

func NewReplayMetrics() *ReplayMetrics {
	m := &ReplayMetrics{}
	m.startedAt.Store(time.Now().UnixNano())
	return m
}

func (m *ReplayMetrics) RecordReplay(duration time.Duration) {
	m.replayed.Add(1)
	m.durationNs.Add(int64(duration))
	prom.InboxEntry("replayed", duration.Seconds())
}

func (m *ReplayMetrics) RecordFailure(duration time.Duration) {
	m.failed.Add(1)
	prom.InboxEntry("failed", duration.Seconds())
}

func (m *ReplayMetrics) Snapshot() ReplaySnapshot {
	replayed := m.replayed.Load()
	uptime := time.Since(time.Unix(0, m.startedAt.Load()))

	s := ReplaySnapshot{
		Replayed: replayed,
		Failed:   m.failed.Load(),
		Uptime:   uptime,
	}
	if secs := uptime.Seconds(); secs > 0 {
		s.RatePerSecond = float64(replayed) / secs
	}
	if replayed > 0 {
		s.AvgDuration = time.Duration(m.durationNs.Load() / replayed)
	}
	return s
}

func (m *ReplayMetrics) Reset() {
	m.replayed.Store(0)
	m.failed.Store(0)
	m.durationNs.Store(0)
	m.startedAt.Store(time.Now().UnixNano())
}

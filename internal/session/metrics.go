package session

import (
	"math"
	"sync/atomic"
	"time"
)

// RateMeter tracks inbound classification messages: a monotonically
// increasing total plus a messages-per-second rate over a sliding window.
type RateMeter struct {
	total       atomic.Int64
	windowStart atomic.Int64 // unix nanos
	windowCount atomic.Int64
	rateBits    atomic.Uint64 // float64 bits of the last completed window
}

const rateWindow = time.Second

func NewRateMeter() *RateMeter {
	m := &RateMeter{}
	m.windowStart.Store(time.Now().UnixNano())
	return m
}

// Mark records one received message.
func (m *RateMeter) Mark(now time.Time) {
	m.total.Add(1)
	count := m.windowCount.Add(1)

	start := m.windowStart.Load()
	elapsed := now.UnixNano() - start
	if elapsed < int64(rateWindow) {
		return
	}
	if m.windowStart.CompareAndSwap(start, now.UnixNano()) {
		m.windowCount.Store(0)
		rate := float64(count) * float64(time.Second) / float64(elapsed)
		m.rateBits.Store(math.Float64bits(rate))
	}
}

// Total returns the number of messages received since construction.
func (m *RateMeter) Total() int64 {
	return m.total.Load()
}

// Rate returns messages per second over the last completed window.
func (m *RateMeter) Rate() float64 {
	return math.Float64frombits(m.rateBits.Load())
}

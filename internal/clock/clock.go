// Package clock supplies the monotonic block height used for due times and
// record timestamps.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock reports the current height. Successive calls never decrease.
type Clock interface {
	Now() uint64
}

// Manual is advanced explicitly. The zero value starts at height 0.
type Manual struct {
	height atomic.Uint64
}

func NewManual(start uint64) *Manual {
	m := &Manual{}
	m.height.Store(start)
	return m
}

func (m *Manual) Now() uint64 { return m.height.Load() }

// Advance moves the clock forward by n blocks and returns the new height.
func (m *Manual) Advance(n uint64) uint64 { return m.height.Add(n) }

// Ticker derives height from wall time: one block per interval since genesis.
type Ticker struct {
	genesis  time.Time
	interval time.Duration
	now      func() time.Time
}

// NewTicker returns a Ticker. Non-positive intervals default to ten minutes,
// which makes MaxDuration blocks roughly one year.
func NewTicker(genesis time.Time, interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Ticker{genesis: genesis, interval: interval, now: time.Now}
}

func (t *Ticker) Now() uint64 {
	elapsed := t.now().Sub(t.genesis)
	if elapsed <= 0 {
		return 0
	}
	return uint64(elapsed / t.interval)
}

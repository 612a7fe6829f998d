package loadgen

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// Counter tallies responses by kind and outcome. Safe for concurrent use.
type Counter struct {
	mu       sync.Mutex
	calls    [numKinds]int
	ok       int
	rejected int
	limited  int
	failed   int
}

// Add records one response. 4xx other than 429 counts as a business
// rejection; anything that never got a status counts as failed.
func (c *Counter) Add(k Kind, status int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if k >= 0 && k < numKinds {
		c.calls[k]++
	}
	switch {
	case status >= 200 && status < 300:
		c.ok++
	case status == http.StatusTooManyRequests:
		c.limited++
	case status >= 400 && status < 500:
		c.rejected++
	default:
		c.failed++
	}
}

// Snapshot is a point-in-time copy of a Counter.
type Snapshot struct {
	Calls    map[string]int
	OK       int
	Rejected int
	Limited  int
	Failed   int
}

func (c *Counter) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		Calls:    make(map[string]int, numKinds),
		OK:       c.ok,
		Rejected: c.rejected,
		Limited:  c.limited,
		Failed:   c.failed,
	}
	for k, n := range c.calls {
		if n > 0 {
			s.Calls[Kind(k).String()] = n
		}
	}
	return s
}

func (s Snapshot) Total() int { return s.OK + s.Rejected + s.Limited + s.Failed }

func (s Snapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d calls: ok=%d rejected=%d rate_limited=%d failed=%d",
		s.Total(), s.OK, s.Rejected, s.Limited, s.Failed)
	for k := Kind(0); k < numKinds; k++ {
		if n := s.Calls[k.String()]; n > 0 {
			fmt.Fprintf(&b, " %s=%d", k, n)
		}
	}
	return b.String()
}

package testutil

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// RecordTime is the instant FixedClock starts at. It is later than every
// watermark in the sample changesets, as a real recording would be.
var RecordTime = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

// StubClock is the archive clock for tests. Records made through it carry a
// RecordedAt that only moves when the test says so.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock at RecordTime.
func FixedClock() *StubClock {
	return NewStubClock(RecordTime)
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward, e.g. between two recordings whose list
// order matters.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *StubClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// StubIDGenerator hands out changeset IDs cs-0001, cs-0002, ... Fixed-width
// IDs share prefixes, which makes them useful for prefix resolution tests.
type StubIDGenerator struct {
	next atomic.Int64
}

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	return fmt.Sprintf("cs-%04d", g.next.Add(1))
}

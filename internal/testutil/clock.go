package testutil

import (
	"strconv"
	"sync/atomic"
	"time"
)

// Epoch is the time FixedClock starts at.
var Epoch = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// StubClock is an animlib.Clock that only moves when told to.
type StubClock struct {
	now atomic.Pointer[time.Time]
}

func NewStubClock(t time.Time) *StubClock {
	c := &StubClock{}
	c.Set(t)
	return c
}

// FixedClock returns a StubClock at Epoch.
func FixedClock() *StubClock { return NewStubClock(Epoch) }

func (c *StubClock) Now() time.Time { return *c.now.Load() }

func (c *StubClock) Set(t time.Time) { c.now.Store(&t) }

// Advance moves the clock forward by d. Not safe against a concurrent Set.
func (c *StubClock) Advance(d time.Duration) { c.Set(c.Now().Add(d)) }

// StubIDGenerator hands out "id-1", "id-2", ... in order.
type StubIDGenerator struct {
	n atomic.Int64
}

func NewStubIDGenerator() *StubIDGenerator { return &StubIDGenerator{} }

func (g *StubIDGenerator) New() string {
	return "id-" + strconv.FormatInt(g.n.Add(1), 10)
}

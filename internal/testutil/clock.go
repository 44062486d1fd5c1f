package testutil

import (
	"strconv"
	"sync"
	"time"

	"catalog-go/internal/catalog"
)

// CatalogEpoch is the instant every FixedClock starts at.
var CatalogEpoch = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// StubClock is a manually driven catalog.Clock. Deletion timestamps only
// move when a test calls Advance.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

var _ catalog.Clock = (*StubClock)(nil)

func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t.UTC()}
}

// FixedClock returns a StubClock set to CatalogEpoch.
func FixedClock() *StubClock {
	return NewStubClock(CatalogEpoch)
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward so later soft-deletes sort after earlier ones.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// StubIDGenerator hands out "id-1", "id-2", ... Categories, products and
// recycle-bin entries all share one sequence, so an entry id never equals
// an item id.
type StubIDGenerator struct {
	mu   sync.Mutex
	next int
}

var _ catalog.IDGenerator = (*StubIDGenerator)(nil)

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return "id-" + strconv.Itoa(g.next)
}

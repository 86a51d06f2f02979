package version

import (
	"sync"
	"time"
)

// Minter produces the version id for each producer cycle.
type Minter interface {
	// Mint returns a version strictly greater than any version this
	// minter returned before.
	Mint() Version
}

// MonotonicMinter mints strictly ascending versions seeded from the wall
// clock in milliseconds. When called more than once within the same
// millisecond it falls back to last+1, so versions keep ascending no
// matter how fast cycles run.
type MonotonicMinter struct {
	mu   sync.Mutex
	last int64
}

// NewMonotonicMinter creates a new wall-clock-seeded minter.
func NewMonotonicMinter() *MonotonicMinter {
	return &MonotonicMinter{}
}

// Mint returns the next version.
func (m *MonotonicMinter) Mint() Version {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := time.Now().UnixMilli()
	if v <= m.last {
		v = m.last + 1
	}
	m.last = v
	return Version(v)
}

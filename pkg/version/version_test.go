package version

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinel(t *testing.T) {
	assert.True(t, None.IsNone())
	assert.Equal(t, "none", None.String())

	v := Version(1001)
	assert.False(t, v.IsNone())
	assert.Equal(t, "1001", v.String())
}

func TestMonotonicMinterStrictlyAscends(t *testing.T) {
	m := NewMonotonicMinter()

	prev := m.Mint()
	for i := 0; i < 1000; i++ {
		v := m.Mint()
		assert.Greater(t, v, prev)
		prev = v
	}
}

func TestMonotonicMinterConcurrent(t *testing.T) {
	m := NewMonotonicMinter()
	const goroutines = 8
	const perGoroutine = 200

	var wg sync.WaitGroup
	results := make(chan Version, goroutines*perGoroutine)
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				results <- m.Mint()
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[Version]bool)
	for v := range results {
		assert.False(t, seen[v], "minted versions never repeat")
		seen[v] = true
	}
	assert.Len(t, seen, goroutines*perGoroutine)
}

package lru

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetOrPut(t *testing.T) {
	c := New[string, int](2)

	v, _, evicted := c.GetOrPut("a", func() int { return 1 })
	assert.Equal(t, 1, v)
	assert.False(t, evicted)

	// Second call returns the cached value, mk is not run.
	v, _, evicted = c.GetOrPut("a", func() int { return 99 })
	assert.Equal(t, 1, v)
	assert.False(t, evicted)
}

func TestEvictionOrder(t *testing.T) {
	c := New[string, int](2)
	c.GetOrPut("a", func() int { return 1 })
	c.GetOrPut("b", func() int { return 2 })

	// Touch "a" so "b" becomes the eviction victim.
	_, ok := c.Get("a")
	assert.True(t, ok)

	_, victim, evicted := c.GetOrPut("c", func() int { return 3 })
	assert.True(t, evicted)
	assert.Equal(t, 2, victim)

	_, ok = c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestDelete(t *testing.T) {
	c := New[string, int](2)
	c.GetOrPut("a", func() int { return 1 })

	assert.True(t, c.Delete("a"))
	assert.False(t, c.Delete("a"))
	assert.Equal(t, 0, c.Len())
}

func TestConcurrentAccess(t *testing.T) {
	c := New[string, int](16)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := strconv.Itoa(j % 32)
				c.GetOrPut(key, func() int { return j })
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 16)
}

func TestNewPanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[string, int](0) })
}

package health

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestChecker_RunAll(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("pms", func(ctx context.Context) Status { return StatusOK })
	c.Register("store", func(ctx context.Context) Status { return StatusDegraded })

	results := c.RunAll(context.Background())
	assert.Equal(t, StatusOK, results["pms"])
	assert.Equal(t, StatusDegraded, results["store"])
}

func TestChecker_IsReady(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("pms", func(ctx context.Context) Status { return StatusOK })
	assert.True(t, c.IsReady(context.Background()))

	c.Register("store", func(ctx context.Context) Status { return StatusDown })
	assert.False(t, c.IsReady(context.Background()))
}

func TestChecker_DegradedIsStillReady(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("slack", func(ctx context.Context) Status { return StatusDegraded })
	assert.True(t, c.IsReady(context.Background()))
}

func TestChecker_Cached(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	c.Register("pms", func(ctx context.Context) Status { return StatusOK })
	assert.Empty(t, c.Cached())

	c.RunAll(context.Background())
	assert.Equal(t, StatusOK, c.Cached()["pms"])
}

func TestChecker_NoChecks(t *testing.T) {
	c := NewChecker(zerolog.Nop())
	assert.True(t, c.IsReady(context.Background()))
}

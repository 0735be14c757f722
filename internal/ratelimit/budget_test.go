package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestBudget creates a RequestBudget backed by a miniredis instance.
func setupTestBudget(t *testing.T, cfg RequestBudgetConfig) (*RequestBudget, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg.Redis = redis.NewClient(&redis.Options{Addr: mr.Addr()})

	budget, err := NewRequestBudget(&cfg)
	require.NoError(t, err)

	return budget, mr
}

func TestNewRequestBudget(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	t.Run("applies defaults when not specified", func(t *testing.T) {
		budget, err := NewRequestBudget(&RequestBudgetConfig{Redis: client})
		require.NoError(t, err)
		assert.Equal(t, DefaultRequestsPerWindow, budget.GetBudget())
		assert.Equal(t, DefaultWindowSize, budget.GetWindowSize())
		assert.Equal(t, DefaultMaxWait, budget.GetMaxWait())
	})

	t.Run("rejects nil config", func(t *testing.T) {
		_, err := NewRequestBudget(nil)
		assert.Error(t, err)
	})

	t.Run("rejects missing redis", func(t *testing.T) {
		_, err := NewRequestBudget(&RequestBudgetConfig{})
		assert.Error(t, err)
	})

	t.Run("rejects negative values", func(t *testing.T) {
		_, err := NewRequestBudget(&RequestBudgetConfig{Redis: client, RequestsPerWindow: -1})
		assert.Error(t, err)

		_, err = NewRequestBudget(&RequestBudgetConfig{Redis: client, MaxWait: -time.Second})
		assert.Error(t, err)
	})
}

func TestRequestBudget_TryConsume(t *testing.T) {
	budget, _ := setupTestBudget(t, RequestBudgetConfig{
		RequestsPerWindow: 2,
		WindowSize:        time.Hour,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, wait, err := budget.TryConsume(ctx)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i)
		assert.Zero(t, wait)
	}

	allowed, wait, err := budget.TryConsume(ctx)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, wait, time.Duration(0))
	assert.LessOrEqual(t, wait, time.Hour+time.Millisecond)

	stats, err := budget.GetUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Used)
	assert.Equal(t, 2, stats.Budget)
}

func TestRequestBudget_GetUsageEmptyWindow(t *testing.T) {
	budget, _ := setupTestBudget(t, RequestBudgetConfig{WindowSize: time.Hour})

	stats, err := budget.GetUsage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Used)
}

func TestRequestBudget_WaitForNextWindow(t *testing.T) {
	budget, _ := setupTestBudget(t, RequestBudgetConfig{
		RequestsPerWindow: 1,
		WindowSize:        50 * time.Millisecond,
		MaxWait:           time.Second,
	})
	ctx := context.Background()

	require.NoError(t, budget.Wait(ctx))

	start := time.Now()
	require.NoError(t, budget.Wait(ctx))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRequestBudget_WaitMaxExceeded(t *testing.T) {
	budget, _ := setupTestBudget(t, RequestBudgetConfig{
		RequestsPerWindow: 1,
		WindowSize:        time.Hour,
		MaxWait:           20 * time.Millisecond,
	})
	ctx := context.Background()

	require.NoError(t, budget.Wait(ctx))
	err := budget.Wait(ctx)
	assert.True(t, errors.Is(err, ErrMaxWaitExceeded))
}

func TestRequestBudget_RedisDown(t *testing.T) {
	budget, mr := setupTestBudget(t, RequestBudgetConfig{WindowSize: time.Hour})
	mr.Close()

	err := budget.Wait(context.Background())
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrMaxWaitExceeded))
}

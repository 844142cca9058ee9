package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(retries int) Policy {
	return Policy{MaxRetries: retries, Backoff: Linear(time.Millisecond)}
}

func TestLinear(t *testing.T) {
	b := Linear(100 * time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, b(1))
	assert.Equal(t, 200*time.Millisecond, b(2))
	assert.Equal(t, 300*time.Millisecond, b(3))
}

func TestPolicyAttempts(t *testing.T) {
	assert.Equal(t, 3, DefaultPolicy().Attempts())
	assert.Equal(t, 1, Policy{MaxRetries: 0}.Attempts())
	assert.Equal(t, 1, Policy{MaxRetries: -4}.Attempts())
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), fastPolicy(2), func(ctx context.Context) (int, error) {
		calls++
		return 7, nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	var observed []int
	v, err := Do(context.Background(), fastPolicy(2), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	}, func(attempt int, err error) {
		observed = append(observed, attempt)
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, observed)
}

func TestDo_ExhaustsAndReturnsLastError(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(2), func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("down")
	}, nil)
	require.Error(t, err)
	assert.EqualError(t, err, "down")
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, Policy{MaxRetries: 5, Backoff: Linear(time.Hour)}, func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("down")
	}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestWithFallback(t *testing.T) {
	v, degraded := WithFallback(context.Background(), fastPolicy(1), func(ctx context.Context) (float64, error) {
		return 0, errors.New("down")
	}, func(err error) float64 {
		return 2.5
	}, nil)
	assert.True(t, degraded)
	assert.Equal(t, 2.5, v)

	v, degraded = WithFallback(context.Background(), fastPolicy(1), func(ctx context.Context) (float64, error) {
		return 4, nil
	}, func(err error) float64 {
		return 2.5
	}, nil)
	assert.False(t, degraded)
	assert.Equal(t, 4.0, v)
}

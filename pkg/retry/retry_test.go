package retry_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/dukex/operion-engine/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func TestExponential_Delay(t *testing.T) {
	t.Parallel()

	strategy := retry.Exponential{Initial: 100 * time.Millisecond, Max: time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{80, time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, strategy.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestExponential_DelayWithoutMaxSaturates(t *testing.T) {
	t.Parallel()

	strategy := retry.Exponential{Initial: time.Second}

	assert.Equal(t, 4*time.Second, strategy.Delay(3))
	assert.Equal(t, time.Duration(math.MaxInt64), strategy.Delay(64))
	assert.Equal(t, time.Duration(math.MaxInt64), strategy.Delay(200))
	assert.Equal(t, time.Duration(math.MaxInt64), strategy.Delay(5000))
}

func TestConstant_Delay(t *testing.T) {
	t.Parallel()

	strategy := retry.Constant{Interval: 5 * time.Millisecond}
	assert.Equal(t, 5*time.Millisecond, strategy.Delay(1))
	assert.Equal(t, 5*time.Millisecond, strategy.Delay(9))
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	t.Parallel()

	calls := 0
	policy := retry.Policy{Attempts: 3, Strategy: retry.Constant{Interval: time.Millisecond}}

	result, err := retry.Do(context.Background(), policy, func(_ context.Context, attempt int) (string, error) {
		calls++
		if attempt < 3 {
			return "", errFlaky
		}

		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	calls := 0

	_, err := retry.Do(context.Background(), retry.Policy{Attempts: 2}, func(_ context.Context, _ int) (any, error) {
		calls++

		return nil, errFlaky
	})

	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 2, calls)
}

func TestDo_ZeroPolicyRunsOnce(t *testing.T) {
	t.Parallel()

	calls := 0

	_, err := retry.Do(context.Background(), retry.Policy{}, func(_ context.Context, _ int) (any, error) {
		calls++

		return nil, errFlaky
	})

	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
	assert.Equal(t, retry.Policy{Attempts: 1}, retry.Once())
}

func TestDo_Permanent(t *testing.T) {
	t.Parallel()

	calls := 0

	_, err := retry.Do(context.Background(), retry.Policy{Attempts: 5}, func(_ context.Context, _ int) (any, error) {
		calls++

		return nil, retry.Permanent(errFlaky)
	})

	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
	assert.NoError(t, retry.Permanent(nil))
}

func TestDo_ContextCancelledDuringDelay(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	policy := retry.Policy{Attempts: 3, Strategy: retry.Constant{Interval: time.Hour}}

	_, err := retry.Do(ctx, policy, func(_ context.Context, _ int) (any, error) {
		cancel()

		return nil, errFlaky
	})

	require.ErrorIs(t, err, errFlaky)
	require.ErrorIs(t, err, context.Canceled)
}

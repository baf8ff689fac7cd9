package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/paperflow/types"
)

// newTestRetryer 返回记录 sleep 调用而非真正等待的重试器。
func newTestRetryer(t *testing.T, policy *Policy) (*backoffRetryer, *[]time.Duration) {
	t.Helper()
	r, ok := NewBackoffRetryer(policy, zap.NewNop()).(*backoffRetryer)
	require.True(t, ok)

	var delays []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return r, &delays
}

func TestBackoffRetryer_SuccessFirstAttempt(t *testing.T) {
	t.Parallel()

	r, delays := newTestRetryer(t, nil)

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *delays)
}

func TestBackoffRetryer_ExponentialDelays(t *testing.T) {
	t.Parallel()

	r, delays := newTestRetryer(t, &Policy{
		MaxRetries:   3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	})

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		if calls < 4 {
			return types.NewError(types.ErrTimeout, "slow upstream").WithRetryable(true)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
	}, *delays)
}

func TestBackoffRetryer_DelayCappedAtMax(t *testing.T) {
	t.Parallel()

	r, delays := newTestRetryer(t, &Policy{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     150 * time.Millisecond,
		Multiplier:   2.0,
	})

	err := r.Do(context.Background(), func() error {
		return errors.New("flaky")
	})

	require.Error(t, err)
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		150 * time.Millisecond,
		150 * time.Millisecond,
	}, *delays)
}

func TestBackoffRetryer_NonRetryableStopsImmediately(t *testing.T) {
	t.Parallel()

	r, delays := newTestRetryer(t, nil)

	authErr := types.NewError(types.ErrAuthentication, "bad key")
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return authErr
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *delays)
	assert.Equal(t, types.ErrAuthentication, types.GetErrorCode(err))
}

func TestBackoffRetryer_Exhausted(t *testing.T) {
	t.Parallel()

	r, _ := newTestRetryer(t, &Policy{MaxRetries: 2, InitialDelay: time.Millisecond})

	underlying := types.NewError(types.ErrUpstreamError, "boom").WithRetryable(true)
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return underlying
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "failed after 2 retries")
	assert.ErrorIs(t, err, underlying)
}

func TestBackoffRetryer_ContextCancelledDuringSleep(t *testing.T) {
	t.Parallel()

	r, ok := NewBackoffRetryer(&Policy{MaxRetries: 3, InitialDelay: time.Millisecond}, zap.NewNop()).(*backoffRetryer)
	require.True(t, ok)
	r.sleep = func(ctx context.Context, _ time.Duration) error {
		return context.Canceled
	}

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return errors.New("flaky")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, err.Error(), "retry cancelled")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffRetryer_OnRetryCallback(t *testing.T) {
	t.Parallel()

	var attempts []int
	policy := &Policy{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		OnRetry: func(attempt int, err error, _ time.Duration) {
			attempts = append(attempts, attempt)
			assert.Error(t, err)
		},
	}
	r, _ := newTestRetryer(t, policy)

	_ = r.Do(context.Background(), func() error {
		return errors.New("flaky")
	})

	assert.Equal(t, []int{1, 2}, attempts)
}

func TestBackoffRetryer_PolicyNormalization(t *testing.T) {
	t.Parallel()

	r, ok := NewBackoffRetryer(&Policy{
		MaxRetries:   -1,
		InitialDelay: -time.Second,
		Multiplier:   0.5,
	}, nil).(*backoffRetryer)
	require.True(t, ok)

	assert.Equal(t, 0, r.policy.MaxRetries)
	assert.Equal(t, time.Second, r.policy.InitialDelay)
	assert.Equal(t, 30*time.Second, r.policy.MaxDelay)
	assert.Equal(t, 2.0, r.policy.Multiplier)
}

func TestDoWithResult(t *testing.T) {
	t.Parallel()

	t.Run("returns value on success", func(t *testing.T) {
		t.Parallel()

		r, _ := newTestRetryer(t, &Policy{MaxRetries: 2, InitialDelay: time.Millisecond})

		calls := 0
		got, err := DoWithResult(r, context.Background(), func() (string, error) {
			calls++
			if calls < 2 {
				return "", errors.New("flaky")
			}
			return "done", nil
		})

		require.NoError(t, err)
		assert.Equal(t, "done", got)
		assert.Equal(t, 2, calls)
	})

	t.Run("returns zero value on failure", func(t *testing.T) {
		t.Parallel()

		r, _ := newTestRetryer(t, &Policy{MaxRetries: 1, InitialDelay: time.Millisecond})

		got, err := DoWithResult(r, context.Background(), func() (int, error) {
			return 42, errors.New("flaky")
		})

		require.Error(t, err)
		assert.Zero(t, got)
	})
}

package review

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	var attempts []Attempt
	policy := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Effort: EffortFirstAttempt}

	got, err := Retry(context.Background(), testLogger(), policy, "op", func(ctx context.Context, a Attempt) (string, error) {
		attempts = append(attempts, a)
		if a.Index < 2 {
			return "", errors.New("boom")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, []Attempt{
		{Index: 0, Genius: true},
		{Index: 1, Genius: false},
		{Index: 2, Genius: false},
	}, attempts)
}

func TestRetryEffortAlways(t *testing.T) {
	policy := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Effort: EffortAlways}

	var genius []bool
	_, err := Retry(context.Background(), testLogger(), policy, "op", func(ctx context.Context, a Attempt) (int, error) {
		genius = append(genius, a.Genius)
		return 0, errors.New("boom")
	})

	require.Error(t, err)
	assert.Equal(t, []bool{true, true, true}, genius)
}

func TestRetryExhausted(t *testing.T) {
	cause := errors.New("service unavailable")
	policy := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	calls := 0
	_, err := Retry(context.Background(), testLogger(), policy, "review file a.go", func(ctx context.Context, a Attempt) (int, error) {
		calls++
		return 0, cause
	})

	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, ErrMaxRetries)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "review file a.go")
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{MaxAttempts: 5, BaseDelay: time.Hour}

	calls := 0
	_, err := Retry(ctx, testLogger(), policy, "op", func(ctx context.Context, a Attempt) (int, error) {
		calls++
		cancel()
		return 0, errors.New("boom")
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryAtLeastOnce(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), testLogger(), Policy{}, "op", func(ctx context.Context, a Attempt) (int, error) {
		calls++
		return 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

package retrier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoStopsOnFirstSuccess(t *testing.T) {
	r := New()
	attempts := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoRecoversWithinBudget(t *testing.T) {
	r := New(WithMaxRetries(3), WithInitialInterval(time.Millisecond))
	attempts := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("rpc unavailable")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoReturnsLastErrorWhenExhausted(t *testing.T) {
	r := New(WithMaxRetries(2), WithInitialInterval(time.Millisecond))
	attempts := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("rpc unavailable")
	})
	require.EqualError(t, err, "rpc unavailable")
	// one initial attempt plus the retry budget
	assert.Equal(t, 3, attempts)
}

func TestDoHonorsContext(t *testing.T) {
	r := New(WithMaxRetries(5), WithInitialInterval(100*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := r.Do(ctx, func(ctx context.Context) error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return errors.New("rpc unavailable")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, attempts)
}

func TestDoWithData(t *testing.T) {
	r := New(WithMaxRetries(1), WithInitialInterval(time.Millisecond))

	val, err := DoWithData(r, context.Background(), func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, val)

	val, err = DoWithData(r, context.Background(), func(ctx context.Context) (int, error) {
		return 0, errors.New("rpc unavailable")
	})
	require.Error(t, err)
	assert.Zero(t, val)
}

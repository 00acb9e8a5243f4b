// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	BackoffBase = time.Millisecond
}

func TestDo_FirstAttemptSucceeds(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), Policy{MaxRetries: 1}, func(_ context.Context, a Attempt) (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 1, calls)
}

func TestDo_EscalatesTemperature(t *testing.T) {
	var temps []float64
	p := Policy{MaxRetries: 2, BaseTemperature: 0, Escalate: Step(0.1), Backoff: true}
	_, err := Do(context.Background(), p, func(_ context.Context, a Attempt) (int, error) {
		temps = append(temps, a.Temperature)
		return 0, errors.New("malformed")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
	require.Len(t, temps, 3)
	assert.InDelta(t, 0.0, temps[0], 1e-9)
	assert.InDelta(t, 0.1, temps[1], 1e-9)
	assert.InDelta(t, 0.2, temps[2], 1e-9)
}

func TestDo_RecoversOnRetry(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), Policy{MaxRetries: 1}, func(_ context.Context, a Attempt) (int, error) {
		calls++
		if a.Number == 0 {
			return 0, errors.New("bad json")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 2, calls)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	fatal := errors.New("auth failed")
	calls := 0
	p := Policy{MaxRetries: 3, Retryable: func(err error) bool { return !errors.Is(err, fatal) }}
	_, err := Do(context.Background(), p, func(_ context.Context, _ Attempt) (int, error) {
		calls++
		return 0, fatal
	})
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := Do(ctx, Policy{MaxRetries: 2}, func(_ context.Context, _ Attempt) (int, error) {
		calls++
		return 0, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestSchedule(t *testing.T) {
	esc := Schedule(0, 0.3)
	assert.Equal(t, 0.0, esc(0, 5))
	assert.Equal(t, 0.3, esc(1, 5))
	assert.Equal(t, 0.3, esc(4, 5))
	assert.Equal(t, 5.0, Schedule()(2, 5))
}

package processor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nimasrn/sms-credits/internal/services"
	"github.com/stretchr/testify/assert"
)

type sweepFunc func(ctx context.Context) (services.SweepStats, error)

func (f sweepFunc) Sweep(ctx context.Context) (services.SweepStats, error) { return f(ctx) }

func TestSweeper_RunsUntilCancelled(t *testing.T) {
	var calls atomic.Int32
	target := sweepFunc(func(context.Context) (services.SweepStats, error) {
		n := calls.Add(1)
		if n == 2 {
			return services.SweepStats{}, errors.New("database is down")
		}
		return services.SweepStats{Checked: 1, Succeeded: 1}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewSweeper(target, 10*time.Millisecond).Run(ctx) }()

	// a failed sweep does not stop the loop
	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweeper_SweepsImmediately(t *testing.T) {
	var calls atomic.Int32
	target := sweepFunc(func(context.Context) (services.SweepStats, error) {
		calls.Add(1)
		return services.SweepStats{}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, NewSweeper(target, time.Hour).Run(ctx))
	assert.Equal(t, int32(1), calls.Load())
}

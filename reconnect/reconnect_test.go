package reconnect

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoopRetriesOnFailureUntilSuccess(t *testing.T) {
	var attempts int32
	err := Loop(context.Background(), "test", time.Millisecond, func() bool { return true },
		func(ctx context.Context) error {
			n := atomic.AddInt32(&attempts, 1)
			if n < 3 {
				return errors.New("boom")
			}
			return nil
		})

	require.NoError(t, err)
	require.EqualValues(t, 3, attempts)
}

func TestLoopStopsWhenDisabledAfterFailure(t *testing.T) {
	var attempts int32
	enabled := true
	err := Loop(context.Background(), "test", time.Millisecond, func() bool { return enabled },
		func(ctx context.Context) error {
			atomic.AddInt32(&attempts, 1)
			enabled = false
			return errors.New("boom")
		})

	require.NoError(t, err)
	require.EqualValues(t, 1, attempts)
}

func TestLoopReturnsContextErrorWhenCancelledDuringSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Loop(ctx, "test", time.Second, func() bool { return true },
		func(ctx context.Context) error {
			return errors.New("boom")
		})

	require.ErrorIs(t, err, context.Canceled)
}

func TestLoopReturnsContextErrorWhileWaitingBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Loop(ctx, "test", time.Minute, func() bool { return true },
		func(ctx context.Context) error {
			return errors.New("boom")
		})

	require.ErrorIs(t, err, context.Canceled)
}

package deferredload

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetBeforeBackgroundFetchStartsLoadsSynchronously(t *testing.T) {
	calls := make(chan struct{}, 1)
	d := New[int](context.Background(), time.Hour, func(ctx context.Context) (int, error) {
		calls <- struct{}{}
		return 7, nil
	})

	v, err := d.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7, v)
	select {
	case <-calls:
	default:
		t.Fatal("loader was never invoked")
	}
}

func TestGetJoinsInFlightFetch(t *testing.T) {
	release := make(chan struct{})
	d := New[string](context.Background(), 0, func(ctx context.Context) (string, error) {
		<-release
		return "ready", nil
	})

	// Give the background goroutine a chance to start the load before any
	// Get call, since maxJitter is 0.
	time.Sleep(10 * time.Millisecond)

	results := make(chan string, 2)
	for i := 0; i < 2; i++ {
		go func() {
			v, err := d.Get(context.Background())
			require.NoError(t, err)
			results <- v
		}()
	}
	close(release)

	require.Equal(t, "ready", <-results)
	require.Equal(t, "ready", <-results)
	require.True(t, d.Resolved())
}

func TestGetPropagatesLoaderError(t *testing.T) {
	wantErr := errors.New("catalog unavailable")
	d := New[int](context.Background(), 0, func(ctx context.Context) (int, error) {
		return 0, wantErr
	})
	_, err := d.Get(context.Background())
	require.ErrorIs(t, err, wantErr)
}

func TestGetRespectsCallerCancellation(t *testing.T) {
	d := New[int](context.Background(), time.Hour, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := d.Get(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

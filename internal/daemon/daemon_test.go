package daemon

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("@daily"))
	assert.NoError(t, Validate("0 6 * * 1-5"))
	assert.NoError(t, Validate("@every 1s"))
	assert.Error(t, Validate(""))
	assert.Error(t, Validate("0 0 6 * * 1"))
	assert.Error(t, Validate("tomorrow"))
}

func TestRunRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	assert.Error(t, Run(ctx, Config{Spec: "@daily"}, nil))
	assert.Error(t, Run(ctx, Config{Spec: "not a spec"}, func(context.Context, time.Time) error { return nil }))
}

func TestRunCallsJobUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{Spec: "@every 1s", Location: time.UTC}, func(_ context.Context, tick time.Time) error {
			assert.Equal(t, time.UTC, tick.Location())
			if calls.Add(1) == 1 {
				return errors.New("first run fails")
			}
			return nil
		})
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

package loops

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

// TestMain verifies every Runner goroutine started by these tests actually
// exits after its context is canceled, since a leaked ticker loop would
// otherwise run forever in a long-lived process.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRunnerTicksOnInterval(t *testing.T) {
	var count int32
	r := NewRunner("test", 10*time.Millisecond, 5*time.Millisecond, func(context.Context) error {
		atomic.AddInt32(&count, 1)
		return nil
	}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)

	time.Sleep(55 * time.Millisecond)
	cancel()
	time.Sleep(5 * time.Millisecond)

	assert.GreaterOrEqual(t, atomic.LoadInt32(&count), int32(3))
}

func TestRunnerRetriesSoonerOnFailure(t *testing.T) {
	var attempts int32
	r := NewRunner("test", time.Hour, 10*time.Millisecond, func(context.Context) error {
		n := atomic.AddInt32(&attempts, 1)
		if n < 2 {
			return errors.New("transient")
		}
		return nil
	}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	defer cancel()

	time.Sleep(30 * time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&attempts), int32(2), "a failed tick must retry sooner than the full interval")
}

func TestRunnerStopsOnContextCancel(t *testing.T) {
	var count int32
	r := NewRunner("test", 5*time.Millisecond, 5*time.Millisecond, func(context.Context) error {
		atomic.AddInt32(&count, 1)
		return nil
	}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	time.Sleep(12 * time.Millisecond)
	cancel()
	time.Sleep(5 * time.Millisecond)

	after := atomic.LoadInt32(&count)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt32(&count), "no further ticks after cancellation")
}

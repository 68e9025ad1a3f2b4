package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/bizdesk/pkg/logger"
	"github.com/thereayou/bizdesk/pkg/metrics"
)

func TestInlineRecordsFailures(t *testing.T) {
	counter := metrics.HookFailures.WithLabelValues("cheques", "afterCreate", "reminder")
	before := testutil.ToFloat64(counter)

	d := NewInline(logger.NewNop())
	d.Dispatch(context.Background(), Task{
		Module: "cheques",
		Phase:  "afterCreate",
		Stage:  "reminder",
		Run:    func(context.Context) error { return errors.New("boom") },
	})

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestInlineRecoversPanics(t *testing.T) {
	d := NewInline(logger.NewNop())
	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), Task{
			Module: "payments",
			Run:    func(context.Context) error { panic("bad") },
		})
	})
}

func TestInlineIgnoresCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ctxErr error
	NewInline(logger.NewNop()).Dispatch(ctx, Task{Run: func(ctx context.Context) error {
		ctxErr = ctx.Err()
		return nil
	}})
	assert.NoError(t, ctxErr)
}

func TestPoolRunsEveryTask(t *testing.T) {
	p := NewPool(3, 4, logger.NewNop())

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		p.Dispatch(context.Background(), Task{Run: func(context.Context) error {
			defer wg.Done()
			ran.Add(1)
			return nil
		}})
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Stop(ctx))
	assert.EqualValues(t, 50, ran.Load())
}

func TestPoolKeepsOrderPerKey(t *testing.T) {
	p := NewPool(4, 64, logger.NewNop())

	var mu sync.Mutex
	seen := map[string][]int{}
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		for _, key := range []string{"internal-room:1", "internal-room:2", "support-ticket:9"} {
			wg.Add(1)
			p.Dispatch(context.Background(), Task{Key: key, Run: func(context.Context) error {
				defer wg.Done()
				mu.Lock()
				seen[key] = append(seen[key], i)
				mu.Unlock()
				return nil
			}})
		}
	}
	wg.Wait()
	require.NoError(t, p.Stop(context.Background()))

	for key, got := range seen {
		require.Len(t, got, 100, key)
		assert.IsIncreasing(t, got, key)
	}
}

func TestPoolRunsInlineAfterStop(t *testing.T) {
	p := NewPool(1, 1, logger.NewNop())
	require.NoError(t, p.Stop(context.Background()))

	ran := false
	p.Dispatch(context.Background(), Task{Run: func(context.Context) error {
		ran = true
		return nil
	}})
	assert.True(t, ran)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "bizdesk.events.cheques.afterStatusChange", Subject("cheques", "afterStatusChange"))
}

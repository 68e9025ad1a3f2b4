// Package events runs post-commit side effects and publishes domain events.
package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/thereayou/bizdesk/pkg/logger"
	"github.com/thereayou/bizdesk/pkg/metrics"
	"go.uber.org/zap"
)

// Task is one side effect that runs after its mutation committed.
type Task struct {
	Module   string
	Phase    string
	Stage    string
	EntityID uint
	// Key orders tasks: tasks sharing a non-empty key run one at a time in
	// dispatch order.
	Key string
	Run func(ctx context.Context) error
}

// Dispatcher accepts tasks. Task failures never reach the caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, task Task)
}

const (
	taskTimeout = 30 * time.Second
	// keyedWait bounds how long a keyed task waits for a full queue before
	// it runs inline and gives up its place in the order.
	keyedWait = 100 * time.Millisecond
)

func run(ctx context.Context, log *logger.Logger, task Task) {
	defer func() {
		if r := recover(); r != nil {
			fail(log, task, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := task.Run(ctx); err != nil {
		fail(log, task, err)
	}
}

func fail(log *logger.Logger, task Task, err error) {
	metrics.RecordHookFailure(task.Module, task.Phase, task.Stage)
	log.Error("side effect failed",
		zap.String("module", task.Module),
		zap.String("phase", task.Phase),
		zap.String("stage", task.Stage),
		zap.Uint("entity_id", task.EntityID),
		zap.Error(err),
	)
}

// Inline runs tasks synchronously on the caller's goroutine.
type Inline struct {
	log *logger.Logger
}

func NewInline(log *logger.Logger) *Inline {
	if log == nil {
		log = logger.NewNop()
	}
	return &Inline{log: log}
}

func (d *Inline) Dispatch(ctx context.Context, task Task) {
	run(context.WithoutCancel(ctx), d.log, task)
}

// Pool runs tasks on a fixed set of workers, each fed by its own bounded
// queue. Keyed tasks always land on the same worker; the rest are spread
// round robin.
type Pool struct {
	log     *logger.Logger
	queues  []chan Task
	next    atomic.Uint64
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
}

func NewPool(workers, size int, log *logger.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if size < 1 {
		size = 1
	}
	p := &Pool{
		log:    log.Named("events"),
		queues: make([]chan Task, workers),
	}
	p.wg.Add(workers)
	for i := range p.queues {
		p.queues[i] = make(chan Task, size)
		go p.worker(p.queues[i])
	}
	return p
}

func (p *Pool) worker(queue <-chan Task) {
	defer p.wg.Done()
	for task := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
		run(ctx, p.log, task)
		cancel()
	}
}

func (p *Pool) queueFor(task Task) chan Task {
	n := uint64(len(p.queues))
	if task.Key != "" {
		return p.queues[xxhash.Sum64String(task.Key)%n]
	}
	return p.queues[p.next.Add(1)%n]
}

// Dispatch enqueues task. When its queue is full an unkeyed task runs on
// the caller's goroutine at once; a keyed task first waits up to keyedWait.
// After Stop every task runs inline.
func (p *Pool) Dispatch(ctx context.Context, task Task) {
	if p.enqueue(ctx, task) {
		return
	}
	run(context.WithoutCancel(ctx), p.log, task)
}

func (p *Pool) enqueue(ctx context.Context, task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return false
	}
	queue := p.queueFor(task)
	select {
	case queue <- task:
		return true
	default:
	}
	if task.Key != "" {
		timer := time.NewTimer(keyedWait)
		defer timer.Stop()
		select {
		case queue <- task:
			return true
		case <-timer.C:
		case <-ctx.Done():
		}
	}
	p.log.Warn("event queue full, running inline",
		zap.String("module", task.Module),
		zap.String("stage", task.Stage))
	return false
}

// Stop drains queued tasks and waits for the workers, or gives up when ctx
// is done.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		for _, q := range p.queues {
			close(q)
		}
	}
	p.mu.Unlock()
	finished := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

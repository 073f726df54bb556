package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/LiveTrace/internal/models"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Task is one recurring unit of work. Its error is logged, never fatal.
type Task func(ctx context.Context) error

var (
	ErrAlreadyScheduled = errors.New("task already scheduled")
	ErrShutdown         = errors.New("scheduler is shut down")
)

type task struct {
	name     string
	interval time.Duration
	fn       Task
	cancel   context.CancelFunc
	done     chan struct{}
	trigger  chan struct{}
	running  atomic.Bool
}

// Scheduler owns every recurring task: one goroutine per task, so a slow
// task never delays another, and runs of the same task never overlap.
type Scheduler struct {
	logger *zap.Logger

	mu       sync.Mutex
	tasks    map[string]*task
	draining map[*task]struct{} // cancelled, loop not yet returned
	closed   bool

	baseCtx    context.Context
	baseCancel context.CancelFunc

	lastRunUnixNano atomic.Int64
	totalRuns       atomic.Int64
	totalErrors     atomic.Int64
	inFlight        atomic.Int64
	lastErrorMu     sync.Mutex
	lastError       string
}

func New(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger:     logger,
		tasks:      map[string]*task{},
		draining:   map[*task]struct{}{},
		baseCtx:    ctx,
		baseCancel: cancel,
	}
}

// Schedule starts a recurring task under name. The first run happens one
// interval after scheduling.
func (s *Scheduler) Schedule(name string, interval time.Duration, fn Task) error {
	if interval <= 0 {
		return errors.Errorf("interval must be positive, got %s", interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrShutdown
	}
	if _, ok := s.tasks[name]; ok {
		return errors.Wrap(ErrAlreadyScheduled, name)
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	t := &task{
		name:     name,
		interval: interval,
		fn:       fn,
		cancel:   cancel,
		done:     make(chan struct{}),
		trigger:  make(chan struct{}, 1),
	}
	s.tasks[name] = t
	go s.loop(ctx, t)
	return nil
}

// Cancel stops future runs of the task. A run already in progress is left
// to finish and Shutdown still waits for it. Returns false for an unknown
// name.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	t, ok := s.tasks[name]
	if ok {
		delete(s.tasks, name)
		s.draining[t] = struct{}{}
	}
	s.mu.Unlock()

	if ok {
		t.cancel()
	}
	return ok
}

// Trigger forces an immediate run (best-effort, non-blocking).
func (s *Scheduler) Trigger(name string) bool {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case t.trigger <- struct{}{}:
	default:
	}
	return true
}

func (s *Scheduler) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[name]
	return ok
}

func (s *Scheduler) loop(ctx context.Context, t *task) {
	defer func() {
		s.mu.Lock()
		delete(s.draining, t)
		s.mu.Unlock()
		close(t.done)
	}()

	tk := time.NewTicker(t.interval)
	defer tk.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			s.runOnce(ctx, t)
		case <-t.trigger:
			s.runOnce(ctx, t)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, t *task) {
	if ctx.Err() != nil {
		return
	}
	s.lastRunUnixNano.Store(time.Now().UTC().UnixNano())
	s.inFlight.Add(1)
	t.running.Store(true)
	defer func() {
		t.running.Store(false)
		s.inFlight.Add(-1)
		s.totalRuns.Add(1)
	}()

	// Cancellation only stops future runs; the run itself keeps going
	// and bounds its calls with its own timeouts.
	if err := s.call(context.WithoutCancel(ctx), t); err != nil {
		s.totalErrors.Add(1)
		s.lastErrorMu.Lock()
		s.lastError = err.Error()
		s.lastErrorMu.Unlock()
		s.logger.Error("scheduled task failed", zap.String("task", t.name), zap.Error(err))
	}
}

func (s *Scheduler) call(ctx context.Context, t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrap(models.ErrInternal, fmt.Sprintf("panic: %v", r))
		}
	}()
	return t.fn(ctx)
}

// Shutdown cancels every task and waits for in-flight runs, including
// those of tasks cancelled earlier, until ctx is done. Tasks that have not
// returned by then are logged and reported.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	tasks := make([]*task, 0, len(s.tasks)+len(s.draining))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	for t := range s.draining {
		tasks = append(tasks, t)
	}
	s.tasks = map[string]*task{}
	s.mu.Unlock()

	s.baseCancel()

	var stuck []string
	for _, t := range tasks {
		select {
		case <-t.done:
		case <-ctx.Done():
			stuck = append(stuck, t.name)
		}
	}
	if len(stuck) > 0 {
		for _, name := range stuck {
			s.logger.Warn("task did not stop within grace period", zap.String("task", name))
		}
		return errors.Errorf("%d task(s) did not stop in time", len(stuck))
	}
	return nil
}

func (s *Scheduler) Stats() models.SchedulerStats {
	s.mu.Lock()
	n := len(s.tasks)
	s.mu.Unlock()

	st := models.SchedulerStats{
		Tasks:       n,
		TotalRuns:   s.totalRuns.Load(),
		TotalErrors: s.totalErrors.Load(),
		InFlight:    s.inFlight.Load(),
	}
	if v := s.lastRunUnixNano.Load(); v > 0 {
		t := time.Unix(0, v).UTC()
		st.LastRunAt = &t
	}
	s.lastErrorMu.Lock()
	st.LastError = s.lastError
	s.lastErrorMu.Unlock()
	return st
}

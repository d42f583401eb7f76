package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/park285/ttt-rooms/internal/obslog"
	"go.uber.org/zap"
)

// Scheduler runs recurring and one-shot tasks on their own goroutines. Every task gets a context
// that is cancelled by Stop.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{ctx: ctx, cancel: cancel, timers: make(map[string]*time.Timer)}
}

// Every calls fn each interval until Stop. Runs of one task never overlap.
func (s *Scheduler) Every(name string, interval time.Duration, fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || interval <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.run(name, fn)
			}
		}
	}()
}

// After calls fn once after delay unless Stop comes first. A pending task with the same name is
// replaced. It reports whether the task was queued.
func (s *Scheduler) After(name string, delay time.Duration, fn func(ctx context.Context)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	if prev, ok := s.timers[name]; ok && prev.Stop() {
		s.wg.Done()
	}
	s.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		defer s.wg.Done()
		s.mu.Lock()
		if s.timers[name] == t {
			delete(s.timers, name)
		}
		s.mu.Unlock()
		if s.ctx.Err() != nil {
			return
		}
		s.run(name, fn)
	})
	s.timers[name] = t
	return true
}

// Stop cancels pending timers and waits for running tasks to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.cancel()
	for name, t := range s.timers {
		if t.Stop() {
			s.wg.Done()
		}
		delete(s.timers, name)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) run(name string, fn func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			obslog.L().Error("schedule_panic", zap.String("task", name), zap.Any("panic", r))
		}
	}()
	fn(s.ctx)
}

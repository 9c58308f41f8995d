package engine

import (
	"context"
	"sync"
	"time"
)

type task struct {
	cancel context.CancelFunc
}

// tasks runs cancellable delayed and periodic triggers keyed by name.
// Scheduling a key that is already running replaces the old trigger.
// Once stopped, new triggers are dropped.
type tasks struct {
	parent  context.Context
	halt    context.CancelFunc
	mu      sync.Mutex
	running map[string]*task
	stopped bool
	wg      sync.WaitGroup
}

func newTasks(parent context.Context) *tasks {
	ctx, halt := context.WithCancel(parent)
	return &tasks{
		parent:  ctx,
		halt:    halt,
		running: make(map[string]*task),
	}
}

// register claims key and counts the trigger's goroutine. It reports false
// once stop has begun.
func (t *tasks) register(key string) (context.Context, *task, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return nil, nil, false
	}

	ctx, cancel := context.WithCancel(t.parent)
	tk := &task{cancel: cancel}
	if prev, ok := t.running[key]; ok {
		prev.cancel()
	}
	t.running[key] = tk
	t.wg.Add(1)
	return ctx, tk, true
}

func (t *tasks) release(key string, tk *task) {
	tk.cancel()
	t.mu.Lock()
	if t.running[key] == tk {
		delete(t.running, key)
	}
	t.mu.Unlock()
}

// after runs fn once, d from now, unless key is cancelled first.
func (t *tasks) after(key string, d time.Duration, fn func(ctx context.Context)) {
	ctx, tk, ok := t.register(key)
	if !ok {
		return
	}
	go func() {
		defer t.wg.Done()
		defer t.release(key, tk)

		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return
		}
		fn(ctx)
	}()
}

// every runs fn each d until fn returns false or key is cancelled.
func (t *tasks) every(key string, d time.Duration, fn func(ctx context.Context) bool) {
	ctx, tk, ok := t.register(key)
	if !ok {
		return
	}
	go func() {
		defer t.wg.Done()
		defer t.release(key, tk)

		ticker := time.NewTicker(d)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			// a cancel racing the tick wins
			if ctx.Err() != nil {
				return
			}
			if !fn(ctx) {
				return
			}
		}
	}()
}

func (t *tasks) cancel(key string) {
	t.mu.Lock()
	tk, ok := t.running[key]
	if ok {
		delete(t.running, key)
	}
	t.mu.Unlock()
	if ok {
		tk.cancel()
	}
}

func (t *tasks) active(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.running[key]
	return ok
}

// stop cancels every trigger and waits for running callbacks to return.
// Triggers scheduled by those callbacks are dropped. It must not be called
// from inside a callback.
func (t *tasks) stop() {
	t.halt()
	t.mu.Lock()
	t.stopped = true
	for key, tk := range t.running {
		tk.cancel()
		delete(t.running, key)
	}
	t.mu.Unlock()
	t.wg.Wait()
}

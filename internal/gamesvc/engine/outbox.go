package engine

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

type job struct {
	name string
	run  func(ctx context.Context) error
	done chan struct{}
}

// outbox executes collaborator calls in FIFO order off the control path.
// enqueue never blocks; failures are logged and dropped.
type outbox struct {
	name    string
	timeout time.Duration

	mu     sync.Mutex
	queue  []job
	closed bool
	wake   chan struct{}
	exited chan struct{}
}

func newOutbox(name string, timeout time.Duration) *outbox {
	return &outbox{
		name:    name,
		timeout: timeout,
		wake:    make(chan struct{}, 1),
		exited:  make(chan struct{}),
	}
}

func (o *outbox) push(j job) bool {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false
	}
	o.queue = append(o.queue, j)
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
	return true
}

func (o *outbox) enqueue(name string, fn func(ctx context.Context) error) {
	if !o.push(job{name: name, run: fn}) {
		log.WithFields(log.Fields{"outbox": o.name, "job": name}).Warn("outbox closed, job dropped")
	}
}

// flush waits until every job queued before the call has run.
func (o *outbox) flush(ctx context.Context) error {
	done := make(chan struct{})
	if !o.push(job{name: "flush", done: done}) {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run processes jobs until close is called and the queue is drained.
func (o *outbox) run() {
	defer close(o.exited)
	for {
		o.mu.Lock()
		if len(o.queue) == 0 {
			closed := o.closed
			o.mu.Unlock()
			if closed {
				return
			}
			<-o.wake
			continue
		}
		j := o.queue[0]
		o.queue[0] = job{}
		o.queue = o.queue[1:]
		o.mu.Unlock()

		o.exec(j)
	}
}

func (o *outbox) exec(j job) {
	if j.done != nil {
		close(j.done)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{"outbox": o.name, "job": j.name}).Errorf("outbox job panic: %v", r)
		}
	}()

	if err := j.run(ctx); err != nil {
		log.WithFields(log.Fields{
			"outbox": o.name,
			"job":    j.name,
		}).WithError(err).Error("outbox job failed")
	}
}

func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	select {
	case o.wake <- struct{}{}:
	default:
	}
	<-o.exited
}

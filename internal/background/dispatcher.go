// Package background runs fire-and-forget tasks decoupled from the
// request path. Summarization lands here so it never delays a response.
package background

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Task is a unit of background work. The context is the dispatcher's,
// not the originating request's, since the request has already finished.
type Task func(ctx context.Context)

// Dispatcher fans tasks out to a small fixed pool of workers. Submit
// never blocks: when the queue is full the task is dropped and logged,
// which is acceptable because every task here is retried naturally on a
// later turn.
type Dispatcher struct {
	queue  chan Task
	wg     sync.WaitGroup
	cancel context.CancelFunc
	logger *logrus.Logger

	mu      sync.Mutex
	stopped bool
}

func NewDispatcher(workers, queueSize int, logger *logrus.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 32
	}
	if logger == nil {
		logger = logrus.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		queue:  make(chan Task, queueSize),
		cancel: cancel,
		logger: logger,
	}

	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
	return d
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	for task := range d.queue {
		d.run(ctx, id, task)
	}
}

func (d *Dispatcher) run(ctx context.Context, id int, task Task) {
	defer func() {
		if recovered := recover(); recovered != nil {
			d.logger.WithFields(logrus.Fields{
				"worker": id,
				"panic":  recovered,
			}).Error("Background task panicked")
		}
	}()
	task(ctx)
}

// Submit enqueues a task. Returns false when the queue is full or the
// dispatcher has stopped.
func (d *Dispatcher) Submit(task Task) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}

	select {
	case d.queue <- task:
		return true
	default:
		d.logger.Warn("Background queue full, task dropped")
		return false
	}
}

// Stop drains the queue and waits for in-flight tasks to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	close(d.queue)
	d.wg.Wait()
	d.cancel()
}

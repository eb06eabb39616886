package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultQueueSize bounds pending email deliveries.
const DefaultQueueSize = 128

type emailJob struct {
	to   string
	code string
}

// Dispatcher delivers email on a background worker. Enqueueing never
// blocks; a full queue drops the message.
type Dispatcher struct {
	Sender  EmailSender
	Logger  *slog.Logger
	Timeout time.Duration // per delivery

	queue     chan emailJob
	stopCh    chan struct{}
	doneCh    chan struct{}
	closed    atomic.Bool
	dropped   atomic.Uint64
	startOnce sync.Once
	stopOnce  sync.Once
}

func NewDispatcher(sender EmailSender, logger *slog.Logger, size int, timeout time.Duration) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Dispatcher{
		Sender:  sender,
		Logger:  logger,
		Timeout: timeout,
		queue:   make(chan emailJob, size),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start launches the worker.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		go d.run()
		d.Logger.Info("email dispatcher started", "queue_size", cap(d.queue))
	})
}

// Stop drains queued messages and waits for the worker to exit.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.closed.Store(true)
		close(d.stopCh)
		d.startOnce.Do(func() { close(d.doneCh) })
		<-d.doneCh
		d.Logger.Info("email dispatcher stopped", "dropped", d.dropped.Load())
	})
}

// SendOTP queues the message and returns ErrQueueFull if there is no room.
func (d *Dispatcher) SendOTP(_ context.Context, to, code string) error {
	if d.closed.Load() {
		return ErrQueueFull
	}
	select {
	case d.queue <- emailJob{to: to, code: code}:
		return nil
	default:
		d.dropped.Add(1)
		d.Logger.Warn("email queue full, message dropped", "to", to)
		return ErrQueueFull
	}
}

// Dropped counts messages discarded because the queue was full.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

func (d *Dispatcher) run() {
	defer close(d.doneCh)

	for {
		select {
		case job := <-d.queue:
			d.deliver(job)
		case <-d.stopCh:
			for {
				select {
				case job := <-d.queue:
					d.deliver(job)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(job emailJob) {
	ctx := context.Background()
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	if err := d.Sender.SendOTP(ctx, job.to, job.code); err != nil {
		d.Logger.Warn("email delivery failed", "to", job.to, "error", err)
	}
}

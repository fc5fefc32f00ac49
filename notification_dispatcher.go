package authcore

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// notifyOp is one queued sink operation: a show, or a clear when show is
// false.
type notifyOp struct {
	show   bool
	notice Notification
}

type notifyDispatcher struct {
	cfg       NotificationConfig
	sink      Sink
	ch        chan notifyOp
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	shown     atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
}

func newNotifyDispatcher(cfg NotificationConfig, sink Sink) *notifyDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &notifyDispatcher{
		cfg:  cfg,
		sink: sink,
		ch:   make(chan notifyOp, cfg.BufferSize),
		done: make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *notifyDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case op := <-d.ch:
			d.deliver(op)
		case <-d.done:
			for {
				select {
				case op := <-d.ch:
					d.deliver(op)
				default:
					return
				}
			}
		}
	}
}

func (d *notifyDispatcher) deliver(op notifyOp) {
	if op.show {
		d.sink.Show(context.Background(), op.notice)
		return
	}
	d.sink.Clear(context.Background())
}

// Show queues a notice. The pending-notification flag flips immediately so
// callers observe the slot as occupied before the sink runs.
func (d *notifyDispatcher) Show(ctx context.Context, n Notification) {
	if d == nil || d.closed.Load() {
		return
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	d.shown.Store(true)
	d.enqueue(ctx, notifyOp{show: true, notice: n})
}

// Clear queues a dismissal of the currently shown notice.
func (d *notifyDispatcher) Clear(ctx context.Context) {
	if d == nil || d.closed.Load() {
		return
	}
	d.shown.Store(false)
	d.enqueue(ctx, notifyOp{})
}

func (d *notifyDispatcher) enqueue(ctx context.Context, op notifyOp) {
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- op:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- op:
	case <-ctx.Done():
	case <-d.done:
	}
}

// Shown reports whether a notice is currently occupying the pending slot.
func (d *notifyDispatcher) Shown() bool {
	if d == nil {
		return false
	}
	return d.shown.Load()
}

// Close drains queued notices and stops the worker.
func (d *notifyDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped returns the number of notices discarded because the buffer was
// full.
func (d *notifyDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

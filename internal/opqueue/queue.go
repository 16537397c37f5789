package opqueue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesync/internal/device"
	"github.com/srg/blesync/internal/groutine"
)

const (
	// DefaultPollInterval is the wait granularity of the worker
	DefaultPollInterval = 50 * time.Millisecond

	// DefaultOperationTimeout is how long a dispatched operation may wait for its completion
	DefaultOperationTimeout = 500 * time.Millisecond
)

// LinkSource resolves the link that is valid at dispatch time.
// A nil link means the device is no longer connected.
type LinkSource interface {
	CurrentLink() device.Link
}

// Options configures a Queue. Zero durations select defaults.
type Options struct {
	PollInterval     time.Duration
	OperationTimeout time.Duration

	// MatchCompletions discards completions whose op id is not the awaited one.
	// When false any completion releases the current wait.
	MatchCompletions bool
}

// Queue serializes operations against a single peripheral.
//
// Operations are dispatched in enqueue order by one lazily started worker, and the
// worker never dispatches the next operation before the current one has completed,
// timed out or failed to dispatch. Timeouts are not reported to the enqueuer.
type Queue struct {
	logger *logrus.Logger
	links  LinkSource
	opts   Options
	slot   *slot
	nextID atomic.Uint64

	mu      sync.Mutex
	pending []*Operation
	wake    chan struct{}

	lifeMu sync.Mutex
	cancel context.CancelFunc
	done   <-chan struct{}

	// observed is called after every resolved operation; tests hook it.
	observed atomic.Pointer[resolvedFunc]
}

type resolvedFunc func(op *Operation, outcome Outcome)

// Outcome is how an operation left the worker.
type Outcome int

const (
	Completed Outcome = iota
	TimedOut
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case TimedOut:
		return "timed_out"
	default:
		return "dropped"
	}
}

// New creates a queue. The worker starts on the first Enqueue.
func New(links LinkSource, logger *logrus.Logger, opts Options) *Queue {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = DefaultOperationTimeout
	}
	return &Queue{
		logger: logger,
		links:  links,
		opts:   opts,
		slot:   newSlot(),
		wake:   make(chan struct{}, 1),
	}
}

// OnResolved registers a callback invoked on the worker after each operation resolves.
// It may be replaced while the worker runs; nil removes it.
func (q *Queue) OnResolved(fn func(op *Operation, outcome Outcome)) {
	if fn == nil {
		q.observed.Store(nil)
		return
	}
	f := resolvedFunc(fn)
	q.observed.Store(&f)
}

// Enqueue assigns the operation an id, appends it and starts the worker if needed.
func (q *Queue) Enqueue(op *Operation) uint64 {
	if op == nil {
		panic(fmt.Errorf("%w: nil operation enqueued", device.ErrInternal))
	}
	op.ID = q.nextID.Add(1)
	op.ElapsedPolls = 0

	q.mu.Lock()
	q.pending = append(q.pending, op)
	depthGauge.Set(float64(len(q.pending)))
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	q.logger.WithFields(logrus.Fields{
		"op":             op.Kind.String(),
		"op_id":          op.ID,
		"service":        op.Service,
		"characteristic": op.Characteristic,
	}).Debug("Operation enqueued")

	q.ensureWorker()
	return op.ID
}

// Len returns the number of operations waiting for dispatch.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Complete routes a driver completion to the waiting worker.
// It reports whether the completion released a wait.
func (q *Queue) Complete(c Completion) bool {
	if q.slot.deliver(c, q.opts.MatchCompletions) {
		return true
	}
	awaited, armed := q.slot.awaited()
	q.logger.WithFields(logrus.Fields{
		"op_id":   c.OpID,
		"awaited": awaited,
		"armed":   armed,
	}).Debug("Discarding unmatched completion")
	return false
}

// Stop cancels the worker, abandons the in-flight and undispatched operations and
// waits for the worker to exit. The next Enqueue starts a fresh worker.
func (q *Queue) Stop() {
	q.lifeMu.Lock()
	defer q.lifeMu.Unlock()

	if q.cancel != nil {
		q.cancel()
		<-q.done
		q.cancel = nil
		q.done = nil
	}

	q.mu.Lock()
	dropped := q.pending
	q.pending = nil
	depthGauge.Set(0)
	q.mu.Unlock()

	for _, op := range dropped {
		q.resolve(op, Dropped, "stopped")
	}
	if len(dropped) > 0 {
		q.logger.WithField("count", len(dropped)).Debug("Abandoned undispatched operations")
	}
}

func (q *Queue) ensureWorker() {
	q.lifeMu.Lock()
	defer q.lifeMu.Unlock()
	if q.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.done = groutine.Go(ctx, "opqueue-worker", q.run)
}

func (q *Queue) run(ctx context.Context) {
	log := q.logger.WithField("goroutine", groutine.GetName(ctx))
	log.Debug("Operation worker started")
	defer log.Debug("Operation worker stopped")

	for {
		op, ok := q.pop(ctx)
		if !ok {
			return
		}
		q.process(ctx, op)
	}
}

// pop blocks until an operation is available or ctx is done.
func (q *Queue) pop(ctx context.Context) (*Operation, bool) {
	for {
		q.mu.Lock()
		if ctx.Err() != nil {
			q.mu.Unlock()
			return nil, false
		}
		if len(q.pending) > 0 {
			op := q.pending[0]
			q.pending[0] = nil
			q.pending = q.pending[1:]
			depthGauge.Set(float64(len(q.pending)))
			q.mu.Unlock()
			return op, true
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-ctx.Done():
			return nil, false
		}
	}
}

func (q *Queue) process(ctx context.Context, op *Operation) {
	log := q.logger.WithFields(logrus.Fields{
		"op":             op.Kind.String(),
		"op_id":          op.ID,
		"service":        op.Service,
		"characteristic": op.Characteristic,
	})

	link := q.links.CurrentLink()
	if link == nil {
		log.Debug("No link at dispatch, dropping operation")
		q.resolve(op, Dropped, "no_link")
		return
	}

	q.slot.arm(op.ID)
	if err := op.dispatch(link); err != nil {
		q.slot.disarm()
		log.WithError(err).Warn("Operation dispatch failed")
		q.resolve(op, Dropped, "dispatch_error")
		return
	}
	dispatchedCounter.WithLabelValues(op.Kind.String()).Inc()
	log.Debug("Operation dispatched")

	q.wait(ctx, op, log)
}

// wait blocks until a completion arrives, the deadline passes or the worker is cancelled.
func (q *Queue) wait(ctx context.Context, op *Operation, log *logrus.Entry) {
	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case c := <-q.slot.ch:
			if c.OpID != op.ID {
				log.WithField("completed_op_id", c.OpID).Debug("Wait released by another operation's completion")
			}
			q.resolve(op, Completed, "")
			return
		case <-ticker.C:
			op.ElapsedPolls++
			if time.Duration(op.ElapsedPolls)*q.opts.PollInterval >= q.opts.OperationTimeout {
				q.slot.disarm()
				log.WithFields(logrus.Fields{
					"polls":   op.ElapsedPolls,
					"timeout": q.opts.OperationTimeout,
					"error":   device.ErrOperationTimeout,
				}).Warn("Operation abandoned without completion")
				q.resolve(op, TimedOut, "")
				return
			}
		case <-ctx.Done():
			q.slot.disarm()
			q.resolve(op, Dropped, "stopped")
			return
		}
	}
}

func (q *Queue) resolve(op *Operation, outcome Outcome, reason string) {
	kind := op.Kind.String()
	switch outcome {
	case Completed:
		completedCounter.WithLabelValues(kind).Inc()
	case TimedOut:
		timedOutCounter.WithLabelValues(kind).Inc()
	default:
		droppedCounter.WithLabelValues(kind, reason).Inc()
	}
	if fn := q.observed.Load(); fn != nil {
		(*fn)(op, outcome)
	}
}

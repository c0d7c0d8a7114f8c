// Package parallel implements the ParallelAgent wrapper (C6): it decorates
// any agent.Agent with a bounded FIFO work queue and a single dedicated
// worker, so the inner agent only ever observes messages one at a time
// and in enqueue order — the property the configuration loader relies on
// so that each operator agent sees its inputs in arrival order.
package parallel

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/zazi341/dataflow-graph-server/internal/agent"
	"github.com/zazi341/dataflow-graph-server/internal/message"
	"github.com/zazi341/dataflow-graph-server/internal/metrics"
)

// State is the wrapper's lifecycle state.
type State int32

const (
	StateRunning State = iota
	StateStopping
	StateStopped
)

// drainTimeout bounds how long Close waits for the queue to empty before
// giving up and reporting a ResourceError; shutdown must still make
// forward progress, so the bound exists but is not fatal.
const drainTimeout = 2 * time.Second

type job struct {
	topicName string
	msg       message.Message
}

// Agent decorates an inner agent.Agent with a bounded FIFO queue and one
// worker goroutine. It implements topic.Agent (Name + OnMessage) so it can
// be subscribed to topics directly in the inner agent's place.
type Agent struct {
	inner   agent.Agent
	queue   chan job
	metrics *metrics.Metrics

	state atomic.Int32 // State, CAS-guarded so Close runs at most once
	stop  chan struct{} // closed by Close; never a.queue, so a concurrently-blocked producer never selects on a closed channel
	done  chan struct{}
}

// New wraps inner with a queue of the given capacity and starts its
// worker. The wrapper is in the running state immediately on return. m
// may be nil, in which case dropped-enqueue and queue gauges are not
// recorded (used by tests that don't care about metrics).
func New(inner agent.Agent, capacity int, m *metrics.Metrics) *Agent {
	if capacity < 1 {
		capacity = 1
	}
	a := &Agent{
		inner:   inner,
		queue:   make(chan job, capacity),
		metrics: m,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	a.state.Store(int32(StateRunning))
	go a.run()
	return a
}

// Capacity returns the configured queue size, used by metrics/monitoring.
func (a *Agent) Capacity() int { return cap(a.queue) }

// QueueDepth returns the current number of jobs waiting in the queue.
func (a *Agent) QueueDepth() int { return len(a.queue) }

// Name delegates to the inner agent.
func (a *Agent) Name() string { return a.inner.Name() }

// OnMessage enqueues (topicName, msg) for the worker. If the queue is
// full the caller blocks until space appears — this is the engine's only
// source of publisher-facing backpressure. The context, if non-nil and
// cancelled while blocked, aborts the enqueue and drops the message
// without surfacing an error to the caller, per spec. A concurrent Close
// also wakes a blocked producer and drops the message the same way,
// since the wrapper is shutting down and nothing will ever drain it.
func (a *Agent) OnMessage(topicName string, msg message.Message) {
	a.OnMessageContext(context.Background(), topicName, msg)
}

// OnMessageContext is OnMessage with an explicit cancellation context.
func (a *Agent) OnMessageContext(ctx context.Context, topicName string, msg message.Message) {
	j := job{topicName: topicName, msg: msg}
	// A free slot always takes the job; ctx and Close only matter once the
	// caller would block on a full queue.
	select {
	case a.queue <- j:
		return
	default:
	}
	select {
	case a.queue <- j:
	case <-ctx.Done():
		// Cancelled enqueue: drop the message silently.
		a.recordDropped()
	case <-a.stop:
		// Close woke us while we were blocked on a full queue.
		a.recordDropped()
	}
}

func (a *Agent) recordDropped() {
	if a.metrics != nil {
		a.metrics.AgentDroppedEnqueues.WithLabelValues(a.Name()).Inc()
	}
}

// Reset invokes Reset on the inner agent directly on the caller's
// goroutine, not via the queue. Callers needing atomicity with any
// in-flight work must externally quiesce the wrapper first (spec.md §4.3,
// §9 open question).
func (a *Agent) Reset() { a.inner.Reset() }

// Close transitions running → stopping, wakes the worker (and any
// producer concurrently blocked in OnMessageContext) via a.stop, waits
// up to drainTimeout for the worker to drain whatever was already
// buffered and exit, then closes the inner agent. a.queue itself is
// never closed: a producer may still be parked on `a.queue <- job{}`
// when Close runs (spec.md §5 lists this as a concurrent suspension
// point), and a send on a closed channel panics, so shutdown is
// signaled out-of-band instead. ResourceError is returned (never
// panics) if the drain bound is exceeded; callers are expected to log
// and continue, since shutdown must make forward progress regardless.
func (a *Agent) Close() error {
	if !a.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return nil
	}
	close(a.stop)

	select {
	case <-a.done:
	case <-time.After(drainTimeout):
		a.state.Store(int32(StateStopped))
		innerErr := a.inner.Close()
		return errors.Join(ErrDrainTimeout, innerErr)
	}
	a.state.Store(int32(StateStopped))
	return a.inner.Close()
}

// CurrentState reports the wrapper's lifecycle state.
func (a *Agent) CurrentState() State { return State(a.state.Load()) }

// ErrDrainTimeout is the ResourceError raised when Close's drain bound
// elapses before the worker finishes draining the queue.
var ErrDrainTimeout = errors.New("parallel: queue did not drain within bound")

func (a *Agent) run() {
	defer close(a.done)
	for {
		select {
		case j := <-a.queue:
			a.inner.OnMessage(j.topicName, j.msg)
		case <-a.stop:
			a.drain()
			return
		}
	}
}

// drain delivers whatever was already buffered in the queue at the
// moment Close signaled stop, then returns once it's empty. A producer
// blocked on a full queue is also selecting on a.stop and unblocks too;
// a producer that finds a free slot while Close is running can still
// place a job in the queue after drain has returned, and that job is
// never delivered.
func (a *Agent) drain() {
	for {
		select {
		case j := <-a.queue:
			a.inner.OnMessage(j.topicName, j.msg)
		default:
			return
		}
	}
}

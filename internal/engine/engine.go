// Package engine is the lifecycle engine: the ready/delay/buried/wait
// collections, the dispatch loop matching waiting consumers to newly
// ready jobs, and the deadline engine promoting delayed jobs and
// reclaiming timed-out reservations. It is the component everything else
// in this module (protocol, conn, cmd/workqd) is built around.
//
// Grounded on original_source/prot.c for verb semantics and invariants,
// cross-checked against NSQ's channel.go for the idiomatic Go shape of
// an in-flight-with-deadline plus deferred-with-deadline system built on
// two heaps and a periodic reaper. A single mutex covers every shared
// collection below, per the native-concurrency alternative spec.md's
// design notes explicitly sanction in place of a hand-rolled reactor.
package engine

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rmkadzi/workq/internal/conn"
	"github.com/rmkadzi/workq/internal/events"
	"github.com/rmkadzi/workq/internal/job"
	"github.com/rmkadzi/workq/internal/logging"
	"github.com/rmkadzi/workq/internal/metrics"
	"github.com/rmkadzi/workq/internal/pq"
	"github.com/rmkadzi/workq/internal/timer"
)

// Version is surfaced in the stats reply. Supplementing spec.md's stats
// verb with the original server's VERSION field.
const Version = "workq 1.0"

const delayTimerID = "delay-queue"

func connTimerID(seq uint64) string { return fmt.Sprintf("ttr:%d", seq) }

// Engine holds every piece of process-wide, mutable queue state.
// Because it's a native-concurrency implementation rather than a
// single-threaded reactor, mu is the serialization point every one of
// §3's invariants depends on.
type Engine struct {
	mu sync.Mutex

	readyQ *pq.Heap
	delayQ *pq.Heap
	buried *list.List // of *job.Job, oldest at front
	waitQ  *list.List // of *conn.Conn, oldest at front

	jobs  *job.Registry
	Conns *conn.Registry

	timers *timer.Manager
	events *events.Publisher
	Metrics *metrics.Metrics
	log    *logging.Logger

	urgentThreshold uint32
	urgentCt        uint32
	maxConnections  int

	draining bool

	startTime time.Time
}

// Config bundles the construction-time tunables an Engine needs, a
// subset of pkg/config.Config's fields.
type Config struct {
	URGENTThreshold uint32
	ReadyCapacity   int
	DelayCapacity   int
	MaxConnections  int
}

// New builds an Engine ready to accept connections.
func New(cfg Config, pub *events.Publisher, log *logging.Logger) *Engine {
	e := &Engine{
		buried:          list.New(),
		waitQ:           list.New(),
		jobs:            job.NewRegistry(),
		Conns:           conn.NewRegistry(),
		timers:          timer.NewManager(0),
		events:          pub,
		Metrics:         metrics.New(),
		log:             log,
		urgentThreshold: cfg.URGENTThreshold,
		maxConnections:  cfg.MaxConnections,
		startTime:       time.Now(),
	}
	e.readyQ = pq.New(readyLess, cfg.ReadyCapacity)
	e.delayQ = pq.New(delayLess, cfg.DelayCapacity)
	e.timers.Start()
	return e
}

// Stop halts the engine's background timer scheduler. It does not close
// any connections.
func (e *Engine) Stop() {
	e.timers.Stop()
	if e.events != nil {
		e.events.Close()
	}
}

// SetDrain enables or disables drain mode: while enabled, put fails with
// a server error but existing jobs continue to be reserved, processed,
// and deleted normally.
func (e *Engine) SetDrain(on bool) {
	e.mu.Lock()
	e.draining = on
	e.mu.Unlock()
	if e.log != nil {
		e.log.Info("drain mode changed", "draining", on)
	}
}

func readyLess(a, b *job.Job) bool {
	if a.Pri != b.Pri {
		return a.Pri < b.Pri
	}
	return a.ID < b.ID
}

func delayLess(a, b *job.Job) bool {
	if !a.Deadline.Equal(b.Deadline) {
		return a.Deadline.Before(b.Deadline)
	}
	return a.ID < b.ID
}

func (e *Engine) publish(kind events.Kind, j *job.Job) {
	if e.events == nil {
		return
	}
	e.events.Publish(context.Background(), events.Event{Kind: kind, ID: j.ID, Pri: j.Pri, At: time.Now()})
}

// giveReadyLocked enqueues j to the ready queue, burying it instead if
// the queue is at capacity. Callers must hold mu and are responsible for
// calling processQueueLocked afterward. It reports whether j actually
// reached ready (false means it was buried instead, PQ full).
func (e *Engine) giveReadyLocked(j *job.Job) bool {
	if err := e.readyQ.Give(j); err != nil {
		e.buryLocked(j)
		return false
	}
	j.State = job.StateReady
	j.ReservedBy = 0
	if j.Pri < e.urgentThreshold {
		e.urgentCt++
	}
	return true
}

// giveDelayLocked enqueues j to the delay queue, burying it instead if
// the queue is at capacity, and keeps the delay wakeup timer armed for
// the new earliest deadline.
func (e *Engine) giveDelayLocked(j *job.Job) {
	if err := e.delayQ.Give(j); err != nil {
		e.buryLocked(j)
		return
	}
	j.State = job.StateDelayed
	j.ReservedBy = 0
	e.rearmDelayTimerLocked()
}

// buryLocked moves j to the buried list. Per spec.md's §9 open question,
// BuryCt increments both for PQ-full fallback and explicit user bury —
// that's intentional, not double counting of distinct events. A job
// never reaches here while it sits in the ready queue (ready-PQ
// fullness is checked before a job would otherwise become ready), so
// urgentCt never needs adjusting on the way in.
func (e *Engine) buryLocked(j *job.Job) {
	j.State = job.StateBuried
	j.ReservedBy = 0
	j.BuryCt++
	j.SetListElem(e.buried.PushBack(j))
}

func (e *Engine) rearmDelayTimerLocked() {
	next := e.delayQ.Peek()
	if next == nil {
		e.timers.Cancel(delayTimerID)
		return
	}
	e.timers.Schedule(delayTimerID, next.Deadline, e.promoteDelayed)
}

// promoteDelayed is the delay-queue wakeup callback: every job whose
// deadline has passed moves to ready, then the timer is rearmed for
// whatever is now soonest.
func (e *Engine) promoteDelayed() {
	e.mu.Lock()
	now := time.Now()
	for {
		next := e.delayQ.Peek()
		if next == nil || next.Deadline.After(now) {
			break
		}
		j := e.delayQ.Take()
		e.giveReadyLocked(j)
	}
	e.rearmDelayTimerLocked()
	e.processQueueLocked()
	e.mu.Unlock()
}

func (e *Engine) rearmConnTimeoutLocked(c *conn.Conn) {
	id := connTimerID(c.Seq)
	deadline, ok := c.SoonestDeadline()
	if !ok {
		e.timers.Cancel(id)
		return
	}
	e.timers.Schedule(id, deadline, func() { e.reapExpired(c) })
}

// reapExpired is a single connection's TTR wakeup callback: every
// reserved job whose deadline has passed returns to ready, and the
// job's and the global timeout counters both increment.
func (e *Engine) reapExpired(c *conn.Conn) {
	e.mu.Lock()
	now := time.Now()
	for {
		deadline, ok := c.SoonestDeadline()
		if !ok || deadline.After(now) {
			break
		}
		j := c.PopFrontReserved()
		if j == nil {
			break
		}
		j.TimeoutCt++
		e.Metrics.TimeoutCt.Add(1)
		c.TimeoutCt++
		e.giveReadyLocked(j)
		e.publish(events.KindTimeout, j)
	}
	e.rearmConnTimeoutLocked(c)
	e.processQueueLocked()
	e.mu.Unlock()
}

// CloseConn releases everything a connection held: its reserved jobs go
// back to ready (at-least-once delivery across a worker crash), and its
// per-connection timer and wait-queue membership are cleared.
func (e *Engine) CloseConn(c *conn.Conn) {
	c.MarkClosed()
	c.CancelWait()

	e.mu.Lock()
	drained := c.DrainReserved()
	for _, j := range drained {
		e.giveReadyLocked(j)
	}
	e.processQueueLocked()
	e.mu.Unlock()

	e.timers.Cancel(connTimerID(c.Seq))
	e.Conns.Unregister(c.Seq)
}

// processQueueLocked matches waiting connections to ready jobs, oldest
// waiter against highest-priority job, until either side is exhausted.
// Callers must hold mu.
func (e *Engine) processQueueLocked() {
	for e.waitQ.Len() > 0 {
		if e.readyQ.Peek() == nil {
			break
		}
		front := e.waitQ.Front()
		e.waitQ.Remove(front)
		c := front.Value.(*conn.Conn)

		if c.IsClosed() {
			continue
		}

		j := e.readyQ.Take()
		if j.Pri < e.urgentThreshold {
			e.urgentCt--
		}

		now := time.Now()
		j.State = job.StateReserved
		j.ReservedBy = c.Seq
		j.Deadline = now.Add(time.Duration(j.TTR) * time.Second)
		c.AddReserved(j)

		if !c.Fulfill(j) {
			// The connection stopped waiting between being queued and
			// being matched (e.g. it hung up). Put the reservation back
			// and try the next waiter.
			c.RemoveReserved(j)
			j.State = job.StateReady
			j.ReservedBy = 0
			e.giveReadyLocked(j)
			continue
		}

		e.rearmConnTimeoutLocked(c)
		e.publish(events.KindReserve, j)
	}
}

// Package conn models a single client connection to the queue server: its
// protocol state, its reserved jobs, and the diagnostic bookkeeping the
// engine and stats verbs report on.
package conn

import (
	"container/list"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rmkadzi/workq/internal/job"
)

// State is the connection's protocol state, mirroring the wait/working
// distinction a reserve call puts a connection into.
type State int

const (
	StateWantCommand State = iota
	StateWaitJob
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateWantCommand:
		return "want-command"
	case StateWaitJob:
		return "wait-job"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Conn tracks one client connection's engine-visible state: which jobs it
// currently holds reserved, whether it's parked waiting for a reserve to
// be satisfied, and diagnostic counters mirrored in stats.
//
// Fields touched only by this connection's own goroutines (Raw, reader
// buffers) need no lock; fields the engine mutates from another
// connection's goroutine during dispatch (Reserved, State) are guarded by
// mu.
type Conn struct {
	Seq  uint64
	ID   uuid.UUID
	Raw  net.Conn
	Addr string

	ConnectedAt time.Time

	mu       sync.Mutex
	state    State
	reserved *list.List // of *job.Job, ordered by ascending deadline

	// notify delivers a reserved job (or nil on hang-up/shutdown) to the
	// goroutine blocked in a reserve call. It is created fresh for each
	// reserve and closed exactly once by whichever side resolves it.
	notify chan *job.Job

	ReserveCt uint64
	TimeoutCt uint64
	ReleaseCt uint64
	BuryCt    uint64
	KickCt    uint64

	// IsWorker/IsProducer are role flags for stats' per-connection role
	// counts: a connection becomes a worker on its first reserve and a
	// producer on its first put, and may be both.
	IsWorker   atomic.Bool
	IsProducer atomic.Bool

	closed atomic.Bool
}

// New wraps a freshly accepted net.Conn.
func New(seq uint64, raw net.Conn) *Conn {
	return &Conn{
		Seq:         seq,
		ID:          uuid.New(),
		Raw:         raw,
		Addr:        raw.RemoteAddr().String(),
		ConnectedAt: time.Now(),
		state:       StateWantCommand,
		reserved:    list.New(),
	}
}

// State returns the connection's current protocol state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetState updates the connection's protocol state.
func (c *Conn) SetState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// ReservedCount reports how many jobs this connection currently holds.
func (c *Conn) ReservedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reserved.Len()
}

// AddReserved inserts j into this connection's reserved list, ordered by
// ascending deadline so the soonest-to-expire job is always at the
// front — the order the deadline engine's per-connection scan wants.
func (c *Conn) AddReserved(j *job.Job) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for e := c.reserved.Back(); e != nil; e = e.Prev() {
		if !e.Value.(*job.Job).Deadline.After(j.Deadline) {
			elem := c.reserved.InsertAfter(j, e)
			j.SetListElem(elem)
			return
		}
	}
	elem := c.reserved.PushFront(j)
	j.SetListElem(elem)
}

// RemoveReserved removes j from this connection's reserved list. It is a
// no-op if j isn't present.
func (c *Conn) RemoveReserved(j *job.Job) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := j.ListElem().(*list.Element); ok {
		c.reserved.Remove(elem)
		j.SetListElem(nil)
	}
}

// SoonestDeadline returns the earliest deadline among this connection's
// reserved jobs, and whether any exist.
func (c *Conn) SoonestDeadline() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	front := c.reserved.Front()
	if front == nil {
		return time.Time{}, false
	}
	return front.Value.(*job.Job).Deadline, true
}

// EachReserved calls fn for every job this connection currently holds, in
// ascending-deadline order. fn must not mutate the list.
func (c *Conn) EachReserved(fn func(*job.Job)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for e := c.reserved.Front(); e != nil; e = e.Next() {
		fn(e.Value.(*job.Job))
	}
}

// BeginWait installs a fresh notify channel for an in-flight reserve and
// returns it to the caller to block on. The engine later calls Fulfill
// to deliver a job, or CancelWait closes the channel without one.
func (c *Conn) BeginWait() chan *job.Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan *job.Job, 1)
	c.notify = ch
	c.state = StateWaitJob
	return ch
}

// Fulfill delivers j to the connection waiting on its current notify
// channel, if any, and clears the wait. Returns false if the connection
// wasn't actually waiting (e.g. its wait was cancelled or it closed).
func (c *Conn) Fulfill(j *job.Job) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notify == nil {
		return false
	}
	ch := c.notify
	c.notify = nil
	c.state = StateWantCommand
	ch <- j
	close(ch)
	return true
}

// MarkClosed flags this connection as no longer usable. Engine code that
// encounters a stale wait-queue entry checks this instead of eagerly
// removing the connection from the wait queue on close.
func (c *Conn) MarkClosed() { c.closed.Store(true) }

// IsClosed reports whether MarkClosed has been called.
func (c *Conn) IsClosed() bool { return c.closed.Load() }

// PopFrontReserved removes and returns the soonest-deadline reserved
// job, or nil if none are reserved.
func (c *Conn) PopFrontReserved() *job.Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	front := c.reserved.Front()
	if front == nil {
		return nil
	}
	j := front.Value.(*job.Job)
	c.reserved.Remove(front)
	j.SetListElem(nil)
	return j
}

// DrainReserved removes and returns every job this connection holds
// reserved, in ascending-deadline order, used when a connection closes
// so its jobs can be handed back to the ready queue.
func (c *Conn) DrainReserved() []*job.Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	jobs := make([]*job.Job, 0, c.reserved.Len())
	for e := c.reserved.Front(); e != nil; {
		next := e.Next()
		j := e.Value.(*job.Job)
		j.SetListElem(nil)
		jobs = append(jobs, j)
		e = next
	}
	c.reserved.Init()
	return jobs
}

// CancelWait clears a pending wait without delivering a job, used when
// the connection hangs up or is closing.
func (c *Conn) CancelWait() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.notify == nil {
		return
	}
	ch := c.notify
	c.notify = nil
	c.state = StateWantCommand
	close(ch)
}

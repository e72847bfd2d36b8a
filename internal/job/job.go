// Package job defines the Job type: the unit of work tracked by the queue
// engine, its lifecycle states, and the bookkeeping every job carries
// through that lifecycle.
package job

import (
	"time"
)

// JobDataSizeLimit is the maximum byte count a put may declare for a job
// body. The count excludes the trailing "\r\n", so a stored Body may be
// up to two bytes longer.
const JobDataSizeLimit = (1 << 16) - 1

// State is the lifecycle state of a Job. A job is always in exactly one
// state, and that state determines which container (ready queue, delay
// queue, a connection's reserved list, or the buried list) currently owns
// it.
type State int

const (
	StateInvalid State = iota
	StateReady
	StateDelayed
	StateReserved
	StateBuried
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateDelayed:
		return "delayed"
	case StateReserved:
		return "reserved"
	case StateBuried:
		return "buried"
	default:
		return "invalid"
	}
}

// Job is a single unit of work. Body always includes the trailing "\r\n"
// the client sent; BodySize is len(Body).
type Job struct {
	ID    uint64
	Pri   uint32
	Delay uint32
	TTR   uint32

	Body     []byte
	BodySize uint32

	State    State
	Deadline time.Time
	Creation time.Time

	TimeoutCt uint32
	ReleaseCt uint32
	BuryCt    uint32
	KickCt    uint32

	// ReservedBy is the Seq of the connection currently holding this job
	// in its reserved list, or 0 if the job isn't reserved. It is the
	// back-pointer §3 DATA MODEL describes, expressed as an id rather
	// than a pointer so this package doesn't need to import the
	// connection package.
	ReservedBy uint64

	// PQIndex is maintained by internal/pq's heap.Interface implementation.
	// A Job is never in more than one priority queue at a time, so one
	// field suffices for both the ready and delay queues.
	PQIndex int

	// listElem is opaque bookkeeping for whichever intrusive list
	// (buried list, a connection's reserved list) currently holds this
	// job. It is only ever touched by the container that owns the job.
	listElem any
}

// ListElem returns the container-private link bookkeeping for this job.
func (j *Job) ListElem() any { return j.listElem }

// SetListElem sets the container-private link bookkeeping for this job.
func (j *Job) SetListElem(e any) { j.listElem = e }

// Trailer reports whether the job body ends in exactly "\r\n", per the
// put verb's framing requirement.
func (j *Job) Trailer() bool {
	if len(j.Body) < 2 {
		return false
	}
	tail := j.Body[len(j.Body)-2:]
	return tail[0] == '\r' && tail[1] == '\n'
}

// VisibleBodySize is the size reported to clients: BodySize minus the
// trailing CR-LF, matching the C source's `j->body_size - 2`.
func (j *Job) VisibleBodySize() uint32 {
	if j.BodySize < 2 {
		return 0
	}
	return j.BodySize - 2
}

// Copy returns a deep copy of j with independent body storage, for use by
// peek so that a concurrent delete/release/state change on the original
// can't corrupt a reply already being streamed out. The copy carries no
// container membership (ReservedBy, PQIndex, listElem are all reset).
func (j *Job) Copy() *Job {
	n := *j
	n.Body = make([]byte, len(j.Body))
	copy(n.Body, j.Body)
	n.ReservedBy = 0
	n.PQIndex = -1
	n.listElem = nil
	return &n
}

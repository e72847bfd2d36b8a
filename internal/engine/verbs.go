package engine

import (
	"container/list"
	"time"

	"github.com/rmkadzi/workq/internal/conn"
	"github.com/rmkadzi/workq/internal/events"
	"github.com/rmkadzi/workq/internal/job"
)

// Put allocates and enqueues a job with the given parameters and body
// (body already validated by the caller to have the correct length and
// a "\r\n" trailer). It returns the new job, or a ProtocolError if the
// server is draining.
func (e *Engine) Put(pri, delay, ttr uint32, body []byte) (*job.Job, *ProtocolError) {
	e.mu.Lock()
	if e.draining {
		e.mu.Unlock()
		return nil, errDraining
	}

	j := &job.Job{
		ID:       e.jobs.NextID(),
		Pri:      pri,
		Delay:    delay,
		TTR:      ttr,
		Body:     body,
		BodySize: uint32(len(body)),
		Creation: time.Now(),
		PQIndex:  -1,
	}
	e.jobs.Put(j)

	if delay > 0 {
		j.Deadline = j.Creation.Add(time.Duration(delay) * time.Second)
		e.giveDelayLocked(j)
	} else {
		e.giveReadyLocked(j)
		e.processQueueLocked()
	}
	e.mu.Unlock()

	e.Metrics.PutCt.Add(1)
	e.Metrics.TotalJobs.Add(1)
	e.publish(events.KindPut, j)
	return j, nil
}

// Delete removes a job this connection either has reserved or that is
// buried, returning true on success.
func (e *Engine) Delete(c *conn.Conn, id uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	j, ok := e.jobs.Get(id)
	if !ok {
		return false
	}

	switch j.State {
	case job.StateReserved:
		if j.ReservedBy != c.Seq {
			return false
		}
		c.RemoveReserved(j)
	case job.StateBuried:
		e.removeBuriedLocked(j)
	default:
		return false
	}

	e.jobs.Delete(id)
	e.Metrics.DeleteCt.Add(1)
	e.publish(events.KindDelete, j)
	return true
}

// removeBuriedLocked removes j from the buried list using its stored
// list.Element bookkeeping.
func (e *Engine) removeBuriedLocked(j *job.Job) {
	if elem, ok := j.ListElem().(*list.Element); ok {
		e.buried.Remove(elem)
		j.SetListElem(nil)
	}
}

// Release re-enqueues a job this connection has reserved, with updated
// priority and delay. Returns (released, buried, found).
func (e *Engine) Release(c *conn.Conn, id uint64, pri, delay uint32) (released, buried, found bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	j, ok := e.jobs.Get(id)
	if !ok || j.State != job.StateReserved || j.ReservedBy != c.Seq {
		return false, false, false
	}

	c.RemoveReserved(j)
	j.Pri = pri
	j.Delay = delay
	j.ReleaseCt++
	c.ReleaseCt++

	before := e.buried.Len()
	if delay > 0 {
		j.Deadline = time.Now().Add(time.Duration(delay) * time.Second)
		e.giveDelayLocked(j)
	} else {
		e.giveReadyLocked(j)
		e.processQueueLocked()
	}
	didBury := e.buried.Len() > before

	e.Metrics.ReleaseCt.Add(1)
	e.publish(events.KindRelease, j)
	return !didBury, didBury, true
}

// Bury moves a job this connection has reserved to the buried list with
// an updated priority. Returns found.
func (e *Engine) Bury(c *conn.Conn, id uint64, pri uint32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	j, ok := e.jobs.Get(id)
	if !ok || j.State != job.StateReserved || j.ReservedBy != c.Seq {
		return false
	}

	c.RemoveReserved(j)
	j.Pri = pri
	e.buryLocked(j)
	c.BuryCt++

	e.Metrics.BuryCt.Add(1)
	e.publish(events.KindBury, j)
	return true
}

// Kick moves up to n jobs back to ready: from the buried list, oldest
// first, if any are buried; otherwise from the delay queue, soonest
// first. It returns the number actually kicked.
func (e *Engine) Kick(n uint32) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	kicked := 0
	if e.buried.Len() > 0 {
		for kicked < int(n) && e.buried.Len() > 0 {
			front := e.buried.Front()
			j := front.Value.(*job.Job)
			e.buried.Remove(front)
			j.SetListElem(nil)
			j.KickCt++
			if !e.giveReadyLocked(j) {
				// PQ full: giveReadyLocked already re-buried j. Matches
				// kick_buried_jobs stopping at the first failure rather
				// than counting a job that immediately went back to buried.
				break
			}
			kicked++
			e.publish(events.KindKick, j)
		}
		e.processQueueLocked()
		e.Metrics.KickCt.Add(uint64(kicked))
		return kicked
	}

	for kicked < int(n) {
		j := e.delayQ.Peek()
		if j == nil {
			break
		}
		e.delayQ.Take()
		j.KickCt++
		j.Deadline = time.Now()
		if !e.giveReadyLocked(j) {
			break
		}
		kicked++
		e.publish(events.KindKick, j)
	}
	if kicked > 0 {
		e.processQueueLocked()
	}
	e.Metrics.KickCt.Add(uint64(kicked))
	return kicked
}

// PeekReady returns a copy of the highest-priority ready job, if any.
func (e *Engine) PeekReady() *job.Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	j := e.readyQ.Peek()
	if j == nil {
		return nil
	}
	return j.Copy()
}

// PeekBuried returns a copy of the oldest buried job, if any.
func (e *Engine) PeekBuried() *job.Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.buried.Len() == 0 {
		return nil
	}
	return e.buried.Front().Value.(*job.Job).Copy()
}

// PeekDelayed returns a copy of the soonest delayed job, if any.
func (e *Engine) PeekDelayed() *job.Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	j := e.delayQ.Peek()
	if j == nil {
		return nil
	}
	return j.Copy()
}

// peekBuriedOrDelayed implements bare peek: the highest-priority buried
// job if any are buried, else the soonest-deadline delayed job. Bare
// peek never looks at the ready queue — a consumer wanting a ready job
// reserves it instead.
func (e *Engine) peekBuriedOrDelayed() *job.Job {
	e.mu.Lock()
	var best *job.Job
	for el := e.buried.Front(); el != nil; el = el.Next() {
		j := el.Value.(*job.Job)
		if best == nil || readyLess(j, best) {
			best = j
		}
	}
	if best != nil {
		cp := best.Copy()
		e.mu.Unlock()
		return cp
	}
	e.mu.Unlock()
	return e.PeekDelayed()
}

// PeekID returns a copy of the job with the given id, in any state.
func (e *Engine) PeekID(id uint64) *job.Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	j, ok := e.jobs.Get(id)
	if !ok {
		return nil
	}
	return j.Copy()
}

package engine

import (
	"github.com/rmkadzi/workq/internal/conn"
	"github.com/rmkadzi/workq/internal/job"
)

// BeginReserve marks c as waiting and returns the channel a job (or nil,
// on cancellation) will arrive on. It attempts an immediate match via
// processQueueLocked before returning, so a ready job is often already
// buffered in the channel by the time the caller starts selecting on it.
//
// The worker flag and reserve counter are set here, immediately, rather
// than on eventual fulfillment: original_source/prot.c's CMD_RESERVE case
// calls conn_set_worker(c) and bumps reserve_ct before ever calling
// wait_for_job, whether or not a job is available yet.
func (e *Engine) BeginReserve(c *conn.Conn) chan *job.Job {
	ch := c.BeginWait()

	e.mu.Lock()
	c.IsWorker.Store(true)
	c.ReserveCt++
	e.Metrics.ReserveCt.Add(1)
	e.waitQ.PushBack(c)
	e.processQueueLocked()
	e.mu.Unlock()
	return ch
}

// CancelReserve removes c from the wait queue and unblocks its pending
// reserve with a nil delivery, used when the connection hangs up while
// waiting.
func (e *Engine) CancelReserve(c *conn.Conn) {
	e.mu.Lock()
	for el := e.waitQ.Front(); el != nil; el = el.Next() {
		if el.Value.(*conn.Conn) == c {
			e.waitQ.Remove(el)
			break
		}
	}
	e.mu.Unlock()
	c.CancelWait()
}

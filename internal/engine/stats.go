package engine

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/rmkadzi/workq/internal/conn"
	"github.com/rmkadzi/workq/internal/job"
)

// GlobalStats formats the reply body for the no-argument stats verb.
// Field order and names follow fmt_stats in the original server
// (current-jobs-*, cmd-*, job-timeouts, total-jobs, current-connections
// and friends, pid, version, rusage, uptime); tube-scoped and binlog
// fields have no analogue here since this module has neither.
func (e *Engine) GlobalStats() string {
	e.mu.Lock()
	ready := e.readyQ.Len()
	delayed := e.delayQ.Len()
	buried := e.buried.Len()
	waiting := e.waitQ.Len()
	urgent := e.urgentCt
	e.mu.Unlock()

	var producers, workers, reserved int
	e.Conns.Each(func(c *conn.Conn) {
		if c.IsProducer.Load() {
			producers++
		}
		if c.IsWorker.Load() {
			workers++
		}
		reserved += c.ReservedCount()
	})

	utime, stime := cpuTimes()

	var b strings.Builder
	fmt.Fprintf(&b, "current-jobs-urgent: %d\n", urgent)
	fmt.Fprintf(&b, "current-jobs-ready: %d\n", ready)
	fmt.Fprintf(&b, "current-jobs-reserved: %d\n", reserved)
	fmt.Fprintf(&b, "current-jobs-delayed: %d\n", delayed)
	fmt.Fprintf(&b, "current-jobs-buried: %d\n", buried)
	fmt.Fprintf(&b, "cmd-put: %d\n", e.Metrics.PutCt.Load())
	fmt.Fprintf(&b, "cmd-peek: %d\n", e.Metrics.PeekCt.Load())
	fmt.Fprintf(&b, "cmd-reserve: %d\n", e.Metrics.ReserveCt.Load())
	fmt.Fprintf(&b, "cmd-delete: %d\n", e.Metrics.DeleteCt.Load())
	fmt.Fprintf(&b, "cmd-release: %d\n", e.Metrics.ReleaseCt.Load())
	fmt.Fprintf(&b, "cmd-bury: %d\n", e.Metrics.BuryCt.Load())
	fmt.Fprintf(&b, "cmd-kick: %d\n", e.Metrics.KickCt.Load())
	fmt.Fprintf(&b, "cmd-stats: %d\n", e.Metrics.StatsCt.Load())
	fmt.Fprintf(&b, "job-timeouts: %d\n", e.Metrics.TimeoutCt.Load())
	fmt.Fprintf(&b, "total-jobs: %d\n", e.Metrics.TotalJobs.Load())
	fmt.Fprintf(&b, "current-connections: %d\n", e.Conns.Count())
	fmt.Fprintf(&b, "current-producers: %d\n", producers)
	fmt.Fprintf(&b, "current-workers: %d\n", workers)
	fmt.Fprintf(&b, "current-waiting: %d\n", waiting)
	fmt.Fprintf(&b, "total-connections: %d\n", e.Conns.TotalConnections())
	fmt.Fprintf(&b, "pid: %d\n", os.Getpid())
	fmt.Fprintf(&b, "version: %s\n", Version)
	fmt.Fprintf(&b, "rusage-utime: %.6f\n", utime)
	fmt.Fprintf(&b, "rusage-stime: %.6f\n", stime)
	fmt.Fprintf(&b, "uptime: %d\n", int64(time.Since(e.startTime).Seconds()))
	return b.String()
}

// JobStats formats the reply body for stats of a single job, or reports
// not-found. Field order follows fmt_job_stats: id, state, pri, age,
// delay, ttr, time-left, timeouts, releases, buries, kicks.
func (e *Engine) JobStats(id uint64) (string, bool) {
	j := e.PeekID(id)
	if j == nil {
		return "", false
	}

	now := time.Now()
	timeLeft := int64(0)
	if j.State == job.StateReserved || j.State == job.StateDelayed {
		if d := j.Deadline.Sub(now); d > 0 {
			timeLeft = int64(d.Seconds())
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "id: %d\n", j.ID)
	fmt.Fprintf(&b, "state: %s\n", j.State)
	fmt.Fprintf(&b, "pri: %d\n", j.Pri)
	fmt.Fprintf(&b, "age: %d\n", int64(now.Sub(j.Creation).Seconds()))
	fmt.Fprintf(&b, "delay: %d\n", j.Delay)
	fmt.Fprintf(&b, "ttr: %d\n", j.TTR)
	fmt.Fprintf(&b, "time-left: %d\n", timeLeft)
	fmt.Fprintf(&b, "timeouts: %d\n", j.TimeoutCt)
	fmt.Fprintf(&b, "releases: %d\n", j.ReleaseCt)
	fmt.Fprintf(&b, "buries: %d\n", j.BuryCt)
	fmt.Fprintf(&b, "kicks: %d\n", j.KickCt)
	return b.String(), true
}

// cpuTimes reports this process's user and system CPU time in seconds.
// getrusage is POSIX-only; on platforms where it's unavailable this
// degrades to zero rather than failing the stats verb.
func cpuTimes() (utime, stime float64) {
	if runtime.GOOS == "windows" {
		return 0, 0
	}
	var ru syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &ru); err != nil {
		return 0, 0
	}
	return float64(ru.Utime.Sec) + float64(ru.Utime.Usec)/1e6,
		float64(ru.Stime.Sec) + float64(ru.Stime.Usec)/1e6
}

package entitylock

import (
	"fmt"
	"github.com/VictoriaMetrics/metrics"
	"io"
	"time"
)

// lockerMetrics holds the counters of one locker. All metrics live in a
// private metrics.Set so several lockers (and tests) can coexist.
type lockerMetrics struct {
	set *metrics.Set

	acquired           *metrics.Counter
	reentered          *metrics.Counter
	timeouts           *metrics.Counter
	deadlocksPrevented *metrics.Counter
	interrupted        *metrics.Counter
	reclaimed          *metrics.Counter
	wait               *metrics.Histogram
}

func newLockerMetrics(name string, handles func() float64) *lockerMetrics {
	set := metrics.NewSet()
	label := func(metric string) string {
		return fmt.Sprintf(`%s{locker=%q}`, metric, name)
	}

	m := &lockerMetrics{
		set:                set,
		acquired:           set.NewCounter(label("entitylock_acquired_total")),
		reentered:          set.NewCounter(label("entitylock_reentered_total")),
		timeouts:           set.NewCounter(label("entitylock_timeouts_total")),
		deadlocksPrevented: set.NewCounter(label("entitylock_deadlocks_prevented_total")),
		interrupted:        set.NewCounter(label("entitylock_interrupted_total")),
		reclaimed:          set.NewCounter(label("entitylock_reclaimed_total")),
		wait:               set.NewHistogram(label("entitylock_wait_seconds")),
	}
	set.NewGauge(label("entitylock_handles"), handles)
	return m
}

// observeWait records how long a (non-reentrant) acquisition waited
func (m *lockerMetrics) observeWait(start time.Time) {
	m.wait.Update(time.Since(start).Seconds())
}

// Stats is a snapshot of the counters of a locker
type Stats struct {
	Acquired           uint64
	Reentered          uint64
	Timeouts           uint64
	DeadlocksPrevented uint64
	Interrupted        uint64
	Reclaimed          uint64
	Handles            int
}

func (s Stats) String() string {
	return fmt.Sprintf("acquired=%d reentered=%d timeouts=%d deadlocks_prevented=%d interrupted=%d reclaimed=%d handles=%d",
		s.Acquired, s.Reentered, s.Timeouts, s.DeadlocksPrevented, s.Interrupted, s.Reclaimed, s.Handles)
}

// Stats returns the current counters of the locker.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (l *EntityLocker[ID]) Stats() Stats {
	return Stats{
		Acquired:           l.metrics.acquired.Get(),
		Reentered:          l.metrics.reentered.Get(),
		Timeouts:           l.metrics.timeouts.Get(),
		DeadlocksPrevented: l.metrics.deadlocksPrevented.Get(),
		Interrupted:        l.metrics.interrupted.Get(),
		Reclaimed:          l.metrics.reclaimed.Get(),
		Handles:            l.registry.len(),
	}
}

// WritePrometheus writes the metrics of the locker in Prometheus text format
func (l *EntityLocker[ID]) WritePrometheus(w io.Writer) {
	l.metrics.set.WritePrometheus(w)
}

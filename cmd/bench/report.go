package bench

import (
	"fmt"
	gometrics "github.com/rcrowley/go-metrics"
	"io"
	"strings"
	"time"
)

// Check is one verified invariant of a scenario
type Check struct {
	Name     string
	Expected int64
	Actual   int64
}

func (c Check) OK() bool {
	return c.Expected == c.Actual
}

// Result is the outcome of one scenario run
type Result struct {
	Name     string
	Duration time.Duration
	Timer    gometrics.Timer // latency of one protected operation, waiting included
	Checks   []Check

	start time.Time
}

func newResult(name string) *Result {
	return &Result{
		Name:  name,
		Timer: newTimer(),
		start: time.Now(),
	}
}

func (r *Result) finish() {
	r.Duration = time.Since(r.start)
	r.Timer.Stop()
}

func (r *Result) check(name string, expected, actual int64) {
	r.Checks = append(r.Checks, Check{Name: name, Expected: expected, Actual: actual})
}

// Failed returns the checks that did not hold
func (r *Result) Failed() []Check {
	var failed []Check
	for _, c := range r.Checks {
		if !c.OK() {
			failed = append(failed, c)
		}
	}
	return failed
}

// Err returns an error describing the failed checks (nil if all held)
func (r *Result) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	names := make([]string, len(failed))
	for i, c := range failed {
		names[i] = fmt.Sprintf("%s (expected %d, got %d)", c.Name, c.Expected, c.Actual)
	}
	return fmt.Errorf("%s: %d check(s) failed: %s", r.Name, len(failed), strings.Join(names, ", "))
}

// Print writes a human-readable report of the result to w
func (r *Result) Print(w io.Writer) {
	status := "ok"
	if r.Err() != nil {
		status = "FAILED"
	}

	snapshot := r.Timer.Snapshot()
	ps := snapshot.Percentiles([]float64{0.5, 0.95, 0.99})

	fmt.Fprintf(w, "%s: %s (%s)\n", r.Name, status, r.Duration.Round(time.Microsecond))
	fmt.Fprintf(w, "  %-10s %d\n", "ops", snapshot.Count())
	fmt.Fprintf(w, "  %-10s %s\n", "mean", time.Duration(snapshot.Mean()).Round(time.Microsecond))
	fmt.Fprintf(w, "  %-10s %s / %s / %s\n", "p50/95/99",
		time.Duration(ps[0]).Round(time.Microsecond),
		time.Duration(ps[1]).Round(time.Microsecond),
		time.Duration(ps[2]).Round(time.Microsecond))
	fmt.Fprintf(w, "  %-10s %s\n", "max", time.Duration(snapshot.Max()).Round(time.Microsecond))

	for _, c := range r.Checks {
		mark := "ok"
		if !c.OK() {
			mark = "FAILED"
		}
		fmt.Fprintf(w, "  check %-26s expected %-10d got %-10d %s\n", c.Name, c.Expected, c.Actual, mark)
	}
}

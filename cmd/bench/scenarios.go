package bench

import (
	"context"
	"errors"
	"fmt"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/stden/EntityLocker/lib/common"
	"github.com/stden/EntityLocker/lib/entitycache"
	"github.com/stden/EntityLocker/lib/entitylock"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// scenario runs one workload against locker and returns its checked result
type scenario func(ctx context.Context, locker *entitylock.EntityLocker[int], conf *common.BenchConfig) (*Result, error)

const (
	counterID      = 1
	initialBalance = 1000
	maxTransfer    = 50
)

// runCounter increments a shared counter from many goroutines, each
// goroutine doing all of its increments inside one RunWithLock.
func runCounter(ctx context.Context, locker *entitylock.EntityLocker[int], conf *common.BenchConfig) (*Result, error) {
	res := newResult("counter")
	counter := 0

	err := parallel(conf.Threads, func(int) error {
		start := time.Now()
		err := locker.RunWithLock(ctx, counterID, func(context.Context) error {
			for i := 0; i < conf.Iterations; i++ {
				counter++
			}
			return nil
		})
		res.Timer.UpdateSince(start)
		return err
	})
	if err != nil {
		return nil, err
	}

	res.finish()
	res.check("counter", int64(conf.Threads*conf.Iterations), int64(counter))
	return res, nil
}

// runReentrant increments a counter in an outer and a nested lock of the same ID.
func runReentrant(ctx context.Context, locker *entitylock.EntityLocker[int], conf *common.BenchConfig) (*Result, error) {
	res := newResult("reentrant")
	counter := 0

	err := parallel(conf.Threads, func(int) error {
		for i := 0; i < conf.Iterations; i++ {
			start := time.Now()
			err := locker.RunWithLock(ctx, counterID, func(ctx context.Context) error {
				counter++
				return locker.RunWithLock(ctx, counterID, func(context.Context) error {
					counter++
					return nil
				})
			})
			res.Timer.UpdateSince(start)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.finish()
	res.check("counter", int64(2*conf.Threads*conf.Iterations), int64(counter))
	return res, nil
}

// runDeadlock lets one goroutine lock (1, 2) and another one (2, 1). The
// second goroutine's inner acquisition must be rejected every time.
func runDeadlock(ctx context.Context, locker *entitylock.EntityLocker[int], conf *common.BenchConfig) (*Result, error) {
	res := newResult("deadlock")
	var (
		counter12   atomic.Int64
		rejected    atomic.Int64
		innerCalled atomic.Int64
	)

	err := parallel(2, func(worker int) error {
		first, second := 1, 2
		if worker == 1 {
			first, second = 2, 1
		}
		for i := 0; i < conf.Iterations; i++ {
			start := time.Now()
			err := locker.RunWithLock(ctx, first, func(ctx context.Context) error {
				err := locker.RunWithLock(ctx, second, func(context.Context) error {
					if first < second {
						counter12.Add(1)
					} else {
						innerCalled.Add(1)
					}
					return nil
				})
				if errors.Is(err, entitylock.ErrDeadlockPrevented) {
					rejected.Add(1)
					return nil
				}
				return err
			})
			res.Timer.UpdateSince(start)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.finish()
	res.check("locked in order (1, 2)", int64(conf.Iterations), counter12.Load())
	res.check("rejected (2, 1)", int64(conf.Iterations), rejected.Load())
	res.check("inner action of rejected", 0, innerCalled.Load())
	return res, nil
}

// runTimeout holds an entity while every goroutine tries to lock it with a
// bounded wait. All attempts must time out after at least conf.Timeout.
func runTimeout(ctx context.Context, locker *entitylock.EntityLocker[int], conf *common.BenchConfig) (*Result, error) {
	res := newResult("timeout")
	var (
		ran      atomic.Int64
		timedOut atomic.Int64
		early    atomic.Int64
	)

	locked := make(chan struct{})
	waitersDone := make(chan struct{})
	holderErr := make(chan error, 1)
	go func() {
		holderErr <- locker.RunWithLock(ctx, counterID, func(context.Context) error {
			close(locked)
			<-waitersDone
			return nil
		})
	}()

	select {
	case <-locked:
	case err := <-holderErr:
		return nil, fmt.Errorf("holder could not lock entity %d: %w", counterID, err)
	}

	err := parallel(conf.Threads, func(int) error {
		start := time.Now()
		ok, err := locker.TryRunWithLock(ctx, counterID, conf.Timeout, func(context.Context) error {
			ran.Add(1)
			return nil
		})
		elapsed := time.Since(start)
		res.Timer.Update(elapsed)
		if err != nil {
			return err
		}
		if !ok {
			timedOut.Add(1)
			if elapsed < conf.Timeout {
				early.Add(1)
			}
		}
		return nil
	})
	close(waitersDone)
	if herr := <-holderErr; err == nil {
		err = herr
	}
	if err != nil {
		return nil, err
	}

	res.finish()
	res.check("timed out", int64(conf.Threads), timedOut.Load())
	res.check("actions run while held", 0, ran.Load())
	res.check("returned before timeout", 0, early.Load())
	return res, nil
}

// runTransfer moves random amounts between accounts of an entity cache. Every
// transfer locks both accounts (in whatever order they were drawn). The sum
// of all balances must be unchanged and no transfer may be rejected.
func runTransfer(ctx context.Context, locker *entitylock.EntityLocker[int], conf *common.BenchConfig) (*Result, error) {
	res := newResult("transfer")
	accounts := entitycache.New[int, int64](locker)
	for id := 0; id < conf.Accounts; id++ {
		if err := accounts.Put(ctx, id, initialBalance); err != nil {
			return nil, err
		}
	}
	rejectedBefore := locker.Stats().DeadlocksPrevented

	err := parallel(conf.Threads, func(worker int) error {
		rnd := rand.New(rand.NewSource(int64(worker) + 1))
		for i := 0; i < conf.Iterations; i++ {
			from, to := rnd.Intn(conf.Accounts), rnd.Intn(conf.Accounts)
			amount := int64(rnd.Intn(maxTransfer))

			start := time.Now()
			err := accounts.UpdateAll(ctx, []int{from, to}, func(_ context.Context, balances map[int]int64) error {
				balances[from] -= amount
				balances[to] += amount
				return nil
			})
			res.Timer.UpdateSince(start)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var total int64
	for id := 0; id < conf.Accounts; id++ {
		balance, _ := accounts.Get(id)
		total += balance
	}

	res.finish()
	res.check("total balance", int64(conf.Accounts*initialBalance), total)
	res.check("rejected transfers", 0, int64(locker.Stats().DeadlocksPrevented-rejectedBefore))
	return res, nil
}

// parallel runs fn in n goroutines and returns the first error
func parallel(n int, fn func(worker int) error) error {
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	wg.Add(n)
	for w := 0; w < n; w++ {
		go func(w int) {
			defer wg.Done()
			if err := fn(w); err != nil {
				once.Do(func() { firstErr = err })
			}
		}(w)
	}
	wg.Wait()
	return firstErr
}

// newTimer creates the latency timer of a scenario
func newTimer() gometrics.Timer {
	return gometrics.NewTimer()
}

// Package batch runs sequences of independent persistence calls with a bounded
// concurrency, an optional inter-launch delay and per-item retries.
//
// A failing item never aborts the batch; it is recorded in the Report and the
// remaining items continue.
package batch

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/example/workorder-scheduler/internal/logging"
)

// Policy controls how a batch is executed.
type Policy struct {
	// Concurrency is the maximum number of in-flight items. Values below one
	// run sequentially.
	Concurrency int
	// Delay is waited between two launches.
	Delay time.Duration
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// InitialBackoff and MaxBackoff bound the exponential retry wait.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultPolicy runs sequentially with a short throttle and no retries.
func DefaultPolicy() Policy {
	return Policy{
		Concurrency:    1,
		Delay:          50 * time.Millisecond,
		MaxRetries:     0,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
	}
}

// Sequential returns a copy of the policy limited to one in-flight item.
func (p Policy) Sequential() Policy {
	p.Concurrency = 1
	return p
}

func (p Policy) normalized() Policy {
	if p.Concurrency < 1 {
		p.Concurrency = 1
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 100 * time.Millisecond
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	return p
}

// Task is one unit of work in a batch.
type Task[T any] func(ctx context.Context) (T, error)

// Success is a completed item.
type Success[T any] struct {
	Index int
	Value T
}

// Failure is an item that exhausted its attempts or was never launched.
type Failure struct {
	Index    int
	Err      error
	Attempts int
}

// Report collects the outcome of a batch ordered by submission index.
type Report[T any] struct {
	Succeeded []Success[T]
	Failed    []Failure
}

// Values returns the successful values in submission order.
func (r Report[T]) Values() []T {
	values := make([]T, 0, len(r.Succeeded))
	for _, s := range r.Succeeded {
		values = append(values, s.Value)
	}
	return values
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Run executes tasks under policy. Every task ends up in exactly one of the
// report's lists. Once ctx is cancelled no further task is launched and the
// remaining ones fail with the context error; items already written are kept.
func Run[T any](ctx context.Context, policy Policy, tasks []Task[T]) Report[T] {
	policy = policy.normalized()
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = slog.Default()
	}

	var (
		mu     sync.Mutex
		report Report[T]
	)
	record := func(index int, value T, attempts int, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			report.Failed = append(report.Failed, Failure{Index: index, Err: err, Attempts: attempts})
			return
		}
		report.Succeeded = append(report.Succeeded, Success[T]{Index: index, Value: value})
	}

	group := new(errgroup.Group)
	group.SetLimit(policy.Concurrency)

	for i, task := range tasks {
		if i > 0 && policy.Delay > 0 {
			if err := wait(ctx, policy.Delay); err != nil {
				failRemaining(i, len(tasks), err, record)
				break
			}
		}
		if err := ctx.Err(); err != nil {
			failRemaining(i, len(tasks), err, record)
			break
		}

		index, task := i, task
		group.Go(func() error {
			value, attempts, err := attempt(ctx, policy, task, logger.With("batch_index", index))
			record(index, value, attempts, err)
			return nil
		})
	}

	_ = group.Wait()

	sort.Slice(report.Succeeded, func(i, j int) bool { return report.Succeeded[i].Index < report.Succeeded[j].Index })
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].Index < report.Failed[j].Index })
	return report
}

func attempt[T any](ctx context.Context, policy Policy, task Task[T], logger *slog.Logger) (T, int, error) {
	attempts := 0
	operation := func() (T, error) {
		attempts++
		value, err := task(ctx)
		if err != nil && ctx.Err() != nil {
			return value, backoff.Permanent(err)
		}
		return value, err
	}

	if policy.MaxRetries == 0 {
		value, err := operation()
		return value, attempts, unwrapPermanent(err)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = policy.InitialBackoff
	expo.MaxInterval = policy.MaxBackoff
	expo.MaxElapsedTime = 0

	strategy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(policy.MaxRetries)), ctx)
	notify := func(err error, wait time.Duration) {
		logger.Warn("batch item failed, retrying", "attempt", attempts, "retry_in", wait, "error", err)
	}

	value, err := backoff.RetryNotifyWithData(operation, strategy, notify)
	return value, attempts, unwrapPermanent(err)
}

func unwrapPermanent(err error) error {
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}

func failRemaining[T any](from, to int, err error, record func(int, T, int, error)) {
	var zero T
	for i := from; i < to; i++ {
		record(i, zero, 0, err)
	}
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package batch runs many independent operations with bounded
// concurrency, optionally in chunks separated by a fixed delay.
//
// Every item is attempted.  A failing item never stops the others;
// the caller receives an Outcome for each item plus a *BatchError
// naming the first failure.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Status is the result of one item.
type Status int

const (
	Success Status = iota
	Failure
)

func (s Status) String() string {
	if s == Success {
		return "success"
	}
	return "failure"
}

// Outcome records what happened to one item.
type Outcome[T, R any] struct {
	Item   T
	Index  int
	Status Status
	Value  R
	Err    error
}

// Options controls how a batch runs.
type Options[T any] struct {
	// Maximum operations in flight.  Values below 1 mean 1.
	Concurrency int

	// Items per chunk when ChunkDelay is set.  Zero means
	// Concurrency.
	ChunkSize int

	// Pause between chunks.  Zero disables chunking: items are
	// fed through a sliding window of Concurrency slots.
	ChunkDelay time.Duration

	// Key identifies an item in errors.  Defaults to the item's
	// %v formatting.
	Key func(T) string
}

// BatchError reports that at least one item failed.
type BatchError struct {
	// Key and Err of the first failing item, in item order.
	Key string
	Err error

	// Number of failed items.
	Failed int
	Total  int
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch: %d of %d items failed; first %q: %v", e.Failed, e.Total, e.Key, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// Run applies op to every item.  The returned slice always has one
// Outcome per item, in item order.
func Run[T, R any](ctx context.Context, items []T, opts Options[T], op func(context.Context, T) (R, error)) ([]Outcome[T, R], error) {
	outcomes := make([]Outcome[T, R], len(items))
	if len(items) == 0 {
		return outcomes, nil
	}
	n := opts.Concurrency
	if n < 1 {
		n = 1
	}

	if opts.ChunkDelay <= 0 {
		runWindow(ctx, items, 0, len(items), n, outcomes, op)
	} else {
		size := opts.ChunkSize
		if size < 1 {
			size = n
		}
		for start := 0; start < len(items); start += size {
			if start > 0 {
				if err := sleep(ctx, opts.ChunkDelay); err != nil {
					failRemaining(items, start, outcomes, err)
					break
				}
			}
			end := start + size
			if end > len(items) {
				end = len(items)
			}
			runWindow(ctx, items, start, end, n, outcomes, op)
		}
	}

	return outcomes, firstFailure(outcomes, opts.Key)
}

// Values returns the successful values, in item order.
func Values[T, R any](outcomes []Outcome[T, R]) []R {
	var out []R
	for _, o := range outcomes {
		if o.Status == Success {
			out = append(out, o.Value)
		}
	}
	return out
}

// runWindow processes items[start:end] with at most n in flight.
// Each goroutine writes only its own slot of outcomes.
func runWindow[T, R any](ctx context.Context, items []T, start, end, n int, outcomes []Outcome[T, R], op func(context.Context, T) (R, error)) {
	// errgroup.WithContext would cancel siblings on the first
	// failure; the op errors are recorded, never returned.
	var grp errgroup.Group
	grp.SetLimit(n)
	for i := start; i < end; i++ {
		item := items[i]
		if err := ctx.Err(); err != nil {
			outcomes[i] = Outcome[T, R]{Item: item, Index: i, Status: Failure, Err: err}
			continue
		}
		grp.Go(func() error {
			outcomes[i] = call(ctx, i, item, op)
			return nil
		})
	}
	grp.Wait()
}

func call[T, R any](ctx context.Context, i int, item T, op func(context.Context, T) (R, error)) (o Outcome[T, R]) {
	o = Outcome[T, R]{Item: item, Index: i}
	defer func() {
		if r := recover(); r != nil {
			o.Status = Failure
			o.Err = errors.Errorf("panic: %v", r)
		}
	}()
	v, err := op(ctx, item)
	if err != nil {
		o.Status = Failure
		o.Err = err
		return o
	}
	o.Status = Success
	o.Value = v
	return o
}

func failRemaining[T, R any](items []T, start int, outcomes []Outcome[T, R], err error) {
	for i := start; i < len(items); i++ {
		outcomes[i] = Outcome[T, R]{Item: items[i], Index: i, Status: Failure, Err: err}
	}
}

func firstFailure[T, R any](outcomes []Outcome[T, R], key func(T) string) error {
	var berr *BatchError
	for _, o := range outcomes {
		if o.Status != Failure {
			continue
		}
		if berr == nil {
			k := fmt.Sprintf("%v", o.Item)
			if key != nil {
				k = key(o.Item)
			}
			berr = &BatchError{Key: k, Err: o.Err, Total: len(outcomes)}
		}
		berr.Failed++
	}
	if berr == nil {
		return nil
	}
	return berr
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

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

// Package sync turns mailbox history into pipeline runs.  One pass
// lists the messages added since the stored history position, runs
// the mailbox update pipeline once per changed thread, runs the
// auto-draft pipeline for threads that received mail, and then
// advances the stored position.
package sync

import (
	"context"
	"log"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/matta/threadmind/internal/message"
	"github.com/matta/threadmind/internal/workflow"
)

// Result describes one sync pass.
type Result struct {
	Account string

	// From and To are the history positions processed.  From is
	// zero for a pass that only recorded a baseline.
	From, To uint64

	// Baseline is set when no work was done because the pass only
	// recorded the mailbox's current position.
	Baseline bool

	// Threads lists the changed threads in first-seen order.
	Threads []string

	Outcomes []*workflow.Outcome

	// Failures counts pipeline runs that ended in a transient error.
	Failures int
}

// changedThread is a thread touched by new history.
type changedThread struct {
	id string

	// inbound is set if any new message was not sent by the owner.
	inbound bool
}

func listAdded(ctx context.Context, historyID uint64, src HistoryLister, added chan<- *message.Added) error {
	defer close(added)
	err := src.ListFrom(ctx, historyID, func(a *message.Added) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case added <- a:
			return nil
		}
	})
	if err != nil {
		return errors.Wrap(err, "unable to retrieve incremental messages")
	}
	return nil
}

func collectThreads(added <-chan *message.Added) []*changedThread {
	var order []*changedThread
	seen := make(map[string]*changedThread)
	for a := range added {
		if a.ThreadID == "" {
			continue
		}
		t, ok := seen[a.ThreadID]
		if !ok {
			t = &changedThread{id: a.ThreadID}
			seen[a.ThreadID] = t
			order = append(order, t)
		}
		if !a.Outbound() {
			t.inbound = true
		}
	}
	return order
}

func changedThreads(ctx context.Context, historyID uint64, src HistoryLister) ([]*changedThread, error) {
	grp, ctx := errgroup.WithContext(ctx)
	added := make(chan *message.Added, 1000)
	grp.Go(func() error {
		return listAdded(ctx, historyID, src, added)
	})
	var threads []*changedThread
	grp.Go(func() error {
		threads = collectThreads(added)
		return nil
	})
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return threads, nil
}

func baseline(ctx context.Context, store HistoryStore, res *Result) (*Result, error) {
	if err := store.WriteHistoryID(ctx, res.To); err != nil {
		return nil, errors.Wrap(err, "recording baseline history id")
	}
	res.Baseline = true
	return res, nil
}

// runPipeline records a run, returning only fatal errors.
func runPipeline(ctx context.Context, res *Result, name, threadID string,
	run func(context.Context, string) (*workflow.Outcome, error)) error {
	outcome, err := run(ctx, threadID)
	if outcome != nil {
		res.Outcomes = append(res.Outcomes, outcome)
	}
	if err == nil {
		return nil
	}
	if message.IsFatal(err) {
		return errors.Wrapf(err, "%s on thread %s", name, threadID)
	}
	res.Failures++
	log.Printf("sync: thread=%s %s: %v", threadID, name, err)
	return nil
}

// Sync runs one pass.  A fatal provider error stops the pass without
// advancing the stored history position, so the next pass sees the
// same changes again.
func Sync(ctx context.Context, src HistorySource, store HistoryStore, runner PipelineRunner) (*Result, error) {
	profile, err := src.GetProfile(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sync")
	}
	historyID, err := store.LatestHistoryID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sync")
	}
	res := &Result{Account: profile.EmailAddress, To: profile.HistoryID}

	switch {
	case historyID == 0:
		log.Println("Recording baseline History ID", profile.HistoryID, "for", profile.EmailAddress)
		return baseline(ctx, store, res)
	case historyID == profile.HistoryID:
		res.From = historyID
		return res, nil
	case historyID > profile.HistoryID:
		log.Println("History ID", historyID, "is ahead of the mailbox at", profile.HistoryID, "; recording a new baseline")
		return baseline(ctx, store, res)
	}

	log.Println("Incremental sync from", historyID, "to", profile.HistoryID, "for", profile.EmailAddress)
	res.From = historyID
	threads, err := changedThreads(ctx, historyID, src)
	if errors.Is(err, message.ErrHistoryExpired) {
		log.Println("History ID", historyID, "expired; recording a new baseline")
		res.From = 0
		return baseline(ctx, store, res)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to sync")
	}

	for _, t := range threads {
		if err := ctx.Err(); err != nil {
			return res, errors.Wrap(err, "failed to sync")
		}
		res.Threads = append(res.Threads, t.id)
		if err := runPipeline(ctx, res, workflow.MailboxUpdate, t.id, runner.MailboxUpdate); err != nil {
			return res, errors.Wrap(err, "failed to sync")
		}
		if !t.inbound {
			continue
		}
		if err := runPipeline(ctx, res, workflow.AutoDraft, t.id, runner.AutoDraft); err != nil {
			return res, errors.Wrap(err, "failed to sync")
		}
	}

	if err := ctx.Err(); err != nil {
		return res, errors.Wrap(err, "failed to sync")
	}
	if err := store.WriteHistoryID(ctx, profile.HistoryID); err != nil {
		return res, errors.Wrap(err, "failed to sync")
	}
	log.Printf("sync: processed %d threads, %d failures", len(threads), res.Failures)
	return res, nil
}

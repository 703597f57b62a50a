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

// Package workflow runs the per-thread processing pipelines: the
// mailbox update pipeline (embeddings, summary, labels) and the
// auto-draft pipeline.
//
// A pipeline is a fixed list of steps run strictly in order against
// one thread.  Steps communicate only through the run's results.  A
// failing step is logged and replaced by a neutral result so later
// steps degrade instead of failing; only a fatal provider error
// stops a run early.
package workflow

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"

	"github.com/matta/threadmind/internal/message"
)

// Pipeline names.
const (
	MailboxUpdate = "mailbox-update"
	AutoDraft     = "auto-draft"
)

// errSkip is returned by a step that has nothing to do.
var errSkip = errors.New("skipped")

// Context is the working set for one pipeline run against one
// thread.  It must not be shared between runs.
type Context struct {
	ThreadID     string
	ConnectionID string
	ProviderID   string

	// The thread being processed.  Loaded through Provider when
	// nil at the start of a run.
	Thread *message.Thread

	Connection message.Connection
	Provider   MailProvider

	results *results
}

// NewContext returns a run context for threadID on conn.
func NewContext(conn message.Connection, provider MailProvider, threadID string) *Context {
	return &Context{
		ThreadID:     threadID,
		ConnectionID: conn.ID,
		ProviderID:   conn.ProviderID,
		Connection:   conn,
		Provider:     provider,
	}
}

// Status is the result of a single step.
type Status string

const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// StepReport describes how one step went.
type StepReport struct {
	Step    StepID
	Status  Status
	Err     error
	Elapsed time.Duration
}

// Outcome describes a whole run.
type Outcome struct {
	RunID    string
	Pipeline string
	ThreadID string
	Steps    []StepReport

	// Aborted is set when a fatal provider error stopped the run.
	Aborted bool
}

// Failed returns the reports of failed steps.
func (o *Outcome) Failed() []StepReport {
	var out []StepReport
	for _, r := range o.Steps {
		if r.Status == StatusFailed {
			out = append(out, r)
		}
	}
	return out
}

// Report returns the report for step id, if it ran.
func (o *Outcome) Report(id StepID) (StepReport, bool) {
	for _, r := range o.Steps {
		if r.Step == id {
			return r, true
		}
	}
	return StepReport{}, false
}

// step is one entry in a pipeline.  run stores the step's result
// itself, through its typed key.
type step struct {
	id  StepID
	run func(ctx context.Context, c *Context) error
}

// defineStep adapts a typed step function.  On failure the neutral
// value is stored in place of a result; on errSkip nothing is
// stored.
func defineStep[T any](k key[T], neutral T, fn func(context.Context, *Context) (T, error)) step {
	return step{
		id: k.id,
		run: func(ctx context.Context, c *Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = errors.Errorf("panic: %v", r)
				}
				if err != nil && err != errSkip {
					if perr := c.results.put(k.id, neutral); perr != nil {
						log.Printf("workflow: thread=%s step=%s: %v", c.ThreadID, k.id, perr)
					}
				}
			}()
			v, err := fn(ctx, c)
			if err != nil {
				return err
			}
			return c.results.put(k.id, v)
		},
	}
}

// Engine runs pipelines.  One Engine may serve many connections and
// many concurrent runs; all per-run state lives in Context.
type Engine struct {
	ai       Inference
	messages VectorStore
	threads  VectorStore
}

// NewEngine returns an Engine.  messages holds per-message summary
// vectors keyed by message ID, threads holds per-thread summary
// vectors keyed by thread ID.
func NewEngine(ai Inference, messages, threads VectorStore) *Engine {
	return &Engine{ai: ai, messages: messages, threads: threads}
}

// RunMailboxUpdate brings the thread's embeddings, summary and
// labels up to date.  It is safe to call repeatedly on an unchanged
// thread.  The only error returned is a fatal provider error (or a
// failure to load the thread), in which case the partial Outcome is
// returned too.
func (e *Engine) RunMailboxUpdate(ctx context.Context, c *Context) (*Outcome, error) {
	return e.run(ctx, MailboxUpdate, c, e.mailboxUpdateSteps())
}

// RunAutoDraft writes a reply draft when the connection allows it
// and the newest message seems to need an answer.
func (e *Engine) RunAutoDraft(ctx context.Context, c *Context) (*Outcome, error) {
	return e.run(ctx, AutoDraft, c, e.autoDraftSteps())
}

func (e *Engine) mailboxUpdateSteps() []step {
	return []step{
		defineStep(findMessagesKey, vectorizeDelta{}, e.findMessagesToVectorize),
		defineStep(vectorizeKey, []MessageVector{}, e.vectorizeMessages),
		defineStep(upsertEmbeddingsKey, upsertResult{}, e.upsertEmbeddings),
		defineStep(existingSummaryKey, (*ThreadSummary)(nil), e.checkExistingSummary),
		defineStep(threadSummaryKey, (*summaryResult)(nil), e.generateThreadSummary),
		defineStep(upsertSummaryKey, upsertResult{}, e.upsertThreadSummary),
		defineStep(userLabelsKey, []message.LabelRef{}, e.getUserLabels),
		defineStep(labelsKey, (*labelResult)(nil), e.generateLabels),
		defineStep(applyLabelsKey, applyResult{}, e.applyLabels),
	}
}

func (e *Engine) autoDraftSteps() []step {
	return []step{
		defineStep(shouldDraftKey, false, e.shouldGenerateDraft),
		defineStep(intentKey, Intent{}, e.analyzeEmailIntent),
		defineStep(responseNeededKey, false, e.validateResponseNeeded),
		defineStep(draftContentKey, "", e.generateAutomaticDraft),
		defineStep(createDraftKey, draftResult{}, e.createDraft),
	}
}

func newRunID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0)).String()
}

func (e *Engine) run(ctx context.Context, pipeline string, c *Context, steps []step) (*Outcome, error) {
	out := &Outcome{RunID: newRunID(), Pipeline: pipeline, ThreadID: c.ThreadID}
	c.results = newResults()

	if c.Thread == nil {
		t, err := c.Provider.GetThread(ctx, c.ThreadID)
		if err != nil {
			out.Aborted = message.IsFatal(err)
			for _, s := range steps {
				out.Steps = append(out.Steps, StepReport{Step: s.id, Status: StatusSkipped})
			}
			return out, errors.Wrapf(err, "%s: loading thread %s", pipeline, c.ThreadID)
		}
		c.Thread = t
	}

	for _, s := range steps {
		start := time.Now()
		err := s.run(ctx, c)
		report := StepReport{Step: s.id, Status: StatusOK, Elapsed: time.Since(start)}
		switch {
		case err == nil:
		case err == errSkip:
			report.Status = StatusSkipped
		default:
			report.Status = StatusFailed
			report.Err = err
		}
		out.Steps = append(out.Steps, report)

		if err != nil && err != errSkip {
			if message.IsFatal(err) {
				log.Printf("workflow: thread=%s step=%s: fatal, aborting %s: %v", c.ThreadID, s.id, pipeline, err)
				out.Aborted = true
				return out, errors.Wrapf(err, "%s: step %s", pipeline, s.id)
			}
			log.Printf("workflow: thread=%s step=%s: %v", c.ThreadID, s.id, err)
		}
	}
	return out, nil
}

// String summarizes the outcome on one line.
func (o *Outcome) String() string {
	ok, skipped, failed := 0, 0, 0
	for _, r := range o.Steps {
		switch r.Status {
		case StatusOK:
			ok++
		case StatusSkipped:
			skipped++
		case StatusFailed:
			failed++
		}
	}
	s := fmt.Sprintf("%s %s thread=%s ok=%d skipped=%d failed=%d", o.RunID, o.Pipeline, o.ThreadID, ok, skipped, failed)
	if o.Aborted {
		s += " aborted"
	}
	return s
}

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

package workflow

import (
	"context"
	"log"
	"strings"

	"github.com/pkg/errors"

	"github.com/matta/threadmind/internal/message"
	"github.com/matta/threadmind/internal/threadtext"
)

const (
	CheckExistingSummary  StepID = "checkExistingSummary"
	GenerateThreadSummary StepID = "generateThreadSummary"
	UpsertThreadSummary   StepID = "upsertThreadSummary"
)

var (
	existingSummaryKey = key[*ThreadSummary]{CheckExistingSummary}
	threadSummaryKey   = key[*summaryResult]{GenerateThreadSummary}
	upsertSummaryKey   = key[upsertResult]{UpsertThreadSummary}
)

// ThreadSummary is the persisted running summary of a thread.
type ThreadSummary struct {
	Summary string

	// ID of the newest message the summary covers.
	LastMessageID string

	Embedding []float32
}

type summaryResult struct {
	ThreadSummary

	// False when the stored summary was already current and is
	// returned unchanged.
	Regenerated bool
}

// summaryFromVector validates a stored thread summary.  Malformed
// metadata means there is no usable summary.
func summaryFromVector(v *message.Vector) *ThreadSummary {
	summary, ok := v.String(message.MetaSummary)
	if !ok {
		return nil
	}
	lastMsg, ok := v.String(message.MetaLastMsg)
	if !ok {
		return nil
	}
	return &ThreadSummary{Summary: summary, LastMessageID: lastMsg, Embedding: v.Values}
}

func (e *Engine) checkExistingSummary(ctx context.Context, c *Context) (*ThreadSummary, error) {
	vectors, err := e.threads.GetByIDs(ctx, []string{c.ThreadID})
	if err != nil {
		return nil, errors.Wrap(err, "looking up thread summary")
	}
	for i := range vectors {
		if vectors[i].ID == c.ThreadID {
			return summaryFromVector(&vectors[i]), nil
		}
	}
	return nil, nil
}

func (e *Engine) generateThreadSummary(ctx context.Context, c *Context) (*summaryResult, error) {
	latest := c.Thread.Latest()
	if latest == nil {
		return nil, errSkip
	}
	existing, _ := lookup(c.results, existingSummaryKey)
	if existing != nil && existing.LastMessageID == latest.ID {
		return &summaryResult{ThreadSummary: *existing}, nil
	}

	hasContent := false
	for i := range c.Thread.Messages {
		if threadtext.HasContent(&c.Thread.Messages[i]) {
			hasContent = true
			break
		}
	}
	if !hasContent {
		return nil, errSkip
	}

	var system, user string
	if existing != nil {
		system, user = resummarizeThreadPrompt, resummarizeThreadInput(existing.Summary, threadtext.Thread(c.Thread))
	} else {
		system, user = summarizeThreadPrompt, threadtext.Thread(c.Thread)
	}
	summary, err := e.ai.Chat(ctx, system, user)
	if err != nil {
		return nil, errors.Wrap(err, "summarizing thread")
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return nil, errors.New("empty thread summary")
	}

	res := &summaryResult{
		ThreadSummary: ThreadSummary{Summary: summary, LastMessageID: latest.ID},
		Regenerated:   true,
	}
	embedding, err := e.ai.Embed(ctx, summary)
	if err != nil {
		// The summary is still good for labeling.
		log.Printf("workflow: thread=%s step=%s: embedding summary: %v", c.ThreadID, GenerateThreadSummary, err)
	} else {
		res.Embedding = embedding
	}
	return res, nil
}

func (e *Engine) upsertThreadSummary(ctx context.Context, c *Context) (upsertResult, error) {
	res, _ := lookup(c.results, threadSummaryKey)
	if res == nil || !res.Regenerated || res.Summary == "" || len(res.Embedding) == 0 {
		return upsertResult{}, errSkip
	}
	v := message.Vector{
		ID:     c.ThreadID,
		Values: res.Embedding,
		Metadata: map[string]any{
			message.MetaConnection: c.ConnectionID,
			message.MetaThread:     c.ThreadID,
			message.MetaSummary:    res.Summary,
			message.MetaLastMsg:    res.LastMessageID,
		},
	}
	if err := e.threads.Upsert(ctx, []message.Vector{v}); err != nil {
		return upsertResult{}, errors.Wrap(err, "upserting thread summary")
	}
	return upsertResult{Count: 1}, nil
}

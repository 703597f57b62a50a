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

	"github.com/matta/threadmind/internal/batch"
	"github.com/matta/threadmind/internal/message"
	"github.com/matta/threadmind/internal/threadtext"
)

// AIConcurrency bounds concurrent inference calls within a step.
const AIConcurrency = 3

const (
	FindMessagesToVectorize StepID = "findMessagesToVectorize"
	VectorizeMessages       StepID = "vectorizeMessages"
	UpsertEmbeddings        StepID = "upsertEmbeddings"
)

var (
	findMessagesKey     = key[vectorizeDelta]{FindMessagesToVectorize}
	vectorizeKey        = key[[]MessageVector]{VectorizeMessages}
	upsertEmbeddingsKey = key[upsertResult]{UpsertEmbeddings}
)

// vectorizeDelta splits a thread's messages into those that still
// need an embedding and those that already have one.
type vectorizeDelta struct {
	Pending  []message.Message
	Existing []string
}

// MessageVector is a freshly summarized and embedded message.
type MessageVector struct {
	MessageID string
	Summary   string
	Embedding []float32
}

type upsertResult struct {
	Count int
}

func (e *Engine) findMessagesToVectorize(ctx context.Context, c *Context) (vectorizeDelta, error) {
	ids := c.Thread.MessageIDs()
	if len(ids) == 0 {
		return vectorizeDelta{}, errSkip
	}
	existing, err := e.messages.GetByIDs(ctx, ids)
	if err != nil {
		return vectorizeDelta{}, errors.Wrap(err, "looking up message vectors")
	}
	done := make(map[string]bool, len(existing))
	for _, v := range existing {
		done[v.ID] = true
	}

	var d vectorizeDelta
	for _, m := range c.Thread.Messages {
		if done[m.ID] {
			d.Existing = append(d.Existing, m.ID)
		} else {
			d.Pending = append(d.Pending, m)
		}
	}
	if len(d.Pending) == 0 {
		return d, errSkip
	}
	return d, nil
}

func (e *Engine) vectorizeMessages(ctx context.Context, c *Context) ([]MessageVector, error) {
	delta, ok := lookup(c.results, findMessagesKey)
	if !ok || len(delta.Pending) == 0 {
		return nil, errSkip
	}

	outcomes, err := batch.Run(ctx, delta.Pending, batch.Options[message.Message]{
		Concurrency: AIConcurrency,
		Key:         func(m message.Message) string { return m.ID },
	}, e.vectorizeMessage)
	if err != nil {
		// Partial failure; the successful vectors are still used.
		log.Printf("workflow: thread=%s step=%s: %v", c.ThreadID, VectorizeMessages, err)
	}

	var vectors []MessageVector
	for _, v := range batch.Values(outcomes) {
		if v != nil {
			vectors = append(vectors, *v)
		}
	}
	return vectors, nil
}

// vectorizeMessage summarizes one message and embeds the summary.
// Messages too sparse to summarize yield nil.
func (e *Engine) vectorizeMessage(ctx context.Context, m message.Message) (*MessageVector, error) {
	text := threadtext.Message(&m)
	if text == "" {
		return nil, nil
	}
	summary, err := e.ai.Chat(ctx, summarizeMessagePrompt, text)
	if err != nil {
		return nil, errors.Wrapf(err, "summarizing message %s", m.ID)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return nil, errors.Errorf("empty summary for message %s", m.ID)
	}
	embedding, err := e.ai.Embed(ctx, summary)
	if err != nil {
		return nil, errors.Wrapf(err, "embedding message %s", m.ID)
	}
	if len(embedding) == 0 {
		return nil, errors.Errorf("empty embedding for message %s", m.ID)
	}
	return &MessageVector{MessageID: m.ID, Summary: summary, Embedding: embedding}, nil
}

func (e *Engine) upsertEmbeddings(ctx context.Context, c *Context) (upsertResult, error) {
	vectors, ok := lookup(c.results, vectorizeKey)
	if !ok || len(vectors) == 0 {
		return upsertResult{}, errSkip
	}
	records := make([]message.Vector, 0, len(vectors))
	for _, v := range vectors {
		records = append(records, message.Vector{
			ID:     v.MessageID,
			Values: v.Embedding,
			Metadata: map[string]any{
				message.MetaConnection: c.ConnectionID,
				message.MetaThread:     c.ThreadID,
				message.MetaSummary:    v.Summary,
			},
		})
	}
	if err := e.messages.Upsert(ctx, records); err != nil {
		return upsertResult{}, errors.Wrap(err, "upserting message vectors")
	}
	return upsertResult{Count: len(records)}, nil
}

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
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/matta/threadmind/internal/message"
)

// fakeAI answers chat prompts by system prompt.  Every call is
// counted.
type fakeAI struct {
	mu sync.Mutex

	// Answers keyed by system prompt.  Missing prompts answer with
	// "summary of" plus the first line of the user prompt.
	answers map[string]string

	// Chat fails when the user prompt contains failOn.
	failOn  string
	chatErr error

	embedErr error

	chats   int
	embeds  int
	systems []string
	users   []string
}

func (f *fakeAI) Chat(ctx context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats++
	f.systems = append(f.systems, system)
	f.users = append(f.users, user)
	if f.chatErr != nil {
		return "", f.chatErr
	}
	if f.failOn != "" && strings.Contains(user, f.failOn) {
		return "", errors.Errorf("chat failed on %q", f.failOn)
	}
	if a, ok := f.answers[system]; ok {
		return a, nil
	}
	return "summary of " + strings.SplitN(user, "\n", 2)[0], nil
}

func (f *fakeAI) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embeds++
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return []float32{float32(len(text)), 1}, nil
}

func (f *fakeAI) counts() (chats, embeds int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chats, f.embeds
}

type fakeIndex struct {
	mu      sync.Mutex
	vectors map[string]message.Vector
	upserts int
	getErr  error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{vectors: map[string]message.Vector{}}
}

func (f *fakeIndex) GetByIDs(ctx context.Context, ids []string) ([]message.Vector, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	var out []message.Vector
	for _, id := range ids {
		if v, ok := f.vectors[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeIndex) Upsert(ctx context.Context, vectors []message.Vector) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	for _, v := range vectors {
		f.vectors[v.ID] = v
	}
	return nil
}

type modifyCall struct {
	ThreadIDs []string
	Add       []string
	Remove    []string
}

type fakeProvider struct {
	threads map[string]*message.Thread
	labels  []message.LabelRef
	topics  []message.TopicLabel

	getErr    error
	labelsErr error
	modifyErr error

	modifies []modifyCall
	drafts   []message.Draft
}

func (f *fakeProvider) GetThread(ctx context.Context, id string) (*message.Thread, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	t, ok := f.threads[id]
	if !ok {
		return nil, errors.Errorf("no thread %s", id)
	}
	return t, nil
}

func (f *fakeProvider) GetUserLabels(ctx context.Context) ([]message.LabelRef, error) {
	if f.labelsErr != nil {
		return nil, f.labelsErr
	}
	return f.labels, nil
}

func (f *fakeProvider) GetUserTopics(ctx context.Context) ([]message.TopicLabel, error) {
	return f.topics, nil
}

func (f *fakeProvider) CreateLabel(ctx context.Context, name string) (*message.LabelRef, error) {
	l := message.LabelRef{ID: "Label_" + name, Name: name, Type: "user"}
	f.labels = append(f.labels, l)
	return &l, nil
}

func (f *fakeProvider) ModifyLabels(ctx context.Context, threadIDs []string, add, remove []string) error {
	if f.modifyErr != nil {
		return f.modifyErr
	}
	f.modifies = append(f.modifies, modifyCall{ThreadIDs: threadIDs, Add: add, Remove: remove})
	return nil
}

func (f *fakeProvider) CreateDraft(ctx context.Context, d *message.Draft) (string, error) {
	f.drafts = append(f.drafts, *d)
	return "draft-1", nil
}

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

// This file declares the collaborators the pipelines consume.

import (
	"context"

	"github.com/matta/threadmind/internal/message"
)

// Inference runs chat completions and produces embeddings.
type Inference interface {
	Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorStore is a key-value store of embeddings with metadata.
// Upsert replaces any existing vector with the same ID.
type VectorStore interface {
	GetByIDs(ctx context.Context, ids []string) ([]message.Vector, error)
	Upsert(ctx context.Context, vectors []message.Vector) error
}

// ThreadGetter fetches a thread with its messages and labels.
type ThreadGetter interface {
	GetThread(ctx context.Context, id string) (*message.Thread, error)
}

// LabelManager reads and mutates provider labels.
type LabelManager interface {
	GetUserLabels(ctx context.Context) ([]message.LabelRef, error)
	GetUserTopics(ctx context.Context) ([]message.TopicLabel, error)
	CreateLabel(ctx context.Context, name string) (*message.LabelRef, error)
	ModifyLabels(ctx context.Context, threadIDs []string, add, remove []string) error
}

// DraftCreator writes drafts.
type DraftCreator interface {
	CreateDraft(ctx context.Context, d *message.Draft) (string, error)
}

// MailProvider is everything a pipeline needs from one mailbox
// connection.  Errors are classified as message.ProviderError.
type MailProvider interface {
	ThreadGetter
	LabelManager
	DraftCreator
}

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

package sync

// This file declares what a sync pass consumes.

import (
	"context"

	"github.com/matta/threadmind/internal/message"
	"github.com/matta/threadmind/internal/workflow"
)

// HistoryLister lists messages added to a mailbox since a history
// position.  A position too old to list fails with
// message.ErrHistoryExpired.
type HistoryLister interface {
	ListFrom(ctx context.Context, historyID uint64, handler func(*message.Added) error) error
}

// Profiler gets per account metadata from a mailbox.
type Profiler interface {
	GetProfile(ctx context.Context) (*message.Profile, error)
}

// HistorySource is a mailbox that can report what changed.
type HistorySource interface {
	HistoryLister
	Profiler
}

// HistoryStore remembers how far the mailbox has been processed.
// Zero means never.
type HistoryStore interface {
	LatestHistoryID(ctx context.Context) (uint64, error)
	WriteHistoryID(ctx context.Context, historyID uint64) error
}

// PipelineRunner runs the per-thread pipelines.
type PipelineRunner interface {
	MailboxUpdate(ctx context.Context, threadID string) (*workflow.Outcome, error)
	AutoDraft(ctx context.Context, threadID string) (*workflow.Outcome, error)
}

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

import (
	"context"

	"github.com/matta/threadmind/internal/message"
	"github.com/matta/threadmind/internal/workflow"
)

// Pipelines runs an Engine's pipelines against one connection.
// Every call gets a fresh run context.
type Pipelines struct {
	Engine     *workflow.Engine
	Connection message.Connection
	Provider   workflow.MailProvider
}

func (p *Pipelines) MailboxUpdate(ctx context.Context, threadID string) (*workflow.Outcome, error) {
	return p.Engine.RunMailboxUpdate(ctx, workflow.NewContext(p.Connection, p.Provider, threadID))
}

func (p *Pipelines) AutoDraft(ctx context.Context, threadID string) (*workflow.Outcome, error) {
	return p.Engine.RunAutoDraft(ctx, workflow.NewContext(p.Connection, p.Provider, threadID))
}

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

package gmail

import (
	"context"
	"log"

	"github.com/pkg/errors"
	gmail "google.golang.org/api/gmail/v1"

	"github.com/matta/threadmind/internal/batch"
	"github.com/matta/threadmind/internal/message"
)

// Threads modified concurrently within a chunk.
const modifyConcurrency = ModifyChunkSize

func (s *Service) GetUserLabels(ctx context.Context) ([]message.LabelRef, error) {
	var resp *gmail.ListLabelsResponse
	err := s.do(ctx, "labels.list", quotaUnitsLabelsList, func() (err error) {
		resp, err = s.service.Users.Labels.List("me").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	labels := make([]message.LabelRef, 0, len(resp.Labels))
	for _, l := range resp.Labels {
		labels = append(labels, message.LabelRef{ID: l.Id, Name: l.Name, Type: l.Type})
	}
	return labels, nil
}

// GetUserTopics returns the mailbox's custom taxonomy, or nil when
// there is none.
func (s *Service) GetUserTopics(ctx context.Context) ([]message.TopicLabel, error) {
	if s.topics == nil {
		return nil, nil
	}
	topics, err := s.topics.GetUserTopics(ctx)
	if err != nil {
		return nil, message.Transient("topics.list", err)
	}
	return topics, nil
}

// CreateLabel creates a user label shown in both the label and
// message lists.
func (s *Service) CreateLabel(ctx context.Context, name string) (*message.LabelRef, error) {
	var l *gmail.Label
	err := s.do(ctx, "labels.create", quotaUnitsLabelsCreate, func() (err error) {
		l, err = s.service.Users.Labels.Create("me", &gmail.Label{
			Name:                  name,
			LabelListVisibility:   "labelShow",
			MessageListVisibility: "show",
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Printf("created Gmail label %q as %s", l.Name, l.Id)
	return &message.LabelRef{ID: l.Id, Name: l.Name, Type: l.Type}, nil
}

// ModifyLabels adds and removes label IDs on every thread in
// threadIDs.  Threads are modified in chunks of ModifyChunkSize with
// s.ModifyChunkDelay between chunks.  All threads are attempted; the
// returned error describes the first failure, preferring a fatal
// one.
func (s *Service) ModifyLabels(ctx context.Context, threadIDs []string, add, remove []string) error {
	if len(threadIDs) == 0 || (len(add) == 0 && len(remove) == 0) {
		return nil
	}
	req := &gmail.ModifyThreadRequest{AddLabelIds: add, RemoveLabelIds: remove}
	outcomes, err := batch.Run(ctx, threadIDs, batch.Options[string]{
		Concurrency: modifyConcurrency,
		ChunkSize:   ModifyChunkSize,
		ChunkDelay:  s.ModifyChunkDelay,
		Key:         func(id string) string { return id },
	}, func(ctx context.Context, id string) (struct{}, error) {
		return struct{}{}, s.do(ctx, "threads.modify", quotaUnitsThreadsModify, func() error {
			_, err := s.service.Users.Threads.Modify("me", id, req).Context(ctx).Do()
			return err
		})
	})
	if err == nil {
		return nil
	}
	for _, o := range outcomes {
		if o.Status == batch.Failure && message.IsFatal(o.Err) {
			return errors.Wrapf(o.Err, "modifying labels of thread %s", o.Item)
		}
	}
	return message.Transient("threads.modify", err)
}

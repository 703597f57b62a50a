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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/matta/threadmind/internal/message"
	"github.com/matta/threadmind/internal/workflow"
)

type fakeSource struct {
	profile message.Profile
	added   []*message.Added
	listErr error

	listedFrom []uint64
}

func (f *fakeSource) GetProfile(ctx context.Context) (*message.Profile, error) {
	p := f.profile
	return &p, nil
}

func (f *fakeSource) ListFrom(ctx context.Context, historyID uint64, handler func(*message.Added) error) error {
	f.listedFrom = append(f.listedFrom, historyID)
	if f.listErr != nil {
		return f.listErr
	}
	for _, a := range f.added {
		if err := handler(a); err != nil {
			return err
		}
	}
	return nil
}

type fakeStore struct {
	id     uint64
	writes []uint64
}

func (f *fakeStore) LatestHistoryID(ctx context.Context) (uint64, error) {
	return f.id, nil
}

func (f *fakeStore) WriteHistoryID(ctx context.Context, id uint64) error {
	f.id = id
	f.writes = append(f.writes, id)
	return nil
}

type fakeRunner struct {
	calls []string
	errs  map[string]error
}

func (f *fakeRunner) run(pipeline, threadID string) (*workflow.Outcome, error) {
	call := pipeline + " " + threadID
	f.calls = append(f.calls, call)
	return &workflow.Outcome{Pipeline: pipeline, ThreadID: threadID}, f.errs[call]
}

func (f *fakeRunner) MailboxUpdate(ctx context.Context, threadID string) (*workflow.Outcome, error) {
	return f.run(workflow.MailboxUpdate, threadID)
}

func (f *fakeRunner) AutoDraft(ctx context.Context, threadID string) (*workflow.Outcome, error) {
	return f.run(workflow.AutoDraft, threadID)
}

func added(msgID, threadID string, labels ...string) *message.Added {
	return &message.Added{MessageID: msgID, ThreadID: threadID, LabelIDs: labels}
}

func TestSyncBaseline(t *testing.T) {
	src := &fakeSource{profile: message.Profile{EmailAddress: "me@example.com", HistoryID: 100}}
	store := &fakeStore{}
	runner := &fakeRunner{}

	res, err := Sync(context.Background(), src, store, runner)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if !res.Baseline {
		t.Errorf("Sync().Baseline = false, want true")
	}
	if diff := cmp.Diff([]uint64{100}, store.writes); diff != "" {
		t.Errorf("history writes mismatch (-want +got):\n%s", diff)
	}
	if len(src.listedFrom) != 0 || len(runner.calls) != 0 {
		t.Errorf("baseline pass listed %v and ran %v, want nothing", src.listedFrom, runner.calls)
	}
}

func TestSyncUpToDate(t *testing.T) {
	src := &fakeSource{profile: message.Profile{HistoryID: 100}}
	store := &fakeStore{id: 100}
	runner := &fakeRunner{}

	res, err := Sync(context.Background(), src, store, runner)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if res.Baseline || len(store.writes) != 0 || len(src.listedFrom) != 0 {
		t.Errorf("Sync() = %+v, writes %v, listed %v; want a no-op", res, store.writes, src.listedFrom)
	}
}

func TestSyncIncremental(t *testing.T) {
	src := &fakeSource{
		profile: message.Profile{HistoryID: 120},
		added: []*message.Added{
			added("m1", "t1", "INBOX", "UNREAD"),
			added("m2", "t2", "SENT"),
			added("m3", "t1", "INBOX"),
			added("m4", "t3", "DRAFT"),
			added("m5", "", "INBOX"),
		},
	}
	store := &fakeStore{id: 100}
	runner := &fakeRunner{}

	res, err := Sync(context.Background(), src, store, runner)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if diff := cmp.Diff([]uint64{100}, src.listedFrom); diff != "" {
		t.Errorf("ListFrom positions mismatch (-want +got):\n%s", diff)
	}
	want := []string{
		"mailbox-update t1",
		"auto-draft t1",
		"mailbox-update t2",
		"mailbox-update t3",
	}
	if diff := cmp.Diff(want, runner.calls); diff != "" {
		t.Errorf("pipeline runs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"t1", "t2", "t3"}, res.Threads); diff != "" {
		t.Errorf("Result.Threads mismatch (-want +got):\n%s", diff)
	}
	if len(res.Outcomes) != 4 {
		t.Errorf("len(Result.Outcomes) = %d, want 4", len(res.Outcomes))
	}
	if diff := cmp.Diff([]uint64{120}, store.writes); diff != "" {
		t.Errorf("history writes mismatch (-want +got):\n%s", diff)
	}
}

func TestSyncTransientFailureContinues(t *testing.T) {
	src := &fakeSource{
		profile: message.Profile{HistoryID: 120},
		added:   []*message.Added{added("m1", "t1", "INBOX"), added("m2", "t2", "INBOX")},
	}
	store := &fakeStore{id: 100}
	runner := &fakeRunner{errs: map[string]error{
		"mailbox-update t1": message.Transient("threads.get", errors.New("503")),
	}}

	res, err := Sync(context.Background(), src, store, runner)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if res.Failures != 1 {
		t.Errorf("Result.Failures = %d, want 1", res.Failures)
	}
	if len(runner.calls) != 4 {
		t.Errorf("pipeline runs = %v, want 4 runs", runner.calls)
	}
	if store.id != 120 {
		t.Errorf("stored history id = %d, want 120", store.id)
	}
}

func TestSyncFatalKeepsPosition(t *testing.T) {
	src := &fakeSource{
		profile: message.Profile{HistoryID: 120},
		added:   []*message.Added{added("m1", "t1", "INBOX"), added("m2", "t2", "INBOX")},
	}
	store := &fakeStore{id: 100}
	runner := &fakeRunner{errs: map[string]error{
		"mailbox-update t1": message.Fatal("threads.get", errors.New("invalid_grant")),
	}}

	_, err := Sync(context.Background(), src, store, runner)
	if !message.IsFatal(err) {
		t.Fatalf("Sync() error = %v, want fatal", err)
	}
	if diff := cmp.Diff([]string{"mailbox-update t1"}, runner.calls); diff != "" {
		t.Errorf("pipeline runs mismatch (-want +got):\n%s", diff)
	}
	if len(store.writes) != 0 {
		t.Errorf("history writes = %v, want none", store.writes)
	}
}

func TestSyncExpiredHistory(t *testing.T) {
	src := &fakeSource{
		profile: message.Profile{HistoryID: 500},
		listErr: errors.Wrap(message.ErrHistoryExpired, "listing history from 100"),
	}
	store := &fakeStore{id: 100}
	runner := &fakeRunner{}

	res, err := Sync(context.Background(), src, store, runner)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if !res.Baseline {
		t.Errorf("Sync().Baseline = false, want true")
	}
	if store.id != 500 {
		t.Errorf("stored history id = %d, want 500", store.id)
	}
}

func TestSyncListErrorKeepsPosition(t *testing.T) {
	src := &fakeSource{
		profile: message.Profile{HistoryID: 500},
		listErr: message.Transient("history.list", errors.New("503")),
	}
	store := &fakeStore{id: 100}

	if _, err := Sync(context.Background(), src, store, &fakeRunner{}); err == nil {
		t.Fatalf("Sync() error = nil, want error")
	}
	if len(store.writes) != 0 {
		t.Errorf("history writes = %v, want none", store.writes)
	}
}

func TestSyncHistoryAhead(t *testing.T) {
	src := &fakeSource{profile: message.Profile{HistoryID: 50}}
	store := &fakeStore{id: 100}

	res, err := Sync(context.Background(), src, store, &fakeRunner{})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if !res.Baseline || store.id != 50 {
		t.Errorf("Sync() baseline=%v stored=%d, want true, 50", res.Baseline, store.id)
	}
}

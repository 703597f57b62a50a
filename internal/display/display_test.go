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

package display

import (
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"

	msync "github.com/matta/threadmind/internal/sync"
	"github.com/matta/threadmind/internal/workflow"
)

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"a longer string", 10, "a longe..."},
		{"héllo wörld", 8, "héllo..."},
		{"abcdef", 2, "ab"},
	}
	for _, c := range cases {
		if got := Truncate(c.in, c.max); got != c.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", c.in, c.max, got, c.want)
		}
	}
}

func TestOutcome(t *testing.T) {
	o := &workflow.Outcome{
		RunID:    "01HZZZ",
		Pipeline: workflow.MailboxUpdate,
		ThreadID: "t1",
		Steps: []workflow.StepReport{
			{Step: workflow.FindMessagesToVectorize, Status: workflow.StatusOK, Elapsed: 3 * time.Millisecond},
			{Step: workflow.VectorizeMessages, Status: workflow.StatusFailed, Err: errors.New("embed: boom")},
			{Step: workflow.CheckExistingSummary, Status: workflow.StatusSkipped},
		},
		Aborted: true,
	}
	var b strings.Builder
	Outcome(&b, o)
	got := b.String()
	for _, want := range []string{"mailbox-update", "thread t1", "01HZZZ", "findMessagesToVectorize", "3ms", "embed: boom", "aborted"} {
		if !strings.Contains(got, want) {
			t.Errorf("Outcome() output missing %q:\n%s", want, got)
		}
	}
	if n := strings.Count(got, "\n"); n != 6 {
		t.Errorf("Outcome() printed %d lines, want 6:\n%s", n, got)
	}
}

func TestSyncResult(t *testing.T) {
	cases := []struct {
		name string
		res  *msync.Result
		want string
	}{
		{"baseline", &msync.Result{Account: "me@example.com", To: 7, Baseline: true}, "Recorded history position 7"},
		{"current", &msync.Result{Account: "me@example.com", From: 7, To: 7}, "up to date"},
		{"synced", &msync.Result{Account: "me@example.com", From: 7, To: 9, Threads: []string{"t1"}}, "1 threads"},
		{"failures", &msync.Result{Account: "me@example.com", From: 7, To: 9, Failures: 2}, "2 failed runs"},
	}
	for _, c := range cases {
		var b strings.Builder
		SyncResult(&b, c.res)
		if !strings.Contains(b.String(), c.want) {
			t.Errorf("%s: SyncResult() = %q, want it to contain %q", c.name, b.String(), c.want)
		}
	}
}

func TestTopics(t *testing.T) {
	var b strings.Builder
	Topics(&b, workflow.DefaultTopics, false)
	got := b.String()
	if !strings.Contains(got, "Default topics") {
		t.Errorf("Topics() = %q, want a default topics header", got)
	}
	for _, topic := range workflow.DefaultTopics {
		if !strings.Contains(got, topic.Name) {
			t.Errorf("Topics() missing %q", topic.Name)
		}
	}
}

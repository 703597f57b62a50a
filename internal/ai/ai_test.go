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

package ai

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

func candidate(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}},
	}
}

func TestResponseText(t *testing.T) {
	cases := []struct {
		name    string
		resp    *genai.GenerateContentResponse
		want    string
		wantErr bool
	}{
		{"nil", nil, "", true},
		{"no candidates", &genai.GenerateContentResponse{}, "", true},
		{"text", candidate(&genai.Part{Text: "Billing"}), "Billing", false},
		{"joined", candidate(&genai.Part{Text: "a, "}, nil, &genai.Part{Text: "b"}), "a, b", false},
		{"thoughts dropped", candidate(&genai.Part{Text: "hmm", Thought: true}, &genai.Part{Text: "FYI"}), "FYI", false},
		{"blank", candidate(&genai.Part{Text: " \n"}), "", true},
	}
	for _, c := range cases {
		got, err := responseText(c.resp)
		if (err != nil) != c.wantErr || got != c.want {
			t.Errorf("%s: responseText() = %q, %v, want %q, err=%v", c.name, got, err, c.want, c.wantErr)
		}
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{genai.APIError{Code: 429}, true},
		{errors.Wrap(genai.APIError{Code: 503}, "calling"), true},
		{genai.APIError{Code: 400}, false},
		{errors.New("boom"), false},
	}
	for _, c := range cases {
		if got := retryable(c.err); got != c.want {
			t.Errorf("retryable(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	c := &Client{limiter: rate.NewLimiter(rate.Inf, 1)}
	calls := 0
	err := c.retry(context.Background(), "chat", func() error {
		calls++
		return genai.APIError{Code: 400, Message: "bad request"}
	})
	if err == nil {
		t.Fatal("retry() = nil, want error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

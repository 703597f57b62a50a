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
	"encoding/base64"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/matta/threadmind/internal/message"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		wantFatal bool
	}{
		{"unauthorized", &googleapi.Error{Code: 401}, true},
		{"wrapped unauthorized", errors.Wrap(&googleapi.Error{Code: 401}, "get"), true},
		{"invalid grant", &oauth2.RetrieveError{ErrorCode: "invalid_grant"}, true},
		{"invalid grant text", errors.New(`oauth2: "invalid_grant" "Token has been expired or revoked."`), true},
		{"not found", &googleapi.Error{Code: 404}, false},
		{"server", &googleapi.Error{Code: 500}, false},
		{"other", errors.New("connection reset"), false},
	}
	for _, c := range cases {
		err := classify("op", c.err)
		var perr *message.ProviderError
		if !errors.As(err, &perr) {
			t.Errorf("%s: classify() = %T, want *message.ProviderError", c.name, err)
			continue
		}
		if got := message.IsFatal(err); got != c.wantFatal {
			t.Errorf("%s: IsFatal(classify()) = %v, want %v", c.name, got, c.wantFatal)
		}
	}
	if classify("op", nil) != nil {
		t.Errorf("classify(nil) != nil")
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&googleapi.Error{Code: 429}, true},
		{&googleapi.Error{Code: 503}, true},
		{&googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "userRateLimitExceeded"}}}, true},
		{&googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "forbidden"}}}, false},
		{&googleapi.Error{Code: 400}, false},
		{errors.New("x"), false},
	}
	for _, c := range cases {
		if got := retryable(c.err); got != c.want {
			t.Errorf("retryable(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestBackoff(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{4, 8 * time.Second},
		{10, maxBackoff},
	}
	for _, c := range cases {
		if got := backoff(c.attempt); got != c.want {
			t.Errorf("backoff(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestParseAddressList(t *testing.T) {
	cases := []struct {
		in   string
		want []message.Address
	}{
		{"", nil},
		{"Alice <alice@example.com>", []message.Address{{Name: "Alice", Email: "alice@example.com"}}},
		{"a@example.com, \"B, Bee\" <b@example.com>", []message.Address{
			{Email: "a@example.com"},
			{Name: "B, Bee", Email: "b@example.com"},
		}},
		{"=?utf-8?q?J=C3=BCrgen?= <j@example.com>", []message.Address{{Name: "Jürgen", Email: "j@example.com"}}},
		{"broken <<x>, c@example.com", []message.Address{{Email: "c@example.com"}}},
	}
	for _, c := range cases {
		got := parseAddressList(c.in)
		if diff := cmp.Diff(c.want, got); diff != "" {
			t.Errorf("parseAddressList(%q) mismatch (-want +got):\n%s", c.in, diff)
		}
	}
}

func enc(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func TestExtractBody(t *testing.T) {
	cases := []struct {
		name    string
		payload *gmail.MessagePart
		want    string
	}{
		{
			name:    "single part",
			payload: &gmail.MessagePart{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: enc("hello")}},
			want:    "hello",
		},
		{
			name: "prefers plain",
			payload: &gmail.MessagePart{MimeType: "multipart/alternative", Parts: []*gmail.MessagePart{
				{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: enc("<p>hi</p>")}},
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: enc("hi")}},
			}},
			want: "hi",
		},
		{
			name: "nested html fallback",
			payload: &gmail.MessagePart{MimeType: "multipart/mixed", Parts: []*gmail.MessagePart{
				{MimeType: "multipart/alternative", Parts: []*gmail.MessagePart{
					{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: enc("<p>hi</p>")}},
				}},
			}},
			want: "<p>hi</p>",
		},
		{
			name: "attachments ignored",
			payload: &gmail.MessagePart{MimeType: "multipart/mixed", Parts: []*gmail.MessagePart{
				{MimeType: "text/plain", Filename: "notes.txt", Body: &gmail.MessagePartBody{Data: enc("attached")}},
			}},
			want: "",
		},
		{
			name:    "padded data",
			payload: &gmail.MessagePart{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte("ab"))}},
			want:    "ab",
		},
	}
	for _, c := range cases {
		if got := extractBody(c.payload); got != c.want {
			t.Errorf("%s: extractBody() = %q, want %q", c.name, got, c.want)
		}
	}
}

func testGmailMessage(id string, internalDate int64, labels ...string) *gmail.Message {
	return &gmail.Message{
		Id:           id,
		ThreadId:     "t1",
		InternalDate: internalDate,
		LabelIds:     labels,
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: "Alice <alice@example.com>"},
				{Name: "To", Value: "me@example.com"},
				{Name: "Subject", Value: "Hello " + id},
				{Name: "Message-Id", Value: "<" + id + "@example.com>"},
			},
			Body: &gmail.MessagePartBody{Data: enc("body of " + id)},
		},
	}
}

func TestParseThread(t *testing.T) {
	th := &gmail.Thread{Id: "t1", Messages: []*gmail.Message{
		testGmailMessage("m2", 2000, "INBOX", "Label_1"),
		testGmailMessage("m1", 1000, "INBOX"),
		testGmailMessage("c1", 1500, "CHAT"),
	}}
	got := parseThread(th)

	require.Equal(t, []string{"m1", "m2"}, got.MessageIDs())
	require.Equal(t, []message.LabelRef{{ID: "INBOX"}, {ID: "Label_1"}}, got.Labels)

	m := got.Messages[0]
	require.Equal(t, message.Address{Name: "Alice", Email: "alice@example.com"}, m.Sender)
	require.Equal(t, []message.Address{{Email: "me@example.com"}}, m.To)
	require.Equal(t, "<m1@example.com>", m.HeaderMessageID)
	require.Equal(t, "Hello m1", m.Subject)
	require.Equal(t, "body of m1", m.DecodedBody)
	require.Equal(t, time.UnixMilli(1000).UTC(), m.ReceivedOn)
}

func TestBuildRaw(t *testing.T) {
	d := &message.Draft{
		ThreadID:  "t1",
		To:        []message.Address{{Name: "Alice", Email: "alice@example.com"}},
		Cc:        []message.Address{{Email: "bob@example.com"}},
		Subject:   "Re: Grüße",
		Body:      "Thanks, **will do**.",
		InReplyTo: "<m1@example.com>",
	}
	raw, err := buildRaw(d)
	require.NoError(t, err)

	msg, err := mail.ReadMessage(strings.NewReader(string(raw)))
	require.NoError(t, err)
	require.Equal(t, `"Alice" <alice@example.com>`, msg.Header.Get("To"))
	require.Equal(t, "<bob@example.com>", msg.Header.Get("Cc"))
	require.Equal(t, "<m1@example.com>", msg.Header.Get("In-Reply-To"))
	require.Equal(t, "<m1@example.com>", msg.Header.Get("References"))

	var dec mime.WordDecoder
	subject, err := dec.DecodeHeader(msg.Header.Get("Subject"))
	require.NoError(t, err)
	require.Equal(t, "Re: Grüße", subject)

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "multipart/alternative", mediaType)

	bodies := map[string]string{}
	mr := multipart.NewReader(msg.Body, params["boundary"])
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		b, err := io.ReadAll(p)
		require.NoError(t, err)
		ct, _, _ := mime.ParseMediaType(p.Header.Get("Content-Type"))
		bodies[ct] = string(b)
	}
	require.Equal(t, "Thanks, **will do**.", bodies["text/plain"])
	require.Contains(t, bodies["text/html"], "<strong>will do</strong>")

	_, err = buildRaw(&message.Draft{Body: "x"})
	require.Error(t, err)
}

// fakeGmail serves just enough of the Gmail API for Service tests.
type fakeGmail struct {
	mu       sync.Mutex
	modified []string
	status   map[string][]int // per thread, statuses to return before success
}

func (f *fakeGmail) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := r.URL.Path
	switch {
	case strings.HasSuffix(path, "/modify"):
		parts := strings.Split(path, "/")
		id := parts[len(parts)-2]
		if codes := f.status[id]; len(codes) > 0 {
			f.status[id] = codes[1:]
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(codes[0])
			json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": codes[0], "message": "nope"}})
			return
		}
		f.modified = append(f.modified, id)
		json.NewEncoder(w).Encode(&gmail.Thread{Id: id})
	case strings.Contains(path, "/threads/"):
		json.NewEncoder(w).Encode(&gmail.Thread{Id: "t1", Messages: []*gmail.Message{testGmailMessage("m1", 1000, "INBOX")}})
	default:
		http.NotFound(w, r)
	}
}

func newTestService(t *testing.T, f *fakeGmail) *Service {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	svc, err := gmail.NewService(context.Background(),
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)
	return &Service{service: svc, limiter: rate.NewLimiter(rate.Inf, 1)}
}

func TestGetThread(t *testing.T) {
	s := newTestService(t, &fakeGmail{})
	th, err := s.GetThread(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, []string{"m1"}, th.MessageIDs())
}

func TestModifyLabelsChunks(t *testing.T) {
	f := &fakeGmail{status: map[string][]int{"t3": {429}}}
	s := newTestService(t, f)
	s.ModifyChunkDelay = time.Millisecond

	var ids []string
	for i := 0; i < ModifyChunkSize+2; i++ {
		ids = append(ids, "t"+string(rune('a'+i)))
	}
	ids = append(ids, "t3")
	require.NoError(t, s.ModifyLabels(context.Background(), ids, []string{"L1"}, nil))
	require.ElementsMatch(t, ids, f.modified, "t3 succeeds after one retry")
}

func TestModifyLabelsFatal(t *testing.T) {
	f := &fakeGmail{status: map[string][]int{"t2": {401}}}
	s := newTestService(t, f)

	err := s.ModifyLabels(context.Background(), []string{"t1", "t2", "t3"}, nil, []string{"L1"})
	require.Error(t, err)
	require.True(t, message.IsFatal(err))
	require.ElementsMatch(t, []string{"t1", "t3"}, f.modified, "other threads are still attempted")
}

func TestModifyLabelsNoop(t *testing.T) {
	f := &fakeGmail{}
	s := newTestService(t, f)
	require.NoError(t, s.ModifyLabels(context.Background(), []string{"t1"}, nil, nil))
	require.Empty(t, f.modified)
}

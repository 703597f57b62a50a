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
	"net/mail"
	"sort"
	"strings"
	"time"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/matta/threadmind/internal/message"
)

func isChat(msg *gmail.Message) bool {
	for _, label := range msg.LabelIds {
		if label == "CHAT" {
			return true
		}
	}
	return false
}

// GetThread fetches a thread with full message bodies.  Messages are
// returned oldest first.
func (s *Service) GetThread(ctx context.Context, id string) (*message.Thread, error) {
	var t *gmail.Thread
	err := s.do(ctx, "threads.get", quotaUnitsThreadsGet, func() (err error) {
		t, err = s.service.Users.Threads.Get("me", id).Format("full").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return parseThread(t), nil
}

func parseThread(t *gmail.Thread) *message.Thread {
	out := &message.Thread{ID: t.Id}
	seen := map[string]bool{}
	for _, m := range t.Messages {
		if m == nil || isChat(m) {
			continue
		}
		out.Messages = append(out.Messages, parseMessage(m))
		for _, l := range m.LabelIds {
			if !seen[l] {
				seen[l] = true
				out.Labels = append(out.Labels, message.LabelRef{ID: l})
			}
		}
	}
	sort.SliceStable(out.Messages, func(i, j int) bool {
		return out.Messages[i].ReceivedOn.Before(out.Messages[j].ReceivedOn)
	})
	return out
}

func parseMessage(m *gmail.Message) message.Message {
	out := message.Message{
		ID:         m.Id,
		ThreadID:   m.ThreadId,
		ReceivedOn: time.UnixMilli(m.InternalDate).UTC(),
	}
	if m.Payload == nil {
		return out
	}
	h := headerMap(m.Payload.Headers)
	out.HeaderMessageID = strings.TrimSpace(h["message-id"])
	out.Subject = h["subject"]
	if from := parseAddressList(h["from"]); len(from) > 0 {
		out.Sender = from[0]
	}
	out.To = parseAddressList(h["to"])
	out.Cc = parseAddressList(h["cc"])
	out.DecodedBody = extractBody(m.Payload)
	return out
}

// headerMap converts Gmail API headers into a map keyed by lower case
// header name.  The first occurrence of a header wins.
func headerMap(headers []*gmail.MessagePartHeader) map[string]string {
	m := make(map[string]string, len(headers))
	for _, h := range headers {
		k := strings.ToLower(h.Name)
		if _, ok := m[k]; !ok {
			m[k] = h.Value
		}
	}
	return m
}

// parseAddressList parses a From, To or Cc header.  Entries that do
// not parse are kept as bare addresses when they look like one.
func parseAddressList(v string) []message.Address {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if list, err := mail.ParseAddressList(v); err == nil {
		out := make([]message.Address, 0, len(list))
		for _, a := range list {
			out = append(out, message.Address{Name: a.Name, Email: a.Address})
		}
		return out
	}
	var out []message.Address
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if a, err := mail.ParseAddress(part); err == nil {
			out = append(out, message.Address{Name: a.Name, Email: a.Address})
		} else if strings.Contains(part, "@") {
			out = append(out, message.Address{Email: strings.Trim(part, "<>\" ")})
		}
	}
	return out
}

// extractBody gets the body from a message payload, preferring
// text/plain over text/html.  Attachments are ignored.
func extractBody(payload *gmail.MessagePart) string {
	if body := findPart(payload, "text/plain"); body != "" {
		return body
	}
	return findPart(payload, "text/html")
}

func findPart(p *gmail.MessagePart, mimeType string) string {
	if p == nil || p.Filename != "" {
		return ""
	}
	if len(p.Parts) == 0 {
		if !strings.HasPrefix(p.MimeType, mimeType) || p.Body == nil || p.Body.Data == "" {
			return ""
		}
		decoded, err := decodeBase64URL(p.Body.Data)
		if err != nil {
			return ""
		}
		return decoded
	}
	for _, part := range p.Parts {
		if body := findPart(part, mimeType); body != "" {
			return body
		}
	}
	return ""
}

// decodeBase64URL decodes Gmail's base64url-encoded content, with or
// without padding.
func decodeBase64URL(data string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

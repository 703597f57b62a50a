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
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	gmail "google.golang.org/api/gmail/v1"

	"github.com/matta/threadmind/internal/message"
)

// CreateDraft stores d as a reply draft in its thread and returns the
// draft ID.
func (s *Service) CreateDraft(ctx context.Context, d *message.Draft) (string, error) {
	raw, err := buildRaw(d)
	if err != nil {
		return "", message.Transient("drafts.create", err)
	}
	draft := &gmail.Draft{Message: &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString(raw),
		ThreadId: d.ThreadID,
	}}
	var created *gmail.Draft
	err = s.do(ctx, "drafts.create", quotaUnitsDraftsCreate, func() (err error) {
		created, err = s.service.Users.Drafts.Create("me", draft).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", err
	}
	return created.Id, nil
}

func formatAddresses(as []message.Address) string {
	parts := make([]string, 0, len(as))
	for _, a := range as {
		parts = append(parts, (&mail.Address{Name: a.Name, Address: a.Email}).String())
	}
	return strings.Join(parts, ", ")
}

// buildRaw renders d as an RFC 5322 message with plain text and HTML
// alternatives.  The body is treated as Markdown for the HTML part.
func buildRaw(d *message.Draft) ([]byte, error) {
	if len(d.To) == 0 {
		return nil, errors.New("draft has no recipients")
	}
	var html bytes.Buffer
	if err := goldmark.Convert([]byte(d.Body), &html); err != nil {
		return nil, errors.Wrap(err, "rendering draft body")
	}

	var buf bytes.Buffer
	header := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
		}
	}
	header("To", formatAddresses(d.To))
	header("Cc", formatAddresses(d.Cc))
	header("Subject", mime.QEncoding.Encode("utf-8", d.Subject))
	header("In-Reply-To", d.InReplyTo)
	header("References", d.InReplyTo)
	header("MIME-Version", "1.0")

	mw := multipart.NewWriter(&buf)
	header("Content-Type", "multipart/alternative; boundary="+mw.Boundary())
	buf.WriteString("\r\n")

	for _, part := range []struct {
		contentType string
		body        string
	}{
		{"text/plain; charset=utf-8", d.Body},
		{"text/html; charset=utf-8", html.String()},
	} {
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.contentType},
			"Content-Transfer-Encoding": {"quoted-printable"},
		})
		if err != nil {
			return nil, errors.Wrap(err, "writing draft part")
		}
		qp := quotedprintable.NewWriter(w)
		if _, err := qp.Write([]byte(part.body)); err != nil {
			return nil, errors.Wrap(err, "writing draft part")
		}
		if err := qp.Close(); err != nil {
			return nil, errors.Wrap(err, "writing draft part")
		}
	}
	if err := mw.Close(); err != nil {
		return nil, errors.Wrap(err, "finishing draft")
	}
	return buf.Bytes(), nil
}

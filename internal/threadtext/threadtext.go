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

// Package threadtext renders messages and threads as the escaped,
// pseudo-XML text blocks fed to prompts.
package threadtext

import (
	"strings"
	"time"

	"github.com/matta/threadmind/internal/message"
)

const (
	// MinBodyChars is the shortest plain-text body worth
	// summarizing.  Shorter messages are left out.
	MinBodyChars = 10

	// MaxMessageChars bounds a single rendered message.
	MaxMessageChars = 8000
)

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// Escape returns s with the five XML special characters escaped.
func Escape(s string) string {
	return xmlEscaper.Replace(s)
}

// Body returns the message body as normalized plain text.
func Body(m *message.Message) string {
	return PlainText(m.DecodedBody)
}

// HasContent reports whether m has enough body text to be worth
// summarizing.
func HasContent(m *message.Message) bool {
	return len([]rune(Body(m))) >= MinBodyChars
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func addresses(as []message.Address) string {
	parts := make([]string, 0, len(as))
	for _, a := range as {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, ", ")
}

// writeMessage renders one message.  The body is truncated so the
// whole block stays near max runes.
func writeMessage(sb *strings.Builder, m *message.Message, indent string, max int) {
	sb.WriteString(indent + "<message>\n")
	field := func(tag, value string) {
		if value == "" {
			return
		}
		sb.WriteString(indent + "  <" + tag + ">" + Escape(value) + "</" + tag + ">\n")
	}
	field("from", m.Sender.String())
	field("to", addresses(m.To))
	field("cc", addresses(m.Cc))
	if !m.ReceivedOn.IsZero() {
		field("date", m.ReceivedOn.UTC().Format(time.RFC1123Z))
	}
	field("subject", m.Subject)
	body := Body(m)
	if max > 0 {
		body = Truncate(body, max-sb.Len())
	}
	sb.WriteString(indent + "  <body>" + Escape(body) + "</body>\n")
	sb.WriteString(indent + "</message>\n")
}

// Message renders a single message, bounded to MaxMessageChars of
// body text.  It returns "" when the message is too sparse to
// summarize.
func Message(m *message.Message) string {
	if !HasContent(m) {
		return ""
	}
	var sb strings.Builder
	writeMessage(&sb, m, "", MaxMessageChars)
	return sb.String()
}

// Participants returns every distinct sender and recipient in the
// thread, in order of first appearance.
func Participants(t *message.Thread) []message.Address {
	seen := map[string]bool{}
	var out []message.Address
	add := func(a message.Address) {
		key := strings.ToLower(strings.TrimSpace(a.Email))
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, a)
	}
	for _, m := range t.Messages {
		add(m.Sender)
		for _, a := range m.To {
			add(a)
		}
		for _, a := range m.Cc {
			add(a)
		}
	}
	return out
}

// Thread renders the whole thread: its subject, participants, and
// every message with enough body text.
func Thread(t *message.Thread) string {
	var sb strings.Builder
	sb.WriteString("<thread>\n")
	if len(t.Messages) > 0 {
		sb.WriteString("  <subject>" + Escape(t.Messages[0].Subject) + "</subject>\n")
	}
	sb.WriteString("  <participants>" + Escape(addresses(Participants(t))) + "</participants>\n")
	sb.WriteString("  <messages>\n")
	for i := range t.Messages {
		m := &t.Messages[i]
		if !HasContent(m) {
			continue
		}
		var one strings.Builder
		writeMessage(&one, m, "    ", MaxMessageChars)
		sb.WriteString(one.String())
	}
	sb.WriteString("  </messages>\n")
	sb.WriteString("</thread>\n")
	return sb.String()
}

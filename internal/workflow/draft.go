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

package workflow

import (
	"context"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/matta/threadmind/internal/message"
	"github.com/matta/threadmind/internal/threadtext"
)

const (
	ShouldGenerateDraft    StepID = "shouldGenerateDraft"
	AnalyzeEmailIntent     StepID = "analyzeEmailIntent"
	ValidateResponseNeeded StepID = "validateResponseNeeded"
	GenerateAutomaticDraft StepID = "generateAutomaticDraft"
	CreateDraft            StepID = "createDraft"
)

var (
	shouldDraftKey    = key[bool]{ShouldGenerateDraft}
	intentKey         = key[Intent]{AnalyzeEmailIntent}
	responseNeededKey = key[bool]{ValidateResponseNeeded}
	draftContentKey   = key[string]{GenerateAutomaticDraft}
	createDraftKey    = key[draftResult]{CreateDraft}
)

var (
	errNoSender       = errors.New("newest message has no sender address")
	errNoDraftContent = errors.New("no draft content")
)

// Intent flags what the newest message in a thread asks for.
type Intent struct {
	Question bool
	Request  bool
	Meeting  bool
	Urgent   bool
}

// Any reports whether any flag is set.
func (i Intent) Any() bool {
	return i.Question || i.Request || i.Meeting || i.Urgent
}

// Names lists the set flags.
func (i Intent) Names() []string {
	var names []string
	if i.Question {
		names = append(names, "question")
	}
	if i.Request {
		names = append(names, "request")
	}
	if i.Meeting {
		names = append(names, "meeting")
	}
	if i.Urgent {
		names = append(names, "urgent")
	}
	return names
}

var (
	questionRE = regexp.MustCompile(`(?m)\?(\s|$)|^\s*(who|what|when|where|why|how|is|are|do|does|did|can|could|would|will|should)\b`)
	requestRE  = regexp.MustCompile(`\b(please|could you|can you|would you|will you|let me know|kindly|i need|we need|send me)\b`)
	meetingRE  = regexp.MustCompile(`\b(meeting|meet|schedule|calendar|call|appointment|availability|available|invite|zoom)\b`)
	urgentRE   = regexp.MustCompile(`\b(urgent|urgently|asap|immediately|as soon as possible|eod|end of day|deadline|critical)\b`)
)

// analyzeIntent classifies a message with keyword heuristics.
func analyzeIntent(m *message.Message) Intent {
	text := strings.ToLower(m.Subject + "\n" + threadtext.Body(m))
	return Intent{
		Question: questionRE.MatchString(text),
		Request:  requestRE.MatchString(text),
		Meeting:  meetingRE.MatchString(text),
		Urgent:   urgentRE.MatchString(text),
	}
}

var replyPrefix = regexp.MustCompile(`(?i)^\s*(re|aw|sv)\s*:\s*`)

// replySubject returns subject with exactly one "Re: " prefix.
func replySubject(subject string) string {
	s := strings.TrimSpace(subject)
	for replyPrefix.MatchString(s) {
		s = replyPrefix.ReplaceAllString(s, "")
	}
	return "Re: " + s
}

// replyCc is everyone on the original To and Cc lines except the
// connection itself and the person being replied to.
func replyCc(latest *message.Message, self message.Address) []message.Address {
	seen := map[string]bool{
		strings.ToLower(strings.TrimSpace(self.Email)):          true,
		strings.ToLower(strings.TrimSpace(latest.Sender.Email)): true,
	}
	var cc []message.Address
	for _, list := range [][]message.Address{latest.To, latest.Cc} {
		for _, a := range list {
			k := strings.ToLower(strings.TrimSpace(a.Email))
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			cc = append(cc, a)
		}
	}
	return cc
}

type draftResult struct {
	DraftID string
	Draft   message.Draft
}

func (e *Engine) shouldGenerateDraft(ctx context.Context, c *Context) (bool, error) {
	if !c.Connection.AutoDraft {
		return false, nil
	}
	latest := c.Thread.Latest()
	if latest == nil {
		return false, nil
	}
	if latest.Sender.SameMailbox(c.Connection.Self()) {
		return false, nil
	}
	return true, nil
}

func (e *Engine) analyzeEmailIntent(ctx context.Context, c *Context) (Intent, error) {
	should, _ := lookup(c.results, shouldDraftKey)
	if !should {
		return Intent{}, errSkip
	}
	return analyzeIntent(c.Thread.Latest()), nil
}

func (e *Engine) validateResponseNeeded(ctx context.Context, c *Context) (bool, error) {
	intent, ok := lookup(c.results, intentKey)
	if !ok {
		return false, errSkip
	}
	return intent.Any(), nil
}

func (e *Engine) generateAutomaticDraft(ctx context.Context, c *Context) (string, error) {
	needed, _ := lookup(c.results, responseNeededKey)
	if !needed {
		return "", errSkip
	}
	intent, _ := lookup(c.results, intentKey)
	owner := c.Connection.Name
	if owner == "" {
		owner = c.Connection.Email
	}
	body, err := e.ai.Chat(ctx, draftPrompt, draftInput(threadtext.Thread(c.Thread), intent, owner))
	if err != nil {
		return "", errors.Wrap(err, "generating draft")
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return "", errNoDraftContent
	}
	return body, nil
}

func (e *Engine) createDraft(ctx context.Context, c *Context) (draftResult, error) {
	body, ok := lookup(c.results, draftContentKey)
	if !ok {
		return draftResult{}, errSkip
	}
	if body == "" {
		return draftResult{}, errNoDraftContent
	}
	latest := c.Thread.Latest()
	if latest == nil || strings.TrimSpace(latest.Sender.Email) == "" {
		return draftResult{}, errNoSender
	}
	d := message.Draft{
		ThreadID:  c.ThreadID,
		To:        []message.Address{latest.Sender},
		Cc:        replyCc(latest, c.Connection.Self()),
		Subject:   replySubject(latest.Subject),
		Body:      body,
		InReplyTo: latest.HeaderMessageID,
	}
	id, err := c.Provider.CreateDraft(ctx, &d)
	if err != nil {
		return draftResult{}, errors.Wrap(err, "creating draft")
	}
	return draftResult{DraftID: id, Draft: d}, nil
}

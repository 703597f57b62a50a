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
	"strings"

	"github.com/pkg/errors"

	"github.com/matta/threadmind/internal/message"
)

const (
	GetUserLabels  StepID = "getUserLabels"
	GenerateLabels StepID = "generateLabels"
	ApplyLabels    StepID = "applyLabels"
)

var (
	userLabelsKey  = key[[]message.LabelRef]{GetUserLabels}
	labelsKey      = key[*labelResult]{GenerateLabels}
	applyLabelsKey = key[applyResult]{ApplyLabels}
)

// DefaultTopics is the taxonomy used by connections without custom
// topics.
var DefaultTopics = []message.TopicLabel{
	{Name: "To respond", Usecase: "Emails you need to respond to. NOT sales, marketing, or promotions."},
	{Name: "FYI", Usecase: "Emails that are not important, but you should know about. NOT sales, marketing, or promotions."},
	{Name: "Comment", Usecase: "Team chats in tools like Google Docs, Slack, etc. NOT marketing, sales, or promotions."},
	{Name: "Notification", Usecase: "Automated updates from services you use. NOT sales, marketing, or promotions."},
	{Name: "Promotion", Usecase: "Sales, marketing, cold emails, special offers or promotions. NOT to respond to."},
	{Name: "Meeting", Usecase: "Calendar events, invites, etc. NOT sales, marketing, or promotions."},
	{Name: "Billing", Usecase: "Billing notifications, invoices and receipts. NOT sales, marketing, or promotions."},
}

type labelResult struct {
	// Accepted label names, spelled as in Taxonomy.
	Names []string

	// The taxonomy the names were chosen from.
	Taxonomy []message.TopicLabel
}

type applyResult struct {
	Applied bool
	Added   []string
	Removed []string
}

func (e *Engine) getUserLabels(ctx context.Context, c *Context) ([]message.LabelRef, error) {
	labels, err := c.Provider.GetUserLabels(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing labels")
	}
	return labels, nil
}

// resolveTaxonomy returns the connection's custom topics, or the
// defaults when there are none.
func resolveTaxonomy(ctx context.Context, p MailProvider) ([]message.TopicLabel, error) {
	topics, err := p.GetUserTopics(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing topics")
	}
	if len(topics) > 0 {
		return topics, nil
	}
	return DefaultTopics, nil
}

func (e *Engine) generateLabels(ctx context.Context, c *Context) (*labelResult, error) {
	res, _ := lookup(c.results, threadSummaryKey)
	if res == nil || res.Summary == "" {
		return nil, errSkip
	}
	taxonomy, err := resolveTaxonomy(ctx, c.Provider)
	if err != nil {
		return nil, err
	}

	userLabels, _ := lookup(c.results, userLabelsKey)
	current := currentLabelNames(c.Thread.Labels, userLabels)
	out, err := e.ai.Chat(ctx, threadLabelsPrompt(taxonomy), threadLabelsInput(current, res.Summary))
	if err != nil {
		return nil, errors.Wrap(err, "generating labels")
	}
	return &labelResult{Names: parseLabelNames(out, taxonomy), Taxonomy: taxonomy}, nil
}

// currentLabelNames names the thread's labels, resolving bare IDs
// through the user's labels.
func currentLabelNames(onThread, userLabels []message.LabelRef) []string {
	byID := make(map[string]string, len(userLabels))
	for _, l := range userLabels {
		byID[l.ID] = l.Name
	}
	var names []string
	for _, l := range onThread {
		name := l.Name
		if name == "" {
			name = byID[l.ID]
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// parseLabelNames extracts taxonomy names from free-form model
// output.  Anything not in the taxonomy is dropped.
func parseLabelNames(out string, taxonomy []message.TopicLabel) []string {
	canonical := make(map[string]string, len(taxonomy))
	for _, t := range taxonomy {
		canonical[strings.ToLower(strings.TrimSpace(t.Name))] = t.Name
	}
	split := func(r rune) bool { return r == ',' || r == '\n' || r == ';' }
	seen := map[string]bool{}
	var names []string
	for _, part := range strings.FieldsFunc(out, split) {
		part = strings.Trim(part, " \t\r\"'`*-•.[]")
		if part == "" {
			continue
		}
		name, ok := canonical[strings.ToLower(part)]
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// reconcileLabels computes the label diff for a thread.  Only user
// labels whose names are in taxonomy may be added or removed; system
// labels and any other label on the thread are left alone whatever
// accepted says.
func reconcileLabels(accepted []string, taxonomy []message.TopicLabel, userLabels, onThread []message.LabelRef) (add, remove []string) {
	idByName := make(map[string]string, len(userLabels))
	for _, l := range userLabels {
		if l.Type != "user" {
			continue
		}
		idByName[strings.ToLower(l.Name)] = l.ID
	}

	acceptedIDs := map[string]bool{}
	for _, name := range accepted {
		if id, ok := idByName[strings.ToLower(name)]; ok {
			acceptedIDs[id] = true
		}
	}

	current := map[string]bool{}
	for _, l := range onThread {
		current[l.ID] = true
	}
	for _, name := range accepted {
		id, ok := idByName[strings.ToLower(name)]
		if ok && !current[id] && !contains(add, id) {
			add = append(add, id)
		}
	}

	managed := map[string]bool{}
	for _, t := range taxonomy {
		if id, ok := idByName[strings.ToLower(t.Name)]; ok {
			managed[id] = true
		}
	}
	for _, l := range onThread {
		if managed[l.ID] && !acceptedIDs[l.ID] && !contains(remove, l.ID) {
			remove = append(remove, l.ID)
		}
	}
	return add, remove
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (e *Engine) applyLabels(ctx context.Context, c *Context) (applyResult, error) {
	res, _ := lookup(c.results, labelsKey)
	if res == nil {
		return applyResult{}, errSkip
	}
	userLabels, _ := lookup(c.results, userLabelsKey)
	add, remove := reconcileLabels(res.Names, res.Taxonomy, userLabels, c.Thread.Labels)
	if len(add) == 0 && len(remove) == 0 {
		return applyResult{}, nil
	}
	if err := c.Provider.ModifyLabels(ctx, []string{c.ThreadID}, add, remove); err != nil {
		return applyResult{}, errors.Wrap(err, "modifying labels")
	}
	return applyResult{Applied: true, Added: add, Removed: remove}, nil
}

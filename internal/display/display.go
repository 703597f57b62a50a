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

// Package display formats threadmind output for the terminal.
package display

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/matta/threadmind/internal/message"
	msync "github.com/matta/threadmind/internal/sync"
	"github.com/matta/threadmind/internal/workflow"
)

var (
	Muted    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	Dim      = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3af"))
	Bold     = lipgloss.NewStyle().Bold(true)
	Success  = lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a"))
	Warn     = lipgloss.NewStyle().Foreground(lipgloss.Color("#d97706"))
	ErrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))
)

// StatusMark returns a colored mark for a step status.
func StatusMark(s workflow.Status) string {
	switch s {
	case workflow.StatusOK:
		return Success.Render("✓")
	case workflow.StatusSkipped:
		return Dim.Render("·")
	case workflow.StatusFailed:
		return ErrStyle.Render("✗")
	default:
		return Dim.Render("?")
	}
}

// Truncate shortens s to maxLen runes, adding an ellipsis if needed.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

func elapsed(d time.Duration) string {
	switch {
	case d == 0:
		return ""
	case d < time.Millisecond:
		return "<1ms"
	default:
		return d.Round(time.Millisecond).String()
	}
}

// Outcome prints a pipeline run, one line per step.
func Outcome(w io.Writer, o *workflow.Outcome) {
	title := fmt.Sprintf("%s  thread %s", o.Pipeline, o.ThreadID)
	fmt.Fprintf(w, "%s  %s\n", Bold.Render(title), Muted.Render(o.RunID))
	for _, r := range o.Steps {
		line := fmt.Sprintf("  %s %-26s %s", StatusMark(r.Status), r.Step, Dim.Render(elapsed(r.Elapsed)))
		fmt.Fprintln(w, strings.TrimRight(line, " "))
		if r.Err != nil {
			fmt.Fprintf(w, "      %s\n", ErrStyle.Render(Truncate(r.Err.Error(), 100)))
		}
	}
	if o.Aborted {
		fmt.Fprintf(w, "  %s\n", ErrStyle.Render("aborted: connection unusable"))
	}
}

// SyncResult prints the summary of a sync pass.
func SyncResult(w io.Writer, res *msync.Result) {
	if res.Baseline {
		SuccessMsg(w, "Recorded history position %d for %s; new mail is processed from here on", res.To, res.Account)
		return
	}
	if res.From == res.To {
		SuccessMsg(w, "%s is up to date at history position %d", res.Account, res.To)
		return
	}
	for _, o := range res.Outcomes {
		Outcome(w, o)
	}
	msg := fmt.Sprintf("Synced %s from %d to %d: %d threads", res.Account, res.From, res.To, len(res.Threads))
	if res.Failures > 0 {
		fmt.Fprintln(w, Warn.Render("!")+" "+fmt.Sprintf("%s, %d failed runs", msg, res.Failures))
		return
	}
	SuccessMsg(w, "%s", msg)
}

// Topics prints a taxonomy.
func Topics(w io.Writer, topics []message.TopicLabel, custom bool) {
	if custom {
		fmt.Fprintln(w, Bold.Render("Custom topics"))
	} else {
		fmt.Fprintln(w, Bold.Render("Default topics")+" "+Muted.Render("(no custom topics configured)"))
	}
	for _, t := range topics {
		fmt.Fprintf(w, "  %-20s %s\n", t.Name, Dim.Render(Truncate(t.Usecase, 80)))
	}
}

// SuccessMsg prints a green checkmark and a message.
func SuccessMsg(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, Success.Render("✓")+" "+fmt.Sprintf(format, args...))
}

// ErrorMsg prints a red X and a message.
func ErrorMsg(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, ErrStyle.Render("✗")+" "+fmt.Sprintf(format, args...))
}

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

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/matta/threadmind/internal/display"
	"github.com/matta/threadmind/internal/gmailhttp"
	msync "github.com/matta/threadmind/internal/sync"
	"github.com/matta/threadmind/internal/workflow"
)

// stepJSON is a StepReport with the error flattened to text.
type stepJSON struct {
	Step      workflow.StepID `json:"step"`
	Status    workflow.Status `json:"status"`
	Error     string          `json:"error,omitempty"`
	ElapsedMS int64           `json:"elapsed_ms"`
}

type outcomeJSON struct {
	RunID    string     `json:"run_id"`
	Pipeline string     `json:"pipeline"`
	ThreadID string     `json:"thread_id"`
	Aborted  bool       `json:"aborted,omitempty"`
	Steps    []stepJSON `json:"steps"`
}

func toJSON(o *workflow.Outcome) outcomeJSON {
	out := outcomeJSON{RunID: o.RunID, Pipeline: o.Pipeline, ThreadID: o.ThreadID, Aborted: o.Aborted}
	for _, r := range o.Steps {
		s := stepJSON{Step: r.Step, Status: r.Status, ElapsedMS: r.Elapsed.Milliseconds()}
		if r.Err != nil {
			s.Error = r.Err.Error()
		}
		out.Steps = append(out.Steps, s)
	}
	return out
}

func printOutcome(w io.Writer, o *workflow.Outcome) error {
	if jsonOutput {
		return writeJSON(w, toJSON(o))
	}
	display.Outcome(w, o)
	return nil
}

// runThread runs one pipeline against one thread.
func runThread(cmd *cobra.Command, threadID string, run func(*msync.Pipelines, context.Context, string) (*workflow.Outcome, error)) error {
	ctx := cmd.Context()
	a, err := openMailbox(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	p := &msync.Pipelines{Engine: a.engine, Connection: a.conn, Provider: a.gmail}
	outcome, err := run(p, ctx, threadID)
	if outcome != nil {
		if perr := printOutcome(cmd.OutOrStdout(), outcome); perr != nil {
			return perr
		}
	}
	return err
}

var updateCmd = &cobra.Command{
	Use:   "update THREAD_ID",
	Short: "Update a thread's embeddings, summary and labels",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runThread(cmd, args[0], (*msync.Pipelines).MailboxUpdate)
	},
}

var draftCmd = &cobra.Command{
	Use:   "draft THREAD_ID",
	Short: "Write a reply draft if the thread's newest message needs one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runThread(cmd, args[0], (*msync.Pipelines).AutoDraft)
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Process threads changed since the last sync",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openMailbox(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		p := &msync.Pipelines{Engine: a.engine, Connection: a.conn, Provider: a.gmail}
		res, err := msync.Sync(ctx, a.gmail, a.db, p)
		if err != nil {
			return errors.Wrap(err, "unable to synchronize")
		}
		if jsonOutput {
			out := struct {
				Account  string        `json:"account"`
				From     uint64        `json:"from"`
				To       uint64        `json:"to"`
				Baseline bool          `json:"baseline,omitempty"`
				Threads  []string      `json:"threads"`
				Failures int           `json:"failures"`
				Outcomes []outcomeJSON `json:"outcomes"`
			}{res.Account, res.From, res.To, res.Baseline, res.Threads, res.Failures, nil}
			for _, o := range res.Outcomes {
				out.Outcomes = append(out.Outcomes, toJSON(o))
			}
			return writeJSON(cmd.OutOrStdout(), out)
		}
		display.SyncResult(cmd.OutOrStdout(), res)
		return nil
	},
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize access to the Gmail mailbox",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := gmailhttp.Authorize(cmd.Context(), cfg.CredentialsPath, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Run \"threadmind sync\" to record the starting point.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(authCmd, syncCmd, updateCmd, draftCmd)
}

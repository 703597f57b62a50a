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
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/matta/threadmind/internal/display"
	"github.com/matta/threadmind/internal/message"
	"github.com/matta/threadmind/internal/persist"
	"github.com/matta/threadmind/internal/workflow"
)

// withTopics opens the database for the configured account.  Only
// when no account is configured is Gmail asked for the address.
func withTopics(ctx context.Context, fn func(db *persist.DB, account string) error) error {
	if cfg.Account == "" {
		a, err := openMailbox(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(a.db, a.conn.ID)
	}
	db, err := persist.Open(ctx, cfg.DBPath)
	if err != nil {
		return errors.Wrap(err, "unable to initialize database")
	}
	defer db.Close()
	return fn(db, cfg.Account)
}

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Manage the label taxonomy",
}

var topicsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the taxonomy used for labeling",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTopics(cmd.Context(), func(db *persist.DB, account string) error {
			topics, err := db.Topics(cmd.Context(), account)
			if err != nil {
				return err
			}
			custom := len(topics) > 0
			if !custom {
				topics = workflow.DefaultTopics
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), topics)
			}
			display.Topics(cmd.OutOrStdout(), topics, custom)
			return nil
		})
	},
}

var topicsAddCmd = &cobra.Command{
	Use:   "add NAME USECASE",
	Short: "Add or update a custom topic",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		t := message.TopicLabel{Name: strings.TrimSpace(args[0]), Usecase: strings.TrimSpace(args[1])}
		if t.Name == "" {
			return errors.New("topic name must not be empty")
		}
		return withTopics(cmd.Context(), func(db *persist.DB, account string) error {
			if err := db.PutTopic(cmd.Context(), account, t); err != nil {
				return err
			}
			display.SuccessMsg(cmd.OutOrStdout(), "Saved topic %q", t.Name)
			return nil
		})
	},
}

var topicsRemoveCmd = &cobra.Command{
	Use:   "remove NAME",
	Short: "Remove a custom topic",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTopics(cmd.Context(), func(db *persist.DB, account string) error {
			ok, err := db.RemoveTopic(cmd.Context(), account, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return errors.Errorf("no topic named %q", args[0])
			}
			display.SuccessMsg(cmd.OutOrStdout(), "Removed topic %q; existing %s labels are left in place", args[0], args[0])
			return nil
		})
	},
}

// missingLabels returns the topics with no label of the same name,
// compared case-insensitively.
func missingLabels(topics []message.TopicLabel, labels []message.LabelRef) []string {
	have := make(map[string]bool, len(labels))
	for _, l := range labels {
		have[strings.ToLower(l.Name)] = true
	}
	var missing []string
	for _, t := range topics {
		if !have[strings.ToLower(t.Name)] {
			missing = append(missing, t.Name)
		}
	}
	return missing
}

var topicsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Create Gmail labels for topics that have none",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openMailbox(ctx, false)
		if err != nil {
			return err
		}
		defer a.Close()

		topics, err := a.gmail.GetUserTopics(ctx)
		if err != nil {
			return err
		}
		if len(topics) == 0 {
			topics = workflow.DefaultTopics
		}
		labels, err := a.gmail.GetUserLabels(ctx)
		if err != nil {
			return err
		}
		missing := missingLabels(topics, labels)
		for _, name := range missing {
			l, err := a.gmail.CreateLabel(ctx, name)
			if err != nil {
				return err
			}
			display.SuccessMsg(cmd.OutOrStdout(), "Created label %q (%s)", l.Name, l.ID)
		}
		if len(missing) == 0 {
			display.SuccessMsg(cmd.OutOrStdout(), "All %d topics have labels", len(topics))
		}
		return nil
	},
}

func init() {
	topicsCmd.AddCommand(topicsListCmd, topicsAddCmd, topicsRemoveCmd, topicsSyncCmd)
	rootCmd.AddCommand(topicsCmd)
}

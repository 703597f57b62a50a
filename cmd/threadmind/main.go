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

// Command threadmind keeps a Gmail mailbox summarized, labeled and
// answered: every changed thread gets message embeddings, a thread
// summary and topic labels, and new questions get reply drafts.
package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/matta/threadmind/internal/ai"
	"github.com/matta/threadmind/internal/config"
	"github.com/matta/threadmind/internal/display"
	"github.com/matta/threadmind/internal/gmail"
	"github.com/matta/threadmind/internal/gmailhttp"
	"github.com/matta/threadmind/internal/message"
	"github.com/matta/threadmind/internal/persist"
	"github.com/matta/threadmind/internal/tracehttp"
	"github.com/matta/threadmind/internal/workflow"
)

var (
	configPath string
	flagTrace  bool
	jsonOutput bool
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "threadmind",
	Short:         "threadmind - Gmail summaries, topic labels and reply drafts",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return errors.Wrap(err, "unable to load configuration")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
			return errors.Wrap(err, "unable to create state directory")
		}
		return nil
	},
}

// app is everything a command needs to touch one mailbox.
type app struct {
	db     *persist.DB
	gmail  *gmail.Service
	engine *workflow.Engine
	conn   message.Connection
}

func (a *app) Close() error {
	return a.db.Close()
}

func transport() http.RoundTripper {
	if flagTrace {
		return tracehttp.Wrap(http.DefaultTransport)
	}
	return nil
}

// openMailbox opens the database and the Gmail connection.  The AI
// client is only created when withAI is set.
func openMailbox(ctx context.Context, withAI bool) (*app, error) {
	db, err := persist.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, errors.Wrap(err, "unable to initialize database")
	}
	a := &app{db: db}

	client, err := gmailhttp.New(ctx, cfg.CredentialsPath, transport())
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "unable to initialize GMail HTTP client")
	}
	a.gmail, err = gmail.New(ctx, client, nil)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "unable to initialize GMail")
	}

	profile, err := a.gmail.GetProfile(ctx)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "unable to read GMail profile")
	}
	account := cfg.Account
	if account == "" {
		account = profile.EmailAddress
	}
	a.gmail.UseTopics(db.TopicSource(account))
	a.conn = message.Connection{
		ID:         account,
		ProviderID: "gmail",
		Email:      profile.EmailAddress,
		Name:       cfg.Name,
		AutoDraft:  cfg.AutoDraft,
	}

	if withAI {
		aiCfg := cfg.AI()
		if flagTrace {
			aiCfg.HTTPClient = &http.Client{Transport: transport()}
		}
		inference, err := ai.New(ctx, aiCfg)
		if err != nil {
			db.Close()
			return nil, errors.Wrap(err, "unable to initialize Gemini")
		}
		a.engine = workflow.NewEngine(inference, db.Index(persist.MessageIndex), db.Index(persist.ThreadIndex))
	}
	return a, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Configuration file")
	rootCmd.PersistentFlags().BoolVarP(&flagTrace, "trace", "T", false, "request debug tracing")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
}

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		display.ErrorMsg(os.Stderr, "%v", err)
		os.Exit(1)
	}
}

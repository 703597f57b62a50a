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

// Package config loads threadmind's configuration file and applies
// environment overrides.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"

	"github.com/matta/threadmind/internal/ai"
	"github.com/matta/threadmind/internal/homedir"
)

// Environment variables that override the file.
const (
	EnvAPIKey         = "GOOGLE_API_KEY"
	EnvChatModel      = "THREADMIND_CHAT_MODEL"
	EnvEmbeddingModel = "THREADMIND_EMBED_MODEL"
	EnvDBPath         = "THREADMIND_DB"
	EnvAutoDraft      = "THREADMIND_AUTO_DRAFT"
)

// Config holds application configuration.
type Config struct {
	// DBPath is the SQLite database holding vectors, topics and the
	// sync position.
	DBPath string `json:"db_path"`

	// CredentialsPath points at the OAuth client credentials.json.
	// The token is kept in token.json in the same directory.
	CredentialsPath string `json:"credentials_path"`

	// Account identifies the connection, normally the mailbox
	// address.  Empty means the address reported by Gmail.
	Account string `json:"account,omitempty"`

	// Name signs reply drafts.
	Name string `json:"name,omitempty"`

	GeminiAPIKey        string  `json:"gemini_api_key,omitempty"`
	ChatModel           string  `json:"chat_model"`
	EmbeddingModel      string  `json:"embedding_model"`
	EmbeddingDimensions int     `json:"embedding_dimensions"`
	AIRequestsPerSecond float64 `json:"ai_requests_per_second"`

	// AutoDraft allows reply drafts to be written during sync.
	AutoDraft bool `json:"auto_draft,omitempty"`
}

// Dir is the default directory for configuration and state.
func Dir() string {
	return filepath.Join(homedir.Get(), ".threadmind")
}

// DefaultPath is the default configuration file.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.json")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DBPath:              filepath.Join(Dir(), "threadmind.db"),
		CredentialsPath:     filepath.Join(Dir(), "credentials.json"),
		ChatModel:           ai.DefaultChatModel,
		EmbeddingModel:      ai.DefaultEmbeddingModel,
		EmbeddingDimensions: ai.DefaultEmbeddingDimensions,
		AIRequestsPerSecond: 5,
	}
}

// Load reads the configuration at path on top of the defaults, then
// applies environment overrides.  A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parsing %s", path)
		}
	case !os.IsNotExist(err):
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	cfg.DBPath = homedir.Expand(cfg.DBPath)
	cfg.CredentialsPath = homedir.Expand(cfg.CredentialsPath)
	return cfg, nil
}

// ApplyEnv overrides fields from non-empty environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvAPIKey); v != "" {
		c.GeminiAPIKey = v
	}
	if v := getenv(EnvChatModel); v != "" {
		c.ChatModel = v
	}
	if v := getenv(EnvEmbeddingModel); v != "" {
		c.EmbeddingModel = v
	}
	if v := getenv(EnvDBPath); v != "" {
		c.DBPath = v
	}
	if v := getenv(EnvAutoDraft); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "parsing %s", EnvAutoDraft)
		}
		c.AutoDraft = b
	}
	return nil
}

// AI returns the inference client settings.
func (c *Config) AI() ai.Config {
	return ai.Config{
		APIKey:              c.GeminiAPIKey,
		ChatModel:           c.ChatModel,
		EmbeddingModel:      c.EmbeddingModel,
		EmbeddingDimensions: c.EmbeddingDimensions,
		RequestsPerSecond:   c.AIRequestsPerSecond,
	}
}

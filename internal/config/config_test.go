package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/matta/threadmind/internal/ai"
)

func TestLoad_DefaultWhenMissing(t *testing.T) {
	t.Setenv("HOME", "/home/u")
	t.Setenv(EnvDBPath, "")
	t.Setenv(EnvAPIKey, "")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DBPath != "/home/u/.threadmind/threadmind.db" {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, "/home/u/.threadmind/threadmind.db")
	}
	if cfg.ChatModel != ai.DefaultChatModel {
		t.Errorf("ChatModel = %q, want %q", cfg.ChatModel, ai.DefaultChatModel)
	}
	if cfg.AutoDraft {
		t.Errorf("AutoDraft = true, want false")
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	t.Setenv("HOME", "/home/u")
	t.Setenv(EnvDBPath, "")
	t.Setenv(EnvChatModel, "")
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"db_path": "~/mail.db", "chat_model": "gemini-x", "auto_draft": true}`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DBPath != "/home/u/mail.db" {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, "/home/u/mail.db")
	}
	if cfg.ChatModel != "gemini-x" {
		t.Errorf("ChatModel = %q, want %q", cfg.ChatModel, "gemini-x")
	}
	if cfg.EmbeddingModel != ai.DefaultEmbeddingModel {
		t.Errorf("EmbeddingModel = %q, want the default", cfg.EmbeddingModel)
	}
	if !cfg.AutoDraft {
		t.Errorf("AutoDraft = false, want true")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{not json}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvAPIKey:         "key",
		EnvChatModel:      "chat",
		EnvEmbeddingModel: "embed",
		EnvDBPath:         "/tmp/x.db",
		EnvAutoDraft:      "true",
	}
	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	got := cfg.AI()
	if got.APIKey != "key" || got.ChatModel != "chat" || got.EmbeddingModel != "embed" {
		t.Errorf("AI() = %+v, want key/chat/embed", got)
	}
	if cfg.DBPath != "/tmp/x.db" || !cfg.AutoDraft {
		t.Errorf("DBPath, AutoDraft = %q, %v, want /tmp/x.db, true", cfg.DBPath, cfg.AutoDraft)
	}

	env[EnvAutoDraft] = "sometimes"
	if err := cfg.ApplyEnv(func(k string) string { return env[k] }); err == nil {
		t.Errorf("ApplyEnv() with bad bool = nil, want error")
	}
}

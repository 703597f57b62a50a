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

// Package ai runs chat completions and embeddings against Gemini.
package ai

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const (
	DefaultChatModel      = "gemini-2.5-flash"
	DefaultEmbeddingModel = "gemini-embedding-001"

	// Matches the dimension of the stored vectors.
	DefaultEmbeddingDimensions = 768

	defaultRequestsPerSecond = 5

	maxAttempts = 4
	baseBackoff = 2 * time.Second
)

var ErrEmptyResponse = errors.New("empty model response")

// Config selects models and throughput.
type Config struct {
	APIKey              string
	ChatModel           string
	EmbeddingModel      string
	EmbeddingDimensions int

	// Requests per second across chat and embedding calls.
	RequestsPerSecond float64

	// HTTPClient, if set, carries the API requests.
	HTTPClient *http.Client
}

// Client is safe for concurrent use.
type Client struct {
	client  *genai.Client
	limiter *rate.Limiter
	cfg     Config
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("no Gemini API key configured")
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.EmbeddingDimensions == 0 {
		cfg.EmbeddingDimensions = DefaultEmbeddingDimensions
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultRequestsPerSecond
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating genai client")
	}
	l := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1)
	return &Client{client: c, limiter: l, cfg: cfg}, nil
}

// Chat answers userPrompt under systemPrompt.
func (c *Client) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.2),
	}
	var out string
	err := c.retry(ctx, "chat", func() error {
		resp, err := c.client.Models.GenerateContent(ctx, c.cfg.ChatModel, genai.Text(userPrompt), config)
		if err != nil {
			return err
		}
		out, err = responseText(resp)
		return err
	})
	return out, err
}

// Embed returns the embedding of text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	dims := int32(c.cfg.EmbeddingDimensions)
	config := &genai.EmbedContentConfig{OutputDimensionality: &dims}
	var out []float32
	err := c.retry(ctx, "embed", func() error {
		resp, err := c.client.Models.EmbedContent(ctx, c.cfg.EmbeddingModel, genai.Text(text), config)
		if err != nil {
			return err
		}
		if resp == nil || len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
			return ErrEmptyResponse
		}
		out = resp.Embeddings[0].Values
		return nil
	})
	return out, err
}

// retry runs call under the rate limiter, retrying quota and server
// errors with exponential backoff.
func (c *Client) retry(ctx context.Context, op string, call func() error) error {
	backoff := baseBackoff
	for attempt := 1; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		err := call()
		if err == nil {
			return nil
		}
		if attempt >= maxAttempts || !retryable(err) {
			return errors.Wrapf(err, "gemini %s", op)
		}
		log.Printf("gemini %s: attempt %d failed, retrying in %v: %v", op, attempt, backoff, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func retryable(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	return false
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

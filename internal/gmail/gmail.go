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

// Package gmail adapts the Gmail API to the mail provider operations
// the pipelines need.  Every error it returns is a
// message.ProviderError.
package gmail

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/matta/threadmind/internal/message"
)

var Scopes = []string{
	gmail.GmailModifyScope,
	gmail.GmailComposeScope,
}

const (
	// See https://developers.google.com/gmail/api/reference/quota
	quotaUnitsThreadsGet     = 10
	quotaUnitsThreadsModify  = 10
	quotaUnitsPerGetProfile  = 1
	quotaUnitsPerHistoryList = 2
	quotaUnitsLabelsList     = 1
	quotaUnitsLabelsCreate   = 5
	quotaUnitsDraftsCreate   = 10

	quotaUnitsPerSecond = 250
	rateLimitPerSecond  = quotaUnitsPerSecond * 0.8
	rateLimitBurst      = quotaUnitsPerSecond

	maxAttempts = 5
	baseBackoff = time.Second
	maxBackoff  = 30 * time.Second
)

const (
	// Threads modified per chunk in ModifyLabels.
	ModifyChunkSize = 15

	// Default pause between ModifyLabels chunks.
	ModifyChunkDelay = time.Second
)

// TopicLister supplies a connection's custom label taxonomy.
type TopicLister interface {
	GetUserTopics(ctx context.Context) ([]message.TopicLabel, error)
}

// Service provides access to one Gmail mailbox.
type Service struct {
	service *gmail.Service
	limiter *rate.Limiter
	topics  TopicLister

	// Pause between ModifyLabels chunks.
	ModifyChunkDelay time.Duration
}

// New returns a Service using client, which must carry OAuth
// credentials for Scopes.  topics may be nil, meaning the mailbox has
// no custom taxonomy.
func New(ctx context.Context, client *http.Client, topics TopicLister) (*Service, error) {
	s, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, errors.Wrap(err, "creating gmail service")
	}
	l := rate.NewLimiter(rateLimitPerSecond, rateLimitBurst)
	return &Service{service: s, limiter: l, topics: topics, ModifyChunkDelay: ModifyChunkDelay}, nil
}

// UseTopics sets the custom taxonomy source, e.g. once the mailbox
// address is known.
func (s *Service) UseTopics(topics TopicLister) {
	s.topics = topics
}

// classify turns an API error into a message.ProviderError.  Revoked
// or expired grants are fatal; everything else is transient.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var perr *message.ProviderError
	if errors.As(err, &perr) {
		return err
	}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		switch rerr.ErrorCode {
		case "invalid_grant", "unauthorized_client":
			return message.Fatal(op, err)
		}
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusUnauthorized {
		return message.Fatal(op, err)
	}
	if strings.Contains(err.Error(), "invalid_grant") {
		return message.Fatal(op, err)
	}
	return message.Transient(op, err)
}

// retryable reports whether err is a quota or server error worth
// another attempt.
func retryable(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	if gerr.Code == http.StatusTooManyRequests || gerr.Code >= http.StatusInternalServerError {
		return true
	}
	if gerr.Code == http.StatusForbidden {
		for _, item := range gerr.Errors {
			if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
				return true
			}
		}
	}
	return false
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

func backoff(attempt int) time.Duration {
	d := baseBackoff << uint(attempt-1)
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// do runs call under the rate limiter, retrying quota and server
// errors with bounded backoff, and classifies the final error.
func (s *Service) do(ctx context.Context, op string, units int, call func() error) error {
	for attempt := 1; ; attempt++ {
		if err := s.limiter.WaitN(ctx, units); err != nil {
			return message.Transient(op, err)
		}
		err := call()
		if err == nil {
			return nil
		}
		if attempt >= maxAttempts || !retryable(err) {
			return classify(op, err)
		}
		d := backoff(attempt)
		log.Printf("gmail %s: attempt %d failed, retrying in %v: %v", op, attempt, d, err)
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return message.Transient(op, ctx.Err())
		case <-t.C:
		}
	}
}

func (s *Service) GetProfile(ctx context.Context) (*message.Profile, error) {
	var u *gmail.Profile
	err := s.do(ctx, "users.getProfile", quotaUnitsPerGetProfile, func() (err error) {
		u, err = s.service.Users.GetProfile("me").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return &message.Profile{
		EmailAddress: u.EmailAddress,
		HistoryID:    u.HistoryId,
	}, nil
}

// ListFrom calls handler for every message added since historyID.
// It returns message.ErrHistoryExpired (wrapped) when Gmail no longer
// has history that far back.
func (s *Service) ListFrom(ctx context.Context, historyID uint64, handler func(*message.Added) error) error {
	req := s.service.Users.History.List("me").HistoryTypes("messageAdded").StartHistoryId(historyID)
	total := 0
	pageToken := ""
	for {
		var page *gmail.ListHistoryResponse
		err := s.do(ctx, "history.list", quotaUnitsPerHistoryList, func() (err error) {
			if pageToken != "" {
				req.PageToken(pageToken)
			}
			page, err = req.Context(ctx).Do()
			return err
		})
		if err != nil {
			if isNotFound(err) {
				return errors.Wrapf(message.ErrHistoryExpired, "listing history from %d", historyID)
			}
			return errors.Wrap(err, "unable to list history")
		}
		total += len(page.History)
		log.Printf("listed page of Gmail history; count %d; total so far %d", len(page.History), total)
		for _, h := range page.History {
			for _, added := range h.MessagesAdded {
				if added.Message == nil {
					continue
				}
				a := &message.Added{
					MessageID: added.Message.Id,
					ThreadID:  added.Message.ThreadId,
					LabelIDs:  added.Message.LabelIds,
				}
				if err := handler(a); err != nil {
					return err
				}
			}
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}
	log.Printf("done listing Gmail history; total %d", total)
	return nil
}

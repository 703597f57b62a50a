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

/*
Package gmailhttp builds HTTP clients authorized for the Gmail API.

The OAuth client is read from a credentials.json file downloaded from
the Google Cloud console (a "Desktop app" client).  The user's token
is kept in token.json next to it.  Refreshed tokens are written back,
so a long lived refresh token keeps working across runs.

BUGS:

A revoked or expired refresh token surfaces as an "invalid_grant"
error from the first API call, not from New.  Callers must treat that
as fatal for the connection and run Authorize again.
*/
package gmailhttp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/matta/threadmind/internal/gmail"
)

// TokenPath returns the token.json path that belongs to
// credentialsPath.
func TokenPath(credentialsPath string) string {
	return filepath.Join(filepath.Dir(credentialsPath), "token.json")
}

func loadConfig(credentialsPath string) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading credentials from %s", credentialsPath)
	}
	config, err := google.ConfigFromJSON(data, gmail.Scopes...)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing credentials %s", credentialsPath)
	}
	return config, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, errors.Wrapf(err, "parsing token %s", path)
	}
	return &tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// savingTokenSource writes every new access token to path.
type savingTokenSource struct {
	src  oauth2.TokenSource
	path string

	mu   sync.Mutex
	last string
}

// Token returns a token from the underlying source, saving it when it
// changed.  Satisfies oauth2.TokenSource.
func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := saveToken(s.path, tok); err != nil {
			log.Printf("warning: could not save refreshed token to %s: %v", s.path, err)
		}
	}
	return tok, nil
}

// New returns an HTTP client capable of using the Gmail API.  base,
// if non-nil, carries the requests, e.g. a tracing transport.
func New(ctx context.Context, credentialsPath string, base http.RoundTripper) (*http.Client, error) {
	config, err := loadConfig(credentialsPath)
	if err != nil {
		return nil, err
	}
	tokenPath := TokenPath(credentialsPath)
	tok, err := loadToken(tokenPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Errorf("no token at %s; run \"threadmind auth\" first", tokenPath)
		}
		return nil, err
	}
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: base})
	}
	src := &savingTokenSource{
		src:  config.TokenSource(ctx, tok),
		path: tokenPath,
		last: tok.AccessToken,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

// Authorize runs the interactive consent flow: it prints a URL, reads
// the authorization code from in and stores the resulting token next
// to the credentials.
func Authorize(ctx context.Context, credentialsPath string, in io.Reader, out io.Writer) error {
	config, err := loadConfig(credentialsPath)
	if err != nil {
		return err
	}
	url := config.AuthCodeURL("threadmind", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintf(out, "Open this URL, approve access, then paste the authorization code:\n\n%s\n\ncode: ", url)

	code, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return errors.Wrap(err, "reading authorization code")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return errors.New("no authorization code entered")
	}
	tok, err := config.Exchange(ctx, code)
	if err != nil {
		return errors.Wrap(err, "exchanging authorization code")
	}
	path := TokenPath(credentialsPath)
	if err := saveToken(path, tok); err != nil {
		return errors.Wrapf(err, "saving token to %s", path)
	}
	fmt.Fprintf(out, "Token saved to %s\n", path)
	return nil
}

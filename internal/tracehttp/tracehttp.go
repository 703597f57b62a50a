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

// Package tracehttp logs HTTP traffic for debugging.
package tracehttp

import (
	"log"
	"net/http"
	"net/http/httputil"
	"regexp"
)

// Header lines whose values must never reach a log.
var secretHeader = regexp.MustCompile(`(?im)^((?:Authorization|X-Goog-Api-Key|Cookie|Set-Cookie):).*$`)

func redact(dump []byte) string {
	return secretHeader.ReplaceAllString(string(dump), "$1 REDACTED")
}

// traceTransport is an http.RoundTripper that logs the request and
// response while delegating the real work to another
// http.RoundTripper.
type traceTransport struct {
	delegate http.RoundTripper
	logf     func(format string, args ...any)
}

// RoundTrip logs a dump of the request and response while delegating
// the round trip to the delegate.
func (t *traceTransport) RoundTrip(req *http.Request) (resp *http.Response, err error) {
	dump, dumpErr := httputil.DumpRequestOut(req, true)
	if dumpErr == nil {
		t.logf("http request:\n%s", redact(dump))
	}
	resp, err = t.delegate.RoundTrip(req)
	if err != nil {
		t.logf("http error: %s %s: %v", req.Method, req.URL.Redacted(), err)
		return resp, err
	}
	dump, dumpErr = httputil.DumpResponse(resp, true)
	if dumpErr == nil {
		t.logf("http response:\n%s", redact(dump))
	}
	return resp, err
}

// Wrap returns a RoundTripper that logs through the standard logger.
func Wrap(d http.RoundTripper) http.RoundTripper {
	return WrapLogf(d, log.Printf)
}

// WrapLogf returns a RoundTripper that logs through logf.
func WrapLogf(d http.RoundTripper, logf func(format string, args ...any)) http.RoundTripper {
	if d == nil {
		d = http.DefaultTransport
	}
	return &traceTransport{delegate: d, logf: logf}
}

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

package message

import (
	"github.com/pkg/errors"
)

// ProviderError is an error returned by a mail provider, classified
// by the provider adapter.
type ProviderError struct {
	// The provider operation that failed, e.g. "threads.get".
	Op string

	// Fatal errors mean the connection itself is unusable
	// (revoked or expired grant).  Everything else is transient.
	Fatal bool

	Err error
}

func (e *ProviderError) Error() string {
	kind := "transient"
	if e.Fatal {
		kind = "fatal"
	}
	return e.Op + ": " + kind + " provider error: " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Fatal wraps err as a fatal provider error for op.
func Fatal(op string, err error) error {
	return &ProviderError{Op: op, Fatal: true, Err: err}
}

// Transient wraps err as a transient provider error for op.
func Transient(op string, err error) error {
	return &ProviderError{Op: op, Err: err}
}

// IsFatal reports whether err, or anything it wraps, is a fatal
// provider error.
func IsFatal(err error) bool {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Fatal
	}
	return false
}

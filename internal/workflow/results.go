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

package workflow

import (
	"github.com/pkg/errors"
)

// StepID names a step.  Step IDs double as result keys.
type StepID string

// key is a typed handle on one step's result.  The type parameter
// is the step's result type, so a step can only ever store, and its
// readers only ever load, a value of that type.
type key[T any] struct {
	id StepID
}

// results holds the output of every step that has run so far in a
// single run.  Each step ID is written at most once.
type results struct {
	values map[StepID]any
}

func newResults() *results {
	return &results{values: map[StepID]any{}}
}

func (r *results) has(id StepID) bool {
	_, ok := r.values[id]
	return ok
}

func (r *results) put(id StepID, v any) error {
	if r.has(id) {
		return errors.Errorf("result for step %s already written", id)
	}
	r.values[id] = v
	return nil
}

// lookup returns the result stored under k.  ok is false when the
// step has not run, or was skipped.
func lookup[T any](r *results, k key[T]) (v T, ok bool) {
	raw, ok := r.values[k.id]
	if !ok {
		return v, false
	}
	v, ok = raw.(T)
	return v, ok
}

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

// Vector is an embedding plus its metadata, keyed by ID in a vector
// index.  Message vectors are keyed by message ID, thread summary
// vectors by thread ID.
type Vector struct {
	ID     string
	Values []float32

	// Metadata must survive a JSON round trip: strings, numbers,
	// booleans and nested maps/slices of those.
	Metadata map[string]any
}

// Metadata keys shared by every vector index.
const (
	MetaConnection = "connection"
	MetaThread     = "thread"
	MetaSummary    = "summary"
	MetaLastMsg    = "lastMsg"
)

// String returns the metadata value for key if it is a string.
func (v *Vector) String(key string) (string, bool) {
	if v.Metadata == nil {
		return "", false
	}
	s, ok := v.Metadata[key].(string)
	return s, ok
}

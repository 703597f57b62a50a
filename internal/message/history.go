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

// ErrHistoryExpired is returned when the provider no longer has
// history back to the requested position.
var ErrHistoryExpired = errors.New("history position expired")

// Profile is the per-account state of a mailbox.
type Profile struct {
	EmailAddress string

	// The mailbox's current history position.
	HistoryID uint64
}

// Added is a message that appeared in a mailbox since some history
// position.
type Added struct {
	MessageID string
	ThreadID  string
	LabelIDs  []string
}

// Outbound reports whether the message was sent from the mailbox
// rather than received into it.
func (a *Added) Outbound() bool {
	sent, draft := false, false
	for _, l := range a.LabelIDs {
		switch l {
		case "SENT":
			sent = true
		case "DRAFT":
			draft = true
		}
	}
	return sent || draft
}

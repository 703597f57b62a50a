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

// This file provides the common data objects used by the rest of the
// program.

import (
	"strings"
	"time"
)

// Address is a single mailbox in a From, To or Cc header.
type Address struct {
	Name  string
	Email string
}

// String formats the address the way it would appear in a header.
func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}
	return a.Name + " <" + a.Email + ">"
}

// SameMailbox reports whether a and b name the same email address,
// ignoring case and surrounding whitespace.
func (a Address) SameMailbox(b Address) bool {
	return strings.EqualFold(strings.TrimSpace(a.Email), strings.TrimSpace(b.Email))
}

// Message is a single fetched message.  Messages are immutable once
// fetched.
type Message struct {
	// The permanent and unique ID of a message in the provider.
	ID string

	// The ID of the thread the message belongs to.
	ThreadID string

	// The RFC 5322 Message-ID header, used to thread replies.  May
	// be empty.
	HeaderMessageID string

	Sender     Address
	To         []Address
	Cc         []Address
	Subject    string
	ReceivedOn time.Time

	// The decoded message body.  Either plain text or HTML,
	// whichever the provider offered first.
	DecodedBody string
}

// LabelRef is a label as known to the provider.  These identifiers
// are not the user visible label names!
type LabelRef struct {
	ID   string
	Name string

	// Either "system" or "user".
	Type string
}

// Thread is a provider-side conversation.
type Thread struct {
	ID           string
	ConnectionID string

	// Messages in ascending ReceivedOn order.
	Messages []Message

	// Labels currently applied to the thread.
	Labels []LabelRef
}

// Latest returns the newest message in the thread, or nil for an
// empty thread.
func (t *Thread) Latest() *Message {
	if t == nil || len(t.Messages) == 0 {
		return nil
	}
	return &t.Messages[len(t.Messages)-1]
}

// MessageIDs returns the IDs of every message in the thread, in
// thread order.
func (t *Thread) MessageIDs() []string {
	ids := make([]string, 0, len(t.Messages))
	for _, m := range t.Messages {
		ids = append(ids, m.ID)
	}
	return ids
}

// TopicLabel is one entry in a label taxonomy.
type TopicLabel struct {
	Name    string
	Usecase string
}

// Connection describes the mailbox a thread belongs to.
type Connection struct {
	ID         string
	ProviderID string
	Email      string
	Name       string

	// Whether reply drafts may be written automatically.
	AutoDraft bool
}

// Self returns the connection's own address.
func (c *Connection) Self() Address {
	return Address{Name: c.Name, Email: c.Email}
}

// Draft is a reply to be created in the provider's drafts folder.
type Draft struct {
	ThreadID  string
	To        []Address
	Cc        []Address
	Subject   string
	Body      string
	InReplyTo string
}

/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package model

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	// ExternalIDError marks an entry whose dispatch failed permanently.
	ExternalIDError = "ERROR"

	// RepostMarkerPrefix prefixes the external id of entries dispatched as reposts.
	RepostMarkerPrefix = "Reposted: "

	StatusPending = ""
	StatusPosted  = "posted"
	StatusFailed  = "error"
)

// Action is the provider operation a dispatch performed.
type Action string

const (
	ActionPost   Action = "post"
	ActionReply  Action = "reply"
	ActionQuote  Action = "quote"
	ActionRepost Action = "repost"
)

// PostEntry is one queued social-media action waiting to be dispatched.
type PostEntry struct {
	ID                string    `json:"id"`
	CreatedAt         time.Time `json:"created_at"`
	PostTo            string    `json:"post_to"`
	Contents          string    `json:"contents"`
	MediaAttachments  []string  `json:"media_attachments"`
	Schedule          string    `json:"schedule"`
	InReplyToInternal string    `json:"in_reply_to_internal,omitempty"`
	InReplyToExternal string    `json:"in_reply_to_external,omitempty"`
	QuoteID           string    `json:"quote_id,omitempty"`
	RepostTargetID    string    `json:"repost_target_id,omitempty"`
	ExternalID        string    `json:"external_id,omitempty"`
	Status            string    `json:"status,omitempty"`
	ErrorMessage      string    `json:"error_message,omitempty"`
}

// ArchiveEntry is a dispatched PostEntry together with the time the dispatch completed.
type ArchiveEntry struct {
	PostEntry
	PostedAt time.Time `json:"posted_at"`
}

// EntryUpdate names the queue fields to overwrite. Nil fields are left untouched.
type EntryUpdate struct {
	ExternalID   *string
	Status       *string
	ErrorMessage *string
}

// ErrorRecord is an append-only log line describing a failed operation.
type ErrorRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Context   string    `json:"context"`
	Message   string    `json:"message"`
	Stack     string    `json:"stack"`
}

// IsTerminal reports whether the entry already reached success or failure.
func (e *PostEntry) IsTerminal() bool {
	return strings.TrimSpace(e.ExternalID) != ""
}

// ScheduledAt returns the parsed schedule, if any.
func (e *PostEntry) ScheduledAt() (time.Time, bool) {
	return ParseSchedule(e.Schedule)
}

// Validate checks the fields an administrator must provide when queueing an entry.
func (e *PostEntry) Validate() error {
	return validation.ValidateStruct(e,
		validation.Field(&e.PostTo, validation.Required),
		validation.Field(&e.Schedule, validation.Required, validation.By(func(value interface{}) error {
			if _, ok := ParseSchedule(value.(string)); !ok {
				return validation.NewError("validation_schedule_format", "must be a valid date and time")
			}
			return nil
		})),
		validation.Field(&e.Contents, validation.When(!IsProviderID(e.RepostTargetID) && len(e.MediaAttachments) == 0, validation.Required)),
	)
}

// NewArchiveEntry copies entry into an archive record stamped with postedAt.
// Reply and quote references are dropped for reposts, where they carry no meaning.
func NewArchiveEntry(entry PostEntry, externalID string, postedAt time.Time, action Action) ArchiveEntry {
	archived := entry
	archived.MediaAttachments = append([]string(nil), entry.MediaAttachments...)
	archived.ExternalID = externalID
	archived.Status = StatusPosted
	archived.ErrorMessage = ""
	if action == ActionRepost {
		archived.InReplyToInternal = ""
		archived.InReplyToExternal = ""
		archived.QuoteID = ""
	}
	return ArchiveEntry{PostEntry: archived, PostedAt: postedAt}
}

// FailedUpdate builds the queue update that marks an entry as permanently failed.
func FailedUpdate(message string) EntryUpdate {
	externalID := ExternalIDError
	status := StatusFailed
	return EntryUpdate{ExternalID: &externalID, Status: &status, ErrorMessage: &message}
}

// PostedUpdate builds the queue update that records a provider id on an entry.
func PostedUpdate(externalID string) EntryUpdate {
	status := StatusPosted
	empty := ""
	return EntryUpdate{ExternalID: &externalID, Status: &status, ErrorMessage: &empty}
}

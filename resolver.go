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

package herald

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/herald/model"
)

// RecordScope names a collection the reply resolver searches.
type RecordScope string

const (
	ScopeArchive RecordScope = "archive"
	ScopeQueue   RecordScope = "queue"
)

// DefaultScopes is the search order used when none is given.
var DefaultScopes = []RecordScope{ScopeArchive, ScopeQueue}

type replyStore interface {
	ListQueue(ctx context.Context) ([]model.PostEntry, error)
	ListArchive(ctx context.Context) ([]model.ArchiveEntry, error)
}

// ReplyResolver maps an internal entry id to the provider id it was published under.
type ReplyResolver struct {
	store replyStore
}

// NewReplyResolver builds a resolver over the queue and archive in store.
func NewReplyResolver(store replyStore) *ReplyResolver {
	return &ReplyResolver{store: store}
}

// ResolveExternalID looks for internalID in each scope in turn and returns the first usable
// external id. Failed entries and repost markers are not usable and the search moves on.
// A scope that cannot be read is skipped; its error is returned only when no scope
// produced a match.
func (r *ReplyResolver) ResolveExternalID(ctx context.Context, internalID string, scopes ...RecordScope) (string, bool, error) {
	internalID = strings.TrimSpace(internalID)
	if internalID == "" {
		return "", false, nil
	}
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	var firstErr error
	for _, scope := range scopes {
		entries, err := r.entries(ctx, scope)
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"scope":       scope,
				"internal_id": internalID,
			}).Warn("failed to search scope, trying the next one")
			if firstErr == nil {
				firstErr = fmt.Errorf("search %s: %w", scope, err)
			}
			continue
		}
		for _, entry := range entries {
			if entry.ID != internalID {
				continue
			}
			if externalID, ok := usableExternalID(entry.ExternalID); ok {
				return externalID, true, nil
			}
		}
	}
	return "", false, firstErr
}

func (r *ReplyResolver) entries(ctx context.Context, scope RecordScope) ([]model.PostEntry, error) {
	switch scope {
	case ScopeQueue:
		return r.store.ListQueue(ctx)
	case ScopeArchive:
		archived, err := r.store.ListArchive(ctx)
		if err != nil {
			return nil, err
		}
		entries := make([]model.PostEntry, len(archived))
		for i, a := range archived {
			entries[i] = a.PostEntry
		}
		return entries, nil
	default:
		return nil, fmt.Errorf("unknown record scope %q", scope)
	}
}

func usableExternalID(externalID string) (string, bool) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" || externalID == model.ExternalIDError || model.IsRepostMarker(externalID) {
		return "", false
	}
	return externalID, true
}

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
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateUUIDWithSuffix generates a UUID with a given module name as a suffix.
// This is useful for creating unique identifiers with context-specific prefixes.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New() // Generate a new UUID.
	uuidStr := id.String()
	idWithSuffix := fmt.Sprintf("%s_%s", module, uuidStr) // Append the module as a suffix to the UUID.
	return idWithSuffix
}

var providerIDPattern = regexp.MustCompile(`^[0-9]+$`)

// IsProviderID reports whether id has the shape of a provider post id (digits only).
func IsProviderID(id string) bool {
	return providerIDPattern.MatchString(strings.TrimSpace(id))
}

// RepostMarker is the external id recorded for an entry that was dispatched as a repost.
func RepostMarker(targetID string) string {
	return RepostMarkerPrefix + strings.TrimSpace(targetID)
}

// IsRepostMarker reports whether externalID records a repost confirmation rather than a post id.
func IsRepostMarker(externalID string) bool {
	return strings.HasPrefix(externalID, RepostMarkerPrefix)
}

// scheduleLayouts lists the schedule formats accepted from the queue, most specific first.
var scheduleLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
}

// ParseSchedule converts a stored schedule value into an instant.
// Values without a zone are read as UTC. Bare integers are unix seconds.
func ParseSchedule(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range scheduleLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC(), true
	}
	return time.Time{}, false
}

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

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/blnkfinance/herald/internal/apierror"
	"github.com/blnkfinance/herald/model"
)

// postColumns is the storage column order shared by the queue and the archive.
// It is only used at this boundary; callers work with model.PostEntry fields.
var postColumns = []string{
	"post_id",
	"created_at",
	"post_to",
	"contents",
	"media_attachments",
	"schedule",
	"in_reply_to_internal",
	"in_reply_to_external",
	"quote_id",
	"repost_target_id",
	"external_id",
	"status",
	"error_message",
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func columnList(extra ...string) string {
	return strings.Join(append(append([]string{}, postColumns...), extra...), ", ")
}

func placeholders(n int) string {
	p := make([]string, n)
	for i := range p {
		p[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(p, ", ")
}

func postArgs(entry model.PostEntry) ([]interface{}, error) {
	media := entry.MediaAttachments
	if media == nil {
		media = []string{}
	}
	mediaJSON, err := json.Marshal(media)
	if err != nil {
		return nil, err
	}
	return []interface{}{
		entry.ID,
		entry.CreatedAt,
		entry.PostTo,
		entry.Contents,
		mediaJSON,
		entry.Schedule,
		entry.InReplyToInternal,
		entry.InReplyToExternal,
		entry.QuoteID,
		entry.RepostTargetID,
		entry.ExternalID,
		entry.Status,
		entry.ErrorMessage,
	}, nil
}

func scanPost(row rowScanner, extra ...interface{}) (model.PostEntry, error) {
	var entry model.PostEntry
	var mediaJSON []byte
	dest := append([]interface{}{
		&entry.ID,
		&entry.CreatedAt,
		&entry.PostTo,
		&entry.Contents,
		&mediaJSON,
		&entry.Schedule,
		&entry.InReplyToInternal,
		&entry.InReplyToExternal,
		&entry.QuoteID,
		&entry.RepostTargetID,
		&entry.ExternalID,
		&entry.Status,
		&entry.ErrorMessage,
	}, extra...)

	if err := row.Scan(dest...); err != nil {
		return entry, err
	}
	if len(mediaJSON) > 0 {
		if err := json.Unmarshal(mediaJSON, &entry.MediaAttachments); err != nil {
			return entry, err
		}
	}
	return entry, nil
}

// CreateQueueEntry validates and appends an entry to the end of the queue.
func (d Datasource) CreateQueueEntry(ctx context.Context, entry model.PostEntry) (model.PostEntry, error) {
	if err := entry.Validate(); err != nil {
		return entry, apierror.NewAPIError(apierror.ErrBadRequest, err.Error(), nil)
	}
	if entry.ID == "" {
		entry.ID = model.GenerateUUIDWithSuffix("post")
	}
	entry.CreatedAt = time.Now().UTC()
	entry.ExternalID = ""
	entry.Status = model.StatusPending
	entry.ErrorMessage = ""

	args, err := postArgs(entry)
	if err != nil {
		return entry, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal media attachments", err)
	}

	_, err = d.Conn.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO herald.post_queue (%s)
		VALUES (%s)
	`, columnList(), placeholders(len(postColumns))), args...)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return entry, apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Queue entry with ID '%s' already exists", entry.ID), err)
		}
		return entry, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create queue entry", err)
	}
	return entry, nil
}

// ListQueue returns every queue entry in insertion order.
func (d Datasource) ListQueue(ctx context.Context) ([]model.PostEntry, error) {
	rows, err := d.Conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM herald.post_queue
		ORDER BY position ASC
	`, columnList()))
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list queue", err)
	}
	defer rows.Close()

	var entries []model.PostEntry
	for rows.Next() {
		entry, err := scanPost(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan queue entry", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over queue", err)
	}
	return entries, nil
}

// GetQueueEntry reads one entry, or returns a NOT_FOUND error.
func (d Datasource) GetQueueEntry(ctx context.Context, id string) (*model.PostEntry, error) {
	row := d.Conn.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM herald.post_queue
		WHERE post_id = $1
	`, columnList()), id)

	entry, err := scanPost(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Queue entry with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve queue entry", err)
	}
	return &entry, nil
}

// UpdateQueueEntry overwrites only the fields set on update.
func (d Datasource) UpdateQueueEntry(ctx context.Context, id string, update model.EntryUpdate) error {
	var sets []string
	var args []interface{}
	add := func(column string, value *string) {
		if value == nil {
			return
		}
		args = append(args, *value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("external_id", update.ExternalID)
	add("status", update.Status)
	add("error_message", update.ErrorMessage)

	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	result, err := d.Conn.ExecContext(ctx, fmt.Sprintf(`
		UPDATE herald.post_queue
		SET %s
		WHERE post_id = $%d
	`, strings.Join(sets, ", "), len(args)), args...)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update queue entry", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read update result", err)
	}
	if affected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Queue entry with ID '%s' not found", id), nil)
	}
	return nil
}

// DeleteFromQueue removes an entry. Deleting a missing entry is not an error.
func (d Datasource) DeleteFromQueue(ctx context.Context, id string) error {
	_, err := d.Conn.ExecContext(ctx, `
		DELETE FROM herald.post_queue
		WHERE post_id = $1
	`, id)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to delete queue entry", err)
	}
	return nil
}

// MoveToArchive appends entry to the archive and removes it from the queue atomically.
func (d Datasource) MoveToArchive(ctx context.Context, entry model.ArchiveEntry) error {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}

	if err := insertArchive(ctx, tx, entry); err != nil {
		_ = tx.Rollback()
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to append archive entry", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM herald.post_queue
		WHERE post_id = $1
	`, entry.ID)
	if err != nil {
		_ = tx.Rollback()
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to delete queue entry", err)
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	return nil
}

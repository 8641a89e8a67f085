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
	"fmt"

	"github.com/blnkfinance/herald/internal/apierror"
	"github.com/blnkfinance/herald/model"
)

// execContexter is satisfied by both *sql.DB and *sql.Tx.
type execContexter interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertArchive(ctx context.Context, conn execContexter, entry model.ArchiveEntry) error {
	args, err := postArgs(entry.PostEntry)
	if err != nil {
		return err
	}
	args = append(args, entry.PostedAt)

	// archive appends are idempotent per post id
	_, err = conn.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO herald.post_archive (%s)
		VALUES (%s)
		ON CONFLICT (post_id) DO NOTHING
	`, columnList("posted_at"), placeholders(len(postColumns)+1)), args...)
	return err
}

// AppendToArchive records a dispatched entry. Appending the same post twice is a no-op.
func (d Datasource) AppendToArchive(ctx context.Context, entry model.ArchiveEntry) error {
	if err := insertArchive(ctx, d.Conn, entry); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to append archive entry", err)
	}
	return nil
}

// ListArchive returns archived entries in display order.
func (d Datasource) ListArchive(ctx context.Context) ([]model.ArchiveEntry, error) {
	rows, err := d.Conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM herald.post_archive
		ORDER BY display_order ASC, posted_at DESC
	`, columnList("posted_at")))
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list archive", err)
	}
	defer rows.Close()

	var entries []model.ArchiveEntry
	for rows.Next() {
		var archived model.ArchiveEntry
		entry, err := scanPost(rows, &archived.PostedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan archive entry", err)
		}
		archived.PostEntry = entry
		entries = append(entries, archived)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over archive", err)
	}
	return entries, nil
}

// SortArchive renumbers display_order so the most recently posted entry comes first.
func (d Datasource) SortArchive(ctx context.Context) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE herald.post_archive AS a
		SET display_order = s.rn
		FROM (
			SELECT post_id, row_number() OVER (ORDER BY posted_at DESC, post_id ASC) AS rn
			FROM herald.post_archive
		) AS s
		WHERE a.post_id = s.post_id
	`)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to sort archive", err)
	}
	return nil
}

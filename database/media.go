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
	"errors"
	"fmt"
	"time"

	"github.com/blnkfinance/herald/internal/apierror"
	"github.com/blnkfinance/herald/model"
)

// SaveMediaBlob stores a media payload and returns it with its generated id.
func (d Datasource) SaveMediaBlob(ctx context.Context, blob model.MediaBlob) (model.MediaBlob, error) {
	if len(blob.Data) == 0 {
		return blob, apierror.NewAPIError(apierror.ErrBadRequest, "media data is empty", nil)
	}
	if blob.ID == "" {
		blob.ID = model.GenerateUUIDWithSuffix("media")
	}
	blob.CreatedAt = time.Now().UTC()

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO herald.media_blobs (media_id, account_key, mime_type, data, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, blob.ID, blob.AccountKey, blob.MimeType, blob.Data, blob.CreatedAt)
	if err != nil {
		return blob, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to save media", err)
	}
	return blob, nil
}

// GetMediaBlob loads a stored media payload, or returns a NOT_FOUND error.
func (d Datasource) GetMediaBlob(ctx context.Context, id string) (*model.MediaBlob, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT media_id, account_key, mime_type, data, created_at
		FROM herald.media_blobs
		WHERE media_id = $1
	`, id)

	blob := &model.MediaBlob{}
	err := row.Scan(&blob.ID, &blob.AccountKey, &blob.MimeType, &blob.Data, &blob.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Media with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve media", err)
	}
	return blob, nil
}

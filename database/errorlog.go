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
	"time"

	"github.com/blnkfinance/herald/internal/apierror"
	"github.com/blnkfinance/herald/model"
)

const defaultErrorRecordLimit = 100

// AppendErrorRecord writes an append-only error record.
func (d Datasource) AppendErrorRecord(ctx context.Context, record model.ErrorRecord) error {
	if record.ID == "" {
		record.ID = model.GenerateUUIDWithSuffix("err")
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO herald.error_log (id, created_at, context, message, stack)
		VALUES ($1, $2, $3, $4, $5)
	`, record.ID, record.Timestamp, record.Context, record.Message, record.Stack)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to append error record", err)
	}
	return nil
}

// ListErrorRecords returns the most recent records first.
func (d Datasource) ListErrorRecords(ctx context.Context, limit int) ([]model.ErrorRecord, error) {
	if limit <= 0 {
		limit = defaultErrorRecordLimit
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, created_at, context, message, stack
		FROM herald.error_log
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list error records", err)
	}
	defer rows.Close()

	var records []model.ErrorRecord
	for rows.Next() {
		var r model.ErrorRecord
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Context, &r.Message, &r.Stack); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan error record", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

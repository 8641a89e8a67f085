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

// SaveTrigger records the interval a recurring pass was registered with.
func (d Datasource) SaveTrigger(ctx context.Context, trigger model.Trigger) error {
	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = time.Now().UTC()
	}

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO herald.scheduler_triggers (trigger_id, scheduler_id, interval_minutes, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (trigger_id) DO UPDATE
		SET scheduler_id = EXCLUDED.scheduler_id,
			interval_minutes = EXCLUDED.interval_minutes
	`, trigger.TriggerID, trigger.SchedulerID, trigger.IntervalMinutes, trigger.CreatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to save trigger", err)
	}
	return nil
}

// ListTriggers returns the triggers recorded for schedulerID, newest first.
func (d Datasource) ListTriggers(ctx context.Context, schedulerID string) ([]model.Trigger, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT trigger_id, scheduler_id, interval_minutes, created_at
		FROM herald.scheduler_triggers
		WHERE scheduler_id = $1
		ORDER BY created_at DESC
	`, schedulerID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list triggers", err)
	}
	defer rows.Close()

	var out []model.Trigger
	for rows.Next() {
		var t model.Trigger
		if err := rows.Scan(&t.TriggerID, &t.SchedulerID, &t.IntervalMinutes, &t.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan trigger", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteTrigger removes the record of one registered invocation.
func (d Datasource) DeleteTrigger(ctx context.Context, triggerID string) error {
	_, err := d.Conn.ExecContext(ctx, `
		DELETE FROM herald.scheduler_triggers
		WHERE trigger_id = $1
	`, triggerID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to delete trigger", err)
	}
	return nil
}

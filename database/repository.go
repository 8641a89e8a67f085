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

	"github.com/blnkfinance/herald/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	queue
	archive
	errorLog
	credentials
	media
	triggers
}

// queue holds entries waiting to be dispatched, in insertion order.
type queue interface {
	CreateQueueEntry(ctx context.Context, entry model.PostEntry) (model.PostEntry, error)
	ListQueue(ctx context.Context) ([]model.PostEntry, error)
	GetQueueEntry(ctx context.Context, id string) (*model.PostEntry, error)
	UpdateQueueEntry(ctx context.Context, id string, update model.EntryUpdate) error
	DeleteFromQueue(ctx context.Context, id string) error
	MoveToArchive(ctx context.Context, entry model.ArchiveEntry) error // archive insert and queue delete in one transaction
}

type archive interface {
	AppendToArchive(ctx context.Context, entry model.ArchiveEntry) error
	ListArchive(ctx context.Context) ([]model.ArchiveEntry, error)
	SortArchive(ctx context.Context) error // newest posted_at first
}

type errorLog interface {
	AppendErrorRecord(ctx context.Context, record model.ErrorRecord) error
	ListErrorRecords(ctx context.Context, limit int) ([]model.ErrorRecord, error)
}

type credentials interface {
	SaveCredentials(ctx context.Context, creds model.Credentials) error
	GetCredentials(ctx context.Context, accountKey string) (*model.Credentials, error)
	DeleteCredentials(ctx context.Context, accountKey string) error
}

type media interface {
	SaveMediaBlob(ctx context.Context, blob model.MediaBlob) (model.MediaBlob, error)
	GetMediaBlob(ctx context.Context, id string) (*model.MediaBlob, error)
}

type triggers interface {
	SaveTrigger(ctx context.Context, trigger model.Trigger) error
	ListTriggers(ctx context.Context, schedulerID string) ([]model.Trigger, error)
	DeleteTrigger(ctx context.Context, triggerID string) error
}

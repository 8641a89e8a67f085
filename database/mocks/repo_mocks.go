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

package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/blnkfinance/herald/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Queue methods

func (m *MockDataSource) CreateQueueEntry(ctx context.Context, entry model.PostEntry) (model.PostEntry, error) {
	args := m.Called(ctx, entry)
	return args.Get(0).(model.PostEntry), args.Error(1)
}

func (m *MockDataSource) ListQueue(ctx context.Context) ([]model.PostEntry, error) {
	args := m.Called(ctx)
	entries, _ := args.Get(0).([]model.PostEntry)
	return entries, args.Error(1)
}

func (m *MockDataSource) GetQueueEntry(ctx context.Context, id string) (*model.PostEntry, error) {
	args := m.Called(ctx, id)
	entry, _ := args.Get(0).(*model.PostEntry)
	return entry, args.Error(1)
}

func (m *MockDataSource) UpdateQueueEntry(ctx context.Context, id string, update model.EntryUpdate) error {
	args := m.Called(ctx, id, update)
	return args.Error(0)
}

func (m *MockDataSource) DeleteFromQueue(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDataSource) MoveToArchive(ctx context.Context, entry model.ArchiveEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// Archive methods

func (m *MockDataSource) AppendToArchive(ctx context.Context, entry model.ArchiveEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockDataSource) ListArchive(ctx context.Context) ([]model.ArchiveEntry, error) {
	args := m.Called(ctx)
	entries, _ := args.Get(0).([]model.ArchiveEntry)
	return entries, args.Error(1)
}

func (m *MockDataSource) SortArchive(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Error log methods

func (m *MockDataSource) AppendErrorRecord(ctx context.Context, record model.ErrorRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockDataSource) ListErrorRecords(ctx context.Context, limit int) ([]model.ErrorRecord, error) {
	args := m.Called(ctx, limit)
	records, _ := args.Get(0).([]model.ErrorRecord)
	return records, args.Error(1)
}

// Credential methods

func (m *MockDataSource) SaveCredentials(ctx context.Context, creds model.Credentials) error {
	args := m.Called(ctx, creds)
	return args.Error(0)
}

func (m *MockDataSource) GetCredentials(ctx context.Context, accountKey string) (*model.Credentials, error) {
	args := m.Called(ctx, accountKey)
	creds, _ := args.Get(0).(*model.Credentials)
	return creds, args.Error(1)
}

func (m *MockDataSource) DeleteCredentials(ctx context.Context, accountKey string) error {
	args := m.Called(ctx, accountKey)
	return args.Error(0)
}

// Media methods

func (m *MockDataSource) SaveMediaBlob(ctx context.Context, blob model.MediaBlob) (model.MediaBlob, error) {
	args := m.Called(ctx, blob)
	return args.Get(0).(model.MediaBlob), args.Error(1)
}

func (m *MockDataSource) GetMediaBlob(ctx context.Context, id string) (*model.MediaBlob, error) {
	args := m.Called(ctx, id)
	blob, _ := args.Get(0).(*model.MediaBlob)
	return blob, args.Error(1)
}

// Trigger methods

func (m *MockDataSource) SaveTrigger(ctx context.Context, trigger model.Trigger) error {
	args := m.Called(ctx, trigger)
	return args.Error(0)
}

func (m *MockDataSource) ListTriggers(ctx context.Context, schedulerID string) ([]model.Trigger, error) {
	args := m.Called(ctx, schedulerID)
	triggers, _ := args.Get(0).([]model.Trigger)
	return triggers, args.Error(1)
}

func (m *MockDataSource) DeleteTrigger(ctx context.Context, triggerID string) error {
	args := m.Called(ctx, triggerID)
	return args.Error(0)
}

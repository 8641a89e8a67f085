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
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/herald/internal/apierror"
	"github.com/blnkfinance/herald/model"
)

func newMock(t *testing.T) (Datasource, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return Datasource{Conn: db}, mock
}

func queueRows() *sqlmock.Rows {
	return sqlmock.NewRows(postColumns)
}

func addEntryRow(rows *sqlmock.Rows, e model.PostEntry, media string) *sqlmock.Rows {
	return rows.AddRow(e.ID, e.CreatedAt, e.PostTo, e.Contents, []byte(media), e.Schedule,
		e.InReplyToInternal, e.InReplyToExternal, e.QuoteID, e.RepostTargetID, e.ExternalID, e.Status, e.ErrorMessage)
}

func fakeEntry() model.PostEntry {
	return model.PostEntry{
		ID:        model.GenerateUUIDWithSuffix("post"),
		CreatedAt: time.Now().UTC(),
		PostTo:    gofakeit.Username(),
		Contents:  gofakeit.Sentence(8),
		Schedule:  "2024-05-01T10:00:00Z",
	}
}

func TestCreateQueueEntry_Success(t *testing.T) {
	ds, mock := newMock(t)

	entry := model.PostEntry{
		PostTo:           "acct1",
		Contents:         gofakeit.Sentence(6),
		Schedule:         "2024-05-01T10:00:00Z",
		MediaAttachments: []string{"media_1"},
	}

	mock.ExpectExec("INSERT INTO herald.post_queue").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "acct1", entry.Contents, []byte(`["media_1"]`), entry.Schedule,
			"", "", "", "", "", "", "").
		WillReturnResult(sqlmock.NewResult(1, 1))

	created, err := ds.CreateQueueEntry(context.Background(), entry)
	require.NoError(t, err)
	assert.Contains(t, created.ID, "post_")
	assert.WithinDuration(t, time.Now(), created.CreatedAt, time.Second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateQueueEntry_Invalid(t *testing.T) {
	ds, mock := newMock(t)

	_, err := ds.CreateQueueEntry(context.Background(), model.PostEntry{Contents: "no account"})
	code, ok := apierror.CodeOf(err)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrBadRequest, code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateQueueEntry_Duplicate(t *testing.T) {
	ds, mock := newMock(t)
	entry := fakeEntry()

	mock.ExpectExec("INSERT INTO herald.post_queue").WillReturnError(&pq.Error{Code: "23505"})

	_, err := ds.CreateQueueEntry(context.Background(), entry)
	assert.Equal(t, apierror.ErrConflict, err.(apierror.APIError).Code)
}

func TestListQueue(t *testing.T) {
	ds, mock := newMock(t)
	first, second := fakeEntry(), fakeEntry()
	second.ExternalID = "999"
	second.Status = model.StatusPosted

	rows := addEntryRow(addEntryRow(queueRows(), first, `["m1","m2"]`), second, `[]`)
	mock.ExpectQuery("SELECT (.+) FROM herald.post_queue ORDER BY position ASC").WillReturnRows(rows)

	entries, err := ds.ListQueue(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, first.ID, entries[0].ID)
	assert.Equal(t, []string{"m1", "m2"}, entries[0].MediaAttachments)
	assert.Equal(t, "999", entries[1].ExternalID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListQueue_Error(t *testing.T) {
	ds, mock := newMock(t)
	mock.ExpectQuery("SELECT (.+) FROM herald.post_queue").WillReturnError(errors.New("connection lost"))

	_, err := ds.ListQueue(context.Background())
	assert.Equal(t, apierror.ErrInternalServer, err.(apierror.APIError).Code)
}

func TestGetQueueEntry(t *testing.T) {
	ds, mock := newMock(t)
	entry := fakeEntry()

	mock.ExpectQuery("SELECT (.+) FROM herald.post_queue WHERE post_id = \\$1").
		WithArgs(entry.ID).
		WillReturnRows(addEntryRow(queueRows(), entry, `[]`))

	got, err := ds.GetQueueEntry(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.Contents, got.Contents)
}

func TestGetQueueEntry_NotFound(t *testing.T) {
	ds, mock := newMock(t)
	mock.ExpectQuery("SELECT (.+) FROM herald.post_queue WHERE post_id = \\$1").
		WithArgs("post_missing").
		WillReturnError(sql.ErrNoRows)

	_, err := ds.GetQueueEntry(context.Background(), "post_missing")
	assert.True(t, apierror.IsNotFound(err))
}

func TestUpdateQueueEntry_OnlyNamedFields(t *testing.T) {
	ds, mock := newMock(t)
	externalID := "999"

	mock.ExpectExec(regexp.QuoteMeta("SET external_id = $1") + `\s+WHERE post_id = \$2`).
		WithArgs("999", "post_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := ds.UpdateQueueEntry(context.Background(), "post_1", model.EntryUpdate{ExternalID: &externalID})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateQueueEntry_AllFields(t *testing.T) {
	ds, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta("SET external_id = $1, status = $2, error_message = $3") + `\s+WHERE post_id = \$4`).
		WithArgs(model.ExternalIDError, model.StatusFailed, "boom", "post_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := ds.UpdateQueueEntry(context.Background(), "post_1", model.FailedUpdate("boom"))
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateQueueEntry_Empty(t *testing.T) {
	ds, mock := newMock(t)
	assert.NoError(t, ds.UpdateQueueEntry(context.Background(), "post_1", model.EntryUpdate{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateQueueEntry_NotFound(t *testing.T) {
	ds, mock := newMock(t)
	mock.ExpectExec("UPDATE herald.post_queue").WillReturnResult(sqlmock.NewResult(0, 0))

	err := ds.UpdateQueueEntry(context.Background(), "post_1", model.PostedUpdate("1"))
	assert.True(t, apierror.IsNotFound(err))
}

func TestDeleteFromQueue(t *testing.T) {
	ds, mock := newMock(t)
	mock.ExpectExec("DELETE FROM herald.post_queue").WithArgs("post_1").WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, ds.DeleteFromQueue(context.Background(), "post_1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMoveToArchive_Success(t *testing.T) {
	ds, mock := newMock(t)
	archived := model.NewArchiveEntry(fakeEntry(), "999", time.Now().UTC(), model.ActionPost)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO herald.post_archive (.+) ON CONFLICT \\(post_id\\) DO NOTHING").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM herald.post_queue").WithArgs(archived.ID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	assert.NoError(t, ds.MoveToArchive(context.Background(), archived))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMoveToArchive_InsertFailsRollsBack(t *testing.T) {
	ds, mock := newMock(t)
	archived := model.NewArchiveEntry(fakeEntry(), "999", time.Now().UTC(), model.ActionPost)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO herald.post_archive").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := ds.MoveToArchive(context.Background(), archived)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMoveToArchive_DeleteFailsRollsBack(t *testing.T) {
	ds, mock := newMock(t)
	archived := model.NewArchiveEntry(fakeEntry(), "999", time.Now().UTC(), model.ActionPost)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO herald.post_archive").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM herald.post_queue").WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	assert.Error(t, ds.MoveToArchive(context.Background(), archived))
	assert.NoError(t, mock.ExpectationsWereMet())
}

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
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/herald/internal/apierror"
	"github.com/blnkfinance/herald/model"
)

func TestSaveMediaBlob(t *testing.T) {
	ds, mock := newMock(t)
	data := []byte{0x89, 0x50, 0x4e, 0x47}

	mock.ExpectExec("INSERT INTO herald.media_blobs").
		WithArgs(sqlmock.AnyArg(), "acct1", "image/png", data, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	blob, err := ds.SaveMediaBlob(context.Background(), model.MediaBlob{AccountKey: "acct1", MimeType: "image/png", Data: data})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(blob.ID, "media_"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveMediaBlob_Empty(t *testing.T) {
	ds, _ := newMock(t)

	_, err := ds.SaveMediaBlob(context.Background(), model.MediaBlob{MimeType: "image/png"})
	code, _ := apierror.CodeOf(err)
	assert.Equal(t, apierror.ErrBadRequest, code)
}

func TestGetMediaBlob(t *testing.T) {
	ds, mock := newMock(t)

	rows := sqlmock.NewRows([]string{"media_id", "account_key", "mime_type", "data", "created_at"}).
		AddRow("media_1", "acct1", "image/jpeg", []byte("jpeg"), time.Now())
	mock.ExpectQuery("SELECT (.+) FROM herald.media_blobs WHERE media_id = \\$1").WithArgs("media_1").WillReturnRows(rows)

	blob, err := ds.GetMediaBlob(context.Background(), "media_1")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), blob.Data)
	assert.Equal(t, "image/jpeg", blob.MimeType)

	mock.ExpectQuery("SELECT (.+) FROM herald.media_blobs").WithArgs("media_2").WillReturnError(sql.ErrNoRows)
	_, err = ds.GetMediaBlob(context.Background(), "media_2")
	assert.True(t, apierror.IsNotFound(err))
}

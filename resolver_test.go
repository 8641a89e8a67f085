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

package herald

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/blnkfinance/herald/database/mocks"
	"github.com/blnkfinance/herald/model"
)

func TestResolveExternalID_ArchiveFirst(t *testing.T) {
	queued := model.PostEntry{ID: "post_a", ExternalID: "111"}
	mem := newMemStore(queued)
	mem.archive = []model.ArchiveEntry{model.NewArchiveEntry(model.PostEntry{ID: "post_a"}, "999", time.Now(), model.ActionPost)}

	r := NewReplyResolver(mem)
	id, found, err := r.ResolveExternalID(context.Background(), "post_a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "999", id)

	id, found, err = r.ResolveExternalID(context.Background(), "post_a", ScopeQueue)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "111", id)
}

func TestResolveExternalID_SkipsUnusableIDs(t *testing.T) {
	mem := newMemStore(
		model.PostEntry{ID: "post_failed", ExternalID: model.ExternalIDError},
		model.PostEntry{ID: "post_pending"},
	)
	mem.archive = []model.ArchiveEntry{
		model.NewArchiveEntry(model.PostEntry{ID: "post_repost"}, model.RepostMarker("5"), time.Now(), model.ActionRepost),
	}

	r := NewReplyResolver(mem)
	for _, id := range []string{"post_failed", "post_pending", "post_repost", "post_unknown", " "} {
		got, found, err := r.ResolveExternalID(context.Background(), id)
		require.NoError(t, err)
		assert.False(t, found, id)
		assert.Empty(t, got)
	}
}

func TestResolveExternalID_FallsThroughToQueue(t *testing.T) {
	mem := newMemStore(model.PostEntry{ID: "post_a", ExternalID: "222"})
	mem.archive = []model.ArchiveEntry{
		model.NewArchiveEntry(model.PostEntry{ID: "post_a"}, model.RepostMarker("5"), time.Now(), model.ActionRepost),
	}

	id, found, err := NewReplyResolver(mem).ResolveExternalID(context.Background(), "post_a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "222", id)
}

func TestResolveExternalID_StoreError(t *testing.T) {
	ds := new(mocks.MockDataSource)
	ds.On("ListArchive", mock.Anything).Return(nil, errors.New("timeout"))
	ds.On("ListQueue", mock.Anything).Return([]model.PostEntry{{ID: "post_b", ExternalID: "42"}}, nil)

	_, found, err := NewReplyResolver(ds).ResolveExternalID(context.Background(), "post_a")
	assert.False(t, found)
	assert.ErrorContains(t, err, "timeout")
	ds.AssertCalled(t, "ListQueue", mock.Anything)

	_, _, err = NewReplyResolver(ds).ResolveExternalID(context.Background(), "post_a", RecordScope("drafts"))
	assert.ErrorContains(t, err, "unknown record scope")
}

func TestResolveExternalID_ArchiveErrorStillSearchesQueue(t *testing.T) {
	ds := new(mocks.MockDataSource)
	ds.On("ListArchive", mock.Anything).Return(nil, errors.New("timeout"))
	ds.On("ListQueue", mock.Anything).Return([]model.PostEntry{{ID: "post_a", ExternalID: "1790000000000000007"}}, nil)

	id, found, err := NewReplyResolver(ds).ResolveExternalID(context.Background(), "post_a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1790000000000000007", id)
	ds.AssertExpectations(t)
}

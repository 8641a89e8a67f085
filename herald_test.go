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
	"sort"
	"sync"
	"time"

	"github.com/blnkfinance/herald/config"
	"github.com/blnkfinance/herald/internal/apierror"
	"github.com/blnkfinance/herald/model"
	"github.com/blnkfinance/herald/provider"
)

// memStore is an ordered in-memory queue, archive and error log.
type memStore struct {
	mu      sync.Mutex
	order   []string
	queue   map[string]model.PostEntry
	archive []model.ArchiveEntry
	errors  []model.ErrorRecord
	creds   map[string]model.Credentials
	blobs   map[string]model.MediaBlob

	listErr      error
	appendErr    error
	sorted       int
	listCalls    int
	updateCounts map[string]int
}

func newMemStore(entries ...model.PostEntry) *memStore {
	s := &memStore{
		queue:        make(map[string]model.PostEntry),
		creds:        make(map[string]model.Credentials),
		blobs:        make(map[string]model.MediaBlob),
		updateCounts: make(map[string]int),
	}
	for _, e := range entries {
		s.order = append(s.order, e.ID)
		s.queue[e.ID] = e
	}
	return s
}

func (s *memStore) addCredentials(accountKey string) {
	s.creds[accountKey] = model.Credentials{
		AccountKey:        accountKey,
		APIKey:            "consumer-key",
		APIKeySecret:      "consumer-secret",
		AccessToken:       "access-token",
		AccessTokenSecret: "access-secret",
	}
}

func (s *memStore) ListQueue(_ context.Context) ([]model.PostEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []model.PostEntry
	for _, id := range s.order {
		if e, ok := s.queue[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) GetQueueEntry(_ context.Context, id string) (*model.PostEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.queue[id]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "not found", nil)
	}
	return &e, nil
}

func (s *memStore) UpdateQueueEntry(_ context.Context, id string, update model.EntryUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.queue[id]
	if !ok {
		return apierror.NewAPIError(apierror.ErrNotFound, "not found", nil)
	}
	if update.ExternalID != nil {
		e.ExternalID = *update.ExternalID
	}
	if update.Status != nil {
		e.Status = *update.Status
	}
	if update.ErrorMessage != nil {
		e.ErrorMessage = *update.ErrorMessage
	}
	s.queue[id] = e
	s.updateCounts[id]++
	return nil
}

func (s *memStore) DeleteFromQueue(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queue, id)
	return nil
}

func (s *memStore) AppendToArchive(_ context.Context, entry model.ArchiveEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.archive = append(s.archive, entry)
	return nil
}

func (s *memStore) ListArchive(_ context.Context) ([]model.ArchiveEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ArchiveEntry(nil), s.archive...), nil
}

func (s *memStore) SortArchive(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sort.SliceStable(s.archive, func(i, j int) bool { return s.archive[i].PostedAt.After(s.archive[j].PostedAt) })
	s.sorted++
	return nil
}

func (s *memStore) AppendErrorRecord(_ context.Context, record model.ErrorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, record)
	return nil
}

func (s *memStore) GetCredentials(_ context.Context, accountKey string) (*model.Credentials, error) {
	c, ok := s.creds[accountKey]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "credentials not found", nil)
	}
	return &c, nil
}

func (s *memStore) GetMediaBlob(_ context.Context, id string) (*model.MediaBlob, error) {
	b, ok := s.blobs[id]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, "media not found", nil)
	}
	return &b, nil
}

func (s *memStore) entry(id string) (model.PostEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.queue[id]
	return e, ok
}

// txStore archives through MoveToArchive.
type txStore struct {
	*memStore
	moves int
}

func (s *txStore) MoveToArchive(ctx context.Context, entry model.ArchiveEntry) error {
	s.moves++
	if err := s.AppendToArchive(ctx, entry); err != nil {
		return err
	}
	return s.DeleteFromQueue(ctx, entry.ID)
}

type fakeProvider struct {
	mu        sync.Mutex
	posts     []provider.CreatePostParams
	reposts   []string
	postID    string
	postErr   error
	reposted  bool
	repostErr error
}

func (p *fakeProvider) CreatePost(_ context.Context, _ model.Credentials, params provider.CreatePostParams) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posts = append(p.posts, params)
	if p.postErr != nil {
		return "", p.postErr
	}
	return p.postID, nil
}

func (p *fakeProvider) Repost(_ context.Context, _ model.Credentials, targetID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reposts = append(p.reposts, targetID)
	return p.reposted, p.repostErr
}

type fakeLock struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired []string
	released []string
	err      error
}

func newFakeLock() *fakeLock {
	return &fakeLock{held: make(map[string]bool)}
}

func (l *fakeLock) TryAcquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	l.acquired = append(l.acquired, key)
	return true, nil
}

func (l *fakeLock) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	l.released = append(l.released, key)
	return nil
}

type fakeTrigger struct {
	minutes   int
	disarms   int
	disarmErr error
}

func (t *fakeTrigger) CurrentIntervalMinutes(context.Context) int { return t.minutes }

func (t *fakeTrigger) Disarm(context.Context) error {
	t.disarms++
	return t.disarmErr
}

type noMedia struct{}

func (noMedia) ResolveMediaIDs(context.Context, []string, model.Credentials) ([]string, error) {
	return nil, errors.New("no media expected")
}

var testNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func testSchedulerConfig() config.SchedulerConfig {
	return config.SchedulerConfig{}.WithDefaults()
}

type harness struct {
	store    QueueStore
	mem      *memStore
	provider *fakeProvider
	lock     *fakeLock
	trigger  *fakeTrigger
	herald   *Herald
}

func newHarness(store QueueStore, mem *memStore, media MediaIDResolver) *harness {
	h := &harness{
		store:    store,
		mem:      mem,
		provider: &fakeProvider{postID: "1790000000000000001", reposted: true},
		lock:     newFakeLock(),
		trigger:  &fakeTrigger{minutes: 5},
	}
	if media == nil {
		media = noMedia{}
	}
	h.herald = NewHerald(Dependencies{
		Store:       store,
		Credentials: mem,
		Provider:    h.provider,
		Media:       media,
		Lock:        h.lock,
		Trigger:     h.trigger,
	}, testSchedulerConfig())
	h.herald.now = func() time.Time { return testNow }
	return h
}

func dueEntry(id string) model.PostEntry {
	return model.PostEntry{
		ID:       id,
		PostTo:   "acct1",
		Contents: "hello",
		Schedule: testNow.Add(-time.Minute).Format(time.RFC3339),
	}
}

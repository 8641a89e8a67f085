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
	"embed"
	"time"

	"github.com/blnkfinance/herald/config"
	"github.com/blnkfinance/herald/model"
	"github.com/blnkfinance/herald/provider"
)

//go:embed sql/*.sql
var SQLFiles embed.FS

// QueueStore is the persisted queue together with its archive and error log.
// It is satisfied by database.Datasource.
type QueueStore interface {
	ListQueue(ctx context.Context) ([]model.PostEntry, error)
	GetQueueEntry(ctx context.Context, id string) (*model.PostEntry, error)
	UpdateQueueEntry(ctx context.Context, id string, update model.EntryUpdate) error
	DeleteFromQueue(ctx context.Context, id string) error
	AppendToArchive(ctx context.Context, entry model.ArchiveEntry) error
	ListArchive(ctx context.Context) ([]model.ArchiveEntry, error)
	SortArchive(ctx context.Context) error
	AppendErrorRecord(ctx context.Context, record model.ErrorRecord) error
}

// archiveMover is implemented by stores that can archive and dequeue in one transaction.
type archiveMover interface {
	MoveToArchive(ctx context.Context, entry model.ArchiveEntry) error
}

// CredentialStore looks up the OAuth secrets of a posting account.
type CredentialStore interface {
	GetCredentials(ctx context.Context, accountKey string) (*model.Credentials, error)
}

// Provider is the signed REST API posts are dispatched to. It is satisfied by *provider.Client.
type Provider interface {
	CreatePost(ctx context.Context, creds model.Credentials, params provider.CreatePostParams) (string, error)
	Repost(ctx context.Context, creds model.Credentials, targetID string) (bool, error)
}

// MediaIDResolver turns stored media references into provider media ids.
type MediaIDResolver interface {
	ResolveMediaIDs(ctx context.Context, attachments []string, creds model.Credentials) ([]string, error)
}

// AdvisoryLock is a best-effort, TTL-bounded lock. It is satisfied by *redlock.Client.
type AdvisoryLock interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Trigger reports the polling interval and stops recurring passes.
type Trigger interface {
	CurrentIntervalMinutes(ctx context.Context) int
	Disarm(ctx context.Context) error
}

// Dependencies are the collaborators a Herald dispatches through.
type Dependencies struct {
	Store       QueueStore
	Credentials CredentialStore
	Provider    Provider
	Media       MediaIDResolver
	Lock        AdvisoryLock
	Trigger     Trigger
}

// Herald runs dispatch passes over the post queue.
type Herald struct {
	store       QueueStore
	credentials CredentialStore
	provider    Provider
	media       MediaIDResolver
	lock        AdvisoryLock
	trigger     Trigger
	resolver    *ReplyResolver
	cfg         config.SchedulerConfig
	now         func() time.Time
}

// NewHerald wires a Herald from deps. Unset fields of cfg take their defaults.
func NewHerald(deps Dependencies, cfg config.SchedulerConfig) *Herald {
	cfg = cfg.WithDefaults()
	return &Herald{
		store:       deps.Store,
		credentials: deps.Credentials,
		provider:    deps.Provider,
		media:       deps.Media,
		lock:        deps.Lock,
		trigger:     deps.Trigger,
		resolver:    NewReplyResolver(deps.Store),
		cfg:         cfg,
		now:         time.Now,
	}
}

// ReplyResolver returns the resolver the Herald uses for reply targets.
func (h *Herald) ReplyResolver() *ReplyResolver {
	return h.resolver
}

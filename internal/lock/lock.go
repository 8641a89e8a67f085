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

package redlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const releaseScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"

// ErrLockNotHeld is returned when a lease expired or belongs to another owner.
var ErrLockNotHeld = errors.New("lock is not held by this owner")

// Locker is a single Redis key guarded by SET NX and released with a compare-and-delete.
type Locker struct {
	client redis.UniversalClient
	key    string
	value  string
}

// NewLocker returns a Locker for key owned by value.
func NewLocker(client redis.UniversalClient, key, value string) *Locker {
	return &Locker{
		client: client,
		key:    key,
		value:  value,
	}
}

// TryLock attempts the lock once. It reports false without error when another owner holds it.
func (l *Locker) TryLock(ctx context.Context, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, ttl).Result()
}

// Unlock deletes the key if it still carries this owner's value.
func (l *Locker) Unlock(ctx context.Context) error {
	result, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.value).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("%w: %s", ErrLockNotHeld, l.key)
	}
	return nil
}

// Client hands out per-key advisory locks. Each acquisition gets its own owner value,
// so a lease can only be released by the acquisition that created it.
// Leases are never renewed; they end on Release or when the TTL runs out.
type Client struct {
	client   redis.UniversalClient
	newValue func() string

	mu   sync.Mutex
	held map[string]*Locker
}

// NewClient builds a Client on top of a Redis connection.
func NewClient(client redis.UniversalClient) *Client {
	return &Client{
		client:   client,
		newValue: func() string { return uuid.NewString() },
		held:     make(map[string]*Locker),
	}
}

// TryAcquire takes the lock for key without waiting. A lock held elsewhere yields false, nil.
func (c *Client) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	locker := NewLocker(c.client, key, c.newValue())
	ok, err := locker.TryLock(ctx, ttl)
	if err != nil || !ok {
		return false, err
	}

	c.mu.Lock()
	c.held[key] = locker
	c.mu.Unlock()
	return true, nil
}

// Release drops a lock acquired through this client. Releasing an unknown key is a no-op.
func (c *Client) Release(ctx context.Context, key string) error {
	c.mu.Lock()
	locker, ok := c.held[key]
	delete(c.held, key)
	c.mu.Unlock()

	if !ok {
		return nil
	}
	return locker.Unlock(ctx)
}

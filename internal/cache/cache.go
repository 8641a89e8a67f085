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

package cache

import (
	"context"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

// Cache is a two-tier cache: an in-process TinyLFU in front of Redis.
type Cache interface {
	// Once returns the cached value for key, calling load to fill it on a miss.
	// Concurrent callers for the same key share one call to load.
	Once(ctx context.Context, key string, data interface{}, ttl time.Duration, load func() (interface{}, error)) error
}

// RedisCache implements Cache with go-redis/cache.
type RedisCache struct {
	cache *cache.Cache
}

// cacheSize defines the size of the local cache (in number of entries) used alongside Redis.
const cacheSize = 10000

// NewRedisCache builds a RedisCache on top of an existing Redis connection.
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	c := cache.New(&cache.Options{
		Redis:      client,
		LocalCache: cache.NewTinyLFU(cacheSize, time.Minute),
	})
	return &RedisCache{cache: c}
}

func (r *RedisCache) Once(ctx context.Context, key string, data interface{}, ttl time.Duration, load func() (interface{}, error)) error {
	return r.cache.Once(&cache.Item{
		Ctx:   ctx,
		Key:   key,
		Value: data,
		TTL:   ttl,
		Do: func(*cache.Item) (interface{}, error) {
			return load()
		},
	})
}

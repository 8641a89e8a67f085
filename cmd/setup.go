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

package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/blnkfinance/herald"
	"github.com/blnkfinance/herald/config"
	"github.com/blnkfinance/herald/internal/cache"
	redlock "github.com/blnkfinance/herald/internal/lock"
	"github.com/blnkfinance/herald/internal/oauth1"
	redis_db "github.com/blnkfinance/herald/internal/redis-db"
	trace "github.com/blnkfinance/herald/internal/traces"
	"github.com/blnkfinance/herald/internal/transport"
	"github.com/blnkfinance/herald/provider"
)

// newProviderClient builds the signed provider client used by passes.
func newProviderClient(cfg *config.Configuration, c cache.Cache) *provider.Client {
	tr := transport.New(&http.Client{Timeout: cfg.Provider.RequestTimeout}, transport.Options{
		BaseDelay:         cfg.Scheduler.BaseRetryDelay,
		SafetyMargin:      cfg.Scheduler.RateLimitSafetyMargin,
		MaxRateLimitWaits: cfg.Scheduler.MaxRateLimitWaits,
		MaxRateLimitSleep: cfg.Scheduler.MaxRateLimitWait,
		RateLimitHeader:   cfg.Provider.RateLimitHeader,
	})

	return provider.NewClient(provider.Config{
		BaseURL:        cfg.Provider.BaseURL,
		UploadURL:      cfg.Provider.UploadURL,
		MaxAttempts:    cfg.Scheduler.MaxAttempts,
		UserIDCacheTTL: cfg.Provider.UserIDCacheTTL,
	}, tr, oauth1.NewSigner(), c)
}

// setupHerald wires a Herald against the configured stores. trigger decides who owns
// the recurring invocation.
func setupHerald(app *heraldInstance, trigger herald.Trigger) (*herald.Herald, *redis_db.Redis, error) {
	redisClient, err := redis_db.NewRedisClient([]string{app.cnf.Redis.Dns}, app.cnf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, nil, fmt.Errorf("error connecting to redis: %v", err)
	}

	client := newProviderClient(app.cnf, cache.NewRedisCache(redisClient.Client()))
	h := herald.NewHerald(herald.Dependencies{
		Store:       app.db,
		Credentials: app.db,
		Provider:    client,
		Media:       herald.NewMediaResolver(app.db, client),
		Lock:        redlock.NewClient(redisClient.Client()),
		Trigger:     trigger,
	}, app.cnf.Scheduler)
	return h, redisClient, nil
}

func initializeTracing(ctx context.Context, cfg *config.Configuration) (func(context.Context) error, error) {
	if !cfg.EnableTelemetry {
		return func(context.Context) error { return nil }, nil
	}
	shutdown, err := trace.SetupOTelSDK(ctx, cfg.ProjectName)
	if err != nil {
		return nil, fmt.Errorf("error setting up OTel SDK: %v", err)
	}
	return shutdown, nil
}

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

// Package transport executes provider requests with retries on network errors
// and waits on rate-limit responses.
package transport

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/blnkfinance/herald/internal/metrics"
)

// RequestBuilder produces a fresh request for every attempt.
// Signed requests must be rebuilt so each attempt carries its own nonce and timestamp.
type RequestBuilder func(ctx context.Context) (*http.Request, error)

// Options tunes retries and rate-limit waits. Zero MaxRateLimitWaits disables waiting on 429s.
type Options struct {
	BaseDelay         time.Duration
	SafetyMargin      time.Duration
	MaxRateLimitWaits int
	MaxRateLimitSleep time.Duration
	RateLimitHeader   string
}

// Transport sends provider requests with retries on network errors and waits on 429s.
type Transport struct {
	client *http.Client
	opts   Options

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	timer backoff.Timer
}

// New returns a Transport over client, or http.DefaultClient when client is nil.
func New(client *http.Client, opts Options) *Transport {
	if client == nil {
		client = http.DefaultClient
	}
	if opts.RateLimitHeader == "" {
		opts.RateLimitHeader = "x-rate-limit-reset"
	}
	return &Transport{
		client: client,
		opts:   opts,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// Execute sends the request built by build.
// Network errors are retried up to maxAttempts in total with a linearly growing delay.
// A 429 carrying a parseable reset header is waited out and retried with a fresh attempt
// budget. Every other response, including a 429 that cannot be waited out, is returned
// to the caller, who owns its body.
func (t *Transport) Execute(ctx context.Context, build RequestBuilder, maxAttempts int) (*http.Response, error) {
	ctx, span := otel.Tracer("herald.transport").Start(ctx, "Execute Provider Request")
	defer span.End()

	if maxAttempts < 1 {
		maxAttempts = 1
	}

	waits := 0
	for {
		resp, err := t.attempt(ctx, build, maxAttempts)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

		if resp.StatusCode != http.StatusTooManyRequests || waits >= t.opts.MaxRateLimitWaits {
			return resp, nil
		}

		wait, ok := t.rateLimitWait(resp)
		if !ok {
			return resp, nil
		}

		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		waits++
		metrics.RateLimitWaits.Inc()
		logrus.WithFields(logrus.Fields{
			"wait":    wait.String(),
			"attempt": waits,
		}).Warn("provider rate limit reached, waiting for reset")

		if err := t.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// attempt runs the network-level retry loop for one attempt budget.
func (t *Transport) attempt(ctx context.Context, build RequestBuilder, maxAttempts int) (*http.Response, error) {
	b := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{base: t.opts.BaseDelay}, uint64(maxAttempts-1)),
		ctx,
	)

	op := func() (*http.Response, error) {
		if err := ctx.Err(); err != nil {
			return nil, backoff.Permanent(err)
		}
		req, err := build(ctx)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		resp, err := t.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		return resp, nil
	}

	notify := func(err error, next time.Duration) {
		metrics.TransportRetries.Inc()
		logrus.WithFields(logrus.Fields{
			"error": err.Error(),
			"next":  next.String(),
		}).Warn("provider request failed, retrying")
	}

	return backoff.RetryNotifyWithTimerAndData(op, b, notify, t.timer)
}

// rateLimitWait derives the wait from the reset header. A missing or unparseable
// header, or a wait beyond MaxRateLimitSleep, reports false.
func (t *Transport) rateLimitWait(resp *http.Response) (time.Duration, bool) {
	raw := strings.TrimSpace(resp.Header.Get(t.opts.RateLimitHeader))
	if raw == "" {
		return 0, false
	}
	reset, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}

	wait := time.Unix(reset, 0).Sub(t.now()) + t.opts.SafetyMargin
	if wait < 0 {
		wait = 0
	}
	if t.opts.MaxRateLimitSleep > 0 && wait > t.opts.MaxRateLimitSleep {
		logrus.WithField("wait", wait.String()).Warn("rate limit reset is beyond the allowed wait")
		return 0, false
	}
	return wait, true
}

// linearBackOff yields base, 2*base, 3*base, ...
type linearBackOff struct {
	base    time.Duration
	attempt int
}

func (l *linearBackOff) NextBackOff() time.Duration {
	l.attempt++
	return l.base * time.Duration(l.attempt)
}

func (l *linearBackOff) Reset() {
	l.attempt = 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

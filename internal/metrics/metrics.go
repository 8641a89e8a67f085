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

package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "herald"

var (
	TransportRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_retries_total",
			Help:      "Provider requests retried after a network error",
		},
	)

	RateLimitWaits = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_rate_limit_waits_total",
			Help:      "Waits performed after a 429 response",
		},
	)

	Dispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Queue entries dispatched, by action and result",
		},
		[]string{"action", "result"}, // result: "posted", "failed", "reconcile"
	)

	PassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Duration of a dispatch pass in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	TriggerInterval = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "trigger_interval_minutes",
			Help:      "Interval of the armed recurring trigger, 0 when disarmed",
		},
	)
)

// Serve exposes /metrics on port until ctx is cancelled.
func Serve(ctx context.Context, port string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logrus.WithField("port", port).Info("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

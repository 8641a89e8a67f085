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
	"log"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/blnkfinance/herald"
	"github.com/blnkfinance/herald/internal/metrics"
	redis_db "github.com/blnkfinance/herald/internal/redis-db"
)

type passRunner interface {
	RunPass(ctx context.Context) (*herald.PassReport, error)
}

type triggerArmer interface {
	Arm(ctx context.Context, minutes int) error
	Disarm(ctx context.Context) error
}

// dispatchWorker handles the herald tasks for one scheduler id.
type dispatchWorker struct {
	schedulerID string
	passes      passRunner
	trigger     triggerArmer
}

// payload decodes t and reports whether it is addressed to this worker's scheduler.
func (w *dispatchWorker) payload(t *asynq.Task) (herald.ControlPayload, bool, error) {
	payload, err := herald.ParseControlPayload(t)
	if err != nil {
		return payload, false, fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if payload.SchedulerID != "" && payload.SchedulerID != w.schedulerID {
		logrus.WithFields(logrus.Fields{
			"task":      t.Type(),
			"scheduler": payload.SchedulerID,
		}).Warn("ignoring task for another scheduler")
		return payload, false, nil
	}
	return payload, true, nil
}

func (w *dispatchWorker) runPass(ctx context.Context, t *asynq.Task) error {
	ctx, span := otel.Tracer("herald.worker").Start(ctx, "Process Dispatch Pass Task")
	defer span.End()

	_, ok, err := w.payload(t)
	if err != nil || !ok {
		return err
	}

	// a failed pass is not retried; the next tick runs a fresh one
	if _, err := w.passes.RunPass(ctx); err != nil {
		return fmt.Errorf("dispatch pass: %v: %w", err, asynq.SkipRetry)
	}
	return nil
}

func (w *dispatchWorker) arm(ctx context.Context, t *asynq.Task) error {
	payload, ok, err := w.payload(t)
	if err != nil || !ok {
		return err
	}
	if payload.IntervalMinutes <= 0 {
		return fmt.Errorf("invalid interval %d: %w", payload.IntervalMinutes, asynq.SkipRetry)
	}
	return w.trigger.Arm(ctx, payload.IntervalMinutes)
}

func (w *dispatchWorker) disarm(ctx context.Context, t *asynq.Task) error {
	_, ok, err := w.payload(t)
	if err != nil || !ok {
		return err
	}
	return w.trigger.Disarm(ctx)
}

func (w *dispatchWorker) register(mux *asynq.ServeMux) {
	mux.HandleFunc(herald.TaskDispatchPass, w.runPass)
	mux.HandleFunc(herald.TaskTriggerArm, w.arm)
	mux.HandleFunc(herald.TaskTriggerDisarm, w.disarm)
}

// workerCommands defines the "workers" command. The workers own the recurring trigger
// and run every dispatch pass one at a time.
func workerCommands(app *heraldInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start herald workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			conf := app.cnf

			shutdown, err := initializeTracing(ctx, conf)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			redisOpt, err := redis_db.AsynqOpt(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
			if err != nil {
				log.Fatalf("error parsing Redis URL: %v", err)
			}

			scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Location: time.UTC})
			if err := scheduler.Start(); err != nil {
				log.Fatalf("could not start scheduler: %v", err)
			}
			defer scheduler.Shutdown()

			controller := herald.NewTriggerController(scheduler, app.db, conf.Scheduler)
			h, redisClient, err := setupHerald(app, controller)
			if err != nil {
				log.Fatal(err)
			}
			defer redisClient.Close()

			restored, err := controller.Restore(ctx)
			if err != nil {
				logrus.WithError(err).Error("failed to restore trigger")
			} else if restored {
				logrus.WithField("interval", controller.CurrentIntervalMinutes(ctx)).Info("trigger restored")
			}

			srv := asynq.NewServer(redisOpt, asynq.Config{
				Concurrency: 1,
				Queues:      map[string]int{conf.Scheduler.Queue: 1},
			})

			mux := asynq.NewServeMux()
			worker := &dispatchWorker{schedulerID: conf.Scheduler.ID, passes: h, trigger: controller}
			worker.register(mux)

			// Start asynqmon server for health checks and monitoring
			monitor := asynqmon.New(asynqmon.Options{
				RootPath:     "/monitoring",
				RedisConnOpt: redisOpt,
			})
			go func() {
				monitoringAddr := fmt.Sprintf(":%s", conf.Scheduler.MonitoringPort)
				log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
				if err := http.ListenAndServe(monitoringAddr, monitor); err != nil {
					log.Fatalf("could not start asynqmon server: %v", err)
				}
			}()

			go func() {
				if err := metrics.Serve(ctx, conf.MetricsPort); err != nil {
					logrus.WithError(err).Error("metrics server stopped")
				}
			}()

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}

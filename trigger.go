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
	"fmt"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/herald/config"
	"github.com/blnkfinance/herald/internal/metrics"
	"github.com/blnkfinance/herald/model"
)

// ErrNoRegistrar is returned by Arm on a controller built without a scheduler.
var ErrNoRegistrar = errors.New("trigger controller has no scheduler to register with")

// Registrar registers recurring tasks. It is satisfied by *asynq.Scheduler.
type Registrar interface {
	Register(cronspec string, task *asynq.Task, opts ...asynq.Option) (string, error)
	Unregister(entryID string) error
}

// TriggerStore persists the interval of the registered recurring pass.
type TriggerStore interface {
	SaveTrigger(ctx context.Context, trigger model.Trigger) error
	ListTriggers(ctx context.Context, schedulerID string) ([]model.Trigger, error)
	DeleteTrigger(ctx context.Context, triggerID string) error
}

// TriggerController keeps at most one recurring dispatch pass registered per scheduler id.
// The interval of the registered invocation is persisted under the invocation's entry id.
type TriggerController struct {
	registrar      Registrar
	store          TriggerStore
	schedulerID    string
	defaultMinutes int
	queue          string

	mu     sync.Mutex
	active map[string]struct{}
}

// NewTriggerController builds a controller. registrar may be nil for a controller that
// only reads the persisted interval.
func NewTriggerController(registrar Registrar, store TriggerStore, cfg config.SchedulerConfig) *TriggerController {
	defaultMinutes := cfg.DefaultIntervalMinutes
	if defaultMinutes <= 0 {
		defaultMinutes = config.DEFAULT_INTERVAL_MINUTES
	}
	queue := cfg.Queue
	if queue == "" {
		queue = config.DEFAULT_DISPATCH_QUEUE
	}
	return &TriggerController{
		registrar:      registrar,
		store:          store,
		schedulerID:    cfg.ID,
		defaultMinutes: defaultMinutes,
		queue:          queue,
		active:         make(map[string]struct{}),
	}
}

// SchedulerID is the identity the controller arms passes for.
func (c *TriggerController) SchedulerID() string {
	return c.schedulerID
}

// Arm replaces any recurring pass for this scheduler with one firing every minutes.
func (c *TriggerController) Arm(ctx context.Context, minutes int) error {
	if minutes <= 0 {
		return fmt.Errorf("interval must be a positive number of minutes, got %d", minutes)
	}
	if c.registrar == nil {
		return ErrNoRegistrar
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.disarmLocked(ctx); err != nil {
		return fmt.Errorf("disarm before arm: %w", err)
	}

	task, err := NewPassTask(c.schedulerID)
	if err != nil {
		return err
	}
	entryID, err := c.registrar.Register(fmt.Sprintf("@every %dm", minutes), task, asynq.Queue(c.queue), asynq.MaxRetry(0))
	if err != nil {
		return fmt.Errorf("register recurring pass: %w", err)
	}

	err = c.store.SaveTrigger(ctx, model.Trigger{TriggerID: entryID, SchedulerID: c.schedulerID, IntervalMinutes: minutes})
	if err != nil {
		if unregErr := c.registrar.Unregister(entryID); unregErr != nil {
			logrus.WithError(unregErr).WithField("trigger", entryID).Error("failed to unregister trigger after save failure")
		}
		return fmt.Errorf("save trigger: %w", err)
	}

	c.active[entryID] = struct{}{}
	metrics.TriggerInterval.Set(float64(minutes))
	logrus.WithFields(logrus.Fields{
		"scheduler": c.schedulerID,
		"trigger":   entryID,
		"interval":  minutes,
	}).Info("trigger armed")
	return nil
}

// Disarm removes every recurring pass of this scheduler and its interval records.
func (c *TriggerController) Disarm(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disarmLocked(ctx)
}

func (c *TriggerController) disarmLocked(ctx context.Context) error {
	records, err := c.store.ListTriggers(ctx, c.schedulerID)
	if err != nil {
		return err
	}

	entryIDs := make(map[string]struct{}, len(records)+len(c.active))
	for id := range c.active {
		entryIDs[id] = struct{}{}
	}
	for _, record := range records {
		entryIDs[record.TriggerID] = struct{}{}
	}

	if c.registrar != nil {
		for id := range entryIDs {
			// records left by a previous process were never registered here
			if err := c.registrar.Unregister(id); err != nil {
				logrus.WithError(err).WithField("trigger", id).Debug("trigger not registered in this process")
			}
		}
	}
	c.active = make(map[string]struct{})

	var firstErr error
	for _, record := range records {
		if err := c.store.DeleteTrigger(ctx, record.TriggerID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return firstErr
	}

	metrics.TriggerInterval.Set(0)
	if len(entryIDs) > 0 {
		logrus.WithField("scheduler", c.schedulerID).Info("trigger disarmed")
	}
	return nil
}

// CurrentIntervalMinutes returns the persisted interval, or the default when none is recorded
// or it cannot be read.
func (c *TriggerController) CurrentIntervalMinutes(ctx context.Context) int {
	trigger, found, err := c.Current(ctx)
	if err != nil {
		logrus.WithError(err).Warn("failed to read trigger interval, using default")
		return c.defaultMinutes
	}
	if !found || trigger.IntervalMinutes <= 0 {
		return c.defaultMinutes
	}
	return trigger.IntervalMinutes
}

// Current returns the newest persisted trigger for this scheduler.
func (c *TriggerController) Current(ctx context.Context) (model.Trigger, bool, error) {
	records, err := c.store.ListTriggers(ctx, c.schedulerID)
	if err != nil {
		return model.Trigger{}, false, err
	}
	if len(records) == 0 {
		return model.Trigger{}, false, nil
	}
	return records[0], true, nil
}

// Restore re-registers the persisted trigger after a restart. It reports whether a trigger was armed.
func (c *TriggerController) Restore(ctx context.Context) (bool, error) {
	trigger, found, err := c.Current(ctx)
	if err != nil {
		return false, err
	}
	if !found || trigger.IntervalMinutes <= 0 {
		return false, nil
	}
	if err := c.Arm(ctx, trigger.IntervalMinutes); err != nil {
		return false, err
	}
	return true, nil
}

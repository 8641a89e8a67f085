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
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/blnkfinance/herald/config"
	redis_db "github.com/blnkfinance/herald/internal/redis-db"
)

// Task types handled by the workers.
const (
	TaskDispatchPass  = "dispatch:pass"
	TaskTriggerArm    = "trigger:arm"
	TaskTriggerDisarm = "trigger:disarm"
)

// ControlPayload is the body of every herald task.
type ControlPayload struct {
	SchedulerID     string `json:"scheduler_id"`
	IntervalMinutes int    `json:"interval_minutes,omitempty"`
}

func newTask(typename string, payload ControlPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typename, body), nil
}

// NewPassTask builds the task that runs one dispatch pass for schedulerID.
func NewPassTask(schedulerID string) (*asynq.Task, error) {
	return newTask(TaskDispatchPass, ControlPayload{SchedulerID: schedulerID})
}

// NewArmTask builds the task asking the workers to arm a pass every minutes.
func NewArmTask(schedulerID string, minutes int) (*asynq.Task, error) {
	if minutes <= 0 {
		return nil, fmt.Errorf("interval must be a positive number of minutes, got %d", minutes)
	}
	return newTask(TaskTriggerArm, ControlPayload{SchedulerID: schedulerID, IntervalMinutes: minutes})
}

// NewDisarmTask builds the task asking the workers to disarm the recurring pass.
func NewDisarmTask(schedulerID string) (*asynq.Task, error) {
	return newTask(TaskTriggerDisarm, ControlPayload{SchedulerID: schedulerID})
}

// ParseControlPayload decodes the payload of a herald task.
func ParseControlPayload(t *asynq.Task) (ControlPayload, error) {
	var payload ControlPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode %s payload: %w", t.Type(), err)
	}
	return payload, nil
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Queue enqueues herald tasks for the workers.
type Queue struct {
	client    enqueuer
	queueName string
}

// NewQueue connects an asynq client to the configured Redis instance.
func NewQueue(conf *config.Configuration) (*Queue, error) {
	opt, err := redis_db.AsynqOpt(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Queue{client: asynq.NewClient(opt), queueName: conf.Scheduler.Queue}, nil
}

// Close releases the Redis connection.
func (q *Queue) Close() error {
	return q.client.Close()
}

// EnqueuePass asks the workers to run one pass now.
func (q *Queue) EnqueuePass(ctx context.Context, schedulerID string) error {
	task, err := NewPassTask(schedulerID)
	if err != nil {
		return err
	}
	return q.enqueue(ctx, task, asynq.MaxRetry(0))
}

// EnqueueArm hands an arm request to the workers.
func (q *Queue) EnqueueArm(ctx context.Context, schedulerID string, minutes int) error {
	task, err := NewArmTask(schedulerID, minutes)
	if err != nil {
		return err
	}
	return q.enqueue(ctx, task, asynq.MaxRetry(3))
}

// EnqueueDisarm hands a disarm request to the workers.
func (q *Queue) EnqueueDisarm(ctx context.Context, schedulerID string) error {
	task, err := NewDisarmTask(schedulerID)
	if err != nil {
		return err
	}
	return q.enqueue(ctx, task, asynq.MaxRetry(3))
}

func (q *Queue) enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) error {
	ctx, span := tracer.Start(ctx, "Enqueue Herald Task")
	defer span.End()

	if q.queueName != "" {
		opts = append(opts, asynq.Queue(q.queueName))
	}
	info, err := q.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued %s: %s", task.Type(), info.ID)
	return nil
}

// RemoteTrigger reads the persisted interval directly and forwards Disarm to the
// workers, which own the registered invocation.
type RemoteTrigger struct {
	*TriggerController
	Queue *Queue
}

// Disarm forwards the disarm to the workers that own the registration.
func (r RemoteTrigger) Disarm(ctx context.Context) error {
	return r.Queue.EnqueueDisarm(ctx, r.SchedulerID())
}

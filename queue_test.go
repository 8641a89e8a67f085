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
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

func queueOptionTypes(opts []asynq.Option) []asynq.OptionType {
	types := make([]asynq.OptionType, len(opts))
	for i, o := range opts {
		types[i] = o.Type()
	}
	return types
}

func TestControlTasks(t *testing.T) {
	task, err := NewArmTask("herald", 5)
	require.NoError(t, err)
	assert.Equal(t, TaskTriggerArm, task.Type())

	payload, err := ParseControlPayload(task)
	require.NoError(t, err)
	assert.Equal(t, ControlPayload{SchedulerID: "herald", IntervalMinutes: 5}, payload)

	_, err = NewArmTask("herald", -1)
	assert.Error(t, err)

	_, err = ParseControlPayload(asynq.NewTask(TaskDispatchPass, []byte("{")))
	assert.Error(t, err)
}

func TestQueue_Enqueue(t *testing.T) {
	fake := &fakeEnqueuer{}
	q := &Queue{client: fake, queueName: "herald_dispatch"}

	require.NoError(t, q.EnqueuePass(context.Background(), "herald"))
	require.NoError(t, q.EnqueueArm(context.Background(), "herald", 10))
	require.NoError(t, q.EnqueueDisarm(context.Background(), "herald"))

	require.Len(t, fake.tasks, 3)
	assert.Equal(t, TaskDispatchPass, fake.tasks[0].Type())
	assert.Equal(t, TaskTriggerArm, fake.tasks[1].Type())
	assert.Equal(t, TaskTriggerDisarm, fake.tasks[2].Type())
	assert.Contains(t, queueOptionTypes(fake.opts[0]), asynq.QueueOpt)

	assert.Error(t, q.EnqueueArm(context.Background(), "herald", 0))

	fake.err = errors.New("redis down")
	assert.Error(t, q.EnqueuePass(context.Background(), "herald"))
}

func TestRemoteTrigger(t *testing.T) {
	fake := &fakeEnqueuer{}
	store := newMemTriggerStore()
	require.NoError(t, store.SaveTrigger(context.Background(), triggerFor("herald", 12)))

	remote := RemoteTrigger{
		TriggerController: newTestController(nil, store),
		Queue:             &Queue{client: fake},
	}
	var trigger Trigger = remote
	assert.Equal(t, 12, trigger.CurrentIntervalMinutes(context.Background()))

	require.NoError(t, trigger.Disarm(context.Background()))
	require.Len(t, fake.tasks, 1)
	assert.Equal(t, TaskTriggerDisarm, fake.tasks[0].Type())
	// the record is removed by the worker, not here
	assert.Len(t, store.triggers, 1)
}

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

	"github.com/spf13/cobra"

	"github.com/blnkfinance/herald"
)

// passCommands runs a dispatch pass outside the recurring trigger.
func passCommands(app *heraldInstance) *cobra.Command {
	var enqueue bool

	cmd := &cobra.Command{
		Use:   "pass",
		Short: "run one dispatch pass now",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			queue, err := herald.NewQueue(app.cnf)
			if err != nil {
				return err
			}
			defer queue.Close()

			if enqueue {
				return queue.EnqueuePass(ctx, app.cnf.Scheduler.ID)
			}

			// the workers own the registered trigger, so a disarm is forwarded to them
			trigger := herald.RemoteTrigger{
				TriggerController: herald.NewTriggerController(nil, app.db, app.cnf.Scheduler),
				Queue:             queue,
			}
			h, redisClient, err := setupHerald(app, trigger)
			if err != nil {
				return err
			}
			defer redisClient.Close()

			report, err := h.RunPass(ctx)
			if err != nil {
				return err
			}
			printReport(report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "hand the pass to the workers instead of running it here")
	return cmd
}

func printReport(report *herald.PassReport) {
	for _, r := range report.Results {
		switch r.Outcome {
		case herald.OutcomeSkipped:
			fmt.Printf("%-45s skipped   %s\n", r.ID, r.Reason)
		case herald.OutcomeFailed:
			fmt.Printf("%-45s failed    %v\n", r.ID, r.Err)
		default:
			fmt.Printf("%-45s %-9s %s\n", r.ID, r.Action, r.ExternalID)
		}
	}
	log.Printf("pass finished: %d succeeded, %d failed, %d skipped (interval %dm, disarmed %t)",
		report.Succeeded, report.Failed, report.Skipped, report.IntervalMinutes, report.Disarmed)
}

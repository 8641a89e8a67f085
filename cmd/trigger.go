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

	"github.com/spf13/cobra"

	"github.com/blnkfinance/herald"
)

// triggerCommands arms and disarms the recurring pass. Arm and disarm are executed by the
// workers, which own the scheduler.
func triggerCommands(app *heraldInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "manage the recurring dispatch pass",
	}
	cmd.AddCommand(triggerArmCommand(app))
	cmd.AddCommand(triggerDisarmCommand(app))
	cmd.AddCommand(triggerStatusCommand(app))
	return cmd
}

func triggerArmCommand(app *heraldInstance) *cobra.Command {
	var interval int
	cmd := &cobra.Command{
		Use:   "arm",
		Short: "run a dispatch pass every --interval minutes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				interval = app.cnf.Scheduler.DefaultIntervalMinutes
			}
			queue, err := herald.NewQueue(app.cnf)
			if err != nil {
				return err
			}
			defer queue.Close()
			if err := queue.EnqueueArm(context.Background(), app.cnf.Scheduler.ID, interval); err != nil {
				return err
			}
			fmt.Printf("arm requested for %s every %d minutes\n", app.cnf.Scheduler.ID, interval)
			return nil
		},
	}
	cmd.Flags().IntVar(&interval, "interval", 0, "interval in minutes (defaults to the configured interval)")
	return cmd
}

func triggerDisarmCommand(app *heraldInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "disarm",
		Short: "stop the recurring dispatch pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, err := herald.NewQueue(app.cnf)
			if err != nil {
				return err
			}
			defer queue.Close()
			if err := queue.EnqueueDisarm(context.Background(), app.cnf.Scheduler.ID); err != nil {
				return err
			}
			fmt.Printf("disarm requested for %s\n", app.cnf.Scheduler.ID)
			return nil
		},
	}
}

func triggerStatusCommand(app *heraldInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "show the persisted trigger",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			controller := herald.NewTriggerController(nil, app.db, app.cnf.Scheduler)
			trigger, found, err := controller.Current(ctx)
			if err != nil {
				return err
			}
			if !found {
				fmt.Printf("%s: disarmed (passes use the default interval of %d minutes)\n",
					app.cnf.Scheduler.ID, controller.CurrentIntervalMinutes(ctx))
				return nil
			}
			fmt.Printf("%s: armed every %d minutes (entry %s, since %s)\n",
				trigger.SchedulerID, trigger.IntervalMinutes, trigger.TriggerID, trigger.CreatedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

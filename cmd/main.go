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
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/herald/config"
	"github.com/blnkfinance/herald/database"
	"github.com/blnkfinance/herald/internal/notification"
)

// Herald represents the CLI application, encapsulating the root Cobra command.
type Herald struct {
	cmd *cobra.Command
}

// heraldInstance holds what every command needs once the configuration is loaded.
type heraldInstance struct {
	db  database.IDataSource
	cnf *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error using Logrus.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and connects to the data source before any command runs.
func preRun(app *heraldInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}
		app.cnf = cnf

		// migrations and config printing manage their own connections
		if cmd.Annotations["datasource"] == "none" {
			return nil
		}

		db, err := database.NewDataSource(cnf)
		if err != nil {
			notification.NotifyError(err)
			return fmt.Errorf("error getting datasource: %v", err)
		}
		app.db = db
		return nil
	}
}

// NewCLI creates the command-line interface for Herald.
func NewCLI() *Herald {
	var configFile string
	app := &heraldInstance{}

	var rootCmd = &cobra.Command{
		Use:   "herald",
		Short: "Scheduled social post dispatcher",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./herald.json", "Configuration file for herald")
	rootCmd.PersistentPreRunE = preRun(app, &configFile)

	rootCmd.AddCommand(workerCommands(app))
	rootCmd.AddCommand(passCommands(app))
	rootCmd.AddCommand(triggerCommands(app))
	rootCmd.AddCommand(queueCommands(app))
	rootCmd.AddCommand(credentialsCommands(app))
	rootCmd.AddCommand(mediaCommands(app))
	rootCmd.AddCommand(errorsCommands(app))
	rootCmd.AddCommand(migrateCommands(app))
	rootCmd.AddCommand(configCommands())

	return &Herald{cmd: rootCmd}
}

// executeCLI runs the root command, handling any errors that occur during execution.
func (h Herald) executeCLI() {
	if err := h.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}

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

/*
Package main provides the CLI commands for managing database migrations in Herald.
This includes commands for applying and rolling back migrations.
*/

package main

import (
	"database/sql"
	"fmt"
	"log"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/herald"
	"github.com/blnkfinance/herald/database"
)

const migrationSchema = "herald"

// migrateCommands creates the root command for migration-related operations.
func migrateCommands(app *heraldInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "migrate",
		Short:       "run herald migrations",
		Annotations: map[string]string{"datasource": "none"},
	}

	cmd.AddCommand(migrateCommand(app, "up", migrate.Up))
	cmd.AddCommand(migrateCommand(app, "down", migrate.Down))

	return cmd
}

func migrateCommand(app *heraldInstance, use string, direction migrate.MigrationDirection) *cobra.Command {
	return &cobra.Command{
		Use:         use,
		Annotations: map[string]string{"datasource": "none"},
		Run: func(cmd *cobra.Command, args []string) {
			db, err := database.ConnectDB(app.cnf.DataSource.Dns)
			if err != nil {
				log.Printf("Error connecting to database: %v", err)
				return
			}
			defer db.Close()

			n, err := runMigrations(db, direction)
			if err != nil {
				log.Printf("Error migrating %s: %v", use, err)
				return
			}
			fmt.Printf("Applied %d %s migrations!\n", n, use)
		},
	}
}

// runMigrations applies the embedded migrations. The migration bookkeeping table lives in
// the herald schema, so the schema is created first.
func runMigrations(db *sql.DB, direction migrate.MigrationDirection) (int, error) {
	migrations := migrate.EmbedFileSystemMigrationSource{
		FileSystem: herald.SQLFiles,
		Root:       "sql",
	}

	if _, err := db.Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", migrationSchema)); err != nil {
		return 0, err
	}
	migrate.SetSchema(migrationSchema)

	return migrate.Exec(db, "postgres", migrations, direction)
}

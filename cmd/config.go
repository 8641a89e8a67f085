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
	"encoding/json"
	"fmt"
	"log"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/blnkfinance/herald/config"
)

// configCommands prints the computed configuration with connection passwords masked.
func configCommands() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "config outputs your instance's computed configuration",
		Annotations: map[string]string{"datasource": "none"},
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Fetch()
			if err != nil {
				log.Fatalf("Error getting config: %v\n", err)
			}

			data, err := json.MarshalIndent(redactConfig(*cfg), "", "    ")
			if err != nil {
				log.Fatalf("Error printing config: %v\n", err)
			}

			fmt.Println(string(data))
		},
	}
	return cmd
}

func redactConfig(cfg config.Configuration) config.Configuration {
	cfg.DataSource.Dns = redactDSN(cfg.DataSource.Dns)
	cfg.Redis.Dns = redactDSN(cfg.Redis.Dns)
	if cfg.Notification.Slack.WebhookUrl != "" {
		cfg.Notification.Slack.WebhookUrl = "xxxxx"
	}
	return cfg
}

func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

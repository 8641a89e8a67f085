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

package notification

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/herald/config"
	"github.com/blnkfinance/herald/internal/request"
)

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

func buildSlackMessage(projectName string, err error, at time.Time) slackMessage {
	return slackMessage{Blocks: []slackBlock{
		{Type: "header", Text: &slackText{Type: "plain_text", Text: fmt.Sprintf("Error From %s 🐞", projectName), Emoji: true}},
		{Type: "section", Fields: []slackText{{Type: "mrkdwn", Text: "*Error:*\n" + err.Error()}}},
		{Type: "section", Fields: []slackText{{Type: "mrkdwn", Text: "*Time:*\n" + at.Format(time.RFC822)}}},
	}}
}

// SlackNotification posts err to the configured Slack webhook.
func SlackNotification(ctx context.Context, err error) error {
	conf, cfgErr := config.Fetch()
	if cfgErr != nil {
		return cfgErr
	}

	payload, reqErr := request.ToJsonReq(buildSlackMessage(conf.ProjectName, err, time.Now()))
	if reqErr != nil {
		return reqErr
	}

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, conf.Notification.Slack.WebhookUrl, payload)
	if reqErr != nil {
		return reqErr
	}

	_, reqErr = request.Call(req, nil)
	return reqErr
}

// NotifyError logs systemError and, when a Slack webhook is configured, forwards it
// in the background.
func NotifyError(systemError error) {
	logrus.Error(systemError)

	conf, err := config.Fetch()
	if err != nil {
		log.Println(err)
		return
	}
	if conf.Notification.Slack.WebhookUrl == "" {
		return
	}

	go func(systemError error) {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := SlackNotification(ctx, systemError); err != nil {
			logrus.WithError(err).Warn("slack notification failed")
		}
	}(systemError)
}

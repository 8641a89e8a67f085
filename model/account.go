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

package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Credentials holds the OAuth 1.0a secrets for one posting account.
type Credentials struct {
	AccountKey        string    `json:"account_key"`
	APIKey            string    `json:"api_key"`
	APIKeySecret      string    `json:"api_key_secret"`
	AccessToken       string    `json:"access_token"`
	AccessTokenSecret string    `json:"access_token_secret"`
	CreatedAt         time.Time `json:"created_at"`
}

// Validate reports a precondition error when any secret is missing.
func (c Credentials) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.APIKey, validation.Required),
		validation.Field(&c.APIKeySecret, validation.Required),
		validation.Field(&c.AccessToken, validation.Required),
		validation.Field(&c.AccessTokenSecret, validation.Required),
	)
}

// MediaBlob is a media payload stored ahead of dispatch and uploaded to the provider on demand.
type MediaBlob struct {
	ID         string    `json:"id"`
	AccountKey string    `json:"account_key"`
	MimeType   string    `json:"mime_type"`
	Data       []byte    `json:"data"`
	CreatedAt  time.Time `json:"created_at"`
}

// Trigger records the interval a recurring dispatch invocation was armed with.
// TriggerID is the identity of the registered invocation.
type Trigger struct {
	TriggerID       string    `json:"trigger_id"`
	SchedulerID     string    `json:"scheduler_id"`
	IntervalMinutes int       `json:"interval_minutes"`
	CreatedAt       time.Time `json:"created_at"`
}

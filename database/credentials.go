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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/blnkfinance/herald/internal/apierror"
	"github.com/blnkfinance/herald/model"
)

// SaveCredentials inserts or replaces the secrets stored for creds.AccountKey.
func (d Datasource) SaveCredentials(ctx context.Context, creds model.Credentials) error {
	if creds.AccountKey == "" {
		return apierror.NewAPIError(apierror.ErrBadRequest, "account key is required", nil)
	}
	if err := creds.Validate(); err != nil {
		return apierror.NewAPIError(apierror.ErrBadRequest, err.Error(), nil)
	}
	if creds.CreatedAt.IsZero() {
		creds.CreatedAt = time.Now().UTC()
	}

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO herald.accounts (account_key, api_key, api_key_secret, access_token, access_token_secret, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account_key) DO UPDATE
		SET api_key = EXCLUDED.api_key,
			api_key_secret = EXCLUDED.api_key_secret,
			access_token = EXCLUDED.access_token,
			access_token_secret = EXCLUDED.access_token_secret
	`, creds.AccountKey, creds.APIKey, creds.APIKeySecret, creds.AccessToken, creds.AccessTokenSecret, creds.CreatedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to save credentials", err)
	}
	return nil
}

// GetCredentials returns the secrets of accountKey, or a NOT_FOUND error.
func (d Datasource) GetCredentials(ctx context.Context, accountKey string) (*model.Credentials, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT account_key, api_key, api_key_secret, access_token, access_token_secret, created_at
		FROM herald.accounts
		WHERE account_key = $1
	`, accountKey)

	creds := &model.Credentials{}
	err := row.Scan(&creds.AccountKey, &creds.APIKey, &creds.APIKeySecret, &creds.AccessToken, &creds.AccessTokenSecret, &creds.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Credentials for account '%s' not found", accountKey), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve credentials", err)
	}
	return creds, nil
}

// DeleteCredentials removes the secrets of accountKey.
func (d Datasource) DeleteCredentials(ctx context.Context, accountKey string) error {
	_, err := d.Conn.ExecContext(ctx, `
		DELETE FROM herald.accounts
		WHERE account_key = $1
	`, accountKey)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to delete credentials", err)
	}
	return nil
}

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

package apierror_test

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/blnkfinance/herald/internal/apierror"
	"github.com/stretchr/testify/assert"
)

func TestNewAPIError(t *testing.T) {
	details := "Some internal error details"
	apiErr := apierror.NewAPIError(apierror.ErrInternalServer, "Something went wrong", details)

	assert.Equal(t, apierror.ErrInternalServer, apiErr.Code)
	assert.Equal(t, "Something went wrong", apiErr.Message)
	assert.Equal(t, details, apiErr.Details)
	assert.Equal(t, "INTERNAL_SERVER_ERROR: Something went wrong", apiErr.Error())
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		code  apierror.ErrorCode
		found bool
	}{
		{name: "not found", err: apierror.NewAPIError(apierror.ErrNotFound, "missing", nil), code: apierror.ErrNotFound, found: true},
		{name: "wrapped", err: fmt.Errorf("dispatch: %w", apierror.NewAPIError(apierror.ErrPrecondition, "no credentials", nil)), code: apierror.ErrPrecondition, found: true},
		{name: "plain", err: errors.New("boom"), found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, ok := apierror.CodeOf(tt.err)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, apierror.IsNotFound(apierror.NewAPIError(apierror.ErrNotFound, "entry missing", sql.ErrNoRows)))
	assert.False(t, apierror.IsNotFound(apierror.NewAPIError(apierror.ErrConflict, "dup", nil)))
	assert.False(t, apierror.IsNotFound(nil))
}

func TestUnwrapDetails(t *testing.T) {
	err := apierror.NewAPIError(apierror.ErrNotFound, "entry missing", sql.ErrNoRows)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

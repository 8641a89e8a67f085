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

package apierror

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ErrorCode classifies an APIError.
type ErrorCode string

const (
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrConflict       ErrorCode = "CONFLICT"
	ErrBadRequest     ErrorCode = "BAD_REQUEST"
	ErrPrecondition   ErrorCode = "PRECONDITION_FAILED"
	ErrProvider       ErrorCode = "PROVIDER_ERROR"
	ErrInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"
)

// APIError is a store error carrying a code and the underlying cause in Details.
type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes Details when it is itself an error.
func (e APIError) Unwrap() error {
	if err, ok := e.Details.(error); ok {
		return err
	}
	return nil
}

// NewAPIError builds an APIError.
func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	if details != nil && code != ErrNotFound {
		logrus.WithField("code", code).Error(details)
	}
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// CodeOf returns the code of the first APIError in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	return "", false
}

// IsNotFound reports whether err is an APIError with code NOT_FOUND.
func IsNotFound(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == ErrNotFound
}

/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports that no row matched a lookup.
	ErrNotFound = errors.New("record not found")
	// ErrNoChange reports that a write had nothing to persist.
	ErrNoChange = errors.New("no changes to persist")
)

// Outcome carries the result of a repository operation. Value is meaningful
// only when Status is StatusOk; Message is diagnostic text for humans.
type Outcome[T any] struct {
	Status  Status `json:"status"`
	Value   T      `json:"value"`
	Message string `json:"message,omitempty"`
}

// Ok wraps a successful value.
func Ok[T any](value T) Outcome[T] {
	return Outcome[T]{Status: StatusOk, Value: value}
}

// No reports a completed operation that produced nothing, such as a lookup
// without a match or an update without changes.
func No[T any](message string) Outcome[T] {
	return Outcome[T]{Status: StatusNo, Message: message}
}

// Fail reports a failed operation.
func Fail[T any](err error) Outcome[T] {
	return Outcome[T]{Status: StatusError, Message: errMessage(err)}
}

// Cancelled reports an operation aborted by its context.
func Cancelled[T any](err error) Outcome[T] {
	return Outcome[T]{Status: StatusCancel, Message: errMessage(err)}
}

// Other reports a result that fits none of the other statuses.
func Other[T any](value T, message string) Outcome[T] {
	return Outcome[T]{Status: StatusOther, Value: value, Message: message}
}

// FromError classifies err and builds the matching Outcome. A nil error
// yields StatusOk with value.
func FromError[T any](value T, err error) Outcome[T] {
	switch {
	case err == nil:
		return Ok(value)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Cancelled[T](err)
	case errors.Is(err, ErrNotFound), errors.Is(err, sql.ErrNoRows), errors.Is(err, ErrNoChange):
		return No[T](errMessage(err))
	default:
		return Fail[T](err)
	}
}

// IsSuccess reports whether the operation succeeded.
func (o Outcome[T]) IsSuccess() bool {
	return o.Status == StatusOk
}

// Get returns the value and whether it is meaningful.
func (o Outcome[T]) Get() (T, bool) {
	return o.Value, o.IsSuccess()
}

// Err converts a non-successful outcome back into an error.
func (o Outcome[T]) Err() error {
	if o.IsSuccess() {
		return nil
	}
	if o.Message == "" {
		return fmt.Errorf("outcome %s", o.Status)
	}
	return fmt.Errorf("outcome %s: %s", o.Status, o.Message)
}

func (o Outcome[T]) String() string {
	if o.Message == "" {
		return o.Status.Name()
	}
	return o.Status.Name() + ": " + o.Message
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

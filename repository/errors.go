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
package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/tomoncle/typedrepo/database"
	"github.com/tomoncle/typedrepo/types"
)

var (
	ErrConfiguration = database.ErrConfiguration
	ErrNotFound      = types.ErrNotFound
	ErrNoChange      = types.ErrNoChange
	// ErrPartialBulkFailure matches every *PartialBulkFailure.
	ErrPartialBulkFailure = errors.New("bulk write failed")
	ErrInvalidArgument    = errors.New("invalid argument")
)

// StoreExecutionError wraps a failure reported by the store. Kind is the
// driver-independent classification of Err.
type StoreExecutionError struct {
	Op   string
	Kind database.SQLError
	Err  error
}

func (e *StoreExecutionError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *StoreExecutionError) Unwrap() error { return e.Err }

// PartialBulkFailure reports the chunk a bulk write stopped at. Nothing of
// the batch is persisted when it is returned.
type PartialBulkFailure struct {
	Chunk     int
	ChunkSize int
	Offset    int
	Err       error
}

func (e *PartialBulkFailure) Error() string {
	return fmt.Sprintf("bulk write failed at chunk %d (offset %d, size %d): %v",
		e.Chunk, e.Offset, e.ChunkSize, e.Err)
}

func (e *PartialBulkFailure) Unwrap() error { return e.Err }

func (e *PartialBulkFailure) Is(target error) bool { return target == ErrPartialBulkFailure }

// storeError wraps err for op. Missing rows become ErrNotFound, context
// errors stay visible to errors.Is through Unwrap.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if isOwnError(err) {
		return err
	}
	return &StoreExecutionError{Op: op, Kind: database.Classify(err), Err: err}
}

func invalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func isOwnError(err error) bool {
	var se *StoreExecutionError
	var pb *PartialBulkFailure
	return errors.As(err, &se) || errors.As(err, &pb) ||
		errors.Is(err, ErrNotFound) || errors.Is(err, ErrNoChange) || errors.Is(err, ErrInvalidArgument)
}

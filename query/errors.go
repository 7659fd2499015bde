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

package query

import "errors"

var (
	// ErrUnsupportedPredicate is returned when a predicate references a field
	// or operator that cannot be mapped to a store filter.
	ErrUnsupportedPredicate = errors.New("unsupported predicate")
	// ErrUnsupportedOrder is returned when an order term cannot be mapped.
	ErrUnsupportedOrder = errors.New("unsupported order")
	// ErrUnsupportedProjection is returned for malformed projection columns.
	ErrUnsupportedProjection = errors.New("unsupported projection")
	// ErrUnknownField is returned by resolvers for names they do not know.
	ErrUnknownField = errors.New("unknown field")
	// ErrInvalidModel is returned when a type cannot serve as a model.
	ErrInvalidModel = errors.New("invalid model")
)

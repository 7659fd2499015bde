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

// Common illegal/default values used by enums.
const (
	IllegalValue = -100
	IllegalName  = "unknown"
	IllegalDesc  = "unknown"
)

// BaseEnum represents a basic enum contract used by domain types.
type BaseEnum interface {
	IsValid() bool
	Number() int
	String() string
	Desc() string
	Name() string
}

// Status is the outcome code of a repository operation. The numeric values
// are stable and may be persisted or sent to other systems.
type Status int

const (
	StatusCancel Status = -1
	StatusError  Status = -2
	StatusNo     Status = 0
	StatusOk     Status = 1
	StatusOther  Status = 2
)

var _ BaseEnum = StatusOk

var statusNames = map[Status]string{
	StatusCancel: "cancel",
	StatusError:  "error",
	StatusNo:     "no",
	StatusOk:     "ok",
	StatusOther:  "other",
}

var statusDescs = map[Status]string{
	StatusCancel: "operation was cancelled before completion",
	StatusError:  "operation failed",
	StatusNo:     "operation completed without a result",
	StatusOk:     "operation succeeded",
	StatusOther:  "operation completed with an unclassified result",
}

// ParseStatus maps a numeric code back to a Status. Unknown codes yield
// a Status whose IsValid reports false.
func ParseStatus(n int) Status {
	s := Status(n)
	if !s.IsValid() {
		return Status(IllegalValue)
	}
	return s
}

func (s Status) IsValid() bool {
	_, ok := statusNames[s]
	return ok
}

func (s Status) Number() int {
	if !s.IsValid() {
		return IllegalValue
	}
	return int(s)
}

func (s Status) String() string {
	return s.Name()
}

func (s Status) Name() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return IllegalName
}

func (s Status) Desc() string {
	if desc, ok := statusDescs[s]; ok {
		return desc
	}
	return IllegalDesc
}

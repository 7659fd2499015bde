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

package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapLogger(zap.New(core))

	l.Info("session opened", "session", "abc")
	l.SetLevel(LogLevelWarn)
	l.Info("dropped")
	l.Error("commit failed", "error", "boom")

	require.Equal(t, 2, logs.Len())
	entries := logs.All()
	assert.Equal(t, "session opened", entries[0].Message)
	assert.Equal(t, "abc", entries[0].ContextMap()["session"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
}

func TestToFields(t *testing.T) {
	f := toFields([]interface{}{"table", "orders", "rows", 3, "dangling"})
	assert.Len(t, f, 2)
	assert.Equal(t, "orders", f["table"])
	assert.Equal(t, 3, f["rows"])
}

func TestGetLoggerDefault(t *testing.T) {
	assert.NotNil(t, GetLogger())
	assert.Equal(t, "WARN", LogLevelWarn.String())
}

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

package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLogLevel(" DEBUG "))
	assert.Equal(t, logrus.WarnLevel, ParseLogLevel("warning"))
	assert.Equal(t, logrus.InfoLevel, ParseLogLevel("bogus"))
}

func TestNewLoggerIsRegistered(t *testing.T) {
	a := NewLogger("utils-test")
	b := NewLogger("utils-test")
	assert.Same(t, a, b)

	assert.True(t, SetLoggerLevel("utils-test", "error"))
	assert.Equal(t, logrus.ErrorLevel, a.GetLevel())
	assert.False(t, SetLoggerLevel("missing", "error"))
}

func TestJSONLogFormatter(t *testing.T) {
	f := &JSONLogFormatter{LoggerName: "REPO"}
	entry := &logrus.Entry{
		Logger:  logrus.New(),
		Time:    time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "slow page",
		Data:    logrus.Fields{"table": "orders", "error": errors.New("boom")},
	}
	b, err := f.Format(entry)
	require.NoError(t, err)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &rec))
	assert.Equal(t, "2025-01-02 03:04:05.000", rec["time"])
	assert.Equal(t, "warning", rec["level"])
	assert.Equal(t, "REPO", rec["model"])
	assert.Equal(t, map[string]interface{}{"table": "orders", "error": "boom"}, rec["fields"])
}

func TestTextFormatterWritesMessage(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&Log4jColorFormatter{LoggerName: "QUERY", NameWidth: 10, CallerWidth: 25})
	l.Info("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.Contains(t, buf.String(), "QUERY")
}

func TestCallerPath(t *testing.T) {
	assert.Equal(t, "query/order.go:12", callerPath("/src/typedrepo/query/order.go", 12, 0))
	assert.Equal(t, "order.go:12", callerPath("/src/typedrepo/query/order.go", 12, 11))
}

func TestEnvDefaults(t *testing.T) {
	t.Setenv("TYPEDREPO_TEST_BOOL", "true")
	t.Setenv("TYPEDREPO_TEST_DUR", "250ms")
	assert.True(t, EnvDefaultBool("TYPEDREPO_TEST_BOOL", false))
	assert.Equal(t, 250*time.Millisecond, EnvDefaultDuration("TYPEDREPO_TEST_DUR", time.Second))
	assert.Equal(t, "x", EnvDefaultString("TYPEDREPO_TEST_UNSET", "x"))
}

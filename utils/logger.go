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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

type Logger = logrus.Logger

const timestampFormat = "2006-01-02 15:04:05.000"

var (
	registryMu    sync.RWMutex
	registry      = map[string]*logrus.Logger{}
	defaultLevel  = ParseLogLevel(EnvDefaultString("LOG_LEVEL", "info"))
	defaultFormat = EnvDefaultString("LOG_FORMAT", "text")
	defaultOutput io.Writer = os.Stdout
)

// NewLogger returns a named logrus logger. Loggers are registered by name so
// their level can be changed at runtime; asking twice for the same name
// returns the same logger.
func NewLogger(name string) *logrus.Logger {
	registryMu.Lock()
	defer registryMu.Unlock()
	if l, ok := registry[name]; ok {
		return l
	}
	l := logrus.New()
	l.SetOutput(defaultOutput)
	l.SetLevel(defaultLevel)
	l.SetReportCaller(true)
	l.SetFormatter(newFormatter(defaultFormat, name))
	registry[name] = l
	return l
}

func newFormatter(format, name string) logrus.Formatter {
	if strings.EqualFold(format, "json") {
		return &JSONLogFormatter{LoggerName: name}
	}
	return &Log4jColorFormatter{LoggerName: name, NameWidth: 10, CallerWidth: 25}
}

func ParseLogLevel(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

// SetLoggerLevel changes the level of one registered logger.
func SetLoggerLevel(name string, level string) bool {
	registryMu.RLock()
	l, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return false
	}
	l.SetLevel(ParseLogLevel(level))
	return true
}

// ConfigureLogLevel sets the level of every registered logger and of loggers
// created later.
func ConfigureLogLevel(level string) {
	lvl := ParseLogLevel(level)
	registryMu.Lock()
	defer registryMu.Unlock()
	defaultLevel = lvl
	for _, l := range registry {
		l.SetLevel(lvl)
	}
}

// ConfigureLogFormat switches every logger between "text" and "json".
func ConfigureLogFormat(format string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	defaultFormat = format
	for name, l := range registry {
		l.SetFormatter(newFormatter(format, name))
	}
}

// ConfigureLogOutput redirects every logger.
func ConfigureLogOutput(w io.Writer) {
	registryMu.Lock()
	defer registryMu.Unlock()
	defaultOutput = w
	for _, l := range registry {
		l.SetOutput(w)
	}
}

type Log4jColorFormatter struct {
	LoggerName  string
	NameWidth   int
	CallerWidth int
}

func (f *Log4jColorFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	lvl := levelColor(entry.Level).Sprintf("%7s", strings.ToUpper(entry.Level.String()))
	pid := color.MagentaString("%-6d", os.Getpid())
	name := color.CyanString("%*s", f.NameWidth, limitRunes(f.LoggerName, f.NameWidth))

	caller := ""
	if entry.Caller != nil {
		fileLine := callerPath(entry.Caller.File, entry.Caller.Line, f.CallerWidth)
		caller = color.New(color.Faint).Sprintf(" %*s", f.CallerWidth, fileLine)
	}

	msg := entry.Message
	if len(entry.Data) > 0 {
		b, err := json.Marshal(entry.Data)
		if err == nil {
			msg += " " + string(b)
		}
	}
	line := fmt.Sprintf("%s %s %s - %s%s %s %s\n",
		entry.Time.Format(timestampFormat), lvl, pid, name, caller, color.New(color.Faint).Sprint(":"), msg)
	return []byte(line), nil
}

type JSONLogFormatter struct {
	LoggerName string
}

type jsonLogRecord struct {
	Time    string                 `json:"time"`
	Level   string                 `json:"level"`
	Model   string                 `json:"model"`
	Caller  string                 `json:"caller,omitempty"`
	Message string                 `json:"message"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

func (f *JSONLogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	rec := jsonLogRecord{
		Time:    entry.Time.Format(timestampFormat),
		Level:   entry.Level.String(),
		Model:   f.LoggerName,
		Message: entry.Message,
	}
	if entry.Caller != nil {
		rec.Caller = callerPath(entry.Caller.File, entry.Caller.Line, 0)
	}
	if len(entry.Data) > 0 {
		rec.Fields = make(map[string]interface{}, len(entry.Data))
		for k, v := range entry.Data {
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			rec.Fields[k] = v
		}
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func levelColor(level logrus.Level) *color.Color {
	switch level {
	case logrus.TraceLevel, logrus.DebugLevel:
		return color.New(color.FgBlue)
	case logrus.InfoLevel:
		return color.New(color.FgGreen)
	case logrus.WarnLevel:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

// callerPath renders "dir/file.go:line", keeping the tail when the result
// would exceed width.
func callerPath(file string, line int, width int) string {
	dir := filepath.Base(filepath.Dir(file))
	s := dir + "/" + filepath.Base(file) + ":" + strconv.Itoa(line)
	if width > 0 {
		if r := []rune(s); len(r) > width {
			s = string(r[len(r)-width:])
		}
	}
	return s
}

func limitRunes(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n])
}

func EnvDefaultString(key string, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func EnvDefaultBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

// EnvDefaultDuration reads a time.Duration such as "200ms".
func EnvDefaultDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return d
}

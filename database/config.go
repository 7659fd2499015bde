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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var supportedTypes = []string{"mysql", "postgres", "postgresql", "sqlite", "sqlite3"}

// Validate checks that the parameters are enough to open a connection.
func (c *ConnectionConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: connection config is nil", ErrConfiguration)
	}
	supported := false
	for _, t := range supportedTypes {
		if c.Type == t {
			supported = true
			break
		}
	}
	if !supported {
		return fmt.Errorf("%w: unsupported database type %q, supported types: %v", ErrConfiguration, c.Type, supportedTypes)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: database name is empty", ErrConfiguration)
	}
	if isSQLite(c.Type) {
		return nil
	}
	if c.Host == "" {
		return fmt.Errorf("%w: host is empty", ErrConfiguration)
	}
	if isPostgres(c.Type) {
		switch c.Driver {
		case "", "pq", "pgx":
		default:
			return fmt.Errorf("%w: unsupported postgres driver %q", ErrConfiguration, c.Driver)
		}
	}
	return nil
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig. Any
// .env files are loaded into the environment first (missing files are
// ignored) and DB_* variables override the file.
func LoadConfig(path string, envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env files: %w", err)
	}
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to parse config file: %w", ErrConfiguration, err)
		}
	}
	ApplyEnvOverrides(&cfg.ConnectionConfig)
	return cfg, nil
}

// ConfigFromViper decodes the configuration from v on top of DefaultConfig,
// using the same keys as the YAML file. DB_* variables override v, as they
// do for LoadConfig.
func ConfigFromViper(v *viper.Viper) (*Config, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: viper instance is nil", ErrConfiguration)
	}
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	ApplyEnvOverrides(&cfg.ConnectionConfig)
	return cfg, nil
}

// ApplyEnvOverrides overrides configuration values from environment variables.
func ApplyEnvOverrides(cfg *ConnectionConfig) {
	if typ := os.Getenv("DB_TYPE"); typ != "" {
		cfg.Type = typ
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		cfg.Driver = driver
	}
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if username := os.Getenv("DB_USERNAME"); username != "" {
		cfg.Username = username
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if dbname := os.Getenv("DB_NAME"); dbname != "" {
		cfg.DBName = dbname
	}
	if sslmode := os.Getenv("DB_SSLMODE"); sslmode != "" {
		cfg.SSLMode = sslmode
	}
	// Connection pool config
	if maxIdle := os.Getenv("DB_MAX_IDLE_CONNS"); maxIdle != "" {
		if val, err := strconv.Atoi(maxIdle); err == nil {
			cfg.MaxIdleConns = val
		}
	}
	if maxOpen := os.Getenv("DB_MAX_OPEN_CONNS"); maxOpen != "" {
		if val, err := strconv.Atoi(maxOpen); err == nil {
			cfg.MaxOpenConns = val
		}
	}
	if maxLifetime := os.Getenv("DB_CONN_MAX_LIFETIME"); maxLifetime != "" {
		if val, err := strconv.Atoi(maxLifetime); err == nil {
			cfg.ConnMaxLifetime = time.Duration(val) * time.Second
		}
	}
	if enableReconnect := os.Getenv("DB_ENABLE_RECONNECT"); enableReconnect != "" {
		cfg.EnableReconnect = enableReconnect == "true"
	}
	if reconnectInterval := os.Getenv("DB_RECONNECT_INTERVAL"); reconnectInterval != "" {
		if val, err := strconv.Atoi(reconnectInterval); err == nil {
			cfg.ReconnectInterval = time.Duration(val) * time.Second
		}
	}
	if enableQueryLog := os.Getenv("DB_ENABLE_QUERY_LOG"); enableQueryLog != "" {
		cfg.EnableQueryLog = enableQueryLog == "true"
	}
	if enableMetrics := os.Getenv("DB_ENABLE_METRICS"); enableMetrics != "" {
		cfg.EnableMetrics = enableMetrics == "true"
	}
}

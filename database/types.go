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
	"context"
	"time"

	"github.com/uptrace/bun"
)

// AbstractDatabaseManager defines the operations for managing a database
// connection, bootstrapping tables and reporting health.
type AbstractDatabaseManager interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Reconnect(ctx context.Context) error
	Ping(ctx context.Context) error
	HealthCheck(ctx context.Context) *HealthStatus
	GetDB() *bun.DB
	Config() ConnectionConfig
	Bootstrap(ctx context.Context, models ...interface{}) error
	GetStats() *DBStats
	SetLogger(logger Logger)
}

// HealthStatus holds the result of a health check against the database.
type HealthStatus struct {
	Healthy       bool          `json:"healthy"`
	Connected     bool          `json:"connected"`
	ResponseTime  time.Duration `json:"response_time"`
	ActiveConns   int           `json:"active_conns"`
	IdleConns     int           `json:"idle_conns"`
	MaxOpenConns  int           `json:"max_open_conns"`
	LastError     string        `json:"last_error,omitempty"`
	LastCheckTime time.Time     `json:"last_check_time"`
}

// DBStats mirrors database/sql stats returned by the manager.
type DBStats struct {
	MaxOpenConns      int           `json:"max_open_conns"`
	OpenConns         int           `json:"open_conns"`
	InUse             int           `json:"in_use"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	MaxIdleClosed     int64         `json:"max_idle_closed"`
	MaxIdleTimeClosed int64         `json:"max_idle_time_closed"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed"`
}

// ConnectionConfig describes how to connect to a database and tune its pool.
type ConnectionConfig struct {
	Type                string        `json:"type" yaml:"type" mapstructure:"type"`       // postgres, mysql, sqlite
	Driver              string        `json:"driver" yaml:"driver" mapstructure:"driver"` // postgres only: pq (default) or pgx
	Host                string        `json:"host" yaml:"host" mapstructure:"host"`
	Port                int           `json:"port" yaml:"port" mapstructure:"port"`
	Username            string        `json:"username" yaml:"username" mapstructure:"username"`
	Password            string        `json:"password" yaml:"password" mapstructure:"password"`
	DBName              string        `json:"dbname" yaml:"dbname" mapstructure:"dbname"` // sqlite: file name without .db, or :memory:
	SSLMode             string        `json:"sslmode" yaml:"sslmode" mapstructure:"sslmode"`
	MaxIdleConns        int           `json:"max_idle_conns" yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	MaxOpenConns        int           `json:"max_open_conns" yaml:"max_open_conns" mapstructure:"max_open_conns"`
	ConnMaxLifetime     time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime     time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
	ConnectTimeout      time.Duration `json:"connect_timeout" yaml:"connect_timeout" mapstructure:"connect_timeout"`
	ReadTimeout         time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout        time.Duration `json:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout"`
	EnableReconnect     bool          `json:"enable_reconnect" yaml:"enable_reconnect" mapstructure:"enable_reconnect"`
	ReconnectInterval   time.Duration `json:"reconnect_interval" yaml:"reconnect_interval" mapstructure:"reconnect_interval"`
	MaxReconnectTries   int           `json:"max_reconnect_tries" yaml:"max_reconnect_tries" mapstructure:"max_reconnect_tries"`
	HealthCheckInterval time.Duration `json:"health_check_interval" yaml:"health_check_interval" mapstructure:"health_check_interval"`
	EnableQueryLog      bool          `json:"enable_query_log" yaml:"enable_query_log" mapstructure:"enable_query_log"`
	EnableColorLog      bool          `json:"enable_color_log" yaml:"enable_color_log" mapstructure:"enable_color_log"`
	SlowQueryTime       time.Duration `json:"slow_query_time" yaml:"slow_query_time" mapstructure:"slow_query_time"`
	EnableMetrics       bool          `json:"enable_metrics" yaml:"enable_metrics" mapstructure:"enable_metrics"`
	Charset             string        `json:"charset" yaml:"charset" mapstructure:"charset"` // MySQL: utf8mb4
}

// BootstrapConfig controls table creation when a session is opened.
type BootstrapConfig struct {
	CreateTablesOnStartup bool `json:"create_tables_on_startup" yaml:"create_tables_on_startup" mapstructure:"create_tables_on_startup"`
}

// CacheConfig selects the point cache used by GetByID lookups that ask for it.
type CacheConfig struct {
	Type            string        `json:"type" yaml:"type" mapstructure:"type"` // "", memory, redis
	TTL             time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl"`
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval" mapstructure:"cleanup_interval"`
	RedisAddr       string        `json:"redis_addr" yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword   string        `json:"redis_password" yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB         int           `json:"redis_db" yaml:"redis_db" mapstructure:"redis_db"`
	KeyPrefix       string        `json:"key_prefix" yaml:"key_prefix" mapstructure:"key_prefix"`
}

// Config aggregates connection, bootstrap and cache settings.
type Config struct {
	ConnectionConfig ConnectionConfig `json:"connection_config" yaml:"connection_config" mapstructure:"connection_config"`
	BootstrapConfig  BootstrapConfig  `json:"bootstrap_config" yaml:"bootstrap_config" mapstructure:"bootstrap_config"`
	CacheConfig      CacheConfig      `json:"cache_config" yaml:"cache_config" mapstructure:"cache_config"`
}

// DefaultConnectionConfig returns a connection config with sensible defaults.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		MaxIdleConns:        10,
		MaxOpenConns:        100,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     time.Minute * 30,
		ConnectTimeout:      time.Second * 10,
		ReadTimeout:         time.Second * 30,
		WriteTimeout:        time.Second * 30,
		EnableReconnect:     true,
		ReconnectInterval:   time.Second * 5,
		MaxReconnectTries:   3,
		HealthCheckInterval: 0,
		EnableQueryLog:      false,
		SlowQueryTime:       time.Second * 2,
	}
}

// DefaultConfig wraps DefaultConnectionConfig with a five minute memory cache
// configuration that stays disabled until Type is set.
func DefaultConfig() *Config {
	return &Config{
		ConnectionConfig: *DefaultConnectionConfig(),
		CacheConfig: CacheConfig{
			TTL:             5 * time.Minute,
			CleanupInterval: 10 * time.Minute,
			KeyPrefix:       "typedrepo",
		},
	}
}

func (c *ConnectionConfig) IsMemorySQLite() bool {
	return isSQLite(c.Type) && c.DBName == ":memory:"
}

// DriverName names the database/sql driver family: pq, pgx, mysql or sqlite.
func (c *ConnectionConfig) DriverName() string {
	switch {
	case isPostgres(c.Type):
		if c.Driver == "pgx" {
			return "pgx"
		}
		return "pq"
	case isSQLite(c.Type):
		return "sqlite"
	default:
		return c.Type
	}
}

func isSQLite(typ string) bool { return typ == "sqlite" || typ == "sqlite3" }

func isPostgres(typ string) bool { return typ == "postgres" || typ == "postgresql" }

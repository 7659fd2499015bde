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
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/schema"
)

// ErrManagerClosed is returned by a manager after Disconnect.
var ErrManagerClosed = errors.New("database: manager closed")

const healthCheckTimeout = 5 * time.Second

// defaultDatabaseManager owns the connection pool of an opened Session. The
// pool may be replaced by Reconnect; sessions look it up through GetDB on
// every call and never keep one.
type defaultDatabaseManager struct {
	config *ConnectionConfig
	hooks  []bun.QueryHook

	mu     sync.RWMutex
	db     *bun.DB
	logger Logger
	status HealthStatus
	closed bool

	done      chan struct{}
	closeOnce sync.Once
	watchOnce sync.Once
}

// NewDatabaseManager returns an AbstractDatabaseManager backed by Bun. A nil
// config falls back to DefaultConnectionConfig. Extra hooks are added to
// every pool next to the ones the config enables.
func NewDatabaseManager(config *ConnectionConfig, hooks ...bun.QueryHook) AbstractDatabaseManager {
	if config == nil {
		config = DefaultConnectionConfig()
	}
	cfg := *config
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	return &defaultDatabaseManager{
		config: &cfg,
		hooks:  hooks,
		logger: GetLogger(),
		done:   make(chan struct{}),
	}
}

func (dm *defaultDatabaseManager) Connect(ctx context.Context) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.closed {
		return ErrManagerClosed
	}
	if dm.db != nil {
		return nil
	}
	db, err := dm.open(ctx)
	if err != nil {
		return err
	}
	dm.db = db
	if dm.config.HealthCheckInterval > 0 {
		dm.watchOnce.Do(func() { go dm.watch(dm.config.HealthCheckInterval) })
	}
	dm.logger.Info("Database connected", "type", dm.config.Type, "driver", dm.config.DriverName(), "host", dm.config.Host)
	return nil
}

// open builds and pings a new pool.
func (dm *defaultDatabaseManager) open(ctx context.Context) (*bun.DB, error) {
	driver, dsn, dialect, err := dm.dataSource()
	if err != nil {
		return nil, err
	}
	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	sqlDB.SetMaxIdleConns(dm.config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(dm.config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(dm.config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(dm.config.ConnMaxIdleTime)

	db := bun.NewDB(sqlDB, dialect)
	if err := dm.addHooks(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, dm.config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database connection test failed: %w", err)
	}
	return db, nil
}

// dataSource returns the database/sql driver name, DSN and bun dialect.
func (dm *defaultDatabaseManager) dataSource() (string, string, schema.Dialect, error) {
	c := dm.config
	switch {
	case c.Type == "mysql":
		charset := c.Charset
		if charset == "" {
			charset = "utf8mb4"
		}
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local&timeout=%s&readTimeout=%s&writeTimeout=%s",
			c.Username, c.Password, c.Host, c.Port, c.DBName, charset, c.ConnectTimeout, c.ReadTimeout, c.WriteTimeout)
		return "mysql", dsn, mysqldialect.New(), nil
	case isPostgres(c.Type):
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=%d",
			c.Username, c.Password, c.Host, c.Port, c.DBName, sslMode, int(c.ConnectTimeout.Seconds()))
		// lib/pq registers "postgres", pgx/stdlib registers "pgx".
		if c.Driver == "pgx" {
			return "pgx", dsn, pgdialect.New(), nil
		}
		return "postgres", dsn, pgdialect.New(), nil
	case isSQLite(c.Type):
		if c.IsMemorySQLite() {
			// A named shared-cache database lives as long as one connection
			// stays open, so the pool is pinned to a single connection.
			c.MaxOpenConns, c.MaxIdleConns = 1, 1
			c.ConnMaxLifetime, c.ConnMaxIdleTime = 0, 0
			return sqliteshim.ShimName, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), sqlitedialect.New(), nil
		}
		return sqliteshim.ShimName, c.DBName + ".db", sqlitedialect.New(), nil
	default:
		return "", "", nil, fmt.Errorf("%w: unsupported database type: %s", ErrConfiguration, c.Type)
	}
}

func (dm *defaultDatabaseManager) addHooks(db *bun.DB) error {
	if dm.config.EnableQueryLog {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}
	if dm.config.EnableColorLog {
		db.AddQueryHook(NewQueryHook(os.Stdout, false))
	}
	if dm.config.SlowQueryTime > 0 {
		db.AddQueryHook(NewSlowQueryHook(dm.config.SlowQueryTime, dm.logger))
	}
	if dm.config.EnableMetrics {
		hook, err := NewMetricsHook(nil)
		if err != nil {
			return err
		}
		db.AddQueryHook(hook)
	}
	for _, hook := range dm.hooks {
		db.AddQueryHook(hook)
	}
	return nil
}

// Disconnect stops the health loop and closes the pool. The manager cannot
// be connected again; sessions still holding it get "database is closed".
func (dm *defaultDatabaseManager) Disconnect() error {
	dm.closeOnce.Do(func() { close(dm.done) })

	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.closed {
		return nil
	}
	dm.closed = true
	if dm.db == nil {
		return nil
	}
	if err := dm.db.Close(); err != nil {
		dm.logger.Error("Failed to close database connection", "error", err)
		return err
	}
	dm.logger.Info("Database connection closed")
	return nil
}

// Reconnect opens a fresh pool and swaps it in. The old pool is closed only
// after the swap, so queries already running on it finish and every later
// call resolves the new one. A failed attempt keeps the current pool.
func (dm *defaultDatabaseManager) Reconnect(ctx context.Context) error {
	if dm.config.IsMemorySQLite() {
		return fmt.Errorf("%w: an in-memory database cannot be reconnected", ErrConfiguration)
	}
	fresh, err := dm.open(ctx)
	if err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}

	dm.mu.Lock()
	if dm.closed {
		dm.mu.Unlock()
		_ = fresh.Close()
		return ErrManagerClosed
	}
	old := dm.db
	dm.db = fresh
	dm.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			dm.logger.Warn("Error closing replaced connection pool", "error", err)
		}
	}
	dm.logger.Info("Database reconnected", "type", dm.config.Type)
	return nil
}

func (dm *defaultDatabaseManager) Ping(ctx context.Context) error {
	dm.mu.RLock()
	db, closed := dm.db, dm.closed
	dm.mu.RUnlock()
	if closed {
		return ErrManagerClosed
	}
	if db == nil {
		return fmt.Errorf("database not connected")
	}
	return db.PingContext(ctx)
}

func (dm *defaultDatabaseManager) GetDB() *bun.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.db
}

// HealthCheck pings the current pool and records the result. The lock is
// not held while pinging, so a slow server never blocks Disconnect.
func (dm *defaultDatabaseManager) HealthCheck(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := HealthStatus{LastCheckTime: start}

	pingCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	err := dm.Ping(pingCtx)
	cancel()
	status.ResponseTime = time.Since(start)
	if err != nil {
		status.LastError = err.Error()
	} else {
		status.Healthy, status.Connected = true, true
	}
	if db := dm.GetDB(); db != nil {
		stats := db.Stats()
		status.ActiveConns = stats.InUse
		status.IdleConns = stats.Idle
		status.MaxOpenConns = stats.MaxOpenConnections
	}

	dm.mu.Lock()
	dm.status = status
	dm.mu.Unlock()
	return &status
}

// watch runs periodic health checks and, when enabled, replaces an
// unhealthy pool. It returns once Disconnect is called.
func (dm *defaultDatabaseManager) watch(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tries := 0
	for {
		select {
		case <-dm.done:
			return
		case <-ticker.C:
		}
		if dm.HealthCheck(context.Background()).Healthy {
			tries = 0
			continue
		}
		if !dm.config.EnableReconnect || dm.config.IsMemorySQLite() {
			continue
		}
		if tries >= dm.config.MaxReconnectTries {
			if tries == dm.config.MaxReconnectTries {
				dm.logger.Error("Max reconnect attempts reached", "tries", tries)
				tries++
			}
			continue
		}
		tries++
		select {
		case <-dm.done:
			return
		case <-time.After(dm.config.ReconnectInterval):
		}
		ctx, cancel := context.WithTimeout(context.Background(), dm.config.ConnectTimeout)
		err := dm.Reconnect(ctx)
		cancel()
		if err != nil {
			dm.logger.Error("Reconnect failed", "error", err, "try", tries)
			continue
		}
		tries = 0
	}
}

func (dm *defaultDatabaseManager) GetStats() *DBStats {
	db := dm.GetDB()
	if db == nil {
		return &DBStats{}
	}
	stats := db.Stats()
	return &DBStats{
		MaxOpenConns:      stats.MaxOpenConnections,
		OpenConns:         stats.OpenConnections,
		InUse:             stats.InUse,
		Idle:              stats.Idle,
		WaitCount:         stats.WaitCount,
		WaitDuration:      stats.WaitDuration,
		MaxIdleClosed:     stats.MaxIdleClosed,
		MaxIdleTimeClosed: stats.MaxIdleTimeClosed,
		MaxLifetimeClosed: stats.MaxLifetimeClosed,
	}
}

func (dm *defaultDatabaseManager) Config() ConnectionConfig {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return *dm.config
}

func (dm *defaultDatabaseManager) Bootstrap(ctx context.Context, models ...interface{}) error {
	db := dm.GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}
	if err := Bootstrap(ctx, db, models...); err != nil {
		return err
	}
	dm.logger.Debug("Tables bootstrapped", "count", len(models))
	return nil
}

func (dm *defaultDatabaseManager) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.logger = logger
}

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
	"fmt"
	"sync"

	"github.com/uptrace/bun"
)

var (
	globalConfigMu sync.RWMutex
	globalConfig   *Config
)

// Configure stores the process-wide connection parameters used by Open. It
// never connects; a later call replaces the parameters for sessions opened
// afterwards.
func Configure(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: database configuration cannot be empty", ErrConfiguration)
	}
	if err := cfg.ConnectionConfig.Validate(); err != nil {
		return err
	}
	c := *cfg
	globalConfigMu.Lock()
	globalConfig = &c
	globalConfigMu.Unlock()
	return nil
}

// Configured returns a copy of the stored parameters.
func Configured() (Config, bool) {
	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	if globalConfig == nil {
		return Config{}, false
	}
	return *globalConfig, true
}

// ResetConfiguration forgets the stored parameters.
func ResetConfiguration() {
	globalConfigMu.Lock()
	globalConfig = nil
	globalConfigMu.Unlock()
}

// Open connects with the parameters stored by Configure.
func Open(ctx context.Context, hooks ...bun.QueryHook) (*Session, error) {
	cfg, ok := Configured()
	if !ok {
		return nil, fmt.Errorf("%w: connection parameters not configured", ErrConfiguration)
	}
	return OpenWithConfig(ctx, &cfg, hooks...)
}

// OpenWithConfig connects, bootstraps registered tables when enabled and
// returns an auto-close session owning the connection pool and point cache.
func OpenWithConfig(ctx context.Context, cfg *Config, hooks ...bun.QueryHook) (*Session, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: database configuration cannot be empty", ErrConfiguration)
	}
	factory := NewDatabaseFactory()
	manager, err := factory.CreateFromConfig(&cfg.ConnectionConfig, hooks...)
	if err != nil {
		return nil, fmt.Errorf("failed to create database manager: %w", err)
	}
	if err := factory.InitializeDatabase(ctx, cfg.BootstrapConfig.CreateTablesOnStartup); err != nil {
		_ = factory.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	cache, err := NewPointCache(ctx, cfg.CacheConfig)
	if err != nil {
		_ = factory.Close()
		return nil, fmt.Errorf("failed to create point cache: %w", err)
	}

	connCfg := manager.Config()
	s := NewSession(manager.GetDB(), WithCache(cache), WithDriver(connCfg.DriverName()))
	s.pool = manager
	s.factory = factory
	s.logger.Debug("Session opened", "session", s.id, "type", connCfg.Type, "driver", s.driver)
	return s, nil
}

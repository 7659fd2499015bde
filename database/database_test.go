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
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type widget struct {
	bun.BaseModel `bun:"table:widgets,alias:w"`

	ID    int64           `bun:"id,pk,autoincrement"`
	Name  string          `bun:"name,notnull"`
	Price decimal.Decimal `bun:"price,type:text"`
}

func memoryConfig() *Config {
	cfg := DefaultConfig()
	cfg.ConnectionConfig.Type = "sqlite"
	cfg.ConnectionConfig.DBName = ":memory:"
	cfg.ConnectionConfig.SlowQueryTime = 0
	return cfg
}

func openMemory(t *testing.T, cfg *Config, hooks ...bun.QueryHook) *Session {
	t.Helper()
	if cfg == nil {
		cfg = memoryConfig()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := OpenWithConfig(ctx, cfg, hooks...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Bootstrap(ctx, (*widget)(nil)))
	return s
}

func countWidgets(t *testing.T, db bun.IDB) int {
	t.Helper()
	n, err := db.NewSelect().Model((*widget)(nil)).Count(context.Background())
	require.NoError(t, err)
	return n
}

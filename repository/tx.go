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
package repository

import (
	"context"
	"database/sql"

	"github.com/tomoncle/typedrepo/database"

	"github.com/uptrace/bun/dialect"
)

type txFunc func(ctx context.Context, s *database.Session) error

// readTx runs fn so that every statement sees the same snapshot. A held
// session is reused as is.
func readTx(ctx context.Context, s *database.Session, fn txFunc) error {
	if s.InTx() {
		return fn(ctx, s)
	}
	return s.RunInTx(ctx, readOptions(s), fn)
}

// writeTx runs fn atomically. On a held session it runs under a savepoint,
// so a failure leaves the caller's earlier work intact.
func writeTx(ctx context.Context, s *database.Session, fn txFunc) error {
	return s.RunInTx(ctx, nil, fn)
}

func readOptions(s *database.Session) *sql.TxOptions {
	switch s.Dialect().Name() {
	case dialect.PG, dialect.MySQL:
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	default:
		// SQLite transactions are serializable and reject isolation levels
		// the driver does not know.
		return nil
	}
}

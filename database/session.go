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
	"sync"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/schema"
)

// Session is the handle repositories execute through. An auto-close session
// wraps the connection pool: every call borrows a connection and returns it,
// and the session is safe for concurrent use. A held session, obtained from
// Begin, is bound to one transaction until Commit or Rollback and must not be
// shared between goroutines.
type Session struct {
	id      string
	pool    poolSource
	tx      bun.Tx
	held    bool
	parent  *Session
	driver  string
	cache   PointCache
	logger  Logger
	factory *BaseDatabaseFactory

	mu   sync.Mutex
	done bool
	// tables written by a held session, invalidated once the outermost
	// transaction commits
	stale map[string]struct{}
}

// poolSource yields the current connection pool. A manager replaces its
// pool on reconnect, so sessions resolve it on every call.
type poolSource interface {
	GetDB() *bun.DB
}

type fixedPool struct{ db *bun.DB }

func (p fixedPool) GetDB() *bun.DB { return p.db }

type SessionOption func(*Session)

// WithCache attaches a point cache used by lookups that ask for it.
func WithCache(c PointCache) SessionOption {
	return func(s *Session) { s.cache = c }
}

// WithDriver names the driver family when it cannot be told from the
// dialect, i.e. "pgx" for Postgres through jackc/pgx.
func WithDriver(driver string) SessionOption {
	return func(s *Session) { s.driver = driver }
}

func WithSessionLogger(l Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// NewSession wraps an existing bun database in an auto-close session. The
// caller keeps ownership of db.
func NewSession(db *bun.DB, opts ...SessionOption) *Session {
	s := &Session{
		id:     uuid.NewString(),
		pool:   fixedPool{db},
		logger: GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.driver == "" {
		switch db.Dialect().Name() {
		case dialect.PG:
			s.driver = "pq"
		case dialect.MySQL:
			s.driver = "mysql"
		default:
			s.driver = "sqlite"
		}
	}
	return s
}

func (s *Session) ID() string { return s.id }

// DB is the underlying pool, also for held sessions.
func (s *Session) DB() *bun.DB { return s.pool.GetDB() }

// IDB is what queries run on: the transaction when held, the pool otherwise.
func (s *Session) IDB() bun.IDB {
	if s.held {
		return s.tx
	}
	return s.DB()
}

// Tx returns the held transaction.
func (s *Session) Tx() (bun.Tx, bool) {
	return s.tx, s.held
}

func (s *Session) InTx() bool { return s.held }

func (s *Session) Dialect() schema.Dialect { return s.DB().Dialect() }

// Driver is one of pq, pgx, mysql or sqlite.
func (s *Session) Driver() string { return s.driver }

// Cache is nil when no point cache is configured.
func (s *Session) Cache() PointCache { return s.cache }

func (s *Session) Logger() Logger { return s.logger }

// Begin starts a transaction and returns a held session bound to it. On a
// session that is already held the new transaction is a savepoint.
func (s *Session) Begin(ctx context.Context, opts *sql.TxOptions) (*Session, error) {
	var (
		tx  bun.Tx
		err error
	)
	if s.held {
		tx, err = s.tx.BeginTx(ctx, opts)
	} else {
		tx, err = s.DB().BeginTx(ctx, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	held := &Session{
		id:     uuid.NewString(),
		pool:   s.pool,
		tx:     tx,
		held:   true,
		parent: s,
		driver: s.driver,
		cache:  s.cache,
		logger: s.logger,
	}
	s.logger.Debug("Transaction started", "session", held.id, "parent", s.id)
	return held, nil
}

// Commit ends the held transaction.
func (s *Session) Commit() error {
	if !s.held {
		return ErrNotInTransaction
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return fmt.Errorf("commit: %w", sql.ErrTxDone)
	}
	s.done = true
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.flushStale()
	return nil
}

// InvalidateCache moves table to a new point cache generation. Inside a held
// session the move waits until the outermost transaction commits; until then
// other sessions still read the committed rows, and caching them is correct.
func (s *Session) InvalidateCache(ctx context.Context, table string) error {
	if s.cache == nil {
		return nil
	}
	if !s.held {
		return s.cache.Invalidate(ctx, table)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stale == nil {
		s.stale = make(map[string]struct{})
	}
	s.stale[table] = struct{}{}
	return nil
}

// flushStale hands the tables written by a committed savepoint to its parent,
// or invalidates them when the whole transaction has committed. Called with
// s.mu held.
func (s *Session) flushStale() {
	if len(s.stale) == 0 {
		return
	}
	if s.parent != nil && s.parent.held {
		for table := range s.stale {
			_ = s.parent.InvalidateCache(context.Background(), table)
		}
		s.stale = nil
		return
	}
	for table := range s.stale {
		if err := s.cache.Invalidate(context.Background(), table); err != nil {
			s.logger.Warn("Failed to invalidate point cache", "table", table, "error", err)
		}
	}
	s.stale = nil
}

// Rollback discards the held transaction. It is a no-op once the transaction
// has ended, so it can be deferred right after Begin.
func (s *Session) Rollback() error {
	if !s.held {
		return ErrNotInTransaction
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true
	s.stale = nil
	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to roll back transaction: %w", err)
	}
	return nil
}

// RunInTx runs fn inside a transaction, committing when fn returns nil and
// rolling back on error or panic.
func (s *Session) RunInTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx *Session) error) error {
	held, err := s.Begin(ctx, opts)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = held.Rollback()
		}
	}()
	if err := fn(ctx, held); err != nil {
		return err
	}
	committed = true
	return held.Commit()
}

// Bootstrap creates missing tables for models, or for the registered models
// when none are given.
func (s *Session) Bootstrap(ctx context.Context, models ...interface{}) error {
	return Bootstrap(ctx, s.IDB(), models...)
}

func (s *Session) TableExists(ctx context.Context, model interface{}) (bool, error) {
	return TableExists(ctx, s.IDB(), model)
}

// Health reports the connection health. Sessions built with NewSession only
// ping.
func (s *Session) Health(ctx context.Context) *HealthStatus {
	if s.factory != nil {
		return s.factory.GetHealthStatus(ctx)
	}
	status := &HealthStatus{Connected: true, Healthy: true}
	if err := s.DB().PingContext(ctx); err != nil {
		status.Connected, status.Healthy, status.LastError = false, false, err.Error()
	}
	return status
}

// Close rolls back a held session. An auto-close session opened by Open
// closes its pool and cache; one built with NewSession leaves them alone.
func (s *Session) Close() error {
	if s.held {
		return s.Rollback()
	}
	if s.factory == nil {
		return nil
	}
	var errs []error
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
	}
	errs = append(errs, s.factory.Close())
	return errors.Join(errs...)
}

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
	"fmt"
	"reflect"
	"strings"

	"github.com/tomoncle/typedrepo/database"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"
)

// eachChunk calls fn for consecutive slices of at most size items and stops
// at the first failure.
func eachChunk[T any](items []*T, size int, op string, fn func(chunk []*T) error) error {
	for i, off := 0, 0; off < len(items); i, off = i+1, off+size {
		end := min(off+size, len(items))
		if err := fn(items[off:end]); err != nil {
			return &PartialBulkFailure{Chunk: i, ChunkSize: end - off, Offset: off, Err: storeError(op, err)}
		}
	}
	return nil
}

// AddBulk inserts entities chunk by chunk in one transaction and returns
// the number of rows written. Postgres connections stream rows with COPY;
// other engines use one multi-row INSERT per chunk. COPY does not report
// generated keys back.
func (r *baseRepositoryImpl[T]) AddBulk(ctx context.Context, entities []*T, opts BulkOptions) (int, error) {
	if len(entities) == 0 {
		return 0, nil
	}
	batch, err := r.ValsToSlice(entities...)
	if err != nil {
		return 0, err
	}
	size := opts.chunkSize()

	var total int
	if r.session.Driver() == "pgx" && !r.session.InTx() {
		total, err = r.copyFromPgx(ctx, batch, size)
	} else {
		err = writeTx(ctx, r.session, func(ctx context.Context, s *database.Session) error {
			total = 0
			return eachChunk(batch, size, "add bulk", func(chunk []*T) error {
				n, err := r.insertChunk(ctx, s, chunk)
				total += n
				return err
			})
		})
	}
	if err != nil {
		return 0, storeError("add bulk", err)
	}
	r.invalidate(ctx)
	logger.Debugf("bulk inserted %d rows into %s in chunks of %d", total, r.catalog.Name(), size)
	return total, nil
}

func (r *baseRepositoryImpl[T]) insertChunk(ctx context.Context, s *database.Session, chunk []*T) (int, error) {
	if s.Driver() == "pq" {
		if tx, ok := s.Tx(); ok {
			return r.copyIn(ctx, tx.Tx, chunk)
		}
	}
	if _, err := s.IDB().NewInsert().Model(&chunk).Exec(ctx); err != nil {
		return 0, err
	}
	return len(chunk), nil
}

func (r *baseRepositoryImpl[T]) copyIn(ctx context.Context, tx *sql.Tx, chunk []*T) (int, error) {
	names, fields := r.copyColumns(chunk[0])
	stmt := pq.CopyIn(r.catalog.Name(), names...)
	if schemaName, table, ok := strings.Cut(r.catalog.Name(), "."); ok {
		stmt = pq.CopyInSchema(schemaName, table, names...)
	}
	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		return 0, err
	}
	defer prepared.Close()
	for _, e := range chunk {
		if _, err := prepared.ExecContext(ctx, r.rowValues(fields, e)...); err != nil {
			return 0, err
		}
	}
	if _, err := prepared.ExecContext(ctx); err != nil {
		return 0, err
	}
	return len(chunk), nil
}

// copyFromPgx runs every chunk through CopyFrom on one pgx transaction of a
// dedicated connection.
func (r *baseRepositoryImpl[T]) copyFromPgx(ctx context.Context, batch []*T, size int) (int, error) {
	conn, err := r.session.DB().DB.Conn(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	var total int
	err = conn.Raw(func(driverConn any) error {
		sc, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected pgx driver connection %T", driverConn)
		}
		tx, err := sc.Conn().Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		names, fields := r.copyColumns(batch[0])
		table := pgx.Identifier(strings.Split(r.catalog.Name(), "."))
		err = eachChunk(batch, size, "copy from", func(chunk []*T) error {
			rows := make([][]any, len(chunk))
			for i, e := range chunk {
				rows[i] = r.rowValues(fields, e)
			}
			n, err := tx.CopyFrom(ctx, table, names, pgx.CopyFromRows(rows))
			total += int(n)
			return err
		})
		if err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// copyColumns lists the columns COPY writes. Generated keys are left to the
// database when first does not set them.
func (r *baseRepositoryImpl[T]) copyColumns(first *T) ([]string, []*schema.Field) {
	v := reflect.ValueOf(first).Elem()
	fields := make([]*schema.Field, 0, len(r.catalog.Table().Fields))
	names := make([]string, 0, len(r.catalog.Table().Fields))
	for _, f := range r.catalog.Table().Fields {
		if (f.AutoIncrement || f.Identity) && f.HasZeroValue(v) {
			continue
		}
		fields = append(fields, f)
		names = append(names, f.Name)
	}
	return names, fields
}

func (r *baseRepositoryImpl[T]) rowValues(fields []*schema.Field, entity *T) []any {
	v := reflect.ValueOf(entity).Elem()
	values := make([]any, len(fields))
	for i, f := range fields {
		if f.NullZero && f.HasZeroValue(v) {
			continue
		}
		values[i] = f.Value(v).Interface()
	}
	return values
}

// UpdateBulk writes every data column of entities by primary key, chunk by
// chunk in one transaction, and returns the number of rows updated.
func (r *baseRepositoryImpl[T]) UpdateBulk(ctx context.Context, entities []*T, opts BulkOptions) (int, error) {
	if len(entities) == 0 {
		return 0, nil
	}
	batch, err := r.ValsToSlice(entities...)
	if err != nil {
		return 0, err
	}
	size := opts.chunkSize()

	var total int
	err = writeTx(ctx, r.session, func(ctx context.Context, s *database.Session) error {
		total = 0
		bulk := useBulkUpdate(s)
		return eachChunk(batch, size, "update bulk", func(chunk []*T) error {
			if bulk {
				res, err := s.IDB().NewUpdate().Model(&chunk).Bulk().Exec(ctx)
				if err != nil {
					return err
				}
				total += affected(res)
				return nil
			}
			for _, e := range chunk {
				res, err := s.IDB().NewUpdate().Model(e).WherePK().Exec(ctx)
				if err != nil {
					return err
				}
				total += affected(res)
			}
			return nil
		})
	})
	if err != nil {
		return 0, storeError("update bulk", err)
	}
	r.invalidate(ctx)
	return total, nil
}

// useBulkUpdate reports whether chunks can be written with one
// UPDATE ... FROM (VALUES ...) statement. bun types the VALUES rows only
// for Postgres.
func useBulkUpdate(s *database.Session) bool {
	db := s.DB()
	return s.Dialect().Name() == dialect.PG &&
		db.HasFeature(feature.CTE) && db.HasFeature(feature.UpdateFromTable)
}

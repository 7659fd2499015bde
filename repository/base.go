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
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/tomoncle/typedrepo/database"
	"github.com/tomoncle/typedrepo/query"
	"github.com/tomoncle/typedrepo/utils"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"
)

var logger = utils.NewLogger("REPOSITORY")

type baseRepositoryImpl[T any] struct {
	session *database.Session
	catalog *query.FieldCatalog
}

// NewRepository returns a generic repository bound to session. The field
// catalog of T is resolved here, so a type without a primary key fails now
// rather than on first use.
func NewRepository[T any](session *database.Session) (Repository[T], error) {
	if session == nil {
		return nil, fmt.Errorf("%w: session cannot be nil", ErrConfiguration)
	}
	catalog, err := query.EntityCatalogOf[T](session.Dialect())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return &baseRepositoryImpl[T]{session: session, catalog: catalog}, nil
}

// MustRepository is NewRepository that panics on error.
func MustRepository[T any](session *database.Session) Repository[T] {
	r, err := NewRepository[T](session)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *baseRepositoryImpl[T]) Session() *database.Session { return r.session }

func (r *baseRepositoryImpl[T]) Catalog() *query.FieldCatalog { return r.catalog }

func (r *baseRepositoryImpl[T]) WithSession(s *database.Session) Repository[T] {
	if s == nil {
		return r
	}
	cp := *r
	cp.session = s
	return &cp
}

func (r *baseRepositoryImpl[T]) idb() bun.IDB { return r.session.IDB() }

func (r *baseRepositoryImpl[T]) Dialect() schema.Dialect { return r.session.Dialect() }

func (r *baseRepositoryImpl[T]) NewSelect() *bun.SelectQuery { return r.idb().NewSelect() }

func (r *baseRepositoryImpl[T]) NewInsert() *bun.InsertQuery { return r.idb().NewInsert() }

func (r *baseRepositoryImpl[T]) NewUpdate() *bun.UpdateQuery { return r.idb().NewUpdate() }

func (r *baseRepositoryImpl[T]) NewDelete() *bun.DeleteQuery { return r.idb().NewDelete() }

func (r *baseRepositoryImpl[T]) ValsToSlice(entity ...*T) ([]*T, error) {
	entities := make([]*T, len(entity))
	for i, e := range entity {
		if e == nil {
			return nil, invalidArgument("entity %d is nil", i)
		}
		entities[i] = e
	}
	return entities, nil
}

// invalidate drops cached point lookups of T after a write.
func (r *baseRepositoryImpl[T]) invalidate(ctx context.Context) {
	if err := r.session.InvalidateCache(ctx, r.catalog.Name()); err != nil {
		logger.WithError(err).Warnf("failed to invalidate point cache of %s", r.catalog.Name())
	}
}

// pointCache returns the cache a lookup may use. Rows read inside a held
// transaction are never cached, they may not be committed yet.
func (r *baseRepositoryImpl[T]) pointCache(o lookupOptions) database.PointCache {
	if !o.useCache || r.session.InTx() {
		return nil
	}
	return r.session.Cache()
}

// pkWhere renders the primary key condition for id. Composite keys take a
// []interface{} with one value per key column, in declaration order.
func (r *baseRepositoryImpl[T]) pkWhere(id any) (string, []interface{}, error) {
	pks := r.catalog.PrimaryKeys()
	if len(pks) == 1 {
		if id == nil {
			return "", nil, invalidArgument("nil id")
		}
		return "? = ?", []interface{}{bun.Ident(pks[0].Name), id}, nil
	}
	values, ok := id.([]interface{})
	if !ok || len(values) != len(pks) {
		return "", nil, invalidArgument("%s has %d key columns, got id %v", r.catalog.Name(), len(pks), id)
	}
	parts := make([]string, len(pks))
	args := make([]interface{}, 0, 2*len(pks))
	for i, pk := range pks {
		parts[i] = "? = ?"
		args = append(args, bun.Ident(pk.Name), values[i])
	}
	return strings.Join(parts, " AND "), args, nil
}

func (r *baseRepositoryImpl[T]) singleKey() (*schema.Field, error) {
	pks := r.catalog.PrimaryKeys()
	if len(pks) != 1 {
		return nil, invalidArgument("%s has a composite primary key", r.catalog.Name())
	}
	return pks[0], nil
}

func (r *baseRepositoryImpl[T]) primaryKeyOrder() []query.Expr {
	pks := r.catalog.PrimaryKeys()
	order := make([]query.Expr, len(pks))
	for i, pk := range pks {
		order[i] = query.Expr{Query: "? ASC", Args: []interface{}{bun.Ident(pk.Name)}}
	}
	return order
}

func affected(res sql.Result) int {
	if res == nil {
		return 0
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return int(n)
}

func sliceLen(v any) (int, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv.Len(), nil
	default:
		return 0, invalidArgument("expected a slice of ids, got %T", v)
	}
}

func (r *baseRepositoryImpl[T]) Add(ctx context.Context, entity *T) error {
	if entity == nil {
		return invalidArgument("entity is nil")
	}
	if _, err := r.idb().NewInsert().Model(entity).Exec(ctx); err != nil {
		return storeError("add", err)
	}
	r.invalidate(ctx)
	return nil
}

func (r *baseRepositoryImpl[T]) AddBatch(ctx context.Context, entity ...*T) error {
	if len(entity) == 0 {
		return nil
	}
	entities, err := r.ValsToSlice(entity...)
	if err != nil {
		return err
	}
	if _, err := r.idb().NewInsert().Model(&entities).Exec(ctx); err != nil {
		return storeError("add batch", err)
	}
	r.invalidate(ctx)
	return nil
}

func (r *baseRepositoryImpl[T]) Delete(ctx context.Context, entity *T) (int, error) {
	if entity == nil {
		return 0, invalidArgument("entity is nil")
	}
	res, err := r.idb().NewDelete().Model(entity).WherePK().Exec(ctx)
	if err != nil {
		return 0, storeError("delete", err)
	}
	r.invalidate(ctx)
	return affected(res), nil
}

func (r *baseRepositoryImpl[T]) DeleteByID(ctx context.Context, id any) (int, error) {
	where, args, err := r.pkWhere(id)
	if err != nil {
		return 0, err
	}
	res, err := r.idb().NewDelete().Model((*T)(nil)).Where(where, args...).Exec(ctx)
	if err != nil {
		return 0, storeError("delete by id", err)
	}
	r.invalidate(ctx)
	return affected(res), nil
}

func (r *baseRepositoryImpl[T]) DeleteByIDs(ctx context.Context, ids any) (int, error) {
	pk, err := r.singleKey()
	if err != nil {
		return 0, err
	}
	n, err := sliceLen(ids)
	if err != nil || n == 0 {
		return 0, err
	}
	res, err := r.idb().NewDelete().
		Model((*T)(nil)).
		Where("? IN (?)", bun.Ident(pk.Name), bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return 0, storeError("delete by ids", err)
	}
	r.invalidate(ctx)
	return affected(res), nil
}

func (r *baseRepositoryImpl[T]) DeleteWhere(ctx context.Context, p query.Predicate) (int, error) {
	filter, err := query.Translate(p, r.catalog)
	if err != nil {
		return 0, err
	}
	q := r.idb().NewDelete().Model((*T)(nil))
	if filter.IsEmpty() {
		q = q.Where("1 = 1")
	} else {
		q = filter.ApplyDelete(q)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, storeError("delete where", err)
	}
	r.invalidate(ctx)
	return affected(res), nil
}

func (r *baseRepositoryImpl[T]) GetByID(ctx context.Context, id any, opts ...LookupOption) (*T, error) {
	var lo lookupOptions
	for _, opt := range opts {
		opt(&lo)
	}
	where, args, err := r.pkWhere(id)
	if err != nil {
		return nil, err
	}

	cache := r.pointCache(lo)
	key := fmt.Sprint(id)
	var gen string
	if cache != nil {
		// The generation is taken before the store is read; a write landing
		// in between moves the table on and orphans what is stored below.
		if gen, err = cache.Generation(ctx, r.catalog.Name()); err != nil {
			logger.WithError(err).Warnf("point cache of %s unavailable", r.catalog.Name())
			cache = nil
		}
	}
	if cache != nil {
		cached := new(T)
		err := cache.Get(ctx, r.catalog.Name(), gen, key, cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, database.ErrCacheMiss) {
			logger.WithError(err).Warnf("point cache read of %s failed", r.catalog.Name())
		}
	}

	entity := new(T)
	if err := r.idb().NewSelect().Model(entity).Where(where, args...).Limit(1).Scan(ctx); err != nil {
		return nil, storeError("get by id", err)
	}
	if cache != nil {
		if err := cache.Set(ctx, r.catalog.Name(), gen, key, entity); err != nil {
			logger.WithError(err).Warnf("point cache write of %s failed", r.catalog.Name())
		}
	}
	return entity, nil
}

func (r *baseRepositoryImpl[T]) GetByIDs(ctx context.Context, ids any) ([]*T, error) {
	pk, err := r.singleKey()
	if err != nil {
		return nil, err
	}
	entities := make([]*T, 0)
	n, err := sliceLen(ids)
	if err != nil || n == 0 {
		return entities, err
	}
	err = r.idb().NewSelect().
		Model(&entities).
		Where("? IN (?)", bun.Ident(pk.Name), bun.In(ids)).
		OrderExpr("? ASC", bun.Ident(pk.Name)).
		Scan(ctx)
	if err != nil {
		return nil, storeError("get by ids", err)
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T]) All(ctx context.Context) ([]*T, error) {
	return r.Find(ctx)
}

func (r *baseRepositoryImpl[T]) Find(ctx context.Context, opts ...FindOption) ([]*T, error) {
	o := collectFindOptions(opts)
	if len(o.group) > 0 {
		return nil, invalidArgument("grouping needs a projection, use FindAs")
	}
	plan, err := query.Build(o.spec(nil), r.catalog)
	if err != nil {
		return nil, err
	}
	entities := make([]*T, 0)
	if err := plan.Apply(r.idb().NewSelect().Model(&entities)).Scan(ctx); err != nil {
		return nil, storeError("find", err)
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T]) Count(ctx context.Context, p query.Predicate) (int, error) {
	filter, err := query.Translate(p, r.catalog)
	if err != nil {
		return 0, err
	}
	n, err := filter.ApplySelect(r.idb().NewSelect().Model((*T)(nil))).Count(ctx)
	if err != nil {
		return 0, storeError("count", err)
	}
	return n, nil
}

func (r *baseRepositoryImpl[T]) Exists(ctx context.Context, p query.Predicate) (bool, error) {
	filter, err := query.Translate(p, r.catalog)
	if err != nil {
		return false, err
	}
	ok, err := filter.ApplySelect(r.idb().NewSelect().Model((*T)(nil))).Exists(ctx)
	if err != nil {
		return false, storeError("exists", err)
	}
	return ok, nil
}

func (r *baseRepositoryImpl[T]) QuerySQL(ctx context.Context, stmt string, args ...interface{}) ([]*T, error) {
	entities := make([]*T, 0)
	if err := r.idb().NewRaw(stmt, args...).Scan(ctx, &entities); err != nil {
		return nil, storeError("query", err)
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T]) QueryTable(ctx context.Context, stmt string, args ...interface{}) ([]map[string]interface{}, error) {
	rows := make([]map[string]interface{}, 0)
	if err := r.idb().NewRaw(stmt, args...).Scan(ctx, &rows); err != nil {
		return nil, storeError("query table", err)
	}
	return rows, nil
}

func (r *baseRepositoryImpl[T]) Upsert(ctx context.Context, fields []string, conflictKeys []string, entity ...*T) error {
	if len(entity) == 0 {
		return nil
	}
	entities, err := r.ValsToSlice(entity...)
	if err != nil {
		return err
	}
	if fields, err = r.resolveColumns(fields, false); err != nil {
		return err
	}
	if len(conflictKeys) == 0 {
		for _, pk := range r.catalog.PrimaryKeys() {
			conflictKeys = append(conflictKeys, pk.Name)
		}
	} else if conflictKeys, err = r.resolveKeys(conflictKeys); err != nil {
		return err
	}

	db := r.session.DB()
	switch {
	case db.HasFeature(feature.InsertOnConflict):
		err = r.upsertOnConflict(ctx, fields, conflictKeys, entities)
	case db.HasFeature(feature.InsertOnDuplicateKey):
		err = r.upsertOnDuplicateKey(ctx, fields, entities)
	default:
		err = writeTx(ctx, r.session, func(ctx context.Context, s *database.Session) error {
			return r.upsertFallback(ctx, s.IDB(), entities)
		})
	}
	if err != nil {
		return storeError("upsert", err)
	}
	r.invalidate(ctx)
	return nil
}

func (r *baseRepositoryImpl[T]) upsertOnDuplicateKey(ctx context.Context, fields []string, entities []*T) error {
	sets := make([]string, 0, len(fields))
	args := make([]interface{}, 0, 2*len(fields))
	for _, field := range fields {
		sets = append(sets, "? = VALUES(?)")
		args = append(args, bun.Ident(field), bun.Ident(field))
	}
	_, err := r.idb().NewInsert().
		Model(&entities).
		On("DUPLICATE KEY UPDATE "+strings.Join(sets, ", "), args...).
		Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) upsertOnConflict(ctx context.Context, fields []string, conflictKeys []string, entities []*T) error {
	keys := make([]string, len(conflictKeys))
	keyArgs := make([]interface{}, len(conflictKeys))
	for i, k := range conflictKeys {
		keys[i] = "?"
		keyArgs[i] = bun.Ident(k)
	}
	q := r.idb().NewInsert().
		Model(&entities).
		On("CONFLICT ("+strings.Join(keys, ", ")+") DO UPDATE", keyArgs...)
	for _, field := range fields {
		q = q.Set("? = EXCLUDED.?", bun.Ident(field), bun.Ident(field))
	}
	_, err := q.Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) upsertFallback(ctx context.Context, db bun.IDB, entities []*T) error {
	for _, entity := range entities {
		exists, err := db.NewSelect().Model(entity).WherePK().Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			_, err = db.NewUpdate().Model(entity).WherePK().Exec(ctx)
		} else {
			_, err = db.NewInsert().Model(entity).Exec(ctx)
		}
		if err != nil {
			return fmt.Errorf("upsert failed for entity: %w", err)
		}
	}
	return nil
}

// resolveColumns maps field names to data columns. With ignore set the
// result is every data column not named. Empty input means all data
// columns unless ignore is set.
func (r *baseRepositoryImpl[T]) resolveColumns(fields []string, ignore bool) ([]string, error) {
	named := make(map[string]bool, len(fields))
	for _, name := range fields {
		f, err := r.catalog.Field(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		if f.IsPK {
			if ignore {
				continue
			}
			return nil, invalidArgument("primary key column %q cannot be written", f.Name)
		}
		named[f.Name] = true
	}
	columns := make([]string, 0, len(r.catalog.Table().DataFields))
	for _, f := range r.catalog.Table().DataFields {
		if len(fields) == 0 || named[f.Name] != ignore {
			columns = append(columns, f.Name)
		}
	}
	if len(columns) == 0 {
		return nil, invalidArgument("no columns to write")
	}
	return columns, nil
}

func (r *baseRepositoryImpl[T]) resolveKeys(names []string) ([]string, error) {
	keys := make([]string, len(names))
	for i, name := range names {
		col, err := r.catalog.ResolveColumn(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		keys[i] = col
	}
	return keys, nil
}

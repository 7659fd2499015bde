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
	"fmt"
	"reflect"
	"sort"

	"github.com/tomoncle/typedrepo/database"
	"github.com/tomoncle/typedrepo/query"

	"github.com/uptrace/bun"
)

// Update compares entity with the stored row of the same primary key and
// writes only the columns that differ. The read and the write share one
// transaction.
func (r *baseRepositoryImpl[T]) Update(ctx context.Context, entity *T) (bool, error) {
	if entity == nil {
		return false, invalidArgument("entity is nil")
	}
	if zero, err := r.catalog.HasZeroPrimaryKey(entity); err != nil {
		return false, err
	} else if zero {
		return false, invalidArgument("%s has no primary key value", r.catalog.Name())
	}

	var changed []string
	err := writeTx(ctx, r.session, func(ctx context.Context, s *database.Session) error {
		current := new(T)
		*current = *entity
		if err := s.IDB().NewSelect().Model(current).WherePK().Scan(ctx); err != nil {
			return storeError("update", err)
		}
		before, err := r.catalog.Snapshot(current)
		if err != nil {
			return err
		}
		if changed, err = r.catalog.Changed(before, entity); err != nil {
			return err
		}
		if len(changed) == 0 {
			return nil
		}
		_, err = s.IDB().NewUpdate().Model(entity).Column(changed...).WherePK().Exec(ctx)
		return err
	})
	if err != nil {
		return false, storeError("update", err)
	}
	if len(changed) == 0 {
		return false, nil
	}
	r.invalidate(ctx)
	return true, nil
}

func (r *baseRepositoryImpl[T]) UpdateColumns(ctx context.Context, entity *T, columns []string, ignore bool) (int, error) {
	if entity == nil {
		return 0, invalidArgument("entity is nil")
	}
	if len(columns) == 0 && !ignore {
		return 0, invalidArgument("no columns to write")
	}
	cols, err := r.resolveColumns(columns, ignore)
	if err != nil {
		return 0, err
	}
	res, err := r.idb().NewUpdate().Model(entity).Column(cols...).WherePK().Exec(ctx)
	if err != nil {
		return 0, storeError("update columns", err)
	}
	r.invalidate(ctx)
	return affected(res), nil
}

// UpdateWhere writes columns of entity (every data column when none are
// named) to all rows matching p. A nil predicate matches all rows.
func (r *baseRepositoryImpl[T]) UpdateWhere(ctx context.Context, entity *T, p query.Predicate, columns ...string) (int, error) {
	if entity == nil {
		return 0, invalidArgument("entity is nil")
	}
	cols, err := r.resolveColumns(columns, false)
	if err != nil {
		return 0, err
	}
	filter, err := query.Translate(p, r.catalog)
	if err != nil {
		return 0, err
	}
	q := r.idb().NewUpdate().Model(entity).Column(cols...)
	if filter.IsEmpty() {
		q = q.Where("1 = 1")
	} else {
		q = filter.ApplyUpdate(q)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, storeError("update where", err)
	}
	r.invalidate(ctx)
	return affected(res), nil
}

// UpdatePartial takes field -> value pairs. Every primary key must be
// present; the other entries are written.
func (r *baseRepositoryImpl[T]) UpdatePartial(ctx context.Context, values map[string]interface{}) (int, error) {
	keys := make(map[string]interface{}, len(r.catalog.PrimaryKeys()))
	sets := make(map[string]interface{}, len(values))
	for name, value := range values {
		f, err := r.catalog.Field(name)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		if f.IsPK {
			keys[f.Name] = value
		} else {
			sets[f.Name] = value
		}
	}
	for _, pk := range r.catalog.PrimaryKeys() {
		if _, ok := keys[pk.Name]; !ok {
			return 0, invalidArgument("primary key %q is missing", pk.Name)
		}
	}
	if len(sets) == 0 {
		return 0, invalidArgument("no columns to write")
	}

	columns := make([]string, 0, len(sets))
	for col := range sets {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	q := r.idb().NewUpdate().Model((*T)(nil))
	for _, col := range columns {
		q = q.Set("? = ?", bun.Ident(col), sets[col])
	}
	for _, pk := range r.catalog.PrimaryKeys() {
		q = q.Where("? = ?", bun.Ident(pk.Name), keys[pk.Name])
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, storeError("update partial", err)
	}
	r.invalidate(ctx)
	return affected(res), nil
}

func (r *baseRepositoryImpl[T]) UpdateByMutator(ctx context.Context, entity *T, fn func(*T)) error {
	if entity == nil || fn == nil {
		return invalidArgument("entity and mutator are required")
	}
	keys, err := r.catalog.PrimaryKeyValues(entity)
	if err != nil {
		return err
	}
	before, err := r.catalog.Snapshot(entity)
	if err != nil {
		return err
	}
	fn(entity)

	after, err := r.catalog.PrimaryKeyValues(entity)
	if err != nil {
		return err
	}
	if !reflect.DeepEqual(keys, after) {
		return invalidArgument("mutator changed the primary key of %s", r.catalog.Name())
	}
	changed, err := r.catalog.Changed(before, entity)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		return fmt.Errorf("update %s: %w", r.catalog.Name(), ErrNoChange)
	}

	res, err := r.idb().NewUpdate().Model(entity).Column(changed...).WherePK().Exec(ctx)
	if err != nil {
		return storeError("update by mutator", err)
	}
	if affected(res) == 0 {
		return fmt.Errorf("update %s: %w", r.catalog.Name(), ErrNotFound)
	}
	r.invalidate(ctx)
	return nil
}

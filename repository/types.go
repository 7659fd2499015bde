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

	"github.com/tomoncle/typedrepo/database"
	"github.com/tomoncle/typedrepo/query"
	"github.com/tomoncle/typedrepo/types"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// CrudRepository defines inserts and deletes for a generic entity type.
type CrudRepository[T any] interface {
	// Add inserts one entity and fills generated keys back into it.
	Add(ctx context.Context, entity *T) error

	// AddBatch inserts entities with one multi-row statement.
	AddBatch(ctx context.Context, entities ...*T) error

	// Upsert inserts entities, updating fields on conflict with conflictKeys
	// (the primary key when empty).
	Upsert(ctx context.Context, fields []string, conflictKeys []string, entities ...*T) error

	Delete(ctx context.Context, entity *T) (int, error)

	DeleteByID(ctx context.Context, id any) (int, error)

	DeleteByIDs(ctx context.Context, ids any) (int, error)

	// DeleteWhere removes every row matching p. A nil predicate matches all
	// rows.
	DeleteWhere(ctx context.Context, p query.Predicate) (int, error)
}

// QueryRepository defines reads.
type QueryRepository[T any] interface {
	GetByID(ctx context.Context, id any, opts ...LookupOption) (*T, error)

	GetByIDs(ctx context.Context, ids any) ([]*T, error)

	All(ctx context.Context) ([]*T, error)

	Find(ctx context.Context, opts ...FindOption) ([]*T, error)

	Page(ctx context.Context, req *types.PageRequest, opts ...FindOption) (*types.PageResult[T], error)

	Count(ctx context.Context, p query.Predicate) (int, error)

	Exists(ctx context.Context, p query.Predicate) (bool, error)

	// QuerySQL runs a raw statement and scans rows into entities.
	QuerySQL(ctx context.Context, sql string, args ...interface{}) ([]*T, error)

	// QueryTable runs a raw statement and returns rows as column maps.
	QueryTable(ctx context.Context, sql string, args ...interface{}) ([]map[string]interface{}, error)
}

// UpdateRepository defines the update family.
type UpdateRepository[T any] interface {
	// Update writes the columns of entity that differ from the stored row.
	// It reports false, without writing, when nothing differs.
	Update(ctx context.Context, entity *T) (bool, error)

	// UpdateColumns writes columns of entity, or every other data column
	// when ignore is set.
	UpdateColumns(ctx context.Context, entity *T, columns []string, ignore bool) (int, error)

	// UpdateWhere copies columns of entity onto every row matching p.
	UpdateWhere(ctx context.Context, entity *T, p query.Predicate, columns ...string) (int, error)

	// UpdatePartial writes the non-key entries of values to the row
	// addressed by its key entries.
	UpdatePartial(ctx context.Context, values map[string]interface{}) (int, error)

	// UpdateByMutator applies fn to entity and persists only the columns fn
	// changed. It returns ErrNoChange without touching the store when fn
	// changed nothing.
	UpdateByMutator(ctx context.Context, entity *T, fn func(*T)) error
}

// BulkRepository defines chunked writes of large collections.
type BulkRepository[T any] interface {
	AddBulk(ctx context.Context, entities []*T, opts BulkOptions) (int, error)

	UpdateBulk(ctx context.Context, entities []*T, opts BulkOptions) (int, error)
}

// Repository combines every operation on T and exposes Bun query builders
// bound to the repository's session for advanced use cases.
type Repository[T any] interface {
	CrudRepository[T]
	QueryRepository[T]
	UpdateRepository[T]
	BulkRepository[T]

	Session() *database.Session
	Catalog() *query.FieldCatalog
	// WithSession returns a copy of the repository bound to s, typically a
	// held session from Session.Begin.
	WithSession(s *database.Session) Repository[T]

	Dialect() schema.Dialect
	NewSelect() *bun.SelectQuery
	NewInsert() *bun.InsertQuery
	NewUpdate() *bun.UpdateQuery
	NewDelete() *bun.DeleteQuery
}

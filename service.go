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
package typedrepo

import (
	"context"

	"github.com/tomoncle/typedrepo/database"
	"github.com/tomoncle/typedrepo/query"
	"github.com/tomoncle/typedrepo/repository"
	"github.com/tomoncle/typedrepo/types"

	"github.com/uptrace/bun"
)

// NoRowsAffected is the message of a No outcome returned by a write that
// matched nothing.
const NoRowsAffected = "no rows affected"

type Service[T any] interface {
	// Add inserts one entity and returns it with generated keys filled in.
	Add(ctx context.Context, entity *T) types.Outcome[*T]

	// AddBatch inserts entities with one statement and returns their count.
	AddBatch(ctx context.Context, entities ...*T) types.Outcome[int]

	// AddBulk inserts a large collection chunk by chunk, all or nothing.
	AddBulk(ctx context.Context, entities []*T, opts repository.BulkOptions) types.Outcome[int]

	// Upsert inserts entities, updating fields on key conflicts.
	Upsert(ctx context.Context, fields []string, conflictKeys []string, entities ...*T) types.Outcome[int]

	Delete(ctx context.Context, entity *T) types.Outcome[int]

	DeleteByID(ctx context.Context, id any) types.Outcome[int]

	DeleteByIDs(ctx context.Context, ids any) types.Outcome[int]

	DeleteWhere(ctx context.Context, p query.Predicate) types.Outcome[int]

	// Get returns a single entity by its identifier; No when it does not
	// exist.
	Get(ctx context.Context, id any, opts ...repository.LookupOption) types.Outcome[*T]

	GetMany(ctx context.Context, ids any) types.Outcome[[]*T]

	// All returns all entities.
	All(ctx context.Context) types.Outcome[[]*T]

	// Find returns entities matching opts.
	Find(ctx context.Context, opts ...repository.FindOption) types.Outcome[[]*T]

	// Page returns a page of entities with the total count.
	Page(ctx context.Context, req *types.PageRequest, opts ...repository.FindOption) types.Outcome[*types.PageResult[T]]

	Count(ctx context.Context, p query.Predicate) types.Outcome[int]

	Exists(ctx context.Context, p query.Predicate) types.Outcome[bool]

	// Query executes a raw query and maps the results to entities.
	Query(ctx context.Context, sql string, args ...interface{}) types.Outcome[[]*T]

	// QueryTable executes a raw query and returns rows as column maps.
	QueryTable(ctx context.Context, sql string, args ...interface{}) types.Outcome[[]map[string]interface{}]

	// Update writes the changed columns of entity. The outcome is No when
	// the stored row already holds the same values.
	Update(ctx context.Context, entity *T) types.Outcome[bool]

	UpdateColumns(ctx context.Context, entity *T, columns []string, ignore bool) types.Outcome[int]

	UpdateWhere(ctx context.Context, entity *T, p query.Predicate, columns ...string) types.Outcome[int]

	UpdatePartial(ctx context.Context, values map[string]interface{}) types.Outcome[int]

	// UpdateByMutator applies fn and persists what it changed. The outcome
	// is No, without a store call, when fn changed nothing.
	UpdateByMutator(ctx context.Context, entity *T, fn func(*T)) types.Outcome[*T]

	UpdateBulk(ctx context.Context, entities []*T, opts repository.BulkOptions) types.Outcome[int]

	// Repository exposes the error-returning repository behind the service.
	Repository() repository.Repository[T]

	// WithSession returns a copy of the service bound to s.
	WithSession(s *database.Session) Service[T]

	// SelectBuilder returns a Bun select query builder for the entity.
	SelectBuilder() *bun.SelectQuery
}

type baseServiceImpl[T any] struct {
	repo repository.Repository[T]
}

// NewService returns a Service for T bound to session. It fails only when T
// cannot be mapped or session is nil.
func NewService[T any](session *database.Session) (Service[T], error) {
	repo, err := repository.NewRepository[T](session)
	if err != nil {
		return nil, err
	}
	return &baseServiceImpl[T]{repo: repo}, nil
}

// NewServiceFromRepository wraps an existing repository.
func NewServiceFromRepository[T any](repo repository.Repository[T]) Service[T] {
	return &baseServiceImpl[T]{repo: repo}
}

// written maps a write result: nothing touched is No.
func written(n int, err error) types.Outcome[int] {
	if err == nil && n == 0 {
		return types.No[int](NoRowsAffected)
	}
	return types.FromError(n, err)
}

func (s *baseServiceImpl[T]) Repository() repository.Repository[T] { return s.repo }

func (s *baseServiceImpl[T]) WithSession(session *database.Session) Service[T] {
	return &baseServiceImpl[T]{repo: s.repo.WithSession(session)}
}

func (s *baseServiceImpl[T]) SelectBuilder() *bun.SelectQuery {
	return s.repo.NewSelect().Model((*T)(nil))
}

func (s *baseServiceImpl[T]) Add(ctx context.Context, entity *T) types.Outcome[*T] {
	return types.FromError(entity, s.repo.Add(ctx, entity))
}

func (s *baseServiceImpl[T]) AddBatch(ctx context.Context, entities ...*T) types.Outcome[int] {
	if err := s.repo.AddBatch(ctx, entities...); err != nil {
		return types.FromError(0, err)
	}
	return written(len(entities), nil)
}

func (s *baseServiceImpl[T]) AddBulk(ctx context.Context, entities []*T, opts repository.BulkOptions) types.Outcome[int] {
	return written(s.repo.AddBulk(ctx, entities, opts))
}

func (s *baseServiceImpl[T]) Upsert(ctx context.Context, fields []string, conflictKeys []string, entities ...*T) types.Outcome[int] {
	if err := s.repo.Upsert(ctx, fields, conflictKeys, entities...); err != nil {
		return types.FromError(0, err)
	}
	return written(len(entities), nil)
}

func (s *baseServiceImpl[T]) Delete(ctx context.Context, entity *T) types.Outcome[int] {
	return written(s.repo.Delete(ctx, entity))
}

func (s *baseServiceImpl[T]) DeleteByID(ctx context.Context, id any) types.Outcome[int] {
	return written(s.repo.DeleteByID(ctx, id))
}

func (s *baseServiceImpl[T]) DeleteByIDs(ctx context.Context, ids any) types.Outcome[int] {
	return written(s.repo.DeleteByIDs(ctx, ids))
}

func (s *baseServiceImpl[T]) DeleteWhere(ctx context.Context, p query.Predicate) types.Outcome[int] {
	return written(s.repo.DeleteWhere(ctx, p))
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, id any, opts ...repository.LookupOption) types.Outcome[*T] {
	return types.FromError(s.repo.GetByID(ctx, id, opts...))
}

func (s *baseServiceImpl[T]) GetMany(ctx context.Context, ids any) types.Outcome[[]*T] {
	return types.FromError(s.repo.GetByIDs(ctx, ids))
}

func (s *baseServiceImpl[T]) All(ctx context.Context) types.Outcome[[]*T] {
	return types.FromError(s.repo.All(ctx))
}

func (s *baseServiceImpl[T]) Find(ctx context.Context, opts ...repository.FindOption) types.Outcome[[]*T] {
	return types.FromError(s.repo.Find(ctx, opts...))
}

func (s *baseServiceImpl[T]) Page(ctx context.Context, req *types.PageRequest, opts ...repository.FindOption) types.Outcome[*types.PageResult[T]] {
	return types.FromError(s.repo.Page(ctx, req, opts...))
}

func (s *baseServiceImpl[T]) Count(ctx context.Context, p query.Predicate) types.Outcome[int] {
	return types.FromError(s.repo.Count(ctx, p))
}

func (s *baseServiceImpl[T]) Exists(ctx context.Context, p query.Predicate) types.Outcome[bool] {
	return types.FromError(s.repo.Exists(ctx, p))
}

func (s *baseServiceImpl[T]) Query(ctx context.Context, sql string, args ...interface{}) types.Outcome[[]*T] {
	return types.FromError(s.repo.QuerySQL(ctx, sql, args...))
}

func (s *baseServiceImpl[T]) QueryTable(ctx context.Context, sql string, args ...interface{}) types.Outcome[[]map[string]interface{}] {
	return types.FromError(s.repo.QueryTable(ctx, sql, args...))
}

func (s *baseServiceImpl[T]) Update(ctx context.Context, entity *T) types.Outcome[bool] {
	changed, err := s.repo.Update(ctx, entity)
	if err == nil && !changed {
		return types.Outcome[bool]{Status: types.StatusNo, Message: types.ErrNoChange.Error()}
	}
	return types.FromError(changed, err)
}

func (s *baseServiceImpl[T]) UpdateColumns(ctx context.Context, entity *T, columns []string, ignore bool) types.Outcome[int] {
	return written(s.repo.UpdateColumns(ctx, entity, columns, ignore))
}

func (s *baseServiceImpl[T]) UpdateWhere(ctx context.Context, entity *T, p query.Predicate, columns ...string) types.Outcome[int] {
	return written(s.repo.UpdateWhere(ctx, entity, p, columns...))
}

func (s *baseServiceImpl[T]) UpdatePartial(ctx context.Context, values map[string]interface{}) types.Outcome[int] {
	return written(s.repo.UpdatePartial(ctx, values))
}

func (s *baseServiceImpl[T]) UpdateByMutator(ctx context.Context, entity *T, fn func(*T)) types.Outcome[*T] {
	return types.FromError(entity, s.repo.UpdateByMutator(ctx, entity, fn))
}

func (s *baseServiceImpl[T]) UpdateBulk(ctx context.Context, entities []*T, opts repository.BulkOptions) types.Outcome[int] {
	return written(s.repo.UpdateBulk(ctx, entities, opts))
}

// FindAs runs repository.FindAs and reports an Outcome.
func FindAs[T, R any](ctx context.Context, svc Service[T], proj query.Projection, opts ...repository.FindOption) types.Outcome[[]*R] {
	return types.FromError(repository.FindAs[T, R](ctx, svc.Repository(), proj, opts...))
}

func PageAs[T, R any](ctx context.Context, svc Service[T], req *types.PageRequest, proj query.Projection, opts ...repository.FindOption) types.Outcome[*types.PageResult[R]] {
	return types.FromError(repository.PageAs[T, R](ctx, svc.Repository(), req, proj, opts...))
}

// Join runs repository.Join on session and reports an Outcome.
func Join[T1, T2, R any](ctx context.Context, session *database.Session, on repository.JoinSpec, proj query.Projection, opts ...repository.FindOption) types.Outcome[[]*R] {
	return types.FromError(repository.Join[T1, T2, R](ctx, session, on, proj, opts...))
}

func Join3[T1, T2, T3, R any](ctx context.Context, session *database.Session, on2, on3 repository.JoinSpec, proj query.Projection, opts ...repository.FindOption) types.Outcome[[]*R] {
	return types.FromError(repository.Join3[T1, T2, T3, R](ctx, session, on2, on3, proj, opts...))
}

func JoinPage[T1, T2, R any](ctx context.Context, session *database.Session, on repository.JoinSpec, proj query.Projection, req *types.PageRequest, opts ...repository.FindOption) types.Outcome[*types.PageResult[R]] {
	return types.FromError(repository.JoinPage[T1, T2, R](ctx, session, on, proj, req, opts...))
}

func Join3Page[T1, T2, T3, R any](ctx context.Context, session *database.Session, on2, on3 repository.JoinSpec, proj query.Projection, req *types.PageRequest, opts ...repository.FindOption) types.Outcome[*types.PageResult[R]] {
	return types.FromError(repository.Join3Page[T1, T2, T3, R](ctx, session, on2, on3, proj, req, opts...))
}

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

	"github.com/tomoncle/typedrepo/database"
	"github.com/tomoncle/typedrepo/query"
	"github.com/tomoncle/typedrepo/types"

	"github.com/uptrace/bun"
)

// Page returns one page of entities and the number of entities matching the
// filter. Count and rows are read in the same transaction. Without an
// explicit order rows are sorted by primary key.
func (r *baseRepositoryImpl[T]) Page(ctx context.Context, req *types.PageRequest, opts ...FindOption) (*types.PageResult[T], error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	o := collectFindOptions(opts)
	if len(o.group) > 0 {
		return nil, invalidArgument("grouping needs a projection, use PageAs")
	}
	if o.limit != 0 {
		return nil, invalidArgument("Top cannot be combined with a page request")
	}
	plan, err := query.Build(o.spec(nil), r.catalog)
	if err != nil {
		return nil, err
	}
	if len(plan.Order) == 0 {
		plan.Order = r.primaryKeyOrder()
	}

	page := types.NewPageResult[T](req)
	err = readTx(ctx, r.session, func(ctx context.Context, s *database.Session) error {
		total, err := plan.ApplyFilter(s.IDB().NewSelect().Model((*T)(nil))).Count(ctx)
		if err != nil {
			return storeError("page count", err)
		}
		page.TotalCount = total
		if req.Beyond(total) {
			return nil
		}

		items := make([]*T, 0, min(req.GetPageSize(), total-req.GetOffset()))
		q := plan.ApplyOrder(plan.ApplyFilter(s.IDB().NewSelect().Model(&items))).
			Offset(req.GetOffset()).
			Limit(req.GetPageSize())
		if err := q.Scan(ctx); err != nil {
			return storeError("page", err)
		}
		page.Items = items
		return nil
	})
	if err != nil {
		return nil, storeError("page", err)
	}
	return page, nil
}

// projectedQuery selects the projection of T with filter and grouping
// applied, but no order or limit.
func projectedQuery[T any](db bun.IDB, plan *query.Plan) *bun.SelectQuery {
	q := db.NewSelect().Model((*T)(nil))
	return plan.ApplyColumns(plan.ApplyGroup(plan.ApplyFilter(q)))
}

func buildProjection[T any](repo Repository[T], proj query.Projection, o *findOptions) (*query.Plan, error) {
	if len(proj) == 0 {
		return nil, fmt.Errorf("%w: projection is required", ErrConfiguration)
	}
	return query.Build(o.spec(proj), repo.Catalog())
}

// FindAs filters T, then projects every matching row (or group) into R.
// Columns of R are matched by the output names of the projection.
func FindAs[T, R any](ctx context.Context, repo Repository[T], proj query.Projection, opts ...FindOption) ([]*R, error) {
	plan, err := buildProjection(repo, proj, collectFindOptions(opts))
	if err != nil {
		return nil, err
	}
	items := make([]*R, 0)
	q := plan.ApplyOrder(projectedQuery[T](repo.Session().IDB(), plan))
	if plan.Limit > 0 {
		q = q.Limit(plan.Limit)
	}
	if err := q.Scan(ctx, &items); err != nil {
		return nil, storeError("find as", err)
	}
	return items, nil
}

// PageAs is FindAs with pagination. With grouping, the total counts groups.
func PageAs[T, R any](ctx context.Context, repo Repository[T], req *types.PageRequest, proj query.Projection, opts ...FindOption) (*types.PageResult[R], error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	o := collectFindOptions(opts)
	if o.limit != 0 {
		return nil, invalidArgument("Top cannot be combined with a page request")
	}
	plan, err := buildProjection(repo, proj, o)
	if err != nil {
		return nil, err
	}
	return pageDerived[R](ctx, repo.Session(), req, func(db bun.IDB) (*bun.SelectQuery, *bun.SelectQuery) {
		return projectedQuery[T](db, plan), plan.ApplyOrder(projectedQuery[T](db, plan))
	})
}

// pageDerived counts the rows of a derived table and fetches one page of
// it. build returns the unordered query to count and the ordered query to
// page through.
func pageDerived[R any](
	ctx context.Context,
	session *database.Session,
	req *types.PageRequest,
	build func(db bun.IDB) (count *bun.SelectQuery, rows *bun.SelectQuery),
) (*types.PageResult[R], error) {
	page := types.NewPageResult[R](req)
	err := readTx(ctx, session, func(ctx context.Context, s *database.Session) error {
		countQuery, rowsQuery := build(s.IDB())
		var total int
		err := s.IDB().NewSelect().
			TableExpr("(?) AS ?", countQuery, bun.Ident("r")).
			ColumnExpr("COUNT(*)").
			Scan(ctx, &total)
		if err != nil {
			return storeError("page count", err)
		}
		page.TotalCount = total
		if req.Beyond(total) {
			return nil
		}

		items := make([]*R, 0, min(req.GetPageSize(), total-req.GetOffset()))
		err = rowsQuery.Offset(req.GetOffset()).Limit(req.GetPageSize()).Scan(ctx, &items)
		if err != nil {
			return storeError("page", err)
		}
		page.Items = items
		return nil
	})
	if err != nil {
		return nil, storeError("page", err)
	}
	return page, nil
}

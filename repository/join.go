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

	"github.com/tomoncle/typedrepo/database"
	"github.com/tomoncle/typedrepo/query"
	"github.com/tomoncle/typedrepo/types"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

type JoinKind int

const (
	InnerJoin JoinKind = iota
	LeftJoin
)

func (k JoinKind) String() string {
	if k == LeftJoin {
		return "LEFT JOIN"
	}
	return "JOIN"
}

// Default aliases of the joined types, in type parameter order.
const (
	AliasFirst  = "t1"
	AliasSecond = "t2"
	AliasThird  = "t3"
)

// JoinSpec attaches one more type to a join. On is required and may refer
// to every alias joined so far, e.g.
//
//	query.Eq("t2.order_id", query.Ref("t1.id"))
type JoinSpec struct {
	Kind  JoinKind
	Alias string
	On    query.Predicate
}

// On returns an inner JoinSpec.
func On(p query.Predicate) JoinSpec { return JoinSpec{Kind: InnerJoin, On: p} }

func LeftOn(p query.Predicate) JoinSpec { return JoinSpec{Kind: LeftJoin, On: p} }

// As renames the joined type's alias.
func (j JoinSpec) As(alias string) JoinSpec {
	j.Alias = alias
	return j
}

type joinSource struct {
	typ   reflect.Type
	alias string
	spec  JoinSpec
}

func sourceOf[T any](alias string, spec JoinSpec) joinSource {
	if spec.Alias != "" {
		alias = spec.Alias
	}
	return joinSource{typ: reflect.TypeOf((*T)(nil)).Elem(), alias: alias, spec: spec}
}

// joinPlan is a join resolved against the catalogs of its sources (inner
// part) and of the result type (outer part).
type joinPlan struct {
	sources  []joinSource
	catalogs []*query.FieldCatalog
	ons      []query.Filter
	inner    *query.Plan
	outer    *query.Plan
}

func buildJoin[R any](d schema.Dialect, proj query.Projection, opts []FindOption, sources ...joinSource) (*joinPlan, error) {
	if len(proj) == 0 {
		return nil, fmt.Errorf("%w: join projection is required", ErrConfiguration)
	}
	scope := query.NewJoinScope()
	jp := &joinPlan{sources: sources}
	for _, src := range sources {
		c, err := query.NewFieldCatalog(d, src.typ)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		if err := scope.Add(src.alias, c); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		jp.catalogs = append(jp.catalogs, c)
	}
	for _, src := range sources[1:] {
		if src.spec.On == nil {
			return nil, fmt.Errorf("%w: join of %s needs a condition", ErrConfiguration, src.alias)
		}
		on, err := query.Translate(src.spec.On, scope)
		if err != nil {
			return nil, err
		}
		jp.ons = append(jp.ons, on)
	}

	o := collectFindOptions(opts)
	inner, err := query.Build(query.Spec{Projection: proj, Group: o.group}, scope)
	if err != nil {
		return nil, err
	}
	result, err := query.CatalogOf[R](d)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	outer, err := query.Build(query.Spec{Where: o.filter(), Order: o.order, Limit: o.limit}, result)
	if err != nil {
		return nil, err
	}
	jp.inner, jp.outer = inner, outer
	return jp, nil
}

// projected renders join -> group -> project.
func (jp *joinPlan) projected(db bun.IDB) *bun.SelectQuery {
	q := db.NewSelect().TableExpr("? AS ?", jp.catalogs[0].SQLName(), bun.Ident(jp.sources[0].alias))
	for i, src := range jp.sources[1:] {
		q = q.Join(src.spec.Kind.String()+" ? AS ?", jp.catalogs[i+1].SQLName(), bun.Ident(src.alias)).
			JoinOn(jp.ons[i].Clause, jp.ons[i].Args...)
	}
	return jp.inner.ApplyColumns(jp.inner.ApplyGroup(q))
}

// derived wraps the projection so the filter only sees projected columns.
func (jp *joinPlan) derived(db bun.IDB) *bun.SelectQuery {
	q := db.NewSelect().TableExpr("(?) AS ?", jp.projected(db), bun.Ident("r"))
	return jp.outer.ApplyFilter(q)
}

func (jp *joinPlan) find(ctx context.Context, db bun.IDB, dest interface{}) error {
	q := jp.outer.ApplyOrder(jp.derived(db))
	if jp.outer.Limit > 0 {
		q = q.Limit(jp.outer.Limit)
	}
	if err := q.Scan(ctx, dest); err != nil {
		return storeError("join", err)
	}
	return nil
}

func (jp *joinPlan) page(db bun.IDB) (*bun.SelectQuery, *bun.SelectQuery) {
	return jp.derived(db), jp.outer.ApplyOrder(jp.derived(db))
}

// Join joins T1 (alias t1) with T2 (alias t2), projects every joined row,
// or group when GroupBy is given, into R and applies the filter and order of
// opts to R's fields.
func Join[T1, T2, R any](ctx context.Context, s *database.Session, on JoinSpec, proj query.Projection, opts ...FindOption) ([]*R, error) {
	jp, err := buildJoin[R](s.Dialect(), proj, opts,
		sourceOf[T1](AliasFirst, JoinSpec{}), sourceOf[T2](AliasSecond, on))
	if err != nil {
		return nil, err
	}
	items := make([]*R, 0)
	if err := jp.find(ctx, s.IDB(), &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Join3 is Join over three types; T3 is aliased t3.
func Join3[T1, T2, T3, R any](ctx context.Context, s *database.Session, on2, on3 JoinSpec, proj query.Projection, opts ...FindOption) ([]*R, error) {
	jp, err := buildJoin[R](s.Dialect(), proj, opts,
		sourceOf[T1](AliasFirst, JoinSpec{}), sourceOf[T2](AliasSecond, on2), sourceOf[T3](AliasThird, on3))
	if err != nil {
		return nil, err
	}
	items := make([]*R, 0)
	if err := jp.find(ctx, s.IDB(), &items); err != nil {
		return nil, err
	}
	return items, nil
}

// JoinPage pages through the result of Join. With grouping, pages and the
// total count are in groups.
func JoinPage[T1, T2, R any](ctx context.Context, s *database.Session, on JoinSpec, proj query.Projection, req *types.PageRequest, opts ...FindOption) (*types.PageResult[R], error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if collectFindOptions(opts).limit != 0 {
		return nil, invalidArgument("Top cannot be combined with a page request")
	}
	jp, err := buildJoin[R](s.Dialect(), proj, opts,
		sourceOf[T1](AliasFirst, JoinSpec{}), sourceOf[T2](AliasSecond, on))
	if err != nil {
		return nil, err
	}
	return pageDerived[R](ctx, s, req, jp.page)
}

func Join3Page[T1, T2, T3, R any](ctx context.Context, s *database.Session, on2, on3 JoinSpec, proj query.Projection, req *types.PageRequest, opts ...FindOption) (*types.PageResult[R], error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if collectFindOptions(opts).limit != 0 {
		return nil, invalidArgument("Top cannot be combined with a page request")
	}
	jp, err := buildJoin[R](s.Dialect(), proj, opts,
		sourceOf[T1](AliasFirst, JoinSpec{}), sourceOf[T2](AliasSecond, on2), sourceOf[T3](AliasThird, on3))
	if err != nil {
		return nil, err
	}
	return pageDerived[R](ctx, s, req, jp.page)
}

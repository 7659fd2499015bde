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

package query

import (
	"fmt"

	"github.com/uptrace/bun"
)

// Spec describes a query in caller terms: field names, predicates and sort
// keys that have not been checked against a model yet.
type Spec struct {
	Where      Predicate
	Order      OrderSpec
	Projection Projection
	Group      []string
	Limit      int
}

// Plan is a Spec resolved against a model. Building a plan never touches the
// store; all unknown names are reported here.
type Plan struct {
	Filter  Filter
	Order   []Expr
	Columns []Expr
	Group   []Expr
	Limit   int
}

// Build resolves spec against r.
func Build(spec Spec, r Resolver) (*Plan, error) {
	if spec.Limit < 0 {
		return nil, fmt.Errorf("%w: negative limit %d", ErrUnsupportedPredicate, spec.Limit)
	}
	filter, err := Translate(spec.Where, r)
	if err != nil {
		return nil, err
	}
	order, err := ResolveOrder(spec.Order, r)
	if err != nil {
		return nil, err
	}
	columns, err := ResolveProjection(spec.Projection, r)
	if err != nil {
		return nil, err
	}
	group, err := ResolveGroup(spec.Group, r)
	if err != nil {
		return nil, err
	}
	return &Plan{
		Filter:  filter,
		Order:   order,
		Columns: columns,
		Group:   group,
		Limit:   spec.Limit,
	}, nil
}

// Apply adds every part of the plan to q.
func (p *Plan) Apply(q *bun.SelectQuery) *bun.SelectQuery {
	q = p.ApplyFilter(q)
	q = p.ApplyGroup(q)
	q = p.ApplyColumns(q)
	q = p.ApplyOrder(q)
	if p.Limit > 0 {
		q = q.Limit(p.Limit)
	}
	return q
}

func (p *Plan) ApplyFilter(q *bun.SelectQuery) *bun.SelectQuery {
	return p.Filter.ApplySelect(q)
}

func (p *Plan) ApplyGroup(q *bun.SelectQuery) *bun.SelectQuery {
	for _, g := range p.Group {
		q = q.GroupExpr(g.Query, g.Args...)
	}
	return q
}

func (p *Plan) ApplyColumns(q *bun.SelectQuery) *bun.SelectQuery {
	for _, c := range p.Columns {
		q = q.ColumnExpr(c.Query, c.Args...)
	}
	return q
}

func (p *Plan) ApplyOrder(q *bun.SelectQuery) *bun.SelectQuery {
	for _, o := range p.Order {
		q = q.OrderExpr(o.Query, o.Args...)
	}
	return q
}

// HasProjection reports whether the plan narrows the selected columns.
func (p *Plan) HasProjection() bool { return len(p.Columns) > 0 }

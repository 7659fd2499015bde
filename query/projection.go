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
	"strings"

	"github.com/uptrace/bun"
)

// Column is one output column of a projection.
type Column struct {
	field    string
	fn       string
	star     bool
	distinct bool
	raw      string
	args     []interface{}
	alias    string
}

// Field selects a field. The output column is named after the field unless
// As is used.
func Field(ref string) Column { return Column{field: ref} }

func Count(ref string) Column { return Column{field: ref, fn: "COUNT"} }

func CountDistinct(ref string) Column { return Column{field: ref, fn: "COUNT", distinct: true} }

// CountAll counts rows, or rows per group when grouping.
func CountAll() Column { return Column{fn: "COUNT", star: true} }

func Sum(ref string) Column { return Column{field: ref, fn: "SUM"} }
func Avg(ref string) Column { return Column{field: ref, fn: "AVG"} }
func Min(ref string) Column { return Column{field: ref, fn: "MIN"} }
func Max(ref string) Column { return Column{field: ref, fn: "MAX"} }

// Expression selects a raw store expression; it must be named with As.
func Expression(raw string, args ...interface{}) Column {
	return Column{raw: raw, args: args}
}

// As names the output column.
func (c Column) As(alias string) Column {
	c.alias = alias
	return c
}

func (c Column) IsAggregate() bool { return c.fn != "" }

// Projection reshapes rows into a result type. A nil Projection selects the
// full model.
type Projection []Column

func Select(cols ...Column) Projection { return Projection(cols) }

// HasAggregate reports whether any column aggregates.
func (p Projection) HasAggregate() bool {
	for _, c := range p {
		if c.IsAggregate() {
			return true
		}
	}
	return false
}

// ResolveProjection renders every column against r.
func ResolveProjection(p Projection, r Resolver) ([]Expr, error) {
	exprs := make([]Expr, 0, len(p))
	for i, c := range p {
		e, err := c.resolve(r)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		exprs = append(exprs, e)
	}
	return exprs, nil
}

func (c Column) resolve(r Resolver) (Expr, error) {
	if c.raw != "" {
		if c.alias == "" {
			return Expr{}, fmt.Errorf("%w: expression %q needs an alias", ErrUnsupportedProjection, c.raw)
		}
		args := append(append([]interface{}{}, c.args...), bun.Ident(c.alias))
		return Expr{Query: "(" + c.raw + ") AS ?", Args: args}, nil
	}
	if c.star {
		if c.alias == "" {
			return Expr{}, fmt.Errorf("%w: COUNT(*) needs an alias", ErrUnsupportedProjection)
		}
		return Expr{Query: "COUNT(*) AS ?", Args: []interface{}{bun.Ident(c.alias)}}, nil
	}
	if c.field == "" {
		return Expr{}, fmt.Errorf("%w: empty column", ErrUnsupportedProjection)
	}
	col, err := r.ResolveColumn(c.field)
	if err != nil {
		return Expr{}, fmt.Errorf("%w: %w", ErrUnsupportedProjection, err)
	}
	alias := c.alias
	if alias == "" {
		if c.IsAggregate() {
			return Expr{}, fmt.Errorf("%w: %s(%s) needs an alias", ErrUnsupportedProjection, c.fn, c.field)
		}
		alias = col[strings.LastIndex(col, ".")+1:]
	}
	switch {
	case c.fn == "":
		return Expr{Query: "? AS ?", Args: []interface{}{bun.Ident(col), bun.Ident(alias)}}, nil
	case c.distinct:
		return Expr{Query: c.fn + "(DISTINCT ?) AS ?", Args: []interface{}{bun.Ident(col), bun.Ident(alias)}}, nil
	default:
		return Expr{Query: c.fn + "(?) AS ?", Args: []interface{}{bun.Ident(col), bun.Ident(alias)}}, nil
	}
}

// ResolveGroup renders GROUP BY keys against r.
func ResolveGroup(fields []string, r Resolver) ([]Expr, error) {
	exprs := make([]Expr, 0, len(fields))
	for _, f := range fields {
		col, err := r.ResolveColumn(f)
		if err != nil {
			return nil, fmt.Errorf("%w: group by: %w", ErrUnsupportedProjection, err)
		}
		exprs = append(exprs, Expr{Query: "?", Args: []interface{}{bun.Ident(col)}})
	}
	return exprs, nil
}

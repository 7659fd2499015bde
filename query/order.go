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

	"github.com/tomoncle/typedrepo/utils"
	"github.com/uptrace/bun"
)

var logger = utils.NewLogger("QUERY")

// OrderTerm is one sort key. Raw terms carry a store-specific expression.
type OrderTerm struct {
	Field string
	Desc  bool
	raw   string
	args  []interface{}
}

func Asc(field string) OrderTerm { return OrderTerm{Field: field} }

func Desc(field string) OrderTerm { return OrderTerm{Field: field, Desc: true} }

// OrderRaw is passed to the store verbatim, e.g. "lower(name) DESC".
func OrderRaw(expr string, args ...interface{}) OrderTerm {
	return OrderTerm{raw: expr, args: args}
}

func (t OrderTerm) IsRaw() bool { return t.raw != "" }

// OrderSpec is a list of sort keys; earlier terms take precedence.
type OrderSpec []OrderTerm

func OrderBy(terms ...OrderTerm) OrderSpec { return OrderSpec(terms) }

// ParseOrder reads specs like "status asc, created_at desc". The direction
// defaults to ascending.
func ParseOrder(s string) (OrderSpec, error) {
	spec := make(OrderSpec, 0)
	if strings.TrimSpace(s) == "" {
		return spec, nil
	}
	for _, part := range strings.Split(s, ",") {
		words := strings.Fields(part)
		switch len(words) {
		case 1:
			spec = append(spec, Asc(words[0]))
		case 2:
			switch strings.ToLower(words[1]) {
			case "asc":
				spec = append(spec, Asc(words[0]))
			case "desc":
				spec = append(spec, Desc(words[0]))
			default:
				return nil, fmt.Errorf("%w: direction %q", ErrUnsupportedOrder, words[1])
			}
		default:
			return nil, fmt.Errorf("%w: cannot parse %q", ErrUnsupportedOrder, strings.TrimSpace(part))
		}
	}
	return spec, nil
}

// Expr is a query fragment with ? placeholders.
type Expr struct {
	Query string
	Args  []interface{}
}

// ResolveOrder maps every term to an ORDER BY expression. When the same
// column appears more than once the last direction wins and the term keeps
// the position of its first appearance.
func ResolveOrder(spec OrderSpec, r Resolver) ([]Expr, error) {
	exprs := make([]Expr, 0, len(spec))
	seen := make(map[string]int, len(spec))
	for _, term := range spec {
		if term.IsRaw() {
			exprs = append(exprs, Expr{Query: term.raw, Args: term.args})
			continue
		}
		col, err := r.ResolveColumn(term.Field)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnsupportedOrder, err)
		}
		e := Expr{Query: "? ASC", Args: []interface{}{bun.Ident(col)}}
		if term.Desc {
			e.Query = "? DESC"
		}
		if i, dup := seen[col]; dup {
			if exprs[i].Query != e.Query {
				logger.Warnf("conflicting order directions for %q, using %s", col, strings.TrimPrefix(e.Query, "? "))
			}
			exprs[i] = e
			continue
		}
		seen[col] = len(exprs)
		exprs = append(exprs, e)
	}
	return exprs, nil
}

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
	"reflect"
	"strings"

	"github.com/uptrace/bun"
)

// Filter is a store-executable WHERE clause with ? placeholders.
type Filter struct {
	Clause string
	Args   []interface{}
}

// IsEmpty reports whether the filter matches every row.
func (f Filter) IsEmpty() bool { return f.Clause == "" }

// ApplySelect adds the filter to q.
func (f Filter) ApplySelect(q *bun.SelectQuery) *bun.SelectQuery {
	if f.IsEmpty() {
		return q
	}
	return q.Where(f.Clause, f.Args...)
}

func (f Filter) ApplyUpdate(q *bun.UpdateQuery) *bun.UpdateQuery {
	if f.IsEmpty() {
		return q
	}
	return q.Where(f.Clause, f.Args...)
}

func (f Filter) ApplyDelete(q *bun.DeleteQuery) *bun.DeleteQuery {
	if f.IsEmpty() {
		return q
	}
	return q.Where(f.Clause, f.Args...)
}

// Translate walks p once and renders it against r. A nil predicate yields an
// empty Filter.
func Translate(p Predicate, r Resolver) (Filter, error) {
	if p == nil {
		return Filter{}, nil
	}
	t := &translator{resolver: r}
	if err := t.walk(p); err != nil {
		return Filter{}, err
	}
	return Filter{Clause: t.sb.String(), Args: t.args}, nil
}

type translator struct {
	resolver Resolver
	sb       strings.Builder
	args     []interface{}
}

func (t *translator) column(field string) error {
	col, err := t.resolver.ResolveColumn(field)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupportedPredicate, err)
	}
	t.sb.WriteByte('?')
	t.args = append(t.args, bun.Ident(col))
	return nil
}

func (t *translator) value(v interface{}) error {
	if ref, ok := v.(FieldRef); ok {
		return t.column(string(ref))
	}
	t.sb.WriteByte('?')
	t.args = append(t.args, v)
	return nil
}

func (t *translator) walk(p Predicate) error {
	switch p := p.(type) {
	case Comparison:
		return t.comparison(p)
	case Membership:
		return t.membership(p)
	case Nullness:
		if err := t.column(p.Field); err != nil {
			return err
		}
		if p.Negate {
			t.sb.WriteString(" IS NOT NULL")
		} else {
			t.sb.WriteString(" IS NULL")
		}
		return nil
	case Range:
		if err := t.column(p.Field); err != nil {
			return err
		}
		t.sb.WriteString(" BETWEEN ")
		if err := t.value(p.Low); err != nil {
			return err
		}
		t.sb.WriteString(" AND ")
		return t.value(p.High)
	case Conjunction:
		return t.group([]Predicate(p), " AND ", "1 = 1")
	case Disjunction:
		return t.group([]Predicate(p), " OR ", "1 = 0")
	case Negation:
		if p.Inner == nil {
			return fmt.Errorf("%w: NOT without operand", ErrUnsupportedPredicate)
		}
		t.sb.WriteString("NOT (")
		if err := t.walk(p.Inner); err != nil {
			return err
		}
		t.sb.WriteByte(')')
		return nil
	case RawFilter:
		if strings.TrimSpace(p.Clause) == "" {
			return fmt.Errorf("%w: empty raw clause", ErrUnsupportedPredicate)
		}
		t.sb.WriteByte('(')
		t.sb.WriteString(p.Clause)
		t.sb.WriteByte(')')
		t.args = append(t.args, p.Args...)
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedPredicate, p)
	}
}

func (t *translator) comparison(c Comparison) error {
	switch c.Op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpLike, OpNotLike:
	default:
		return fmt.Errorf("%w: operator %q", ErrUnsupportedPredicate, c.Op)
	}
	if c.Value == nil {
		switch c.Op {
		case OpEq:
			return t.walk(Nullness{Field: c.Field})
		case OpNe:
			return t.walk(Nullness{Field: c.Field, Negate: true})
		default:
			return fmt.Errorf("%w: %s against NULL on %q", ErrUnsupportedPredicate, c.Op, c.Field)
		}
	}
	if err := t.column(c.Field); err != nil {
		return err
	}
	t.sb.WriteByte(' ')
	t.sb.WriteString(string(c.Op))
	t.sb.WriteByte(' ')
	return t.value(c.Value)
}

func (t *translator) membership(m Membership) error {
	rv := reflect.ValueOf(m.Values)
	if rv.Kind() != reflect.Slice {
		return fmt.Errorf("%w: IN on %q needs a slice, got %T", ErrUnsupportedPredicate, m.Field, m.Values)
	}
	if rv.Len() == 0 {
		if m.Negate {
			t.sb.WriteString("1 = 1")
		} else {
			t.sb.WriteString("1 = 0")
		}
		return nil
	}
	if err := t.column(m.Field); err != nil {
		return err
	}
	if m.Negate {
		t.sb.WriteString(" NOT IN (?)")
	} else {
		t.sb.WriteString(" IN (?)")
	}
	t.args = append(t.args, bun.In(m.Values))
	return nil
}

func (t *translator) group(children []Predicate, sep string, empty string) error {
	kept := compact(children)
	if len(kept) == 0 {
		t.sb.WriteString(empty)
		return nil
	}
	t.sb.WriteByte('(')
	for i, child := range kept {
		if i > 0 {
			t.sb.WriteString(sep)
		}
		if err := t.walk(child); err != nil {
			return err
		}
	}
	t.sb.WriteByte(')')
	return nil
}

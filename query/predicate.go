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

// Predicate is a boolean condition over model fields. The set of variants is
// closed; build values with the constructors in this file.
type Predicate interface {
	isPredicate()
}

// Op is a binary comparison operator.
type Op string

const (
	OpEq      Op = "="
	OpNe      Op = "<>"
	OpGt      Op = ">"
	OpGte     Op = ">="
	OpLt      Op = "<"
	OpLte     Op = "<="
	OpLike    Op = "LIKE"
	OpNotLike Op = "NOT LIKE"
)

// FieldRef used as a comparison value compares two fields instead of a field
// and a literal. It is how join conditions are written.
type FieldRef string

// Ref returns a reference to another field.
func Ref(field string) FieldRef { return FieldRef(field) }

// Comparison compares a field with a value or another field.
type Comparison struct {
	Field string
	Op    Op
	Value interface{}
}

// Membership tests a field against a list of values. Values must be a slice.
type Membership struct {
	Field  string
	Values interface{}
	Negate bool
}

// Nullness tests a field for NULL.
type Nullness struct {
	Field  string
	Negate bool
}

// Range tests Low <= field <= High.
type Range struct {
	Field     string
	Low, High interface{}
}

// Conjunction holds when every child holds. An empty conjunction is true.
type Conjunction []Predicate

// Disjunction holds when any child holds. An empty disjunction is false.
type Disjunction []Predicate

// Negation inverts its child.
type Negation struct {
	Inner Predicate
}

// RawFilter is passed to the store verbatim. The caller owns its safety.
type RawFilter struct {
	Clause string
	Args   []interface{}
}

func (Comparison) isPredicate()  {}
func (Membership) isPredicate()  {}
func (Nullness) isPredicate()    {}
func (Range) isPredicate()       {}
func (Conjunction) isPredicate() {}
func (Disjunction) isPredicate() {}
func (Negation) isPredicate()    {}
func (RawFilter) isPredicate()   {}

func Eq(field string, value interface{}) Predicate  { return Comparison{field, OpEq, value} }
func Ne(field string, value interface{}) Predicate  { return Comparison{field, OpNe, value} }
func Gt(field string, value interface{}) Predicate  { return Comparison{field, OpGt, value} }
func Gte(field string, value interface{}) Predicate { return Comparison{field, OpGte, value} }
func Lt(field string, value interface{}) Predicate  { return Comparison{field, OpLt, value} }
func Lte(field string, value interface{}) Predicate { return Comparison{field, OpLte, value} }

// Like matches a field against a pattern using the store's LIKE semantics.
func Like(field string, pattern string) Predicate { return Comparison{field, OpLike, pattern} }

func NotLike(field string, pattern string) Predicate { return Comparison{field, OpNotLike, pattern} }

// In matches rows whose field equals one of values. values must be a slice;
// an empty slice matches nothing.
func In(field string, values interface{}) Predicate { return Membership{Field: field, Values: values} }

// NotIn is the negation of In; an empty list matches everything.
func NotIn(field string, values interface{}) Predicate {
	return Membership{Field: field, Values: values, Negate: true}
}

func IsNull(field string) Predicate  { return Nullness{Field: field} }
func NotNull(field string) Predicate { return Nullness{Field: field, Negate: true} }

func Between(field string, low, high interface{}) Predicate {
	return Range{Field: field, Low: low, High: high}
}

// And combines predicates with AND. Nil children are dropped; when nothing
// remains the result is nil, which callers treat as "no filter".
func And(ps ...Predicate) Predicate {
	kept := compact(ps)
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return Conjunction(kept)
}

// Or combines predicates with OR. Nil children are dropped the same way as
// in And.
func Or(ps ...Predicate) Predicate {
	kept := compact(ps)
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return Disjunction(kept)
}

// Not negates p. Not(nil) is nil.
func Not(p Predicate) Predicate {
	if p == nil {
		return nil
	}
	return Negation{Inner: p}
}

// Raw wraps a store-specific clause with ? placeholders.
func Raw(clause string, args ...interface{}) Predicate {
	return RawFilter{Clause: clause, Args: args}
}

// If returns p when cond holds and nil otherwise, so optional filters can be
// chained through And without branching at the call site.
func If(cond bool, p Predicate) Predicate {
	if !cond {
		return nil
	}
	return p
}

// IfNotZero returns build(value) unless value is the zero value of its type.
func IfNotZero[V comparable](value V, build func(V) Predicate) Predicate {
	var zero V
	if value == zero {
		return nil
	}
	return build(value)
}

func compact(ps []Predicate) []Predicate {
	kept := make([]Predicate, 0, len(ps))
	for _, p := range ps {
		if p != nil {
			kept = append(kept, p)
		}
	}
	return kept
}

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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

func TestTranslateNilMatchesAll(t *testing.T) {
	f, err := Translate(nil, newCatalog(t, sqlitedialect.New()))
	require.NoError(t, err)
	assert.True(t, f.IsEmpty())
	assert.Empty(t, f.Args)
}

func TestTranslateComparisons(t *testing.T) {
	cases := []struct {
		name string
		p    Predicate
		want string
	}{
		{"eq", Eq("status", "open"), `"status" = 'open'`},
		{"go name", Eq("Status", "open"), `"status" = 'open'`},
		{"go name lower", Gte("customer", 3), `"customer_id" >= 3`},
		{"qualified", Lt("o.amount", 10), `"amount" < 10`},
		{"ne", Ne("status", "closed"), `"status" <> 'closed'`},
		{"like", Like("status", "op%"), `"status" LIKE 'op%'`},
		{"eq nil", Eq("status", nil), `"status" IS NULL`},
		{"ne nil", Ne("status", nil), `"status" IS NOT NULL`},
		{"not null", NotNull("status"), `"status" IS NOT NULL`},
		{"between", Between("amount", 1, 5), `"amount" BETWEEN 1 AND 5`},
		{"in", In("id", []int64{1, 2, 3}), `"id" IN (1, 2, 3)`},
		{"not in", NotIn("status", []string{"a"}), `"status" NOT IN ('a')`},
		{"empty in", In("id", []int64{}), `1 = 0`},
		{"empty not in", NotIn("id", []int64{}), `1 = 1`},
		{"field ref", Gt("amount", Ref("customer_id")), `"amount" > "customer_id"`},
		{"raw", Raw("amount > ? OR amount < ?", 100, 1), `(amount > 100 OR amount < 1)`},
		{"not", Not(Eq("status", "open")), `NOT ("status" = 'open')`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, renderFilter(t, tc.p))
		})
	}
}

func TestTranslateComposition(t *testing.T) {
	p := And(
		Eq("status", "open"),
		Or(Gt("amount", 10), IsNull("customer_id")),
	)
	assert.Equal(t, `("status" = 'open' AND ("amount" > 10 OR "customer_id" IS NULL))`, renderFilter(t, p))

	assert.Equal(t, `1 = 1`, renderFilter(t, Conjunction{}))
	assert.Equal(t, `1 = 0`, renderFilter(t, Disjunction{}))
}

func TestOptionalPredicates(t *testing.T) {
	assert.Nil(t, And())
	assert.Nil(t, And(nil, If(false, Eq("status", "x"))))
	assert.Nil(t, Or(nil))
	assert.Nil(t, Not(nil))

	single := And(nil, Eq("status", "open"), If(false, Gt("amount", 1)))
	assert.Equal(t, Eq("status", "open"), single)

	var status string
	assert.Nil(t, IfNotZero(status, func(v string) Predicate { return Eq("status", v) }))
	status = "open"
	assert.Equal(t, `"status" = 'open'`, renderFilter(t, IfNotZero(status, func(v string) Predicate { return Eq("status", v) })))
}

func TestTranslateErrors(t *testing.T) {
	c := newCatalog(t, sqlitedialect.New())

	_, err := Translate(Eq("missing", 1), c)
	assert.ErrorIs(t, err, ErrUnsupportedPredicate)
	assert.ErrorIs(t, err, ErrUnknownField)

	_, err = Translate(Comparison{Field: "status", Op: "~"}, c)
	assert.ErrorIs(t, err, ErrUnsupportedPredicate)

	_, err = Translate(In("id", 5), c)
	assert.ErrorIs(t, err, ErrUnsupportedPredicate)

	_, err = Translate(Gt("amount", nil), c)
	assert.ErrorIs(t, err, ErrUnsupportedPredicate)

	_, err = Translate(Raw("  "), c)
	assert.ErrorIs(t, err, ErrUnsupportedPredicate)

	_, err = Translate(And(Eq("status", "x"), Eq("customers.name", "y")), c)
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestTranslateJoinScope(t *testing.T) {
	d := sqlitedialect.New()
	orders, err := CatalogOf[order](d)
	require.NoError(t, err)
	customers, err := CatalogOf[customer](d)
	require.NoError(t, err)

	scope := NewJoinScope()
	require.NoError(t, scope.Add("t1", orders))
	require.NoError(t, scope.Add("t2", customers))
	assert.Error(t, scope.Add("t1", customers))

	f, err := Translate(And(Eq("t1.customer_id", Ref("t2.id")), Eq("name", "ann")), scope)
	require.NoError(t, err)
	assert.Equal(t, `("t1"."customer_id" = "t2"."id" AND "t2"."name" = 'ann')`, render(d, f.Clause, f.Args))

	_, err = Translate(Eq("id", 1), scope)
	assert.ErrorIs(t, err, ErrUnknownField)

	_, err = Translate(Eq("t9.id", 1), scope)
	assert.ErrorIs(t, err, ErrUnknownField)
}

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

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

type order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID       int64   `bun:"id,pk,autoincrement"`
	Amount   float64 `bun:"amount"`
	Status   string  `bun:"status"`
	Customer int64   `bun:"customer_id"`
}

type customer struct {
	bun.BaseModel `bun:"table:customers,alias:c"`

	ID   int64  `bun:"id,pk"`
	Name string `bun:"name"`
}

type keyless struct {
	Name string `bun:"name"`
}

func newCatalog(t *testing.T, d schema.Dialect) *FieldCatalog {
	t.Helper()
	c, err := EntityCatalogOf[order](d)
	require.NoError(t, err)
	return c
}

func render(d schema.Dialect, query string, args []interface{}) string {
	return schema.NewFormatter(d).FormatQuery(query, args...)
}

func renderFilter(t *testing.T, p Predicate) string {
	t.Helper()
	d := sqlitedialect.New()
	f, err := Translate(p, newCatalog(t, d))
	require.NoError(t, err)
	return render(d, f.Clause, f.Args)
}

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
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

func TestCatalogRequiresStructWithKey(t *testing.T) {
	d := sqlitedialect.New()

	_, err := EntityCatalogOf[keyless](d)
	assert.ErrorIs(t, err, ErrInvalidModel)

	_, err = CatalogOf[int](d)
	assert.ErrorIs(t, err, ErrInvalidModel)

	_, err = NewFieldCatalog(nil, reflect.TypeOf(order{}))
	assert.ErrorIs(t, err, ErrInvalidModel)

	c, err := CatalogOf[keyless](d)
	require.NoError(t, err)
	assert.Empty(t, c.PrimaryKeys())
}

func TestCatalogLookup(t *testing.T) {
	c := newCatalog(t, sqlitedialect.New())

	assert.Equal(t, "orders", c.Name())
	assert.Equal(t, []string{"id", "amount", "status", "customer_id"}, c.Columns())
	require.Len(t, c.PrimaryKeys(), 1)

	for _, name := range []string{"customer_id", "Customer", "customer", "o.customer_id", "orders.Customer"} {
		col, err := c.ResolveColumn(name)
		require.NoError(t, err, name)
		assert.Equal(t, "customer_id", col, name)
	}
	_, err := c.ResolveColumn("x.customer_id")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestCatalogValues(t *testing.T) {
	c := newCatalog(t, sqlitedialect.New())
	o := &order{ID: 7, Amount: 10, Status: "open"}

	pk, err := c.PrimaryKeyValues(o)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(7)}, pk)

	zero, err := c.HasZeroPrimaryKey(&order{})
	require.NoError(t, err)
	assert.True(t, zero)

	before, err := c.Snapshot(o)
	require.NoError(t, err)
	assert.Equal(t, "'open'", before["status"])
	assert.NotContains(t, before, "id")
	o.Status = "closed"
	o.Amount = 10
	changed, err := c.Changed(before, o)
	require.NoError(t, err)
	assert.Equal(t, []string{"status"}, changed)

	_, err = c.PrimaryKeyValues(order{})
	assert.ErrorIs(t, err, ErrInvalidModel)
	_, err = c.Snapshot(&customer{})
	assert.ErrorIs(t, err, ErrInvalidModel)
}

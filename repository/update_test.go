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
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomoncle/typedrepo/query"
)

func addOrder(t *testing.T, repo Repository[order]) *order {
	t.Helper()
	o := &order{CustomerID: 1, Status: "open", Amount: decimal.RequireFromString("12.5"), Note: "n"}
	require.NoError(t, repo.Add(context.Background(), o))
	return o
}

func TestUpdateReportsChangeOnce(t *testing.T) {
	s := openSession(t, nil)
	repo := newOrderRepo(t, s)
	ctx := context.Background()
	o := addOrder(t, repo)

	o.Status = "closed"
	changed, err := repo.Update(ctx, o)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.Update(ctx, o)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "closed", got.Status)
}

func TestUpdateComparesStoredRepresentation(t *testing.T) {
	s := openSession(t, nil)
	repo := newOrderRepo(t, s)
	ctx := context.Background()
	o := addOrder(t, repo)

	// 12.50 is written as 12.5, the value already stored.
	o.Amount = decimal.RequireFromString("12.50")
	changed, err := repo.Update(ctx, o)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestUpdateMissingRow(t *testing.T) {
	s := openSession(t, nil)
	repo := newOrderRepo(t, s)
	ctx := context.Background()

	_, err := repo.Update(ctx, &order{ID: 404, Status: "open"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.Update(ctx, &order{Status: "open"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestUpdateByMutator(t *testing.T) {
	log := &statementLog{}
	s := openSession(t, nil, log)
	repo := newOrderRepo(t, s)
	ctx := context.Background()
	o := addOrder(t, repo)

	log.reset()
	err := repo.UpdateByMutator(ctx, o, func(o *order) { o.Note = "n" })
	assert.ErrorIs(t, err, ErrNoChange)
	assert.Zero(t, log.count())

	require.NoError(t, repo.UpdateByMutator(ctx, o, func(o *order) { o.Note = "mutated" }))
	assert.Equal(t, 1, log.count())
	got, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "mutated", got.Note)

	err = repo.UpdateByMutator(ctx, o, func(o *order) { o.ID++ })
	assert.ErrorIs(t, err, ErrInvalidArgument)

	err = repo.UpdateByMutator(ctx, &order{ID: 404}, func(o *order) { o.Note = "x" })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateColumns(t *testing.T) {
	s := openSession(t, nil)
	repo := newOrderRepo(t, s)
	ctx := context.Background()
	o := addOrder(t, repo)

	o.Status, o.Note = "paid", "only note"
	n, err := repo.UpdateColumns(ctx, o, []string{"Note"}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "open", got.Status)
	assert.Equal(t, "only note", got.Note)

	o.Note = "not written"
	n, err = repo.UpdateColumns(ctx, o, []string{"note"}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err = repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "paid", got.Status)
	assert.Equal(t, "only note", got.Note)

	// Ignoring the primary key is allowed; it is never written anyway.
	o.Note = "with key ignored"
	n, err = repo.UpdateColumns(ctx, o, []string{"id", "status"}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err = repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "with key ignored", got.Note)
	_, err = repo.UpdateColumns(ctx, o, []string{"id"}, false)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = repo.UpdateColumns(ctx, o, nil, false)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = repo.UpdateColumns(ctx, o, []string{"missing"}, false)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestUpdateWhere(t *testing.T) {
	s := openSession(t, nil)
	repo := newOrderRepo(t, s)
	ctx := context.Background()
	seedOrders(t, repo, 4, 3)

	n, err := repo.UpdateWhere(ctx, &order{Status: "archived"}, query.Eq("status", "closed"), "status")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	archived, err := repo.Count(ctx, query.Eq("status", "archived"))
	require.NoError(t, err)
	assert.Equal(t, 3, archived)

	n, err = repo.UpdateWhere(ctx, &order{Note: "all"}, nil, "note")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = repo.UpdateWhere(ctx, &order{}, query.Eq("missing", 1), "note")
	assert.ErrorIs(t, err, query.ErrUnsupportedPredicate)
}

func TestUpdatePartial(t *testing.T) {
	s := openSession(t, nil)
	repo := newOrderRepo(t, s)
	ctx := context.Background()
	o := addOrder(t, repo)

	n, err := repo.UpdatePartial(ctx, map[string]interface{}{"id": o.ID, "Note": "partial", "status": "held"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "partial", got.Note)
	assert.Equal(t, "held", got.Status)
	assert.True(t, o.Amount.Equal(got.Amount))

	_, err = repo.UpdatePartial(ctx, map[string]interface{}{"note": "no key"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = repo.UpdatePartial(ctx, map[string]interface{}{"id": o.ID})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = repo.UpdatePartial(ctx, map[string]interface{}{"id": o.ID, "bogus": 1})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

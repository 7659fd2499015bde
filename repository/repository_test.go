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
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/tomoncle/typedrepo/database"
	"github.com/tomoncle/typedrepo/query"
)

type order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID         int64           `bun:"id,pk,autoincrement"`
	CustomerID int64           `bun:"customer_id"`
	Status     string          `bun:"status,notnull"`
	Amount     decimal.Decimal `bun:"amount,type:text"`
	Note       string          `bun:"note"`
}

type customer struct {
	bun.BaseModel `bun:"table:customers,alias:c"`

	ID       int64  `bun:"id,pk,autoincrement"`
	Name     string `bun:"name,notnull"`
	RegionID int64  `bun:"region_id"`
}

type region struct {
	bun.BaseModel `bun:"table:regions,alias:rg"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name,notnull"`
}

type keyless struct {
	Name string `bun:"name"`
}

// statementLog records the statements a session executes.
type statementLog struct {
	mu      sync.Mutex
	queries []string
}

func (l *statementLog) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (l *statementLog) AfterQuery(_ context.Context, e *bun.QueryEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queries = append(l.queries, e.Query)
}

func (l *statementLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queries = nil
}

// selects counts SELECT statements since the last reset.
func (l *statementLog) selects() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, q := range l.queries {
		if strings.HasPrefix(strings.TrimSpace(q), "SELECT") {
			n++
		}
	}
	return n
}

func (l *statementLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queries)
}

func memoryConfig() *database.Config {
	cfg := database.DefaultConfig()
	cfg.ConnectionConfig.Type = "sqlite"
	cfg.ConnectionConfig.DBName = ":memory:"
	cfg.ConnectionConfig.SlowQueryTime = 0
	return cfg
}

func openSession(t *testing.T, cfg *database.Config, hooks ...bun.QueryHook) *database.Session {
	t.Helper()
	if cfg == nil {
		cfg = memoryConfig()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := database.OpenWithConfig(ctx, cfg, hooks...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Bootstrap(ctx, (*region)(nil), (*customer)(nil), (*order)(nil)))
	return s
}

func newOrderRepo(t *testing.T, s *database.Session) Repository[order] {
	t.Helper()
	repo, err := NewRepository[order](s)
	require.NoError(t, err)
	return repo
}

func makeOrders(n int, status string, customerID int64) []*order {
	orders := make([]*order, n)
	for i := range orders {
		orders[i] = &order{
			CustomerID: customerID,
			Status:     status,
			Amount:     decimal.NewFromInt(int64(i + 1)),
			Note:       fmt.Sprintf("%s-%d", status, i),
		}
	}
	return orders
}

// seedOrders inserts open orders first, then closed ones, so ids 1..open
// are the open orders.
func seedOrders(t *testing.T, repo Repository[order], open, closed int) {
	t.Helper()
	ctx := context.Background()
	batch := append(makeOrders(open, "open", 1), makeOrders(closed, "closed", 2)...)
	n, err := repo.AddBulk(ctx, batch, BulkOptions{})
	require.NoError(t, err)
	require.Equal(t, open+closed, n)
}

func TestNewRepositoryRejectsUnmappableTypes(t *testing.T) {
	s := openSession(t, nil)

	_, err := NewRepository[keyless](s)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, query.ErrInvalidModel)

	_, err = NewRepository[int](s)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewRepository[order](nil)
	assert.ErrorIs(t, err, ErrConfiguration)

	assert.Panics(t, func() { MustRepository[keyless](s) })
}

func TestAddThenGetByID(t *testing.T) {
	s := openSession(t, nil)
	repo := newOrderRepo(t, s)
	ctx := context.Background()

	o := &order{CustomerID: 3, Status: "open", Amount: decimal.RequireFromString("12.5"), Note: "first"}
	require.NoError(t, repo.Add(ctx, o))
	require.NotZero(t, o.ID)

	got, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, o.Amount.Equal(got.Amount))
	got.Amount = o.Amount
	assert.Equal(t, o, got)

	_, err = repo.GetByID(ctx, o.ID+100)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, repo.Add(ctx, nil), ErrInvalidArgument)
}

func TestAddBatchFillsKeys(t *testing.T) {
	s := openSession(t, nil)
	repo := newOrderRepo(t, s)
	ctx := context.Background()

	batch := makeOrders(3, "open", 1)
	require.NoError(t, repo.AddBatch(ctx, batch...))
	for _, o := range batch {
		assert.NotZero(t, o.ID)
	}

	got, err := repo.GetByIDs(ctx, []int64{batch[2].ID, batch[0].ID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, batch[0].ID, got[0].ID)
	assert.Equal(t, batch[2].ID, got[1].ID)

	none, err := repo.GetByIDs(ctx, []int64{})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	assert.ErrorIs(t, repo.AddBatch(ctx, batch[0], nil), ErrInvalidArgument)
}

func TestFindOptions(t *testing.T) {
	s := openSession(t, nil)
	repo := newOrderRepo(t, s)
	ctx := context.Background()
	seedOrders(t, repo, 6, 4)

	open, err := repo.Find(ctx,
		Where(query.Eq("status", "open")),
		OrderBy(query.Desc("id")),
		Top(3),
	)
	require.NoError(t, err)
	require.Len(t, open, 3)
	assert.Equal(t, []int64{6, 5, 4}, []int64{open[0].ID, open[1].ID, open[2].ID})

	raw, err := repo.Find(ctx, WhereRaw("note LIKE ?", "closed-%"), OrderByRaw("id DESC"))
	require.NoError(t, err)
	require.Len(t, raw, 4)
	assert.Equal(t, int64(10), raw[0].ID)

	combined, err := repo.Find(ctx,
		Where(query.Eq("status", "open")),
		Where(query.If(false, query.Eq("note", "never"))),
		Where(query.In("id", []int64{1, 2, 9})),
	)
	require.NoError(t, err)
	assert.Len(t, combined, 2)

	empty, err := repo.Find(ctx, Where(query.In("id", []int64{})))
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	all, err := repo.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 10)

	_, err = repo.Find(ctx, Where(query.Eq("missing", 1)))
	assert.ErrorIs(t, err, query.ErrUnsupportedPredicate)
	_, err = repo.Find(ctx, OrderBy(query.Asc("missing")))
	assert.ErrorIs(t, err, query.ErrUnsupportedOrder)
	_, err = repo.Find(ctx, GroupBy("status"))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestFindDuplicateOrderField(t *testing.T) {
	s := openSession(t, nil)
	repo := newOrderRepo(t, s)
	ctx := context.Background()
	seedOrders(t, repo, 3, 3)

	// status asc, id asc, then status desc: status keeps the first position
	// with the last direction.
	rows, err := repo.Find(ctx, OrderBy(query.Asc("status"), query.Asc("id"), query.Desc("status")))
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, "open", rows[0].Status)
	assert.Equal(t, int64(1), rows[0].ID)
	assert.Equal(t, "closed", rows[5].Status)
	assert.Equal(t, int64(6), rows[5].ID)
}

func TestCountAndExists(t *testing.T) {
	s := openSession(t, nil)
	repo := newOrderRepo(t, s)
	ctx := context.Background()
	seedOrders(t, repo, 4, 2)

	n, err := repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	n, err = repo.Count(ctx, query.And(query.Eq("status", "closed"), query.Gt("id", 5)))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ok, err := repo.Exists(ctx, query.Eq("note", "open-3"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Exists(ctx, query.Eq("status", "lost"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteFamily(t *testing.T) {
	s := openSession(t, nil)
	repo := newOrderRepo(t, s)
	ctx := context.Background()
	seedOrders(t, repo, 5, 5)

	n, err := repo.DeleteByID(ctx, int64(1))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = repo.DeleteByID(ctx, int64(1))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = repo.DeleteByIDs(ctx, []int64{2, 3, 99})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.Delete(ctx, &order{ID: 4})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = repo.DeleteWhere(ctx, query.Eq("status", "closed"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = repo.DeleteWhere(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	left, err := repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, left)

	_, err = repo.DeleteByIDs(ctx, 7)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = repo.DeleteByID(ctx, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRawQueries(t *testing.T) {
	s := openSession(t, nil)
	repo := newOrderRepo(t, s)
	ctx := context.Background()
	seedOrders(t, repo, 3, 2)

	closed, err := repo.QuerySQL(ctx, "SELECT * FROM orders WHERE status = ? ORDER BY id", "closed")
	require.NoError(t, err)
	require.Len(t, closed, 2)
	assert.Equal(t, int64(4), closed[0].ID)

	rows, err := repo.QueryTable(ctx, "SELECT status, COUNT(*) AS n FROM orders GROUP BY status ORDER BY status")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "closed", fmt.Sprint(rows[0]["status"]))
	assert.EqualValues(t, 2, rows[0]["n"])
	assert.EqualValues(t, 3, rows[1]["n"])

	_, err = repo.QuerySQL(ctx, "SELECT * FROM missing_table")
	var se *StoreExecutionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, database.NoTableErr, se.Kind)
}

func TestUpsert(t *testing.T) {
	s := openSession(t, nil)
	repo := newOrderRepo(t, s)
	ctx := context.Background()

	o := &order{CustomerID: 1, Status: "open", Amount: decimal.NewFromInt(5), Note: "keep"}
	require.NoError(t, repo.Add(ctx, o))

	changed := &order{ID: o.ID, CustomerID: 1, Status: "paid", Amount: decimal.NewFromInt(5), Note: "ignored"}
	fresh := &order{ID: o.ID + 1, CustomerID: 2, Status: "open", Amount: decimal.NewFromInt(1)}
	require.NoError(t, repo.Upsert(ctx, []string{"status"}, nil, changed, fresh))

	got, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "paid", got.Status)
	assert.Equal(t, "keep", got.Note)

	n, err := repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.ErrorIs(t, repo.Upsert(ctx, []string{"id"}, nil, changed), ErrInvalidArgument)
	assert.ErrorIs(t, repo.Upsert(ctx, []string{"status"}, []string{"nope"}, changed), ErrInvalidArgument)
}

func TestPointCache(t *testing.T) {
	cfg := memoryConfig()
	cfg.CacheConfig.Type = "memory"
	log := &statementLog{}
	s := openSession(t, cfg, log)
	require.NotNil(t, s.Cache())
	repo := newOrderRepo(t, s)
	ctx := context.Background()

	o := &order{CustomerID: 1, Status: "open", Amount: decimal.NewFromInt(9), Note: "v1"}
	require.NoError(t, repo.Add(ctx, o))

	log.reset()
	first, err := repo.GetByID(ctx, o.ID, UseCache())
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, o.ID, UseCache())
	require.NoError(t, err)
	assert.Equal(t, 1, log.selects())
	assert.Equal(t, first.Note, second.Note)
	assert.True(t, first.Amount.Equal(second.Amount))

	// Without the hint the store is always read.
	_, err = repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, log.selects())

	o.Note = "v2"
	_, err = repo.UpdateColumns(ctx, o, []string{"note"}, false)
	require.NoError(t, err)
	third, err := repo.GetByID(ctx, o.ID, UseCache())
	require.NoError(t, err)
	assert.Equal(t, "v2", third.Note)
}

// afterSelect runs a function once, right after the next SELECT completes.
type afterSelect struct {
	mu sync.Mutex
	fn func()
}

func (h *afterSelect) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *afterSelect) AfterQuery(_ context.Context, e *bun.QueryEvent) {
	h.mu.Lock()
	fn := h.fn
	if fn != nil && strings.HasPrefix(strings.TrimSpace(e.Query), "SELECT") {
		h.fn = nil
	} else {
		fn = nil
	}
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (h *afterSelect) arm(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fn = fn
}

func TestPointCacheLookupRacingWrite(t *testing.T) {
	cfg := memoryConfig()
	cfg.CacheConfig.Type = "memory"
	hook := &afterSelect{}
	s := openSession(t, cfg, hook)
	repo := newOrderRepo(t, s)
	ctx := context.Background()

	o := &order{CustomerID: 1, Status: "open", Amount: decimal.NewFromInt(9), Note: "v1"}
	require.NoError(t, repo.Add(ctx, o))

	// The write lands between the lookup's SELECT and its cache fill.
	hook.arm(func() {
		w := *o
		w.Note = "v2"
		_, err := repo.UpdateColumns(ctx, &w, []string{"note"}, false)
		assert.NoError(t, err)
	})
	first, err := repo.GetByID(ctx, o.ID, UseCache())
	require.NoError(t, err)
	assert.Equal(t, "v1", first.Note)

	stored, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	cached, err := repo.GetByID(ctx, o.ID, UseCache())
	require.NoError(t, err)
	assert.Equal(t, "v2", stored.Note)
	assert.Equal(t, "v2", cached.Note)
}

func TestPointCacheHeldWriteInvalidatesOnCommit(t *testing.T) {
	cfg := memoryConfig()
	cfg.CacheConfig.Type = "memory"
	s := openSession(t, cfg)
	repo := newOrderRepo(t, s)
	ctx := context.Background()

	o := &order{CustomerID: 1, Status: "open", Amount: decimal.NewFromInt(9), Note: "v1"}
	require.NoError(t, repo.Add(ctx, o))
	_, err := repo.GetByID(ctx, o.ID, UseCache())
	require.NoError(t, err)
	before, err := s.Cache().Generation(ctx, "orders")
	require.NoError(t, err)

	tx, err := s.Begin(ctx, nil)
	require.NoError(t, err)
	o.Note = "v2"
	_, err = repo.WithSession(tx).UpdateColumns(ctx, o, []string{"note"}, false)
	require.NoError(t, err)
	during, err := s.Cache().Generation(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, before, during)
	require.NoError(t, tx.Commit())

	cached, err := repo.GetByID(ctx, o.ID, UseCache())
	require.NoError(t, err)
	assert.Equal(t, "v2", cached.Note)
}

func TestWithSessionHeldTransaction(t *testing.T) {
	s := openSession(t, nil)
	repo := newOrderRepo(t, s)
	ctx := context.Background()

	tx, err := s.Begin(ctx, nil)
	require.NoError(t, err)
	txRepo := repo.WithSession(tx)
	assert.Same(t, tx, txRepo.Session())
	assert.Same(t, s, repo.Session())

	require.NoError(t, txRepo.Add(ctx, &order{Status: "open", Amount: decimal.NewFromInt(1)}))
	n, err := txRepo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, tx.Rollback())

	n, err = repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	err = s.RunInTx(ctx, nil, func(ctx context.Context, tx *database.Session) error {
		return repo.WithSession(tx).Add(ctx, &order{Status: "open", Amount: decimal.NewFromInt(2)})
	})
	require.NoError(t, err)
	n, err = repo.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

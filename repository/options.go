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
	"github.com/tomoncle/typedrepo/query"
)

type findOptions struct {
	where []query.Predicate
	order query.OrderSpec
	group []string
	limit int
}

// FindOption narrows a query. Field names resolve against the entity for
// Find, Page, FindAs and PageAs, and against the result type for joins.
type FindOption func(*findOptions)

// Where adds p to the filter; repeated calls are combined with AND.
func Where(p query.Predicate) FindOption {
	return func(o *findOptions) { o.where = append(o.where, p) }
}

func WhereRaw(clause string, args ...interface{}) FindOption {
	return Where(query.Raw(clause, args...))
}

func OrderBy(terms ...query.OrderTerm) FindOption {
	return func(o *findOptions) { o.order = append(o.order, terms...) }
}

func OrderByRaw(expr string, args ...interface{}) FindOption {
	return OrderBy(query.OrderRaw(expr, args...))
}

// GroupBy groups rows before projection. It requires a projection.
func GroupBy(fields ...string) FindOption {
	return func(o *findOptions) { o.group = append(o.group, fields...) }
}

// Top limits the number of rows returned.
func Top(n int) FindOption {
	return func(o *findOptions) { o.limit = n }
}

func collectFindOptions(opts []FindOption) *findOptions {
	o := &findOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

func (o *findOptions) filter() query.Predicate { return query.And(o.where...) }

func (o *findOptions) spec(proj query.Projection) query.Spec {
	return query.Spec{
		Where:      o.filter(),
		Order:      o.order,
		Projection: proj,
		Group:      o.group,
		Limit:      o.limit,
	}
}

type lookupOptions struct {
	useCache bool
}

type LookupOption func(*lookupOptions)

// UseCache lets a point lookup be served by the session's point cache.
// Without a configured cache, or inside a held transaction, it is ignored.
func UseCache() LookupOption {
	return func(o *lookupOptions) { o.useCache = true }
}

// DefaultChunkSize is the number of rows written per statement by the bulk
// operations.
const DefaultChunkSize = 500

type BulkOptions struct {
	ChunkSize int `json:"chunk_size" yaml:"chunk_size" mapstructure:"chunk_size"`
}

func (o BulkOptions) chunkSize() int {
	if o.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return o.ChunkSize
}

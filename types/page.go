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

package types

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidPage is returned for a page index below one or a non-positive
// page size.
var ErrInvalidPage = errors.New("invalid page request")

// PageRequest selects one page of a result set. Page indexes are 1-based.
type PageRequest struct {
	pageIndex int
	pageSize  int
}

// NewPageRequest constructs a 1-based page request. It is not validated
// until Validate is called.
func NewPageRequest(pageIndex int, pageSize int) *PageRequest {
	return &PageRequest{pageIndex: pageIndex, pageSize: pageSize}
}

// NewZeroBasedPageRequest constructs a page request from a 0-based index.
func NewZeroBasedPageRequest(pageIndex int, pageSize int) *PageRequest {
	return NewPageRequest(pageIndex+1, pageSize)
}

func (p *PageRequest) GetPageIndex() int { return p.pageIndex }

func (p *PageRequest) GetPageSize() int { return p.pageSize }

// GetOffset returns the number of rows before the page. It saturates at
// math.MaxInt when the page is too far out to address.
func (p *PageRequest) GetOffset() int {
	if p.pageSize > 0 && p.pageIndex-1 > math.MaxInt/p.pageSize {
		return math.MaxInt
	}
	return (p.pageIndex - 1) * p.pageSize
}

// Beyond reports whether the page starts at or past row total.
func (p *PageRequest) Beyond(total int) bool {
	if total <= 0 || p.pageSize <= 0 {
		return true
	}
	return p.pageIndex-1 > (total-1)/p.pageSize
}

// Validate rejects out of range values. Nothing is defaulted or capped.
func (p *PageRequest) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil request", ErrInvalidPage)
	}
	if p.pageIndex < 1 {
		return fmt.Errorf("%w: page index %d < 1", ErrInvalidPage, p.pageIndex)
	}
	if p.pageSize <= 0 {
		return fmt.Errorf("%w: page size %d <= 0", ErrInvalidPage, p.pageSize)
	}
	return nil
}

// PageResult holds one page of items and the size of the whole filtered set.
type PageResult[T any] struct {
	PageIndex  int  `json:"page_index"`
	PageSize   int  `json:"page_size"`
	TotalCount int  `json:"total_count"`
	Items      []*T `json:"items"`
}

// NewPageResult constructs an empty page for the given request.
func NewPageResult[T any](req *PageRequest) *PageResult[T] {
	return &PageResult[T]{
		PageIndex: req.GetPageIndex(),
		PageSize:  req.GetPageSize(),
		Items:     make([]*T, 0),
	}
}

// PageCount returns the number of pages needed to hold TotalCount items.
func (p *PageResult[T]) PageCount() int {
	if p.PageSize <= 0 {
		return 0
	}
	return (p.TotalCount + p.PageSize - 1) / p.PageSize
}

// HasNext reports whether a page follows this one.
func (p *PageResult[T]) HasNext() bool {
	return p.PageIndex < p.PageCount()
}

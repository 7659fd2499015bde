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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageRequestValidate(t *testing.T) {
	require.NoError(t, NewPageRequest(1, 10).Validate())
	require.NoError(t, NewPageRequest(3, 100000).Validate())

	assert.ErrorIs(t, NewPageRequest(0, 10).Validate(), ErrInvalidPage)
	assert.ErrorIs(t, NewPageRequest(1, 0).Validate(), ErrInvalidPage)
	assert.ErrorIs(t, NewPageRequest(1, -5).Validate(), ErrInvalidPage)

	var nilReq *PageRequest
	assert.ErrorIs(t, nilReq.Validate(), ErrInvalidPage)
}

func TestPageRequestOffset(t *testing.T) {
	assert.Equal(t, 0, NewPageRequest(1, 10).GetOffset())
	assert.Equal(t, 20, NewPageRequest(3, 10).GetOffset())

	zero := NewZeroBasedPageRequest(0, 25)
	assert.Equal(t, 1, zero.GetPageIndex())
	assert.Equal(t, 0, zero.GetOffset())
	assert.Equal(t, 50, NewZeroBasedPageRequest(2, 25).GetOffset())
}

func TestPageRequestBeyond(t *testing.T) {
	assert.True(t, NewPageRequest(1, 10).Beyond(0))
	assert.False(t, NewPageRequest(1, 10).Beyond(1))
	assert.False(t, NewPageRequest(3, 10).Beyond(21))
	assert.True(t, NewPageRequest(3, 10).Beyond(20))

	far := NewPageRequest(math.MaxInt/8+2, 16)
	assert.True(t, far.Beyond(30))
	assert.Equal(t, math.MaxInt, far.GetOffset())
}

func TestPageResultCounts(t *testing.T) {
	page := NewPageResult[int](NewPageRequest(2, 10))
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)

	page.TotalCount = 25
	assert.Equal(t, 3, page.PageCount())
	assert.True(t, page.HasNext())

	page.PageIndex = 3
	assert.False(t, page.HasNext())
}

/*
 * Copyright 2025 Cong Wang
 *
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

package loader

import (
	"math"
	"net/url"
	"strconv"

	"github.com/storeforge/storefront/internal/types"
)

// paginationWindow is the number of pages shown on each side of the current one
const paginationWindow = 2

// MaxPage is the highest page number a listing serves
const MaxPage = 10000

// ClampPage maps a requested page number into [1, MaxPage]
func ClampPage(page int) int {
	switch {
	case page < 1:
		return 1
	case page > MaxPage:
		return MaxPage
	}
	return page
}

// pageOffset returns the index of the first item on page, saturating at
// math.MaxInt instead of wrapping
func pageOffset(page, pageSize int) int {
	page = ClampPage(page)
	if pageSize < 1 {
		return 0
	}
	if page-1 > math.MaxInt/pageSize {
		return math.MaxInt
	}
	return (page - 1) * pageSize
}

// BuildPagination computes the pagination object for a listing. Page numbers
// are clamped into [1, MaxPage]; a page past the end is kept so templates can
// render an empty page with a link back.
func BuildPagination(page, pageSize, total int, path string, query url.Values) *types.Pagination {
	page = ClampPage(page)
	if pageSize < 1 {
		pageSize = 1
	}
	totalPages := total / pageSize
	if total%pageSize != 0 {
		totalPages++
	}
	if totalPages < 1 {
		totalPages = 1
	}

	p := &types.Pagination{
		CurrentPage: page,
		PageSize:    pageSize,
		TotalItems:  total,
		TotalPages:  totalPages,
		Offset:      pageOffset(page, pageSize),
		HasNext:     page < totalPages,
		HasPrevious: page > 1,
		Parts:       []types.PaginationPart{},
	}
	if p.HasNext {
		p.NextURL = pageURL(path, query, page+1)
	}
	if p.HasPrevious {
		p.PreviousURL = pageURL(path, query, page-1)
	}

	lastShown := 0
	for n := 1; n <= totalPages; n++ {
		inWindow := n >= page-paginationWindow && n <= page+paginationWindow
		if n != 1 && n != totalPages && !inWindow {
			continue
		}
		if lastShown != 0 && n-lastShown > 1 {
			p.Parts = append(p.Parts, types.PaginationPart{Title: "…"})
		}
		part := types.PaginationPart{Title: strconv.Itoa(n), IsCurrent: n == page}
		if n != page {
			part.URL = pageURL(path, query, n)
			part.IsLink = true
		}
		p.Parts = append(p.Parts, part)
		lastShown = n
	}
	return p
}

func pageURL(path string, query url.Values, page int) string {
	q := url.Values{}
	for k, v := range query {
		q[k] = append([]string(nil), v...)
	}
	if page <= 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(page))
	}
	if encoded := q.Encode(); encoded != "" {
		return path + "?" + encoded
	}
	return path
}

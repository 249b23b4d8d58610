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

package engine

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/storeforge/storefront/internal/loader"
	"github.com/storeforge/storefront/internal/types"
)

// Route maps a request path to the page it renders
func Route(p string) types.PageOptions {
	clean := "/" + strings.Trim(p, "/")
	segments := strings.Split(strings.Trim(clean, "/"), "/")
	page := types.PageOptions{Path: clean}

	switch {
	case clean == "/":
		page.Type = types.PageHome
	case len(segments) == 1 && segments[0] == "collections":
		page.Type = types.PageListCollections
	case len(segments) == 2 && segments[0] == "collections":
		page.Type, page.Handle = types.PageCollection, segments[1]
	case len(segments) == 2 && segments[0] == "products":
		page.Type, page.Handle = types.PageProduct, segments[1]
	case len(segments) == 2 && segments[0] == "pages":
		page.Type, page.Handle = types.PagePage, segments[1]
	case len(segments) == 1 && segments[0] == "search":
		page.Type = types.PageSearch
	case len(segments) == 1 && segments[0] == "cart":
		page.Type = types.PageCart
	default:
		page.Type = types.PageNotFound
	}
	page.Template = string(page.Type)
	return page
}

// ParseQuery extracts the storefront parameters from a query string.
// Invalid or non-positive page numbers become 1 and pages past
// loader.MaxPage are clamped to it.
func ParseQuery(values url.Values) types.QueryParams {
	q := types.QueryParams{
		Page:   1,
		Query:  strings.TrimSpace(values.Get("q")),
		SortBy: values.Get("sort_by"),
		CartID: values.Get("cart_id"),
	}
	if n, err := strconv.Atoi(values.Get("page")); err == nil {
		q.Page = loader.ClampPage(n)
	}
	return q
}

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

package types

import "time"

// PageType identifies the kind of storefront page being rendered
type PageType string

const (
	PageHome            PageType = "index"
	PageProduct         PageType = "product"
	PageCollection      PageType = "collection"
	PageListCollections PageType = "list-collections"
	PageSearch          PageType = "search"
	PageCart            PageType = "cart"
	PagePage            PageType = "page"
	PageNotFound        PageType = "404"
)

// PageOptions describes the page being rendered
type PageOptions struct {
	Type     PageType `json:"type"`
	Handle   string   `json:"handle,omitempty"`
	Path     string   `json:"path"`
	Title    string   `json:"title,omitempty"`
	Template string   `json:"template"`
}

// QueryParams holds the storefront query parameters the engine understands
type QueryParams struct {
	Page   int    `json:"page"`
	Query  string `json:"q,omitempty"`
	SortBy string `json:"sort_by,omitempty"`
	CartID string `json:"cart_id,omitempty"`
}

// PaginationPart is a single numbered link in a pagination control
type PaginationPart struct {
	Title     string `json:"title"`
	URL       string `json:"url,omitempty"`
	IsLink    bool   `json:"is_link"`
	IsCurrent bool   `json:"is_current"`
}

// Pagination is the pre-built pagination object exposed to templates
type Pagination struct {
	CurrentPage int              `json:"current_page"`
	PageSize    int              `json:"page_size"`
	TotalItems  int              `json:"items"`
	TotalPages  int              `json:"pages"`
	Offset      int              `json:"offset"`
	HasNext     bool             `json:"has_next"`
	HasPrevious bool             `json:"has_previous"`
	NextURL     string           `json:"next_url,omitempty"`
	PreviousURL string           `json:"previous_url,omitempty"`
	Parts       []PaginationPart `json:"parts"`
}

// RenderedPage is the output of a full page render
type RenderedPage struct {
	HTML       string        `json:"html"`
	StoreID    string        `json:"store_id"`
	Template   string        `json:"template"`
	RenderTime time.Duration `json:"render_time"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail provides detailed error information
type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	RequestID string                 `json:"request_id,omitempty"`
}

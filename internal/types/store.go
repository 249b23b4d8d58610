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

import (
	"strings"
	"time"
)

// CustomDomainStatus represents the activation state of a custom domain
type CustomDomainStatus string

const (
	DomainStatusPending CustomDomainStatus = "pending"
	DomainStatusActive  CustomDomainStatus = "active"
	DomainStatusFailed  CustomDomainStatus = "failed"
)

// Store represents a tenant storefront
type Store struct {
	ID                   string             `json:"id"`
	Name                 string             `json:"name"`
	Handle               string             `json:"handle"`
	Domain               string             `json:"domain"`
	CustomDomain         string             `json:"custom_domain,omitempty"`
	CustomDomainStatus   CustomDomainStatus `json:"custom_domain_status,omitempty"`
	CustomDomainVerified bool               `json:"custom_domain_verified"`
	IsActive             bool               `json:"is_active"`
	Description          string             `json:"description,omitempty"`
	Email                string             `json:"email,omitempty"`
	Phone                string             `json:"phone,omitempty"`
	Currency             string             `json:"currency"`
	LogoURL              string             `json:"logo_url,omitempty"`
	ThemeID              string             `json:"theme_id,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// HasActiveCustomDomain reports whether the store's custom domain can be used
// for canonical URLs.
func (s *Store) HasActiveCustomDomain() bool {
	return s.CustomDomain != "" &&
		s.CustomDomainStatus == DomainStatusActive &&
		s.CustomDomainVerified
}

// PrimaryDomain returns the domain used to build absolute URLs
func (s *Store) PrimaryDomain() string {
	if s.HasActiveCustomDomain() {
		return s.CustomDomain
	}
	return s.Domain
}

// Product represents a catalog product
type Product struct {
	ID             string   `json:"id"`
	StoreID        string   `json:"store_id"`
	Handle         string   `json:"handle"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Price          float64  `json:"price"`
	CompareAtPrice float64  `json:"compare_at_price,omitempty"`
	Images         []string `json:"images,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Vendor         string   `json:"vendor,omitempty"`
	Available      bool     `json:"available"`
	CollectionIDs  []string `json:"collection_ids,omitempty"`
}

// FeaturedImage returns the first product image, if any
func (p *Product) FeaturedImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// Collection represents a group of products
type Collection struct {
	ID          string   `json:"id"`
	StoreID     string   `json:"store_id"`
	Handle      string   `json:"handle"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
	ProductIDs  []string `json:"product_ids,omitempty"`
}

// CartItem represents a line in a cart
type CartItem struct {
	ProductID string  `json:"product_id"`
	Title     string  `json:"title"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// Cart represents a shopper's cart snapshot
type Cart struct {
	ID      string     `json:"id"`
	StoreID string     `json:"store_id"`
	Items   []CartItem `json:"items"`
}

// ItemCount returns the total quantity of items in the cart
func (c *Cart) ItemCount() int {
	count := 0
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// Total returns the cart total
func (c *Cart) Total() float64 {
	var total float64
	for _, item := range c.Items {
		total += item.Price * float64(item.Quantity)
	}
	return total
}

// ListOptions controls product and collection listings
type ListOptions struct {
	Limit        int    `json:"limit"`
	Offset       int    `json:"offset"`
	CollectionID string `json:"collection_id,omitempty"`
	SortBy       string `json:"sort_by,omitempty"`
}

// SearchOptions controls search queries
type SearchOptions struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// SearchResult holds the outcome of a search query
type SearchResult struct {
	Query       string       `json:"query"`
	Products    []Product    `json:"products"`
	Collections []Collection `json:"collections"`
	Total       int          `json:"total"`
}

// NormalizeDomain lowercases a host and strips any port and trailing dot
func NormalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	if i := strings.LastIndex(d, ":"); i != -1 && !strings.Contains(d[i:], "]") {
		d = d[:i]
	}
	return strings.TrimSuffix(d, ".")
}

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

package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/storeforge/storefront/internal/types"
)

// MemoryStorage implements Storage with process-local maps
type MemoryStorage struct {
	stores       map[string]*types.Store
	products     map[string]*types.Product
	collections  map[string]*types.Collection
	carts        map[string]*types.Cart
	themeConfigs map[string]*types.ThemeConfig
	mu           sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage instance
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		stores:       make(map[string]*types.Store),
		products:     make(map[string]*types.Product),
		collections:  make(map[string]*types.Collection),
		carts:        make(map[string]*types.Cart),
		themeConfigs: make(map[string]*types.ThemeConfig),
	}
}

func themeConfigKey(storeID, themeID string) string {
	return storeID + "/" + themeID
}

// GetStoreByCustomDomain returns the store whose active custom domain matches
func (m *MemoryStorage) GetStoreByCustomDomain(ctx context.Context, domain string) (*types.Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, store := range m.stores {
		if store.CustomDomain != "" &&
			strings.EqualFold(store.CustomDomain, domain) &&
			store.CustomDomainStatus == types.DomainStatusActive {
			s := *store
			return &s, nil
		}
	}
	return nil, fmt.Errorf("store with custom domain %s: %w", domain, ErrNotFound)
}

// GetStoreByDefaultDomain returns the store whose platform domain matches
func (m *MemoryStorage) GetStoreByDefaultDomain(ctx context.Context, domain string) (*types.Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, store := range m.stores {
		if strings.EqualFold(store.Domain, domain) {
			s := *store
			return &s, nil
		}
	}
	return nil, fmt.Errorf("store with domain %s: %w", domain, ErrNotFound)
}

// GetStore returns a store by ID
func (m *MemoryStorage) GetStore(ctx context.Context, storeID string) (*types.Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	store, exists := m.stores[storeID]
	if !exists {
		return nil, fmt.Errorf("store %s: %w", storeID, ErrNotFound)
	}
	s := *store
	return &s, nil
}

// SaveStore creates or replaces a store
func (m *MemoryStorage) SaveStore(ctx context.Context, store *types.Store) error {
	if store == nil {
		return fmt.Errorf("store cannot be nil")
	}
	if store.Domain == "" {
		return fmt.Errorf("store domain cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if store.ID == "" {
		store.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if store.CreatedAt.IsZero() {
		store.CreatedAt = now
	}
	store.UpdatedAt = now

	s := *store
	m.stores[store.ID] = &s
	return nil
}

// ListProducts returns a page of a store's products and the total count
func (m *MemoryStorage) ListProducts(ctx context.Context, storeID string, opts types.ListOptions) ([]types.Product, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []types.Product
	for _, p := range m.products {
		if p.StoreID != storeID {
			continue
		}
		if opts.CollectionID != "" && !containsString(p.CollectionIDs, opts.CollectionID) {
			continue
		}
		matched = append(matched, copyProduct(p))
	}

	sortProducts(matched, opts.SortBy)
	return paginate(matched, opts.Offset, opts.Limit), len(matched), nil
}

// GetProductByHandle returns a product by handle
func (m *MemoryStorage) GetProductByHandle(ctx context.Context, storeID, handle string) (*types.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.products {
		if p.StoreID == storeID && p.Handle == handle {
			product := copyProduct(p)
			return &product, nil
		}
	}
	return nil, fmt.Errorf("product %s: %w", handle, ErrNotFound)
}

// SaveProduct creates or replaces a product
func (m *MemoryStorage) SaveProduct(ctx context.Context, product *types.Product) error {
	if product == nil {
		return fmt.Errorf("product cannot be nil")
	}
	if product.StoreID == "" || product.Handle == "" {
		return fmt.Errorf("product store ID and handle are required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	p := copyProduct(product)
	m.products[product.ID] = &p
	return nil
}

// ListCollections returns a page of a store's collections and the total count
func (m *MemoryStorage) ListCollections(ctx context.Context, storeID string, opts types.ListOptions) ([]types.Collection, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []types.Collection
	for _, c := range m.collections {
		if c.StoreID == storeID {
			matched = append(matched, copyCollection(c))
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Handle < matched[j].Handle })

	return paginate(matched, opts.Offset, opts.Limit), len(matched), nil
}

// GetCollectionByHandle returns a collection by handle
func (m *MemoryStorage) GetCollectionByHandle(ctx context.Context, storeID, handle string) (*types.Collection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.collections {
		if c.StoreID == storeID && c.Handle == handle {
			collection := copyCollection(c)
			return &collection, nil
		}
	}
	return nil, fmt.Errorf("collection %s: %w", handle, ErrNotFound)
}

// SaveCollection creates or replaces a collection
func (m *MemoryStorage) SaveCollection(ctx context.Context, collection *types.Collection) error {
	if collection == nil {
		return fmt.Errorf("collection cannot be nil")
	}
	if collection.StoreID == "" || collection.Handle == "" {
		return fmt.Errorf("collection store ID and handle are required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if collection.ID == "" {
		collection.ID = uuid.NewString()
	}
	c := copyCollection(collection)
	m.collections[collection.ID] = &c
	return nil
}

// Search matches products and collections whose title, description or tags
// contain the query, case-insensitively
func (m *MemoryStorage) Search(ctx context.Context, storeID, query string, opts types.SearchOptions) (*types.SearchResult, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	result := &types.SearchResult{
		Query:       query,
		Products:    []types.Product{},
		Collections: []types.Collection{},
	}
	if q == "" {
		return result, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var products []types.Product
	for _, p := range m.products {
		if p.StoreID == storeID && (matchesQuery(q, p.Title, p.Description) || matchesTag(q, p.Tags)) {
			products = append(products, copyProduct(p))
		}
	}
	sortProducts(products, "")

	var collections []types.Collection
	for _, c := range m.collections {
		if c.StoreID == storeID && matchesQuery(q, c.Title, c.Description) {
			collections = append(collections, copyCollection(c))
		}
	}
	sort.Slice(collections, func(i, j int) bool { return collections[i].Handle < collections[j].Handle })

	result.Total = len(products) + len(collections)
	result.Products = paginate(products, opts.Offset, opts.Limit)
	result.Collections = paginate(collections, 0, opts.Limit)
	return result, nil
}

// GetCart returns a cart by ID
func (m *MemoryStorage) GetCart(ctx context.Context, cartID string) (*types.Cart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cart, exists := m.carts[cartID]
	if !exists {
		return nil, fmt.Errorf("cart %s: %w", cartID, ErrNotFound)
	}
	c := *cart
	c.Items = append([]types.CartItem(nil), cart.Items...)
	return &c, nil
}

// SaveCart creates or replaces a cart
func (m *MemoryStorage) SaveCart(ctx context.Context, cart *types.Cart) error {
	if cart == nil {
		return fmt.Errorf("cart cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if cart.ID == "" {
		cart.ID = uuid.NewString()
	}
	c := *cart
	c.Items = append([]types.CartItem(nil), cart.Items...)
	m.carts[cart.ID] = &c
	return nil
}

// GetThemeConfig returns the persisted section settings for a store's theme
func (m *MemoryStorage) GetThemeConfig(ctx context.Context, storeID, themeID string) (*types.ThemeConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg, exists := m.themeConfigs[themeConfigKey(storeID, themeID)]
	if !exists {
		return nil, fmt.Errorf("theme config for store %s: %w", storeID, ErrNotFound)
	}
	c := *cfg
	return &c, nil
}

// SaveThemeConfig creates or replaces a store's theme settings
func (m *MemoryStorage) SaveThemeConfig(ctx context.Context, cfg *types.ThemeConfig) error {
	if cfg == nil || cfg.StoreID == "" {
		return fmt.Errorf("theme config store ID is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c := *cfg
	m.themeConfigs[themeConfigKey(cfg.StoreID, cfg.ThemeID)] = &c
	return nil
}

// Close releases resources held by the storage
func (m *MemoryStorage) Close() error {
	return nil
}

// HealthCheck always succeeds for memory storage
func (m *MemoryStorage) HealthCheck(ctx context.Context) error {
	return nil
}

// GetStats returns storage statistics
func (m *MemoryStorage) GetStats(ctx context.Context) (StorageStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return StorageStats{
		Stores:      int64(len(m.stores)),
		Products:    int64(len(m.products)),
		Collections: int64(len(m.collections)),
		Carts:       int64(len(m.carts)),
	}, nil
}

func copyProduct(p *types.Product) types.Product {
	c := *p
	c.Images = append([]string(nil), p.Images...)
	c.Tags = append([]string(nil), p.Tags...)
	c.CollectionIDs = append([]string(nil), p.CollectionIDs...)
	return c
}

func copyCollection(col *types.Collection) types.Collection {
	c := *col
	c.ProductIDs = append([]string(nil), col.ProductIDs...)
	return c
}

func sortProducts(products []types.Product, sortBy string) {
	var less func(i, j int) bool
	switch sortBy {
	case "title-ascending":
		less = func(i, j int) bool { return products[i].Title < products[j].Title }
	case "title-descending":
		less = func(i, j int) bool { return products[i].Title > products[j].Title }
	case "price-ascending":
		less = func(i, j int) bool { return products[i].Price < products[j].Price }
	case "price-descending":
		less = func(i, j int) bool { return products[i].Price > products[j].Price }
	default:
		less = func(i, j int) bool { return products[i].Handle < products[j].Handle }
	}
	sort.SliceStable(products, less)
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

func matchesQuery(q string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

func matchesTag(q string, tags []string) bool {
	for _, tag := range tags {
		if strings.EqualFold(tag, q) {
			return true
		}
	}
	return false
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

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
	"errors"

	"github.com/storeforge/storefront/internal/types"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// StoreLookup resolves tenants by domain
type StoreLookup interface {
	// GetStoreByCustomDomain returns the store whose active custom domain matches
	GetStoreByCustomDomain(ctx context.Context, domain string) (*types.Store, error)
	// GetStoreByDefaultDomain returns the store whose platform domain matches
	GetStoreByDefaultDomain(ctx context.Context, domain string) (*types.Store, error)
}

// Catalog exposes read access to products, collections, carts and search
type Catalog interface {
	ListProducts(ctx context.Context, storeID string, opts types.ListOptions) ([]types.Product, int, error)
	GetProductByHandle(ctx context.Context, storeID, handle string) (*types.Product, error)
	ListCollections(ctx context.Context, storeID string, opts types.ListOptions) ([]types.Collection, int, error)
	GetCollectionByHandle(ctx context.Context, storeID, handle string) (*types.Collection, error)
	Search(ctx context.Context, storeID, query string, opts types.SearchOptions) (*types.SearchResult, error)
	GetCart(ctx context.Context, cartID string) (*types.Cart, error)
}

// ThemeSettings exposes persisted per-store section settings
type ThemeSettings interface {
	GetThemeConfig(ctx context.Context, storeID, themeID string) (*types.ThemeConfig, error)
}

// Storage is the full data-access collaborator
type Storage interface {
	StoreLookup
	Catalog
	ThemeSettings

	GetStore(ctx context.Context, storeID string) (*types.Store, error)
	SaveStore(ctx context.Context, store *types.Store) error
	SaveProduct(ctx context.Context, product *types.Product) error
	SaveCollection(ctx context.Context, collection *types.Collection) error
	SaveCart(ctx context.Context, cart *types.Cart) error
	SaveThemeConfig(ctx context.Context, cfg *types.ThemeConfig) error

	// Maintenance operations
	Close() error
	HealthCheck(ctx context.Context) error
	GetStats(ctx context.Context) (StorageStats, error)
}

// StorageStats provides storage statistics
type StorageStats struct {
	Stores      int64 `json:"stores"`
	Products    int64 `json:"products"`
	Collections int64 `json:"collections"`
	Carts       int64 `json:"carts"`
}

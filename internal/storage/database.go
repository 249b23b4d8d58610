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
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/storeforge/storefront/internal/config"
	"github.com/storeforge/storefront/internal/types"
)

// DatabaseStorage implements Storage on a SQL database through gorm
type DatabaseStorage struct {
	config config.DatabaseConfig
	db     *gorm.DB
}

// NewDatabaseStorage creates a new database storage instance. If dbOverride is non-nil, it is used (for testing).
func NewDatabaseStorage(cfg config.DatabaseConfig, dbOverride ...*gorm.DB) (*DatabaseStorage, error) {
	var db *gorm.DB
	var err error
	if len(dbOverride) > 0 && dbOverride[0] != nil {
		db = dbOverride[0]
	} else {
		db, err = gorm.Open(
			postgres.New(postgres.Config{
				DriverName: cfg.Driver,
				DSN:        cfg.DSN,
			}),
			&gorm.Config{},
		)
		if err != nil {
			return nil, err
		}

		// Set connection pool settings
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	ds := &DatabaseStorage{
		config: cfg,
		db:     db,
	}

	if cfg.AutoMigrate {
		if err := ds.Migrate(); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// Migrate creates or updates the storefront tables
func (ds *DatabaseStorage) Migrate() error {
	if err := ds.db.AutoMigrate(&Store{}, &Product{}, &Collection{}, &Cart{}, &ThemeConfig{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// GetStoreByCustomDomain returns the store whose active custom domain matches
func (ds *DatabaseStorage) GetStoreByCustomDomain(ctx context.Context, domain string) (*types.Store, error) {
	var model Store
	err := ds.db.WithContext(ctx).
		Where("LOWER(custom_domain) = ? AND custom_domain_status = ?", strings.ToLower(domain), string(types.DomainStatusActive)).
		First(&model).Error
	if err != nil {
		return nil, notFound(err, "store with custom domain %s", domain)
	}
	return storeFromModel(&model), nil
}

// GetStoreByDefaultDomain returns the store whose platform domain matches
func (ds *DatabaseStorage) GetStoreByDefaultDomain(ctx context.Context, domain string) (*types.Store, error) {
	var model Store
	err := ds.db.WithContext(ctx).
		Where("LOWER(domain) = ?", strings.ToLower(domain)).
		First(&model).Error
	if err != nil {
		return nil, notFound(err, "store with domain %s", domain)
	}
	return storeFromModel(&model), nil
}

// GetStore returns a store by ID
func (ds *DatabaseStorage) GetStore(ctx context.Context, storeID string) (*types.Store, error) {
	var model Store
	if err := ds.db.WithContext(ctx).Where("id = ?", storeID).First(&model).Error; err != nil {
		return nil, notFound(err, "store %s", storeID)
	}
	return storeFromModel(&model), nil
}

// SaveStore creates or replaces a store
func (ds *DatabaseStorage) SaveStore(ctx context.Context, store *types.Store) error {
	if store == nil {
		return fmt.Errorf("store cannot be nil")
	}
	if store.Domain == "" {
		return fmt.Errorf("store domain cannot be empty")
	}
	if store.ID == "" {
		store.ID = uuid.NewString()
	}

	model := storeToModel(store)
	if err := ds.db.WithContext(ctx).Save(model).Error; err != nil {
		return fmt.Errorf("failed to save store: %w", err)
	}
	store.CreatedAt = model.CreatedAt
	store.UpdatedAt = model.UpdatedAt
	return nil
}

// productOrder maps storefront sort keys to SQL ordering
func productOrder(sortBy string) string {
	switch sortBy {
	case "title-ascending":
		return "title ASC"
	case "title-descending":
		return "title DESC"
	case "price-ascending":
		return "price ASC"
	case "price-descending":
		return "price DESC"
	default:
		return "handle ASC"
	}
}

// ListProducts returns a page of a store's products and the total count
func (ds *DatabaseStorage) ListProducts(ctx context.Context, storeID string, opts types.ListOptions) ([]types.Product, int, error) {
	query := ds.db.WithContext(ctx).Model(&Product{}).Where("store_id = ?", storeID)
	if opts.CollectionID != "" {
		filter, err := toJSON([]string{opts.CollectionID})
		if err != nil {
			return nil, 0, err
		}
		query = query.Where("collection_ids @> ?", filter)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	var models []Product
	q := query.Session(&gorm.Session{}).Order(productOrder(opts.SortBy)).Offset(opts.Offset)
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}

	products, err := productsFromModels(models)
	if err != nil {
		return nil, 0, err
	}
	return products, int(total), nil
}

// GetProductByHandle returns a product by handle
func (ds *DatabaseStorage) GetProductByHandle(ctx context.Context, storeID, handle string) (*types.Product, error) {
	var model Product
	err := ds.db.WithContext(ctx).Where("store_id = ? AND handle = ?", storeID, handle).First(&model).Error
	if err != nil {
		return nil, notFound(err, "product %s", handle)
	}
	product, err := productFromModel(&model)
	if err != nil {
		return nil, fmt.Errorf("failed to decode product %s: %w", handle, err)
	}
	return &product, nil
}

// SaveProduct creates or replaces a product
func (ds *DatabaseStorage) SaveProduct(ctx context.Context, product *types.Product) error {
	if product == nil {
		return fmt.Errorf("product cannot be nil")
	}
	if product.StoreID == "" || product.Handle == "" {
		return fmt.Errorf("product store ID and handle are required")
	}
	if product.ID == "" {
		product.ID = uuid.NewString()
	}

	model, err := productToModel(product)
	if err != nil {
		return fmt.Errorf("failed to encode product: %w", err)
	}
	if err := ds.db.WithContext(ctx).Save(model).Error; err != nil {
		return fmt.Errorf("failed to save product: %w", err)
	}
	return nil
}

// ListCollections returns a page of a store's collections and the total count
func (ds *DatabaseStorage) ListCollections(ctx context.Context, storeID string, opts types.ListOptions) ([]types.Collection, int, error) {
	query := ds.db.WithContext(ctx).Model(&Collection{}).Where("store_id = ?", storeID)

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count collections: %w", err)
	}

	var models []Collection
	q := query.Session(&gorm.Session{}).Order("handle ASC").Offset(opts.Offset)
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list collections: %w", err)
	}

	collections := make([]types.Collection, 0, len(models))
	for i := range models {
		c, err := collectionFromModel(&models[i])
		if err != nil {
			return nil, 0, fmt.Errorf("failed to decode collection %s: %w", models[i].Handle, err)
		}
		collections = append(collections, c)
	}
	return collections, int(total), nil
}

// GetCollectionByHandle returns a collection by handle
func (ds *DatabaseStorage) GetCollectionByHandle(ctx context.Context, storeID, handle string) (*types.Collection, error) {
	var model Collection
	err := ds.db.WithContext(ctx).Where("store_id = ? AND handle = ?", storeID, handle).First(&model).Error
	if err != nil {
		return nil, notFound(err, "collection %s", handle)
	}
	collection, err := collectionFromModel(&model)
	if err != nil {
		return nil, fmt.Errorf("failed to decode collection %s: %w", handle, err)
	}
	return &collection, nil
}

// SaveCollection creates or replaces a collection
func (ds *DatabaseStorage) SaveCollection(ctx context.Context, collection *types.Collection) error {
	if collection == nil {
		return fmt.Errorf("collection cannot be nil")
	}
	if collection.StoreID == "" || collection.Handle == "" {
		return fmt.Errorf("collection store ID and handle are required")
	}
	if collection.ID == "" {
		collection.ID = uuid.NewString()
	}

	model, err := collectionToModel(collection)
	if err != nil {
		return fmt.Errorf("failed to encode collection: %w", err)
	}
	if err := ds.db.WithContext(ctx).Save(model).Error; err != nil {
		return fmt.Errorf("failed to save collection: %w", err)
	}
	return nil
}

// Search matches products and collections by title or description
func (ds *DatabaseStorage) Search(ctx context.Context, storeID, query string, opts types.SearchOptions) (*types.SearchResult, error) {
	result := &types.SearchResult{
		Query:       query,
		Products:    []types.Product{},
		Collections: []types.Collection{},
	}
	q := strings.TrimSpace(query)
	if q == "" {
		return result, nil
	}
	pattern := "%" + strings.ToLower(q) + "%"

	productQuery := ds.db.WithContext(ctx).Model(&Product{}).
		Where("store_id = ? AND (LOWER(title) LIKE ? OR LOWER(description) LIKE ?)", storeID, pattern, pattern)

	var productTotal int64
	if err := productQuery.Session(&gorm.Session{}).Count(&productTotal).Error; err != nil {
		return nil, fmt.Errorf("failed to count search results: %w", err)
	}

	var productModels []Product
	pq := productQuery.Session(&gorm.Session{}).Order("handle ASC").Offset(opts.Offset)
	if opts.Limit > 0 {
		pq = pq.Limit(opts.Limit)
	}
	if err := pq.Find(&productModels).Error; err != nil {
		return nil, fmt.Errorf("failed to search products: %w", err)
	}

	var collectionModels []Collection
	cq := ds.db.WithContext(ctx).
		Where("store_id = ? AND (LOWER(title) LIKE ? OR LOWER(description) LIKE ?)", storeID, pattern, pattern).
		Order("handle ASC")
	if opts.Limit > 0 {
		cq = cq.Limit(opts.Limit)
	}
	if err := cq.Find(&collectionModels).Error; err != nil {
		return nil, fmt.Errorf("failed to search collections: %w", err)
	}

	products, err := productsFromModels(productModels)
	if err != nil {
		return nil, err
	}
	result.Products = products
	for i := range collectionModels {
		c, err := collectionFromModel(&collectionModels[i])
		if err != nil {
			return nil, fmt.Errorf("failed to decode collection %s: %w", collectionModels[i].Handle, err)
		}
		result.Collections = append(result.Collections, c)
	}
	result.Total = int(productTotal) + len(result.Collections)
	return result, nil
}

// GetCart returns a cart by ID
func (ds *DatabaseStorage) GetCart(ctx context.Context, cartID string) (*types.Cart, error) {
	var model Cart
	if err := ds.db.WithContext(ctx).Where("id = ?", cartID).First(&model).Error; err != nil {
		return nil, notFound(err, "cart %s", cartID)
	}
	cart := &types.Cart{ID: model.ID, StoreID: model.StoreID, Items: []types.CartItem{}}
	if err := fromJSON(model.Items, &cart.Items); err != nil {
		return nil, fmt.Errorf("failed to decode cart %s: %w", cartID, err)
	}
	return cart, nil
}

// SaveCart creates or replaces a cart
func (ds *DatabaseStorage) SaveCart(ctx context.Context, cart *types.Cart) error {
	if cart == nil {
		return fmt.Errorf("cart cannot be nil")
	}
	if cart.ID == "" {
		cart.ID = uuid.NewString()
	}
	items := cart.Items
	if items == nil {
		items = []types.CartItem{}
	}
	data, err := toJSON(items)
	if err != nil {
		return fmt.Errorf("failed to encode cart: %w", err)
	}
	model := &Cart{ID: cart.ID, StoreID: cart.StoreID, Items: data, UpdatedAt: time.Now().UTC()}
	if err := ds.db.WithContext(ctx).Save(model).Error; err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	return nil
}

// GetThemeConfig returns the persisted section settings for a store's theme
func (ds *DatabaseStorage) GetThemeConfig(ctx context.Context, storeID, themeID string) (*types.ThemeConfig, error) {
	var model ThemeConfig
	err := ds.db.WithContext(ctx).Where("store_id = ? AND theme_id = ?", storeID, themeID).First(&model).Error
	if err != nil {
		return nil, notFound(err, "theme config for store %s", storeID)
	}

	cfg := &types.ThemeConfig{StoreID: model.StoreID, ThemeID: model.ThemeID}
	if err := fromJSON(model.Templates, &cfg.Templates); err != nil {
		return nil, fmt.Errorf("failed to decode theme templates: %w", err)
	}
	if err := fromJSON(model.Settings, &cfg.Settings); err != nil {
		return nil, fmt.Errorf("failed to decode theme settings: %w", err)
	}
	return cfg, nil
}

// SaveThemeConfig creates or replaces a store's theme settings
func (ds *DatabaseStorage) SaveThemeConfig(ctx context.Context, cfg *types.ThemeConfig) error {
	if cfg == nil || cfg.StoreID == "" {
		return fmt.Errorf("theme config store ID is required")
	}

	templates, err := toJSON(cfg.Templates)
	if err != nil {
		return fmt.Errorf("failed to encode theme templates: %w", err)
	}
	if templates == nil {
		templates = datatypes.JSON("{}")
	}
	settings, err := toJSON(cfg.Settings)
	if err != nil {
		return fmt.Errorf("failed to encode theme settings: %w", err)
	}

	return ds.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing ThemeConfig
		err := tx.Where("store_id = ? AND theme_id = ?", cfg.StoreID, cfg.ThemeID).First(&existing).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to load theme config: %w", err)
		}

		existing.StoreID = cfg.StoreID
		existing.ThemeID = cfg.ThemeID
		existing.Templates = templates
		existing.Settings = settings
		existing.UpdatedAt = time.Now().UTC()

		if err := tx.Save(&existing).Error; err != nil {
			return fmt.Errorf("failed to save theme config: %w", err)
		}
		return nil
	})
}

// Close closes the underlying connection pool
func (ds *DatabaseStorage) Close() error {
	sqlDB, err := ds.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// HealthCheck pings the database
func (ds *DatabaseStorage) HealthCheck(ctx context.Context) error {
	sqlDB, err := ds.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// GetStats returns storage statistics
func (ds *DatabaseStorage) GetStats(ctx context.Context) (StorageStats, error) {
	var stats StorageStats
	db := ds.db.WithContext(ctx)
	if err := db.Model(&Store{}).Count(&stats.Stores).Error; err != nil {
		return stats, fmt.Errorf("failed to count stores: %w", err)
	}
	if err := db.Model(&Product{}).Count(&stats.Products).Error; err != nil {
		return stats, fmt.Errorf("failed to count products: %w", err)
	}
	if err := db.Model(&Collection{}).Count(&stats.Collections).Error; err != nil {
		return stats, fmt.Errorf("failed to count collections: %w", err)
	}
	if err := db.Model(&Cart{}).Count(&stats.Carts).Error; err != nil {
		return stats, fmt.Errorf("failed to count carts: %w", err)
	}
	return stats, nil
}

func productsFromModels(models []Product) ([]types.Product, error) {
	products := make([]types.Product, 0, len(models))
	for i := range models {
		p, err := productFromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("failed to decode product %s: %w", models[i].Handle, err)
		}
		products = append(products, p)
	}
	return products, nil
}

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
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/storeforge/storefront/internal/config"
	"github.com/storeforge/storefront/internal/types"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	mock.ExpectPing()
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{})
	if err != nil {
		mockDB.Close()
		t.Fatalf("failed to open gorm DB: %v", err)
	}
	return gormDB, mock
}

var storeColumns = []string{
	"id", "name", "handle", "domain", "custom_domain", "custom_domain_status",
	"custom_domain_verified", "is_active", "description", "email", "phone",
	"currency", "logo_url", "theme_id",
}

func TestNewDatabaseStorage_WithOverride(t *testing.T) {
	gormDB, _ := newMockDB(t)
	ds, err := NewDatabaseStorage(config.DatabaseConfig{Driver: "postgres", DSN: "dsn"}, gormDB)
	if err != nil {
		t.Fatalf("NewDatabaseStorage failed: %v", err)
	}
	if ds.db != gormDB {
		t.Fatalf("expected db override to be used")
	}
}

func TestGetStoreByCustomDomain_Success(t *testing.T) {
	gormDB, mock := newMockDB(t)
	sqlDB, _ := gormDB.DB()
	defer sqlDB.Close()
	storage := &DatabaseStorage{db: gormDB}

	rows := sqlmock.NewRows(storeColumns).AddRow(
		"s1", "Acme", "acme", "acme.myshop.local", "shop.acme.com", "active",
		true, true, "Tools", "hi@acme.com", "", "USD", "", "dawn",
	)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "stores" WHERE LOWER(custom_domain) = $1 AND custom_domain_status = $2`)).
		WillReturnRows(rows)

	store, err := storage.GetStoreByCustomDomain(context.Background(), "Shop.Acme.com")
	if err != nil {
		t.Fatalf("GetStoreByCustomDomain failed: %v", err)
	}
	if store.ID != "s1" || store.CustomDomain != "shop.acme.com" || !store.HasActiveCustomDomain() {
		t.Errorf("Unexpected store %+v", store)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetStoreByDefaultDomain_NotFound(t *testing.T) {
	gormDB, mock := newMockDB(t)
	sqlDB, _ := gormDB.DB()
	defer sqlDB.Close()
	storage := &DatabaseStorage{db: gormDB}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "stores" WHERE LOWER(domain) = $1`)).
		WillReturnError(gorm.ErrRecordNotFound)

	_, err := storage.GetStoreByDefaultDomain(context.Background(), "missing.myshop.local")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestGetStoreByDefaultDomain_BackendError(t *testing.T) {
	gormDB, mock := newMockDB(t)
	sqlDB, _ := gormDB.DB()
	defer sqlDB.Close()
	storage := &DatabaseStorage{db: gormDB}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "stores"`)).
		WillReturnError(errors.New("connection reset by peer"))

	_, err := storage.GetStoreByDefaultDomain(context.Background(), "acme.myshop.local")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Expected backend error distinct from ErrNotFound, got %v", err)
	}
}

func TestListProducts_WithCollection(t *testing.T) {
	gormDB, mock := newMockDB(t)
	sqlDB, _ := gormDB.DB()
	defer sqlDB.Close()
	storage := &DatabaseStorage{db: gormDB}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "products" WHERE store_id = $1 AND collection_ids @> $2`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "products" WHERE store_id = $1 AND collection_ids @> $2 ORDER BY price ASC`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "store_id", "handle", "title", "price", "available", "images", "tags", "collection_ids"}).
			AddRow("p2", "s1", "red-shirt", "Red Shirt", 15.0, true, []byte(`["red.png"]`), []byte(`[]`), []byte(`["c1"]`)).
			AddRow("p1", "s1", "blue-shirt", "Blue Shirt", 20.0, true, []byte(`[]`), []byte(`["summer"]`), []byte(`["c1"]`)))

	products, total, err := storage.ListProducts(context.Background(), "s1", types.ListOptions{
		Limit:        12,
		CollectionID: "c1",
		SortBy:       "price-ascending",
	})
	if err != nil {
		t.Fatalf("ListProducts failed: %v", err)
	}
	if total != 2 || len(products) != 2 {
		t.Fatalf("Expected 2 products, got %d (total %d)", len(products), total)
	}
	if products[0].FeaturedImage() != "red.png" {
		t.Errorf("Expected decoded images, got %v", products[0].Images)
	}
	if len(products[1].Tags) != 1 || products[1].Tags[0] != "summer" {
		t.Errorf("Expected decoded tags, got %v", products[1].Tags)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetCart_Success(t *testing.T) {
	gormDB, mock := newMockDB(t)
	sqlDB, _ := gormDB.DB()
	defer sqlDB.Close()
	storage := &DatabaseStorage{db: gormDB}

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "carts" WHERE id = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "store_id", "items"}).
			AddRow("cart-1", "s1", []byte(`[{"product_id":"p1","title":"Hat","quantity":3,"price":10}]`)))

	cart, err := storage.GetCart(context.Background(), "cart-1")
	if err != nil {
		t.Fatalf("GetCart failed: %v", err)
	}
	if cart.ItemCount() != 3 || cart.Total() != 30 {
		t.Errorf("Unexpected cart %+v", cart)
	}
}

func TestGetThemeConfig_Success(t *testing.T) {
	gormDB, mock := newMockDB(t)
	sqlDB, _ := gormDB.DB()
	defer sqlDB.Close()
	storage := &DatabaseStorage{db: gormDB}

	templates := `{"collection":{"sections":{"main":{"type":"main-collection","settings":{"products_per_page":24}}},"order":["main"]}}`
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "theme_configs" WHERE store_id = $1 AND theme_id = $2`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "store_id", "theme_id", "templates", "settings"}).
			AddRow(1, "s1", "dawn", []byte(templates), []byte(`{}`)))

	cfg, err := storage.GetThemeConfig(context.Background(), "s1", "dawn")
	if err != nil {
		t.Fatalf("GetThemeConfig failed: %v", err)
	}
	main, ok := cfg.Section("collection", "main")
	if !ok {
		t.Fatal("Expected main section")
	}
	if main.Settings["products_per_page"] != float64(24) {
		t.Errorf("Expected products_per_page 24, got %v", main.Settings["products_per_page"])
	}
}

func TestSaveStore_Validation(t *testing.T) {
	gormDB, _ := newMockDB(t)
	sqlDB, _ := gormDB.DB()
	defer sqlDB.Close()
	storage := &DatabaseStorage{db: gormDB}

	if err := storage.SaveStore(context.Background(), nil); err == nil || err.Error() != "store cannot be nil" {
		t.Errorf("Expected store cannot be nil error, got %v", err)
	}
	if err := storage.SaveStore(context.Background(), &types.Store{}); err == nil || err.Error() != "store domain cannot be empty" {
		t.Errorf("Expected store domain cannot be empty error, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	gormDB, mock := newMockDB(t)
	sqlDB, _ := gormDB.DB()
	defer sqlDB.Close()
	storage := &DatabaseStorage{db: gormDB}

	mock.ExpectPing()
	if err := storage.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

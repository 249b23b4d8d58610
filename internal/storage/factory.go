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
	"strings"

	"github.com/storeforge/storefront/internal/config"
)

// NewStorage creates a new storage instance based on the configuration
func NewStorage(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	storageType := strings.ToLower(cfg.Type)
	if storageType == "" {
		storageType = "memory" // Default to memory storage
	}

	var store Storage
	switch storageType {
	case "memory":
		store = NewMemoryStorage()

	case "database":
		ds, err := NewDatabaseStorage(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to open database storage: %w", err)
		}
		store = ds

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}

	if cfg.SeedFile != "" {
		if err := LoadSeedFile(ctx, store, cfg.SeedFile); err != nil {
			store.Close()
			return nil, err
		}
	}

	return store, nil
}

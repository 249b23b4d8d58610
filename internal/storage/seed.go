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
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/storeforge/storefront/internal/types"
)

// Seed is a bulk fixture of storefront records
type Seed struct {
	Stores       []types.Store       `json:"stores"`
	Products     []types.Product     `json:"products"`
	Collections  []types.Collection  `json:"collections"`
	Carts        []types.Cart        `json:"carts"`
	ThemeConfigs []types.ThemeConfig `json:"theme_configs"`
}

// ParseSeed decodes a YAML or JSON seed document. Field names follow the
// JSON names of the storefront types.
func ParseSeed(data []byte) (*Seed, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize seed: %w", err)
	}

	var seed Seed
	if err := json.Unmarshal(encoded, &seed); err != nil {
		return nil, fmt.Errorf("failed to decode seed: %w", err)
	}
	return &seed, nil
}

// LoadSeedFile reads a seed file and applies it to store
func LoadSeedFile(ctx context.Context, store Storage, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	seed, err := ParseSeed(data)
	if err != nil {
		return fmt.Errorf("seed file %s: %w", path, err)
	}
	return ApplySeed(ctx, store, seed)
}

// ApplySeed saves every record of the seed
func ApplySeed(ctx context.Context, store Storage, seed *Seed) error {
	for i := range seed.Stores {
		if err := store.SaveStore(ctx, &seed.Stores[i]); err != nil {
			return fmt.Errorf("failed to seed store %s: %w", seed.Stores[i].Domain, err)
		}
	}
	for i := range seed.Collections {
		if err := store.SaveCollection(ctx, &seed.Collections[i]); err != nil {
			return fmt.Errorf("failed to seed collection %s: %w", seed.Collections[i].Handle, err)
		}
	}
	for i := range seed.Products {
		if err := store.SaveProduct(ctx, &seed.Products[i]); err != nil {
			return fmt.Errorf("failed to seed product %s: %w", seed.Products[i].Handle, err)
		}
	}
	for i := range seed.Carts {
		if err := store.SaveCart(ctx, &seed.Carts[i]); err != nil {
			return fmt.Errorf("failed to seed cart %s: %w", seed.Carts[i].ID, err)
		}
	}
	for i := range seed.ThemeConfigs {
		if err := store.SaveThemeConfig(ctx, &seed.ThemeConfigs[i]); err != nil {
			return fmt.Errorf("failed to seed theme config for %s: %w", seed.ThemeConfigs[i].StoreID, err)
		}
	}
	return nil
}

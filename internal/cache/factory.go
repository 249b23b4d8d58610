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

package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/storeforge/storefront/internal/config"
)

// New creates a cache backend from configuration
func New(ctx context.Context, cfg config.CacheConfig, recorder Recorder) (Cache, error) {
	switch cfg.Type {
	case "memory", "":
		return NewMemoryCache(MemoryConfig{
			DefaultTTL:      cfg.DataTTL,
			MaxSize:         cfg.MaxSize,
			CleanupInterval: cfg.CleanupInterval,
			Recorder:        recorder,
		}), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Address, err)
		}
		return NewRedisCache(client, cfg.Redis.KeyPrefix, cfg.DataTTL, recorder), nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// Close stops background work held by a cache backend
func Close(c Cache) error {
	switch b := c.(type) {
	case *MemoryCache:
		b.Stop()
	case *RedisCache:
		return b.Close()
	}
	return nil
}

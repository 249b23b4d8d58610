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
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryConfig holds configuration for the in-memory backend
type MemoryConfig struct {
	DefaultTTL      time.Duration
	MaxSize         int
	CleanupInterval time.Duration
	Clock           Clock
	Recorder        Recorder
}

// entry represents a cached value with metadata
type entry struct {
	data        []byte
	expiresAt   time.Time
	createdAt   time.Time
	accessCount int64
}

func (e *entry) isExpired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// MemoryCache implements Cache using process-local storage
type MemoryCache struct {
	entries         map[string]*entry
	mu              sync.Mutex
	defaultTTL      time.Duration
	maxSize         int
	cleanupInterval time.Duration
	clock           Clock
	recorder        Recorder
	hits            int64
	misses          int64
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewMemoryCache creates a new in-memory cache. A negative cleanup interval
// disables the background cleanup goroutine.
func NewMemoryCache(config MemoryConfig) *MemoryCache {
	defaultTTL := config.DefaultTTL
	if defaultTTL == 0 {
		defaultTTL = 5 * time.Minute
	}

	maxSize := config.MaxSize
	if maxSize == 0 {
		maxSize = 10000
	}

	cleanupInterval := config.CleanupInterval
	if cleanupInterval == 0 {
		cleanupInterval = time.Minute
	}

	clock := config.Clock
	if clock == nil {
		clock = SystemClock()
	}

	c := &MemoryCache{
		entries:         make(map[string]*entry),
		defaultTTL:      defaultTTL,
		maxSize:         maxSize,
		cleanupInterval: cleanupInterval,
		clock:           clock,
		recorder:        config.Recorder,
		stopCleanup:     make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go c.cleanupLoop()
	}

	return c
}

// Get retrieves a value from cache
func (c *MemoryCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	e, exists := c.entries[key]
	if exists && e.isExpired(c.clock.Now()) {
		delete(c.entries, key)
		exists = false
	}
	if !exists {
		c.misses++
		c.mu.Unlock()
		c.record(key, false)
		return false, nil
	}
	e.accessCount++
	c.hits++
	data := e.data
	c.mu.Unlock()

	c.record(key, true)
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to decode cache entry %s: %w", key, err)
	}
	return true, nil
}

// Set stores a value in cache with TTL
func (c *MemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}

	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictLRU()
	}

	now := c.clock.Now()
	c.entries[key] = &entry{
		data:      data,
		expiresAt: now.Add(ttl),
		createdAt: now,
	}
	return nil
}

// Invalidate removes a value from cache
func (c *MemoryCache) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	return nil
}

// TTL returns the remaining lifetime of key, or zero when absent
func (c *MemoryCache) TTL(key string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.entries[key]
	if !exists {
		return 0
	}
	remaining := e.expiresAt.Sub(c.clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Clear removes every entry
func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry)
	return nil
}

func (c *MemoryCache) record(key string, hit bool) {
	if c.recorder != nil {
		c.recorder.RecordCacheLookup(Namespace(key), hit)
	}
}

// evictLRU evicts the least used entry, oldest first on ties
func (c *MemoryCache) evictLRU() {
	var oldestKey string
	var oldestTime time.Time
	var lowestAccess int64 = -1

	for key, e := range c.entries {
		if lowestAccess == -1 || e.accessCount < lowestAccess ||
			(e.accessCount == lowestAccess && e.createdAt.Before(oldestTime)) {
			oldestKey = key
			oldestTime = e.createdAt
			lowestAccess = e.accessCount
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// cleanupLoop periodically removes expired entries
func (c *MemoryCache) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCleanup:
			return
		}
	}
}

// cleanup removes expired entries
func (c *MemoryCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	for key, e := range c.entries {
		if e.isExpired(now) {
			delete(c.entries, key)
		}
	}
}

// Stop stops the cleanup goroutine
func (c *MemoryCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCleanup) })
}

// GetStats returns cache statistics
func (c *MemoryCache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	expired := 0
	now := c.clock.Now()
	for _, e := range c.entries {
		if e.isExpired(now) {
			expired++
		}
	}

	return Stats{
		Size:    len(c.entries),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
		Expired: expired,
	}
}

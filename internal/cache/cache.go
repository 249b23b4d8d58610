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
	"strings"
	"sync"
	"time"
)

// KeyPrefix is the root of every cache key
const KeyPrefix = "storefront"

// Namespaces used across the engine
const (
	NamespaceDomain      = "domain"
	NamespaceSearch      = "search"
	NamespaceProducts    = "products"
	NamespaceCollections = "collections"
	NamespaceCart        = "cart"
	NamespaceSection     = "section"
	NamespaceDNS         = "dns"
)

// Cache is a namespaced key-value store with expiry. Values are encoded so
// callers always receive their own copy.
type Cache interface {
	// Get decodes the entry stored under key into dest. It returns false
	// when the key is absent or expired.
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	// Set stores value under key for ttl. A zero ttl uses the backend default.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Invalidate removes key.
	Invalidate(ctx context.Context, key string) error
}

// Recorder receives cache lookup outcomes
type Recorder interface {
	RecordCacheLookup(namespace string, hit bool)
}

// Clock supplies the current time
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now
func SystemClock() Clock { return systemClock{} }

// FakeClock is a manually advanced Clock
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a FakeClock starting at start
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the fake current time
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Key builds a namespaced cache key: storefront:{namespace}:{parts...}
func Key(namespace string, parts ...string) string {
	var b strings.Builder
	b.WriteString(KeyPrefix)
	b.WriteByte(':')
	b.WriteString(namespace)
	for _, part := range parts {
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

// Namespace extracts the namespace segment of a key built by Key
func Namespace(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 2 || parts[0] != KeyPrefix {
		return "unknown"
	}
	return parts[1]
}

// Stats represents cache statistics
type Stats struct {
	Size    int   `json:"size"`
	MaxSize int   `json:"max_size"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Expired int   `json:"expired"`
}

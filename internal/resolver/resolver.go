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

// Package resolver maps inbound host names to stores through a cache that
// also remembers misses.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/storeforge/storefront/internal/cache"
	"github.com/storeforge/storefront/internal/config"
	sferrors "github.com/storeforge/storefront/internal/errors"
	"github.com/storeforge/storefront/internal/logging"
	"github.com/storeforge/storefront/internal/storage"
	"github.com/storeforge/storefront/internal/types"
)

// Source names which lookup matched a domain
type Source string

const (
	SourceCustomDomain  Source = "custom_domain"
	SourceDefaultDomain Source = "default_domain"
	SourceNone          Source = "none"
)

// entry is the cached outcome of a lookup. A miss is stored explicitly with
// Found false.
type entry struct {
	Found  bool         `json:"found"`
	Source Source       `json:"source"`
	Store  *types.Store `json:"store,omitempty"`
}

// Resolution describes how a domain resolved
type Resolution struct {
	Domain   string       `json:"domain"`
	Store    *types.Store `json:"store,omitempty"`
	Source   Source       `json:"source"`
	CacheHit bool         `json:"cache_hit"`
}

// Resolver resolves domains to stores
type Resolver struct {
	lookup      storage.StoreLookup
	cache       cache.Cache
	positiveTTL time.Duration
	negativeTTL time.Duration
	flight      singleflight.Group
	logger      *logging.Logger
}

// New creates a resolver. The negative TTL must be shorter than the positive
// one so deleted stores stop resolving quickly.
func New(lookup storage.StoreLookup, c cache.Cache, cfg config.CacheConfig, logger *logging.Logger) (*Resolver, error) {
	if lookup == nil {
		return nil, errors.New("store lookup is required")
	}
	if c == nil {
		return nil, errors.New("cache is required")
	}
	if cfg.NegativeTTL <= 0 || cfg.DomainTTL <= 0 {
		return nil, fmt.Errorf("domain TTLs must be positive (positive %s, negative %s)", cfg.DomainTTL, cfg.NegativeTTL)
	}
	if cfg.NegativeTTL >= cfg.DomainTTL {
		return nil, fmt.Errorf("negative TTL %s must be shorter than domain TTL %s", cfg.NegativeTTL, cfg.DomainTTL)
	}
	return &Resolver{
		lookup:      lookup,
		cache:       c,
		positiveTTL: cfg.DomainTTL,
		negativeTTL: cfg.NegativeTTL,
		logger:      logger.WithComponent("resolver"),
	}, nil
}

// CacheKey returns the cache key of a domain
func CacheKey(domain string) string {
	return cache.Key(cache.NamespaceDomain, types.NormalizeDomain(domain))
}

// ResolveDomain returns the store serving domain, or nil when none does.
// Backend failures are returned and never cached.
func (r *Resolver) ResolveDomain(ctx context.Context, domain string) (*types.Store, error) {
	res, err := r.Resolve(ctx, domain)
	if err != nil {
		return nil, err
	}
	return res.Store, nil
}

// Resolve is ResolveDomain with resolution details
func (r *Resolver) Resolve(ctx context.Context, domain string) (*Resolution, error) {
	normalized := types.NormalizeDomain(domain)
	if normalized == "" {
		return &Resolution{Source: SourceNone}, nil
	}
	key := CacheKey(normalized)
	logger := r.logger.WithField("domain", normalized)

	var cached entry
	hit, err := r.cache.Get(ctx, key, &cached)
	if err != nil {
		logger.Warnf("Domain cache read failed, resolving from storage: %v", err)
	}
	if hit {
		return &Resolution{Domain: normalized, Store: cached.Store, Source: cached.Source, CacheHit: true}, nil
	}

	// shared by every waiter; it outlives the caller that started it
	shared := context.WithoutCancel(ctx)
	v, err, _ := r.flight.Do(key, func() (interface{}, error) {
		return r.fetch(shared, normalized)
	})
	if err != nil {
		return nil, err
	}
	e := v.(entry)

	ttl := r.positiveTTL
	if !e.Found {
		ttl = r.negativeTTL
	}
	if err := r.cache.Set(ctx, key, e, ttl); err != nil {
		logger.Warnf("Domain cache write failed: %v", err)
	}
	logger.WithFields(map[string]interface{}{
		"found":  e.Found,
		"source": string(e.Source),
	}).Debug("Domain resolved from storage")

	return &Resolution{Domain: normalized, Store: e.Store, Source: e.Source}, nil
}

// fetch tries the custom domain registration first, then default domains
func (r *Resolver) fetch(ctx context.Context, domain string) (entry, error) {
	store, err := r.lookup.GetStoreByCustomDomain(ctx, domain)
	switch {
	case err == nil:
		return entry{Found: true, Source: SourceCustomDomain, Store: store}, nil
	case !errors.Is(err, storage.ErrNotFound):
		return entry{}, fmt.Errorf("custom domain lookup for %s: %w", domain, err)
	}

	store, err = r.lookup.GetStoreByDefaultDomain(ctx, domain)
	switch {
	case err == nil:
		return entry{Found: true, Source: SourceDefaultDomain, Store: store}, nil
	case !errors.Is(err, storage.ErrNotFound):
		return entry{}, fmt.Errorf("default domain lookup for %s: %w", domain, err)
	}
	return entry{Found: false, Source: SourceNone}, nil
}

// ResolveStoreByDomain returns the active store serving domain. A missing
// store is STORE_NOT_FOUND and an inactive one STORE_NOT_ACTIVE, both terminal.
func (r *Resolver) ResolveStoreByDomain(ctx context.Context, domain string) (*types.Store, error) {
	store, err := r.ResolveDomain(ctx, domain)
	if err != nil {
		return nil, sferrors.Wrap(sferrors.ErrServiceUnavailable, "store lookup failed", err)
	}
	if store == nil {
		return nil, sferrors.NewStoreNotFoundError(types.NormalizeDomain(domain))
	}
	if !store.IsActive {
		return nil, sferrors.NewStoreNotActiveError(store.ID)
	}
	return store, nil
}

// InvalidateCache drops the cached resolution of a domain
func (r *Resolver) InvalidateCache(ctx context.Context, domain string) error {
	if err := r.cache.Invalidate(ctx, CacheKey(domain)); err != nil {
		return fmt.Errorf("failed to invalidate %s: %w", domain, err)
	}
	r.logger.WithField("domain", types.NormalizeDomain(domain)).Info("Domain cache invalidated")
	return nil
}

// TTLs returns the positive and negative cache lifetimes
func (r *Resolver) TTLs() (positive, negative time.Duration) {
	return r.positiveTTL, r.negativeTTL
}

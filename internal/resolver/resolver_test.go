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

package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/storeforge/storefront/internal/cache"
	"github.com/storeforge/storefront/internal/config"
	sferrors "github.com/storeforge/storefront/internal/errors"
	"github.com/storeforge/storefront/internal/logging"
	"github.com/storeforge/storefront/internal/storage"
	"github.com/storeforge/storefront/internal/types"
)

// fakeLookup is a storage.StoreLookup that counts calls
type fakeLookup struct {
	mu           sync.Mutex
	customCalls  int
	defaultCalls int
	byCustom     map[string]*types.Store
	byDefault    map[string]*types.Store
	err          error
	// honorCancel makes lookups fail once their context is done
	honorCancel bool
}

func newFakeLookup() *fakeLookup {
	acme := &types.Store{
		ID:                   "acme",
		Name:                 "Acme",
		Domain:               "acme.myshop.local",
		CustomDomain:         "shop.acme.com",
		CustomDomainStatus:   types.DomainStatusActive,
		CustomDomainVerified: true,
		IsActive:             true,
	}
	closed := &types.Store{ID: "closed", Name: "Closed", Domain: "closed.myshop.local", IsActive: false}
	return &fakeLookup{
		byCustom:  map[string]*types.Store{"shop.acme.com": acme},
		byDefault: map[string]*types.Store{"acme.myshop.local": acme, "closed.myshop.local": closed},
	}
}

func (f *fakeLookup) GetStoreByCustomDomain(ctx context.Context, domain string) (*types.Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customCalls++
	if f.honorCancel && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	if s, ok := f.byCustom[domain]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("store with custom domain %s: %w", domain, storage.ErrNotFound)
}

func (f *fakeLookup) GetStoreByDefaultDomain(ctx context.Context, domain string) (*types.Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defaultCalls++
	if f.honorCancel && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if s, ok := f.byDefault[domain]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("store with domain %s: %w", domain, storage.ErrNotFound)
}

func (f *fakeLookup) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.customCalls + f.defaultCalls
}

type fixture struct {
	resolver *Resolver
	lookup   *fakeLookup
	cache    *cache.MemoryCache
	clock    *cache.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := cache.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	mc := cache.NewMemoryCache(cache.MemoryConfig{Clock: clock, CleanupInterval: -1})
	t.Cleanup(mc.Stop)
	lookup := newFakeLookup()

	r, err := New(lookup, mc, config.Default().Cache, logging.NewNopLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &fixture{resolver: r, lookup: lookup, cache: mc, clock: clock}
}

func TestResolveDomain_Sources(t *testing.T) {
	tests := []struct {
		name       string
		domain     string
		wantStore  string
		wantSource Source
	}{
		{name: "custom domain", domain: "shop.acme.com", wantStore: "acme", wantSource: SourceCustomDomain},
		{name: "default domain", domain: "acme.myshop.local", wantStore: "acme", wantSource: SourceDefaultDomain},
		{name: "normalized host", domain: "ACME.myshop.local:8080", wantStore: "acme", wantSource: SourceDefaultDomain},
		{name: "unknown", domain: "nobody.example.com", wantSource: SourceNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			res, err := f.resolver.Resolve(context.Background(), tt.domain)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			gotStore := ""
			if res.Store != nil {
				gotStore = res.Store.ID
			}
			if gotStore != tt.wantStore || res.Source != tt.wantSource {
				t.Errorf("Resolve() = (%q, %s), want (%q, %s)", gotStore, res.Source, tt.wantStore, tt.wantSource)
			}
		})
	}
}

func TestResolveDomain_CachedWithinTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		store, err := f.resolver.ResolveDomain(ctx, "acme.myshop.local")
		if err != nil || store == nil {
			t.Fatalf("ResolveDomain() = %v, %v", store, err)
		}
	}
	// custom lookup misses, default lookup hits: two backend calls in total
	if got := f.lookup.calls(); got != 2 {
		t.Errorf("backend calls = %d, want 2", got)
	}

	res, err := f.resolver.Resolve(ctx, "acme.myshop.local")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !res.CacheHit {
		t.Error("expected cache hit")
	}
}

func TestResolveDomain_NegativeExpiresFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.resolver.ResolveDomain(ctx, "acme.myshop.local"); err != nil {
		t.Fatal(err)
	}
	if store, err := f.resolver.ResolveDomain(ctx, "ghost.myshop.local"); err != nil || store != nil {
		t.Fatalf("ResolveDomain(ghost) = %v, %v", store, err)
	}

	positive := f.cache.TTL(CacheKey("acme.myshop.local"))
	negative := f.cache.TTL(CacheKey("ghost.myshop.local"))
	if negative <= 0 || negative >= positive {
		t.Fatalf("negative TTL %s should be positive and below positive TTL %s", negative, positive)
	}

	before := f.lookup.calls()
	f.clock.Advance(negative + time.Second)

	f.resolver.ResolveDomain(ctx, "acme.myshop.local")
	if got := f.lookup.calls(); got != before {
		t.Errorf("positive entry refetched after %s", negative)
	}
	f.resolver.ResolveDomain(ctx, "ghost.myshop.local")
	if got := f.lookup.calls(); got != before+2 {
		t.Errorf("negative entry not refetched: calls %d, want %d", got, before+2)
	}

	f.clock.Advance(positive)
	f.resolver.ResolveDomain(ctx, "acme.myshop.local")
	if got := f.lookup.calls(); got != before+4 {
		t.Errorf("positive entry not refetched after expiry: calls %d, want %d", got, before+4)
	}
}

func TestResolveDomain_BackendErrorNotCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.lookup.err = errors.New("connection reset")

	if _, err := f.resolver.ResolveDomain(ctx, "shop.acme.com"); err == nil {
		t.Fatal("expected backend error")
	}
	f.lookup.err = nil
	store, err := f.resolver.ResolveDomain(ctx, "shop.acme.com")
	if err != nil || store == nil || store.ID != "acme" {
		t.Fatalf("ResolveDomain() after recovery = %v, %v", store, err)
	}
}

func TestResolveDomain_SharedFetchOutlivesCaller(t *testing.T) {
	f := newFixture(t)
	f.lookup.honorCancel = true
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store, err := f.resolver.ResolveDomain(ctx, "shop.acme.com")
	if err != nil || store == nil || store.ID != "acme" {
		t.Fatalf("ResolveDomain() with cancelled caller = %v, %v", store, err)
	}

	store, err = f.resolver.ResolveDomain(context.Background(), "shop.acme.com")
	if err != nil || store == nil || store.ID != "acme" {
		t.Fatalf("ResolveDomain() after cancelled caller = %v, %v", store, err)
	}
	if f.lookup.calls() != 1 {
		t.Errorf("expected the second call to hit the cache, got %d lookups", f.lookup.calls())
	}
}

func TestResolveStoreByDomain(t *testing.T) {
	tests := []struct {
		name       string
		domain     string
		wantCode   sferrors.ErrorCode
		wantStatus int
	}{
		{name: "active", domain: "shop.acme.com"},
		{name: "not found", domain: "ghost.example.com", wantCode: sferrors.ErrStoreNotFound, wantStatus: http.StatusNotFound},
		{name: "inactive", domain: "closed.myshop.local", wantCode: sferrors.ErrStoreNotActive, wantStatus: http.StatusPaymentRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			store, err := f.resolver.ResolveStoreByDomain(context.Background(), tt.domain)
			if tt.wantCode == "" {
				if err != nil || store == nil {
					t.Fatalf("ResolveStoreByDomain() = %v, %v", store, err)
				}
				return
			}
			sfErr, ok := sferrors.AsStorefrontError(err)
			if !ok {
				t.Fatalf("error = %v, want StorefrontError", err)
			}
			if sfErr.Code != tt.wantCode || sfErr.GetHTTPStatus() != tt.wantStatus {
				t.Errorf("error = %s/%d, want %s/%d", sfErr.Code, sfErr.GetHTTPStatus(), tt.wantCode, tt.wantStatus)
			}
			if !sfErr.IsTerminal() {
				t.Error("tenant resolution failures must be terminal")
			}
		})
	}
}

func TestInvalidateCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.resolver.ResolveDomain(ctx, "shop.acme.com")
	before := f.lookup.calls()
	if err := f.resolver.InvalidateCache(ctx, "SHOP.acme.com"); err != nil {
		t.Fatalf("InvalidateCache() error = %v", err)
	}
	f.resolver.ResolveDomain(ctx, "shop.acme.com")
	if got := f.lookup.calls(); got != before+1 {
		t.Errorf("calls = %d, want %d after invalidation", got, before+1)
	}
}

func TestNew_RejectsInvertedTTLs(t *testing.T) {
	cfg := config.Default().Cache
	cfg.NegativeTTL = cfg.DomainTTL
	mc := cache.NewMemoryCache(cache.MemoryConfig{CleanupInterval: -1})
	defer mc.Stop()
	if _, err := New(newFakeLookup(), mc, cfg, logging.NewNopLogger()); err == nil {
		t.Error("expected error for negative TTL >= positive TTL")
	}
}

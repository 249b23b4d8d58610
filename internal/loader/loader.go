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

// Package loader fetches exactly the backend data a TemplateAnalysis asks for
// and assembles the render context of a page.
package loader

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/storeforge/storefront/internal/analysis"
	"github.com/storeforge/storefront/internal/cache"
	"github.com/storeforge/storefront/internal/config"
	sferrors "github.com/storeforge/storefront/internal/errors"
	"github.com/storeforge/storefront/internal/logging"
	"github.com/storeforge/storefront/internal/storage"
	"github.com/storeforge/storefront/internal/types"
)

// ErrHandleNotFound reports that the product or collection a page is about
// does not exist
var ErrHandleNotFound = errors.New("page resource not found")

// Request describes the page whose data is being loaded
type Request struct {
	Store    *types.Store
	Page     types.PageOptions
	Query    types.QueryParams
	Analysis *analysis.TemplateAnalysis
}

// Data is everything fetched for one page
type Data struct {
	Products          []types.Product            `json:"products"`
	Collections       []types.Collection         `json:"collections"`
	Product           *types.Product             `json:"product,omitempty"`
	Collection        *types.Collection          `json:"collection,omitempty"`
	Cart              *types.Cart                `json:"cart,omitempty"`
	Pagination        *types.Pagination          `json:"pagination,omitempty"`
	SearchProducts    []types.Product            `json:"search_products"`
	SearchCollections []types.Collection         `json:"search_collections"`
	Analysis          *analysis.TemplateAnalysis `json:"-"`
	// Context holds the template variables built from the fetched data
	Context map[string]interface{} `json:"context"`
	// Missing is set when the page's product or collection handle is unknown
	Missing bool `json:"missing"`
}

// Fallback is the degraded result used when loading fails
func Fallback(page types.PageOptions) *Data {
	return &Data{
		Products:          []types.Product{},
		Collections:       []types.Collection{},
		SearchProducts:    []types.Product{},
		SearchCollections: []types.Collection{},
		Analysis:          analysis.Empty(),
		Context: map[string]interface{}{
			"page_type":  string(page.Type),
			"page_title": FallbackTitle(page.Type),
		},
	}
}

// FallbackTitle turns a page type into a display title
func FallbackTitle(pageType types.PageType) string {
	name := strings.ReplaceAll(string(pageType), "-", " ")
	if pageType == types.PageHome {
		name = "home"
	}
	return cases.Title(language.English).String(name)
}

// listing is a cached page of products or collections
type listing[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

// Loader fetches page data through the cache
type Loader struct {
	catalog storage.Catalog
	cache   cache.Cache
	render  config.RenderConfig
	ttl     config.CacheConfig
	logger  *logging.Logger
}

// New creates a loader. A nil cache disables caching.
func New(catalog storage.Catalog, c cache.Cache, renderCfg config.RenderConfig, cacheCfg config.CacheConfig, logger *logging.Logger) *Loader {
	return &Loader{
		catalog: catalog,
		cache:   c,
		render:  renderCfg,
		ttl:     cacheCfg,
		logger:  logger.WithComponent("loader"),
	}
}

// Load runs the core and search fetches concurrently. A failing fetch falls
// back on its own without blocking the other; the result is never terminal.
func (l *Loader) Load(ctx context.Context, req Request) sferrors.Result[*Data] {
	if req.Store == nil {
		return sferrors.Recovered(Fallback(req.Page), errors.New("no store to load data for"))
	}
	if req.Analysis == nil {
		req.Analysis = analysis.Empty()
	}
	logger := l.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"store_id":  req.Store.ID,
		"page_type": string(req.Page.Type),
	})
	start := time.Now()

	var (
		core      *Data
		found     *types.SearchResult
		g         errgroup.Group
		coreErr   error
		searchErr error
	)

	g.Go(func() error {
		coreErr = guard(func() error {
			var err error
			core, err = l.loadCore(ctx, req)
			return err
		})
		return coreErr
	})
	if l.wantsSearch(req) {
		g.Go(func() error {
			searchErr = guard(func() error {
				var err error
				found, err = l.loadSearch(ctx, req)
				return err
			})
			return searchErr
		})
	}
	_ = g.Wait()

	var degraded error
	switch {
	case coreErr == nil:
	case errors.Is(coreErr, ErrHandleNotFound):
		logger.Debugf("Page resource not found: %v", coreErr)
		core.Missing = true
	default:
		logger.Warnf("Core data fetch failed, using fallback data: %v", coreErr)
		core = Fallback(req.Page)
		degraded = sferrors.NewDataError("core data fetch failed", coreErr)
	}
	core.Analysis = req.Analysis

	if searchErr != nil {
		logger.Warnf("Search fetch failed, continuing without results: %v", searchErr)
		degraded = errors.Join(degraded, sferrors.NewDataError("search fetch failed", searchErr))
	} else if found != nil {
		l.spliceSearch(core, req, found)
	}

	logger.WithField("duration_ms", time.Since(start).Milliseconds()).Debug("Dynamic data loaded")
	if degraded != nil {
		return sferrors.Recovered(core, degraded)
	}
	return sferrors.OK(core)
}

// guard converts a panic into an error
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during data load: %v\n%s", r, debug.Stack())
		}
	}()
	return fn()
}

func (l *Loader) wantsSearch(req Request) bool {
	if len(req.Analysis.Corpus) == 0 {
		return false
	}
	return req.Analysis.Requires(analysis.RequireSearch) ||
		(req.Page.Type == types.PageSearch && strings.TrimSpace(req.Query.Query) != "")
}

// paginatedRequirement is the listing the page's pagination applies to
func paginatedRequirement(pageType types.PageType) analysis.Requirement {
	switch pageType {
	case types.PageCollection:
		return analysis.RequireCollectionProducts
	case types.PageSearch:
		return analysis.RequireSearch
	case types.PageListCollections:
		return analysis.RequireCollections
	default:
		return analysis.RequireProducts
	}
}

func (l *Loader) limit(a *analysis.TemplateAnalysis, r analysis.Requirement, fallback int) int {
	if n := a.Limit(r); n > 0 {
		return n
	}
	return fallback
}

func (l *Loader) offset(req Request, r analysis.Requirement, limit int) int {
	if !req.Analysis.UsesPagination || paginatedRequirement(req.Page.Type) != r {
		return 0
	}
	return pageOffset(req.Query.Page, limit)
}

func (l *Loader) loadCore(ctx context.Context, req Request) (*Data, error) {
	a := req.Analysis
	storeID := req.Store.ID
	data := &Data{
		Products:          []types.Product{},
		Collections:       []types.Collection{},
		SearchProducts:    []types.Product{},
		SearchCollections: []types.Collection{},
	}
	var paginatedTotal, paginatedLimit int

	switch req.Page.Type {
	case types.PageProduct:
		product, err := l.catalog.GetProductByHandle(ctx, storeID, req.Page.Handle)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				data.Context = l.baseContext(req, data)
				return data, fmt.Errorf("product %s: %w", req.Page.Handle, ErrHandleNotFound)
			}
			return nil, fmt.Errorf("failed to load product %s: %w", req.Page.Handle, err)
		}
		data.Product = product
	case types.PageCollection:
		collection, err := l.catalog.GetCollectionByHandle(ctx, storeID, req.Page.Handle)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				data.Context = l.baseContext(req, data)
				return data, fmt.Errorf("collection %s: %w", req.Page.Handle, ErrHandleNotFound)
			}
			return nil, fmt.Errorf("failed to load collection %s: %w", req.Page.Handle, err)
		}
		data.Collection = collection
	}

	if data.Collection != nil && a.Requires(analysis.RequireCollectionProducts) {
		limit := l.limit(a, analysis.RequireCollectionProducts, l.render.DefaultProductsLimit)
		items, total, err := l.products(ctx, storeID, types.ListOptions{
			Limit:        limit,
			Offset:       l.offset(req, analysis.RequireCollectionProducts, limit),
			CollectionID: data.Collection.ID,
			SortBy:       req.Query.SortBy,
		})
		if err != nil {
			return nil, err
		}
		data.Products = items
		if paginatedRequirement(req.Page.Type) == analysis.RequireCollectionProducts {
			paginatedTotal, paginatedLimit = total, limit
		}
	}

	if a.Requires(analysis.RequireProducts) {
		limit := l.limit(a, analysis.RequireProducts, l.render.DefaultProductsLimit)
		items, total, err := l.products(ctx, storeID, types.ListOptions{
			Limit:  limit,
			Offset: l.offset(req, analysis.RequireProducts, limit),
			SortBy: req.Query.SortBy,
		})
		if err != nil {
			return nil, err
		}
		if data.Collection == nil {
			data.Products = items
		}
		data.Context = map[string]interface{}{"all_products": items}
		if paginatedRequirement(req.Page.Type) == analysis.RequireProducts {
			paginatedTotal, paginatedLimit = total, limit
		}
	}

	if a.Requires(analysis.RequireCollections) {
		limit := l.limit(a, analysis.RequireCollections, l.render.DefaultCollectionsLimit)
		items, total, err := l.collections(ctx, storeID, types.ListOptions{
			Limit:  limit,
			Offset: l.offset(req, analysis.RequireCollections, limit),
		})
		if err != nil {
			return nil, err
		}
		data.Collections = items
		if paginatedRequirement(req.Page.Type) == analysis.RequireCollections {
			paginatedTotal, paginatedLimit = total, limit
		}
	}

	if a.Requires(analysis.RequireCart) || req.Page.Type == types.PageCart {
		cart, err := l.cart(ctx, req)
		if err != nil {
			return nil, err
		}
		data.Cart = cart
	}

	if a.UsesPagination && paginatedLimit > 0 {
		data.Pagination = BuildPagination(req.Query.Page, paginatedLimit, paginatedTotal, req.Page.Path, queryValues(req.Query))
	}

	extra := data.Context
	data.Context = l.baseContext(req, data)
	for k, v := range extra {
		data.Context[k] = v
	}
	return data, nil
}

func (l *Loader) products(ctx context.Context, storeID string, opts types.ListOptions) ([]types.Product, int, error) {
	key := cache.Key(cache.NamespaceProducts, storeID, opts.CollectionID,
		strconv.Itoa(opts.Limit), strconv.Itoa(opts.Offset), opts.SortBy)
	var cached listing[types.Product]
	if l.lookup(ctx, key, &cached) {
		return cached.Items, cached.Total, nil
	}
	items, total, err := l.catalog.ListProducts(ctx, storeID, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	if items == nil {
		items = []types.Product{}
	}
	l.store(ctx, key, listing[types.Product]{Items: items, Total: total}, l.ttl.DataTTL)
	return items, total, nil
}

func (l *Loader) collections(ctx context.Context, storeID string, opts types.ListOptions) ([]types.Collection, int, error) {
	key := cache.Key(cache.NamespaceCollections, storeID, strconv.Itoa(opts.Limit), strconv.Itoa(opts.Offset))
	var cached listing[types.Collection]
	if l.lookup(ctx, key, &cached) {
		return cached.Items, cached.Total, nil
	}
	items, total, err := l.catalog.ListCollections(ctx, storeID, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list collections: %w", err)
	}
	if items == nil {
		items = []types.Collection{}
	}
	l.store(ctx, key, listing[types.Collection]{Items: items, Total: total}, l.ttl.DataTTL)
	return items, total, nil
}

// cart is never cached; a missing cart is an empty one
func (l *Loader) cart(ctx context.Context, req Request) (*types.Cart, error) {
	empty := &types.Cart{StoreID: req.Store.ID, Items: []types.CartItem{}}
	if req.Query.CartID == "" {
		return empty, nil
	}
	cart, err := l.catalog.GetCart(ctx, req.Query.CartID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return empty, nil
		}
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if cart.StoreID != req.Store.ID {
		return empty, nil
	}
	return cart, nil
}

func (l *Loader) loadSearch(ctx context.Context, req Request) (*types.SearchResult, error) {
	query := strings.TrimSpace(req.Query.Query)
	if query == "" {
		return &types.SearchResult{Products: []types.Product{}, Collections: []types.Collection{}}, nil
	}
	limit := l.limit(req.Analysis, analysis.RequireSearch, l.render.SearchLimit)
	opts := types.SearchOptions{Limit: limit, Offset: l.offset(req, analysis.RequireSearch, limit)}

	key := cache.Key(cache.NamespaceSearch, req.Store.ID, strings.ToLower(query),
		strconv.Itoa(opts.Limit), strconv.Itoa(opts.Offset))
	var cached types.SearchResult
	if l.lookup(ctx, key, &cached) {
		return &cached, nil
	}
	result, err := l.catalog.Search(ctx, req.Store.ID, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to search %q: %w", query, err)
	}
	l.store(ctx, key, result, l.ttl.SearchTTL)
	return result, nil
}

func (l *Loader) spliceSearch(data *Data, req Request, result *types.SearchResult) {
	if result.Products != nil {
		data.SearchProducts = result.Products
	}
	if result.Collections != nil {
		data.SearchCollections = result.Collections
	}
	data.Context["search"] = map[string]interface{}{
		"terms":         strings.TrimSpace(req.Query.Query),
		"performed":     strings.TrimSpace(req.Query.Query) != "",
		"results":       data.SearchProducts,
		"products":      data.SearchProducts,
		"collections":   data.SearchCollections,
		"results_count": result.Total,
	}
	if req.Page.Type == types.PageSearch && req.Analysis.UsesPagination {
		limit := l.limit(req.Analysis, analysis.RequireSearch, l.render.SearchLimit)
		data.Pagination = BuildPagination(req.Query.Page, limit, result.Total, req.Page.Path, queryValues(req.Query))
		data.Context["pagination"] = data.Pagination
	}
}

// baseContext builds the template variables shared by every page
func (l *Loader) baseContext(req Request, data *Data) map[string]interface{} {
	title := req.Page.Title
	if title == "" {
		title = FallbackTitle(req.Page.Type)
	}
	ctx := map[string]interface{}{
		"page_type":   string(req.Page.Type),
		"page_title":  title,
		"products":    data.Products,
		"collections": data.Collections,
		"page": map[string]interface{}{
			"type":   string(req.Page.Type),
			"handle": req.Page.Handle,
			"path":   req.Page.Path,
			"title":  title,
		},
		"current_page": ClampPage(req.Query.Page),
	}
	if data.Product != nil {
		ctx["product"] = data.Product
	}
	if data.Collection != nil {
		ctx["collection"] = collectionContext(data.Collection, data.Products, data.Pagination)
	}
	if data.Cart != nil {
		ctx["cart"] = map[string]interface{}{
			"id":          data.Cart.ID,
			"items":       data.Cart.Items,
			"item_count":  data.Cart.ItemCount(),
			"total_price": data.Cart.Total(),
		}
	}
	if data.Pagination != nil {
		ctx["pagination"] = data.Pagination
	}
	return ctx
}

func collectionContext(c *types.Collection, products []types.Product, p *types.Pagination) map[string]interface{} {
	count := len(products)
	if p != nil {
		count = p.TotalItems
	}
	return map[string]interface{}{
		"id":             c.ID,
		"handle":         c.Handle,
		"title":          c.Title,
		"description":    c.Description,
		"image_url":      c.ImageURL,
		"products":       products,
		"products_count": count,
	}
}

func queryValues(q types.QueryParams) url.Values {
	values := url.Values{}
	if q.Query != "" {
		values.Set("q", q.Query)
	}
	if q.SortBy != "" {
		values.Set("sort_by", q.SortBy)
	}
	return values
}

// lookup reads a cache entry. Cache failures are logged and treated as misses.
func (l *Loader) lookup(ctx context.Context, key string, dest interface{}) bool {
	if l.cache == nil {
		return false
	}
	found, err := l.cache.Get(ctx, key, dest)
	if err != nil {
		l.logger.WithField("key", key).Warnf("Cache read failed: %v", err)
		return false
	}
	return found
}

func (l *Loader) store(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Set(ctx, key, value, ttl); err != nil {
		l.logger.WithField("key", key).Warnf("Cache write failed: %v", err)
	}
}

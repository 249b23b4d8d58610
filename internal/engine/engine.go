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

// Package engine renders storefront pages: it resolves the store, analyzes
// the template set, loads the data it needs and renders sections, template
// and layout.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/url"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/storeforge/storefront/internal/analysis"
	"github.com/storeforge/storefront/internal/config"
	sferrors "github.com/storeforge/storefront/internal/errors"
	"github.com/storeforge/storefront/internal/loader"
	"github.com/storeforge/storefront/internal/logging"
	"github.com/storeforge/storefront/internal/render"
	"github.com/storeforge/storefront/internal/resolver"
	"github.com/storeforge/storefront/internal/seo"
	"github.com/storeforge/storefront/internal/storage"
	"github.com/storeforge/storefront/internal/tags"
	"github.com/storeforge/storefront/internal/themes"
	"github.com/storeforge/storefront/internal/types"
)

// LayoutPath is the default layout of every theme
const LayoutPath = "layout/theme.liquid"

// maxSectionDepth bounds how deeply section tags may nest
const maxSectionDepth = 8

var (
	errSectionCycle = errors.New("section includes itself")
	errSectionDepth = fmt.Errorf("sections nested more than %d deep", maxSectionDepth)
)

// Recorder receives render outcomes
type Recorder interface {
	RecordRender(pageType, status string, duration time.Duration)
	RecordSectionFailure(section string)
}

// Page is a rendered storefront page
type Page struct {
	HTML       string         `json:"html"`
	Metadata   seo.Metadata   `json:"metadata"`
	StoreID    string         `json:"store_id"`
	ThemeID    string         `json:"theme_id"`
	Template   string         `json:"template"`
	PageType   types.PageType `json:"page_type"`
	RenderTime time.Duration  `json:"render_time"`
	// Issues lists recoverable failures that degraded the page
	Issues []string `json:"issues,omitempty"`
}

// Rendered converts the page to the shared RenderedPage shape
func (p *Page) Rendered() types.RenderedPage {
	return types.RenderedPage{HTML: p.HTML, StoreID: p.StoreID, Template: p.Template, RenderTime: p.RenderTime}
}

// Dependencies are the collaborators of an Engine
type Dependencies struct {
	Resolver  *resolver.Resolver
	Storage   storage.Storage
	Themes    themes.Storage
	Loader    *loader.Loader
	Renderers *render.Manager
	Recorder  Recorder
	Logger    *logging.Logger
}

// Engine renders pages
type Engine struct {
	resolver  *resolver.Resolver
	storage   storage.Storage
	themes    themes.Storage
	analyzer  *analysis.Analyzer
	loader    *loader.Loader
	renderers *render.Manager
	recorder  Recorder
	groups    tags.GroupTable
	render    config.RenderConfig
	theme     string
	logger    *logging.Logger
}

// New creates an engine
func New(cfg *config.Config, deps Dependencies) (*Engine, error) {
	if deps.Resolver == nil || deps.Storage == nil || deps.Themes == nil {
		return nil, errors.New("resolver, storage and theme storage are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	renderers := deps.Renderers
	if renderers == nil {
		renderers = render.NewManager(deps.Themes)
	}
	l := deps.Loader
	if l == nil {
		l = loader.New(deps.Storage, nil, cfg.Render, cfg.Cache, logger)
	}
	groups := tags.GroupTable(cfg.Render.SectionGroups)
	if len(groups) == 0 {
		groups = tags.DefaultGroups()
	}

	if err := tags.Register(logger); err != nil {
		return nil, err
	}

	return &Engine{
		resolver:  deps.Resolver,
		storage:   deps.Storage,
		themes:    deps.Themes,
		analyzer:  analysis.New(deps.Themes, cfg.Render, logger),
		loader:    l,
		renderers: renderers,
		recorder:  deps.Recorder,
		groups:    groups,
		render:    cfg.Render,
		theme:     cfg.Themes.DefaultTheme,
		logger:    logger.WithComponent("engine"),
	}, nil
}

// Renderers exposes the compiled template manager for cache invalidation
func (e *Engine) Renderers() *render.Manager {
	return e.renderers
}

// request carries the per-render state
type request struct {
	store       *types.Store
	themeID     string
	page        types.PageOptions
	query       types.QueryParams
	themeConfig *types.ThemeConfig
	issues      []string
	logger      *logging.Logger
}

func (r *request) degrade(err error) {
	if err != nil {
		r.issues = append(r.issues, err.Error())
	}
}

// RenderPage renders the page at path for the store serving domain. Store
// resolution and missing templates are terminal typed errors; every other
// failure degrades the page.
func (e *Engine) RenderPage(ctx context.Context, domain, path string, query url.Values) (*Page, error) {
	start := time.Now()
	page := Route(path)

	store, err := e.resolver.ResolveStoreByDomain(ctx, domain)
	if err != nil {
		e.finish(ctx, nil, page, start, err)
		return nil, err
	}
	ctx = logging.WithStoreID(ctx, store.ID)

	req := &request{
		store:   store,
		themeID: e.themeFor(store),
		page:    page,
		query:   ParseQuery(query),
		logger:  e.logger.WithContext(ctx),
	}
	req.themeConfig = e.themeConfig(ctx, req)

	out, err := e.renderRoute(ctx, req, false)
	if out != nil {
		out.RenderTime = time.Since(start)
	}
	e.finish(ctx, store, req.page, start, err)
	return out, err
}

func (e *Engine) finish(ctx context.Context, store *types.Store, page types.PageOptions, start time.Time, err error) {
	duration := time.Since(start)
	storeID := ""
	if store != nil {
		storeID = store.ID
	}
	e.logger.WithContext(ctx).LogRender(storeID, page.Path, page.Template, duration, err)

	if e.recorder != nil {
		status := "ok"
		if sfErr, ok := sferrors.AsStorefrontError(err); ok {
			status = string(sfErr.Code)
		} else if err != nil {
			status = string(sferrors.ErrInternalError)
		}
		e.recorder.RecordRender(string(page.Type), status, duration)
	}
}

func (e *Engine) themeFor(store *types.Store) string {
	if store.ThemeID != "" {
		return store.ThemeID
	}
	return e.theme
}

func (e *Engine) themeConfig(ctx context.Context, req *request) *types.ThemeConfig {
	cfg, err := e.storage.GetThemeConfig(ctx, req.store.ID, req.themeID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			req.logger.Warnf("Failed to load theme settings, using schema defaults: %v", err)
			req.degrade(sferrors.NewDataError("theme settings unavailable", err))
		}
		return nil
	}
	return cfg
}

// findTemplate looks up templates/{name}.json then templates/{name}.liquid
func (e *Engine) findTemplate(ctx context.Context, themeID, name string) (*types.ThemeFile, error) {
	for _, ext := range []string{".json", ".liquid"} {
		f, err := e.themes.ReadFile(ctx, themeID, "templates/"+name+ext)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, themes.ErrFileNotFound) && !errors.Is(err, themes.ErrThemeNotFound) {
			return nil, sferrors.Wrap(sferrors.ErrInternalError, "failed to read template "+name, err)
		}
	}
	return nil, sferrors.NewTemplateNotFoundError(name)
}

// layoutFor returns the layout source of a template, or "" to render bare
func (e *Engine) layoutFor(ctx context.Context, req *request, tpl *types.ThemeFile) (string, string) {
	p := LayoutPath
	if tpl.Ext() == ".json" {
		var peek struct {
			Layout string `json:"layout"`
		}
		if err := json.Unmarshal([]byte(tpl.Content), &peek); err == nil && peek.Layout != "" {
			p = "layout/" + strings.TrimSuffix(peek.Layout, ".liquid") + ".liquid"
		}
	}
	f, err := e.themes.ReadFile(ctx, req.themeID, p)
	if err != nil {
		if !errors.Is(err, themes.ErrFileNotFound) {
			req.logger.Warnf("Failed to read layout %s: %v", p, err)
		}
		return "", ""
	}
	return p, f.Content
}

// Analyze reports the data requirements of a template without rendering it.
// A missing template is a terminal result. storeID selects persisted
// settings and may be empty.
func (e *Engine) Analyze(ctx context.Context, themeID, storeID, template string) sferrors.Result[*analysis.TemplateAnalysis] {
	if themeID == "" {
		themeID = e.theme
	}
	tpl, err := e.findTemplate(ctx, themeID, template)
	if err != nil {
		return sferrors.Failed[*analysis.TemplateAnalysis](err)
	}

	req := &request{store: &types.Store{ID: storeID}, themeID: themeID, logger: e.logger.WithContext(ctx)}
	if storeID != "" {
		req.themeConfig = e.themeConfig(ctx, req)
	}
	layoutPath, layout := e.layoutFor(ctx, req, tpl)

	return e.analyzer.Analyze(ctx, storeID, analysis.Input{
		ThemeID:      themeID,
		PageType:     types.PageType(template),
		LayoutPath:   layoutPath,
		Layout:       layout,
		TemplatePath: tpl.Path,
		Template:     tpl.Content,
		ThemeConfig:  req.themeConfig,
	})
}

func (e *Engine) renderRoute(ctx context.Context, req *request, notFound bool) (*Page, error) {
	tpl, err := e.findTemplate(ctx, req.themeID, req.page.Template)
	if err != nil {
		return nil, err
	}
	layoutPath, layout := e.layoutFor(ctx, req, tpl)

	analyzed := e.analyzer.Analyze(ctx, req.store.ID, analysis.Input{
		ThemeID:      req.themeID,
		PageType:     req.page.Type,
		LayoutPath:   layoutPath,
		Layout:       layout,
		TemplatePath: tpl.Path,
		Template:     tpl.Content,
		ThemeConfig:  req.themeConfig,
	})
	req.degrade(analyzed.Err)

	loaded := e.loader.Load(ctx, loader.Request{
		Store:    req.store,
		Page:     req.page,
		Query:    req.query,
		Analysis: analyzed.Value,
	})
	req.degrade(loaded.Err)
	data := loaded.Value

	if data.Missing && !notFound {
		req.logger.WithField("handle", req.page.Handle).Info("Page resource not found, rendering 404 template")
		req.page = types.PageOptions{Type: types.PageNotFound, Path: req.page.Path, Template: string(types.PageNotFound)}
		return e.renderRoute(ctx, req, true)
	}

	meta := seo.Generate(req.store, seoPage(req.page, data))
	base := e.baseContext(req, data, meta)

	renderer := render.NewSectionRenderer(e.renderers.Engine(req.themeID), e.logger)
	base[tags.SectionFuncKey] = e.sectionFunc(ctx, req, renderer, base, nil)
	base[tags.PreloadedSectionsKey] = e.preload(ctx, req, renderer, base)

	var content string
	if analysis.IsJSONTemplate(tpl.Path, tpl.Content) {
		content = e.renderJSONTemplate(ctx, req, renderer, analyzed.Value, base)
	} else {
		content, err = e.renderers.Engine(req.themeID).RenderString(tpl.Path, tpl.Content, base)
		if err != nil {
			return nil, sferrors.NewRenderError("failed to render template "+tpl.Path, err)
		}
	}

	doc := content
	if layout != "" {
		doc, err = e.renderers.Engine(req.themeID).RenderString(layoutPath, layout, base.
			With("content_for_layout", render.SafeHTML(content)).
			With("content_for_header", render.SafeHTML(meta.HTML())))
		if err != nil {
			return nil, sferrors.NewRenderError("failed to render layout "+layoutPath, err)
		}
	}

	return &Page{
		HTML:     doc,
		Metadata: meta,
		StoreID:  req.store.ID,
		ThemeID:  req.themeID,
		Template: tpl.Path,
		PageType: req.page.Type,
		Issues:   req.issues,
	}, nil
}

// baseContext assembles the variables shared by every template of the page
func (e *Engine) baseContext(req *request, data *loader.Data, meta seo.Metadata) render.Context {
	base := render.Context{}
	for k, v := range data.Context {
		base[k] = v
	}
	s := req.store
	base["shop"] = map[string]interface{}{
		"id":          s.ID,
		"name":        s.Name,
		"handle":      s.Handle,
		"domain":      s.PrimaryDomain(),
		"url":         seo.CanonicalURL(s, "/"),
		"description": s.Description,
		"email":       s.Email,
		"phone":       s.Phone,
		"currency":    s.Currency,
		"logo_url":    s.LogoURL,
	}
	base["canonical_url"] = meta.Canonical
	base["page_description"] = meta.Description
	base["request"] = map[string]interface{}{
		"path":      req.page.Path,
		"page_type": string(req.page.Type),
	}
	if req.themeConfig != nil && req.themeConfig.Settings != nil {
		base["settings"] = req.themeConfig.Settings
	} else {
		base["settings"] = map[string]interface{}{}
	}
	base[tags.GroupTableKey] = e.groups
	return base
}

// renderSection loads and renders a section by name with failure isolation
func (e *Engine) renderSection(ctx context.Context, req *request, renderer *render.SectionRenderer, in render.SectionInput, base render.Context) string {
	result := renderer.RenderNamed(ctx, e.themes, in, base, req.themeConfig)
	if result.Err != nil && e.recorder != nil {
		e.recorder.RecordSectionFailure(in.Name)
	}
	return result.Value
}

// sectionFunc renders sections on demand for the section tag. chain lists
// the sections being rendered around the call; a section already in the
// chain, or one nested past maxSectionDepth, becomes a placeholder.
func (e *Engine) sectionFunc(ctx context.Context, req *request, renderer *render.SectionRenderer, base render.Context, chain []string) tags.SectionFunc {
	return func(name string) string {
		key := sectionKey(name)
		var err error
		switch {
		case slices.Contains(chain, key):
			err = errSectionCycle
		case len(chain) >= maxSectionDepth:
			err = errSectionDepth
		}
		if err != nil {
			req.logger.WithField("section", name).Warnf("Section not rendered (%s): %v", strings.Join(append(slices.Clip(chain), key), " > "), err)
			if e.recorder != nil {
				e.recorder.RecordSectionFailure(name)
			}
			return render.Placeholder(name, err)
		}
		return e.renderSection(ctx, req, renderer, render.SectionInput{Name: name, Template: req.page.Template}, e.nested(ctx, req, renderer, base, chain, key))
	}
}

// nested returns base with a section function that knows name is being
// rendered
func (e *Engine) nested(ctx context.Context, req *request, renderer *render.SectionRenderer, base render.Context, chain []string, name string) render.Context {
	return base.With(tags.SectionFuncKey, e.sectionFunc(ctx, req, renderer, base, append(slices.Clip(chain), sectionKey(name))))
}

func sectionKey(name string) string {
	return strings.TrimSuffix(strings.TrimPrefix(name, "sections/"), ".liquid")
}

// preload renders every section of the group table concurrently. Sections
// missing from the theme are left out so group tags can report them.
func (e *Engine) preload(ctx context.Context, req *request, renderer *render.SectionRenderer, base render.Context) map[string]string {
	names := e.groups.AllSections()
	results := make([]string, len(names))
	present := make([]bool, len(names))

	var g errgroup.Group
	g.SetLimit(e.concurrency())
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			loaded := render.LoadSectionSafely(ctx, e.themes, req.themeID, name)
			if loaded.Err != nil {
				if !errors.Is(loaded.Err, themes.ErrFileNotFound) {
					req.logger.WithField("section", name).Warnf("Failed to load group section: %v", loaded.Err)
				}
				return nil
			}
			in := render.SectionInput{Name: name, Body: loaded.Value, Template: req.page.Template}
			result := renderer.RenderSection(in, e.nested(ctx, req, renderer, base, nil, name), req.themeConfig)
			if result.Err != nil && e.recorder != nil {
				e.recorder.RecordSectionFailure(name)
			}
			results[i], present[i] = result.Value, true
			return nil
		})
	}
	_ = g.Wait()

	preloaded := make(map[string]string, len(names))
	for i, name := range names {
		if present[i] {
			preloaded[name] = results[i]
		}
	}
	return preloaded
}

func (e *Engine) concurrency() int {
	if !e.render.ParallelSections {
		return 1
	}
	if e.render.MaxParallelSections > 0 {
		return e.render.MaxParallelSections
	}
	return 8
}

// renderJSONTemplate renders the sections of a JSON template in order
func (e *Engine) renderJSONTemplate(ctx context.Context, req *request, renderer *render.SectionRenderer, a *analysis.TemplateAnalysis, base render.Context) string {
	if a == nil || a.Template == nil {
		req.logger.Warn("JSON template could not be analyzed, rendering empty content")
		return ""
	}
	ids := a.Template.OrderedSections()
	out := make([]string, len(ids))

	var g errgroup.Group
	g.SetLimit(e.concurrency())
	for i, id := range ids {
		i, id := i, id
		instance := a.Template.Sections[id]
		name := strings.TrimSuffix(strings.TrimPrefix(instance.Type, "sections/"), ".liquid")
		in := render.SectionInput{ID: id, Name: name, Template: req.page.Template, Instance: &instance}
		g.Go(func() error {
			sectionBase := e.nested(ctx, req, renderer, base, nil, name)
			var markup string
			if body, ok := a.Corpus[render.SectionPath(name)]; ok {
				in.Body = body
				result := renderer.RenderSection(in, sectionBase, req.themeConfig)
				if result.Err != nil && e.recorder != nil {
					e.recorder.RecordSectionFailure(name)
				}
				markup = result.Value
			} else {
				markup = e.renderSection(ctx, req, renderer, in, sectionBase)
			}
			out[i] = fmt.Sprintf(`<div id="section-%s" class="section section-%s">%s</div>`, html.EscapeString(id), html.EscapeString(name), markup)
			return nil
		})
	}
	_ = g.Wait()
	return strings.Join(out, "\n")
}

func seoPage(page types.PageOptions, data *loader.Data) seo.Page {
	p := seo.Page{Type: page.Type, Path: page.Path}
	switch {
	case data.Product != nil:
		p.Title = data.Product.Title
		p.Description = data.Product.Description
		p.Image = data.Product.FeaturedImage()
	case data.Collection != nil:
		p.Title = data.Collection.Title
		p.Description = data.Collection.Description
		p.Image = data.Collection.ImageURL
	case page.Type != types.PageHome:
		p.Title = loader.FallbackTitle(page.Type)
	}
	return p
}

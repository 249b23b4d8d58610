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

// Package analysis statically walks a layout, page template and the sections
// they reference to work out which data a page needs before anything is
// rendered.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/storeforge/storefront/internal/config"
	sferrors "github.com/storeforge/storefront/internal/errors"
	"github.com/storeforge/storefront/internal/logging"
	"github.com/storeforge/storefront/internal/sections"
	"github.com/storeforge/storefront/internal/tags"
	"github.com/storeforge/storefront/internal/themes"
	"github.com/storeforge/storefront/internal/types"
)

// Requirement is a category of backend data a page needs
type Requirement string

const (
	RequireProducts           Requirement = "products"
	RequireCollectionProducts Requirement = "collection_products"
	RequireCollections        Requirement = "collections"
	RequireSearch             Requirement = "search"
	RequireCart               Requirement = "cart"
)

// Settings ids that carry listing sizes
const (
	ProductsPerPage    = "products_per_page"
	CollectionsPerPage = "collections_per_page"
)

// FetchOptions controls how a requirement is fetched
type FetchOptions struct {
	Limit int `json:"limit"`
}

// TemplateAnalysis is the data a page needs, derived without rendering
type TemplateAnalysis struct {
	Requirements   map[Requirement]FetchOptions `json:"requirements"`
	UsesPagination bool                         `json:"uses_pagination"`
	Sections       []string                     `json:"sections"`
	Dependencies   map[string][]string          `json:"dependencies"`

	// Template is the parsed JSON page template with section types resolved
	Template *types.TemplateConfig `json:"template,omitempty"`
	// Corpus holds every loaded source keyed by theme path
	Corpus map[string]string `json:"-"`
}

// Empty returns an analysis with no requirements
func Empty() *TemplateAnalysis {
	return &TemplateAnalysis{
		Requirements: make(map[Requirement]FetchOptions),
		Sections:     []string{},
		Dependencies: make(map[string][]string),
		Corpus:       make(map[string]string),
	}
}

// Requires reports whether the page needs a requirement
func (a *TemplateAnalysis) Requires(r Requirement) bool {
	if a == nil {
		return false
	}
	_, ok := a.Requirements[r]
	return ok
}

// Limit returns the fetch limit of a requirement, or 0
func (a *TemplateAnalysis) Limit(r Requirement) int {
	if a == nil {
		return 0
	}
	return a.Requirements[r].Limit
}

func (a *TemplateAnalysis) require(r Requirement, limit int) {
	if current, ok := a.Requirements[r]; !ok || limit > current.Limit {
		a.Requirements[r] = FetchOptions{Limit: limit}
	}
}

// Input is the template set of one page
type Input struct {
	ThemeID  string
	PageType types.PageType
	// LayoutPath and Layout hold the layout source; both empty for none
	LayoutPath string
	Layout     string
	// TemplatePath and Template hold the page template source, JSON or markup
	TemplatePath string
	Template     string
	// Sections holds section sources already loaded, keyed by theme path
	Sections map[string]string
	// ThemeConfig holds persisted tenant settings, which count as instance
	// settings
	ThemeConfig *types.ThemeConfig
}

func (in Input) templateName() string {
	name := strings.TrimPrefix(in.TemplatePath, "templates/")
	if i := strings.LastIndex(name, "."); i != -1 {
		name = name[:i]
	}
	return name
}

// IsJSONTemplate reports whether a template is a declarative JSON document
func IsJSONTemplate(path, source string) bool {
	if strings.HasSuffix(path, ".json") {
		return true
	}
	return path == "" && strings.HasPrefix(strings.TrimSpace(source), "{")
}

// Analyzer builds TemplateAnalysis values
type Analyzer struct {
	storage  themes.Storage
	defaults config.RenderConfig
	groups   tags.GroupTable
	logger   *logging.Logger
}

// New creates an analyzer reading missing sections from theme storage
func New(storage themes.Storage, cfg config.RenderConfig, logger *logging.Logger) *Analyzer {
	groups := tags.GroupTable(cfg.SectionGroups)
	if len(groups) == 0 {
		groups = tags.DefaultGroups()
	}
	return &Analyzer{
		storage:  storage,
		defaults: cfg,
		groups:   groups,
		logger:   logger.WithComponent("analysis"),
	}
}

// unit is one body to scan together with the settings that size its listings
type unit struct {
	path     string
	body     string
	schema   *sections.Schema
	settings map[string]interface{}
}

// Analyze walks the template set. Failures degrade to an empty analysis and
// a recoverable error; the result is never terminal.
func (a *Analyzer) Analyze(ctx context.Context, storeID string, in Input) sferrors.Result[*TemplateAnalysis] {
	logger := a.logger.WithFields(map[string]interface{}{
		"store_id": storeID,
		"template": in.TemplatePath,
	})

	analysis, err := a.analyze(ctx, in)
	if err != nil {
		logger.Warnf("Template analysis failed, using empty analysis: %v", err)
		return sferrors.Recovered(Empty(), err)
	}
	logger.WithField("sections", len(analysis.Sections)).Debug("Template analysis complete")
	return sferrors.OK(analysis)
}

func (a *Analyzer) analyze(ctx context.Context, in Input) (*TemplateAnalysis, error) {
	analysis := Empty()
	for p, src := range in.Sections {
		analysis.Corpus[p] = src
	}

	var units []unit
	referenced := make(map[string]bool)
	addSection := func(p string) {
		if !referenced[p] {
			referenced[p] = true
			analysis.Sections = append(analysis.Sections, p)
		}
	}

	// layout-level sections
	if in.Layout != "" {
		analysis.Corpus[in.LayoutPath] = in.Layout
		units = append(units, unit{path: in.LayoutPath, body: in.Layout})
		for _, name := range a.expandMarkers(in.Layout) {
			p := sectionPath(name)
			found, err := a.load(ctx, in.ThemeID, p, analysis.Corpus)
			if err != nil {
				return nil, err
			}
			if found {
				addSection(p)
			}
		}
	}

	// page template
	if IsJSONTemplate(in.TemplatePath, in.Template) {
		tc, err := a.parseJSONTemplate(ctx, in, analysis.Corpus)
		if err != nil {
			return nil, err
		}
		analysis.Template = tc
		for _, id := range tc.OrderedSections() {
			instance := tc.Sections[id]
			p := instance.Type
			if !strings.HasSuffix(p, ".liquid") {
				p += ".liquid"
			}
			if _, ok := analysis.Corpus[p]; !ok {
				a.logger.WithField("section", instance.Type).Warn("Section referenced by template not found")
				continue
			}
			addSection(p)
			units = append(units, a.sectionUnit(p, analysis.Corpus[p], a.instanceSettings(in, id, instance)))
		}
	} else if in.Template != "" {
		analysis.Corpus[in.TemplatePath] = in.Template
		units = append(units, unit{path: in.TemplatePath, body: in.Template})
		for _, name := range a.expandMarkers(in.Template) {
			p := sectionPath(name)
			found, err := a.load(ctx, in.ThemeID, p, analysis.Corpus)
			if err != nil {
				return nil, err
			}
			if found {
				addSection(p)
			}
		}
	}

	// layout and markup-template sections carry only tenant settings
	for _, p := range analysis.Sections {
		if analysis.Template != nil && a.instanceOf(analysis.Template, p) {
			continue
		}
		id := sectionName(p)
		var settings map[string]interface{}
		if persisted, ok := in.ThemeConfig.Section(in.templateName(), id); ok {
			settings = persisted.Settings
		}
		units = append(units, a.sectionUnit(p, analysis.Corpus[p], settings))
	}

	for _, u := range units {
		if err := a.scanUnit(ctx, in, u, analysis); err != nil {
			return nil, err
		}
	}
	return analysis, nil
}

// instanceOf reports whether a section path is placed by the JSON template
func (a *Analyzer) instanceOf(tc *types.TemplateConfig, p string) bool {
	for _, id := range tc.OrderedSections() {
		t := tc.Sections[id].Type
		if t == p || t+".liquid" == p {
			return true
		}
	}
	return false
}

func (a *Analyzer) instanceSettings(in Input, id string, instance types.SectionData) map[string]interface{} {
	settings := instance.Settings
	if persisted, ok := in.ThemeConfig.Section(in.templateName(), id); ok {
		settings = sections.Merge(settings, persisted.Settings)
	}
	return settings
}

func (a *Analyzer) sectionUnit(p, body string, settings map[string]interface{}) unit {
	ex, err := sections.Extract(body)
	if err != nil {
		a.logger.WithField("section", p).Warnf("Invalid section schema, ignoring it: %v", err)
	}
	return unit{path: p, body: ex.Body, schema: ex.Schema, settings: settings}
}

// expandMarkers resolves section and group markers to ordered section names
func (a *Analyzer) expandMarkers(body string) []string {
	var names []string
	for _, m := range sectionMarkers(body) {
		if !m.group {
			names = append(names, m.name)
			continue
		}
		group, ok := a.groups.Sections(m.name)
		if !ok {
			a.logger.WithField("group", m.name).Warn("Unknown section group")
			continue
		}
		names = append(names, group...)
	}
	return names
}

// load reads a theme file into the corpus. A missing file is reported as not
// found; any other storage error aborts the analysis.
func (a *Analyzer) load(ctx context.Context, themeID, p string, corpus map[string]string) (bool, error) {
	if _, ok := corpus[p]; ok {
		return true, nil
	}
	if a.storage == nil {
		return false, nil
	}
	f, err := a.storage.ReadFile(ctx, themeID, p)
	if err != nil {
		if errors.Is(err, themes.ErrFileNotFound) {
			a.logger.WithField("path", p).Warn("Referenced section file not found")
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s: %w", p, err)
	}
	corpus[p] = f.Content
	return true, nil
}

// parseJSONTemplate decodes a JSON template and resolves every instance type
// to a section path. A bare type such as "hero" becomes "sections/hero" when
// sections/hero.liquid exists; types containing a slash are kept.
func (a *Analyzer) parseJSONTemplate(ctx context.Context, in Input, corpus map[string]string) (*types.TemplateConfig, error) {
	var tc types.TemplateConfig
	if err := json.Unmarshal([]byte(in.Template), &tc); err != nil {
		return nil, fmt.Errorf("invalid JSON template %s: %w", in.TemplatePath, err)
	}
	if tc.Sections == nil {
		tc.Sections = make(map[string]types.SectionData)
	}

	ids := make([]string, 0, len(tc.Sections))
	for id := range tc.Sections {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		instance := tc.Sections[id]
		if instance.Type == "" {
			continue
		}
		if !strings.Contains(instance.Type, "/") {
			p := sectionPath(instance.Type)
			found, err := a.load(ctx, in.ThemeID, p, corpus)
			if err != nil {
				return nil, err
			}
			if found {
				instance.Type = strings.TrimSuffix(p, ".liquid")
			}
		} else {
			p := instance.Type
			if !strings.HasSuffix(p, ".liquid") {
				p += ".liquid"
			}
			if _, err := a.load(ctx, in.ThemeID, p, corpus); err != nil {
				return nil, err
			}
		}
		tc.Sections[id] = instance
	}
	return &tc, nil
}

// scanUnit adds the requirements of one body, following its snippet includes
func (a *Analyzer) scanUnit(ctx context.Context, in Input, u unit, analysis *TemplateAnalysis) error {
	merged := scan{listings: make(map[listing]bool), paginated: make(map[listing]int)}
	var deps []string
	visited := map[string]bool{u.path: true}

	queue := []string{u.body}
	for len(queue) > 0 {
		body := queue[0]
		queue = queue[1:]

		s := scanBody(body)
		for l := range s.listings {
			merged.listings[l] = true
		}
		for l, n := range s.paginated {
			if n > merged.paginated[l] {
				merged.paginated[l] = n
			}
		}
		merged.paginates = merged.paginates || s.paginates
		deps = append(deps, s.assets...)

		for _, include := range s.includes {
			p := snippetPath(include)
			if visited[p] {
				continue
			}
			visited[p] = true
			deps = append(deps, p)
			found, err := a.load(ctx, in.ThemeID, p, analysis.Corpus)
			if err != nil {
				return err
			}
			if found {
				queue = append(queue, analysis.Corpus[p])
			}
		}
	}

	if len(deps) > 0 {
		analysis.Dependencies[u.path] = sortedUnique(deps)
	}
	if merged.paginates {
		analysis.UsesPagination = true
	}
	a.applyRequirements(in.PageType, u, merged, analysis)
	return nil
}

// applyRequirements turns listings into requirements with resolved limits.
// A products_per_page signal on a collection page sizes the collection's
// product listing; elsewhere it sizes the generic product feed.
func (a *Analyzer) applyRequirements(pageType types.PageType, u unit, s scan, analysis *TemplateAnalysis) {
	productSignal := hasSignal(u, ProductsPerPage)
	collectionSignal := hasSignal(u, CollectionsPerPage)

	productsLimit := func(l listing) int {
		return resolveLimit(u, ProductsPerPage, s.paginated[l], a.defaults.DefaultProductsLimit)
	}

	if s.listings[listCollectionProducts] || (productSignal && pageType == types.PageCollection) {
		if pageType == types.PageCollection {
			analysis.require(RequireCollectionProducts, productsLimit(listCollectionProducts))
		} else {
			analysis.require(RequireProducts, productsLimit(listCollectionProducts))
		}
	}
	if s.listings[listProducts] || (productSignal && pageType != types.PageCollection && pageType != types.PageSearch) {
		analysis.require(RequireProducts, productsLimit(listProducts))
	}
	if s.listings[listCollections] || collectionSignal {
		analysis.require(RequireCollections, resolveLimit(u, CollectionsPerPage, s.paginated[listCollections], a.defaults.DefaultCollectionsLimit))
	}
	if s.listings[listSearch] {
		limit := a.defaults.SearchLimit
		if n := s.paginated[listSearch]; n > 0 {
			limit = n
		}
		analysis.require(RequireSearch, limit)
	}
	if s.listings[listCart] {
		analysis.require(RequireCart, 0)
	}
}

func hasSignal(u unit, id string) bool {
	if _, ok := u.settings[id]; ok {
		return true
	}
	_, ok := u.schema.Setting(id)
	return ok
}

// resolveLimit applies the precedence instance setting, schema default,
// literal paginate size, engine default
func resolveLimit(u unit, id string, paginated, fallback int) int {
	if n, ok := positiveInt(u.settings[id]); ok {
		return n
	}
	if setting, ok := u.schema.Setting(id); ok {
		if n, ok := positiveInt(setting.Default); ok {
			return n
		}
	}
	if paginated > 0 {
		return paginated
	}
	return fallback
}

func positiveInt(v interface{}) (int, bool) {
	var n int
	switch x := v.(type) {
	case int:
		n = x
	case int64:
		n = int(x)
	case float64:
		n = int(x)
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			return 0, false
		}
		n = int(i)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, false
		}
		n = i
	default:
		return 0, false
	}
	return n, n > 0
}

// sectionPath maps a section name to its file path
func sectionPath(name string) string {
	name = strings.TrimSuffix(strings.TrimPrefix(name, "sections/"), ".liquid")
	return "sections/" + name + ".liquid"
}

func sectionName(p string) string {
	return strings.TrimSuffix(strings.TrimPrefix(p, "sections/"), ".liquid")
}

func snippetPath(name string) string {
	if !strings.Contains(name, "/") {
		name = "snippets/" + name
	}
	if !strings.Contains(name[strings.LastIndex(name, "/")+1:], ".") {
		name += ".liquid"
	}
	return name
}

func sortedUnique(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

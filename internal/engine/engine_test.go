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

package engine

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/storeforge/storefront/internal/cache"
	"github.com/storeforge/storefront/internal/config"
	sferrors "github.com/storeforge/storefront/internal/errors"
	"github.com/storeforge/storefront/internal/logging"
	"github.com/storeforge/storefront/internal/resolver"
	"github.com/storeforge/storefront/internal/storage"
	"github.com/storeforge/storefront/internal/themes"
	"github.com/storeforge/storefront/internal/types"
)

var themeFiles = map[string]string{
	"layout/theme.liquid": `<html><head>{{ content_for_header }}</head><body>` +
		`{% sections "header-group" %}<main>{{ content_for_layout }}</main>{% sections "footer-group" %}</body></html>`,
	"sections/header.liquid": `<header>{{ shop.name }}</header>`,
	"sections/footer.liquid": `<footer>{{ section.settings.text }}</footer>
{% schema %}{"name": "Footer", "settings": [{"type": "text", "id": "text", "default": "Thanks for visiting"}]}{% endschema %}`,
	"sections/hero.liquid": `<h2>{{ section.settings.heading }}</h2>
{% schema %}{"name": "Hero", "settings": [{"type": "text", "id": "heading", "default": "Welcome"}]}{% endschema %}`,
	"sections/broken.liquid":   `{% if %}`,
	"templates/index.json":     `{"sections": {"hero": {"type": "hero", "settings": {"heading": "Summer Sale"}}, "oops": {"type": "broken"}}, "order": ["hero", "oops"]}`,
	"templates/product.liquid": `<h1>{{ product.title }}</h1>`,
	"templates/page.liquid":    `{% if %}`,
	"templates/404.liquid":     `<h1>Not found</h1>`,
}

type recorder struct {
	mu       sync.Mutex
	renders  []string
	failures []string
}

func (r *recorder) RecordRender(pageType, status string, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renders = append(r.renders, pageType+":"+status)
}

func (r *recorder) RecordSectionFailure(section string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, section)
}

func newTestEngine(t *testing.T) (*Engine, *recorder) {
	t.Helper()
	ctx := context.Background()
	cfg := config.Default()

	store := storage.NewMemoryStorage()
	for _, s := range []*types.Store{
		{ID: "store-1", Name: "Acme", Domain: "acme.example.com", IsActive: true, Currency: "USD", ThemeID: "dawn"},
		{ID: "store-2", Name: "Dormant", Domain: "dormant.example.com", IsActive: false, Currency: "USD"},
	} {
		if err := store.SaveStore(ctx, s); err != nil {
			t.Fatalf("SaveStore failed: %v", err)
		}
	}
	if err := store.SaveProduct(ctx, &types.Product{StoreID: "store-1", Handle: "shirt", Title: "Shirt", Price: 20, Available: true}); err != nil {
		t.Fatalf("SaveProduct failed: %v", err)
	}

	files := themes.NewMemoryStorage()
	if err := files.PutAll("dawn", themeFiles); err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}

	mem := cache.NewMemoryCache(cache.MemoryConfig{DefaultTTL: time.Minute, MaxSize: 100, CleanupInterval: -1})
	t.Cleanup(mem.Stop)

	res, err := resolver.New(store, mem, cfg.Cache, logging.NewNopLogger())
	if err != nil {
		t.Fatalf("resolver.New failed: %v", err)
	}

	rec := &recorder{}
	e, err := New(cfg, Dependencies{Resolver: res, Storage: store, Themes: files, Recorder: rec})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return e, rec
}

func TestRenderPage_StoreErrors(t *testing.T) {
	e, rec := newTestEngine(t)

	tests := []struct {
		name   string
		domain string
		code   sferrors.ErrorCode
		status int
	}{
		{"unknown domain", "nowhere.example.com", sferrors.ErrStoreNotFound, 404},
		{"inactive store", "dormant.example.com", sferrors.ErrStoreNotActive, 402},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := e.RenderPage(context.Background(), tt.domain, "/", nil)
			if page != nil {
				t.Errorf("Expected no page, got %+v", page)
			}
			sfErr, ok := sferrors.AsStorefrontError(err)
			if !ok {
				t.Fatalf("Expected storefront error, got %v", err)
			}
			if sfErr.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, sfErr.Code)
			}
			if sfErr.GetHTTPStatus() != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, sfErr.GetHTTPStatus())
			}
			if !sfErr.IsTerminal() {
				t.Error("Expected terminal error")
			}
		})
	}

	if len(rec.renders) != 2 || rec.renders[1] != "index:"+string(sferrors.ErrStoreNotActive) {
		t.Errorf("Unexpected recorded renders: %v", rec.renders)
	}
}

func TestRenderPage_Home(t *testing.T) {
	e, rec := newTestEngine(t)

	page, err := e.RenderPage(context.Background(), "ACME.example.com", "/", nil)
	if err != nil {
		t.Fatalf("RenderPage failed: %v", err)
	}

	if page.StoreID != "store-1" || page.ThemeID != "dawn" {
		t.Errorf("Unexpected page identity: %+v", page)
	}
	if page.Template != "templates/index.json" || page.PageType != types.PageHome {
		t.Errorf("Unexpected template %s (%s)", page.Template, page.PageType)
	}

	for _, want := range []string{
		"<title>Acme</title>",
		"<header>Acme</header>",
		`<div id="section-hero" class="section section-hero"><h2>Summer Sale</h2>`,
		`<div id="section-oops" class="section section-broken"><!-- section 'broken' failed to render`,
		"<footer>Thanks for visiting</footer>",
	} {
		if !strings.Contains(page.HTML, want) {
			t.Errorf("Expected %q in page:\n%s", want, page.HTML)
		}
	}

	if strings.Index(page.HTML, "section-hero") > strings.Index(page.HTML, "section-oops") {
		t.Error("Expected sections in template order")
	}
	if len(rec.failures) != 1 || rec.failures[0] != "broken" {
		t.Errorf("Expected one section failure, got %v", rec.failures)
	}
}

func TestRenderPage_Product(t *testing.T) {
	e, _ := newTestEngine(t)

	page, err := e.RenderPage(context.Background(), "acme.example.com", "/products/shirt", url.Values{"page": {"2"}})
	if err != nil {
		t.Fatalf("RenderPage failed: %v", err)
	}
	if !strings.Contains(page.HTML, "<main><h1>Shirt</h1></main>") {
		t.Errorf("Expected product in layout, got:\n%s", page.HTML)
	}
	if page.Metadata.Title != "Shirt | Acme" {
		t.Errorf("Expected product title, got %q", page.Metadata.Title)
	}
	if page.Metadata.Canonical != "https://acme.example.com/products/shirt" {
		t.Errorf("Unexpected canonical URL %q", page.Metadata.Canonical)
	}
}

func TestRenderPage_MissingProductRendersNotFound(t *testing.T) {
	e, _ := newTestEngine(t)

	page, err := e.RenderPage(context.Background(), "acme.example.com", "/products/nope", nil)
	if err != nil {
		t.Fatalf("RenderPage failed: %v", err)
	}
	if page.PageType != types.PageNotFound || page.Template != "templates/404.liquid" {
		t.Errorf("Expected 404 template, got %s (%s)", page.Template, page.PageType)
	}
	if !strings.Contains(page.HTML, "<h1>Not found</h1>") {
		t.Errorf("Expected not found markup, got:\n%s", page.HTML)
	}
}

func TestRenderPage_TemplateErrors(t *testing.T) {
	e, _ := newTestEngine(t)

	tests := []struct {
		name string
		path string
		code sferrors.ErrorCode
	}{
		{"missing template", "/search", sferrors.ErrTemplateNotFound},
		{"broken template", "/pages/about", sferrors.ErrRenderError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.RenderPage(context.Background(), "acme.example.com", tt.path, nil)
			if !sferrors.HasCode(err, tt.code) {
				t.Errorf("Expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestRenderPage_DefaultTheme(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Themes.DefaultTheme = "dawn"

	store := storage.NewMemoryStorage()
	if err := store.SaveStore(ctx, &types.Store{ID: "s", Name: "Plain", Domain: "plain.example.com", IsActive: true}); err != nil {
		t.Fatalf("SaveStore failed: %v", err)
	}
	files := themes.NewMemoryStorage()
	if err := files.PutAll("dawn", map[string]string{"templates/index.liquid": "<p>{{ shop.name }}</p>"}); err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}
	mem := cache.NewMemoryCache(cache.MemoryConfig{DefaultTTL: time.Minute, MaxSize: 10, CleanupInterval: -1})
	t.Cleanup(mem.Stop)
	res, err := resolver.New(store, mem, cfg.Cache, logging.NewNopLogger())
	if err != nil {
		t.Fatalf("resolver.New failed: %v", err)
	}
	e, err := New(cfg, Dependencies{Resolver: res, Storage: store, Themes: files})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	page, err := e.RenderPage(ctx, "plain.example.com", "/", nil)
	if err != nil {
		t.Fatalf("RenderPage failed: %v", err)
	}
	if page.ThemeID != "dawn" || page.HTML != "<p>Plain</p>" {
		t.Errorf("Expected bare render with default theme, got %q from %s", page.HTML, page.ThemeID)
	}
}

func TestAnalyze(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	res := e.Analyze(ctx, "dawn", "", "index")
	if res.Terminal() {
		t.Fatalf("Analyze failed: %v", res.Err)
	}
	if res.Value.Template == nil || len(res.Value.Template.Sections) != 2 {
		t.Errorf("Expected parsed JSON template, got %+v", res.Value.Template)
	}

	missing := e.Analyze(ctx, "dawn", "", "search")
	if !missing.Terminal() || !sferrors.HasCode(missing.Err, sferrors.ErrTemplateNotFound) {
		t.Errorf("Expected terminal TEMPLATE_NOT_FOUND, got %+v", missing)
	}
}

func TestRenderPage_NestedSections(t *testing.T) {
	deep := map[string]string{"templates/page.liquid": `{% section "level0" %}`}
	for i := 0; i < 10; i++ {
		deep[fmt.Sprintf("sections/level%d.liquid", i)] = fmt.Sprintf(`<i%d>{%% section "level%d" %%}</i%d>`, i, i+1, i)
	}

	tests := []struct {
		name     string
		files    map[string]string
		want     []string
		failures []string
	}{
		{
			name: "self include",
			files: map[string]string{
				"sections/loop.liquid":  `<div>{% section "loop" %}</div>`,
				"templates/page.liquid": `{% section "loop" %}`,
			},
			want:     []string{`<div><!-- section 'loop' failed to render: section includes itself --></div>`},
			failures: []string{"loop"},
		},
		{
			name: "mutual include",
			files: map[string]string{
				"sections/ping.liquid":  `<ping>{% section "pong" %}</ping>`,
				"sections/pong.liquid":  `<pong>{% section "sections/ping.liquid" %}</pong>`,
				"templates/page.liquid": `{% section "ping" %}`,
			},
			want:     []string{`<ping><pong><!-- section 'sections/ping.liquid' failed to render: section includes itself --></pong></ping>`},
			failures: []string{"sections/ping.liquid"},
		},
		{
			name: "same section twice is not a cycle",
			files: map[string]string{
				"sections/wrap.liquid":  `<wrap>{% section "hero" %}{% section "hero" %}</wrap>`,
				"templates/page.liquid": `{% section "wrap" %}`,
			},
			want: []string{"<wrap><h2>Welcome</h2>"},
		},
		{
			name:     "too deep",
			files:    deep,
			want:     []string{"<i0><i1><i2><i3><i4><i5><i6><i7><!-- section 'level8' failed to render: sections nested more than 8 deep --></i7>"},
			failures: []string{"level8"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, rec := newTestEngine(t)
			if err := e.themes.(*themes.MemoryStorage).PutAll("dawn", tt.files); err != nil {
				t.Fatalf("PutAll failed: %v", err)
			}

			page, err := e.RenderPage(context.Background(), "acme.example.com", "/pages/about", nil)
			if err != nil {
				t.Fatalf("RenderPage failed: %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(page.HTML, want) {
					t.Errorf("Expected %q in:\n%s", want, page.HTML)
				}
			}
			if len(tt.failures) == 0 && strings.Contains(page.HTML, "failed to render") {
				t.Errorf("Expected no placeholders, got:\n%s", page.HTML)
			}
			rec.mu.Lock()
			defer rec.mu.Unlock()
			if len(rec.failures) != len(tt.failures) {
				t.Fatalf("Expected section failures %v, got %v", tt.failures, rec.failures)
			}
			for i := range tt.failures {
				if rec.failures[i] != tt.failures[i] {
					t.Errorf("Expected section failures %v, got %v", tt.failures, rec.failures)
				}
			}
		})
	}
}

func TestRenderPage_JSONTemplateEscapesSectionIDs(t *testing.T) {
	e, _ := newTestEngine(t)
	err := e.themes.(*themes.MemoryStorage).PutAll("dawn", map[string]string{
		"templates/index.json": `{"sections": {"x\"><script>": {"type": "hero"}}, "order": ["x\"><script>"]}`,
	})
	if err != nil {
		t.Fatalf("PutAll failed: %v", err)
	}

	page, err := e.RenderPage(context.Background(), "acme.example.com", "/", nil)
	if err != nil {
		t.Fatalf("RenderPage failed: %v", err)
	}
	if strings.Contains(page.HTML, "<script>") {
		t.Errorf("Expected section id to be escaped, got:\n%s", page.HTML)
	}
	if !strings.Contains(page.HTML, `<div id="section-x&#34;&gt;&lt;script&gt;" class="section section-hero">`) {
		t.Errorf("Expected escaped section wrapper, got:\n%s", page.HTML)
	}
}

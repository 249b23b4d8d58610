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

package tags

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/flosch/pongo2/v6"

	"github.com/storeforge/storefront/internal/config"
	"github.com/storeforge/storefront/internal/logging"
)

func TestMain(m *testing.M) {
	if err := Register(logging.NewNopLogger()); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func render(t *testing.T, source string, ctx pongo2.Context) string {
	t.Helper()
	tpl, err := pongo2.FromString(source)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	out, err := tpl.Execute(ctx)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	return out
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetLogger(logging.NewLoggerWithWriter(config.LoggingConfig{Level: "debug", Format: "json"}, &buf))
	t.Cleanup(func() { SetLogger(logging.NewNopLogger()) })
	return &buf
}

func TestRegister_Idempotent(t *testing.T) {
	if err := Register(logging.NewNopLogger()); err != nil {
		t.Errorf("second Register returned %v", err)
	}
}

func TestSchemaTag(t *testing.T) {
	out := render(t, `before{% schema %}{"name":"Hero","settings":[{"type":"text","id":"heading"}]}{% endschema %}after`, nil)
	if out != "beforeafter" {
		t.Errorf("Expected schema to produce no output, got %q", out)
	}
}

func TestSchemaTag_InvalidJSON(t *testing.T) {
	logs := captureLogs(t)

	out := render(t, `<p>ok</p>{% schema %}{"name": }{% endschema %}`, nil)
	if out != "<p>ok</p>" {
		t.Errorf("Expected page to render despite bad schema, got %q", out)
	}
	if !strings.Contains(logs.String(), "Invalid schema JSON") {
		t.Errorf("Expected warning to be logged, got %q", logs.String())
	}
	if !strings.Contains(logs.String(), `"level":"warn"`) {
		t.Errorf("Expected warn level, got %q", logs.String())
	}
}

func TestSchemaTag_NotClosed(t *testing.T) {
	_, err := pongo2.FromString(`{% schema %}{"name":"Hero"}`)
	if err == nil || !strings.Contains(err.Error(), "not closed") {
		t.Errorf("Expected not closed error, got %v", err)
	}
}

func TestSchemaTag_RejectsArguments(t *testing.T) {
	if _, err := pongo2.FromString(`{% schema "x" %}{}{% endschema %}`); err == nil {
		t.Error("Expected error for schema arguments")
	}
}

func TestSectionsTag(t *testing.T) {
	preloaded := map[string]string{
		"announcement-bar": "<div>sale</div>",
		"header":           "<header>logo</header>",
		"footer":           "<footer>bye</footer>",
	}

	tests := []struct {
		name   string
		source string
		ctx    pongo2.Context
		want   string
	}{
		{
			name:   "header group in fixed order",
			source: `{% sections 'header-group' %}`,
			ctx:    pongo2.Context{PreloadedSectionsKey: preloaded},
			want:   "<div>sale</div><header>logo</header>",
		},
		{
			name:   "footer group",
			source: `{% sections "footer-group" %}`,
			ctx:    pongo2.Context{PreloadedSectionsKey: preloaded},
			want:   "<footer>bye</footer>",
		},
		{
			name:   "not preloaded",
			source: `{% sections 'header-group' %}`,
			ctx:    pongo2.Context{},
			want:   "<!-- section group 'header-group' not preloaded -->",
		},
		{
			name:   "partially preloaded",
			source: `{% sections 'header-group' %}`,
			ctx:    pongo2.Context{PreloadedSectionsKey: map[string]interface{}{"header": "<header/>"}},
			want:   "<header/>",
		},
		{
			name:   "unknown group",
			source: `{% sections 'sidebar-group' %}`,
			ctx:    pongo2.Context{PreloadedSectionsKey: preloaded},
			want:   "<!-- section group 'sidebar-group' is not defined -->",
		},
		{
			name:   "custom group table",
			source: `{% sections 'sidebar-group' %}`,
			ctx: pongo2.Context{
				PreloadedSectionsKey: preloaded,
				GroupTableKey:        GroupTable{"sidebar-group": {"footer", "header"}},
			},
			want: "<footer>bye</footer><header>logo</header>",
		},
		{
			name:   "group name from variable",
			source: `{% sections group %}`,
			ctx:    pongo2.Context{PreloadedSectionsKey: preloaded, "group": "footer-group"},
			want:   "<footer>bye</footer>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(t, tt.source, tt.ctx); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSectionTag(t *testing.T) {
	var rendered []string
	renderFn := SectionFunc(func(name string) string {
		rendered = append(rendered, name)
		return "<section>" + name + "</section>"
	})

	tests := []struct {
		name string
		ctx  pongo2.Context
		want string
	}{
		{"preloaded", pongo2.Context{PreloadedSectionsKey: map[string]string{"hero": "<h1>hero</h1>"}}, "<h1>hero</h1>"},
		{"rendered on demand", pongo2.Context{SectionFuncKey: renderFn}, "<section>hero</section>"},
		{"unavailable", pongo2.Context{}, "<!-- section 'hero' not preloaded -->"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(t, `{% section 'hero' %}`, tt.ctx); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
	if len(rendered) != 1 || rendered[0] != "hero" {
		t.Errorf("Expected one on-demand render, got %v", rendered)
	}

	if _, err := pongo2.FromString(`{% section %}`); err == nil {
		t.Error("Expected error for missing section name")
	}
}

func TestPaginateTag(t *testing.T) {
	source := `{% paginate collection.products by 12 %}page {{ paginate.current_page }} of {{ paginate.pages }}{% endpaginate %}`

	out := render(t, source, pongo2.Context{
		PaginationKey: map[string]interface{}{"current_page": 2, "pages": 5},
		"collection":  map[string]interface{}{"products": []string{"a"}},
	})
	if out != "page 2 of 5" {
		t.Errorf("Unexpected paginate output %q", out)
	}

	logs := captureLogs(t)
	out = render(t, source, pongo2.Context{})
	if out != "" {
		t.Errorf("Expected body to be skipped without pagination, got %q", out)
	}
	if !strings.Contains(logs.String(), "paginate used without pagination") {
		t.Errorf("Expected warning, got %q", logs.String())
	}
}

func TestPaginateTag_ParseErrors(t *testing.T) {
	for _, source := range []string{
		`{% paginate %}x{% endpaginate %}`,
		`{% paginate products by 12 extra %}x{% endpaginate %}`,
		`{% paginate products by 12 %}x`,
	} {
		if _, err := pongo2.FromString(source); err == nil {
			t.Errorf("Expected parse error for %q", source)
		}
	}
}

func TestScriptTag(t *testing.T) {
	tests := []struct {
		name   string
		source string
		ctx    pongo2.Context
		want   string
	}{
		{
			name:   "no attributes",
			source: `{% script %}console.log(1);{% endscript %}`,
			want:   `<script>console.log(1);</script>`,
		},
		{
			name:   "bare flag and values",
			source: `{% script defer src="/assets/app.js" type="module" %}{% endscript %}`,
			want:   `<script defer src="/assets/app.js" type="module"></script>`,
		},
		{
			name:   "dashed attribute",
			source: `{% script async data-store-id="s1" %}{% endscript %}`,
			want:   `<script async data-store-id="s1"></script>`,
		},
		{
			name:   "nested expressions render",
			source: `{% script %}var shop = "{{ shop.name }}";{% if shop.open %}open();{% endif %}{% endscript %}`,
			ctx:    pongo2.Context{"shop": map[string]interface{}{"name": "Acme", "open": true}},
			want:   `<script>var shop = "Acme";open();</script>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := render(t, tt.source, tt.ctx); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFilters(t *testing.T) {
	out := render(t, `{{ price|money }} {{ price|money:"€" }} {{ title|handleize }}`, pongo2.Context{
		"price": 12.5,
		"title": "  Summer Sale: 50% Off!",
	})
	if out != "$12.50 €12.50 summer-sale-50-off" {
		t.Errorf("Unexpected filter output %q", out)
	}
}

func TestGroupTable(t *testing.T) {
	table := DefaultGroups()
	header, ok := table.Sections("header-group")
	if !ok || len(header) != 2 || header[0] != "announcement-bar" || header[1] != "header" {
		t.Errorf("Unexpected header group %v", header)
	}
	all := table.AllSections()
	if strings.Join(all, ",") != "announcement-bar,footer,header" {
		t.Errorf("Unexpected AllSections %v", all)
	}
}

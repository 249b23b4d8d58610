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

package sections

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const heroSection = `<section class="hero">
  <h1>{{ section.settings.heading }}</h1>
</section>
{% schema %}
{
  "name": "Hero",
  "settings": [
    {"type": "text", "id": "heading", "default": "Welcome"},
    {"type": "textarea", "id": "body"},
    {"type": "checkbox", "id": "show_button"},
    {"type": "color", "id": "accent"},
    {"type": "range", "id": "padding", "min": 0, "max": 100},
    {"type": "number", "id": "products_per_page", "default": 12},
    {"type": "image_picker", "id": "background"},
    {"type": "select", "id": "alignment", "options": [{"value": "left"}, {"value": "center"}]},
    {"type": "header", "content": "Layout"}
  ],
  "blocks": [
    {"type": "button", "name": "Button", "settings": [{"type": "url", "id": "link"}]}
  ],
  "presets": [{"name": "Hero"}]
}
{% endschema %}`

func TestExtract(t *testing.T) {
	ex, err := Extract(heroSection)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !ex.Found {
		t.Fatal("Expected schema to be found")
	}
	if ex.Schema.Name != "Hero" {
		t.Errorf("Expected name Hero, got %q", ex.Schema.Name)
	}
	if strings.Contains(ex.Body, "schema") || strings.Contains(ex.Body, `"settings"`) {
		t.Errorf("Schema block leaked into body: %q", ex.Body)
	}
	if !strings.Contains(ex.Body, "{{ section.settings.heading }}") {
		t.Errorf("Body lost markup: %q", ex.Body)
	}

	want := map[string]interface{}{
		"heading":           "Welcome",
		"body":              "",
		"show_button":       false,
		"accent":            "#000000",
		"padding":           0,
		"products_per_page": float64(12),
		"background":        nil,
		"alignment":         "",
	}
	if diff := cmp.Diff(want, ex.Schema.Defaults()); diff != "" {
		t.Errorf("Defaults mismatch (-want +got):\n%s", diff)
	}

	block, ok := ex.Schema.Block("button")
	if !ok {
		t.Fatal("Expected button block definition")
	}
	if diff := cmp.Diff(map[string]interface{}{"link": ""}, block.Defaults()); diff != "" {
		t.Errorf("Block defaults mismatch (-want +got):\n%s", diff)
	}
	if len(ex.Schema.Presets) != 1 {
		t.Errorf("Expected 1 preset, got %d", len(ex.Schema.Presets))
	}
}

func TestExtract_EdgeCases(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantName  string
		wantFound bool
		wantErr   error
		wantBody  string
	}{
		{
			name:     "no schema",
			body:     "<div>plain</div>",
			wantName: DefaultName,
			wantBody: "<div>plain</div>",
		},
		{
			name:      "missing name",
			body:      `<p>x</p>{% schema %}{"settings":[]}{% endschema %}`,
			wantName:  DefaultName,
			wantFound: true,
			wantBody:  "<p>x</p>",
		},
		{
			name:      "whitespace control markers",
			body:      `<p>x</p>{%- schema -%}{"name":"Trim"}{%- endschema -%}`,
			wantName:  "Trim",
			wantFound: true,
			wantBody:  "<p>x</p>",
		},
		{
			name:      "empty block",
			body:      `<p>x</p>{% schema %}   {% endschema %}`,
			wantName:  DefaultName,
			wantFound: true,
			wantBody:  "<p>x</p>",
		},
		{
			name:     "not closed",
			body:     `<p>x</p>{% schema %}{"name":"Open"}`,
			wantName: DefaultName,
			wantErr:  ErrSchemaNotClosed,
			wantBody: `<p>x</p>{% schema %}{"name":"Open"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex, err := Extract(tt.body)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected error %v, got %v", tt.wantErr, err)
				}
			} else if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if ex.Schema.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", ex.Schema.Name, tt.wantName)
			}
			if ex.Found != tt.wantFound {
				t.Errorf("Found = %v, want %v", ex.Found, tt.wantFound)
			}
			if ex.Body != tt.wantBody {
				t.Errorf("Body = %q, want %q", ex.Body, tt.wantBody)
			}
		})
	}
}

func TestExtract_InvalidJSON(t *testing.T) {
	ex, err := Extract(`<p>x</p>{% schema %}{"name": "Broken",}{% endschema %}`)
	if err == nil {
		t.Fatal("Expected JSON error")
	}
	if ex.Body != "<p>x</p>" {
		t.Errorf("Expected stripped body, got %q", ex.Body)
	}
	if ex.Schema.Name != DefaultName || len(ex.Schema.Settings) != 0 {
		t.Errorf("Expected empty schema, got %+v", ex.Schema)
	}
}

func TestStrip(t *testing.T) {
	body := `a{% schema %}{}{% endschema %}b{% schema %}{"name":"2"}{% endschema %}c`
	if got := Strip(body); got != "abc" {
		t.Errorf("Strip = %q, want abc", got)
	}
}

func TestDefaultForType(t *testing.T) {
	tests := []struct {
		settingType string
		want        interface{}
	}{
		{"text", ""},
		{"textarea", ""},
		{"richtext", ""},
		{"url", ""},
		{"select", ""},
		{"radio", ""},
		{"number", 0},
		{"range", 0},
		{"checkbox", false},
		{"color", "#000000"},
		{"image", nil},
		{"video", nil},
		{"file", nil},
		{"unknown", nil},
	}
	for _, tt := range tests {
		t.Run(tt.settingType, func(t *testing.T) {
			if got := DefaultForType(tt.settingType); got != tt.want {
				t.Errorf("DefaultForType(%q) = %v, want %v", tt.settingType, got, tt.want)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	defaults := map[string]interface{}{"heading": "Welcome", "padding": 0}
	persisted := map[string]interface{}{"heading": "Sale", "extra": true}

	merged := Merge(defaults, persisted)
	want := map[string]interface{}{"heading": "Sale", "padding": 0, "extra": true}
	if diff := cmp.Diff(want, merged); diff != "" {
		t.Errorf("Merge mismatch (-want +got):\n%s", diff)
	}
	if defaults["heading"] != "Welcome" {
		t.Error("Merge must not mutate defaults")
	}
}

func TestSchema_NilSafe(t *testing.T) {
	var s *Schema
	if len(s.Defaults()) != 0 {
		t.Error("Expected empty defaults for nil schema")
	}
	if _, ok := s.Block("x"); ok {
		t.Error("Expected no block for nil schema")
	}
	if _, ok := s.Setting("x"); ok {
		t.Error("Expected no setting for nil schema")
	}
}

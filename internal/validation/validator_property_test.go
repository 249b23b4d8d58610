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

//go:build property

package validation

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/storeforge/storefront/internal/config"
	"github.com/storeforge/storefront/internal/logging"
	"github.com/storeforge/storefront/internal/types"
)

var generatedPaths = []interface{}{
	"layout/theme.liquid", "templates/index.json", "templates/product.json",
	"templates/collection.json", "sections/hero.liquid", "assets/app.js",
	"assets/notes.md", "README", "config/theme.yaml", "snippets/card.liquid",
}

var generatedContents = []interface{}{
	`{"sections": {}, "order": []}`,
	`{"sections": `,
	`{% schema %}{"name": "X"}{% endschema %}`,
	`{% schema %}{{% endschema %}`,
	"version: 1.0.0\n",
	"",
}

// TestValidationProperties checks report properties over generated packages
func TestValidationProperties(t *testing.T) {
	cfg := config.Default().Validation
	cfg.MaxFiles = 6
	v, err := New(cfg, config.Default().Render, logging.NewNopLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	properties := gopter.NewProperties(nil)

	properties.Property("valid iff no errors", prop.ForAll(
		func(paths []string, contents []string) bool {
			files := make([]types.ThemeFile, 0, len(paths))
			for i, p := range paths {
				content := ""
				if len(contents) > 0 {
					content = contents[i%len(contents)]
				}
				files = append(files, types.ThemeFile{Path: p, Content: content, Size: int64(len(content))})
			}
			report := v.ValidateThemeFiles(context.Background(), files, "store")
			if report.IsValid != (len(report.Errors) == 0) {
				return false
			}
			for _, issue := range report.Errors {
				if !issue.Blocking() {
					return false
				}
			}
			for _, issue := range report.Warnings {
				if issue.Blocking() {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.OneConstOf(generatedPaths...)),
		gen.SliceOf(gen.OneConstOf(generatedContents...)),
	))

	properties.Property("one critical error per missing required file", prop.ForAll(
		func(paths []string) bool {
			files := make([]types.ThemeFile, 0, len(paths))
			present := make(map[string]bool)
			for _, p := range paths {
				files = append(files, types.ThemeFile{Path: p})
				present[p] = true
			}
			missing := 0
			for _, want := range cfg.RequiredFiles {
				if !present[want] {
					missing++
				}
			}
			return len(CheckRequiredFiles(files, cfg.RequiredFiles)) == missing
		},
		gen.SliceOf(gen.OneConstOf(generatedPaths...)),
	))

	properties.TestingRun(t)
}

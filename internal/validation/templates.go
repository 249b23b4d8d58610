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

package validation

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/storeforge/storefront/internal/sections"
	"github.com/storeforge/storefront/internal/types"
)

// ThemeInfoFile is the optional theme metadata document
const ThemeInfoFile = "config/theme.yaml"

// templateSchema describes a declarative JSON page template
const templateSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["sections", "order"],
  "properties": {
    "layout": {"type": ["string", "boolean"]},
    "sections": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["type"],
        "properties": {
          "type": {"type": "string", "minLength": 1},
          "settings": {"type": "object"},
          "disabled": {"type": "boolean"},
          "blocks": {
            "type": "object",
            "additionalProperties": {
              "type": "object",
              "required": ["type"],
              "properties": {
                "type": {"type": "string", "minLength": 1},
                "settings": {"type": "object"},
                "disabled": {"type": "boolean"}
              }
            }
          },
          "block_order": {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "order": {"type": "array", "items": {"type": "string"}}
  }
}`

// ThemeInfo is the content of config/theme.yaml
type ThemeInfo struct {
	Name    string `yaml:"name" json:"name"`
	Version string `yaml:"version" json:"version"`
	Author  string `yaml:"author,omitempty" json:"author,omitempty"`
}

func compileTemplateSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("template.json", strings.NewReader(templateSchema)); err != nil {
		return nil, fmt.Errorf("failed to add template schema: %w", err)
	}
	schema, err := compiler.Compile("template.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile template schema: %w", err)
	}
	return schema, nil
}

// checkJSONTemplates validates every templates/*.json document. Parse and
// schema failures are errors; order entries without a section are warnings.
func checkJSONTemplates(files []types.ThemeFile, schema *jsonschema.Schema) []Issue {
	var issues []Issue
	for _, f := range files {
		if !inDir(f.Path, "templates") || f.Ext() != ".json" {
			continue
		}

		var doc interface{}
		if err := json.Unmarshal([]byte(f.Content), &doc); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Category: CategoryTemplate,
				File:     f.Path,
				Message:  fmt.Sprintf("invalid JSON: %v", err),
			})
			continue
		}

		if err := schema.Validate(doc); err != nil {
			for _, msg := range schemaMessages(err) {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Category: CategoryTemplate,
					File:     f.Path,
					Message:  msg,
				})
			}
			continue
		}

		var tc types.TemplateConfig
		if err := json.Unmarshal([]byte(f.Content), &tc); err != nil {
			continue
		}
		for _, id := range tc.Order {
			if _, ok := tc.Sections[id]; !ok {
				issues = append(issues, Issue{
					Severity: SeverityWarning,
					Category: CategoryTemplate,
					File:     f.Path,
					Message:  fmt.Sprintf("order references unknown section %q", id),
				})
			}
		}
	}
	return issues
}

// schemaMessages flattens a jsonschema error into leaf messages
func schemaMessages(err error) []string {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}
	var messages []string
	var collect func(*jsonschema.ValidationError)
	collect = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			location := e.InstanceLocation
			if location == "" {
				location = "(root)"
			}
			messages = append(messages, fmt.Sprintf("%s: %s", location, e.Message))
			return
		}
		for _, cause := range e.Causes {
			collect(cause)
		}
	}
	collect(verr)
	sort.Strings(messages)
	return messages
}

// checkSectionSchemas warns about sections whose schema block does not parse
func checkSectionSchemas(files []types.ThemeFile) []Issue {
	var issues []Issue
	for _, f := range files {
		if !inDir(f.Path, "sections") || f.Ext() != ".liquid" {
			continue
		}
		if _, err := sections.Extract(f.Content); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Category: CategorySchema,
				File:     f.Path,
				Message:  fmt.Sprintf("section schema is invalid and will be ignored: %v", err),
			})
		}
	}
	return issues
}

// checkThemeInfo validates the optional theme metadata file
func checkThemeInfo(files []types.ThemeFile) (*ThemeInfo, []Issue) {
	f, ok := findFile(files, ThemeInfoFile)
	if !ok {
		return nil, nil
	}
	warn := func(format string, args ...interface{}) []Issue {
		return []Issue{{
			Severity: SeverityWarning,
			Category: CategoryBestPractice,
			File:     f.Path,
			Message:  fmt.Sprintf(format, args...),
		}}
	}

	var info ThemeInfo
	if err := yaml.Unmarshal([]byte(f.Content), &info); err != nil {
		return nil, warn("theme info is not valid YAML: %v", err)
	}
	if info.Version == "" {
		return &info, warn("theme info has no version")
	}
	if _, err := semver.NewVersion(info.Version); err != nil {
		return &info, warn("theme version %q is not a semantic version", info.Version)
	}
	return &info, nil
}

// templatePath finds templates/{name}.json or .liquid
func templatePath(files []types.ThemeFile, name string) (types.ThemeFile, bool) {
	for _, ext := range []string{".json", ".liquid"} {
		if f, ok := findFile(files, path.Join("templates", name+ext)); ok {
			return f, true
		}
	}
	return types.ThemeFile{}, false
}

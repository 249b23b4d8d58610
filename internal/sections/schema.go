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

// Package sections extracts and applies the settings schema embedded in
// section templates.
package sections

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultName is used when a schema does not declare a name
const DefaultName = "Untitled Section"

var (
	// ErrSchemaNotClosed is returned when a schema block has no endschema marker
	ErrSchemaNotClosed = errors.New("schema tag not closed")

	schemaBlockRe = regexp.MustCompile(`(?s)\{%-?\s*schema\s*-?%\}(.*?)\{%-?\s*endschema\s*-?%\}`)
	schemaOpenRe  = regexp.MustCompile(`\{%-?\s*schema\s*-?%\}`)
)

// SettingOption is one choice of a select or radio setting
type SettingOption struct {
	Value interface{} `json:"value"`
	Label string      `json:"label,omitempty"`
}

// Setting is a configurable value declared by a schema
type Setting struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Label   string          `json:"label,omitempty"`
	Default interface{}     `json:"default,omitempty"`
	Info    string          `json:"info,omitempty"`
	Options []SettingOption `json:"options,omitempty"`
	Min     *float64        `json:"min,omitempty"`
	Max     *float64        `json:"max,omitempty"`
	Step    *float64        `json:"step,omitempty"`
}

// BlockDefinition declares a block type a section accepts
type BlockDefinition struct {
	Type     string    `json:"type"`
	Name     string    `json:"name,omitempty"`
	Limit    int       `json:"limit,omitempty"`
	Settings []Setting `json:"settings,omitempty"`
}

// Preset is a named starting configuration
type Preset struct {
	Name     string                   `json:"name"`
	Settings map[string]interface{}   `json:"settings,omitempty"`
	Blocks   []map[string]interface{} `json:"blocks,omitempty"`
}

// Schema is the parsed content of a {% schema %} block
type Schema struct {
	Name      string            `json:"name"`
	Tag       string            `json:"tag,omitempty"`
	Class     string            `json:"class,omitempty"`
	MaxBlocks int               `json:"max_blocks,omitempty"`
	Settings  []Setting         `json:"settings"`
	Blocks    []BlockDefinition `json:"blocks"`
	Presets   []Preset          `json:"presets,omitempty"`
}

// Empty returns a schema with no settings and the default name
func Empty() *Schema {
	return &Schema{
		Name:     DefaultName,
		Settings: []Setting{},
		Blocks:   []BlockDefinition{},
	}
}

// Parse decodes schema JSON. Malformed input yields an empty schema together
// with the decode error so callers can warn and carry on.
func Parse(raw string) (*Schema, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Empty(), nil
	}

	var s Schema
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Empty(), fmt.Errorf("invalid schema JSON: %w", err)
	}
	if strings.TrimSpace(s.Name) == "" {
		s.Name = DefaultName
	}
	if s.Settings == nil {
		s.Settings = []Setting{}
	}
	if s.Blocks == nil {
		s.Blocks = []BlockDefinition{}
	}
	return &s, nil
}

// Extracted is a section body split into its schema and renderable markup
type Extracted struct {
	Schema *Schema
	Body   string
	Raw    string
	Found  bool
}

// Extract finds the schema block in a section body, parses it and returns the
// body with the block removed. A section without a schema gets an empty one.
// On malformed JSON the empty schema and stripped body are still returned
// alongside the error.
func Extract(body string) (*Extracted, error) {
	loc := schemaBlockRe.FindStringSubmatchIndex(body)
	if loc == nil {
		if schemaOpenRe.MatchString(body) {
			return &Extracted{Schema: Empty(), Body: body}, ErrSchemaNotClosed
		}
		return &Extracted{Schema: Empty(), Body: body}, nil
	}

	raw := body[loc[2]:loc[3]]
	stripped := body[:loc[0]] + body[loc[1]:]
	// any further schema blocks are ignored but never rendered
	stripped = schemaBlockRe.ReplaceAllString(stripped, "")

	schema, err := Parse(raw)
	return &Extracted{Schema: schema, Body: stripped, Raw: raw, Found: true}, err
}

// Strip removes every schema block from a body
func Strip(body string) string {
	return schemaBlockRe.ReplaceAllString(body, "")
}

// DefaultForType returns the value a setting of the given type takes when
// its schema declares no default
func DefaultForType(settingType string) interface{} {
	switch settingType {
	case "text", "textarea", "richtext", "url", "select", "radio", "html",
		"inline_richtext", "liquid":
		return ""
	case "number", "range":
		return 0
	case "checkbox":
		return false
	case "color", "color_background":
		return "#000000"
	case "image", "image_picker", "video", "video_url", "file":
		return nil
	default:
		return nil
	}
}

func settingDefaults(settings []Setting) map[string]interface{} {
	defaults := make(map[string]interface{}, len(settings))
	for _, s := range settings {
		if s.ID == "" {
			continue
		}
		if s.Default != nil {
			defaults[s.ID] = s.Default
		} else {
			defaults[s.ID] = DefaultForType(s.Type)
		}
	}
	return defaults
}

// Defaults returns every declared setting id mapped to its default value
func (s *Schema) Defaults() map[string]interface{} {
	if s == nil {
		return map[string]interface{}{}
	}
	return settingDefaults(s.Settings)
}

// Block returns the definition for a block type
func (s *Schema) Block(blockType string) (BlockDefinition, bool) {
	if s == nil {
		return BlockDefinition{}, false
	}
	for _, b := range s.Blocks {
		if b.Type == blockType {
			return b, true
		}
	}
	return BlockDefinition{}, false
}

// Defaults returns the block's declared settings with defaults filled in
func (b BlockDefinition) Defaults() map[string]interface{} {
	return settingDefaults(b.Settings)
}

// Setting returns a declared setting by id
func (s *Schema) Setting(id string) (Setting, bool) {
	if s == nil {
		return Setting{}, false
	}
	for _, setting := range s.Settings {
		if setting.ID == id {
			return setting, true
		}
	}
	return Setting{}, false
}

// Merge overlays persisted values on defaults key by key, returning a new map
func Merge(defaults, persisted map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(defaults)+len(persisted))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range persisted {
		merged[k] = v
	}
	return merged
}

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

package types

import (
	"path"
	"sort"
	"strings"
)

// ThemeFile is a single file inside a theme package
type ThemeFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Size    int64  `json:"size"`
}

// Ext returns the lowercased extension of the file
func (f ThemeFile) Ext() string {
	return strings.ToLower(path.Ext(f.Path))
}

// Block is a configurable sub-element of a section instance
type Block struct {
	Type     string                 `json:"type"`
	Settings map[string]interface{} `json:"settings,omitempty"`
	Disabled bool                   `json:"disabled,omitempty"`
}

// SectionData is a section instance placed inside a JSON template
type SectionData struct {
	Type       string                 `json:"type"`
	Settings   map[string]interface{} `json:"settings,omitempty"`
	Blocks     map[string]Block       `json:"blocks,omitempty"`
	BlockOrder []string               `json:"block_order,omitempty"`
	Disabled   bool                   `json:"disabled,omitempty"`
}

// OrderedBlock pairs a block with its id
type OrderedBlock struct {
	ID string `json:"id"`
	Block
}

// OrderedBlocks returns the section's blocks following BlockOrder. Ids listed
// in the order but absent from the map are dropped. Without an explicit order
// blocks are sorted by id.
func (s SectionData) OrderedBlocks() []OrderedBlock {
	if len(s.Blocks) == 0 {
		return []OrderedBlock{}
	}

	order := s.BlockOrder
	if len(order) == 0 {
		order = make([]string, 0, len(s.Blocks))
		for id := range s.Blocks {
			order = append(order, id)
		}
		sort.Strings(order)
	}

	blocks := make([]OrderedBlock, 0, len(order))
	seen := make(map[string]bool, len(order))
	for _, id := range order {
		block, ok := s.Blocks[id]
		if !ok || seen[id] || block.Disabled {
			continue
		}
		seen[id] = true
		blocks = append(blocks, OrderedBlock{ID: id, Block: block})
	}
	return blocks
}

// TemplateConfig is the declarative body of a JSON page template
type TemplateConfig struct {
	Layout   string                 `json:"layout,omitempty"`
	Sections map[string]SectionData `json:"sections"`
	Order    []string               `json:"order"`
}

// OrderedSections returns section ids in render order, dropping unknown ids
func (t TemplateConfig) OrderedSections() []string {
	ids := make([]string, 0, len(t.Order))
	for _, id := range t.Order {
		if section, ok := t.Sections[id]; ok && !section.Disabled {
			ids = append(ids, id)
		}
	}
	return ids
}

// ThemeConfig holds a store's persisted section settings keyed by template
// name and section id
type ThemeConfig struct {
	StoreID   string                    `json:"store_id"`
	ThemeID   string                    `json:"theme_id"`
	Templates map[string]TemplateConfig `json:"templates"`
	Settings  map[string]interface{}    `json:"settings,omitempty"`
}

// Section returns the persisted data for a section id within a template,
// falling back to a lookup across every template.
func (c *ThemeConfig) Section(template, sectionID string) (SectionData, bool) {
	if c == nil {
		return SectionData{}, false
	}
	if tc, ok := c.Templates[template]; ok {
		if s, ok := tc.Sections[sectionID]; ok {
			return s, true
		}
	}
	names := make([]string, 0, len(c.Templates))
	for name := range c.Templates {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if s, ok := c.Templates[name].Sections[sectionID]; ok {
			return s, true
		}
	}
	return SectionData{}, false
}

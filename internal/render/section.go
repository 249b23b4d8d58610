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

package render

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	sferrors "github.com/storeforge/storefront/internal/errors"
	"github.com/storeforge/storefront/internal/logging"
	"github.com/storeforge/storefront/internal/sections"
	"github.com/storeforge/storefront/internal/themes"
	"github.com/storeforge/storefront/internal/types"
)

const maxPlaceholderError = 120

var (
	stripPolicy     *bluemonday.Policy
	stripPolicyOnce sync.Once
)

func textOnly(s string) string {
	stripPolicyOnce.Do(func() {
		stripPolicy = bluemonday.StrictPolicy()
	})
	return stripPolicy.Sanitize(s)
}

// SectionInput describes one section to render
type SectionInput struct {
	// ID is the instance id used to look up persisted settings; defaults to Name
	ID string
	// Name is the section type, e.g. "hero" for sections/hero.liquid
	Name string
	// Body is the raw section source including its schema block
	Body string
	// Template is the page template the section is placed in
	Template string
	// Instance carries settings and blocks declared in a JSON template
	Instance *types.SectionData
}

func (in SectionInput) id() string {
	if in.ID != "" {
		return in.ID
	}
	return in.Name
}

// SectionRenderer renders sections with failure isolation
type SectionRenderer struct {
	engine *Engine
	logger *logging.Logger
}

// NewSectionRenderer creates a section renderer on top of a theme engine
func NewSectionRenderer(engine *Engine, logger *logging.Logger) *SectionRenderer {
	return &SectionRenderer{
		engine: engine,
		logger: logger.WithComponent("render"),
	}
}

// Placeholder is the markup emitted in place of a section that could not be
// rendered
func Placeholder(name string, err error) string {
	msg := "unknown error"
	if err != nil {
		msg = textOnly(err.Error())
	}
	if len(msg) > maxPlaceholderError {
		cut := maxPlaceholderError
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "..."
	}
	return fmt.Sprintf("<!-- section '%s' failed to render: %s -->", commentSafe(name), commentSafe(msg))
}

func commentSafe(s string) string {
	s = strings.ReplaceAll(s, "--", "- -")
	return strings.ReplaceAll(s, ">", "&gt;")
}

// mergedSection builds the section object exposed to the template
func mergedSection(in SectionInput, schema *sections.Schema, cfg *types.ThemeConfig) map[string]interface{} {
	settings := schema.Defaults()
	var source *types.SectionData
	if in.Instance != nil {
		settings = sections.Merge(settings, in.Instance.Settings)
		source = in.Instance
	}
	if persisted, ok := cfg.Section(in.Template, in.id()); ok {
		settings = sections.Merge(settings, persisted.Settings)
		if len(persisted.Blocks) > 0 {
			source = &persisted
		}
	}

	blocks := []interface{}{}
	if source != nil {
		for _, b := range source.OrderedBlocks() {
			blockSettings := b.Settings
			if def, ok := schema.Block(b.Type); ok {
				blockSettings = sections.Merge(def.Defaults(), b.Settings)
			}
			blocks = append(blocks, map[string]interface{}{
				"id":       b.ID,
				"type":     b.Type,
				"settings": blockSettings,
			})
		}
	}

	return map[string]interface{}{
		"id":       in.id(),
		"type":     in.Name,
		"name":     schema.Name,
		"settings": settings,
		"blocks":   blocks,
	}
}

func schemaOnlySection(in SectionInput, schema *sections.Schema) map[string]interface{} {
	return map[string]interface{}{
		"id":       in.id(),
		"type":     in.Name,
		"name":     schema.Name,
		"settings": schema.Defaults(),
		"blocks":   []interface{}{},
	}
}

// RenderSection renders a section. Persisted settings override schema
// defaults key by key. On failure the section is rendered again with schema
// defaults only and no blocks; when that fails too a placeholder comment is
// returned. The result is never terminal.
func (r *SectionRenderer) RenderSection(in SectionInput, base Context, cfg *types.ThemeConfig) sferrors.Result[string] {
	logger := r.logger.WithFields(map[string]interface{}{"section": in.Name, "section_id": in.id()})

	extracted, err := sections.Extract(in.Body)
	if err != nil {
		if errors.Is(err, sections.ErrSchemaNotClosed) {
			logger.Warnf("Section schema not closed: %v", err)
			return sferrors.Recovered(Placeholder(in.Name, err), err)
		}
		logger.Warnf("Invalid section schema, using defaults: %v", err)
	}

	name := "sections/" + in.Name
	tpl, err := r.engine.Compile(name, extracted.Body)
	if err != nil {
		logger.Warnf("Section failed to compile: %v", err)
		return sferrors.Recovered(Placeholder(in.Name, err), err)
	}

	html, err := r.engine.Execute(tpl, name, base.With("section", mergedSection(in, extracted.Schema, cfg)))
	if err == nil {
		return sferrors.OK(html)
	}
	firstErr := err
	logger.Warnf("Section render failed, retrying with schema defaults: %v", err)

	html, err = r.engine.Execute(tpl, name, base.With("section", schemaOnlySection(in, extracted.Schema)))
	if err == nil {
		return sferrors.Recovered(html, firstErr)
	}

	logger.Warnf("Section render failed with schema defaults: %v", err)
	return sferrors.Recovered(Placeholder(in.Name, err), err)
}

// LoadSectionSafely reads sections/{name}.liquid, returning a placeholder
// body when the file cannot be read
func LoadSectionSafely(ctx context.Context, storage themes.Storage, themeID, name string) sferrors.Result[string] {
	f, err := storage.ReadFile(ctx, themeID, SectionPath(name))
	if err != nil {
		return sferrors.Recovered(fmt.Sprintf("<!-- section '%s' could not be loaded -->", commentSafe(name)), err)
	}
	return sferrors.OK(f.Content)
}

// SectionPath maps a section type to its file path
func SectionPath(name string) string {
	name = strings.TrimPrefix(name, "sections/")
	name = strings.TrimSuffix(name, ".liquid")
	return "sections/" + name + ".liquid"
}

// RenderNamed loads a section by name and renders it. Any failure becomes a
// placeholder.
func (r *SectionRenderer) RenderNamed(ctx context.Context, storage themes.Storage, in SectionInput, base Context, cfg *types.ThemeConfig) sferrors.Result[string] {
	loaded := LoadSectionSafely(ctx, storage, r.engine.ThemeID(), in.Name)
	if loaded.Err != nil {
		r.logger.WithField("section", in.Name).Warnf("Section file missing: %v", loaded.Err)
		return loaded
	}
	in.Body = loaded.Value
	return r.RenderSection(in, base, cfg)
}

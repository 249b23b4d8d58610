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

// Package render wraps pongo2 with one template set per theme and renders
// sections with schema defaults merged into their settings.
package render

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"

	"github.com/storeforge/storefront/internal/themes"
)

// themeLoader resolves include paths against a theme in theme storage
type themeLoader struct {
	storage themes.Storage
	themeID string
}

// Abs maps include names to theme paths. A bare name is a snippet.
func (l *themeLoader) Abs(base, name string) string {
	cleaned, err := themes.CleanPath(name)
	if err != nil {
		return name
	}
	if !strings.Contains(cleaned, "/") {
		cleaned = "snippets/" + cleaned
	}
	if path.Ext(cleaned) == "" {
		cleaned += ".liquid"
	}
	return cleaned
}

func (l *themeLoader) Get(p string) (io.Reader, error) {
	f, err := l.storage.ReadFile(context.Background(), l.themeID, p)
	if err != nil {
		return nil, err
	}
	return strings.NewReader(f.Content), nil
}

// Engine compiles and executes the templates of one theme
type Engine struct {
	themeID string
	mu      sync.RWMutex
	set     *pongo2.TemplateSet
	loader  *themeLoader
	cache   map[string]*pongo2.Template
}

// NewEngine creates an engine for a theme
func NewEngine(storage themes.Storage, themeID string) *Engine {
	e := &Engine{
		themeID: themeID,
		loader:  &themeLoader{storage: storage, themeID: themeID},
	}
	e.reset()
	return e
}

func (e *Engine) reset() {
	set := pongo2.NewSet("theme-"+e.themeID, e.loader)
	// themes are tenant supplied; no access to server files
	set.BanTag("ssi")
	e.set = set
	e.cache = make(map[string]*pongo2.Template)
}

// ThemeID returns the theme this engine serves
func (e *Engine) ThemeID() string {
	return e.themeID
}

func cacheKey(name, source string) string {
	h := fnv.New64a()
	h.Write([]byte(source))
	return fmt.Sprintf("%s:%x", name, h.Sum64())
}

// Compile parses source, reusing an earlier compilation of identical source
func (e *Engine) Compile(name, source string) (*pongo2.Template, error) {
	key := cacheKey(name, source)

	e.mu.RLock()
	tpl, ok := e.cache[key]
	set := e.set
	e.mu.RUnlock()
	if ok {
		return tpl, nil
	}

	tpl, err := set.FromString(source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}

	e.mu.Lock()
	if e.set == set {
		e.cache[key] = tpl
	}
	e.mu.Unlock()
	return tpl, nil
}

// Execute runs a compiled template against data
func (e *Engine) Execute(tpl *pongo2.Template, name string, data Context) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while rendering %s: %v", name, r)
		}
	}()

	ctx, err := data.pongo()
	if err != nil {
		return "", fmt.Errorf("failed to build context for %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tpl.ExecuteWriter(ctx, &buf); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}

// RenderString compiles and executes source in one step
func (e *Engine) RenderString(name, source string, data Context) (string, error) {
	tpl, err := e.Compile(name, source)
	if err != nil {
		return "", err
	}
	return e.Execute(tpl, name, data)
}

// Invalidate drops every compiled template, including cached includes
func (e *Engine) Invalidate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset()
}

// Size returns the number of compiled templates held
func (e *Engine) Size() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

// Manager hands out one engine per theme
type Manager struct {
	storage themes.Storage
	mu      sync.Mutex
	engines map[string]*Engine
}

// NewManager creates an engine manager over theme storage
func NewManager(storage themes.Storage) *Manager {
	return &Manager{
		storage: storage,
		engines: make(map[string]*Engine),
	}
}

// Engine returns the engine for a theme, creating it on first use
func (m *Manager) Engine(themeID string) *Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.engines[themeID]
	if !ok {
		e = NewEngine(m.storage, themeID)
		m.engines[themeID] = e
	}
	return e
}

// Invalidate drops compiled templates of a theme. The themes watcher calls
// this on file changes.
func (m *Manager) Invalidate(themeID string) {
	m.mu.Lock()
	e, ok := m.engines[themeID]
	m.mu.Unlock()
	if ok {
		e.Invalidate()
	}
}

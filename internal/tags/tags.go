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

// Package tags registers the storefront tag extensions with pongo2:
// schema, section, sections, paginate and script.
package tags

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/flosch/pongo2/v6"

	"github.com/storeforge/storefront/internal/logging"
)

// Context keys read by the tag extensions
const (
	PreloadedSectionsKey = "preloaded_sections"
	GroupTableKey        = "section_groups"
	SectionFuncKey       = "section_renderer"
	PaginationKey        = "pagination"
	PaginateKey          = "paginate"
)

var (
	registerOnce sync.Once
	registerErr  error
	tagLogger    atomic.Pointer[logging.Logger]
)

func init() {
	tagLogger.Store(logging.NewNopLogger())
}

// SetLogger replaces the logger used for tag warnings
func SetLogger(logger *logging.Logger) {
	if logger != nil {
		tagLogger.Store(logger.WithComponent("tags"))
	}
}

func logger() *logging.Logger {
	return tagLogger.Load()
}

// Register installs the tags and filters into pongo2. Subsequent calls only
// swap the logger.
func Register(l *logging.Logger) error {
	SetLogger(l)
	registerOnce.Do(func() {
		registrations := []struct {
			name   string
			parser pongo2.TagParser
		}{
			{"schema", schemaTagParser},
			{"section", sectionTagParser},
			{"sections", sectionsTagParser},
			{"paginate", paginateTagParser},
			{"script", scriptTagParser},
		}
		for _, r := range registrations {
			if err := pongo2.RegisterTag(r.name, r.parser); err != nil {
				registerErr = fmt.Errorf("failed to register tag %s: %w", r.name, err)
				return
			}
		}

		filters := map[string]pongo2.FilterFunction{
			"money":     filterMoney,
			"handleize": filterHandleize,
		}
		for name, fn := range filters {
			if pongo2.FilterExists(name) {
				continue
			}
			if err := pongo2.RegisterFilter(name, fn); err != nil {
				registerErr = fmt.Errorf("failed to register filter %s: %w", name, err)
				return
			}
		}
	})
	return registerErr
}

func filterMoney(in *pongo2.Value, param *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	symbol := "$"
	if param != nil && !param.IsNil() && param.String() != "" {
		symbol = param.String()
	}
	return pongo2.AsValue(fmt.Sprintf("%s%.2f", symbol, in.Float())), nil
}

func filterHandleize(in *pongo2.Value, param *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(in.String())) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return pongo2.AsValue(strings.TrimSuffix(b.String(), "-")), nil
}

// closingTag reports whether the parser sits on "{% name" and consumes the
// whole closing tag when it does
func closingTag(doc *pongo2.Parser, name string) (bool, *pongo2.Error) {
	if doc.Peek(pongo2.TokenSymbol, "{%") == nil && doc.Peek(pongo2.TokenSymbol, "{%-") == nil {
		return false, nil
	}
	if doc.PeekN(1, pongo2.TokenIdentifier, name) == nil {
		return false, nil
	}
	doc.ConsumeN(2)
	if doc.Match(pongo2.TokenSymbol, "%}") == nil && doc.Match(pongo2.TokenSymbol, "-%}") == nil {
		return true, doc.Error(fmt.Sprintf("'%s' does not take any arguments.", name), nil)
	}
	return true, nil
}

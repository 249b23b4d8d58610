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
	"fmt"
	"sort"
	"strings"

	"github.com/flosch/pongo2/v6"

	"github.com/storeforge/storefront/internal/config"
)

// GroupTable maps a section group name to its ordered section names
type GroupTable map[string][]string

// DefaultGroups returns the built-in group table
func DefaultGroups() GroupTable {
	return GroupTable(config.DefaultSectionGroups())
}

// Sections returns the ordered section names of a group
func (t GroupTable) Sections(group string) ([]string, bool) {
	names, ok := t[group]
	return names, ok
}

// AllSections returns every distinct section name in the table, sorted
func (t GroupTable) AllSections() []string {
	seen := make(map[string]bool)
	var names []string
	for _, group := range t {
		for _, name := range group {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

// SectionFunc renders a section on demand. It never fails; errors surface as
// placeholder markup.
type SectionFunc func(name string) string

func groupTable(ctx *pongo2.ExecutionContext) GroupTable {
	switch t := ctx.Public[GroupTableKey].(type) {
	case GroupTable:
		if t != nil {
			return t
		}
	case map[string][]string:
		if t != nil {
			return GroupTable(t)
		}
	}
	return DefaultGroups()
}

func preloadedSection(ctx *pongo2.ExecutionContext, name string) (string, bool) {
	switch m := ctx.Public[PreloadedSectionsKey].(type) {
	case map[string]string:
		html, ok := m[name]
		return html, ok
	case map[string]interface{}:
		return preloadedSectionFromMap(m, name)
	case pongo2.Context:
		return preloadedSectionFromMap(m, name)
	}
	return "", false
}

func preloadedSectionFromMap(m map[string]interface{}, name string) (string, bool) {
	v, ok := m[name]
	if !ok {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	if pv, ok := v.(*pongo2.Value); ok {
		return pv.String(), true
	}
	return fmt.Sprint(v), true
}

func evaluateName(ctx *pongo2.ExecutionContext, expr pongo2.IEvaluator) (string, *pongo2.Error) {
	v, err := expr.Evaluate(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(v.String()), nil
}

func parseNameArgument(tag string, arguments *pongo2.Parser) (pongo2.IEvaluator, *pongo2.Error) {
	if arguments.Remaining() == 0 {
		return nil, arguments.Error(fmt.Sprintf("Tag '%s' requires a name argument.", tag), nil)
	}
	expr, err := arguments.ParseExpression()
	if err != nil {
		return nil, err
	}
	if arguments.Remaining() > 0 {
		return nil, arguments.Error(fmt.Sprintf("Malformed '%s'-tag arguments.", tag), nil)
	}
	return expr, nil
}

type tagSectionsNode struct {
	group pongo2.IEvaluator
}

func (node *tagSectionsNode) Execute(ctx *pongo2.ExecutionContext, writer pongo2.TemplateWriter) *pongo2.Error {
	group, err := evaluateName(ctx, node.group)
	if err != nil {
		return err
	}

	names, ok := groupTable(ctx).Sections(group)
	if !ok {
		logger().Warnf("Unknown section group %q", group)
		_, werr := writer.WriteString(fmt.Sprintf("<!-- section group '%s' is not defined -->", commentSafe(group)))
		return asPongoError("sections", werr)
	}

	var out strings.Builder
	found := 0
	for _, name := range names {
		if html, ok := preloadedSection(ctx, name); ok {
			out.WriteString(html)
			found++
		}
	}
	if found == 0 {
		_, werr := writer.WriteString(fmt.Sprintf("<!-- section group '%s' not preloaded -->", commentSafe(group)))
		return asPongoError("sections", werr)
	}

	_, werr := writer.WriteString(out.String())
	return asPongoError("sections", werr)
}

func sectionsTagParser(doc *pongo2.Parser, start *pongo2.Token, arguments *pongo2.Parser) (pongo2.INodeTag, *pongo2.Error) {
	expr, err := parseNameArgument("sections", arguments)
	if err != nil {
		return nil, err
	}
	return &tagSectionsNode{group: expr}, nil
}

type tagSectionNode struct {
	name pongo2.IEvaluator
}

func (node *tagSectionNode) Execute(ctx *pongo2.ExecutionContext, writer pongo2.TemplateWriter) *pongo2.Error {
	name, err := evaluateName(ctx, node.name)
	if err != nil {
		return err
	}

	if html, ok := preloadedSection(ctx, name); ok {
		_, werr := writer.WriteString(html)
		return asPongoError("section", werr)
	}
	if render, ok := ctx.Public[SectionFuncKey].(SectionFunc); ok && render != nil {
		_, werr := writer.WriteString(render(name))
		return asPongoError("section", werr)
	}

	_, werr := writer.WriteString(fmt.Sprintf("<!-- section '%s' not preloaded -->", commentSafe(name)))
	return asPongoError("section", werr)
}

func sectionTagParser(doc *pongo2.Parser, start *pongo2.Token, arguments *pongo2.Parser) (pongo2.INodeTag, *pongo2.Error) {
	expr, err := parseNameArgument("section", arguments)
	if err != nil {
		return nil, err
	}
	return &tagSectionNode{name: expr}, nil
}

// commentSafe keeps a value from terminating an HTML comment early
func commentSafe(s string) string {
	return strings.ReplaceAll(s, "--", "- -")
}

func asPongoError(sender string, err error) *pongo2.Error {
	if err == nil {
		return nil
	}
	return &pongo2.Error{Sender: "tag:" + sender, OrigError: err}
}

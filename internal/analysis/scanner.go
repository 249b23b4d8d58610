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

package analysis

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	sectionTagRe  = regexp.MustCompile(`\{%-?\s*section\s+['"]([^'"]+)['"]\s*-?%\}`)
	sectionsTagRe = regexp.MustCompile(`\{%-?\s*sections\s+['"]([^'"]+)['"]\s*-?%\}`)
	includeRe     = regexp.MustCompile(`\{%-?\s*(?:include|render)\s+['"]([^'"]+)['"]`)
	assetRe       = regexp.MustCompile(`['"]([^'"]+)['"]\s*\|\s*asset_url`)
	paginateRe    = regexp.MustCompile(`\{%-?\s*paginate\s+([A-Za-z_][\w.]*)(?:\s+by\s+(\d+))?`)
	commentRe     = regexp.MustCompile(`(?s)\{%-?\s*comment\s*-?%\}.*?\{%-?\s*endcomment\s*-?%\}|\{#.*?#\}`)
	constructRe   = regexp.MustCompile(`(?s)\{\{.*?\}\}|\{%.*?%\}`)
	quotedRe      = regexp.MustCompile(`'[^']*'|"[^"]*"`)
	pathRe        = regexp.MustCompile(`(?:^|[^\w.])([A-Za-z_]\w*(?:\.[A-Za-z_]\w*)*)`)
)

// listing is a kind of data a template body reads
type listing int

const (
	listProducts listing = iota
	listCollectionProducts
	listCollections
	listSearch
	listCart
)

// scan is what the scanner found in one template body
type scan struct {
	listings  map[listing]bool
	paginated map[listing]int
	paginates bool
	includes  []string
	assets    []string
}

func classify(path string) (listing, bool) {
	switch {
	case path == "collection.products" || strings.HasPrefix(path, "collection.products."):
		return listCollectionProducts, true
	case path == "products" || strings.HasPrefix(path, "products."):
		return listProducts, true
	case path == "collections" || strings.HasPrefix(path, "collections."):
		return listCollections, true
	case path == "search" || strings.HasPrefix(path, "search."):
		return listSearch, true
	case path == "cart" || strings.HasPrefix(path, "cart."):
		return listCart, true
	}
	return 0, false
}

// scanBody inspects the template constructs of a body. Literal text and
// quoted strings are ignored so prose such as "Our products" is not a signal.
func scanBody(body string) scan {
	s := scan{
		listings:  make(map[listing]bool),
		paginated: make(map[listing]int),
	}
	body = commentRe.ReplaceAllString(body, "")

	for _, construct := range constructRe.FindAllString(body, -1) {
		code := quotedRe.ReplaceAllString(construct, " ")
		for _, m := range pathRe.FindAllStringSubmatch(code, -1) {
			if l, ok := classify(m[1]); ok {
				s.listings[l] = true
			}
		}
	}

	for _, m := range paginateRe.FindAllStringSubmatch(body, -1) {
		s.paginates = true
		l, ok := classify(m[1])
		if !ok || m[2] == "" {
			continue
		}
		if n, err := strconv.Atoi(m[2]); err == nil && n > s.paginated[l] {
			s.paginated[l] = n
		}
	}

	s.includes = uniqueMatches(includeRe, body)
	s.assets = uniqueMatches(assetRe, body)
	return s
}

// marker is a {% section %} or {% sections %} reference
type marker struct {
	pos   int
	name  string
	group bool
}

// sectionMarkers returns section and group references in order of appearance
func sectionMarkers(body string) []marker {
	body = commentRe.ReplaceAllString(body, "")
	var markers []marker
	for _, m := range sectionTagRe.FindAllStringSubmatchIndex(body, -1) {
		markers = append(markers, marker{pos: m[0], name: body[m[2]:m[3]]})
	}
	for _, m := range sectionsTagRe.FindAllStringSubmatchIndex(body, -1) {
		markers = append(markers, marker{pos: m[0], name: body[m[2]:m[3]], group: true})
	}
	sort.Slice(markers, func(i, j int) bool { return markers[i].pos < markers[j].pos })
	return markers
}

func uniqueMatches(re *regexp.Regexp, body string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range re.FindAllStringSubmatch(body, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

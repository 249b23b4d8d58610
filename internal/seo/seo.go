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

// Package seo projects a store and page onto <head> metadata.
package seo

import (
	"encoding/json"
	"html"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/storeforge/storefront/internal/types"
)

// MaxDescriptionLength bounds meta descriptions
const MaxDescriptionLength = 160

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy

	spaceRe = regexp.MustCompile(`\s+`)
)

func stripPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// Page is the page-specific input of Generate
type Page struct {
	Type        types.PageType
	Title       string
	Description string
	Path        string
	Image       string
}

// OpenGraph holds og:* properties
type OpenGraph struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Type        string `json:"type"`
	SiteName    string `json:"site_name"`
	Image       string `json:"image,omitempty"`
}

// TwitterCard holds twitter:* properties
type TwitterCard struct {
	Card        string `json:"card"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image,omitempty"`
}

// Metadata is everything rendered into a page head
type Metadata struct {
	Title          string                 `json:"title"`
	Description    string                 `json:"description"`
	Canonical      string                 `json:"canonical"`
	OpenGraph      OpenGraph              `json:"open_graph"`
	Twitter        TwitterCard            `json:"twitter"`
	StructuredData map[string]interface{} `json:"structured_data"`
}

// Generate derives metadata from store attributes and the page. It performs
// no I/O.
func Generate(store *types.Store, page Page) Metadata {
	if store == nil {
		store = &types.Store{}
	}

	title := store.Name
	if t := strings.TrimSpace(page.Title); t != "" && t != store.Name {
		title = t + " | " + store.Name
	}
	if title == "" {
		title = strings.TrimSpace(page.Title)
	}

	description := Clean(page.Description)
	if description == "" {
		description = Clean(store.Description)
	}
	if description == "" && store.Name != "" {
		description = "Shop at " + store.Name
	}

	canonical := CanonicalURL(store, page.Path)
	image := page.Image
	if image == "" {
		image = store.LogoURL
	}

	ogType := "website"
	if page.Type == types.PageProduct {
		ogType = "product"
	}

	card := "summary"
	if image != "" {
		card = "summary_large_image"
	}

	return Metadata{
		Title:       title,
		Description: description,
		Canonical:   canonical,
		OpenGraph: OpenGraph{
			Title:       title,
			Description: description,
			URL:         canonical,
			Type:        ogType,
			SiteName:    store.Name,
			Image:       image,
		},
		Twitter: TwitterCard{
			Card:        card,
			Title:       title,
			Description: description,
			Image:       image,
		},
		StructuredData: structuredData(store, description),
	}
}

// CanonicalURL builds the absolute URL of a path, preferring the store's
// active verified custom domain
func CanonicalURL(store *types.Store, path string) string {
	domain := store.PrimaryDomain()
	if domain == "" {
		return path
	}
	if path == "" || path[0] != '/' {
		path = "/" + path
	}
	return "https://" + domain + path
}

// Clean strips markup, collapses whitespace and truncates to
// MaxDescriptionLength on a word boundary
func Clean(s string) string {
	s = html.UnescapeString(stripPolicy().Sanitize(s))
	s = strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
	if utf8.RuneCountInString(s) <= MaxDescriptionLength {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:MaxDescriptionLength-1])
	if i := strings.LastIndex(cut, " "); i > MaxDescriptionLength/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "…"
}

func structuredData(store *types.Store, description string) map[string]interface{} {
	data := map[string]interface{}{
		"@context": "https://schema.org",
		"@type":    "Store",
		"name":     store.Name,
		"url":      CanonicalURL(store, "/"),
	}
	optional := map[string]string{
		"description":        description,
		"logo":               store.LogoURL,
		"image":              store.LogoURL,
		"email":              store.Email,
		"telephone":          store.Phone,
		"currenciesAccepted": store.Currency,
	}
	for k, v := range optional {
		if v != "" {
			data[k] = v
		}
	}
	return data
}

// HTML renders the metadata as head tags
func (m Metadata) HTML() string {
	var b strings.Builder
	b.WriteString("<title>" + html.EscapeString(m.Title) + "</title>\n")
	meta(&b, "name", "description", m.Description)
	if m.Canonical != "" {
		b.WriteString(`<link rel="canonical" href="` + html.EscapeString(m.Canonical) + "\">\n")
	}

	meta(&b, "property", "og:title", m.OpenGraph.Title)
	meta(&b, "property", "og:description", m.OpenGraph.Description)
	meta(&b, "property", "og:url", m.OpenGraph.URL)
	meta(&b, "property", "og:type", m.OpenGraph.Type)
	meta(&b, "property", "og:site_name", m.OpenGraph.SiteName)
	meta(&b, "property", "og:image", m.OpenGraph.Image)

	meta(&b, "name", "twitter:card", m.Twitter.Card)
	meta(&b, "name", "twitter:title", m.Twitter.Title)
	meta(&b, "name", "twitter:description", m.Twitter.Description)
	meta(&b, "name", "twitter:image", m.Twitter.Image)

	if len(m.StructuredData) > 0 {
		// json.Marshal escapes <, > and & so the payload cannot close the tag
		if raw, err := json.Marshal(m.StructuredData); err == nil {
			b.WriteString(`<script type="application/ld+json">` + string(raw) + "</script>\n")
		}
	}
	return b.String()
}

func meta(b *strings.Builder, attr, key, value string) {
	if value == "" {
		return
	}
	b.WriteString(`<meta ` + attr + `="` + key + `" content="` + html.EscapeString(value) + "\">\n")
}

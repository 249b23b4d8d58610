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

package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	sferrors "github.com/storeforge/storefront/internal/errors"
	"github.com/storeforge/storefront/internal/middleware"
	"github.com/storeforge/storefront/internal/themes"
	"github.com/storeforge/storefront/internal/types"
)

// handleStorefront renders the page at the request path for the store
// serving the request host
func (s *Server) handleStorefront(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.Header("Allow", "GET, HEAD")
		s.respondWithError(c, http.StatusMethodNotAllowed, string(sferrors.ErrInvalidRequest),
			"Storefront pages only support GET and HEAD", nil)
		return
	}

	domain := c.GetString(middleware.DomainKey)
	if domain == "" {
		domain = middleware.HostDomain(c.Request)
	}

	page, err := s.engine.RenderPage(c.Request.Context(), domain, c.Request.URL.Path, c.Request.URL.Query())
	if err != nil {
		s.respondWithStorefrontError(c, err)
		return
	}

	statusCode := http.StatusOK
	if page.PageType == types.PageNotFound {
		statusCode = http.StatusNotFound
	}

	c.Header("X-Store-ID", page.StoreID)
	c.Header("X-Render-Time", strconv.FormatInt(page.RenderTime.Milliseconds(), 10)+"ms")
	if len(page.Issues) > 0 {
		c.Header("X-Render-Degraded", "true")
	}
	c.Data(statusCode, "text/html; charset=utf-8", []byte(page.HTML))
}

// handleResolveDomain reports how a domain resolves, for debugging
func (s *Server) handleResolveDomain(c *gin.Context) {
	domain := types.NormalizeDomain(c.Param("domain"))
	if domain == "" {
		s.respondWithError(c, http.StatusBadRequest, string(sferrors.ErrInvalidRequest), "Domain is required", nil)
		return
	}

	resolution, err := s.resolver.Resolve(c.Request.Context(), domain)
	if err != nil {
		s.respondWithStorefrontError(c, sferrors.Wrap(sferrors.ErrServiceUnavailable, "domain lookup failed", err))
		return
	}

	positive, negative := s.resolver.TTLs()
	c.JSON(http.StatusOK, gin.H{
		"resolution":   resolution,
		"positive_ttl": positive.String(),
		"negative_ttl": negative.String(),
	})
}

// handleInvalidateDomain drops the cached resolution of a domain
func (s *Server) handleInvalidateDomain(c *gin.Context) {
	domain := types.NormalizeDomain(c.Param("domain"))
	if domain == "" {
		s.respondWithError(c, http.StatusBadRequest, string(sferrors.ErrInvalidRequest), "Domain is required", nil)
		return
	}

	if err := s.resolver.InvalidateCache(c.Request.Context(), domain); err != nil {
		s.respondWithStorefrontError(c, sferrors.Wrap(sferrors.ErrServiceUnavailable, "cache invalidation failed", err))
		return
	}
	if err := s.dns.Invalidate(c.Request.Context(), domain); err != nil {
		s.logger.WithField("domain", domain).Warnf("Failed to drop cached DNS check: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{"domain": domain, "invalidated": true})
}

// handleCheckDomainDNS reports whether a custom domain's DNS routes to the
// store it resolves to
func (s *Server) handleCheckDomainDNS(c *gin.Context) {
	domain := types.NormalizeDomain(c.Param("domain"))
	if domain == "" {
		s.respondWithError(c, http.StatusBadRequest, string(sferrors.ErrInvalidRequest), "Domain is required", nil)
		return
	}

	ctx := c.Request.Context()
	resolution, err := s.resolver.Resolve(ctx, domain)
	if err != nil {
		s.respondWithStorefrontError(c, sferrors.Wrap(sferrors.ErrServiceUnavailable, "domain lookup failed", err))
		return
	}
	check, err := s.dns.Check(ctx, domain)
	if err != nil {
		s.respondWithStorefrontError(c, sferrors.Wrap(sferrors.ErrServiceUnavailable, "DNS lookup failed", err))
		return
	}

	storeID := ""
	if resolution.Store != nil {
		storeID = resolution.Store.ID
	}
	c.JSON(http.StatusOK, gin.H{
		"dns":      check,
		"store_id": storeID,
		"verified": check.Verified(storeID),
	})
}

// handleValidateTheme validates a theme package from theme storage
func (s *Server) handleValidateTheme(c *gin.Context) {
	themeID := c.Param("id")

	report, err := s.validator.ValidateDirectory(c.Request.Context(), s.themes, themeID, c.Query("store_id"))
	if err != nil {
		if errors.Is(err, themes.ErrThemeNotFound) {
			s.respondWithError(c, http.StatusNotFound, string(sferrors.ErrTemplateNotFound),
				"Theme not found", map[string]interface{}{"theme_id": themeID})
			return
		}
		s.respondWithStorefrontError(c, sferrors.NewInternalError("theme validation failed", err))
		return
	}

	statusCode := http.StatusOK
	if !report.IsValid {
		statusCode = http.StatusUnprocessableEntity
	}
	c.JSON(statusCode, report)
}

// handleAnalyzeTheme reports the data requirements of one template
func (s *Server) handleAnalyzeTheme(c *gin.Context) {
	themeID := c.Param("id")
	template := strings.TrimSpace(c.DefaultQuery("template", string(types.PageHome)))

	result := s.engine.Analyze(c.Request.Context(), themeID, c.Query("store_id"), template)
	if result.Terminal() {
		s.respondWithStorefrontError(c, result.Err)
		return
	}

	response := gin.H{
		"theme_id": themeID,
		"template": template,
		"analysis": result.Value,
	}
	if result.Err != nil {
		response["issues"] = []string{result.Err.Error()}
	}
	c.JSON(http.StatusOK, response)
}

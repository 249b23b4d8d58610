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
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	sferrors "github.com/storeforge/storefront/internal/errors"
	"github.com/storeforge/storefront/internal/middleware"
	"github.com/storeforge/storefront/internal/types"
)

// respondWithError sends a standardized error response
func (s *Server) respondWithError(c *gin.Context, statusCode int, code, message string, details map[string]interface{}) {
	requestID := c.GetString(middleware.RequestIDKey)

	errorResponse := types.ErrorResponse{
		Error: types.ErrorDetail{
			Code:      code,
			Message:   message,
			Details:   details,
			Timestamp: time.Now().UTC(),
			RequestID: requestID,
		},
	}

	logger := s.logger.WithContext(c.Request.Context()).WithFields(map[string]interface{}{
		"status_code": statusCode,
		"error_code":  code,
		"method":      c.Request.Method,
		"path":        c.Request.URL.Path,
		"remote_addr": c.ClientIP(),
	})

	if statusCode >= 500 {
		logger.Error(message, nil)
	} else {
		logger.Warn(message)
	}

	if s.metrics != nil {
		s.metrics.RecordError("server", code, getErrorType(statusCode))
	}

	c.JSON(statusCode, errorResponse)
}

// respondWithStorefrontError sends an error response from a StorefrontError.
// Non-storefront errors are reported as internal errors.
func (s *Server) respondWithStorefrontError(c *gin.Context, err error) {
	sfErr, ok := sferrors.AsStorefrontError(err)
	if !ok {
		sfErr = sferrors.NewInternalError("unexpected error", err)
	}
	sfErr.RequestID = c.GetString(middleware.RequestIDKey)

	statusCode := sfErr.GetHTTPStatus()

	logger := s.logger.WithContext(c.Request.Context()).WithFields(map[string]interface{}{
		"status_code": statusCode,
		"error_code":  sfErr.Code,
		"method":      c.Request.Method,
		"path":        c.Request.URL.Path,
		"remote_addr": c.ClientIP(),
	})

	if statusCode >= 500 {
		logger.Error(sfErr.Message, sfErr.Cause)
	} else {
		logger.Warn(sfErr.Message)
	}

	if s.metrics != nil {
		s.metrics.RecordError("server", string(sfErr.Code), getErrorType(statusCode))
	}

	switch c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) {
	case gin.MIMEJSON:
		c.JSON(statusCode, sfErr.ToErrorResponse())
	default:
		c.Data(statusCode, "text/html; charset=utf-8", []byte(errorPage(statusCode, sfErr)))
	}
}

// errorPage renders the minimal page shown when no theme template can be
// rendered
func errorPage(statusCode int, err *sferrors.StorefrontError) string {
	title := http.StatusText(statusCode)
	switch err.Code {
	case sferrors.ErrStoreNotFound:
		title = "Store not found"
	case sferrors.ErrStoreNotActive:
		title = "This store is unavailable"
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>%s</title></head>
<body><h1>%s</h1><p>%s</p></body></html>
`, html.EscapeString(title), html.EscapeString(title), html.EscapeString(string(err.Code)))
}

// getErrorType categorizes errors by HTTP status code
func getErrorType(statusCode int) string {
	switch {
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	default:
		return "unknown"
	}
}

// withRequestMetrics wraps a handler with request metrics
func (s *Server) withRequestMetrics(handler gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Set("start_time", start)

		if s.metrics != nil {
			s.metrics.IncHTTPRequestsInFlight()
			defer s.metrics.DecHTTPRequestsInFlight()
		}

		handler(c)

		duration := time.Since(start)
		if s.metrics != nil {
			path := c.FullPath()
			if path == "" {
				// storefront paths are unbounded; label them together
				path = "storefront"
			}
			s.metrics.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), duration)
		}

		s.logger.LogRequest(
			c.Request.Method,
			c.Request.URL.Path,
			c.ClientIP(),
			c.Request.UserAgent(),
			c.Writer.Status(),
			duration,
		)
	}
}

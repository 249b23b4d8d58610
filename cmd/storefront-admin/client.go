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

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/storeforge/storefront/internal/types"
)

// adminClient calls the admin API of a storefront server
type adminClient struct {
	baseURL string
	header  string
	key     string
	verbose bool
	http    *http.Client
}

func newAdminClient(baseURL, header, key string, verbose bool) *adminClient {
	return &adminClient{
		baseURL: baseURL,
		header:  header,
		key:     key,
		verbose: verbose,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// apiError is a non-2xx admin API response
type apiError struct {
	Status int
	Detail types.ErrorDetail
}

func (e *apiError) Error() string {
	if e.Detail.Code != "" {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Detail.Code, e.Status, e.Detail.Message)
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

// do sends a request and decodes the JSON body into out. Responses whose
// status is listed in accept are decoded even when they are not 2xx.
func (c *adminClient) do(method, path string, query url.Values, out interface{}, accept ...int) (int, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequest(method, u, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.key != "" {
		req.Header.Set(c.header, c.key)
	}

	if c.verbose {
		fmt.Fprintf(os.Stderr, "%s %s\n", method, u)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request to %s failed: %w", u, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if c.verbose {
		fmt.Fprintf(os.Stderr, "HTTP %d, %d bytes\n", resp.StatusCode, len(body))
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	for _, status := range accept {
		ok = ok || resp.StatusCode == status
	}
	if !ok {
		var errResp types.ErrorResponse
		_ = json.Unmarshal(body, &errResp)
		return resp.StatusCode, &apiError{Status: resp.StatusCode, Detail: errResp.Error}
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

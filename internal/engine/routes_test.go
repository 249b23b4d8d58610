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


package engine

import (
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/storeforge/storefront/internal/loader"
	"github.com/storeforge/storefront/internal/types"
)

func TestParseQuery(t *testing.T) {
	tests := []struct {
		name   string
		values url.Values
		want   types.QueryParams
	}{
		{"empty", url.Values{}, types.QueryParams{Page: 1}},
		{"page and search", url.Values{"page": {"3"}, "q": {" shirt "}, "sort_by": {"price"}}, types.QueryParams{Page: 3, Query: "shirt", SortBy: "price"}},
		{"negative page", url.Values{"page": {"-2"}}, types.QueryParams{Page: 1}},
		{"garbage page", url.Values{"page": {"two"}}, types.QueryParams{Page: 1}},
		{"huge page", url.Values{"page": {"4611686018427387905"}}, types.QueryParams{Page: loader.MaxPage}},
		{"page beyond int", url.Values{"page": {"99999999999999999999999"}}, types.QueryParams{Page: 1}},
		{"cart", url.Values{"cart_id": {"c-1"}}, types.QueryParams{Page: 1, CartID: "c-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ParseQuery(tt.values)); diff != "" {
				t.Errorf("ParseQuery mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

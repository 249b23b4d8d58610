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

//go:build property

package sections

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var settingTypes = []interface{}{
	"text", "textarea", "richtext", "url", "number", "range",
	"checkbox", "color", "select", "radio", "image", "video", "file",
}

// TestSchemaDefaultsProperties checks default extraction over generated schemas
func TestSchemaDefaultsProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("every declared id appears exactly once", prop.ForAll(
		func(ids []string, kinds []string) bool {
			settings := make([]map[string]interface{}, 0, len(ids))
			declared := make(map[string]bool)
			for i, id := range ids {
				kind := "text"
				if i < len(kinds) {
					kind = kinds[i]
				}
				settings = append(settings, map[string]interface{}{"type": kind, "id": id})
				declared[id] = true
			}
			raw, err := json.Marshal(map[string]interface{}{"name": "Generated", "settings": settings})
			if err != nil {
				return false
			}

			ex, err := Extract(fmt.Sprintf("<div></div>{%% schema %%}%s{%% endschema %%}", raw))
			if err != nil {
				return false
			}
			defaults := ex.Schema.Defaults()
			if len(defaults) != len(declared) {
				return false
			}
			for id := range declared {
				if _, ok := defaults[id]; !ok {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Identifier()),
		gen.SliceOf(gen.OneConstOf(settingTypes...)),
	))

	properties.Property("type defaults without explicit default", prop.ForAll(
		func(kind string) bool {
			raw := fmt.Sprintf(`{"settings":[{"type":%q,"id":"x"}]}`, kind)
			s, err := Parse(raw)
			if err != nil {
				return false
			}
			return s.Defaults()["x"] == DefaultForType(kind)
		},
		gen.OneConstOf(settingTypes...),
	))

	properties.Property("extracted body never contains schema markers", prop.ForAll(
		func(prefix, suffix string) bool {
			ex, _ := Extract(prefix + `{% schema %}{"name":"n"}{% endschema %}` + suffix)
			return ex.Body == prefix+suffix
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

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

package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/flosch/pongo2/v6"

	"github.com/storeforge/storefront/internal/tags"
)

// SafeHTML marks pre-rendered markup that must not be escaped again
type SafeHTML string

// Context is the data handed to a template. Structs are exposed through
// their JSON field names.
type Context map[string]interface{}

// Clone returns a shallow copy
func (c Context) Clone() Context {
	out := make(Context, len(c)+1)
	for k, v := range c {
		out[k] = v
	}
	return out
}

// With returns a shallow copy with key set to value
func (c Context) With(key string, value interface{}) Context {
	out := c.Clone()
	out[key] = value
	return out
}

func (c Context) pongo() (pongo2.Context, error) {
	out := make(pongo2.Context, len(c))
	for key, value := range c {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		converted, err := convertValue(value)
		if err != nil {
			return nil, fmt.Errorf("context key %q: %w", key, err)
		}
		out[key] = converted
	}
	return out, nil
}

func convertValue(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case SafeHTML:
		return pongo2.AsSafeValue(string(v)), nil
	case *pongo2.Value:
		return v, nil
	case string, bool, int, int64:
		return v, nil
	case float64:
		return normalizeFloat(v), nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i), nil
		}
		f, err := v.Float64()
		return normalizeFloat(f), err
	case map[string]string, tags.GroupTable, tags.SectionFunc:
		return v, nil
	case Context:
		return convertMap(v)
	case map[string]interface{}:
		return convertMap(v)
	case []interface{}:
		return convertSlice(v)
	}

	if rv := reflect.ValueOf(value); rv.Kind() == reflect.Func {
		return value, nil
	}

	// structs and typed collections go through their JSON form
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	switch g := generic.(type) {
	case map[string]interface{}:
		return convertMap(g)
	case []interface{}:
		return convertSlice(g)
	default:
		return convertValue(g)
	}
}

// normalizeFloat turns integral floats into ints so templates print "12"
// rather than "12.000000"
func normalizeFloat(f float64) interface{} {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int(f)
	}
	return f
}

func convertMap(in map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		converted, err := convertValue(v)
		if err != nil {
			return nil, err
		}
		out[k] = converted
	}
	return out, nil
}

func convertSlice(in []interface{}) ([]interface{}, error) {
	out := make([]interface{}, len(in))
	for i, v := range in {
		converted, err := convertValue(v)
		if err != nil {
			return nil, err
		}
		out[i] = converted
	}
	return out, nil
}

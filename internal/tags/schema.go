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
	"strings"

	"github.com/flosch/pongo2/v6"

	"github.com/storeforge/storefront/internal/sections"
)

type tagSchemaNode struct {
	schema *sections.Schema
}

// Schema returns the parsed schema
func (node *tagSchemaNode) Schema() *sections.Schema {
	return node.schema
}

func (node *tagSchemaNode) Execute(ctx *pongo2.ExecutionContext, writer pongo2.TemplateWriter) *pongo2.Error {
	return nil
}

func schemaTagParser(doc *pongo2.Parser, start *pongo2.Token, arguments *pongo2.Parser) (pongo2.INodeTag, *pongo2.Error) {
	if arguments.Remaining() > 0 {
		return nil, arguments.Error("Tag 'schema' does not take any arguments.", nil)
	}

	var raw strings.Builder
	for doc.Remaining() > 0 {
		closed, err := closingTag(doc, "endschema")
		if err != nil {
			return nil, err
		}
		if closed {
			schema, perr := sections.Parse(raw.String())
			if perr != nil {
				logger().WithField("line", start.Line).
					Warnf("Invalid schema JSON in %s, using empty schema: %v", start.Filename, perr)
			}
			return &tagSchemaNode{schema: schema}, nil
		}

		t := doc.Current()
		switch t.Typ {
		case pongo2.TokenHTML:
			raw.WriteString(t.Val)
		case pongo2.TokenString:
			raw.WriteString(`"` + t.Val + `"`)
		default:
			raw.WriteString(t.Val)
			raw.WriteByte(' ')
		}
		doc.Consume()
	}

	return nil, doc.Error("Tag 'schema' not closed (expected 'endschema').", start)
}

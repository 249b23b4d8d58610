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
	"bytes"
	"strings"

	"github.com/flosch/pongo2/v6"
)

type scriptAttribute struct {
	name     string
	value    string
	hasValue bool
}

type tagScriptNode struct {
	attributes []scriptAttribute
	wrapper    *pongo2.NodeWrapper
}

func (node *tagScriptNode) openingTag() string {
	var b strings.Builder
	b.WriteString("<script")
	for _, attr := range node.attributes {
		b.WriteByte(' ')
		b.WriteString(attr.name)
		if attr.hasValue {
			b.WriteString(`="`)
			b.WriteString(strings.ReplaceAll(attr.value, `"`, "&quot;"))
			b.WriteByte('"')
		}
	}
	b.WriteByte('>')
	return b.String()
}

func (node *tagScriptNode) Execute(ctx *pongo2.ExecutionContext, writer pongo2.TemplateWriter) *pongo2.Error {
	var body bytes.Buffer
	if err := node.wrapper.Execute(ctx, &body); err != nil {
		return err
	}

	var out strings.Builder
	out.WriteString(node.openingTag())
	out.Write(body.Bytes())
	out.WriteString("</script>")

	_, werr := writer.WriteString(out.String())
	return asPongoError("script", werr)
}

// parseAttributeName reads an identifier that may contain dashes, e.g. data-id
func parseAttributeName(arguments *pongo2.Parser) (string, *pongo2.Error) {
	t := arguments.Current()
	if t == nil || (t.Typ != pongo2.TokenIdentifier && t.Typ != pongo2.TokenKeyword) {
		return "", arguments.Error("Expected an attribute name in 'script'-tag.", t)
	}
	arguments.Consume()
	name := t.Val
	for arguments.Peek(pongo2.TokenSymbol, "-") != nil {
		next := arguments.PeekTypeN(1, pongo2.TokenIdentifier)
		if next == nil {
			return "", arguments.Error("Malformed attribute name in 'script'-tag.", arguments.Current())
		}
		arguments.ConsumeN(2)
		name += "-" + next.Val
	}
	return name, nil
}

func scriptTagParser(doc *pongo2.Parser, start *pongo2.Token, arguments *pongo2.Parser) (pongo2.INodeTag, *pongo2.Error) {
	node := &tagScriptNode{}

	for arguments.Remaining() > 0 {
		name, err := parseAttributeName(arguments)
		if err != nil {
			return nil, err
		}
		attr := scriptAttribute{name: name}
		if arguments.Match(pongo2.TokenSymbol, "=") != nil {
			value := arguments.Current()
			if value == nil || (value.Typ != pongo2.TokenString && value.Typ != pongo2.TokenNumber && value.Typ != pongo2.TokenIdentifier) {
				return nil, arguments.Error("Expected a value for attribute '"+name+"' in 'script'-tag.", value)
			}
			arguments.Consume()
			attr.value = value.Val
			attr.hasValue = true
		}
		node.attributes = append(node.attributes, attr)
	}

	wrapper, endargs, err := doc.WrapUntilTag("endscript")
	if err != nil {
		return nil, err
	}
	if endargs.Remaining() > 0 {
		return nil, endargs.Error("'endscript' does not take any arguments.", nil)
	}
	node.wrapper = wrapper

	return node, nil
}

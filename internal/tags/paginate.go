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
	"github.com/flosch/pongo2/v6"
)

type tagPaginateNode struct {
	collection pongo2.IEvaluator
	pageSize   pongo2.IEvaluator
	wrapper    *pongo2.NodeWrapper
}

func (node *tagPaginateNode) Execute(ctx *pongo2.ExecutionContext, writer pongo2.TemplateWriter) *pongo2.Error {
	pagination, ok := ctx.Public[PaginationKey]
	if !ok || pagination == nil {
		logger().Warn("paginate used without pagination in context, skipping body")
		return nil
	}

	newctx := pongo2.NewChildExecutionContext(ctx)
	newctx.Private[PaginateKey] = pagination
	return node.wrapper.Execute(newctx, writer)
}

func paginateTagParser(doc *pongo2.Parser, start *pongo2.Token, arguments *pongo2.Parser) (pongo2.INodeTag, *pongo2.Error) {
	node := &tagPaginateNode{}

	if arguments.Remaining() == 0 {
		return nil, arguments.Error("Tag 'paginate' requires a collection to paginate.", nil)
	}
	collection, err := arguments.ParseExpression()
	if err != nil {
		return nil, err
	}
	node.collection = collection

	if arguments.Match(pongo2.TokenIdentifier, "by") != nil {
		size, err := arguments.ParseExpression()
		if err != nil {
			return nil, err
		}
		node.pageSize = size
	}
	if arguments.Remaining() > 0 {
		return nil, arguments.Error("Malformed 'paginate'-tag arguments.", nil)
	}

	wrapper, endargs, err := doc.WrapUntilTag("endpaginate")
	if err != nil {
		return nil, err
	}
	if endargs.Remaining() > 0 {
		return nil, endargs.Error("'endpaginate' does not take any arguments.", nil)
	}
	node.wrapper = wrapper

	return node, nil
}

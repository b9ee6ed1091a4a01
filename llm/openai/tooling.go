package openai

import (
	oa "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"

	base "github.com/dishscout/dishscout/llm"
)

// toOATools converts tool definitions to OpenAI function tools.
func toOATools(tools []base.Tool) []oa.ChatCompletionToolUnionParam {
	out := make([]oa.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		fn := shared.FunctionDefinitionParam{Name: t.Name}
		if t.Description != "" {
			fn.Description = oa.String(t.Description)
		}
		if t.InputSchema != nil {
			fn.Parameters = shared.FunctionParameters(t.InputSchema)
		}
		out = append(out, oa.ChatCompletionFunctionTool(fn))
	}
	return out
}

package recommend

import (
	"encoding/json"
	"fmt"

	"github.com/dishscout/dishscout/llm"
)

func sampleItems(n int, title, reason string) []Item {
	items := make([]Item, n)
	for i := range items {
		items[i] = Item{Category: fmt.Sprintf("Dish %d", i), TopicTitle: title, Reason: reason}
	}
	return items
}

func toolResponse(items any) *llm.Response {
	input, _ := json.Marshal(map[string]any{"items": items})
	return &llm.Response{
		StopReason: llm.StopToolUse,
		ToolCalls:  []llm.ToolCall{{ID: "toolu_1", Name: ToolName, Input: input}},
	}
}

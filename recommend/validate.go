package recommend

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dishscout/dishscout/jsonrepair"
	"github.com/dishscout/dishscout/llm"
)

// Item is one dish category recommendation.
type Item struct {
	Category   string `json:"category"`
	TopicTitle string `json:"topicTitle"`
	Reason     string `json:"reason"`
}

// Validation errors. Their messages are matched by retry.IsLogicalValidation,
// so a response failing any of them is requested again.
var (
	ErrNoToolUse         = errors.New("Expected tool_use content")
	ErrInvalidToolInput  = errors.New("Invalid tool response")
	ErrItemCount         = errors.New("Invalid item count")
	ErrMissingFields     = errors.New("Missing required fields")
	ErrSchemaValidation  = errors.New("Schema validation failed")
	ErrTruncatedResponse = errors.New("Tool response validation failed")
)

// ValidateToolResponse extracts the items from a forced tool call and checks
// count, required fields and the language pattern of topicTitle and reason.
func ValidateToolResponse(resp *llm.Response, languageTag string) ([]Item, error) {
	if resp == nil {
		return nil, ErrNoToolUse
	}
	if resp.StopReason == llm.StopMaxTokens {
		return nil, fmt.Errorf("%w: response truncated at max_tokens", ErrTruncatedResponse)
	}
	call, ok := resp.ToolCall(ToolName)
	if !ok {
		return nil, fmt.Errorf("%w: no %s call (stop_reason %q)", ErrNoToolUse, ToolName, resp.StopReason)
	}
	if !gjson.ValidBytes(call.Input) {
		return nil, fmt.Errorf("%w: input is not valid JSON", ErrInvalidToolInput)
	}
	items := gjson.GetBytes(call.Input, "items")
	if !items.IsArray() {
		return nil, fmt.Errorf("%w: items is not an array", ErrInvalidToolInput)
	}
	return checkItems(items.Array(), LanguagePattern(languageTag))
}

func checkItems(raw []gjson.Result, pattern string) ([]Item, error) {
	if len(raw) != ItemCount {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrItemCount, ItemCount, len(raw))
	}
	re := compiledPatterns[pattern]
	out := make([]Item, 0, len(raw))
	for i, r := range raw {
		item, ok := itemFrom(r)
		if !ok {
			return nil, fmt.Errorf("%w: item %d", ErrMissingFields, i)
		}
		if re != nil {
			if !re.MatchString(item.TopicTitle) {
				return nil, fmt.Errorf("%w: item %d topicTitle does not match %s", ErrSchemaValidation, i, pattern)
			}
			if !re.MatchString(item.Reason) {
				return nil, fmt.Errorf("%w: item %d reason does not match %s", ErrSchemaValidation, i, pattern)
			}
		}
		out = append(out, item)
	}
	return out, nil
}

// itemFrom reads a non-blank string triple from an object.
func itemFrom(r gjson.Result) (Item, bool) {
	if !r.IsObject() {
		return Item{}, false
	}
	var item Item
	for name, dst := range map[string]*string{"category": &item.Category, "topicTitle": &item.TopicTitle, "reason": &item.Reason} {
		v := r.Get(name)
		if v.Type != gjson.String || strings.TrimSpace(v.Str) == "" {
			return Item{}, false
		}
		*dst = v.Str
	}
	return item, true
}

// IsValidDishCategoryArray reports whether data is a decoded JSON array whose
// elements are all objects with string category, topicTitle and reason
// fields. An empty array is valid; values are not checked for blankness.
func IsValidDishCategoryArray(data any) bool {
	arr, ok := data.([]any)
	if !ok {
		return false
	}
	for _, el := range arr {
		obj, ok := el.(map[string]any)
		if !ok || obj == nil {
			return false
		}
		for _, k := range []string{"category", "topicTitle", "reason"} {
			if _, ok := obj[k].(string); !ok {
				return false
			}
		}
	}
	return true
}

// ValidDishCategoryJSON applies the IsValidDishCategoryArray rules to raw
// JSON without decoding it.
func ValidDishCategoryJSON(raw []byte) bool {
	if !gjson.ValidBytes(raw) {
		return false
	}
	root := gjson.ParseBytes(raw)
	if !root.IsArray() {
		return false
	}
	valid := true
	root.ForEach(func(_, el gjson.Result) bool {
		if !el.IsObject() {
			valid = false
			return false
		}
		for _, k := range []string{"category", "topicTitle", "reason"} {
			if el.Get(k).Type != gjson.String {
				valid = false
				return false
			}
		}
		return true
	})
	return valid
}

// ValidateTextResponse validates a free-form reply that should contain a
// JSON array of items, tolerating surrounding prose and minor syntax slips.
func ValidateTextResponse(resp *llm.Response, languageTag string) ([]Item, error) {
	if resp == nil {
		return nil, ErrInvalidToolInput
	}
	if resp.StopReason == llm.StopMaxTokens {
		return nil, fmt.Errorf("%w: response truncated at max_tokens", ErrTruncatedResponse)
	}
	raw, ok := jsonrepair.Extract(resp.Content)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON array in response text", ErrInvalidToolInput)
	}
	if !ValidDishCategoryJSON(raw) {
		return nil, fmt.Errorf("%w: expected an array of category objects", ErrInvalidToolInput)
	}
	return checkItems(gjson.ParseBytes(raw).Array(), LanguagePattern(languageTag))
}

package recommend

import (
	"regexp"
	"strings"

	"github.com/dishscout/dishscout/llm"
)

// ToolName is the tool the model is forced to call.
const ToolName = "generate_dish_categories"

const (
	noLatinPattern = `^[^A-Za-z]*$`
	asciiPattern   = `^[\x00-\x7F]*$`
)

// languagePatterns constrain topicTitle and reason by language. Lookup tries
// the full tag first, then the primary subtag.
var languagePatterns = map[string]string{
	"ja": noLatinPattern,
	"zh": noLatinPattern,
	"en": asciiPattern,
}

var compiledPatterns = map[string]*regexp.Regexp{
	noLatinPattern: regexp.MustCompile(noLatinPattern),
	asciiPattern:   regexp.MustCompile(asciiPattern),
}

// LanguagePattern returns the text pattern for languageTag, or "" when the
// language is unconstrained.
func LanguagePattern(languageTag string) string {
	if p, ok := languagePatterns[languageTag]; ok {
		return p
	}
	primary, _, _ := strings.Cut(languageTag, "-")
	return languagePatterns[strings.ToLower(primary)]
}

// BuildToolSchema returns the tool definition for languageTag.
func BuildToolSchema(languageTag string) llm.Tool {
	pattern := LanguagePattern(languageTag)
	textProp := func(desc string) map[string]any {
		prop := map[string]any{"type": "string", "description": desc}
		if pattern != "" {
			prop["pattern"] = pattern
		}
		return prop
	}
	return llm.Tool{
		Name:        ToolName,
		Description: "Generate exactly 10 dish category recommendations with structured data",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"items": map[string]any{
					"type":     "array",
					"minItems": ItemCount,
					"maxItems": ItemCount,
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"category": map[string]any{
								"type":        "string",
								"description": "Dish category name that matches Wikidata label exactly",
							},
							"topicTitle": textProp("Catchy topic title for the recommendation"),
							"reason":     textProp("Brief reason why this category is recommended"),
						},
						"required":             []string{"category", "topicTitle", "reason"},
						"additionalProperties": false,
					},
				},
			},
			"required":             []string{"items"},
			"additionalProperties": false,
		},
	}
}

// DefaultToolSchema is the English schema.
func DefaultToolSchema() llm.Tool { return BuildToolSchema("en") }

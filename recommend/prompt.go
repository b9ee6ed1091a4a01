package recommend

import (
	"fmt"
	"strings"
)

// SystemPrompt returns the instructions for the tool-calling request.
func SystemPrompt(languageTag string) string {
	return fmt.Sprintf(`You are a food recommendation AI that suggests dish categories based on user preferences and context.
Generate exactly %d diverse dish category recommendations based on the provided parameters.
Call the %s tool with your answer.
- category: the English Wikidata label of the dish category, matched exactly.
- topicTitle: an attractive topic title written in the language %q.
- reason: a brief reason why this is recommended, written in the language %q.`,
		ItemCount, ToolName, languageTag, languageTag)
}

// TextSystemPrompt returns the instructions for the free-form JSON request.
func TextSystemPrompt(languageTag string) string {
	return fmt.Sprintf(`You are a food recommendation AI that suggests dish categories based on user preferences and context.
Generate exactly %d diverse dish category recommendations based on the provided parameters.

HARD RULES: Use the following JSON format exactly:
[
  {
    "category": "string (English Wikidata label of the dish category)",
    "topicTitle": "string (attractive topic title in %s)",
    "reason": "string (brief reason why this is recommended in %s)"
  }
]`, ItemCount, languageTag, languageTag)
}

// UserPrompt renders the params. Empty fields are omitted.
func UserPrompt(p Params) string {
	var b strings.Builder
	b.WriteString("Generate dish category recommendations based on:\n")
	line := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, value)
		}
	}
	line("Location", p.Location)
	line("Time slot", p.TimeSlot)
	line("Scene", p.Scene)
	line("Mood", p.Mood)
	line("Restrictions", strings.Join(p.Restrictions, ", "))
	if p.Distance > 0 {
		fmt.Fprintf(&b, "Distance: %dm\n", p.Distance)
	}
	if p.BudgetMin > 0 || p.BudgetMax > 0 {
		upper := "unlimited"
		if p.BudgetMax > 0 {
			upper = fmt.Sprint(p.BudgetMax)
		}
		fmt.Fprintf(&b, "Budget: %d - %s yen\n", p.BudgetMin, upper)
	}
	fmt.Fprintf(&b, "\nGenerate %d diverse and appealing dish category recommendations.", ItemCount)
	return b.String()
}

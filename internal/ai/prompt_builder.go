package ai

import (
	"fmt"
	"strings"

	"smart-todo/internal/contexts"
	"smart-todo/internal/tasks"
)

const (
	suggestTaskLimit    = 20
	suggestContextLimit = 10
)

// BuildEnhancePrompt formats the enhancement request as one user message.
func BuildEnhancePrompt(title, description string) string {
	if strings.TrimSpace(description) == "" {
		description = "No description provided."
	}

	var b strings.Builder
	b.WriteString(enhanceInstructions)
	b.WriteString(promptSeparator)
	fmt.Fprintf(&b, "Task Title: %q\n", title)
	fmt.Fprintf(&b, "Original Description: %q", description)
	return b.String()
}

// BuildSuggestPrompt embeds the caller's workload: at most 20 existing tasks
// and 10 context entries, in the order given.
func BuildSuggestPrompt(title, description string, existing []tasks.Task, recent []contexts.Entry) string {
	var b strings.Builder
	b.WriteString(suggestInstructions)
	b.WriteString(promptSeparator)

	b.WriteString("# New Task\n")
	fmt.Fprintf(&b, "- Title: %q\n", title)
	fmt.Fprintf(&b, "- Description: %q\n", description)

	b.WriteString("\n# Existing Tasks\n")
	if len(existing) == 0 {
		b.WriteString("No existing tasks.\n")
	}
	for i, t := range existing {
		if i == suggestTaskLimit {
			break
		}
		fmt.Fprintf(&b, "- %s (Priority: %s, Due: %s)\n", t.Title, t.PriorityLabel, t.Deadline.Format("2006-01-02"))
	}

	b.WriteString("\n# Recent Contexts\n")
	if len(recent) == 0 {
		b.WriteString("No recent contexts.\n")
	}
	for i, c := range recent {
		if i == suggestContextLimit {
			break
		}
		fmt.Fprintf(&b, "- %s\n", c.Content)
	}

	b.WriteString("\n# Available Categories\n")
	b.WriteString("[" + strings.Join(SuggestionCategories, ", ") + "]\n")
	return b.String()
}

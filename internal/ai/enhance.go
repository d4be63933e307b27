package ai

import (
	"context"
	"strings"
)

const (
	enhanceTemperature = 0.7
	suggestTemperature = 0.5
)

// InputError is a request the relay rejects before calling the model.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }

type Enhancer struct {
	llm LLM
}

func NewEnhancer(llm LLM) *Enhancer {
	return &Enhancer{llm: llm}
}

// Enhance asks the model for a richer description and returns the object
// it produced, expected to hold "enhanced_description".
func (e *Enhancer) Enhance(ctx context.Context, title, description string) (map[string]any, error) {
	if strings.TrimSpace(title) == "" {
		return nil, &InputError{Message: "Title is required to enhance the description."}
	}

	text, err := e.llm.Complete(ctx, BuildEnhancePrompt(title, description), enhanceTemperature)
	if err != nil {
		return nil, err
	}
	return ExtractFirstJSONObject(text)
}

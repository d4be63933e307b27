package ai

import (
	"context"
	"strings"
	"sync"

	"smart-todo/internal/apiclient"
	"smart-todo/internal/contexts"
	"smart-todo/internal/tasks"
)

// Suggester proposes category, priority and deadline for a new task from
// the caller's own workload, read from the backend with the caller's token.
type Suggester struct {
	llm        LLM
	apiBaseURL string
	apiOpts    []apiclient.Option
}

func NewSuggester(llm LLM, apiBaseURL string, opts ...apiclient.Option) *Suggester {
	return &Suggester{llm: llm, apiBaseURL: apiBaseURL, apiOpts: opts}
}

func (s *Suggester) Suggest(ctx context.Context, accessToken, title, description string) (map[string]any, error) {
	if accessToken == "" {
		return nil, apiclient.ErrUnauthenticated
	}
	if strings.TrimSpace(title) == "" || strings.TrimSpace(description) == "" {
		return nil, &InputError{Message: "Title and description are required."}
	}

	existing, recent, err := s.workload(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	text, err := s.llm.Complete(ctx, BuildSuggestPrompt(title, description, existing, recent), suggestTemperature)
	if err != nil {
		return nil, err
	}
	return ExtractFirstJSONObject(text)
}

// workload fetches tasks and context entries in parallel.
func (s *Suggester) workload(ctx context.Context, accessToken string) ([]tasks.Task, []contexts.Entry, error) {
	api := apiclient.New(s.apiBaseURL, apiclient.StaticToken(accessToken), s.apiOpts...)

	var (
		wg       sync.WaitGroup
		taskPage apiclient.Page[tasks.Task]
		ctxPage  apiclient.Page[contexts.Entry]
		taskErr  error
		ctxErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		taskPage, taskErr = tasks.NewRepository(api, nil).List(ctx)
	}()
	go func() {
		defer wg.Done()
		ctxPage, ctxErr = contexts.NewRepository(api).List(ctx)
	}()
	wg.Wait()

	if taskErr != nil {
		return nil, nil, taskErr
	}
	if ctxErr != nil {
		return nil, nil, ctxErr
	}
	return taskPage.Results, ctxPage.Results, nil
}

package openai

import (
	"context"
	"strings"
	"sync"

	"pageoverlay/internal/glossary"
)

// Translator binds a Client to one model and prompt so it can serve as the overlay
// engine backend. It is safe for concurrent use and accumulates billed usage.
type Translator struct {
	client *Client
	model  string
	prompt Prompt

	mu      sync.Mutex
	usage   Usage
	calls   int
	missing int
}

func NewTranslator(client *Client, model string, prompt Prompt) *Translator {
	return &Translator{client: client, model: model, prompt: prompt}
}

func (t *Translator) Translate(ctx context.Context, text string) (string, error) {
	translated, usage, err := t.client.TranslateText(ctx, t.model, text, t.prompt)
	if err != nil {
		return "", err
	}
	t.record(usage)
	if len(t.prompt.Glossary) > 0 {
		translated = glossary.Apply(translated, t.prompt.Glossary)
	}
	return strings.TrimSpace(translated), nil
}

func (t *Translator) record(usage Usage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if !usage.Available {
		t.missing++
		return
	}
	t.usage.InputTokens += usage.InputTokens
	t.usage.OutputTokens += usage.OutputTokens
	t.usage.TotalTokens += usage.TotalTokens
	t.usage.Available = true
}

// Usage returns the accumulated usage, the number of successful calls, and how many
// of those calls reported no usage.
func (t *Translator) Usage() (usage Usage, calls int, missing int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage, t.calls, t.missing
}

package ai

import "context"

// LLMProvider sends a prompt to a language model and returns the raw
// text response. The URL collector's free-text extraction tier and the
// recommender both consume it; tests inject fixed responses.
type LLMProvider interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

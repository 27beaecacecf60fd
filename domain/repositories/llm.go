package repositories

import "context"

// LargeLanguageModel abstracts any chat-completion provider
type LargeLanguageModel interface {
	// Complete sends one rendered prompt and returns the model's reply
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompletionRequest is a single prompt sent to the model
type CompletionRequest struct {
	Prompt string
	// APIKey overrides the configured key for this call when set
	APIKey string
}

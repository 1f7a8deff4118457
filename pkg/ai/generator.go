package ai

import "context"

// TextGenerator produces completion text for a single user prompt.
// maxTokens bounds the response length on providers that support it.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string, maxTokens int) (string, error)
}

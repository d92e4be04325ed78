package services

import "context"

// TextClient is an interface for the text-generation sidecar used by the
// summarize_text step.
type TextClient interface {
	// Summarize sends text to the generation service and returns its
	// structured response.
	Summarize(ctx context.Context, text string) (map[string]any, error)
}

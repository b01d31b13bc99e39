// Package image defines the provider-agnostic generation contract the worker
// depends on, keeping the Gemini specifics out of the pipeline.
package image

import (
	"context"
	"time"
)

// Reference is one garment photo passed as conditioning input.
type Reference struct {
	MIMEType string
	Data     []byte
}

// Variation is one generated image prior to persistence.
type Variation struct {
	MIMEType string
	Data     []byte
	Width    int
	Height   int
}

// TokenUsage carries provider token counts when available.
type TokenUsage struct {
	InputTokens  *int
	OutputTokens *int
}

// Result is the outcome of one generation call.
type Result struct {
	Variations []Variation
	Usage      TokenUsage
	ModelName  string
	Duration   time.Duration
}

// Generator is the contract implemented by all image providers. A call must
// respect the context deadline and must not retry internally.
type Generator interface {
	Generate(ctx context.Context, prompt string, refs []Reference, count int) (*Result, error)
}

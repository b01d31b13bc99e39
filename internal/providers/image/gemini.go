package image

import (
	"bytes"
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/aruniapsara/DrapeStudio/internal/providers/genai"
)

// GeminiGenerator adapts the genai client to the Generator contract.
type GeminiGenerator struct {
	client *genai.Client
}

func NewGeminiGenerator(client *genai.Client) *GeminiGenerator {
	return &GeminiGenerator{client: client}
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, refs []Reference, count int) (*Result, error) {
	images := make([]genai.ReferenceImage, len(refs))
	for i, ref := range refs {
		images[i] = genai.ReferenceImage{MIMEType: ref.MIMEType, Data: ref.Data}
	}

	res, err := g.client.GenerateImages(ctx, genai.ImageRequest{
		Prompt:          prompt,
		ReferenceImages: images,
		Count:           count,
	})
	if err != nil {
		return nil, err
	}

	out := &Result{
		ModelName: res.ModelName,
		Duration:  res.Duration,
		Usage: TokenUsage{
			InputTokens:  res.InputTokens,
			OutputTokens: res.OutputTokens,
		},
	}
	for _, img := range res.Images {
		v := Variation{MIMEType: img.MIMEType, Data: img.Data}
		// Dimensions are best effort; undecodable headers leave them zero.
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(img.Data)); err == nil {
			v.Width = cfg.Width
			v.Height = cfg.Height
		}
		out.Variations = append(out.Variations, v)
	}
	return out, nil
}

var _ Generator = (*GeminiGenerator)(nil)

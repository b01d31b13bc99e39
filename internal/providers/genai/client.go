// Package genai is a thin REST client for the Gemini generateContent API,
// scoped to image generation with inline reference images. The client never
// retries: retry policy belongs to the caller, where duplicate billing is a
// visible decision instead of a hidden one.
package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aruniapsara/DrapeStudio/internal/domain"
	"github.com/aruniapsara/DrapeStudio/internal/infra"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client wraps the Gemini HTTP surface behind the narrow call the worker needs.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

// ReferenceImage is one garment photo sent as conditioning input.
type ReferenceImage struct {
	MIMEType string
	Data     []byte
}

// ImageRequest describes one generation call.
type ImageRequest struct {
	Prompt          string
	ReferenceImages []ReferenceImage
	Count           int
	RequestID       string
}

// GeneratedImage is one produced variation.
type GeneratedImage struct {
	MIMEType string
	Data     []byte
}

// Result carries the produced images plus the usage metadata needed for cost
// accounting. Token counts are nil when the provider omits usage metadata.
type Result struct {
	Images       []GeneratedImage
	InputTokens  *int
	OutputTokens *int
	ModelName    string
	Duration     time.Duration
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiGenerationConfig struct {
	CandidateCount   int    `json:"candidateCount,omitempty"`
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     *int `json:"promptTokenCount,omitempty"`
	CandidatesTokenCount *int `json:"candidatesTokenCount,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata,omitempty"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; a reusable one is created. The HTTP client carries no
// timeout of its own: the per-call context deadline is the single timeout.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	model := opts.Model
	if model == "" {
		model = "gemini-2.0-flash-exp-image-generation"
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		apiKey:     opts.APIKey,
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// GenerateImages performs one generateContent call: all reference images as
// inline data parts, then the prompt text. The context must carry the hard
// deadline; a deadline hit surfaces as domain.ErrProviderTimeout, every other
// failure as domain.ErrProviderFailure.
func (c *Client) GenerateImages(ctx context.Context, req ImageRequest) (*Result, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: api key not configured", domain.ErrProviderFailure)
	}
	if req.Count <= 0 {
		req.Count = 1
	}

	parts := make([]geminiPart, 0, len(req.ReferenceImages)+1)
	for _, ref := range req.ReferenceImages {
		mime := ref.MIMEType
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: mime,
			Data:     base64.StdEncoding.EncodeToString(ref.Data),
		}})
	}
	parts = append(parts, geminiPart{Text: req.Prompt})

	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: &geminiGenerationConfig{
			CandidateCount:   req.Count,
			ResponseMimeType: "image/jpeg",
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", domain.ErrProviderFailure, err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		c.baseURL, url.PathEscape(c.model), url.QueryEscape(c.apiKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrProviderFailure, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("%w: generateContent exceeded deadline", domain.ErrProviderTimeout)
		}
		return nil, fmt.Errorf("%w: generateContent: %v", domain.ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("%w: response read exceeded deadline", domain.ErrProviderTimeout)
		}
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrProviderFailure, err)
	}
	duration := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		var apiErr geminiErrorResponse
		_ = json.Unmarshal(respBody, &apiErr)
		c.logger.Error().
			Int("status", resp.StatusCode).
			Str("request_id", req.RequestID).
			Str("provider_message", apiErr.Error.Message).
			Msg("gemini call failed")
		return nil, fmt.Errorf("%w: status %d", domain.ErrProviderFailure, resp.StatusCode)
	}

	var parsed geminiGenerateContentResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrProviderFailure, err)
	}

	result := &Result{ModelName: c.model, Duration: duration}
	for _, cand := range parsed.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("%w: decode image data: %v", domain.ErrProviderFailure, err)
			}
			result.Images = append(result.Images, GeneratedImage{
				MIMEType: part.InlineData.MimeType,
				Data:     data,
			})
		}
	}
	if len(result.Images) == 0 {
		return nil, fmt.Errorf("%w: response contained no images", domain.ErrProviderFailure)
	}

	if parsed.UsageMetadata != nil {
		result.InputTokens = parsed.UsageMetadata.PromptTokenCount
		result.OutputTokens = parsed.UsageMetadata.CandidatesTokenCount
	}

	c.logger.Info().
		Str("request_id", req.RequestID).
		Int("images", len(result.Images)).
		Dur("duration", duration).
		Msg("gemini generated images")

	return result, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

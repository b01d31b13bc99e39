package genai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aruniapsara/DrapeStudio/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Options{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "gemini-test",
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestGenerateImagesSuccess(t *testing.T) {
	var gotBody geminiGenerateContentRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatal(err)
		}
		in, out := 120, 900
		resp := geminiGenerateContentResponse{
			Candidates: []geminiCandidate{{
				Content: geminiContent{Parts: []geminiPart{
					{InlineData: &geminiInlineData{
						MimeType: "image/jpeg",
						Data:     base64.StdEncoding.EncodeToString([]byte("img-bytes")),
					}},
				}},
			}},
			UsageMetadata: &geminiUsageMetadata{
				PromptTokenCount:     &in,
				CandidatesTokenCount: &out,
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	result, err := client.GenerateImages(context.Background(), ImageRequest{
		Prompt: "a dress on a model",
		ReferenceImages: []ReferenceImage{
			{MIMEType: "image/png", Data: []byte("ref-bytes")},
		},
		Count: 3,
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Images) != 1 {
		t.Fatalf("images = %d, want 1", len(result.Images))
	}
	if string(result.Images[0].Data) != "img-bytes" {
		t.Errorf("image data = %q", result.Images[0].Data)
	}
	if result.InputTokens == nil || *result.InputTokens != 120 {
		t.Errorf("input tokens = %v", result.InputTokens)
	}
	if result.ModelName != "gemini-test" {
		t.Errorf("model = %s", result.ModelName)
	}

	// Request shape: reference image part first, prompt text last.
	parts := gotBody.Contents[0].Parts
	if len(parts) != 2 {
		t.Fatalf("parts = %d, want 2", len(parts))
	}
	if parts[0].InlineData == nil || parts[0].InlineData.MimeType != "image/png" {
		t.Error("first part must carry the reference image")
	}
	if parts[1].Text != "a dress on a model" {
		t.Error("last part must carry the prompt")
	}
	if gotBody.GenerationConfig.CandidateCount != 3 {
		t.Errorf("candidate count = %d", gotBody.GenerationConfig.CandidateCount)
	}
}

func TestGenerateImagesAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota exhausted"}}`))
	})

	_, err := client.GenerateImages(context.Background(), ImageRequest{Prompt: "x", Count: 1})
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("err = %v, want ErrProviderFailure", err)
	}
}

func TestGenerateImagesDeadline(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.GenerateImages(ctx, ImageRequest{Prompt: "x", Count: 1})
	if !errors.Is(err, domain.ErrProviderTimeout) {
		t.Fatalf("err = %v, want ErrProviderTimeout", err)
	}
}

func TestGenerateImagesEmptyResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"no image"}]}}]}`))
	})

	_, err := client.GenerateImages(context.Background(), ImageRequest{Prompt: "x", Count: 1})
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("err = %v, want ErrProviderFailure", err)
	}
}

func TestGenerateImagesMissingKey(t *testing.T) {
	c, err := NewClient(Options{Model: "gemini-test"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.GenerateImages(context.Background(), ImageRequest{Prompt: "x"}); !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("err = %v, want ErrProviderFailure", err)
	}
}

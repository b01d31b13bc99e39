package domain

import (
	"encoding/json"
	"sort"
	"time"
)

// Status enumerates the generation request lifecycle states.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// statusRank orders the lifecycle. Transitions may only move to a strictly
// higher rank, and the two terminal states are frozen.
var statusRank = map[Status]int{
	StatusQueued:    0,
	StatusRunning:   1,
	StatusSucceeded: 2,
	StatusFailed:    2,
}

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Terminal reports whether s is an end state.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next follows the
// forward-only order queued -> running -> succeeded|failed.
func (s Status) CanTransitionTo(next Status) bool {
	if !s.Valid() || !next.Valid() || s.Terminal() {
		return false
	}
	return statusRank[next] == statusRank[s]+1
}

// DefaultOutputCount is the number of variations produced per request.
const DefaultOutputCount = 3

// MaxGarmentImages caps the reference photos accepted per request.
const MaxGarmentImages = 5

// DefaultTemplateVersion pins new requests to the current prompt template.
const DefaultTemplateVersion = "v0.1"

// GenerationRequest is one user ask for a batch of catalogue images.
type GenerationRequest struct {
	ID                    string
	SessionID             string
	Status                Status
	GarmentImageURLs      []string
	ModelParams           map[string]any
	SceneParams           map[string]any
	OutputCount           int
	PromptTemplateVersion string
	IdempotencyKey        string
	ErrorMessage          string
	ClientCountry         string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Fingerprint returns a canonical encoding of the request parameters, used to
// detect idempotency-key reuse with different payloads. Map keys are encoded
// in sorted order so equal parameter sets always fingerprint identically.
func (g *GenerationRequest) Fingerprint() string {
	return canonicalJSON(map[string]any{
		"garment_image_urls": g.GarmentImageURLs,
		"model_params":       g.ModelParams,
		"scene_params":       g.SceneParams,
		"output_count":       g.OutputCount,
	})
}

func canonicalJSON(v any) string {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := "{"
		for i, k := range keys {
			if i > 0 {
				out += ","
			}
			kb, _ := json.Marshal(k)
			out += string(kb) + ":" + canonicalJSON(t[k])
		}
		return out + "}"
	case []any:
		out := "["
		for i, e := range t {
			if i > 0 {
				out += ","
			}
			out += canonicalJSON(e)
		}
		return out + "]"
	case []string:
		arr := make([]any, len(t))
		for i, e := range t {
			arr[i] = e
		}
		return canonicalJSON(arr)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// GenerationOutput is one produced variation image. Rows are written once by
// the worker and never mutated afterwards.
type GenerationOutput struct {
	ID             string
	RequestID      string
	ImageURL       string
	VariationIndex int
	Width          int
	Height         int
	CreatedAt      time.Time
}

// UsageCost records the cost and token telemetry of one provider call.
type UsageCost struct {
	ID               string
	RequestID        string
	Provider         string
	ModelName        string
	InputTokens      *int
	OutputTokens     *int
	EstimatedCostUSD float64
	DurationMS       int
	RecordedAt       time.Time
}

// UsageReportRow is one line of the admin usage report: a request joined with
// its cost record when one exists.
type UsageReportRow struct {
	RequestID        string
	SessionID        string
	Status           Status
	OutputCount      int
	TemplateVersion  string
	ClientCountry    string
	ModelName        string
	InputTokens      *int
	OutputTokens     *int
	EstimatedCostUSD *float64
	DurationMS       *int
	ErrorMessage     string
	CreatedAt        time.Time
}

// UsageReportFilter narrows the admin usage report.
type UsageReportFilter struct {
	From   *time.Time
	To     *time.Time
	Status Status
}

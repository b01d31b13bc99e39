package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aruniapsara/DrapeStudio/internal/domain"
	"github.com/aruniapsara/DrapeStudio/internal/middleware"
	"github.com/aruniapsara/DrapeStudio/internal/worker"
)

type createGenerationRequest struct {
	GarmentImages  []string       `json:"garment_images" validate:"required,min=1,max=5,dive,required"`
	ProductType    string         `json:"product_type"`
	ModelParams    map[string]any `json:"model_params"`
	Scene          map[string]any `json:"scene"`
	Output         outputSpec     `json:"output"`
	IdempotencyKey string         `json:"idempotency_key" validate:"omitempty,max=128"`
}

type outputSpec struct {
	Count int `json:"count" validate:"omitempty,min=1,max=3"`
}

type generationCreatedResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// GenerationsCreate validates the request, enforces the daily cost ceiling,
// persists the queued row, and enqueues the job. The ceiling check happens
// before anything is persisted so a rejected request leaves no trace.
func (a *App) GenerationsCreate(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionFromContext(r.Context())
	if sessionID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	var req createGenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, string(domain.CategoryValidation), "invalid payload")
		return
	}
	if err := a.Validate.Struct(req); err != nil {
		a.error(w, http.StatusBadRequest, string(domain.CategoryValidation), validationMessage(err))
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	spent, err := a.Repo.DailyCostUSD(r.Context(), time.Now())
	if err != nil {
		a.domainError(w, err)
		return
	}
	if spent+worker.CostPerCallUSD > a.Config.DailyCostLimitUSD {
		a.domainError(w, domain.ErrCostLimitExceeded)
		return
	}

	modelParams := req.ModelParams
	if modelParams == nil {
		modelParams = map[string]any{}
	}
	if req.ProductType != "" {
		modelParams["product_type"] = req.ProductType
	}
	sceneParams := req.Scene
	if sceneParams == nil {
		sceneParams = map[string]any{}
	}
	count := req.Output.Count
	if count == 0 {
		count = domain.DefaultOutputCount
	}

	gen := &domain.GenerationRequest{
		ID:                    "gen_" + uuid.NewString(),
		SessionID:             sessionID,
		GarmentImageURLs:      req.GarmentImages,
		ModelParams:           modelParams,
		SceneParams:           sceneParams,
		OutputCount:           count,
		PromptTemplateVersion: domain.DefaultTemplateVersion,
		IdempotencyKey:        req.IdempotencyKey,
		ClientCountry:         middleware.CountryFromContext(r.Context()),
	}

	created, out, err := a.Repo.Create(r.Context(), gen)
	if err != nil {
		a.domainError(w, err)
		return
	}
	if !created {
		a.json(w, http.StatusOK, generationCreatedResponse{ID: out.ID, Status: string(out.Status)})
		return
	}

	if err := a.Queue.Enqueue(r.Context(), out.ID); err != nil {
		// The row is durable; a worker can still pick it up once the queue
		// recovers, so the client gets its id either way.
		a.Logger.Error().Err(err).Str("request_id", out.ID).Msg("enqueue failed, request stays queued")
	}

	a.json(w, http.StatusCreated, generationCreatedResponse{ID: out.ID, Status: string(out.Status)})
}

type generationStatusResponse struct {
	ID                    string    `json:"id"`
	Status                string    `json:"status"`
	CreatedAt             time.Time `json:"created_at"`
	PromptTemplateVersion string    `json:"prompt_template_version"`
	ErrorMessage          string    `json:"error_message,omitempty"`
}

func (a *App) GenerationStatus(w http.ResponseWriter, r *http.Request) {
	gen, err := a.Repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, generationStatusResponse{
		ID:                    gen.ID,
		Status:                string(gen.Status),
		CreatedAt:             gen.CreatedAt,
		PromptTemplateVersion: gen.PromptTemplateVersion,
		ErrorMessage:          gen.ErrorMessage,
	})
}

type outputImage struct {
	VariationIndex int    `json:"variation_index"`
	ImageURL       string `json:"image_url"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
}

type generationOutputsResponse struct {
	ID           string        `json:"id"`
	Status       string        `json:"status"`
	Outputs      []outputImage `json:"outputs"`
	ErrorMessage string        `json:"error_message,omitempty"`
	CostUSD      *float64      `json:"cost_usd,omitempty"`
}

// GenerationOutputs returns the variations with signed download URLs. Outputs
// are only exposed once the request has succeeded.
func (a *App) GenerationOutputs(w http.ResponseWriter, r *http.Request) {
	gen, err := a.Repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.domainError(w, err)
		return
	}

	resp := generationOutputsResponse{
		ID:           gen.ID,
		Status:       string(gen.Status),
		Outputs:      []outputImage{},
		ErrorMessage: gen.ErrorMessage,
	}

	if gen.Status == domain.StatusSucceeded {
		outputs, err := a.Repo.OutputsByRequest(r.Context(), gen.ID)
		if err != nil {
			a.domainError(w, err)
			return
		}
		for _, out := range outputs {
			signed, err := a.Store.SignDownload(r.Context(), out.ImageURL, a.Config.OutputURLExpiry)
			if err != nil {
				a.domainError(w, err)
				return
			}
			resp.Outputs = append(resp.Outputs, outputImage{
				VariationIndex: out.VariationIndex,
				ImageURL:       signed,
				Width:          out.Width,
				Height:         out.Height,
			})
		}
	}

	usage, err := a.Repo.UsageByRequest(r.Context(), gen.ID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	if usage != nil {
		resp.CostUSD = &usage.EstimatedCostUSD
	}

	a.json(w, http.StatusOK, resp)
}

// GenerationRegenerate creates a fresh queued request from a prior request's
// parameters. The original record is never touched, and the new request
// carries no idempotency key.
func (a *App) GenerationRegenerate(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionFromContext(r.Context())
	if sessionID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	prior, err := a.Repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.domainError(w, err)
		return
	}
	if prior.SessionID != sessionID {
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
		return
	}

	spent, err := a.Repo.DailyCostUSD(r.Context(), time.Now())
	if err != nil {
		a.domainError(w, err)
		return
	}
	if spent+worker.CostPerCallUSD > a.Config.DailyCostLimitUSD {
		a.domainError(w, domain.ErrCostLimitExceeded)
		return
	}

	gen := &domain.GenerationRequest{
		ID:                    "gen_" + uuid.NewString(),
		SessionID:             sessionID,
		GarmentImageURLs:      prior.GarmentImageURLs,
		ModelParams:           prior.ModelParams,
		SceneParams:           prior.SceneParams,
		OutputCount:           prior.OutputCount,
		PromptTemplateVersion: prior.PromptTemplateVersion,
		ClientCountry:         middleware.CountryFromContext(r.Context()),
	}

	_, out, err := a.Repo.Create(r.Context(), gen)
	if err != nil {
		a.domainError(w, err)
		return
	}
	if err := a.Queue.Enqueue(r.Context(), out.ID); err != nil {
		a.Logger.Error().Err(err).Str("request_id", out.ID).Msg("enqueue failed, request stays queued")
	}

	a.json(w, http.StatusCreated, generationCreatedResponse{ID: out.ID, Status: string(out.Status)})
}

func validationMessage(err error) string {
	return "invalid request: " + err.Error()
}

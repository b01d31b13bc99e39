package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/aruniapsara/DrapeStudio/internal/middleware"
)

const (
	historyDefaultPerPage = 12
	historyMaxPerPage     = 50
)

type historyOutputImage struct {
	ImageURL       string `json:"image_url"`
	VariationIndex int    `json:"variation_index"`
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
}

type historyItem struct {
	ID               string               `json:"id"`
	Status           string               `json:"status"`
	CreatedAt        time.Time            `json:"created_at"`
	GarmentImageURLs []string             `json:"garment_image_urls"`
	OutputImages     []historyOutputImage `json:"output_images"`
	SceneLabel       string               `json:"scene_label"`
	ModelParams      map[string]any       `json:"model_params"`
	SceneParams      map[string]any       `json:"scene_params"`
	CostUSD          *float64             `json:"cost_usd,omitempty"`
	DurationMS       *int                 `json:"duration_ms,omitempty"`
}

type historyListResponse struct {
	Items   []historyItem `json:"items"`
	Total   int           `json:"total"`
	Page    int           `json:"page"`
	PerPage int           `json:"per_page"`
	HasMore bool          `json:"has_more"`
}

var titleCaser = cases.Title(language.English)

// presetLabel turns a preset key like "studio_white" into a display label.
func presetLabel(key string) string {
	if key == "" {
		return ""
	}
	return titleCaser.String(strings.ReplaceAll(key, "_", " "))
}

// History returns the session's generation requests, newest first, with
// signed URLs for both the garment inputs and the outputs.
func (a *App) History(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionFromContext(r.Context())
	if sessionID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	perPage := queryInt(r, "per_page", historyDefaultPerPage)
	if perPage < 1 {
		perPage = 1
	}
	if perPage > historyMaxPerPage {
		perPage = historyMaxPerPage
	}
	offset := (page - 1) * perPage

	gens, total, err := a.Repo.ListBySession(r.Context(), sessionID, offset, perPage)
	if err != nil {
		a.domainError(w, err)
		return
	}

	items := make([]historyItem, 0, len(gens))
	for i := range gens {
		gen := &gens[i]

		garments := make([]string, 0, len(gen.GarmentImageURLs))
		for _, u := range gen.GarmentImageURLs {
			signed, err := a.Store.SignDownload(r.Context(), u, a.Config.OutputURLExpiry)
			if err != nil {
				continue
			}
			garments = append(garments, signed)
		}

		outputs, err := a.Repo.OutputsByRequest(r.Context(), gen.ID)
		if err != nil {
			a.domainError(w, err)
			return
		}
		outputImages := make([]historyOutputImage, 0, len(outputs))
		for _, out := range outputs {
			signed, err := a.Store.SignDownload(r.Context(), out.ImageURL, a.Config.OutputURLExpiry)
			if err != nil {
				continue
			}
			outputImages = append(outputImages, historyOutputImage{
				ImageURL:       signed,
				VariationIndex: out.VariationIndex,
				Width:          out.Width,
				Height:         out.Height,
			})
		}

		item := historyItem{
			ID:               gen.ID,
			Status:           string(gen.Status),
			CreatedAt:        gen.CreatedAt,
			GarmentImageURLs: garments,
			OutputImages:     outputImages,
			SceneLabel:       sceneLabel(gen.SceneParams),
			ModelParams:      gen.ModelParams,
			SceneParams:      gen.SceneParams,
		}
		usage, err := a.Repo.UsageByRequest(r.Context(), gen.ID)
		if err != nil {
			a.domainError(w, err)
			return
		}
		if usage != nil {
			item.CostUSD = &usage.EstimatedCostUSD
			item.DurationMS = &usage.DurationMS
		}
		items = append(items, item)
	}

	a.json(w, http.StatusOK, historyListResponse{
		Items:   items,
		Total:   total,
		Page:    page,
		PerPage: perPage,
		HasMore: offset+perPage < total,
	})
}

func sceneLabel(sceneParams map[string]any) string {
	env, _ := sceneParams["environment"].(string)
	if env == "" {
		env = "studio_white"
	}
	return presetLabel(env)
}

// HistoryDelete removes a request owned by the session together with its
// stored files. Storage cleanup is best effort; the rows are already gone.
func (a *App) HistoryDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionFromContext(r.Context())
	if sessionID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	id := chi.URLParam(r, "id")
	urls, err := a.Repo.Delete(r.Context(), id, sessionID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	for _, u := range urls {
		if err := a.Store.Delete(r.Context(), u); err != nil {
			a.Logger.Warn().Err(err).Str("file_url", u).Msg("output cleanup failed")
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

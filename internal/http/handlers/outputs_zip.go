package handlers

import (
	"fmt"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"

	"github.com/aruniapsara/DrapeStudio/internal/domain"
	"github.com/aruniapsara/DrapeStudio/pkg/zip"
)

// GenerationOutputsZip streams all variations of a succeeded request as one
// zip archive.
func (a *App) GenerationOutputsZip(w http.ResponseWriter, r *http.Request) {
	gen, err := a.Repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.domainError(w, err)
		return
	}
	if gen.Status != domain.StatusSucceeded {
		a.error(w, http.StatusConflict, "conflict", "outputs are only available for succeeded generations")
		return
	}

	outputs, err := a.Repo.OutputsByRequest(r.Context(), gen.ID)
	if err != nil {
		a.domainError(w, err)
		return
	}

	images := make([]zip.Image, 0, len(outputs))
	for _, out := range outputs {
		data, err := a.Store.Get(r.Context(), out.ImageURL)
		if err != nil {
			a.domainError(w, err)
			return
		}
		images = append(images, zip.Image{
			Filename: fmt.Sprintf("variation_%d%s", out.VariationIndex, path.Ext(out.ImageURL)),
			Data:     data,
		})
	}

	archive, err := zip.ArchiveImages(images)
	if err != nil {
		a.domainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%s_outputs.zip`, gen.ID))
	_, _ = w.Write(archive)
}

// Package handlers holds the HTTP surface. Handlers stay thin: decode,
// validate, call the repository or storage gateway, encode.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/aruniapsara/DrapeStudio/internal/domain"
	"github.com/aruniapsara/DrapeStudio/internal/infra"
	"github.com/aruniapsara/DrapeStudio/internal/queue"
	"github.com/aruniapsara/DrapeStudio/internal/storage"
)

type App struct {
	Repo     domain.GenerationRepository
	Queue    queue.Queue
	Store    storage.Gateway
	Files    *storage.FileStore // nil unless the local backend is active
	Config   *infra.Config
	Logger   *infra.Logger
	Validate *validator.Validate
}

func NewApp(repo domain.GenerationRepository, q queue.Queue, store storage.Gateway, files *storage.FileStore, cfg *infra.Config, logger *infra.Logger) *App {
	return &App{
		Repo:     repo,
		Queue:    q,
		Store:    store,
		Files:    files,
		Config:   cfg,
		Logger:   logger,
		Validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]any{
		"error": map[string]string{
			"code":    errCode,
			"message": message,
		},
	})
}

// domainError maps sentinel errors from the domain layer to HTTP responses.
func (a *App) domainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, domain.ErrConflict):
		a.error(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusBadRequest, string(domain.CategoryValidation), err.Error())
	case errors.Is(err, domain.ErrUploadAuth):
		a.error(w, http.StatusUnauthorized, string(domain.CategoryUploadAuth), "upload link is invalid or expired")
	case errors.Is(err, domain.ErrCostLimitExceeded):
		a.error(w, http.StatusTooManyRequests, string(domain.CategoryCostLimit), "daily generation budget reached, try again tomorrow")
	default:
		a.Logger.Error().Err(err).Msg("internal error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

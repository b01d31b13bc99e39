package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aruniapsara/DrapeStudio/internal/domain"
	"github.com/aruniapsara/DrapeStudio/internal/middleware"
)

// maxUploadBytes caps a single direct upload.
const maxUploadBytes = 20 << 20

var acceptedContentTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

type fileSignRequest struct {
	Kind        string `json:"kind"`
	Filename    string `json:"filename" validate:"required,max=255"`
	ContentType string `json:"content_type" validate:"required"`
}

type signRequest struct {
	Files []fileSignRequest `json:"files" validate:"required,min=1,max=5,dive"`
}

type uploadInfo struct {
	Filename  string `json:"filename"`
	UploadURL string `json:"upload_url"`
	FileURL   string `json:"file_url"`
}

type signResponse struct {
	Uploads          []uploadInfo `json:"uploads"`
	ExpiresInSeconds int          `json:"expires_in_seconds"`
}

// UploadsSign issues time-limited upload URLs, one per requested file.
func (a *App) UploadsSign(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionFromContext(r.Context())
	if sessionID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}

	var req signRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, string(domain.CategoryValidation), "invalid payload")
		return
	}
	if err := a.Validate.Struct(req); err != nil {
		a.error(w, http.StatusBadRequest, string(domain.CategoryValidation), validationMessage(err))
		return
	}

	uploads := make([]uploadInfo, 0, len(req.Files))
	for _, f := range req.Files {
		if _, ok := acceptedContentTypes[f.ContentType]; !ok {
			a.error(w, http.StatusBadRequest, string(domain.CategoryValidation),
				"unsupported file type "+f.ContentType+": use JPG, PNG, or WEBP")
			return
		}
		name := path.Base(f.Filename)
		key := "uploads/" + sessionID + "/" + name
		signed, err := a.Store.SignUpload(r.Context(), key, f.ContentType, a.Config.UploadURLExpiry)
		if err != nil {
			a.domainError(w, err)
			return
		}
		uploads = append(uploads, uploadInfo{
			Filename:  name,
			UploadURL: signed.UploadURL,
			FileURL:   signed.FileURL,
		})
	}

	a.json(w, http.StatusOK, signResponse{
		Uploads:          uploads,
		ExpiresInSeconds: int(a.Config.UploadURLExpiry.Seconds()),
	})
}

// UploadsDirect receives the bytes for a previously signed local upload. Only
// available on the local backend; S3 uploads go straight to the bucket.
func (a *App) UploadsDirect(w http.ResponseWriter, r *http.Request) {
	if a.Files == nil {
		a.error(w, http.StatusNotFound, "not_found", "direct upload only available with local storage")
		return
	}

	session := chi.URLParam(r, "session")
	filename := chi.URLParam(r, "filename")
	key := "uploads/" + session + "/" + filename

	expires, err := strconv.ParseInt(r.URL.Query().Get("expires"), 10, 64)
	if err != nil {
		a.error(w, http.StatusUnauthorized, string(domain.CategoryUploadAuth), "upload link is invalid or expired")
		return
	}
	if err := a.Files.VerifyUpload(key, expires, r.URL.Query().Get("sig")); err != nil {
		a.domainError(w, err)
		return
	}

	contentType := r.Header.Get("Content-Type")
	if _, ok := acceptedContentTypes[contentType]; !ok {
		a.error(w, http.StatusBadRequest, string(domain.CategoryValidation), "unsupported file type "+contentType)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		a.error(w, http.StatusRequestEntityTooLarge, string(domain.CategoryValidation), "file too large, maximum 20MB")
		return
	}

	fileURL, err := a.Files.Put(r.Context(), key, data)
	if err != nil {
		a.domainError(w, err)
		return
	}

	a.json(w, http.StatusOK, map[string]string{"status": "ok", "file_url": fileURL})
}

// FilesServe serves objects from local storage so browsers can render
// download URLs in development.
func (a *App) FilesServe(w http.ResponseWriter, r *http.Request) {
	if a.Files == nil {
		a.error(w, http.StatusNotFound, "not_found", "file serving only available with local storage")
		return
	}

	key := chi.URLParam(r, "*")
	data, err := a.Files.Get(r.Context(), key)
	if err != nil {
		a.domainError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentTypeForKey(key))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(data)
}

func contentTypeForKey(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

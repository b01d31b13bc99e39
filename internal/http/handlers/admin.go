package handlers

import (
	"crypto/subtle"
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"github.com/aruniapsara/DrapeStudio/internal/domain"
)

// RequireAdmin guards the admin routes with the shared token. An unset
// ADMIN_TOKEN disables the admin surface entirely.
func (a *App) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := a.Config.AdminToken
		if token == "" {
			a.error(w, http.StatusNotFound, "not_found", "resource not found")
			return
		}
		got := r.Header.Get("X-Admin-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			a.error(w, http.StatusUnauthorized, "unauthorized", "invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type usageReportRow struct {
	ID               string   `json:"id"`
	SessionID        string   `json:"session_id"`
	Status           string   `json:"status"`
	OutputCount      int      `json:"output_count"`
	TemplateVersion  string   `json:"prompt_template_version"`
	ClientCountry    string   `json:"client_country,omitempty"`
	ModelName        string   `json:"model_name,omitempty"`
	InputTokens      *int     `json:"input_tokens"`
	OutputTokens     *int     `json:"output_tokens"`
	EstimatedCostUSD *float64 `json:"estimated_cost_usd"`
	DurationMS       *int     `json:"duration_ms"`
	ErrorMessage     string   `json:"error_message,omitempty"`
	CreatedAt        string   `json:"created_at"`
}

// AdminUsageReport returns the generation/cost report, optionally filtered by
// date range and status, as JSON or CSV.
func (a *App) AdminUsageReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var filter domain.UsageReportFilter
	if from := q.Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			a.error(w, http.StatusBadRequest, string(domain.CategoryValidation), "from must be YYYY-MM-DD")
			return
		}
		filter.From = &t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			a.error(w, http.StatusBadRequest, string(domain.CategoryValidation), "to must be YYYY-MM-DD")
			return
		}
		// The filter upper bound is exclusive; include the whole "to" day.
		end := t.AddDate(0, 0, 1)
		filter.To = &end
	}
	if status := q.Get("status"); status != "" {
		s := domain.Status(status)
		if !s.Valid() {
			a.error(w, http.StatusBadRequest, string(domain.CategoryValidation), "unknown status "+status)
			return
		}
		filter.Status = s
	}

	report, err := a.Repo.UsageReport(r.Context(), filter)
	if err != nil {
		a.domainError(w, err)
		return
	}

	rows := make([]usageReportRow, 0, len(report))
	for _, row := range report {
		rows = append(rows, usageReportRow{
			ID:               row.RequestID,
			SessionID:        row.SessionID,
			Status:           string(row.Status),
			OutputCount:      row.OutputCount,
			TemplateVersion:  row.TemplateVersion,
			ClientCountry:    row.ClientCountry,
			ModelName:        row.ModelName,
			InputTokens:      row.InputTokens,
			OutputTokens:     row.OutputTokens,
			EstimatedCostUSD: row.EstimatedCostUSD,
			DurationMS:       row.DurationMS,
			ErrorMessage:     row.ErrorMessage,
			CreatedAt:        row.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	if q.Get("format") == "csv" {
		a.writeUsageCSV(w, rows)
		return
	}
	a.json(w, http.StatusOK, rows)
}

func (a *App) writeUsageCSV(w http.ResponseWriter, rows []usageReportRow) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename=usage_report.csv`)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{
		"id", "session_id", "status", "output_count", "prompt_template_version",
		"client_country", "model_name", "input_tokens", "output_tokens",
		"estimated_cost_usd", "duration_ms", "error_message", "created_at",
	})
	for _, row := range rows {
		_ = cw.Write([]string{
			row.ID,
			row.SessionID,
			row.Status,
			strconv.Itoa(row.OutputCount),
			row.TemplateVersion,
			row.ClientCountry,
			row.ModelName,
			formatIntPtr(row.InputTokens),
			formatIntPtr(row.OutputTokens),
			formatFloatPtr(row.EstimatedCostUSD),
			formatIntPtr(row.DurationMS),
			row.ErrorMessage,
			row.CreatedAt,
		})
	}
	cw.Flush()
}

func formatIntPtr(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}

func formatFloatPtr(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

// Package repo contains the PostgreSQL implementations of the domain
// repository contracts.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aruniapsara/DrapeStudio/internal/domain"
)

const uniqueViolation = "23505"

// GenerationRepositoryPG implements domain.GenerationRepository.
type GenerationRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewGenerationRepository creates a generation repository backed by PostgreSQL.
func NewGenerationRepository(pool *pgxpool.Pool) *GenerationRepositoryPG {
	return &GenerationRepositoryPG{pool: pool}
}

// Create inserts a new queued request. Idempotency-key reuse is detected via
// the unique constraint rather than a read-then-write, so two racing creates
// with the same key cannot both insert.
func (r *GenerationRepositoryPG) Create(ctx context.Context, req *domain.GenerationRequest) (bool, *domain.GenerationRequest, error) {
	garments, err := json.Marshal(req.GarmentImageURLs)
	if err != nil {
		return false, nil, fmt.Errorf("marshal garment urls: %w", err)
	}
	modelParams, err := json.Marshal(req.ModelParams)
	if err != nil {
		return false, nil, fmt.Errorf("marshal model params: %w", err)
	}
	sceneParams, err := json.Marshal(req.SceneParams)
	if err != nil {
		return false, nil, fmt.Errorf("marshal scene params: %w", err)
	}

	query := `
INSERT INTO generation_requests
    (id, session_id, status, garment_image_urls, model_params, scene_params,
     output_count, prompt_template_version, idempotency_key, client_country)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING created_at, updated_at;
`
	err = r.pool.QueryRow(ctx, query,
		req.ID,
		req.SessionID,
		domain.StatusQueued,
		garments,
		modelParams,
		sceneParams,
		req.OutputCount,
		req.PromptTemplateVersion,
		nullableString(req.IdempotencyKey),
		nullableString(req.ClientCountry),
	).Scan(&req.CreatedAt, &req.UpdatedAt)
	if err == nil {
		req.Status = domain.StatusQueued
		return true, req, nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation || req.IdempotencyKey == "" {
		return false, nil, fmt.Errorf("insert generation request: %w", err)
	}

	existing, err := r.getByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		return false, nil, err
	}
	if existing.Fingerprint() != req.Fingerprint() {
		return false, nil, fmt.Errorf("%w: idempotency key reused with different parameters", domain.ErrConflict)
	}
	return false, existing, nil
}

// Get fetches a request by its identifier.
func (r *GenerationRepositoryPG) Get(ctx context.Context, id string) (*domain.GenerationRequest, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *GenerationRepositoryPG) getByIdempotencyKey(ctx context.Context, key string) (*domain.GenerationRequest, error) {
	return r.getOne(ctx, `WHERE idempotency_key = $1`, key)
}

func (r *GenerationRepositoryPG) getOne(ctx context.Context, where string, arg any) (*domain.GenerationRequest, error) {
	query := `
SELECT id, session_id, status, garment_image_urls, model_params, scene_params,
       output_count, prompt_template_version, COALESCE(idempotency_key, ''),
       COALESCE(error_message, ''), COALESCE(client_country, ''),
       created_at, updated_at
FROM generation_requests
` + where + `;`
	row := r.pool.QueryRow(ctx, query, arg)
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch generation request: %w", err)
	}
	return req, nil
}

// Transition moves a request one step forward. The update is a compare-and-set
// against the only legal predecessor of next, so a concurrent mover loses
// cleanly with ErrConflict instead of overwriting.
func (r *GenerationRepositoryPG) Transition(ctx context.Context, id string, next domain.Status, fields domain.TransitionFields) error {
	prev, err := predecessorOf(next)
	if err != nil {
		return err
	}
	return r.transition(ctx, r.pool, id, prev, next, fields)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (r *GenerationRepositoryPG) transition(ctx context.Context, db execer, id string, prev, next domain.Status, fields domain.TransitionFields) error {
	query := `
UPDATE generation_requests
SET status = $3,
    error_message = COALESCE($4, error_message),
    updated_at = NOW()
WHERE id = $1 AND status = $2;
`
	tag, err := db.Exec(ctx, query, id, prev, next, nullableString(fields.ErrorMessage))
	if err != nil {
		return fmt.Errorf("transition generation request: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: request is not %s", domain.ErrConflict, prev)
}

func predecessorOf(next domain.Status) (domain.Status, error) {
	switch next {
	case domain.StatusRunning:
		return domain.StatusQueued, nil
	case domain.StatusSucceeded, domain.StatusFailed:
		return domain.StatusRunning, nil
	default:
		return "", fmt.Errorf("%w: no transition into %s", domain.ErrConflict, next)
	}
}

// CompleteSuccess writes the outputs, the usage record, and the
// running->succeeded transition in a single transaction.
func (r *GenerationRepositoryPG) CompleteSuccess(ctx context.Context, id string, outputs []domain.GenerationOutput, usage *domain.UsageCost) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := r.transition(ctx, tx, id, domain.StatusRunning, domain.StatusSucceeded, domain.TransitionFields{}); err != nil {
		return err
	}
	for i := range outputs {
		if err := insertOutput(ctx, tx, &outputs[i]); err != nil {
			return err
		}
	}
	if usage != nil {
		if err := insertUsage(ctx, tx, usage); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// CompleteFailure marks the request failed, recording partial usage from the
// attempt when the provider reported any.
func (r *GenerationRepositoryPG) CompleteFailure(ctx context.Context, id string, category domain.FailureCategory, usage *domain.UsageCost) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	fields := domain.TransitionFields{ErrorMessage: string(category)}
	if err := r.transition(ctx, tx, id, domain.StatusRunning, domain.StatusFailed, fields); err != nil {
		return err
	}
	if usage != nil {
		if err := insertUsage(ctx, tx, usage); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func insertOutput(ctx context.Context, db execer, out *domain.GenerationOutput) error {
	query := `
INSERT INTO generation_outputs (id, request_id, image_url, variation_index, width, height)
VALUES ($1, $2, $3, $4, $5, $6);
`
	_, err := db.Exec(ctx, query,
		out.ID,
		out.RequestID,
		out.ImageURL,
		out.VariationIndex,
		nullableInt(out.Width),
		nullableInt(out.Height),
	)
	if err != nil {
		return fmt.Errorf("insert generation output: %w", err)
	}
	return nil
}

func insertUsage(ctx context.Context, db execer, usage *domain.UsageCost) error {
	query := `
INSERT INTO usage_costs (id, request_id, provider, model_name, input_tokens, output_tokens, estimated_cost_usd, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`
	_, err := db.Exec(ctx, query,
		usage.ID,
		usage.RequestID,
		usage.Provider,
		usage.ModelName,
		usage.InputTokens,
		usage.OutputTokens,
		usage.EstimatedCostUSD,
		usage.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("insert usage cost: %w", err)
	}
	return nil
}

// OutputsByRequest returns a request's outputs ordered by variation index.
func (r *GenerationRepositoryPG) OutputsByRequest(ctx context.Context, id string) ([]domain.GenerationOutput, error) {
	query := `
SELECT id, request_id, image_url, variation_index, COALESCE(width, 0), COALESCE(height, 0), created_at
FROM generation_outputs
WHERE request_id = $1
ORDER BY variation_index;
`
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("list generation outputs: %w", err)
	}
	defer rows.Close()

	var outputs []domain.GenerationOutput
	for rows.Next() {
		var out domain.GenerationOutput
		if err := rows.Scan(&out.ID, &out.RequestID, &out.ImageURL, &out.VariationIndex, &out.Width, &out.Height, &out.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan generation output: %w", err)
		}
		outputs = append(outputs, out)
	}
	return outputs, rows.Err()
}

// UsageByRequest returns the usage record for a request, or nil when none was
// recorded.
func (r *GenerationRepositoryPG) UsageByRequest(ctx context.Context, id string) (*domain.UsageCost, error) {
	query := `
SELECT id, request_id, provider, model_name, input_tokens, output_tokens,
       COALESCE(estimated_cost_usd, 0), COALESCE(duration_ms, 0), recorded_at
FROM usage_costs
WHERE request_id = $1
ORDER BY recorded_at DESC
LIMIT 1;
`
	row := r.pool.QueryRow(ctx, query, id)
	var usage domain.UsageCost
	err := row.Scan(
		&usage.ID,
		&usage.RequestID,
		&usage.Provider,
		&usage.ModelName,
		&usage.InputTokens,
		&usage.OutputTokens,
		&usage.EstimatedCostUSD,
		&usage.DurationMS,
		&usage.RecordedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch usage cost: %w", err)
	}
	return &usage, nil
}

// DailyCostUSD sums the estimated spend recorded during the UTC day
// containing now.
func (r *GenerationRepositoryPG) DailyCostUSD(ctx context.Context, now time.Time) (float64, error) {
	dayStart := now.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	query := `
SELECT COALESCE(SUM(estimated_cost_usd), 0)
FROM usage_costs
WHERE recorded_at >= $1 AND recorded_at < $2;
`
	var total float64
	if err := r.pool.QueryRow(ctx, query, dayStart, dayEnd).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum daily cost: %w", err)
	}
	return total, nil
}

// ListBySession returns a page of a session's requests, newest first, with the
// total count for pagination.
func (r *GenerationRepositoryPG) ListBySession(ctx context.Context, sessionID string, offset, limit int) ([]domain.GenerationRequest, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM generation_requests WHERE session_id = $1;`
	if err := r.pool.QueryRow(ctx, countQuery, sessionID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count session requests: %w", err)
	}

	query := `
SELECT id, session_id, status, garment_image_urls, model_params, scene_params,
       output_count, prompt_template_version, COALESCE(idempotency_key, ''),
       COALESCE(error_message, ''), COALESCE(client_country, ''),
       created_at, updated_at
FROM generation_requests
WHERE session_id = $1
ORDER BY created_at DESC
OFFSET $2 LIMIT $3;
`
	rows, err := r.pool.Query(ctx, query, sessionID, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list session requests: %w", err)
	}
	defer rows.Close()

	var items []domain.GenerationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan generation request: %w", err)
		}
		items = append(items, *req)
	}
	return items, total, rows.Err()
}

// Delete removes a request owned by sessionID; outputs and usage rows go with
// it via cascade. Returns the output URLs so the caller can clean storage.
func (r *GenerationRepositoryPG) Delete(ctx context.Context, id, sessionID string) ([]string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	urlQuery := `SELECT image_url FROM generation_outputs WHERE request_id = $1;`
	rows, err := tx.Query(ctx, urlQuery, id)
	if err != nil {
		return nil, fmt.Errorf("list output urls: %w", err)
	}
	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan output url: %w", err)
		}
		urls = append(urls, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM generation_requests WHERE id = $1 AND session_id = $2;`, id, sessionID)
	if err != nil {
		return nil, fmt.Errorf("delete generation request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrNotFound
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return urls, nil
}

// UsageReport joins requests with their cost records for the admin report.
func (r *GenerationRepositoryPG) UsageReport(ctx context.Context, filter domain.UsageReportFilter) ([]domain.UsageReportRow, error) {
	query := `
SELECT gr.id, gr.session_id, gr.status, gr.output_count, gr.prompt_template_version,
       COALESCE(gr.client_country, ''), COALESCE(uc.model_name, ''),
       uc.input_tokens, uc.output_tokens, uc.estimated_cost_usd, uc.duration_ms,
       COALESCE(gr.error_message, ''), gr.created_at
FROM generation_requests gr
LEFT JOIN usage_costs uc ON uc.request_id = gr.id
WHERE ($1::timestamptz IS NULL OR gr.created_at >= $1)
  AND ($2::timestamptz IS NULL OR gr.created_at < $2)
  AND ($3::text IS NULL OR gr.status = $3)
ORDER BY gr.created_at DESC;
`
	var status *string
	if filter.Status != "" {
		s := string(filter.Status)
		status = &s
	}
	rows, err := r.pool.Query(ctx, query, filter.From, filter.To, status)
	if err != nil {
		return nil, fmt.Errorf("usage report: %w", err)
	}
	defer rows.Close()

	var report []domain.UsageReportRow
	for rows.Next() {
		var row domain.UsageReportRow
		if err := rows.Scan(
			&row.RequestID,
			&row.SessionID,
			&row.Status,
			&row.OutputCount,
			&row.TemplateVersion,
			&row.ClientCountry,
			&row.ModelName,
			&row.InputTokens,
			&row.OutputTokens,
			&row.EstimatedCostUSD,
			&row.DurationMS,
			&row.ErrorMessage,
			&row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan usage report row: %w", err)
		}
		report = append(report, row)
	}
	return report, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*domain.GenerationRequest, error) {
	var req domain.GenerationRequest
	var garments, modelParams, sceneParams []byte
	if err := row.Scan(
		&req.ID,
		&req.SessionID,
		&req.Status,
		&garments,
		&modelParams,
		&sceneParams,
		&req.OutputCount,
		&req.PromptTemplateVersion,
		&req.IdempotencyKey,
		&req.ErrorMessage,
		&req.ClientCountry,
		&req.CreatedAt,
		&req.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(garments, &req.GarmentImageURLs); err != nil {
		return nil, fmt.Errorf("decode garment urls: %w", err)
	}
	if err := json.Unmarshal(modelParams, &req.ModelParams); err != nil {
		return nil, fmt.Errorf("decode model params: %w", err)
	}
	if err := json.Unmarshal(sceneParams, &req.SceneParams); err != nil {
		return nil, fmt.Errorf("decode scene params: %w", err)
	}
	return &req, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableInt(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}

var _ domain.GenerationRepository = (*GenerationRepositoryPG)(nil)

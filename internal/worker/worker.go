// Package worker runs the generation pipeline: it claims queued requests,
// assembles the prompt, calls the image provider, persists the outputs, and
// records usage. It is the only writer of post-creation request state.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/aruniapsara/DrapeStudio/internal/domain"
	"github.com/aruniapsara/DrapeStudio/internal/infra"
	"github.com/aruniapsara/DrapeStudio/internal/prompt"
	"github.com/aruniapsara/DrapeStudio/internal/providers/image"
	"github.com/aruniapsara/DrapeStudio/internal/queue"
	"github.com/aruniapsara/DrapeStudio/internal/storage"
)

// CostPerCallUSD is the flat estimate recorded per provider call. Token-based
// pricing is not available for image generation, so this stands in until the
// provider exposes real billing data.
const CostPerCallUSD = 0.02

// providerName labels usage rows with their upstream.
const providerName = "google_gemini"

// dequeueRetryDelay paces the consume loop when the queue itself errors.
const dequeueRetryDelay = 2 * time.Second

// Worker consumes the generation queue and drives each request to a terminal
// state.
type Worker struct {
	repo      domain.GenerationRepository
	queue     queue.Queue
	store     storage.Gateway
	generator image.Generator
	logger    *infra.Logger

	// providerTimeout bounds the single provider call. There is no retry:
	// the caller decides whether to pay for another attempt.
	providerTimeout time.Duration
}

// Options configures a Worker.
type Options struct {
	Repo            domain.GenerationRepository
	Queue           queue.Queue
	Store           storage.Gateway
	Generator       image.Generator
	Logger          *infra.Logger
	ProviderTimeout time.Duration
}

func New(opts Options) *Worker {
	return &Worker{
		repo:            opts.Repo,
		queue:           opts.Queue,
		store:           opts.Store,
		generator:       opts.Generator,
		logger:          opts.Logger,
		providerTimeout: opts.ProviderTimeout,
	}
}

// Run consumes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Msg("worker started")
	for {
		id, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrEmpty) {
				continue
			}
			if ctx.Err() != nil {
				w.logger.Info().Msg("worker stopping")
				return nil
			}
			w.logger.Error().Err(err).Msg("dequeue failed")
			// Pause before retrying so an unreachable queue does not spin the
			// loop and flood the logs.
			select {
			case <-ctx.Done():
				w.logger.Info().Msg("worker stopping")
				return nil
			case <-time.After(dequeueRetryDelay):
			}
			continue
		}
		w.Process(ctx, id)
	}
}

// Process drives one request from queued to a terminal state. Any error after
// the running transition ends in CompleteFailure with a client-safe category;
// raw provider errors stay in the logs.
func (w *Worker) Process(ctx context.Context, requestID string) {
	log := w.logger.With().Str("request_id", requestID).Logger()

	// Claim the request. A lost race (another worker, or a stale enqueue for
	// an already-terminal request) is not our job to fail.
	if err := w.repo.Transition(ctx, requestID, domain.StatusRunning, domain.TransitionFields{}); err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict) {
			log.Warn().Err(err).Msg("request not claimable, skipping")
			return
		}
		log.Error().Err(err).Msg("claim failed, request stays queued")
		return
	}

	req, err := w.repo.Get(ctx, requestID)
	if err != nil {
		log.Error().Err(err).Msg("load request failed")
		w.fail(ctx, log, requestID, domain.CategoryStorageError)
		return
	}

	refs, err := w.loadReferences(ctx, req)
	if err != nil {
		log.Error().Err(err).Msg("load garment images failed")
		w.fail(ctx, log, requestID, domain.Categorize(err))
		return
	}

	promptText, err := prompt.Assemble(req.PromptTemplateVersion, req.ModelParams, req.SceneParams, req.GarmentImageURLs)
	if err != nil {
		log.Error().Err(err).Msg("prompt assembly failed")
		w.fail(ctx, log, requestID, domain.Categorize(err))
		return
	}

	count := req.OutputCount
	if count <= 0 {
		count = domain.DefaultOutputCount
	}

	callCtx, cancel := context.WithTimeout(ctx, w.providerTimeout)
	result, err := w.generator.Generate(callCtx, promptText, refs, count)
	cancel()
	if err != nil {
		log.Error().Err(err).Msg("provider call failed")
		w.fail(ctx, log, requestID, domain.Categorize(err))
		return
	}
	// Candidate count is best-effort upstream. A short or oversized set would
	// leave variation indexes out of step with output_count, so anything other
	// than an exact match fails the request.
	if len(result.Variations) != count {
		log.Error().
			Int("got", len(result.Variations)).
			Int("want", count).
			Msg("provider returned wrong image count")
		w.failWithUsage(ctx, log, requestID, domain.CategoryProviderError, w.buildUsage(requestID, result))
		return
	}

	outputs := make([]domain.GenerationOutput, 0, len(result.Variations))
	for i, v := range result.Variations {
		key := fmt.Sprintf("outputs/%s/variation_%d.jpg", requestID, i)
		fileURL, err := w.store.Put(ctx, key, v.Data)
		if err != nil {
			log.Error().Err(err).Int("variation", i).Msg("store output failed")
			w.failWithUsage(ctx, log, requestID, domain.CategoryStorageError, w.buildUsage(requestID, result))
			return
		}
		outputs = append(outputs, domain.GenerationOutput{
			ID:             "out_" + uuid.NewString(),
			RequestID:      requestID,
			ImageURL:       fileURL,
			VariationIndex: i,
			Width:          v.Width,
			Height:         v.Height,
		})
	}

	if err := w.repo.CompleteSuccess(ctx, requestID, outputs, w.buildUsage(requestID, result)); err != nil {
		log.Error().Err(err).Msg("complete success failed")
		return
	}
	log.Info().
		Int("outputs", len(outputs)).
		Dur("duration", result.Duration).
		Msg("generation succeeded")
}

// loadReferences fetches every garment image, plus the optional model photo,
// from storage. Content types are sniffed from the bytes; the provider needs
// them on each inline part.
func (w *Worker) loadReferences(ctx context.Context, req *domain.GenerationRequest) ([]image.Reference, error) {
	if len(req.GarmentImageURLs) == 0 {
		return nil, fmt.Errorf("%w: request has no garment images", domain.ErrValidation)
	}

	var refs []image.Reference
	for _, fileURL := range req.GarmentImageURLs {
		data, err := w.store.Get(ctx, fileURL)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("%w: garment image missing: %s", domain.ErrStorageFailure, fileURL)
			}
			return nil, fmt.Errorf("%w: load %s: %v", domain.ErrStorageFailure, fileURL, err)
		}
		refs = append(refs, image.Reference{MIMEType: http.DetectContentType(data), Data: data})
	}

	// A model photo is an optional extra conditioning image; a missing one is
	// logged upstream and skipped rather than failing the whole request.
	if photoURL, ok := req.ModelParams["model_photo_url"].(string); ok && photoURL != "" {
		data, err := w.store.Get(ctx, photoURL)
		if err == nil {
			refs = append(refs, image.Reference{MIMEType: http.DetectContentType(data), Data: data})
		} else {
			w.logger.Warn().Str("model_photo_url", photoURL).Err(err).Msg("model photo unavailable, proceeding without it")
		}
	}
	return refs, nil
}

func (w *Worker) buildUsage(requestID string, result *image.Result) *domain.UsageCost {
	if result == nil {
		return nil
	}
	return &domain.UsageCost{
		ID:               "use_" + uuid.NewString(),
		RequestID:        requestID,
		Provider:         providerName,
		ModelName:        result.ModelName,
		InputTokens:      result.Usage.InputTokens,
		OutputTokens:     result.Usage.OutputTokens,
		EstimatedCostUSD: CostPerCallUSD,
		DurationMS:       int(result.Duration.Milliseconds()),
	}
}

func (w *Worker) fail(ctx context.Context, log infra.Logger, requestID string, category domain.FailureCategory) {
	w.failWithUsage(ctx, log, requestID, category, nil)
}

func (w *Worker) failWithUsage(ctx context.Context, log infra.Logger, requestID string, category domain.FailureCategory, usage *domain.UsageCost) {
	if err := w.repo.CompleteFailure(ctx, requestID, category, usage); err != nil {
		log.Error().Err(err).Str("category", string(category)).Msg("complete failure failed")
	}
}

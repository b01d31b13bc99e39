package domain

import (
	"context"
	"time"
)

// TransitionFields carries the optional columns written alongside a status
// transition.
type TransitionFields struct {
	ErrorMessage string
}

// GenerationRepository is the record store contract for the request lifecycle.
//
// Writes are split by owner: the API process calls Create and the read
// methods; the worker owns every mutation after creation. CompleteSuccess and
// CompleteFailure commit atomically, so a concurrent reader never observes a
// succeeded request without its outputs.
type GenerationRepository interface {
	// Create persists a new queued request. When the request carries an
	// idempotency key that was already used with an identical parameter
	// fingerprint, the existing record is returned with created=false. The
	// same key with different parameters is ErrConflict.
	Create(ctx context.Context, req *GenerationRequest) (created bool, out *GenerationRequest, err error)

	Get(ctx context.Context, id string) (*GenerationRequest, error)

	// Transition moves a request to next, rejecting with ErrConflict any move
	// that does not follow the forward-only status order.
	Transition(ctx context.Context, id string, next Status, fields TransitionFields) error

	// CompleteSuccess writes all outputs, the usage record, and the
	// running->succeeded transition in one transaction.
	CompleteSuccess(ctx context.Context, id string, outputs []GenerationOutput, usage *UsageCost) error

	// CompleteFailure marks the request failed with a category-level message
	// and optionally records partial usage from the attempt.
	CompleteFailure(ctx context.Context, id string, category FailureCategory, usage *UsageCost) error

	OutputsByRequest(ctx context.Context, id string) ([]GenerationOutput, error)
	UsageByRequest(ctx context.Context, id string) (*UsageCost, error)

	// DailyCostUSD sums the estimated cost recorded during the UTC day
	// containing now. Computed on demand, never cached across requests.
	DailyCostUSD(ctx context.Context, now time.Time) (float64, error)

	ListBySession(ctx context.Context, sessionID string, offset, limit int) ([]GenerationRequest, int, error)

	// Delete removes a request owned by sessionID together with its outputs
	// and usage rows. Returns the output URLs so callers can clean storage.
	Delete(ctx context.Context, id, sessionID string) ([]string, error)

	UsageReport(ctx context.Context, filter UsageReportFilter) ([]UsageReportRow, error)
}

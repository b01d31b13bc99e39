package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aruniapsara/DrapeStudio/internal/domain"
	"github.com/aruniapsara/DrapeStudio/internal/providers/image"
	"github.com/aruniapsara/DrapeStudio/internal/storage"
)

// fakeRepo records lifecycle calls in memory.
type fakeRepo struct {
	domain.GenerationRepository

	req *domain.GenerationRequest

	transitionErr error
	transitions   []domain.Status

	succeededOutputs []domain.GenerationOutput
	succeededUsage   *domain.UsageCost

	failedCategory domain.FailureCategory
	failedUsage    *domain.UsageCost
	failed         bool
}

func (f *fakeRepo) Get(ctx context.Context, id string) (*domain.GenerationRequest, error) {
	if f.req == nil || f.req.ID != id {
		return nil, domain.ErrNotFound
	}
	return f.req, nil
}

func (f *fakeRepo) Transition(ctx context.Context, id string, next domain.Status, fields domain.TransitionFields) error {
	if f.transitionErr != nil {
		return f.transitionErr
	}
	f.transitions = append(f.transitions, next)
	f.req.Status = next
	return nil
}

func (f *fakeRepo) CompleteSuccess(ctx context.Context, id string, outputs []domain.GenerationOutput, usage *domain.UsageCost) error {
	f.req.Status = domain.StatusSucceeded
	f.succeededOutputs = outputs
	f.succeededUsage = usage
	return nil
}

func (f *fakeRepo) CompleteFailure(ctx context.Context, id string, category domain.FailureCategory, usage *domain.UsageCost) error {
	f.req.Status = domain.StatusFailed
	f.failed = true
	f.failedCategory = category
	f.failedUsage = usage
	return nil
}

// fakeGateway keeps objects in a map and can be told to fail writes.
type fakeGateway struct {
	objects map[string][]byte
	putErr  error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{objects: map[string][]byte{}}
}

func (g *fakeGateway) Put(ctx context.Context, key string, data []byte) (string, error) {
	if g.putErr != nil {
		return "", g.putErr
	}
	url := "local://" + key
	g.objects[url] = data
	return url, nil
}

func (g *fakeGateway) Get(ctx context.Context, fileURL string) ([]byte, error) {
	data, ok := g.objects[fileURL]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

func (g *fakeGateway) SignUpload(ctx context.Context, key, contentType string, expiry time.Duration) (storage.SignedUpload, error) {
	return storage.SignedUpload{}, errors.New("not implemented")
}

func (g *fakeGateway) SignDownload(ctx context.Context, fileURL string, expiry time.Duration) (string, error) {
	return fileURL, nil
}

func (g *fakeGateway) Delete(ctx context.Context, fileURL string) error {
	delete(g.objects, fileURL)
	return nil
}

// fakeGenerator returns a canned result or error.
type fakeGenerator struct {
	result *image.Result
	err    error

	gotPrompt string
	gotRefs   int
	gotCount  int
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string, refs []image.Reference, count int) (*image.Result, error) {
	g.gotPrompt = prompt
	g.gotRefs = len(refs)
	g.gotCount = count
	if g.err != nil {
		return nil, g.err
	}
	return g.result, nil
}

// failingQueue always errors on Dequeue and counts the attempts.
type failingQueue struct {
	mu    sync.Mutex
	calls int
}

func (q *failingQueue) Enqueue(ctx context.Context, requestID string) error { return nil }

func (q *failingQueue) Dequeue(ctx context.Context) (string, error) {
	q.mu.Lock()
	q.calls++
	q.mu.Unlock()
	return "", errors.New("connection refused")
}

func (q *failingQueue) callCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls
}

func newTestWorker(repo *fakeRepo, gw *fakeGateway, gen *fakeGenerator) *Worker {
	logger := zerolog.Nop()
	return New(Options{
		Repo:            repo,
		Store:           gw,
		Generator:       gen,
		Logger:          &logger,
		ProviderTimeout: time.Second,
	})
}

func testRequest() *domain.GenerationRequest {
	return &domain.GenerationRequest{
		ID:                    "gen_test",
		SessionID:             "sess_test",
		Status:                domain.StatusQueued,
		GarmentImageURLs:      []string{"local://uploads/dress.jpg"},
		ModelParams:           map[string]any{"gender_expression": "feminine"},
		SceneParams:           map[string]any{"environment": "studio_white"},
		OutputCount:           3,
		PromptTemplateVersion: domain.DefaultTemplateVersion,
	}
}

func intPtr(n int) *int { return &n }

func TestRunPacesDequeueErrors(t *testing.T) {
	q := &failingQueue{}
	logger := zerolog.Nop()
	w := New(Options{
		Repo:            &fakeRepo{},
		Queue:           q,
		Store:           newFakeGateway(),
		Generator:       &fakeGenerator{},
		Logger:          &logger,
		ProviderTimeout: time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// With a paced loop a broken queue yields one attempt in this window, not
	// thousands.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	if got := q.callCount(); got > 2 {
		t.Errorf("dequeue attempts = %d, want at most 2", got)
	}
}

func TestProcessSuccess(t *testing.T) {
	repo := &fakeRepo{req: testRequest()}
	gw := newFakeGateway()
	gw.objects["local://uploads/dress.jpg"] = []byte("garment-bytes")

	gen := &fakeGenerator{result: &image.Result{
		Variations: []image.Variation{
			{MIMEType: "image/jpeg", Data: []byte("img-0")},
			{MIMEType: "image/jpeg", Data: []byte("img-1")},
			{MIMEType: "image/jpeg", Data: []byte("img-2")},
		},
		Usage:     image.TokenUsage{InputTokens: intPtr(120), OutputTokens: intPtr(900)},
		ModelName: "gemini-test",
		Duration:  250 * time.Millisecond,
	}}

	w := newTestWorker(repo, gw, gen)
	w.Process(context.Background(), "gen_test")

	if repo.req.Status != domain.StatusSucceeded {
		t.Fatalf("status = %s, want succeeded", repo.req.Status)
	}
	if len(repo.succeededOutputs) != 3 {
		t.Fatalf("outputs = %d, want 3", len(repo.succeededOutputs))
	}
	for i, out := range repo.succeededOutputs {
		if out.VariationIndex != i {
			t.Errorf("output %d has variation index %d", i, out.VariationIndex)
		}
		wantURL := fmt.Sprintf("local://outputs/gen_test/variation_%d.jpg", i)
		if out.ImageURL != wantURL {
			t.Errorf("output %d url = %s, want %s", i, out.ImageURL, wantURL)
		}
		if _, ok := gw.objects[out.ImageURL]; !ok {
			t.Errorf("output %d not stored", i)
		}
	}
	if repo.succeededUsage == nil {
		t.Fatal("usage not recorded")
	}
	if repo.succeededUsage.EstimatedCostUSD != CostPerCallUSD {
		t.Errorf("cost = %f, want %f", repo.succeededUsage.EstimatedCostUSD, CostPerCallUSD)
	}
	if repo.succeededUsage.Provider != providerName {
		t.Errorf("provider = %s", repo.succeededUsage.Provider)
	}
	if got := *repo.succeededUsage.InputTokens; got != 120 {
		t.Errorf("input tokens = %d, want 120", got)
	}
	if gen.gotCount != 3 {
		t.Errorf("requested count = %d, want 3", gen.gotCount)
	}
	if gen.gotRefs != 1 {
		t.Errorf("reference count = %d, want 1", gen.gotRefs)
	}
	if !strings.Contains(gen.gotPrompt, "ENVIRONMENT:") {
		t.Error("prompt missing environment section")
	}
}

func TestProcessProviderTimeout(t *testing.T) {
	repo := &fakeRepo{req: testRequest()}
	gw := newFakeGateway()
	gw.objects["local://uploads/dress.jpg"] = []byte("garment-bytes")
	gen := &fakeGenerator{err: fmt.Errorf("%w: call exceeded deadline", domain.ErrProviderTimeout)}

	w := newTestWorker(repo, gw, gen)
	w.Process(context.Background(), "gen_test")

	if repo.req.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed", repo.req.Status)
	}
	if repo.failedCategory != domain.CategoryProviderTimeout {
		t.Errorf("category = %s, want provider_timeout", repo.failedCategory)
	}
	if len(repo.succeededOutputs) != 0 {
		t.Error("outputs must not be written on timeout")
	}
	if len(gw.objects) != 1 {
		t.Error("no new objects should be stored on timeout")
	}
}

func TestProcessMissingGarmentImage(t *testing.T) {
	repo := &fakeRepo{req: testRequest()}
	gw := newFakeGateway() // garment image never stored
	gen := &fakeGenerator{}

	w := newTestWorker(repo, gw, gen)
	w.Process(context.Background(), "gen_test")

	if repo.failedCategory != domain.CategoryStorageError {
		t.Errorf("category = %s, want storage_error", repo.failedCategory)
	}
	if gen.gotCount != 0 {
		t.Error("provider must not be called when garments are missing")
	}
}

func TestProcessStorageWriteFailure(t *testing.T) {
	repo := &fakeRepo{req: testRequest()}
	gw := newFakeGateway()
	gw.objects["local://uploads/dress.jpg"] = []byte("garment-bytes")
	gen := &fakeGenerator{result: &image.Result{
		Variations: []image.Variation{
			{MIMEType: "image/jpeg", Data: []byte("img-0")},
			{MIMEType: "image/jpeg", Data: []byte("img-1")},
			{MIMEType: "image/jpeg", Data: []byte("img-2")},
		},
		ModelName: "gemini-test",
	}}

	w := newTestWorker(repo, gw, gen)
	gw.putErr = errors.New("disk full")
	w.Process(context.Background(), "gen_test")

	if repo.failedCategory != domain.CategoryStorageError {
		t.Errorf("category = %s, want storage_error", repo.failedCategory)
	}
	if repo.failedUsage == nil {
		t.Error("usage from the attempt should still be recorded")
	}
}

func TestProcessShortProviderResponse(t *testing.T) {
	repo := &fakeRepo{req: testRequest()}
	gw := newFakeGateway()
	gw.objects["local://uploads/dress.jpg"] = []byte("garment-bytes")

	// The provider honours candidate count on a best-effort basis; two images
	// for a three-output request must fail rather than succeed short.
	gen := &fakeGenerator{result: &image.Result{
		Variations: []image.Variation{
			{MIMEType: "image/jpeg", Data: []byte("img-0")},
			{MIMEType: "image/jpeg", Data: []byte("img-1")},
		},
		Usage:     image.TokenUsage{InputTokens: intPtr(90), OutputTokens: intPtr(600)},
		ModelName: "gemini-test",
	}}

	w := newTestWorker(repo, gw, gen)
	w.Process(context.Background(), "gen_test")

	if repo.req.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed", repo.req.Status)
	}
	if repo.failedCategory != domain.CategoryProviderError {
		t.Errorf("category = %s, want provider_error", repo.failedCategory)
	}
	if len(repo.succeededOutputs) != 0 {
		t.Error("partial outputs must not be committed")
	}
	if len(gw.objects) != 1 {
		t.Error("partial images must not be stored")
	}
	if repo.failedUsage == nil {
		t.Fatal("usage from the attempt should still be recorded")
	}
	if got := *repo.failedUsage.InputTokens; got != 90 {
		t.Errorf("input tokens = %d, want 90", got)
	}
}

func TestProcessOversizedProviderResponse(t *testing.T) {
	repo := &fakeRepo{req: testRequest()}
	gw := newFakeGateway()
	gw.objects["local://uploads/dress.jpg"] = []byte("garment-bytes")

	gen := &fakeGenerator{result: &image.Result{
		Variations: []image.Variation{
			{MIMEType: "image/jpeg", Data: []byte("img-0")},
			{MIMEType: "image/jpeg", Data: []byte("img-1")},
			{MIMEType: "image/jpeg", Data: []byte("img-2")},
			{MIMEType: "image/jpeg", Data: []byte("img-3")},
		},
		ModelName: "gemini-test",
	}}

	w := newTestWorker(repo, gw, gen)
	w.Process(context.Background(), "gen_test")

	if repo.failedCategory != domain.CategoryProviderError {
		t.Errorf("category = %s, want provider_error", repo.failedCategory)
	}
	if len(gw.objects) != 1 {
		t.Error("extra images must not be stored")
	}
}

func TestProcessClaimConflict(t *testing.T) {
	repo := &fakeRepo{req: testRequest(), transitionErr: domain.ErrConflict}
	gw := newFakeGateway()
	gen := &fakeGenerator{}

	w := newTestWorker(repo, gw, gen)
	w.Process(context.Background(), "gen_test")

	if repo.failed {
		t.Error("unclaimable request must not be failed")
	}
	if gen.gotCount != 0 {
		t.Error("provider must not be called for an unclaimable request")
	}
}

func TestProcessBadPresetFailsValidation(t *testing.T) {
	req := testRequest()
	req.SceneParams = map[string]any{"environment": "moon_base"}
	repo := &fakeRepo{req: req}
	gw := newFakeGateway()
	gw.objects["local://uploads/dress.jpg"] = []byte("garment-bytes")
	gen := &fakeGenerator{}

	w := newTestWorker(repo, gw, gen)
	w.Process(context.Background(), "gen_test")

	if repo.failedCategory != domain.CategoryValidation {
		t.Errorf("category = %s, want validation_error", repo.failedCategory)
	}
}

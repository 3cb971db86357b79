package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bryanwahyu/mediscan/internal/domain/ai"
	domain "github.com/bryanwahyu/mediscan/internal/domain/analysis"
	"github.com/bryanwahyu/mediscan/internal/domain/images"
	"github.com/bryanwahyu/mediscan/internal/domain/pipelineerrors"
)

// journal records the order of side effects across fakes.
type journal struct {
	mu    sync.Mutex
	calls []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, s)
}

type fakeStore struct {
	j        *journal
	objects  map[string][]byte
	putErrs  []error
	rmErr    error
	signFail error
}

func (f *fakeStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	f.j.add("store.put")
	if len(f.putErrs) > 0 {
		err := f.putErrs[0]
		f.putErrs = f.putErrs[1:]
		if err != nil {
			return err
		}
	}
	b, _ := io.ReadAll(r)
	f.objects[key] = b
	return nil
}

func (f *fakeStore) Remove(_ context.Context, key string) error {
	f.j.add("store.remove")
	if f.rmErr != nil {
		return f.rmErr
	}
	delete(f.objects, key)
	return nil
}

func (f *fakeStore) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if f.signFail != nil {
		return "", f.signFail
	}
	return "https://storage.test/" + key + "?sig=1", nil
}

type fakeImages struct {
	j       *journal
	rows    map[images.ImageID]*images.Image
	saveErr error
}

func (f *fakeImages) Save(_ context.Context, img *images.Image) error {
	f.j.add("images.save")
	if f.saveErr != nil {
		return f.saveErr
	}
	cp := *img
	f.rows[img.ID] = &cp
	return nil
}

func (f *fakeImages) Get(_ context.Context, userID string, id images.ImageID) (*images.Image, error) {
	img, ok := f.rows[id]
	if !ok || img.UserID != userID {
		return nil, images.ErrNotFound
	}
	cp := *img
	return &cp, nil
}

func (f *fakeImages) Delete(_ context.Context, _ string, id images.ImageID) error {
	f.j.add("images.delete")
	delete(f.rows, id)
	return nil
}

func (f *fakeImages) Latest(context.Context, string, int) ([]*images.Image, error) { return nil, nil }

func (f *fakeImages) Cursor(context.Context, string, time.Time, string, int) ([]*images.Image, error) {
	return nil, nil
}

type fakeAnalyses struct {
	j    *journal
	rows []*domain.Result
}

func (f *fakeAnalyses) Save(_ context.Context, r *domain.Result) error {
	f.j.add("analyses.save")
	f.rows = append(f.rows, r)
	return nil
}

func (f *fakeAnalyses) Get(_ context.Context, userID string, id domain.ResultID) (*domain.Result, error) {
	for _, r := range f.rows {
		if r.ID == id && r.UserID == userID {
			return r, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeAnalyses) GetByImage(_ context.Context, userID, imageID string) (*domain.Result, error) {
	for _, r := range f.rows {
		if r.ImageID == imageID && r.UserID == userID {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeAnalyses) Paginate(context.Context, string, int, int) (domain.PaginatedResult, error) {
	return domain.PaginatedResult{Data: f.rows, Page: 1, TotalPages: 1, Total: int64(len(f.rows))}, nil
}

func (f *fakeAnalyses) Summary(context.Context, string, int) (domain.RiskSummary, error) {
	return domain.RiskSummary{Total: len(f.rows)}, nil
}

// fakeAI replays scripted answers; once a script runs out its last entry repeats.
type fakeAI struct {
	j            *journal
	validations  []ai.Validation
	validateErrs []error
	reports      []*domain.Report
	analyzeErrs  []error
	validated    int
	analyzed     int
}

func pick[T any](xs []T, i int) T {
	var zero T
	if len(xs) == 0 {
		return zero
	}
	if i >= len(xs) {
		return xs[len(xs)-1]
	}
	return xs[i]
}

func (f *fakeAI) Validate(context.Context, string) (ai.Validation, error) {
	f.j.add("ai.validate")
	i := f.validated
	f.validated++
	if err := pick(f.validateErrs, i); err != nil {
		return ai.Validation{}, err
	}
	return pick(f.validations, i), nil
}

func (f *fakeAI) Analyze(context.Context, string) (*domain.Report, error) {
	f.j.add("ai.analyze")
	i := f.analyzed
	f.analyzed++
	if err := pick(f.analyzeErrs, i); err != nil {
		return nil, err
	}
	return pick(f.reports, i), nil
}

type fakeErrors struct {
	saved []*pipelineerrors.PipelineError
}

func (f *fakeErrors) Save(_ context.Context, e *pipelineerrors.PipelineError) error {
	f.saved = append(f.saved, e)
	return nil
}

func (f *fakeErrors) ListByImage(_ context.Context, _ string, imageID string, _ int) ([]*pipelineerrors.PipelineError, error) {
	var out []*pipelineerrors.PipelineError
	for _, e := range f.saved {
		if e.ImageID == imageID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeLocks struct {
	held map[string]bool
}

func (f *fakeLocks) Claim(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	if f.held[key] {
		return "", false, nil
	}
	f.held[key] = true
	return "token-" + key, true, nil
}

func (f *fakeLocks) Release(_ context.Context, key, token string) error {
	if token != "token-"+key {
		return fmt.Errorf("release %s with foreign token %q", key, token)
	}
	delete(f.held, key)
	return nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var errNetwork = errors.New("connection reset by peer")

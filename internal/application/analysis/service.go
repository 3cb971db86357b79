// Package analysis runs the upload, validate, analyze and save pipeline for
// chest X-ray images.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/mediscan/internal/application"
	"github.com/bryanwahyu/mediscan/internal/application/retry"
	"github.com/bryanwahyu/mediscan/internal/domain/ai"
	domain "github.com/bryanwahyu/mediscan/internal/domain/analysis"
	"github.com/bryanwahyu/mediscan/internal/domain/images"
	"github.com/bryanwahyu/mediscan/internal/domain/pipelineerrors"
)

// Phase names a pipeline state.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseUploading   Phase = "uploading"
	PhasePersisting  Phase = "persisting"
	PhaseValidating  Phase = "validating"
	PhaseRejected    Phase = "rejected"
	PhaseRollingBack Phase = "rolling_back"
	PhaseFailed      Phase = "failed"
	PhaseAnalyzing   Phase = "analyzing"
	PhaseMapping     Phase = "mapping"
	PhaseSaving      Phase = "saving"
	PhaseDone        Phase = "done"
)

const defaultClaimTTL = 5 * time.Minute

// Policies holds one attempt budget per kind of remote system.
type Policies struct {
	Storage  retry.Policy
	Database retry.Policy
	AI       retry.Policy
}

// Notice is sent to the caller before every retry.
type Notice struct {
	Phase       Phase  `json:"phase"`
	Operation   string `json:"operation"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
	Message     string `json:"message"`
}

// Notifier is the per-request retry hook. It may be nil.
type Notifier func(Notice)

// Service orchestrates the pipeline. One call handles one upload; nothing
// inside a run happens in parallel.
type Service struct {
	Images   images.Repository
	Analyses domain.Repository
	Errors   pipelineerrors.Repository
	Store    images.ObjectStore
	AI       ai.Client
	Locks    Claimer
	Clock    application.Clock
	Log      logrus.FieldLogger
	Metrics  Recorder
	Breakers *retry.Breakers

	Policies     Policies
	SignedURLTTL time.Duration
	ClaimTTL     time.Duration
	MaxBytes     int64
	NewID        func() string
}

// UploadCommand is one image upload.
type UploadCommand struct {
	UserID      string
	FileName    string
	ContentType string
	Data        []byte
}

// Outcome of a successful run.
type Outcome struct {
	Image    *images.Image           `json:"image"`
	Result   *domain.Result          `json:"analysis"`
	Findings []domain.DisplayFinding `json:"findings"`
	Summary  string                  `json:"summary"`
}

// run carries the state of one pipeline execution.
type run struct {
	img    *images.Image
	phase  Phase
	log    logrus.FieldLogger
	notify Notifier
	start  time.Time
}

// UploadAndAnalyze stores the image, records it as pending and runs the
// analysis. A rejected image is removed again and reported as *RejectedError.
func (s *Service) UploadAndAnalyze(ctx context.Context, cmd UploadCommand, notify Notifier) (*Outcome, error) {
	if err := s.validateUpload(cmd); err != nil {
		return nil, err
	}

	now := s.now()
	ext := images.Extension(cmd.FileName, cmd.ContentType)
	img := &images.Image{
		ID:          images.ImageID(s.newID()),
		UserID:      cmd.UserID,
		FilePath:    images.StorageKey(cmd.UserID, now, ext),
		FileName:    cmd.FileName,
		ContentType: cmd.ContentType,
		SizeBytes:   int64(len(cmd.Data)),
		UploadedAt:  now,
	}
	r := s.newRun(img, notify)

	r.enter(PhaseUploading)
	err := s.remote(ctx, r, "storage.put", s.Policies.Storage, func(ctx context.Context) error {
		return s.Store.Put(ctx, img.FilePath, bytes.NewReader(cmd.Data), img.SizeBytes, cmd.ContentType)
	})
	if err != nil {
		return nil, s.fail(ctx, r, fmt.Errorf("%w: upload image: %w", ErrStorage, err))
	}

	r.enter(PhasePersisting)
	err = s.remote(ctx, r, "db.image_save", s.Policies.Database, func(ctx context.Context) error {
		return s.Images.Save(ctx, img)
	})
	if err != nil {
		// no row points at the blob, so drop it
		if rmErr := s.Store.Remove(context.WithoutCancel(ctx), img.FilePath); rmErr != nil {
			r.log.WithError(rmErr).Warn("remove orphaned blob")
		}
		return nil, s.fail(ctx, r, fmt.Errorf("save pending image: %w", err))
	}

	return s.analyze(ctx, r)
}

// AnalyzeImage runs validation and analysis for an image that is already
// stored. An existing result is returned without calling the model.
func (s *Service) AnalyzeImage(ctx context.Context, userID string, id images.ImageID, notify Notifier) (*Outcome, error) {
	img, err := s.Images.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.analyze(ctx, s.newRun(img, notify))
}

func (s *Service) analyze(ctx context.Context, r *run) (*Outcome, error) {
	img := r.img
	key := "analysis:" + string(img.ID)
	if s.Locks != nil {
		ttl := s.ClaimTTL
		if ttl <= 0 {
			ttl = defaultClaimTTL
		}
		token, ok, err := s.Locks.Claim(ctx, key, ttl)
		if err != nil {
			return nil, s.fail(ctx, r, fmt.Errorf("claim %s: %w", key, err))
		}
		if !ok {
			return nil, ErrAnalysisInProgress
		}
		defer func() {
			if err := s.Locks.Release(context.WithoutCancel(ctx), key, token); err != nil {
				r.log.WithError(err).Warn("release analysis claim")
			}
		}()
	}

	existing, err := s.Analyses.GetByImage(ctx, img.UserID, string(img.ID))
	if err != nil {
		return nil, s.fail(ctx, r, fmt.Errorf("lookup analysis: %w", err))
	}
	if existing != nil {
		r.log.Info("analysis already stored")
		return s.outcome(img, existing), nil
	}

	r.enter(PhaseValidating)
	url, err := retry.DoValue(ctx, s.Policies.Storage, func(ctx context.Context) (string, error) {
		return s.Store.SignedURL(ctx, img.FilePath, s.SignedURLTTL)
	}, s.notifier(r, "storage.signed_url", s.Policies.Storage))
	if err != nil {
		return nil, s.fail(ctx, r, fmt.Errorf("%w: sign image url: %w", ErrStorage, err))
	}

	var verdict ai.Validation
	err = s.remote(ctx, r, "ai.validate", s.Policies.AI, func(ctx context.Context) error {
		v, err := timed(ctx, s, "validate", func(ctx context.Context) (ai.Validation, error) { return s.AI.Validate(ctx, url) })
		verdict = v
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, r, fmt.Errorf("validate image: %w", err))
	}
	if !verdict.Valid {
		return nil, s.reject(ctx, r, verdict)
	}

	r.enter(PhaseAnalyzing)
	var report *domain.Report
	err = s.remote(ctx, r, "ai.analyze", s.Policies.AI, func(ctx context.Context) error {
		rep, err := timed(ctx, s, "analyze", func(ctx context.Context) (*domain.Report, error) { return s.AI.Analyze(ctx, url) })
		report = rep
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, r, fmt.Errorf("analyze image: %w", err))
	}

	r.enter(PhaseMapping)
	scores := domain.MapScores(report.Findings)
	risk, ok := domain.ParseRisk(report.OverallRisk)
	if !ok {
		risk = domain.RiskFromScores(scores)
		r.log.WithField("reported_risk", report.OverallRisk).Warn("unusable overall risk, derived from scores")
	}
	res := &domain.Result{
		ID:             domain.ResultID(s.newID()),
		ImageID:        string(img.ID),
		UserID:         img.UserID,
		Scores:         scores,
		OverallRisk:    risk,
		Recommendation: report.Recommendation,
		Summary:        report.Summary,
		Status:         domain.StatusCompleted,
		AnalyzedAt:     s.now(),
	}
	res.ProcessingMS = res.AnalyzedAt.Sub(r.start).Milliseconds()

	r.enter(PhaseSaving)
	err = s.remote(ctx, r, "db.analysis_save", s.Policies.Database, func(ctx context.Context) error {
		return s.Analyses.Save(ctx, res)
	})
	if err != nil {
		return nil, s.fail(ctx, r, fmt.Errorf("save analysis: %w", err))
	}

	r.enter(PhaseDone)
	img.HasAnalysis = true
	s.metrics().PipelineRun("completed")
	r.log.WithFields(logrus.Fields{
		"analysis_id":   res.ID,
		"overall_risk":  res.OverallRisk,
		"findings":      len(report.Findings),
		"processing_ms": res.ProcessingMS,
	}).Info("analysis completed")
	return s.outcome(img, res), nil
}

// reject removes the blob, then the pending row, then reports the reason.
func (s *Service) reject(ctx context.Context, r *run, verdict ai.Validation) error {
	r.enter(PhaseRejected)
	reason := strings.TrimSpace(verdict.Reason)
	if reason == "" {
		reason = DefaultRejectReason
	}
	rejected := &RejectedError{Reason: reason}

	r.enter(PhaseRollingBack)
	// the caller may be gone, cleanup still has to happen
	cctx := context.WithoutCancel(ctx)
	img := r.img
	err := s.remote(cctx, r, "storage.remove", s.Policies.Storage, func(ctx context.Context) error {
		return s.Store.Remove(ctx, img.FilePath)
	})
	if err != nil {
		err = fmt.Errorf("%w: remove blob %s: %w", ErrRollbackFailed, img.FilePath, err)
	} else {
		err = s.remote(cctx, r, "db.image_delete", s.Policies.Database, func(ctx context.Context) error {
			return s.Images.Delete(ctx, img.UserID, img.ID)
		})
		if err != nil {
			err = fmt.Errorf("%w: delete image row: %w", ErrRollbackFailed, err)
		}
	}
	if err != nil {
		rejected.Rollback = err
		r.log.WithError(err).Error("rollback of rejected image failed")
		s.audit(cctx, r, err)
		s.metrics().PipelineRun("rollback_failed")
		r.enter(PhaseFailed)
		return rejected
	}

	s.metrics().PipelineRun("rejected")
	r.log.WithField("reason", reason).Info("image rejected")
	r.enter(PhaseFailed)
	return rejected
}

// fail logs, audits and counts a failure of the current phase.
func (s *Service) fail(ctx context.Context, r *run, err error) error {
	r.log.WithError(err).Warn("pipeline failed")
	s.audit(context.WithoutCancel(ctx), r, err)
	s.metrics().PipelineRun(string(Classify(err).Kind))
	r.enter(PhaseFailed)
	return err
}

func (s *Service) audit(ctx context.Context, r *run, cause error) {
	if s.Errors == nil {
		return
	}
	details, _ := json.Marshal(map[string]any{
		"file_path": r.img.FilePath,
		"error":     cause.Error(),
	})
	e := &pipelineerrors.PipelineError{
		UserID:      r.img.UserID,
		ImageID:     string(r.img.ID),
		Phase:       string(r.phase),
		Kind:        string(Classify(cause).Kind),
		Message:     Classify(cause).Message,
		DetailsJSON: string(details),
		CreatedAt:   s.now(),
	}
	if err := s.Errors.Save(ctx, e); err != nil {
		r.log.WithError(err).Warn("save pipeline error")
	}
}

// remote runs fn through the breaker for op with the retry budget p.
func (s *Service) remote(ctx context.Context, r *run, op string, p retry.Policy, fn func(context.Context) error) error {
	return s.Breakers.Run(ctx, op, func(ctx context.Context) error {
		return retry.Do(ctx, p, fn, s.notifier(r, op, p))
	})
}

func (s *Service) notifier(r *run, op string, p retry.Policy) retry.Notify {
	return func(attempt int, err error) {
		s.metrics().RetryAttempt(op)
		r.log.WithFields(logrus.Fields{"operation": op, "attempt": attempt}).WithError(err).Warn("retrying")
		if r.notify == nil {
			return
		}
		budget := p.MaxAttempts
		if budget <= 0 {
			budget = 1
		}
		r.notify(Notice{
			Phase:       r.phase,
			Operation:   op,
			Attempt:     attempt,
			MaxAttempts: budget,
			Message:     fmt.Sprintf("Retrying %s (attempt %d/%d)...", r.phase, attempt, budget),
		})
	}
}

// timed reports the duration of one AI call attempt.
func timed[T any](ctx context.Context, s *Service, call string, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	v, err := fn(ctx)
	s.metrics().AICall(call, time.Since(start), err)
	return v, err
}

func (s *Service) outcome(img *images.Image, res *domain.Result) *Outcome {
	img.HasAnalysis = true
	return &Outcome{
		Image:    img,
		Result:   res,
		Findings: domain.DisplayFindings(res.Scores),
		Summary:  res.Summary,
	}
}

func (s *Service) validateUpload(cmd UploadCommand) error {
	switch {
	case strings.TrimSpace(cmd.UserID) == "":
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	case len(cmd.Data) == 0:
		return fmt.Errorf("%w: file is empty", ErrInvalidInput)
	case s.MaxBytes > 0 && int64(len(cmd.Data)) > s.MaxBytes:
		return fmt.Errorf("%w: file size must be less than %dMB", ErrInvalidInput, s.MaxBytes>>20)
	}
	return nil
}

func (s *Service) newRun(img *images.Image, notify Notifier) *run {
	return &run{
		img:    img,
		phase:  PhaseIdle,
		notify: notify,
		start:  s.now(),
		log: s.logger().WithFields(logrus.Fields{
			"image_id": img.ID,
			"user_id":  img.UserID,
		}),
	}
}

func (r *run) enter(p Phase) {
	r.phase = p
	r.log = r.log.WithField("phase", p)
	r.log.Debug("entering phase")
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *Service) logger() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}

func (s *Service) metrics() Recorder {
	if s.Metrics == nil {
		return nopRecorder{}
	}
	return s.Metrics
}

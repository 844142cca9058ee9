package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"teacherdev_backend/internal/event"
	"teacherdev_backend/internal/model"
	"teacherdev_backend/internal/util"
	"teacherdev_backend/pkg/lock"
	"teacherdev_backend/pkg/monitoring"
	"teacherdev_backend/pkg/tracing"
)

// Summarizer writes the narrative for an aggregated attempt.
type Summarizer interface {
	Summarize(ctx context.Context, in NarrativeInput) (text string, degraded bool)
}

type EvaluationOptions struct {
	StrengthThreshold float64
	Timeout           time.Duration
	LockTTL           time.Duration
	MaxRetries        int
}

// EvaluationService turns submitted attempts into results. It is safe to call
// EvaluateAndSave repeatedly and concurrently for the same attempt: a
// per-attempt lock serialises runs and an existing result is always reused.
type EvaluationService struct {
	pool        QuestionPool
	attempts    AttemptStore
	results     ResultStore
	evaluator   *QuestionEvaluator
	summarizer  Summarizer
	recommender *RecommendationMapper
	locker      lock.Locker
	publisher   event.Publisher
	log         *zap.Logger
	now         func() time.Time

	threshold  float64
	timeout    time.Duration
	lockTTL    time.Duration
	maxRetries atomic.Int64
}

func NewEvaluationService(
	pool QuestionPool,
	attempts AttemptStore,
	results ResultStore,
	evaluator *QuestionEvaluator,
	summarizer Summarizer,
	recommender *RecommendationMapper,
	locker lock.Locker,
	publisher event.Publisher,
	opts EvaluationOptions,
	log *zap.Logger,
) *EvaluationService {
	if opts.StrengthThreshold <= 0 {
		opts.StrengthThreshold = DefaultStrengthThreshold
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Minute
	}
	if publisher == nil {
		publisher = event.NoopPublisher{}
	}
	s := &EvaluationService{
		pool:        pool,
		attempts:    attempts,
		results:     results,
		evaluator:   evaluator,
		summarizer:  summarizer,
		recommender: recommender,
		locker:      locker,
		publisher:   publisher,
		log:         log,
		now:         time.Now,
		threshold:   opts.StrengthThreshold,
		timeout:     opts.Timeout,
		lockTTL:     opts.LockTTL,
	}
	s.SetMaxRetries(opts.MaxRetries)
	return s
}

// SetMaxRetries changes how many failed sweeps an attempt survives before it
// is marked FAILED. Values below 1 mean 1.
func (s *EvaluationService) SetMaxRetries(n int) {
	if n < 1 {
		n = 1
	}
	s.maxRetries.Store(int64(n))
}

func (s *EvaluationService) MaxRetries() int {
	return int(s.maxRetries.Load())
}

// EvaluateAndSave evaluates a SUBMITTED attempt and persists its result. When
// a result already exists it is returned unchanged and a SUBMITTED attempt is
// repaired to EVALUATED. Returns util.ErrEvaluationInProgress when
// another run holds the attempt.
func (s *EvaluationService) EvaluateAndSave(ctx context.Context, attemptID string) (*model.AssessmentResult, error) {
	ctx, span := tracing.Tracer.Start(ctx, "EvaluationService.EvaluateAndSave")
	defer span.End()
	span.SetAttributes(attribute.String("attempt.id", attemptID))

	start := time.Now()
	result, outcome, err := s.evaluateAndSave(ctx, attemptID)
	monitoring.EvaluationsTotal.WithLabelValues(outcome).Inc()
	if outcome == "evaluated" {
		monitoring.EvaluationDuration.Observe(time.Since(start).Seconds())
	}
	span.SetAttributes(attribute.String("evaluation.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (s *EvaluationService) evaluateAndSave(ctx context.Context, attemptID string) (*model.AssessmentResult, string, error) {
	unlock, ok, err := s.locker.TryLock(ctx, "evaluation:"+attemptID, s.lockTTL)
	if err != nil {
		return nil, "error", fmt.Errorf("acquire evaluation lock: %w", err)
	}
	if !ok {
		return nil, "skipped", util.ErrEvaluationInProgress
	}
	defer unlock()

	attempt, err := s.attempts.FindAttemptByID(ctx, attemptID)
	if err != nil {
		return nil, "error", err
	}

	existing, err := s.results.FindResultByAttemptID(ctx, attemptID)
	switch {
	case err == nil:
		repaired := attempt.Status == model.AttemptSubmitted
		if err := s.markEvaluated(ctx, attempt); err != nil {
			return nil, "error", err
		}
		if repaired {
			s.log.Warn("Attempt status repaired from stored result", zap.String("attempt_id", attempt.ID))
		}
		return existing, "reused", nil
	case !errors.Is(err, util.ErrResultNotFound):
		return nil, "error", err
	}

	if attempt.Status != model.AttemptSubmitted {
		return nil, "rejected", fmt.Errorf("%w: cannot evaluate %s attempt", util.ErrInvalidState, attempt.Status)
	}

	questions, err := s.resolveQuestions(ctx, attempt)
	if err != nil {
		return nil, "error", err
	}

	// The evaluation deadline bounds scoring only. Calls it cuts short degrade
	// to their fallbacks and the result is still stored.
	scoreCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		scoreCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	qResults := make([]model.QuestionResult, 0, len(questions))
	for i := range questions {
		q := &questions[i]
		answer, _ := attempt.AnswerFor(q.ID)
		res, err := s.evaluator.Evaluate(scoreCtx, q, answer)
		if err != nil {
			return nil, "error", err
		}
		qResults = append(qResults, res)
	}
	// A cancelled caller degrades every judge call to its fallback; such a
	// result must not be stored.
	if err := ctx.Err(); err != nil {
		return nil, "error", fmt.Errorf("evaluation interrupted: %w", err)
	}

	agg := Aggregate(qResults, s.threshold)
	recs := s.recommender.Recommend(agg.GapDomains)
	narrative, _ := s.summarizer.Summarize(scoreCtx, NarrativeInput{Aggregation: agg, Recommendations: recs})
	if scoreCtx.Err() != nil {
		s.log.Warn("Evaluation deadline reached, storing degraded result",
			zap.String("attempt_id", attempt.ID),
			zap.Duration("timeout", s.timeout))
	}

	result := &model.AssessmentResult{
		AttemptID:           attempt.ID,
		AssessmentID:        attempt.AssessmentID,
		TeacherID:           attempt.TeacherID,
		OverallScore:        agg.OverallScore,
		ProficiencyLevel:    agg.ProficiencyLevel,
		DomainScores:        agg.DomainScores,
		StrengthDomains:     agg.StrengthDomains,
		GapDomains:          agg.GapDomains,
		RecommendedMicroPDs: recs,
		QuestionResults:     qResults,
		RawFeedback:         narrative,
	}
	stored, created, err := s.results.CreateResultIfAbsent(ctx, result)
	if err != nil {
		return nil, "error", fmt.Errorf("save result: %w", err)
	}
	if err := s.markEvaluated(ctx, attempt); err != nil {
		return nil, "error", err
	}

	if !created {
		return stored, "reused", nil
	}

	s.log.Info("Assessment attempt evaluated",
		zap.String("attempt_id", attempt.ID),
		zap.Uint("teacher_id", attempt.TeacherID),
		zap.Float64("overall_score", stored.OverallScore),
		zap.String("proficiency", string(stored.ProficiencyLevel)))
	s.publishEvaluated(ctx, stored)
	return stored, "evaluated", nil
}

// markEvaluated moves a SUBMITTED attempt to EVALUATED. Any other status is
// left as it is: a FAILED attempt stays FAILED even when a result exists.
func (s *EvaluationService) markEvaluated(ctx context.Context, attempt *model.AssessmentAttempt) error {
	switch attempt.Status {
	case model.AttemptEvaluated:
		return nil
	case model.AttemptSubmitted:
	default:
		s.log.Warn("Stored result found for attempt outside SUBMITTED, status left unchanged",
			zap.String("attempt_id", attempt.ID),
			zap.String("status", string(attempt.Status)))
		return nil
	}

	now := s.now()
	attempt.Status = model.AttemptEvaluated
	attempt.EvaluatedAt = &now
	attempt.LastError = ""
	if err := s.attempts.UpdateAttempt(ctx, attempt, model.AttemptSubmitted); err != nil {
		return fmt.Errorf("mark attempt evaluated: %w", err)
	}
	return nil
}

// resolveQuestions prefers the attempt's own selection, in presentation
// order, and falls back to the whole pool for attempts without one.
func (s *EvaluationService) resolveQuestions(ctx context.Context, attempt *model.AssessmentAttempt) ([]model.AssessmentQuestion, error) {
	if len(attempt.SelectedQuestions) == 0 {
		qs, err := s.pool.ListQuestionsByAssessment(ctx, attempt.AssessmentID)
		if err != nil {
			return nil, err
		}
		s.log.Warn("Attempt has no recorded selection, evaluating against the full pool",
			zap.String("attempt_id", attempt.ID),
			zap.Int("questions", len(qs)))
		return qs, nil
	}

	selection := append([]model.SelectedQuestion(nil), attempt.SelectedQuestions...)
	sort.SliceStable(selection, func(i, j int) bool { return selection[i].Order < selection[j].Order })

	ids := make([]uint, len(selection))
	for i, sq := range selection {
		ids[i] = sq.QuestionID
	}
	qs, err := s.pool.FindQuestionsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]model.AssessmentQuestion, len(qs))
	for _, q := range qs {
		byID[q.ID] = q
	}

	ordered := make([]model.AssessmentQuestion, 0, len(ids))
	for _, id := range ids {
		q, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: selected question %d", util.ErrQuestionNotFound, id)
		}
		ordered = append(ordered, q)
	}
	return ordered, nil
}

// ResultEvent is published once per newly stored result.
type ResultEvent struct {
	ResultID            string                 `json:"resultId"`
	AttemptID           string                 `json:"attemptId"`
	AssessmentID        uint                   `json:"assessmentId"`
	TeacherID           uint                   `json:"teacherId"`
	OverallScore        float64                `json:"overallScore"`
	ProficiencyLevel    model.ProficiencyLevel `json:"proficiencyLevel"`
	StrengthDomains     []model.DomainKey      `json:"strengthDomains"`
	GapDomains          []model.DomainKey      `json:"gapDomains"`
	RecommendedMicroPDs []string               `json:"recommendedMicroPDs"`
}

func (s *EvaluationService) publishEvaluated(ctx context.Context, r *model.AssessmentResult) {
	err := s.publisher.Publish(ctx, event.AssessmentEvaluated, ResultEvent{
		ResultID:            r.ID,
		AttemptID:           r.AttemptID,
		AssessmentID:        r.AssessmentID,
		TeacherID:           r.TeacherID,
		OverallScore:        r.OverallScore,
		ProficiencyLevel:    r.ProficiencyLevel,
		StrengthDomains:     r.StrengthDomains,
		GapDomains:          r.GapDomains,
		RecommendedMicroPDs: r.RecommendedMicroPDs,
	})
	if err != nil {
		s.log.Warn("Failed to publish evaluation event", zap.String("attempt_id", r.AttemptID), zap.Error(err))
	}
}

// SweepSummary counts what one sweep did with the attempts it picked up.
type SweepSummary struct {
	Scanned   int `json:"scanned"`
	Evaluated int `json:"evaluated"`
	Retried   int `json:"retried"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// ProcessPending evaluates up to limit SUBMITTED attempts, oldest first. Each
// attempt is independent: a failure bumps its retry count and, at the
// ceiling, marks it FAILED. Attempts locked by another run are skipped
// without penalty.
func (s *EvaluationService) ProcessPending(ctx context.Context, limit int) (SweepSummary, error) {
	ctx, span := tracing.Tracer.Start(ctx, "EvaluationService.ProcessPending")
	defer span.End()

	var summary SweepSummary
	pending, err := s.attempts.ListSubmittedAttempts(ctx, limit)
	if err != nil {
		span.RecordError(err)
		return summary, err
	}
	summary.Scanned = len(pending)

	for i := range pending {
		if ctx.Err() != nil {
			break
		}
		attemptID := pending[i].ID

		err := s.safeEvaluate(ctx, attemptID)
		switch {
		case err == nil:
			summary.Evaluated++
		case errors.Is(err, util.ErrEvaluationInProgress):
			summary.Skipped++
		default:
			failed, recErr := s.recordFailure(ctx, attemptID, err)
			if recErr != nil {
				s.log.Error("Failed to record evaluation failure",
					zap.String("attempt_id", attemptID),
					zap.Error(recErr))
				summary.Skipped++
				continue
			}
			if failed {
				summary.Failed++
			} else {
				summary.Retried++
			}
		}
	}

	span.SetAttributes(
		attribute.Int("sweep.scanned", summary.Scanned),
		attribute.Int("sweep.evaluated", summary.Evaluated),
		attribute.Int("sweep.failed", summary.Failed),
	)
	if summary.Scanned > 0 {
		s.log.Info("Evaluation sweep finished",
			zap.Int("scanned", summary.Scanned),
			zap.Int("evaluated", summary.Evaluated),
			zap.Int("retried", summary.Retried),
			zap.Int("failed", summary.Failed),
			zap.Int("skipped", summary.Skipped))
	}
	return summary, nil
}

// safeEvaluate keeps one attempt's panic from ending the sweep.
func (s *EvaluationService) safeEvaluate(ctx context.Context, attemptID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during evaluation: %v", r)
		}
	}()
	_, err = s.EvaluateAndSave(ctx, attemptID)
	return err
}

func (s *EvaluationService) recordFailure(ctx context.Context, attemptID string, cause error) (failed bool, err error) {
	attempt, err := s.attempts.FindAttemptByID(ctx, attemptID)
	if err != nil {
		return false, err
	}
	if attempt.Status != model.AttemptSubmitted {
		return false, fmt.Errorf("%w: attempt moved to %s", util.ErrInvalidState, attempt.Status)
	}

	attempt.RetryCount++
	attempt.LastError = cause.Error()
	failed = attempt.RetryCount >= s.MaxRetries()
	if failed {
		attempt.Status = model.AttemptFailed
	}
	if err := s.attempts.UpdateAttempt(ctx, attempt, model.AttemptSubmitted); err != nil {
		return false, err
	}

	fields := []zap.Field{
		zap.String("attempt_id", attemptID),
		zap.Int("retry_count", attempt.RetryCount),
		zap.Error(cause),
	}
	if failed {
		monitoring.EvaluationsTotal.WithLabelValues("failed").Inc()
		s.log.Error("Attempt evaluation exhausted retries, marked FAILED", fields...)
	} else {
		monitoring.EvaluationsTotal.WithLabelValues("retried").Inc()
		s.log.Warn("Attempt evaluation failed, will retry", fields...)
	}
	return failed, nil
}

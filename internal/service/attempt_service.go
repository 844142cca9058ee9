package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"teacherdev_backend/internal/model"
	"teacherdev_backend/internal/util"
)

// AttemptConflictError is returned by Start when the teacher's one attempt
// can no longer be resumed.
type AttemptConflictError struct {
	AttemptID string
	Status    model.AttemptStatus
	Reason    string
}

func (e *AttemptConflictError) Error() string {
	return fmt.Sprintf("attempt cannot be started: %s", e.Reason)
}

func (e *AttemptConflictError) Unwrap() error { return util.ErrAttemptConflict }

type MissingAnswersError struct {
	QuestionIDs []uint
}

func (e *MissingAnswersError) Error() string {
	return fmt.Sprintf("missing answers for questions %s", joinIDs(e.QuestionIDs))
}

func (e *MissingAnswersError) Unwrap() error { return util.ErrMissingAnswers }

type InvalidAnswersError struct {
	QuestionIDs []uint
}

func (e *InvalidAnswersError) Error() string {
	return fmt.Sprintf("answers reference questions outside the attempt: %s", joinIDs(e.QuestionIDs))
}

func (e *InvalidAnswersError) Unwrap() error { return util.ErrInvalidAnswers }

// AttemptEvaluator evaluates a submitted attempt and stores its result.
type AttemptEvaluator interface {
	EvaluateAndSave(ctx context.Context, attemptID string) (*model.AssessmentResult, error)
}

// AttemptService owns the attempt state machine:
// IN_PROGRESS -> SUBMITTED -> EVALUATED | FAILED.
type AttemptService struct {
	pool      QuestionPool
	attempts  AttemptStore
	results   ResultStore
	selector  *QuestionSelector
	evaluator AttemptEvaluator
	log       *zap.Logger
	now       func() time.Time
}

func NewAttemptService(pool QuestionPool, attempts AttemptStore, results ResultStore, selector *QuestionSelector, evaluator AttemptEvaluator, log *zap.Logger) *AttemptService {
	return &AttemptService{
		pool:      pool,
		attempts:  attempts,
		results:   results,
		selector:  selector,
		evaluator: evaluator,
		log:       log,
		now:       time.Now,
	}
}

// Start returns the teacher's in-progress attempt, or creates it with a fresh
// question selection if none exists yet.
func (s *AttemptService) Start(ctx context.Context, teacherID, assessmentID uint) (*model.AssessmentAttempt, error) {
	existing, err := s.attempts.FindAttemptByTeacherAndAssessment(ctx, teacherID, assessmentID)
	if err == nil {
		return resumable(existing)
	}
	if !errors.Is(err, util.ErrAttemptNotFound) {
		return nil, err
	}

	if _, err := s.pool.FindAssessmentByID(ctx, assessmentID); err != nil {
		return nil, err
	}
	pool, err := s.pool.ListQuestionsByAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	selected, err := s.selector.Select(pool)
	if err != nil {
		s.log.Error("Question pool cannot satisfy selection quotas",
			zap.Uint("assessment_id", assessmentID),
			zap.Error(err))
		return nil, err
	}

	attempt := &model.AssessmentAttempt{
		TeacherID:         teacherID,
		AssessmentID:      assessmentID,
		Answers:           []model.QuestionAnswer{},
		SelectedQuestions: selected,
		Status:            model.AttemptInProgress,
	}
	stored, created, err := s.attempts.CreateAttemptIfAbsent(ctx, attempt)
	if err != nil {
		return nil, err
	}
	if !created {
		// Lost a race with a concurrent start for the same teacher.
		return resumable(stored)
	}

	s.log.Info("Assessment attempt started",
		zap.String("attempt_id", stored.ID),
		zap.Uint("teacher_id", teacherID),
		zap.Uint("assessment_id", assessmentID),
		zap.Int("questions", len(selected)))
	return stored, nil
}

func resumable(a *model.AssessmentAttempt) (*model.AssessmentAttempt, error) {
	switch a.Status {
	case model.AttemptInProgress:
		return a, nil
	case model.AttemptEvaluated:
		return nil, &AttemptConflictError{AttemptID: a.ID, Status: a.Status, Reason: "assessment already completed"}
	case model.AttemptFailed:
		return nil, &AttemptConflictError{AttemptID: a.ID, Status: a.Status, Reason: "evaluation failed, please contact support"}
	case model.AttemptSubmitted:
		return nil, &AttemptConflictError{AttemptID: a.ID, Status: a.Status, Reason: "submission is pending evaluation"}
	}
	return nil, fmt.Errorf("%w: unknown status %q", util.ErrInvalidState, a.Status)
}

// Get loads an attempt owned by teacherID.
func (s *AttemptService) Get(ctx context.Context, teacherID uint, attemptID string) (*model.AssessmentAttempt, error) {
	a, err := s.attempts.FindAttemptByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.TeacherID != teacherID {
		return nil, util.ErrPermissionDenied
	}
	return a, nil
}

// SaveProgress replaces the stored answers wholesale.
func (s *AttemptService) SaveProgress(ctx context.Context, teacherID uint, attemptID string, answers []model.QuestionAnswer) (*model.AssessmentAttempt, error) {
	a, err := s.Get(ctx, teacherID, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AttemptInProgress {
		return nil, fmt.Errorf("%w: attempt is %s", util.ErrInvalidState, a.Status)
	}
	if err := checkWithinSelection(a, answers); err != nil {
		return nil, err
	}

	if answers == nil {
		answers = []model.QuestionAnswer{}
	}
	a.Answers = answers
	if err := s.attempts.UpdateAttempt(ctx, a, model.AttemptInProgress); err != nil {
		return nil, err
	}
	return a, nil
}

// SubmitOutcome carries the submitted attempt and, when synchronous evaluation
// finished, its result. A nil Result means the attempt is queued for the sweep.
type SubmitOutcome struct {
	Attempt *model.AssessmentAttempt `json:"attempt"`
	Result  *model.AssessmentResult  `json:"result,omitempty"`
}

// Submit validates the final answers, queues the attempt and evaluates it
// straight away. A nil answers slice submits the saved progress.
func (s *AttemptService) Submit(ctx context.Context, teacherID uint, attemptID string, answers []model.QuestionAnswer) (*SubmitOutcome, error) {
	a, err := s.Get(ctx, teacherID, attemptID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AttemptInProgress {
		return nil, fmt.Errorf("%w: attempt is %s", util.ErrInvalidState, a.Status)
	}
	if answers != nil {
		a.Answers = answers
	}

	if missing := missingAnswers(a); len(missing) > 0 {
		return nil, &MissingAnswersError{QuestionIDs: missing}
	}
	if err := checkWithinSelection(a, a.Answers); err != nil {
		return nil, err
	}

	now := s.now()
	a.Status = model.AttemptSubmitted
	a.SubmittedAt = &now
	if err := s.attempts.UpdateAttempt(ctx, a, model.AttemptInProgress); err != nil {
		return nil, err
	}
	s.log.Info("Assessment attempt submitted",
		zap.String("attempt_id", a.ID),
		zap.Uint("teacher_id", teacherID))

	out := &SubmitOutcome{Attempt: a}
	if s.evaluator == nil {
		return out, nil
	}

	// The client may hang up; evaluation should still run to completion.
	result, err := s.evaluator.EvaluateAndSave(context.WithoutCancel(ctx), a.ID)
	if err != nil {
		s.log.Warn("Synchronous evaluation failed, leaving attempt for the sweep",
			zap.String("attempt_id", a.ID),
			zap.Error(err))
		return out, nil
	}

	if fresh, err := s.attempts.FindAttemptByID(ctx, a.ID); err == nil {
		out.Attempt = fresh
	}
	out.Result = result
	return out, nil
}

// Result returns the stored evaluation for the teacher's attempt.
func (s *AttemptService) Result(ctx context.Context, teacherID uint, attemptID string) (*model.AssessmentResult, error) {
	if _, err := s.Get(ctx, teacherID, attemptID); err != nil {
		return nil, err
	}
	return s.results.FindResultByAttemptID(ctx, attemptID)
}

// QuestionView is a selected question as shown to the teacher, without the
// correct option.
type QuestionView struct {
	ID        uint               `json:"id"`
	Order     int                `json:"order"`
	DomainKey model.DomainKey    `json:"domainKey"`
	Type      model.QuestionType `json:"type"`
	Prompt    string             `json:"prompt"`
	MaxScore  float64            `json:"maxScore"`
	Options   []string           `json:"options,omitempty"`
}

type AttemptView struct {
	*model.AssessmentAttempt
	Questions []QuestionView `json:"questions"`
}

// View pairs an attempt with its questions in presentation order.
func (s *AttemptService) View(ctx context.Context, a *model.AssessmentAttempt) (*AttemptView, error) {
	ids := make([]uint, len(a.SelectedQuestions))
	for i, sq := range a.SelectedQuestions {
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

	view := &AttemptView{AssessmentAttempt: a, Questions: make([]QuestionView, 0, len(a.SelectedQuestions))}
	for _, sq := range a.SelectedQuestions {
		q, ok := byID[sq.QuestionID]
		if !ok {
			return nil, fmt.Errorf("%w: %d", util.ErrQuestionNotFound, sq.QuestionID)
		}
		view.Questions = append(view.Questions, QuestionView{
			ID:        q.ID,
			Order:     sq.Order,
			DomainKey: q.DomainKey,
			Type:      q.Type,
			Prompt:    q.Prompt,
			MaxScore:  q.MaxScore,
			Options:   q.Options,
		})
	}
	sort.Slice(view.Questions, func(i, j int) bool { return view.Questions[i].Order < view.Questions[j].Order })
	return view, nil
}

// missingAnswers lists selected questions with no answer or a blank one.
func missingAnswers(a *model.AssessmentAttempt) []uint {
	var missing []uint
	for _, sq := range a.SelectedQuestions {
		ans, ok := a.AnswerFor(sq.QuestionID)
		if !ok || strings.TrimSpace(ans) == "" {
			missing = append(missing, sq.QuestionID)
		}
	}
	return missing
}

func checkWithinSelection(a *model.AssessmentAttempt, answers []model.QuestionAnswer) error {
	selected := make(map[uint]bool, len(a.SelectedQuestions))
	for _, sq := range a.SelectedQuestions {
		selected[sq.QuestionID] = true
	}
	var outside []uint
	seen := make(map[uint]bool)
	for _, ans := range answers {
		if !selected[ans.QuestionID] && !seen[ans.QuestionID] {
			seen[ans.QuestionID] = true
			outside = append(outside, ans.QuestionID)
		}
	}
	if len(outside) > 0 {
		return &InvalidAnswersError{QuestionIDs: outside}
	}
	return nil
}

func joinIDs(ids []uint) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"teacherdev_backend/internal/event"
	"teacherdev_backend/internal/llm"
	"teacherdev_backend/internal/model"
	"teacherdev_backend/internal/util"
	"teacherdev_backend/pkg/lock"
	"teacherdev_backend/pkg/retry"
)

type evalHarness struct {
	catalog   *fakeCatalog
	attempts  *fakeAttempts
	results   *fakeResults
	provider  *llm.MockProvider
	tr        *fakeTranscriber
	locker    *lock.MemoryLocker
	publisher *event.RecordingPublisher
	svc       *EvaluationService
}

func newEvalHarness(t *testing.T, questions []model.AssessmentQuestion) *evalHarness {
	t.Helper()
	h := &evalHarness{
		catalog:   newFakeCatalog().withAssessment(1, questions),
		attempts:  newFakeAttempts(),
		results:   newFakeResults(),
		provider:  llm.NewMockProvider(),
		tr:        &fakeTranscriber{texts: map[string]string{}},
		locker:    lock.NewMemoryLocker(),
		publisher: &event.RecordingPublisher{},
	}
	judge := newTestJudge(h.provider)
	h.svc = NewEvaluationService(
		h.catalog, h.attempts, h.results,
		NewQuestionEvaluator(judge, h.tr, zap.NewNop()),
		judge,
		NewRecommendationMapper(nil),
		h.locker,
		h.publisher,
		EvaluationOptions{MaxRetries: 3},
		zap.NewNop(),
	)
	return h
}

// rebuild swaps the judge provider and options, keeping the stores.
func (h *evalHarness) rebuild(p llm.Provider, judgeOpts JudgeOptions, opts EvaluationOptions) {
	judge := NewJudgeService(p, judgeOpts, zap.NewNop())
	h.svc = NewEvaluationService(
		h.catalog, h.attempts, h.results,
		NewQuestionEvaluator(judge, h.tr, zap.NewNop()),
		judge,
		NewRecommendationMapper(nil),
		h.locker,
		h.publisher,
		opts,
		zap.NewNop(),
	)
}

// submitted stores a SUBMITTED attempt over the given questions.
func (h *evalHarness) submitted(teacherID uint, questions []model.AssessmentQuestion, answers map[uint]string, submittedAt time.Time) model.AssessmentAttempt {
	a := model.AssessmentAttempt{
		TeacherID:    teacherID,
		AssessmentID: 1,
		Status:       model.AttemptSubmitted,
		SubmittedAt:  &submittedAt,
	}
	a.ID = model.GenerateUUID()
	for i, q := range questions {
		a.SelectedQuestions = append(a.SelectedQuestions, model.SelectedQuestion{QuestionID: q.ID, Order: i + 1})
		if ans, ok := answers[q.ID]; ok {
			a.Answers = append(a.Answers, model.QuestionAnswer{QuestionID: q.ID, Answer: ans})
		}
	}
	h.attempts.put(a)
	return a
}

func workedExampleQuestions() []model.AssessmentQuestion {
	q1 := mcq(1, "Entry routine", 1)
	q2 := mcq(2, "Seating plan", 1)
	q3 := openQuestion(3, model.QuestionShortAnswer, 5)
	q3.DomainKey = model.DomainClassroomManagement
	return []model.AssessmentQuestion{*q1, *q2, *q3}
}

func TestEvaluateAndSave_WorkedExample(t *testing.T) {
	qs := workedExampleQuestions()
	h := newEvalHarness(t, qs)
	a := h.submitted(42, qs, map[uint]string{
		1: "Entry routine",
		2: "Detention",
		3: "I greet students at the door and rehearse routines.",
	}, time.Now())

	// Judge unavailable for every answer call and the narrative.
	result, err := h.svc.EvaluateAndSave(context.Background(), a.ID)
	require.NoError(t, err)

	require.Len(t, result.QuestionResults, 3)
	scores := map[uint]float64{}
	for _, r := range result.QuestionResults {
		scores[r.QuestionID] = r.Score
	}
	assert.Equal(t, map[uint]float64{1: 1, 2: 0, 3: 2.5}, scores)

	require.Len(t, result.DomainScores, 1)
	assert.Equal(t, model.DomainScore{
		DomainKey:    model.DomainClassroomManagement,
		RawScore:     3.5,
		MaxScore:     7,
		ScorePercent: 50,
	}, result.DomainScores[0])
	assert.Equal(t, 50.0, result.OverallScore)
	assert.Equal(t, model.ProficiencyDeveloping, result.ProficiencyLevel)
	assert.Equal(t, []model.DomainKey{model.DomainClassroomManagement}, []model.DomainKey(result.GapDomains))
	assert.Empty(t, result.StrengthDomains)
	assert.Equal(t, []string{"MPD-CM-01", "MPD-CM-02"}, []string(result.RecommendedMicroPDs))
	assert.NotEmpty(t, result.RawFeedback, "narrative falls back to a template")

	stored := h.attempts.get(a.ID)
	assert.Equal(t, model.AttemptEvaluated, stored.Status)
	assert.NotNil(t, stored.EvaluatedAt)

	require.Equal(t, 1, h.publisher.Count())
	assert.Equal(t, event.AssessmentEvaluated, h.publisher.Events[0].Type)
}

func TestEvaluateAndSave_Idempotent(t *testing.T) {
	qs := workedExampleQuestions()
	h := newEvalHarness(t, qs)
	a := h.submitted(42, qs, map[uint]string{1: "Entry routine", 2: "Seating plan", 3: "text"}, time.Now())

	first, err := h.svc.EvaluateAndSave(context.Background(), a.ID)
	require.NoError(t, err)
	calls := h.provider.CallCount()

	again, err := h.svc.EvaluateAndSave(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.OverallScore, again.OverallScore)
	assert.Equal(t, 1, h.results.count())
	assert.Equal(t, calls, h.provider.CallCount(), "a stored result is never re-judged")
	assert.Equal(t, 1, h.publisher.Count())
}

func TestEvaluateAndSave_HealsStatusFromStoredResult(t *testing.T) {
	qs := workedExampleQuestions()
	h := newEvalHarness(t, qs)
	a := h.submitted(42, qs, map[uint]string{1: "x", 2: "y", 3: "z"}, time.Now())

	// A previous run stored the result but crashed before flipping the status.
	prior := &model.AssessmentResult{AttemptID: a.ID, AssessmentID: 1, TeacherID: 42, OverallScore: 71}
	_, _, err := h.results.CreateResultIfAbsent(context.Background(), prior)
	require.NoError(t, err)

	result, err := h.svc.EvaluateAndSave(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, 71.0, result.OverallScore)
	assert.Equal(t, model.AttemptEvaluated, h.attempts.get(a.ID).Status)
	assert.Zero(t, h.provider.CallCount())
	assert.Zero(t, h.publisher.Count())
}

func TestEvaluateAndSave_FailedAttemptKeepsStatusWithStoredResult(t *testing.T) {
	qs := workedExampleQuestions()
	h := newEvalHarness(t, qs)
	a := h.submitted(42, qs, nil, time.Now())
	a.Status = model.AttemptFailed
	a.RetryCount = 3
	h.attempts.put(a)

	prior := &model.AssessmentResult{AttemptID: a.ID, AssessmentID: 1, TeacherID: 42, OverallScore: 64}
	_, _, err := h.results.CreateResultIfAbsent(context.Background(), prior)
	require.NoError(t, err)

	result, err := h.svc.EvaluateAndSave(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, 64.0, result.OverallScore)

	stored := h.attempts.get(a.ID)
	assert.Equal(t, model.AttemptFailed, stored.Status)
	assert.Nil(t, stored.EvaluatedAt)
	assert.Zero(t, h.provider.CallCount())
}

func workedExampleScores(t *testing.T, r *model.AssessmentResult) map[uint]float64 {
	t.Helper()
	scores := map[uint]float64{}
	for _, res := range r.QuestionResults {
		scores[res.QuestionID] = res.Score
	}
	return scores
}

func TestEvaluateAndSave_StalledJudgeTimesOutPerCall(t *testing.T) {
	qs := workedExampleQuestions()
	h := newEvalHarness(t, qs)
	h.rebuild(&stallingProvider{}, JudgeOptions{
		Policy:         retry.Policy{MaxRetries: 2, Backoff: retry.Linear(0)},
		FallbackRatio:  0.5,
		RequestTimeout: 10 * time.Millisecond,
	}, EvaluationOptions{Timeout: 5 * time.Second, MaxRetries: 3})
	a := h.submitted(42, qs, map[uint]string{1: "Entry routine", 2: "Detention", 3: "text"}, time.Now())

	result, err := h.svc.EvaluateAndSave(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, map[uint]float64{1: 1, 2: 0, 3: 2.5}, workedExampleScores(t, result))
	assert.Equal(t, 50.0, result.OverallScore)
	assert.Equal(t, model.AttemptEvaluated, h.attempts.get(a.ID).Status)
}

func TestProcessPending_EvaluationDeadlineStoresDegradedResult(t *testing.T) {
	qs := workedExampleQuestions()
	h := newEvalHarness(t, qs)
	// No per-call limit: only the evaluation deadline stops the judge.
	h.rebuild(&stallingProvider{}, JudgeOptions{
		Policy:        retry.Policy{MaxRetries: 2, Backoff: retry.Linear(0)},
		FallbackRatio: 0.5,
	}, EvaluationOptions{Timeout: 100 * time.Millisecond, MaxRetries: 3})
	a := h.submitted(42, qs, map[uint]string{1: "Entry routine", 2: "Detention", 3: "text"}, time.Now())

	summary, err := h.svc.ProcessPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, SweepSummary{Scanned: 1, Evaluated: 1}, summary)

	stored := h.attempts.get(a.ID)
	assert.Equal(t, model.AttemptEvaluated, stored.Status)
	assert.Zero(t, stored.RetryCount)

	result, err := h.results.FindResultByAttemptID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, map[uint]float64{1: 1, 2: 0, 3: 2.5}, workedExampleScores(t, result))
	assert.NotEmpty(t, result.RawFeedback)
	assert.Equal(t, 1, h.publisher.Count())
}

func TestEvaluateAndSave_CancelledCallerStoresNothing(t *testing.T) {
	qs := workedExampleQuestions()
	h := newEvalHarness(t, qs)
	a := h.submitted(42, qs, map[uint]string{1: "Entry routine", 2: "Detention", 3: "text"}, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.svc.EvaluateAndSave(ctx, a.ID)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, h.results.count())
	assert.Equal(t, model.AttemptSubmitted, h.attempts.get(a.ID).Status)
}

func TestEvaluateAndSave_RejectsNonSubmitted(t *testing.T) {
	qs := workedExampleQuestions()
	h := newEvalHarness(t, qs)

	for i, status := range []model.AttemptStatus{model.AttemptInProgress, model.AttemptFailed, model.AttemptEvaluated} {
		a := h.submitted(uint(i+1), qs, nil, time.Now())
		a.Status = status
		h.attempts.put(a)

		_, err := h.svc.EvaluateAndSave(context.Background(), a.ID)
		assert.ErrorIs(t, err, util.ErrInvalidState, string(status))
	}
	assert.Zero(t, h.results.count())
}

func TestEvaluateAndSave_LockHeld(t *testing.T) {
	qs := workedExampleQuestions()
	h := newEvalHarness(t, qs)
	a := h.submitted(42, qs, nil, time.Now())

	unlock, ok, _ := h.locker.TryLock(context.Background(), "evaluation:"+a.ID, time.Minute)
	require.True(t, ok)
	defer unlock()

	_, err := h.svc.EvaluateAndSave(context.Background(), a.ID)
	assert.ErrorIs(t, err, util.ErrEvaluationInProgress)
	assert.Equal(t, model.AttemptSubmitted, h.attempts.get(a.ID).Status)
}

func TestEvaluateAndSave_ConcurrentCallsStoreOneResult(t *testing.T) {
	qs := workedExampleQuestions()
	h := newEvalHarness(t, qs)
	a := h.submitted(42, qs, map[uint]string{1: "Entry routine", 2: "Seating plan", 3: "text"}, time.Now())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.EvaluateAndSave(context.Background(), a.ID)
			if err != nil {
				assert.ErrorIs(t, err, util.ErrEvaluationInProgress)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.results.count())
	assert.Equal(t, model.AttemptEvaluated, h.attempts.get(a.ID).Status)
}

func TestEvaluateAndSave_UsesJudgeAndTranscripts(t *testing.T) {
	sa := openQuestion(10, model.QuestionShortAnswer, 5)
	audio := openQuestion(11, model.QuestionAudio, 5)
	video := openQuestion(12, model.QuestionVideo, 5)
	qs := []model.AssessmentQuestion{*sa, *audio, *video}
	h := newEvalHarness(t, qs)
	h.tr.texts["rec/audio.mp3"] = "I pair reluctant readers with buddies."

	h.provider.AddResponse(llm.MockResponse{Content: json.RawMessage(`{"score":5,"feedback":"Excellent"}`)})
	h.provider.AddResponse(llm.MockResponse{Content: json.RawMessage(`{"score":4,"feedback":"Good"}`)})
	h.provider.AddResponse(llm.MockResponse{Content: json.RawMessage(`A thoughtful practitioner.`)})

	a := h.submitted(7, qs, map[uint]string{
		10: "Hook, model, practise.",
		11: "rec/audio.mp3",
		12: "rec/lost.mp4",
	}, time.Now())

	result, err := h.svc.EvaluateAndSave(context.Background(), a.ID)
	require.NoError(t, err)

	byID := map[uint]model.QuestionResult{}
	for _, r := range result.QuestionResults {
		byID[r.QuestionID] = r
	}
	assert.Equal(t, 5.0, byID[10].Score)
	assert.Equal(t, 4.0, byID[11].Score)
	assert.Equal(t, 0.0, byID[12].Score, "untranscribable video scores zero")
	assert.Equal(t, 60.0, result.OverallScore)
	assert.Equal(t, model.ProficiencyProficient, result.ProficiencyLevel)
	assert.Equal(t, "A thoughtful practitioner.", result.RawFeedback)
	assert.Equal(t, 3, h.provider.CallCount())
}

func TestEvaluateAndSave_FallsBackToPoolWithoutSelection(t *testing.T) {
	qs := workedExampleQuestions()
	h := newEvalHarness(t, qs)
	now := time.Now()
	a := model.AssessmentAttempt{
		TeacherID:    5,
		AssessmentID: 1,
		Status:       model.AttemptSubmitted,
		SubmittedAt:  &now,
		Answers:      []model.QuestionAnswer{{QuestionID: 1, Answer: "Entry routine"}},
	}
	a.ID = model.GenerateUUID()
	h.attempts.put(a)

	result, err := h.svc.EvaluateAndSave(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Len(t, result.QuestionResults, 3)
}

func TestEvaluateAndSave_MissingSelectedQuestion(t *testing.T) {
	qs := workedExampleQuestions()
	h := newEvalHarness(t, qs[:2])
	a := h.submitted(42, qs, nil, time.Now())

	_, err := h.svc.EvaluateAndSave(context.Background(), a.ID)
	assert.ErrorIs(t, err, util.ErrQuestionNotFound)
	assert.Zero(t, h.results.count())
}

func TestProcessPending_OldestFirstWithinLimit(t *testing.T) {
	qs := workedExampleQuestions()
	h := newEvalHarness(t, qs)
	base := time.Now().Add(-time.Hour)
	oldest := h.submitted(1, qs, nil, base)
	middle := h.submitted(2, qs, nil, base.Add(time.Minute))
	newest := h.submitted(3, qs, nil, base.Add(2*time.Minute))

	summary, err := h.svc.ProcessPending(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, SweepSummary{Scanned: 2, Evaluated: 2}, summary)

	assert.Equal(t, model.AttemptEvaluated, h.attempts.get(oldest.ID).Status)
	assert.Equal(t, model.AttemptEvaluated, h.attempts.get(middle.ID).Status)
	assert.Equal(t, model.AttemptSubmitted, h.attempts.get(newest.ID).Status)
}

func TestProcessPending_RetriesThenFails(t *testing.T) {
	qs := workedExampleQuestions()
	h := newEvalHarness(t, qs)
	a := h.submitted(42, qs, nil, time.Now())
	h.results.createErr = errors.New("database is down")

	for i := 1; i <= 2; i++ {
		summary, err := h.svc.ProcessPending(context.Background(), 10)
		require.NoError(t, err)
		assert.Equal(t, SweepSummary{Scanned: 1, Retried: 1}, summary)
		stored := h.attempts.get(a.ID)
		assert.Equal(t, model.AttemptSubmitted, stored.Status)
		assert.Equal(t, i, stored.RetryCount)
		assert.Contains(t, stored.LastError, "database is down")
	}

	summary, err := h.svc.ProcessPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, SweepSummary{Scanned: 1, Failed: 1}, summary)
	assert.Equal(t, model.AttemptFailed, h.attempts.get(a.ID).Status)
	assert.Equal(t, 3, h.attempts.get(a.ID).RetryCount)

	// FAILED is terminal: later sweeps no longer see it.
	summary, err = h.svc.ProcessPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, summary.Scanned)
}

func TestProcessPending_IsolatesFailures(t *testing.T) {
	qs := workedExampleQuestions()
	h := newEvalHarness(t, qs)
	now := time.Now()
	broken := h.submitted(1, append(qs, model.AssessmentQuestion{BaseModel: model.BaseModel{ID: 999}}), nil, now)
	healthy := h.submitted(2, qs, nil, now.Add(time.Second))

	summary, err := h.svc.ProcessPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, SweepSummary{Scanned: 2, Evaluated: 1, Retried: 1}, summary)
	assert.Equal(t, 1, h.attempts.get(broken.ID).RetryCount)
	assert.Equal(t, model.AttemptEvaluated, h.attempts.get(healthy.ID).Status)
}

func TestProcessPending_LockedAttemptSkippedWithoutPenalty(t *testing.T) {
	qs := workedExampleQuestions()
	h := newEvalHarness(t, qs)
	a := h.submitted(42, qs, nil, time.Now())

	unlock, _, _ := h.locker.TryLock(context.Background(), "evaluation:"+a.ID, time.Minute)
	defer unlock()

	summary, err := h.svc.ProcessPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, SweepSummary{Scanned: 1, Skipped: 1}, summary)
	assert.Zero(t, h.attempts.get(a.ID).RetryCount)
}

func TestProcessPending_MaxRetriesHotReload(t *testing.T) {
	qs := workedExampleQuestions()
	h := newEvalHarness(t, qs)
	a := h.submitted(42, qs, nil, time.Now())
	h.results.createErr = errors.New("boom")

	h.svc.SetMaxRetries(1)
	summary, err := h.svc.ProcessPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, model.AttemptFailed, h.attempts.get(a.ID).Status)

	h.svc.SetMaxRetries(0)
	assert.Equal(t, 1, h.svc.MaxRetries())
}

func TestNewEvaluationService_Defaults(t *testing.T) {
	svc := NewEvaluationService(nil, nil, nil, nil, nil, nil, lock.NewMemoryLocker(), nil, EvaluationOptions{}, zap.NewNop())
	assert.Equal(t, DefaultStrengthThreshold, svc.threshold)
	assert.IsType(t, event.NoopPublisher{}, svc.publisher)
	assert.Equal(t, 1, svc.MaxRetries())
}

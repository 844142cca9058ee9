package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"teacherdev_backend/internal/model"
	"teacherdev_backend/internal/util"
)

type poolBuilder struct {
	assessmentID uint
	nextID       uint
	questions    []model.AssessmentQuestion
}

func newPoolBuilder(assessmentID uint) *poolBuilder {
	return &poolBuilder{assessmentID: assessmentID, nextID: 1}
}

func (b *poolBuilder) add(t model.QuestionType, domain model.DomainKey, n int) *poolBuilder {
	for i := 0; i < n; i++ {
		q := model.AssessmentQuestion{
			AssessmentID: b.assessmentID,
			DomainKey:    domain,
			Type:         t,
			Prompt:       "prompt",
			MaxScore:     1,
		}
		q.ID = b.nextID
		if t == model.QuestionMCQ {
			q.Options = []string{"A", "B", "C"}
			q.CorrectOption = "A"
		} else {
			q.MaxScore = 5
		}
		b.nextID++
		b.questions = append(b.questions, q)
	}
	return b
}

func (b *poolBuilder) build() []model.AssessmentQuestion {
	return b.questions
}

// fakeCatalog is an in-memory CatalogStore.
type fakeCatalog struct {
	mu          sync.Mutex
	assessments map[uint]model.Assessment
	questions   []model.AssessmentQuestion
	nextID      uint
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{assessments: make(map[uint]model.Assessment), nextID: 1000}
}

func (c *fakeCatalog) withAssessment(id uint, qs []model.AssessmentQuestion) *fakeCatalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	a := model.Assessment{Title: "Teacher Competency Baseline"}
	a.ID = id
	c.assessments[id] = a
	c.questions = append(c.questions, qs...)
	return c
}

func (c *fakeCatalog) FindAssessmentByID(_ context.Context, id uint) (*model.Assessment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.assessments[id]
	if !ok {
		return nil, util.ErrAssessmentNotFound
	}
	return &a, nil
}

func (c *fakeCatalog) ListQuestionsByAssessment(_ context.Context, assessmentID uint) ([]model.AssessmentQuestion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.AssessmentQuestion
	for _, q := range c.questions {
		if q.AssessmentID == assessmentID {
			out = append(out, q)
		}
	}
	return out, nil
}

func (c *fakeCatalog) FindQuestionsByIDs(_ context.Context, ids []uint) ([]model.AssessmentQuestion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	want := make(map[uint]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []model.AssessmentQuestion
	for _, q := range c.questions {
		if want[q.ID] {
			out = append(out, q)
		}
	}
	return out, nil
}

func (c *fakeCatalog) CreateAssessment(_ context.Context, a *model.Assessment) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	a.ID = c.nextID
	c.assessments[a.ID] = *a
	return nil
}

func (c *fakeCatalog) ListAssessments(_ context.Context, page, limit int) ([]model.Assessment, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.Assessment
	for _, a := range c.assessments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (c *fakeCatalog) CreateQuestions(_ context.Context, qs []model.AssessmentQuestion) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range qs {
		c.nextID++
		qs[i].ID = c.nextID
		c.questions = append(c.questions, qs[i])
	}
	return nil
}

// fakeAttempts is an in-memory AttemptStore keeping the one-per-pair rule.
type fakeAttempts struct {
	mu       sync.Mutex
	byID     map[string]model.AssessmentAttempt
	creates  int
	updateFn func(a *model.AssessmentAttempt) error
}

func newFakeAttempts() *fakeAttempts {
	return &fakeAttempts{byID: make(map[string]model.AssessmentAttempt)}
}

func (s *fakeAttempts) put(a model.AssessmentAttempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = model.GenerateUUID()
	}
	s.byID[a.ID] = a
}

func (s *fakeAttempts) get(id string) model.AssessmentAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[id]
}

func (s *fakeAttempts) FindAttemptByID(_ context.Context, id string) (*model.AssessmentAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return nil, util.ErrAttemptNotFound
	}
	return &a, nil
}

func (s *fakeAttempts) FindAttemptByTeacherAndAssessment(_ context.Context, teacherID, assessmentID uint) (*model.AssessmentAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.byID {
		if a.TeacherID == teacherID && a.AssessmentID == assessmentID {
			return &a, nil
		}
	}
	return nil, util.ErrAttemptNotFound
}

func (s *fakeAttempts) CreateAttemptIfAbsent(_ context.Context, attempt *model.AssessmentAttempt) (*model.AssessmentAttempt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.byID {
		if a.TeacherID == attempt.TeacherID && a.AssessmentID == attempt.AssessmentID {
			return &a, false, nil
		}
	}
	if attempt.ID == "" {
		attempt.ID = model.GenerateUUID()
	}
	attempt.CreatedAt = time.Now()
	s.byID[attempt.ID] = *attempt
	s.creates++
	stored := *attempt
	return &stored, true, nil
}

func (s *fakeAttempts) UpdateAttempt(_ context.Context, attempt *model.AssessmentAttempt, from model.AttemptStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateFn != nil {
		if err := s.updateFn(attempt); err != nil {
			return err
		}
	}
	cur, ok := s.byID[attempt.ID]
	if !ok {
		return util.ErrAttemptNotFound
	}
	if cur.Status != from {
		return util.ErrInvalidState
	}
	s.byID[attempt.ID] = *attempt
	return nil
}

func (s *fakeAttempts) ListSubmittedAttempts(_ context.Context, limit int) ([]model.AssessmentAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.AssessmentAttempt
	for _, a := range s.byID {
		if a.Status == model.AttemptSubmitted {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.Before(*out[j].SubmittedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// fakeResults is an in-memory ResultStore.
type fakeResults struct {
	mu        sync.Mutex
	byAttempt map[string]model.AssessmentResult
	creates   int
	createErr error
}

func newFakeResults() *fakeResults {
	return &fakeResults{byAttempt: make(map[string]model.AssessmentResult)}
}

func (s *fakeResults) FindResultByAttemptID(_ context.Context, attemptID string) (*model.AssessmentResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byAttempt[attemptID]
	if !ok {
		return nil, util.ErrResultNotFound
	}
	return &r, nil
}

func (s *fakeResults) CreateResultIfAbsent(_ context.Context, result *model.AssessmentResult) (*model.AssessmentResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, false, s.createErr
	}
	if r, ok := s.byAttempt[result.AttemptID]; ok {
		return &r, false, nil
	}
	if result.ID == "" {
		result.ID = model.GenerateUUID()
	}
	s.byAttempt[result.AttemptID] = *result
	s.creates++
	stored := *result
	return &stored, true, nil
}

func (s *fakeResults) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byAttempt)
}

// fakeTranscriber returns canned transcripts keyed by media reference.
type fakeTranscriber struct {
	mu    sync.Mutex
	texts map[string]string
	calls int
}

var errNoTranscript = errors.New("transcription service unavailable")

func (f *fakeTranscriber) Transcribe(_ context.Context, ref string, _ model.QuestionType) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	text, ok := f.texts[ref]
	if !ok {
		return "", errNoTranscript
	}
	return text, nil
}

// fakeJudge returns a fixed judgment and records what it was asked.
type fakeJudge struct {
	mu       sync.Mutex
	judgment Judgment
	degraded bool
	answers  []string
}

func (f *fakeJudge) ScoreAnswer(_ context.Context, _ *model.AssessmentQuestion, answer string) (Judgment, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, answer)
	return f.judgment, f.degraded
}

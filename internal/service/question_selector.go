package service

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"teacherdev_backend/internal/config"
	"teacherdev_backend/internal/model"
	"teacherdev_backend/internal/util"
)

// InsufficientQuestionPoolError means the catalog cannot satisfy a type quota.
// It is a content problem and is never retried.
type InsufficientQuestionPoolError struct {
	Type      model.QuestionType
	Available int
	Required  int
}

func (e *InsufficientQuestionPoolError) Error() string {
	if e.Available == 0 {
		return fmt.Sprintf("insufficient question pool: no %s questions", e.Type)
	}
	return fmt.Sprintf("insufficient question pool: %s has %d questions, %d required", e.Type, e.Available, e.Required)
}

func (e *InsufficientQuestionPoolError) Unwrap() error { return util.ErrInsufficientQuestionPool }

// Quotas is the number of questions drawn per type.
type Quotas map[model.QuestionType]int

func QuotasFromConfig(cfg config.SelectionConfig) Quotas {
	return Quotas{
		model.QuestionMCQ:         cfg.MCQ,
		model.QuestionShortAnswer: cfg.ShortAnswer,
		model.QuestionAudio:       cfg.Audio,
		model.QuestionVideo:       cfg.Video,
	}
}

func (q Quotas) Total() int {
	n := 0
	for _, c := range q {
		n += c
	}
	return n
}

// QuestionSelector draws a type-stratified random question set.
type QuestionSelector struct {
	quotas Quotas

	mu  sync.Mutex
	rng *rand.Rand
}

// NewQuestionSelector uses a time-seeded source when rng is nil.
func NewQuestionSelector(quotas Quotas, rng *rand.Rand) *QuestionSelector {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &QuestionSelector{quotas: quotas, rng: rng}
}

// Select shuffles each type's pool, takes its quota, then shuffles the combined
// draw so the presented order is not grouped by type. Orders run 1..N. Either
// every quota is met or nothing is returned.
func (s *QuestionSelector) Select(pool []model.AssessmentQuestion) ([]model.SelectedQuestion, error) {
	byType := make(map[model.QuestionType][]uint)
	seen := make(map[uint]bool, len(pool))
	for _, q := range pool {
		if seen[q.ID] {
			continue
		}
		seen[q.ID] = true
		byType[q.Type] = append(byType[q.Type], q.ID)
	}

	// Check every quota before drawing anything.
	for _, t := range model.QuestionTypes {
		required := s.quotas[t]
		if required <= 0 {
			continue
		}
		if available := len(byType[t]); available < required {
			return nil, &InsufficientQuestionPoolError{Type: t, Available: available, Required: required}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	drawn := make([]uint, 0, s.quotas.Total())
	for _, t := range model.QuestionTypes {
		required := s.quotas[t]
		if required <= 0 {
			continue
		}
		ids := append([]uint(nil), byType[t]...)
		s.shuffle(ids)
		drawn = append(drawn, ids[:required]...)
	}
	s.shuffle(drawn)

	selected := make([]model.SelectedQuestion, len(drawn))
	for i, id := range drawn {
		selected[i] = model.SelectedQuestion{QuestionID: id, Order: i + 1}
	}
	return selected, nil
}

// shuffle is Fisher-Yates. Callers hold s.mu.
func (s *QuestionSelector) shuffle(ids []uint) {
	for i := len(ids) - 1; i > 0; i-- {
		j := s.rng.Intn(i + 1)
		ids[i], ids[j] = ids[j], ids[i]
	}
}

package service

import (
	"context"

	"teacherdev_backend/internal/model"
)

// QuestionPool is the read surface of the assessment catalog.
type QuestionPool interface {
	FindAssessmentByID(ctx context.Context, id uint) (*model.Assessment, error)
	ListQuestionsByAssessment(ctx context.Context, assessmentID uint) ([]model.AssessmentQuestion, error)
	FindQuestionsByIDs(ctx context.Context, ids []uint) ([]model.AssessmentQuestion, error)
}

// CatalogStore extends QuestionPool with the writes used by catalog administration.
type CatalogStore interface {
	QuestionPool
	CreateAssessment(ctx context.Context, a *model.Assessment) error
	ListAssessments(ctx context.Context, page, limit int) ([]model.Assessment, int64, error)
	CreateQuestions(ctx context.Context, qs []model.AssessmentQuestion) error
}

// AttemptStore persists attempts. Lookups return util.ErrAttemptNotFound when
// nothing matches.
type AttemptStore interface {
	FindAttemptByID(ctx context.Context, id string) (*model.AssessmentAttempt, error)
	FindAttemptByTeacherAndAssessment(ctx context.Context, teacherID, assessmentID uint) (*model.AssessmentAttempt, error)

	// CreateAttemptIfAbsent inserts attempt unless one already exists for the
	// same teacher and assessment, in which case the existing row is returned
	// with created=false.
	CreateAttemptIfAbsent(ctx context.Context, attempt *model.AssessmentAttempt) (stored *model.AssessmentAttempt, created bool, err error)

	// UpdateAttempt writes attempt only while its stored status is still from.
	// It returns util.ErrInvalidState when the status has moved on.
	UpdateAttempt(ctx context.Context, attempt *model.AssessmentAttempt, from model.AttemptStatus) error

	// ListSubmittedAttempts returns SUBMITTED attempts, oldest submission first.
	ListSubmittedAttempts(ctx context.Context, limit int) ([]model.AssessmentAttempt, error)
}

// ResultStore persists evaluation results, at most one per attempt.
type ResultStore interface {
	// FindResultByAttemptID returns util.ErrResultNotFound when absent.
	FindResultByAttemptID(ctx context.Context, attemptID string) (*model.AssessmentResult, error)

	// CreateResultIfAbsent returns the already stored result with
	// created=false when another writer got there first.
	CreateResultIfAbsent(ctx context.Context, result *model.AssessmentResult) (stored *model.AssessmentResult, created bool, err error)
}

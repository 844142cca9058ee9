package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"teacherdev_backend/internal/model"
	"teacherdev_backend/internal/util"
)

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

func (r *AttemptRepository) FindAttemptByID(ctx context.Context, id string) (*model.AssessmentAttempt, error) {
	var a model.AssessmentAttempt
	err := r.DB.WithContext(ctx).Where("id = ?", id).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AttemptRepository) FindAttemptByTeacherAndAssessment(ctx context.Context, teacherID, assessmentID uint) (*model.AssessmentAttempt, error) {
	var a model.AssessmentAttempt
	err := r.DB.WithContext(ctx).
		Where("teacher_id = ? AND assessment_id = ?", teacherID, assessmentID).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// createAttemptTries bounds how often the locked read-then-insert runs. A
// second run blocks on the winner's row lock and then sees its row.
const createAttemptTries = 2

// CreateAttemptIfAbsent reads the (teacher, assessment) pair under a row lock
// and inserts only when it is free. The unique index backs this up: a
// concurrent insert that slips through fails with a duplicate key (or, on
// MySQL, a gap-lock deadlock) and the winner's row is returned instead. The
// deadlock loser can fail before the winner commits, so the transaction is
// run again before giving up.
func (r *AttemptRepository) CreateAttemptIfAbsent(ctx context.Context, attempt *model.AssessmentAttempt) (*model.AssessmentAttempt, bool, error) {
	var lastErr error
	for try := 1; try <= createAttemptTries; try++ {
		stored, created, err := r.createAttemptOnce(ctx, attempt)
		if err == nil {
			return stored, created, nil
		}
		lastErr = err

		winner, findErr := r.FindAttemptByTeacherAndAssessment(ctx, attempt.TeacherID, attempt.AssessmentID)
		if findErr == nil {
			return winner, false, nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil, false, lastErr
}

func (r *AttemptRepository) createAttemptOnce(ctx context.Context, attempt *model.AssessmentAttempt) (*model.AssessmentAttempt, bool, error) {
	var stored *model.AssessmentAttempt
	created := false

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.AssessmentAttempt
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("teacher_id = ? AND assessment_id = ?", attempt.TeacherID, attempt.AssessmentID).
			First(&existing).Error
		if err == nil {
			stored = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := tx.Create(attempt).Error; err != nil {
			return err
		}
		stored = attempt
		created = true
		return nil
	})
	return stored, created, err
}

// UpdateAttempt is a compare-and-set on status.
func (r *AttemptRepository) UpdateAttempt(ctx context.Context, attempt *model.AssessmentAttempt, from model.AttemptStatus) error {
	res := r.DB.WithContext(ctx).
		Model(attempt).
		Where("status = ?", from).
		Select("answers", "selected_questions", "status", "retry_count", "last_error", "submitted_at", "evaluated_at", "updated_at").
		Updates(attempt)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.FindAttemptByID(ctx, attempt.ID); err != nil {
			return err
		}
		return util.ErrInvalidState
	}
	return nil
}

func (r *AttemptRepository) ListSubmittedAttempts(ctx context.Context, limit int) ([]model.AssessmentAttempt, error) {
	var as []model.AssessmentAttempt
	query := r.DB.WithContext(ctx).
		Where("status = ?", model.AttemptSubmitted).
		Order("submitted_at asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&as).Error
	return as, err
}

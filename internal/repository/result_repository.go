package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"teacherdev_backend/internal/model"
	"teacherdev_backend/internal/util"
)

type ResultRepository struct {
	DB *gorm.DB
}

func NewResultRepository(db *gorm.DB) *ResultRepository {
	return &ResultRepository{DB: db}
}

func (r *ResultRepository) FindResultByAttemptID(ctx context.Context, attemptID string) (*model.AssessmentResult, error) {
	var res model.AssessmentResult
	err := r.DB.WithContext(ctx).Where("attempt_id = ?", attemptID).First(&res).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrResultNotFound
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// CreateResultIfAbsent checks before writing and relies on the unique
// attempt_id index for writers that race past the check.
func (r *ResultRepository) CreateResultIfAbsent(ctx context.Context, result *model.AssessmentResult) (*model.AssessmentResult, bool, error) {
	existing, err := r.FindResultByAttemptID(ctx, result.AttemptID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, util.ErrResultNotFound) {
		return nil, false, err
	}

	if err := r.DB.WithContext(ctx).Create(result).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, findErr := r.FindResultByAttemptID(ctx, result.AttemptID)
			if findErr != nil {
				return nil, false, findErr
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	return result, true, nil
}

package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"teacherdev_backend/internal/model"
	"teacherdev_backend/internal/util"
)

// AssessmentRepository is the assessment catalog: assessments and their
// question pools.
type AssessmentRepository struct {
	DB *gorm.DB
}

func NewAssessmentRepository(db *gorm.DB) *AssessmentRepository {
	return &AssessmentRepository{DB: db}
}

func (r *AssessmentRepository) CreateAssessment(ctx context.Context, a *model.Assessment) error {
	return r.DB.WithContext(ctx).Create(a).Error
}

func (r *AssessmentRepository) FindAssessmentByID(ctx context.Context, id uint) (*model.Assessment, error) {
	var a model.Assessment
	err := r.DB.WithContext(ctx).First(&a, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrAssessmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AssessmentRepository) ListAssessments(ctx context.Context, page, limit int) ([]model.Assessment, int64, error) {
	var as []model.Assessment
	var total int64
	query := r.DB.WithContext(ctx).Model(&model.Assessment{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * limit
	err := query.Order("created_at desc").Offset(offset).Limit(limit).Find(&as).Error
	return as, total, err
}

// CreateQuestions stores the whole batch or none of it.
func (r *AssessmentRepository) CreateQuestions(ctx context.Context, qs []model.AssessmentQuestion) error {
	if len(qs) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&qs, 100).Error
	})
}

func (r *AssessmentRepository) ListQuestionsByAssessment(ctx context.Context, assessmentID uint) ([]model.AssessmentQuestion, error) {
	var qs []model.AssessmentQuestion
	err := r.DB.WithContext(ctx).
		Where("assessment_id = ?", assessmentID).
		Order("id asc").
		Find(&qs).Error
	return qs, err
}

// FindQuestionsByIDs includes soft-deleted questions so attempts drawn before
// a question was retired can still be shown and evaluated.
func (r *AssessmentRepository) FindQuestionsByIDs(ctx context.Context, ids []uint) ([]model.AssessmentQuestion, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var qs []model.AssessmentQuestion
	err := r.DB.WithContext(ctx).Unscoped().Where("id IN ?", ids).Find(&qs).Error
	return qs, err
}

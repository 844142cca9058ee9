package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"teacherdev_backend/internal/model"
	"teacherdev_backend/internal/util"
)

type AssessmentRequest struct {
	Title       string `json:"title" yaml:"title" validate:"required,max=255"`
	Description string `json:"description" yaml:"description"`
	TimeLimit   int    `json:"timeLimit" yaml:"timeLimit" validate:"gte=0"`
	IsPublished bool   `json:"isPublished" yaml:"isPublished"`
}

type QuestionRequest struct {
	DomainKey     string   `json:"domainKey" yaml:"domain" validate:"required"`
	Type          string   `json:"type" yaml:"type" validate:"required"`
	Prompt        string   `json:"prompt" yaml:"prompt" validate:"required"`
	MaxScore      float64  `json:"maxScore" yaml:"maxScore" validate:"gt=0"`
	Options       []string `json:"options" yaml:"options" validate:"omitempty,dive,required"`
	CorrectOption string   `json:"correctOption" yaml:"correctOption"`
}

// QuestionFile is the YAML layout accepted by bulk import.
type QuestionFile struct {
	Questions []QuestionRequest `yaml:"questions" validate:"required,min=1"`
}

// QuestionValidationError names the offending entry of a bulk import.
type QuestionValidationError struct {
	Index int
	Err   error
}

func (e *QuestionValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid question: %v", e.Err)
	}
	return fmt.Sprintf("invalid question #%d: %v", e.Index+1, e.Err)
}

func (e *QuestionValidationError) Unwrap() []error { return []error{util.ErrInvalidQuestion, e.Err} }

// CatalogService administers assessments and their question pools.
type CatalogService struct {
	store    CatalogStore
	validate *validator.Validate
	log      *zap.Logger
}

func NewCatalogService(store CatalogStore, log *zap.Logger) *CatalogService {
	return &CatalogService{store: store, validate: validator.New(), log: log}
}

func (s *CatalogService) CreateAssessment(ctx context.Context, req AssessmentRequest) (*model.Assessment, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrInvalidInput, err)
	}
	a := &model.Assessment{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		TimeLimit:   req.TimeLimit,
		IsPublished: req.IsPublished,
	}
	if err := s.store.CreateAssessment(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *CatalogService) ListAssessments(ctx context.Context, page, limit int) ([]model.Assessment, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.store.ListAssessments(ctx, page, limit)
}

func (s *CatalogService) ListQuestions(ctx context.Context, assessmentID uint) ([]model.AssessmentQuestion, error) {
	if _, err := s.store.FindAssessmentByID(ctx, assessmentID); err != nil {
		return nil, err
	}
	return s.store.ListQuestionsByAssessment(ctx, assessmentID)
}

func (s *CatalogService) CreateQuestion(ctx context.Context, assessmentID uint, req QuestionRequest) (*model.AssessmentQuestion, error) {
	if _, err := s.store.FindAssessmentByID(ctx, assessmentID); err != nil {
		return nil, err
	}
	q, err := s.buildQuestion(assessmentID, req)
	if err != nil {
		return nil, &QuestionValidationError{Index: -1, Err: err}
	}
	qs := []model.AssessmentQuestion{*q}
	if err := s.store.CreateQuestions(ctx, qs); err != nil {
		return nil, err
	}
	return &qs[0], nil
}

// ImportYAML validates every entry before storing any, so a file is imported
// completely or not at all.
func (s *CatalogService) ImportYAML(ctx context.Context, assessmentID uint, r io.Reader) ([]model.AssessmentQuestion, error) {
	if _, err := s.store.FindAssessmentByID(ctx, assessmentID); err != nil {
		return nil, err
	}

	var file QuestionFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("file is empty")
		}
		return nil, &QuestionValidationError{Index: -1, Err: fmt.Errorf("parse yaml: %w", err)}
	}
	if err := s.validate.Struct(file); err != nil {
		return nil, &QuestionValidationError{Index: -1, Err: err}
	}

	qs := make([]model.AssessmentQuestion, 0, len(file.Questions))
	for i, req := range file.Questions {
		q, err := s.buildQuestion(assessmentID, req)
		if err != nil {
			return nil, &QuestionValidationError{Index: i, Err: err}
		}
		qs = append(qs, *q)
	}

	if err := s.store.CreateQuestions(ctx, qs); err != nil {
		return nil, err
	}
	s.log.Info("Questions imported", zap.Uint("assessment_id", assessmentID), zap.Int("count", len(qs)))
	return qs, nil
}

func (s *CatalogService) buildQuestion(assessmentID uint, req QuestionRequest) (*model.AssessmentQuestion, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}

	domain := model.DomainKey(strings.TrimSpace(req.DomainKey))
	if !domain.Valid() {
		return nil, fmt.Errorf("unknown domain %q", req.DomainKey)
	}
	qType, err := model.ParseQuestionType(req.Type)
	if err != nil {
		return nil, err
	}

	q := &model.AssessmentQuestion{
		AssessmentID: assessmentID,
		DomainKey:    domain,
		Type:         qType,
		Prompt:       strings.TrimSpace(req.Prompt),
		MaxScore:     req.MaxScore,
	}

	if qType == model.QuestionMCQ {
		if len(req.Options) < 2 {
			return nil, errors.New("MCQ needs at least two options")
		}
		correct := strings.TrimSpace(req.CorrectOption)
		found := false
		for _, o := range req.Options {
			if strings.EqualFold(strings.TrimSpace(o), correct) {
				found = true
				break
			}
		}
		if correct == "" || !found {
			return nil, errors.New("MCQ correctOption must be one of its options")
		}
		q.Options = req.Options
		q.CorrectOption = correct
	} else if len(req.Options) > 0 || req.CorrectOption != "" {
		return nil, fmt.Errorf("%s questions take no options", qType)
	}
	return q, nil
}

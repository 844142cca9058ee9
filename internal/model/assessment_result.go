package model

import (
	"gorm.io/datatypes"
)

type ProficiencyLevel string

const (
	ProficiencyBeginner   ProficiencyLevel = "Beginner"
	ProficiencyDeveloping ProficiencyLevel = "Developing"
	ProficiencyProficient ProficiencyLevel = "Proficient"
	ProficiencyAdvanced   ProficiencyLevel = "Advanced"
)

// QuestionResult is the scored outcome of one question in one evaluation pass.
type QuestionResult struct {
	QuestionID uint         `json:"questionId"`
	DomainKey  DomainKey    `json:"domainKey"`
	Type       QuestionType `json:"type"`
	Score      float64      `json:"score"`
	MaxScore   float64      `json:"maxScore"`
	Feedback   string       `json:"feedback"`
}

type DomainScore struct {
	DomainKey    DomainKey `json:"domainKey"`
	RawScore     float64   `json:"rawScore"`
	MaxScore     float64   `json:"maxScore"`
	ScorePercent float64   `json:"scorePercent"`
}

// AssessmentResult is the durable evaluation record, one per attempt.
// swagger:model AssessmentResult
type AssessmentResult struct {
	UUIDBase
	AttemptID           string                              `gorm:"type:varchar(36);not null;uniqueIndex" json:"attemptId"`
	AssessmentID        uint                                `gorm:"index" json:"assessmentId"`
	TeacherID           uint                                `gorm:"index" json:"teacherId"`
	OverallScore        float64                             `json:"overallScore"`
	ProficiencyLevel    ProficiencyLevel                    `gorm:"size:20" json:"proficiencyLevel"`
	DomainScores        datatypes.JSONSlice[DomainScore]    `json:"domainScores"`
	StrengthDomains     datatypes.JSONSlice[DomainKey]      `json:"strengthDomains"`
	GapDomains          datatypes.JSONSlice[DomainKey]      `json:"gapDomains"`
	RecommendedMicroPDs datatypes.JSONSlice[string]         `json:"recommendedMicroPDs"`
	QuestionResults     datatypes.JSONSlice[QuestionResult] `json:"questionResults"`
	RawFeedback         string                              `gorm:"type:text" json:"rawFeedback"`
}

func (AssessmentResult) TableName() string {
	return "assessment_results"
}

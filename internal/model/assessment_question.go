package model

import (
	"fmt"
	"strings"

	"gorm.io/datatypes"
)

// QuestionType is the closed set of answer formats an assessment item can take.
type QuestionType string

const (
	QuestionMCQ         QuestionType = "MCQ"
	QuestionShortAnswer QuestionType = "SHORT_ANSWER"
	QuestionAudio       QuestionType = "AUDIO"
	QuestionVideo       QuestionType = "VIDEO"
)

// QuestionTypes lists every question type in presentation order.
var QuestionTypes = []QuestionType{QuestionMCQ, QuestionShortAnswer, QuestionAudio, QuestionVideo}

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionMCQ, QuestionShortAnswer, QuestionAudio, QuestionVideo:
		return true
	}
	return false
}

// IsMedia reports whether answers of this type are storage references to recordings.
func (t QuestionType) IsMedia() bool {
	return t == QuestionAudio || t == QuestionVideo
}

// ParseQuestionType accepts the canonical names case-insensitively.
func ParseQuestionType(s string) (QuestionType, error) {
	t := QuestionType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown question type %q", s)
	}
	return t, nil
}

// AssessmentQuestion is one item of an assessment's question pool.
// swagger:model AssessmentQuestion
type AssessmentQuestion struct {
	BaseModel
	AssessmentID  uint                        `gorm:"index" json:"assessmentId"`
	DomainKey     DomainKey                   `gorm:"size:64;index;not null" json:"domainKey"`
	Type          QuestionType                `gorm:"size:32;index;not null" json:"type"`
	Prompt        string                      `gorm:"type:text;not null" json:"prompt"`
	MaxScore      float64                     `gorm:"not null" json:"maxScore"`
	Options       datatypes.JSONSlice[string] `json:"options,omitempty"`
	CorrectOption string                      `gorm:"type:text" json:"correctOption,omitempty"`
}

func (AssessmentQuestion) TableName() string {
	return "assessment_questions"
}

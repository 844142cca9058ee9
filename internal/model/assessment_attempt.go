package model

import (
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "IN_PROGRESS"
	AttemptSubmitted  AttemptStatus = "SUBMITTED"
	AttemptEvaluated  AttemptStatus = "EVALUATED"
	AttemptFailed     AttemptStatus = "FAILED"
)

// Terminal reports whether no further transition may leave this status.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptEvaluated || s == AttemptFailed
}

// SelectedQuestion records which pool item was drawn for an attempt and where it is shown.
type SelectedQuestion struct {
	QuestionID uint `json:"questionId"`
	Order      int  `json:"order"`
}

// QuestionAnswer is the raw answer for one question: option text, free text or a
// storage reference for recordings.
type QuestionAnswer struct {
	QuestionID uint   `json:"questionId" binding:"required"`
	Answer     string `json:"answer"`
}

// AssessmentAttempt is a teacher's single permitted pass at an assessment.
// swagger:model AssessmentAttempt
type AssessmentAttempt struct {
	UUIDBase
	TeacherID         uint                                  `gorm:"not null;uniqueIndex:idx_attempt_teacher_assessment" json:"teacherId"`
	AssessmentID      uint                                  `gorm:"not null;uniqueIndex:idx_attempt_teacher_assessment" json:"assessmentId"`
	Answers           datatypes.JSONSlice[QuestionAnswer]   `json:"answers"`
	SelectedQuestions datatypes.JSONSlice[SelectedQuestion] `json:"selectedQuestions"`
	Status            AttemptStatus                         `gorm:"size:20;not null;index:idx_attempt_status_submitted" json:"status"`
	RetryCount        int                                   `gorm:"default:0" json:"retryCount"`
	LastError         string                                `gorm:"type:text" json:"-"`
	SubmittedAt       *time.Time                            `gorm:"index:idx_attempt_status_submitted" json:"submittedAt,omitempty"`
	EvaluatedAt       *time.Time                            `json:"evaluatedAt,omitempty"`
}

func (AssessmentAttempt) TableName() string {
	return "assessment_attempts"
}

// AnswerFor returns the latest answer recorded for a question.
func (a *AssessmentAttempt) AnswerFor(questionID uint) (string, bool) {
	for i := len(a.Answers) - 1; i >= 0; i-- {
		if a.Answers[i].QuestionID == questionID {
			return a.Answers[i].Answer, true
		}
	}
	return "", false
}

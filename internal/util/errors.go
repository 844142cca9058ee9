package util

import "errors"

var (
	ErrPermissionDenied         = errors.New("permission denied")
	ErrAssessmentNotFound       = errors.New("assessment not found")
	ErrQuestionNotFound         = errors.New("question not found")
	ErrAttemptNotFound          = errors.New("attempt not found")
	ErrResultNotFound           = errors.New("result not found")
	ErrInsufficientQuestionPool = errors.New("insufficient question pool")
	ErrInvalidState             = errors.New("attempt is not in a valid state for this operation")
	ErrMissingAnswers           = errors.New("missing answers")
	ErrInvalidAnswers           = errors.New("answers reference questions outside the attempt")
	ErrAttemptConflict          = errors.New("attempt cannot be started")
	ErrEvaluationInProgress     = errors.New("evaluation already in progress")
	ErrInvalidQuestion          = errors.New("invalid question")
	ErrInvalidInput             = errors.New("invalid input")
)

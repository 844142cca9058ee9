package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"teacherdev_backend/internal/model"
	"teacherdev_backend/internal/util"
	"teacherdev_backend/pkg/monitoring"
)

const (
	feedbackNoAnswer          = "No answer provided"
	feedbackMCQCorrect        = "Correct."
	feedbackTranscriptionFail = "Your recording could not be transcribed, so this answer was scored 0. Please contact support if you believe this is an error."
)

// AnswerJudge scores free text. It always produces a judgment; degraded marks a
// fallback score.
type AnswerJudge interface {
	ScoreAnswer(ctx context.Context, q *model.AssessmentQuestion, answer string) (j Judgment, degraded bool)
}

// QuestionEvaluator scores one answered question according to its type.
type QuestionEvaluator struct {
	judge       AnswerJudge
	transcriber Transcriber
	log         *zap.Logger
}

func NewQuestionEvaluator(judge AnswerJudge, transcriber Transcriber, log *zap.Logger) *QuestionEvaluator {
	return &QuestionEvaluator{judge: judge, transcriber: transcriber, log: log}
}

// Evaluate never fails because of an unavailable collaborator. The only error
// is a question whose type it does not know.
func (e *QuestionEvaluator) Evaluate(ctx context.Context, q *model.AssessmentQuestion, answer string) (model.QuestionResult, error) {
	res := model.QuestionResult{
		QuestionID: q.ID,
		DomainKey:  q.DomainKey,
		Type:       q.Type,
		MaxScore:   q.MaxScore,
	}

	if strings.TrimSpace(answer) == "" {
		res.Feedback = feedbackNoAnswer
		return res, nil
	}

	switch q.Type {
	case model.QuestionMCQ:
		res.Score, res.Feedback = scoreMCQ(q, answer)
	case model.QuestionShortAnswer:
		res.Score, res.Feedback = e.scoreText(ctx, q, answer)
	case model.QuestionAudio, model.QuestionVideo:
		text, err := e.transcriber.Transcribe(ctx, answer, q.Type)
		if err != nil {
			monitoring.TranscriptionFailures.Inc()
			e.log.Warn("Transcription failed, scoring 0",
				zap.Uint("question_id", q.ID),
				zap.String("type", string(q.Type)),
				zap.Error(err))
			res.Feedback = feedbackTranscriptionFail
			return res, nil
		}
		res.Score, res.Feedback = e.scoreText(ctx, q, text)
	default:
		return res, fmt.Errorf("%w: question %d has unknown type %q", util.ErrInvalidQuestion, q.ID, q.Type)
	}
	return res, nil
}

// scoreMCQ compares trimmed option text case-insensitively.
func scoreMCQ(q *model.AssessmentQuestion, answer string) (float64, string) {
	if strings.EqualFold(strings.TrimSpace(answer), strings.TrimSpace(q.CorrectOption)) {
		return q.MaxScore, feedbackMCQCorrect
	}
	return 0, fmt.Sprintf("Incorrect. The correct answer is %q.", q.CorrectOption)
}

func (e *QuestionEvaluator) scoreText(ctx context.Context, q *model.AssessmentQuestion, text string) (float64, string) {
	j, _ := e.judge.ScoreAnswer(ctx, q, text)
	return clampScore(j.Score, q.MaxScore), j.Feedback
}

func clampScore(score, max float64) float64 {
	switch {
	case math.IsNaN(score) || score < 0:
		return 0
	case score > max:
		return max
	}
	return score
}

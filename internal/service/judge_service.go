package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"teacherdev_backend/internal/llm"
	"teacherdev_backend/internal/model"
	"teacherdev_backend/pkg/monitoring"
	"teacherdev_backend/pkg/retry"
)

const (
	purposeAnswer    = "answer-judgment"
	purposeNarrative = "result-narrative"

	fallbackFeedback = "Automatic scoring was unavailable for this answer; a provisional score has been assigned."
)

// Judgment is the structured verdict on one free-text answer.
type Judgment struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

var judgmentSchema = &llm.Schema{
	Name:        "answer_judgment",
	Description: "Score and feedback for a teacher's answer",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"score": map[string]any{
				"type":        "number",
				"description": "Points awarded, between 0 and the question's max score",
			},
			"feedback": map[string]any{
				"type":        "string",
				"description": "Two or three sentences of actionable feedback",
			},
		},
		"required":             []any{"score", "feedback"},
		"additionalProperties": false,
	},
}

const answerSystemPrompt = `You are an experienced teacher educator scoring a practising teacher's answer in a professional competency assessment.
Score strictly on the quality of the pedagogy described, not on writing style.
Respond only with JSON matching the provided schema.`

const narrativeSystemPrompt = `You are a professional-development coach writing a short summary of a teacher's competency assessment.
Write one paragraph of plain text (no markdown, no lists), encouraging and specific, naming strengths first and then the areas for growth.`

// JudgeService scores free-text answers and writes result narratives through
// an LLM. Every call is bounded by the retry policy and degrades to a
// deterministic fallback, so callers never see an error.
type JudgeService struct {
	provider       llm.Provider
	policy         retry.Policy
	fallbackRatio  float64
	maxTokens      int
	temperature    float64
	requestTimeout time.Duration
	log            *zap.Logger
}

// JudgeOptions configures a JudgeService. RequestTimeout bounds each provider
// call on its own; zero leaves calls bounded only by the caller's context.
type JudgeOptions struct {
	Policy         retry.Policy
	FallbackRatio  float64
	MaxTokens      int
	Temperature    float64
	RequestTimeout time.Duration
}

func NewJudgeService(provider llm.Provider, opts JudgeOptions, log *zap.Logger) *JudgeService {
	if opts.Policy.Backoff == nil {
		opts.Policy.Backoff = retry.DefaultPolicy().Backoff
	}
	return &JudgeService{
		provider:       provider,
		policy:         opts.Policy,
		fallbackRatio:  opts.FallbackRatio,
		maxTokens:      opts.MaxTokens,
		temperature:    opts.Temperature,
		requestTimeout: opts.RequestTimeout,
		log:            log,
	}
}

func (s *JudgeService) generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}
	return s.provider.Generate(ctx, req)
}

// ScoreAnswer asks the judge for a score. degraded is true when the fallback
// score of maxScore*fallbackRatio was used instead.
func (s *JudgeService) ScoreAnswer(ctx context.Context, q *model.AssessmentQuestion, answer string) (j Judgment, degraded bool) {
	ctx = llm.WithPurpose(ctx, purposeAnswer)

	req := llm.UserPrompt(answerSystemPrompt, answerPrompt(q, answer))
	req.Schema = judgmentSchema
	req.MaxTokens = s.maxTokens
	req.Temperature = s.temperature

	call := func(ctx context.Context) (Judgment, error) {
		resp, err := s.generate(ctx, req)
		if err != nil {
			return Judgment{}, err
		}
		var out Judgment
		if err := json.Unmarshal(resp.Content, &out); err != nil {
			return Judgment{}, &llm.ErrInvalidResponse{Content: resp.Content, Err: err}
		}
		return out, nil
	}
	fallback := func(err error) Judgment {
		s.log.Warn("Answer judgment exhausted retries, using fallback score",
			zap.Uint("question_id", q.ID),
			zap.Int("attempts", s.policy.Attempts()),
			zap.Error(err))
		return Judgment{Score: q.MaxScore * s.fallbackRatio, Feedback: fallbackFeedback}
	}

	j, degraded = retry.WithFallback(ctx, s.policy, call, fallback, s.observer(purposeAnswer, zap.Uint("question_id", q.ID)))
	recordJudgeCall(purposeAnswer, degraded)
	return j, degraded
}

// NarrativeInput is what the summary is written from.
type NarrativeInput struct {
	Aggregation     Aggregation
	Recommendations []string
}

// Summarize writes the result narrative, falling back to a template built from
// the strength and gap lists.
func (s *JudgeService) Summarize(ctx context.Context, in NarrativeInput) (text string, degraded bool) {
	ctx = llm.WithPurpose(ctx, purposeNarrative)

	req := llm.UserPrompt(narrativeSystemPrompt, narrativePrompt(in))
	req.MaxTokens = s.maxTokens * 2
	req.Temperature = s.temperature

	call := func(ctx context.Context) (string, error) {
		resp, err := s.generate(ctx, req)
		if err != nil {
			return "", err
		}
		text := strings.TrimSpace(string(resp.Content))
		if text == "" {
			return "", &llm.ErrInvalidResponse{Content: resp.Content, Err: fmt.Errorf("empty narrative")}
		}
		return text, nil
	}
	fallback := func(err error) string {
		s.log.Warn("Narrative generation exhausted retries, using template", zap.Error(err))
		return TemplateNarrative(in.Aggregation)
	}

	text, degraded = retry.WithFallback(ctx, s.policy, call, fallback, s.observer(purposeNarrative))
	recordJudgeCall(purposeNarrative, degraded)
	return text, degraded
}

func (s *JudgeService) observer(purpose string, fields ...zap.Field) retry.Observer {
	return func(attempt int, err error) {
		kind := "unavailable"
		if llm.Malformed(err) {
			kind = "malformed"
		}
		monitoring.JudgeFailures.WithLabelValues(purpose, kind).Inc()
		s.log.Info("Judge call failed",
			append(fields,
				zap.String("purpose", purpose),
				zap.String("kind", kind),
				zap.Int("attempt", attempt),
				zap.Error(err))...)
	}
}

func recordJudgeCall(purpose string, degraded bool) {
	outcome := "ok"
	if degraded {
		outcome = "fallback"
	}
	monitoring.JudgeCalls.WithLabelValues(purpose, outcome).Inc()
}

func answerPrompt(q *model.AssessmentQuestion, answer string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Competency domain: %s\n", q.DomainKey.DisplayName())
	fmt.Fprintf(&b, "Maximum score: %g\n\n", q.MaxScore)
	fmt.Fprintf(&b, "Question:\n%s\n\n", q.Prompt)
	fmt.Fprintf(&b, "Teacher's answer:\n%s\n", answer)
	return b.String()
}

func narrativePrompt(in NarrativeInput) string {
	agg := in.Aggregation
	var b strings.Builder
	fmt.Fprintf(&b, "Overall score: %.2f%% (%s)\n", agg.OverallScore, agg.ProficiencyLevel)
	b.WriteString("Domain scores:\n")
	for _, d := range agg.DomainScores {
		fmt.Fprintf(&b, "- %s: %.2f%%\n", d.DomainKey.DisplayName(), d.ScorePercent)
	}
	fmt.Fprintf(&b, "Strength domains: %s\n", domainList(agg.StrengthDomains))
	fmt.Fprintf(&b, "Gap domains: %s\n", domainList(agg.GapDomains))
	if len(in.Recommendations) > 0 {
		fmt.Fprintf(&b, "Recommended modules: %s\n", strings.Join(in.Recommendations, ", "))
	}
	return b.String()
}

// TemplateNarrative is the summary used when the judge cannot write one.
func TemplateNarrative(agg Aggregation) string {
	return fmt.Sprintf(
		"Your overall score is %.2f%%, placing you at the %s level. Strengths: %s. Areas for growth: %s.",
		agg.OverallScore, agg.ProficiencyLevel, domainList(agg.StrengthDomains), domainList(agg.GapDomains))
}

func domainList(domains []model.DomainKey) string {
	if len(domains) == 0 {
		return "none identified"
	}
	names := make([]string, len(domains))
	for i, d := range domains {
		names[i] = d.DisplayName()
	}
	return strings.Join(names, ", ")
}

package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"teacherdev_backend/internal/llm"
	"teacherdev_backend/internal/model"
	"teacherdev_backend/pkg/retry"
)

func newTestJudge(p llm.Provider) *JudgeService {
	return NewJudgeService(p, JudgeOptions{
		Policy:        retry.Policy{MaxRetries: 2, Backoff: retry.Linear(0)},
		FallbackRatio: 0.5,
		MaxTokens:     256,
	}, zap.NewNop())
}

func TestJudgeService_ScoreAnswer(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{
		Content: json.RawMessage(`{"score":4,"feedback":"Concrete and well sequenced."}`),
	})
	judge := newTestJudge(mock)
	q := openQuestion(3, model.QuestionShortAnswer, 5)

	j, degraded := judge.ScoreAnswer(context.Background(), q, "Start with a hook.")
	assert.False(t, degraded)
	assert.Equal(t, 4.0, j.Score)
	assert.Equal(t, "Concrete and well sequenced.", j.Feedback)

	require.Equal(t, 1, mock.CallCount())
	call := mock.Calls[0]
	assert.NotNil(t, call.Schema)
	assert.Contains(t, call.Messages[0].Content, "Start with a hook.")
	assert.Contains(t, call.Messages[0].Content, "Student Engagement")
	assert.Contains(t, call.Messages[0].Content, q.Prompt)
}

func TestJudgeService_RetriesThenSucceeds(t *testing.T) {
	mock := llm.NewMockProvider(
		llm.MockResponse{Err: &llm.ErrRateLimit{}},
		llm.MockResponse{Content: json.RawMessage(`{"score":"four"}`)},
		llm.MockResponse{Content: json.RawMessage(`{"score":2,"feedback":"Partial."}`)},
	)
	judge := newTestJudge(mock)

	j, degraded := judge.ScoreAnswer(context.Background(), openQuestion(3, model.QuestionShortAnswer, 5), "answer")
	assert.False(t, degraded)
	assert.Equal(t, 2.0, j.Score)
	assert.Equal(t, 3, mock.CallCount())
}

func TestJudgeService_FallbackAfterExhaustion(t *testing.T) {
	mock := llm.NewMockProvider()
	judge := newTestJudge(mock)

	j, degraded := judge.ScoreAnswer(context.Background(), openQuestion(3, model.QuestionShortAnswer, 5), "answer")
	assert.True(t, degraded)
	assert.Equal(t, 2.5, j.Score)
	assert.Equal(t, fallbackFeedback, j.Feedback)
	assert.Equal(t, 3, mock.CallCount(), "one call plus two retries")
}

// stallingProvider never answers and returns only when the call's context ends.
type stallingProvider struct {
	calls atomic.Int32
}

func (p *stallingProvider) Generate(ctx context.Context, _ llm.Request) (*llm.Response, error) {
	p.calls.Add(1)
	<-ctx.Done()
	return nil, ctx.Err()
}

func (p *stallingProvider) ModelID() string { return "stalling" }

func TestJudgeService_RequestTimeoutBoundsEachCall(t *testing.T) {
	p := &stallingProvider{}
	judge := NewJudgeService(p, JudgeOptions{
		Policy:         retry.Policy{MaxRetries: 2, Backoff: retry.Linear(0)},
		FallbackRatio:  0.5,
		RequestTimeout: 20 * time.Millisecond,
	}, zap.NewNop())

	start := time.Now()
	j, degraded := judge.ScoreAnswer(context.Background(), openQuestion(3, model.QuestionShortAnswer, 5), "answer")
	assert.True(t, degraded)
	assert.Equal(t, 2.5, j.Score)
	assert.Equal(t, int32(3), p.calls.Load(), "every retry gets its own deadline")
	assert.Less(t, time.Since(start), 2*time.Second)

	text, degraded := judge.Summarize(context.Background(), NarrativeInput{Aggregation: Aggregate(nil, DefaultStrengthThreshold)})
	assert.True(t, degraded)
	assert.NotEmpty(t, text)
}

func TestJudgeService_MalformedFallsBackToo(t *testing.T) {
	bad := llm.MockResponse{Content: json.RawMessage(`not json`)}
	mock := llm.NewMockProvider(bad, bad, bad)
	judge := newTestJudge(mock)

	j, degraded := judge.ScoreAnswer(context.Background(), openQuestion(3, model.QuestionShortAnswer, 4), "answer")
	assert.True(t, degraded)
	assert.Equal(t, 2.0, j.Score)
}

func TestJudgeService_Summarize(t *testing.T) {
	agg := Aggregate([]model.QuestionResult{
		qr(1, model.DomainClassroomManagement, 1, 1),
		qr(2, model.DomainStudentEngagement, 1, 5),
	}, DefaultStrengthThreshold)

	t.Run("judge writes narrative", func(t *testing.T) {
		mock := llm.NewMockProvider(llm.MockResponse{Content: json.RawMessage("You manage your classroom well.")})
		text, degraded := newTestJudge(mock).Summarize(context.Background(), NarrativeInput{
			Aggregation:     agg,
			Recommendations: []string{"MPD-SE-01"},
		})
		assert.False(t, degraded)
		assert.Equal(t, "You manage your classroom well.", text)
		assert.Nil(t, mock.Calls[0].Schema)
		assert.Contains(t, mock.Calls[0].Messages[0].Content, "MPD-SE-01")
	})

	t.Run("empty narrative is retried then templated", func(t *testing.T) {
		blank := llm.MockResponse{Content: json.RawMessage("  ")}
		mock := llm.NewMockProvider(blank, blank, blank)
		text, degraded := newTestJudge(mock).Summarize(context.Background(), NarrativeInput{Aggregation: agg})
		assert.True(t, degraded)
		assert.Equal(t, TemplateNarrative(agg), text)
		assert.True(t, strings.Contains(text, "Classroom Management"))
		assert.True(t, strings.Contains(text, "Student Engagement"))
	})
}

func TestTemplateNarrative_NoDomains(t *testing.T) {
	text := TemplateNarrative(Aggregate(nil, DefaultStrengthThreshold))
	assert.Contains(t, text, "Beginner")
	assert.Contains(t, text, "none identified")
}

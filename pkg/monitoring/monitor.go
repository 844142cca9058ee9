package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// EvaluationsTotal counts EvaluateAndSave outcomes by label.
	EvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_evaluations_total",
			Help: "Attempt evaluations by outcome",
		},
		[]string{"outcome"},
	)

	EvaluationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "assessment_evaluation_duration_seconds",
			Help:    "Wall time of a full attempt evaluation",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
	)

	// JudgeCalls counts judgment calls by purpose (answer, narrative) and
	// outcome (ok, fallback).
	JudgeCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "judge_calls_total",
			Help: "Judgment service calls by purpose and outcome",
		},
		[]string{"purpose", "outcome"},
	)

	// JudgeFailures separates malformed output from transport failures.
	JudgeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "judge_failures_total",
			Help: "Failed judgment attempts by kind",
		},
		[]string{"purpose", "kind"},
	)

	TranscriptionFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "transcription_failures_total",
			Help: "Media answers that could not be transcribed",
		},
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "Latency of individual LLM provider requests",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"model", "purpose", "success"},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			EvaluationsTotal,
			EvaluationDuration,
			JudgeCalls,
			JudgeFailures,
			TranscriptionFailures,
			LLMRequestDuration,
		)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

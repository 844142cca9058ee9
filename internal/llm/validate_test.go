package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateResponse(t *testing.T) {
	tests := []struct {
		name    string
		schema  *Schema
		raw     string
		wantErr bool
	}{
		{"nil schema accepts text", nil, "plain text", false},
		{"valid object", scoreSchema, `{"score":1.5,"feedback":"ok"}`, false},
		{"not json", scoreSchema, `score: 2`, true},
		{"missing field", scoreSchema, `{"score":2}`, true},
		{"extra field", scoreSchema, `{"score":2,"feedback":"x","extra":true}`, true},
		{"wrong type", scoreSchema, `{"score":"2","feedback":"x"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateResponse(tt.schema, json.RawMessage(tt.raw))
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			var inv *ErrInvalidResponse
			require.True(t, errors.As(err, &inv))
		})
	}
}

func TestMockProvider(t *testing.T) {
	mock := NewMockProvider(
		MockResponse{Content: json.RawMessage(`{"score":1,"feedback":"ok"}`)},
		MockResponse{Err: &ErrRateLimit{}},
	)

	req := UserPrompt("sys", "user")
	req.Schema = scoreSchema

	resp, err := mock.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "mock", resp.Model)

	_, err = mock.Generate(context.Background(), req)
	var rl *ErrRateLimit
	assert.True(t, errors.As(err, &rl))

	_, err = mock.Generate(context.Background(), req)
	var unavail *ErrProviderUnavailable
	assert.True(t, errors.As(err, &unavail))

	assert.Equal(t, 3, mock.CallCount())
	assert.Equal(t, "user", mock.Calls[0].Messages[0].Content)
}

func TestPurposeContext(t *testing.T) {
	assert.Equal(t, "unknown", PurposeFrom(context.Background()))
	ctx := WithPurpose(context.Background(), "answer-judgment")
	assert.Equal(t, "answer-judgment", PurposeFrom(ctx))
}

package verifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TomBraudo/windows-assistant/api/schemas"
)

type mockLLM struct {
	mock.Mock
}

func (m *mockLLM) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockLLM) Close() error { return m.Called().Error(0) }

func summaries() (schemas.ObservationSummary, schemas.ObservationSummary) {
	pre := schemas.ObservationSummary{DisplayID: 0, ElementCount: 1, Elements: []schemas.Element{
		{ID: 0, Kind: schemas.ElementIcon, Description: "Chrome"},
	}}
	post := schemas.ObservationSummary{DisplayID: 0, ElementCount: 2, Elements: []schemas.Element{
		{ID: 0, Kind: schemas.ElementText, Description: "New Tab"},
	}}
	return pre, post
}

func TestVerifyUsesFastTier(t *testing.T) {
	llm := new(mockLLM)
	llm.On("Generate", mock.Anything, mock.MatchedBy(func(r schemas.GenerationRequest) bool {
		return r.Tier == schemas.TierFast
	})).Return(`{"verdict":"confirmed","reason":"new tab visible"}`, nil)

	v := NewLLMVerifier(llm, zap.NewNop())
	pre, post := summaries()
	verdict, err := v.Verify(context.Background(), pre, post, schemas.ActionIntent{Kind: schemas.ActionPointerClick})
	require.NoError(t, err)
	assert.Equal(t, schemas.VerdictConfirmed, verdict)
	llm.AssertExpectations(t)
}

func TestVerifyMalformedResponseDegradesToUnconfirmed(t *testing.T) {
	for _, raw := range []string{
		`the action definitely worked`,
		`{"verdict":"probably"}`,
		`{}`,
	} {
		llm := new(mockLLM)
		llm.On("Generate", mock.Anything, mock.Anything).Return(raw, nil)

		v := NewLLMVerifier(llm, zap.NewNop())
		pre, post := summaries()
		verdict, err := v.Verify(context.Background(), pre, post, schemas.ActionIntent{Kind: schemas.ActionKeyPress})
		require.NoError(t, err, "input: %s", raw)
		assert.Equal(t, schemas.VerdictUnconfirmed, verdict, "input: %s", raw)
	}
}

func TestVerifyTransportFailureDegradesToUnconfirmed(t *testing.T) {
	llm := new(mockLLM)
	llm.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("connection refused"))

	v := NewLLMVerifier(llm, zap.NewNop())
	pre, post := summaries()
	verdict, err := v.Verify(context.Background(), pre, post, schemas.ActionIntent{Kind: schemas.ActionScroll})
	require.NoError(t, err)
	assert.Equal(t, schemas.VerdictUnconfirmed, verdict)
}

func TestVerifyContradicted(t *testing.T) {
	llm := new(mockLLM)
	llm.On("Generate", mock.Anything, mock.Anything).Return("```json\n{\"verdict\":\"contradicted\",\"reason\":\"screen unchanged\"}\n```", nil)

	v := NewLLMVerifier(llm, zap.NewNop())
	pre, post := summaries()
	verdict, err := v.Verify(context.Background(), pre, post, schemas.ActionIntent{Kind: schemas.ActionPointerClick})
	require.NoError(t, err)
	assert.Equal(t, schemas.VerdictContradicted, verdict)
}

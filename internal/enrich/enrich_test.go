package enrich

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pricelist-cli/internal/cache"
	"github.com/sells-group/pricelist-cli/internal/cost"
	"github.com/sells-group/pricelist-cli/internal/model"
	"github.com/sells-group/pricelist-cli/internal/resilience"
	"github.com/sells-group/pricelist-cli/pkg/anthropic"
	"github.com/sells-group/pricelist-cli/pkg/anthropic/mocks"
)

const testModel = "claude-haiku-4-5-20251001"

func testRequest() Request {
	return Request{ModelCode: "TUNDRA_LT_600", Brand: "Ski-Doo", ModelYear: 2024, Price: 14999}
}

func fastPolicy() resilience.Policy {
	return resilience.Policy{Service: "anthropic", Attempts: 3, Backoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func reply(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 1000, OutputTokens: 200},
	}
}

func TestAnthropicEnricher_Enrich(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == testModel && len(req.Messages) == 1 &&
			assert.Contains(t, req.Messages[0].Content, "TUNDRA_LT_600")
	})).Return(reply("```json\n"+`{"model_name":"Tundra LT 600","category":"utility","specifications":{"engine":{"displacement_cc":599.4}}}`+"\n```"), nil).Once()

	e := NewAnthropicEnricher(client, AnthropicConfig{Model: testModel}, nil, cost.NewCalculator(cost.DefaultRates()), fastPolicy(), nil)
	res, err := e.Enrich(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "Tundra LT 600", res.ModelName)
	assert.Equal(t, "utility", res.Category)
	cc, ok := res.Specifications.Float("engine", "displacement_cc")
	require.True(t, ok)
	assert.InDelta(t, 599.4, cc, 1e-9)

	assert.Equal(t, 1, res.Usage.Calls)
	assert.Equal(t, int64(1000), res.Usage.InputTokens)
	assert.Equal(t, int64(200), res.Usage.OutputTokens)
	assert.InDelta(t, 0.001+0.001, res.Usage.CostUSD, 1e-9)
}

func TestAnthropicEnricher_RetriesTransient(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, resilience.NewTransientError(errors.New("overloaded"), 529)).Once()
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(reply(`{"model_name":"Tundra LT"}`), nil).Once()

	e := NewAnthropicEnricher(client, AnthropicConfig{Model: testModel}, nil, nil, fastPolicy(), nil)
	res, err := e.Enrich(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Usage.Calls)
	assert.NotNil(t, res.Specifications)
	assert.Zero(t, res.Usage.CostUSD)
}

func TestAnthropicEnricher_PermanentFailure(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("invalid api key")).Once()

	e := NewAnthropicEnricher(client, AnthropicConfig{Model: testModel}, nil, nil, fastPolicy(), nil)
	_, err := e.Enrich(context.Background(), testRequest())
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestAnthropicEnricher_BadReply(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(reply("I cannot identify this model."), nil).Once()

	e := NewAnthropicEnricher(client, AnthropicConfig{Model: testModel}, nil, nil, fastPolicy(), nil)
	_, err := e.Enrich(context.Background(), testRequest())
	assert.ErrorContains(t, err, "no JSON object")
}

func TestAnthropicEnricher_BudgetTooSmall(t *testing.T) {
	client := mocks.NewMockClient(t)
	e := NewAnthropicEnricher(client, AnthropicConfig{Model: testModel, MaxTokens: 1024}, NewTokenBudget(100), nil, fastPolicy(), nil)

	_, err := e.Enrich(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrRateLimitExceeded)
	client.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestParseResult(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{name: "plain", text: `{"model_name":"MXZ X"}`},
		{name: "prose around", text: "Here you go:\n{\"model_name\":\"MXZ X\",\"category\":\"trail\"}\nThanks"},
		{name: "no object", text: "nothing", wantErr: true},
		{name: "bad json", text: `{"model_name":}`, wantErr: true},
		{name: "missing name", text: `{"category":"trail"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := parseResult(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "MXZ X", res.ModelName)
		})
	}
}

func TestTokenBudget(t *testing.T) {
	ctx := context.Background()

	unlimited := NewTokenBudget(0)
	require.NoError(t, unlimited.Acquire(ctx, 1_000_000))

	b := NewTokenBudget(6000)
	assert.ErrorIs(t, b.Acquire(ctx, 6001), ErrRateLimitExceeded)
	require.NoError(t, b.Acquire(ctx, 6000))
	require.NoError(t, b.Acquire(ctx, 0))

	// 100 tokens/s: 20 more tokens need ~200ms.
	start := time.Now()
	require.NoError(t, b.Acquire(ctx, 20))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Acquire(short, 3000), ErrRateLimitExceeded)
}

type countingEnricher struct {
	calls atomic.Int32
	err   error
}

func (c *countingEnricher) Enrich(_ context.Context, req Request) (*Result, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return &Result{ModelName: req.ModelCode, Usage: model.ExternalUsage{Calls: 1}}, nil
}

func TestCachedEnricher(t *testing.T) {
	ctx := context.Background()
	inner := &countingEnricher{}
	c := cache.NewMemoryClient()
	e := NewCachedEnricher(inner, c, time.Hour)

	first, err := e.Enrich(ctx, testRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Usage.Calls)

	second, err := e.Enrich(ctx, testRequest())
	require.NoError(t, err)
	assert.Equal(t, "TUNDRA_LT_600", second.ModelName)
	assert.Zero(t, second.Usage.Calls)
	assert.Equal(t, int32(1), inner.calls.Load())

	require.NoError(t, c.Set(ctx, CacheKey(testRequest()), []byte("not json"), 0))
	_, err = e.Enrich(ctx, testRequest())
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestCachedEnricher_PropagatesFailure(t *testing.T) {
	inner := &countingEnricher{err: errors.New("boom")}
	e := NewCachedEnricher(inner, cache.NewMemoryClient(), time.Hour)

	_, err := e.Enrich(context.Background(), testRequest())
	assert.EqualError(t, err, "boom")
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "enrich:SKI-DOO:2024:TUNDRA_LT_600", CacheKey(testRequest()))
	assert.Equal(t, CacheKey(Request{Brand: "ski-doo", ModelYear: 2024, ModelCode: " tundra_lt_600 "}), CacheKey(testRequest()))
}

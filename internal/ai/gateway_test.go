package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/steveyegge/diyqa/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIGateway_Complete(t *testing.T) {
	var got struct {
		Model       string  `json:"model"`
		Temperature float64 `json:"temperature"`
		MaxTokens   int     `json:"max_tokens"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"gpt-3.5-turbo",
			"choices":[{"index":0,"message":{"role":"assistant","content":"  1\n"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":12,"completion_tokens":1,"total_tokens":13}}`))
	}))
	defer srv.Close()

	g, err := NewOpenAIGateway(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	resp, err := g.Complete(context.Background(), Request{
		System:      "You are an expert DIY repair evaluator. Respond with only 0 or 1.",
		User:        "Rate this",
		Temperature: 0.1,
		MaxTokens:   10,
		Operation:   "judge",
	})
	require.NoError(t, err)

	assert.Equal(t, "1", resp.Text)
	assert.Equal(t, int64(12), resp.InputTokens)
	assert.Equal(t, int64(1), resp.OutputTokens)

	assert.Equal(t, DefaultOpenAIModel, got.Model)
	assert.InDelta(t, 0.1, got.Temperature, 1e-6)
	assert.Equal(t, 10, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
}

func TestOpenAIGateway_ServerErrorIsGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	g, err := NewOpenAIGateway(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	_, err = g.Complete(context.Background(), Request{User: "x", Operation: "generation"})
	var ge *GatewayError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "openai", ge.Provider)
	assert.Equal(t, "generation", ge.Operation)
	assert.True(t, isRetriableError(err))
}

func TestMissingCredentialSurfacesOnFirstCall(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	oa, err := NewOpenAIGateway(OpenAIConfig{})
	require.NoError(t, err)
	_, err = oa.Complete(context.Background(), Request{User: "x"})
	assert.ErrorIs(t, err, ErrMissingCredential)

	an, err := NewAnthropicGateway(AnthropicConfig{})
	require.NoError(t, err)
	_, err = an.Complete(context.Background(), Request{User: "x"})
	assert.ErrorIs(t, err, ErrMissingCredential)
}

func TestDefaultIsBuiltOnce(t *testing.T) {
	builds := 0
	stub := GatewayFunc(func(ctx context.Context, req Request) (*Response, error) {
		return &Response{Text: "stub"}, nil
	})
	SetDefaultFactory(func() (Gateway, error) {
		builds++
		return stub, nil
	})
	t.Cleanup(func() {
		SetDefaultFactory(func() (Gateway, error) { return NewOpenAIGateway(OpenAIConfig{}) })
	})

	for i := 0; i < 3; i++ {
		g, err := Default()
		require.NoError(t, err)
		resp, err := g.Complete(context.Background(), Request{})
		require.NoError(t, err)
		assert.Equal(t, "stub", resp.Text)
	}
	assert.Equal(t, 1, builds)
}

type fakeTracker struct {
	allow    bool
	recorded map[string][2]int64
}

func (f *fakeTracker) CanProceed(key string) (bool, string) {
	if f.allow {
		return true, ""
	}
	return false, "hourly token budget exceeded"
}

func (f *fakeTracker) RecordUsage(ctx context.Context, key string, in, out int64) error {
	if f.recorded == nil {
		f.recorded = map[string][2]int64{}
	}
	prev := f.recorded[key]
	f.recorded[key] = [2]int64{prev[0] + in, prev[1] + out}
	return nil
}

func TestBudgetGateway(t *testing.T) {
	next := GatewayFunc(func(ctx context.Context, req Request) (*Response, error) {
		return &Response{Text: "answer text"}, nil
	})
	words := func(model, text string) int { return len(text) }

	t.Run("records estimated usage when provider reports none", func(t *testing.T) {
		tr := &fakeTracker{allow: true}
		g := NewBudgetGateway(next, tr, words, "gpt-3.5-turbo", nil)
		_, err := g.Complete(context.Background(), Request{System: "sys", User: "user", Operation: "judge"})
		require.NoError(t, err)
		assert.Equal(t, [2]int64{7, 11}, tr.recorded["judge"])
	})

	t.Run("refuses when budget exhausted", func(t *testing.T) {
		tr := &fakeTracker{allow: false}
		g := NewBudgetGateway(next, tr, words, "m", nil)
		_, err := g.Complete(context.Background(), Request{Operation: "correction"})
		assert.ErrorIs(t, err, ErrBudgetExceeded)
		var ge *GatewayError
		assert.ErrorAs(t, err, &ge)
		assert.Empty(t, tr.recorded)
	})
}

func TestInstrumentedGateway(t *testing.T) {
	m := metrics.New()
	ok := NewInstrumentedGateway(GatewayFunc(func(ctx context.Context, req Request) (*Response, error) {
		return &Response{Text: "0", InputTokens: 5, OutputTokens: 1}, nil
	}), m, nil)
	bad := NewInstrumentedGateway(GatewayFunc(func(ctx context.Context, req Request) (*Response, error) {
		return nil, errors.New("boom")
	}), m, nil)

	_, err := ok.Complete(context.Background(), Request{Operation: "judge"})
	require.NoError(t, err)
	_, err = bad.Complete(context.Background(), Request{Operation: "judge"})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.GatewayRequests.WithLabelValues("judge", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GatewayRequests.WithLabelValues("judge", "error")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.GatewayTokens.WithLabelValues("judge", "input")))
}

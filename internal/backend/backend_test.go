package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"llmc/internal/errs"
)

func TestLocalClientGenerateSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/generate", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("{\"response\":\"```json\\n{\\\"summary\\\":\\\"ok\\\"}\\n```\",\"done\":true,\"eval_count\":5,\"prompt_eval_count\":10}"))
	}))
	defer server.Close()

	c := NewLocalClient(LocalConfig{Tier: "local_small", Model: "qwen2.5-coder:3b", BaseURL: server.URL}, nil)
	require.Equal(t, "local_small", c.Tier())

	res, err := c.Generate(context.Background(), "summarize this", Params{})
	require.NoError(t, err)
	require.Equal(t, `{"summary":"ok"}`, res.Text)
	require.Equal(t, 5, res.TokensOut)
	require.Equal(t, 10, res.TokensIn)
}

func TestLocalClientGenerate5xxClassifiesBackendHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`boom`))
	}))
	defer server.Close()

	c := NewLocalClient(LocalConfig{Tier: "local_small", BaseURL: server.URL}, nil)
	_, err := c.Generate(context.Background(), "x", Params{})
	require.Error(t, err)
	require.Equal(t, errs.BackendHTTP, errs.KindOf(err))
}

func TestOpenAIClientGenerateSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}],"usage":{"prompt_tokens":3,"completion_tokens":1}}`))
	}))
	defer server.Close()

	c := NewOpenAIClient(OpenAIConfig{Tier: "remote_cheap", Model: "gpt-4o-mini", BaseURL: server.URL, APIKey: "test-key"}, nil)
	res, err := c.Generate(context.Background(), "hi", Params{})
	require.NoError(t, err)
	require.Equal(t, "hello", res.Text)
	require.Equal(t, 3, res.TokensIn)
	require.Equal(t, 1, res.TokensOut)
}

func TestOpenAIClientMissingAPIKey(t *testing.T) {
	c := NewOpenAIClient(OpenAIConfig{Tier: "remote_cheap", Model: "gpt-4o-mini", BaseURL: "http://unused"}, nil)
	_, err := c.Generate(context.Background(), "hi", Params{})
	require.Error(t, err)
}

func TestStripCodeFenceVariants(t *testing.T) {
	require.Equal(t, `{"a":1}`, StripCodeFence("```json\n{\"a\":1}\n```"))
	require.Equal(t, `{"a":1}`, StripCodeFence("```\n{\"a\":1}\n```"))
	require.Equal(t, `{"a":1}`, StripCodeFence(`{"a":1}`))
}

func TestParseJSONEmptyCompletionIsBackendParse(t *testing.T) {
	var v map[string]any
	err := ParseJSON("test.op", "   ", &v)
	require.Error(t, err)
	require.Equal(t, errs.BackendParse, errs.KindOf(err))
}

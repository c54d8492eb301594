package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"storyteller-server/internal/config"
	"storyteller-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testRequest() Request {
	return Request{SystemPrompt: SystemPrompt, Prompt: "講一個小兔子的故事", Params: DefaultParams()}
}

// fakeProvider отдает заранее заданный ответ и запоминает тело запроса.
type fakeProvider struct {
	status   int
	body     string
	lastPath string
	lastBody string
}

func (f *fakeProvider) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		f.lastPath = r.URL.Path
		f.lastBody = string(data)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(f.body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	require.NotNil(t, p.Temperature)
	require.NotNil(t, p.TopP)
	require.NotNil(t, p.TopK)
	assert.Equal(t, float32(1), *p.Temperature)
	assert.Equal(t, float32(0.95), *p.TopP)
	assert.Equal(t, float32(64), *p.TopK)
	assert.Equal(t, int32(8192), p.MaxTokens)
	assert.True(t, p.JSONResponse)
}

func TestGeminiClient(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantTxt string
		check   func(t *testing.T, err error)
	}{
		{
			name:    "success",
			status:  http.StatusOK,
			body:    `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"text_content\":\"從前從前\"}"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":10,"candidatesTokenCount":5,"totalTokenCount":15}}`,
			wantTxt: `{"text_content":"從前從前"}`,
		},
		{
			name:   "blocked",
			status: http.StatusOK,
			body:   `{"promptFeedback":{"blockReason":"SAFETY"}}`,
			check: func(t *testing.T, err error) {
				var blocked *models.PromptBlockedError
				require.ErrorAs(t, err, &blocked)
				assert.Equal(t, "SAFETY", blocked.Reason)
			},
		},
		{
			name:   "no candidates",
			status: http.StatusOK,
			body:   `{"candidates":[]}`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, models.ErrAIEmptyResponse)
			},
		},
		{
			name:   "upstream error",
			status: http.StatusBadRequest,
			body:   `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, models.ErrAIGenerationFailed)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeProvider{status: tt.status, body: tt.body}
			srv := fake.server(t)

			client, err := NewGeminiClient(context.Background(), GeminiConfig{
				APIKey:     "test-key",
				Model:      "gemini-2.0-flash",
				BaseURL:    srv.URL + "/",
				HTTPClient: srv.Client(),
			}, zap.NewNop())
			require.NoError(t, err)
			assert.Equal(t, ProviderGemini, client.Provider())
			assert.Equal(t, "gemini-2.0-flash", client.Model())

			resp, err := client.Generate(context.Background(), testRequest())
			assert.True(t, strings.HasSuffix(fake.lastPath, "gemini-2.0-flash:generateContent"), fake.lastPath)
			if tt.check != nil {
				require.Error(t, err)
				tt.check(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTxt, resp.Text)
			assert.Equal(t, Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, resp.Usage)
			assert.Contains(t, fake.lastBody, "text_content")
			assert.Contains(t, fake.lastBody, "application/json")
		})
	}
}

func TestNewGeminiClient_RequiresKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), GeminiConfig{}, zap.NewNop())
	assert.Error(t, err)
}

func TestOpenAIClient(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		fake := &fakeProvider{status: http.StatusOK, body: `{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"text_content\":\"hi\"}"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":4,"total_tokens":7}}`}
		srv := fake.server(t)
		client := NewOpenAIClient(OpenAIConfig{APIKey: "k", Model: "gpt-4o-mini", BaseURL: srv.URL + "/v1"}, zap.NewNop())

		resp, err := client.Generate(context.Background(), testRequest())
		require.NoError(t, err)
		assert.Equal(t, `{"text_content":"hi"}`, resp.Text)
		assert.Equal(t, 7, resp.Usage.TotalTokens)
		assert.Equal(t, "/v1/chat/completions", fake.lastPath)

		var sent struct {
			Model          string `json:"model"`
			ResponseFormat struct {
				Type string `json:"type"`
			} `json:"response_format"`
			Messages []struct {
				Role string `json:"role"`
			} `json:"messages"`
		}
		require.NoError(t, json.Unmarshal([]byte(fake.lastBody), &sent))
		assert.Equal(t, "gpt-4o-mini", sent.Model)
		assert.Equal(t, "json_object", sent.ResponseFormat.Type)
		require.Len(t, sent.Messages, 2)
		assert.Equal(t, "system", sent.Messages[0].Role)
	})

	t.Run("content filter", func(t *testing.T) {
		fake := &fakeProvider{status: http.StatusOK, body: `{"choices":[{"index":0,"message":{"role":"assistant","content":""},"finish_reason":"content_filter"}]}`}
		srv := fake.server(t)
		client := NewOpenAIClient(OpenAIConfig{APIKey: "k", Model: "gpt-4o-mini", BaseURL: srv.URL}, zap.NewNop())

		_, err := client.Generate(context.Background(), testRequest())
		var blocked *models.PromptBlockedError
		require.ErrorAs(t, err, &blocked)
		assert.Equal(t, "content_filter", blocked.Reason)
	})

	t.Run("empty", func(t *testing.T) {
		fake := &fakeProvider{status: http.StatusOK, body: `{"choices":[]}`}
		srv := fake.server(t)
		client := NewOpenAIClient(OpenAIConfig{APIKey: "k", Model: "m", BaseURL: srv.URL}, zap.NewNop())

		_, err := client.Generate(context.Background(), testRequest())
		assert.ErrorIs(t, err, models.ErrAIEmptyResponse)
	})

	t.Run("upstream error", func(t *testing.T) {
		fake := &fakeProvider{status: http.StatusUnauthorized, body: `{"error":{"message":"bad key","type":"invalid_request_error"}}`}
		srv := fake.server(t)
		client := NewOpenAIClient(OpenAIConfig{APIKey: "k", Model: "m", BaseURL: srv.URL}, zap.NewNop())

		_, err := client.Generate(context.Background(), testRequest())
		assert.ErrorIs(t, err, models.ErrAIGenerationFailed)
	})
}

func TestOllamaClient(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		fake := &fakeProvider{status: http.StatusOK, body: `{"model":"llama3","created_at":"2024-01-01T00:00:00Z","message":{"role":"assistant","content":"{\"text_content\":\"ok\"}"},"done":true,"done_reason":"stop","prompt_eval_count":5,"eval_count":7}`}
		srv := fake.server(t)
		client, err := NewOllamaClient(OllamaConfig{BaseURL: srv.URL + "/v1/", Model: "llama3"}, zap.NewNop())
		require.NoError(t, err)

		resp, err := client.Generate(context.Background(), testRequest())
		require.NoError(t, err)
		assert.Equal(t, `{"text_content":"ok"}`, resp.Text)
		assert.Equal(t, Usage{PromptTokens: 5, CompletionTokens: 7, TotalTokens: 12}, resp.Usage)
		assert.Equal(t, "/api/chat", fake.lastPath)
		assert.Contains(t, fake.lastBody, `"format":"json"`)
		assert.Contains(t, fake.lastBody, `"num_predict":8192`)
	})

	t.Run("empty", func(t *testing.T) {
		fake := &fakeProvider{status: http.StatusOK, body: `{"model":"llama3","message":{"role":"assistant","content":""},"done":true}`}
		srv := fake.server(t)
		client, err := NewOllamaClient(OllamaConfig{BaseURL: srv.URL, Model: "llama3"}, zap.NewNop())
		require.NoError(t, err)

		_, err = client.Generate(context.Background(), testRequest())
		assert.ErrorIs(t, err, models.ErrAIEmptyResponse)
	})

	t.Run("upstream error", func(t *testing.T) {
		fake := &fakeProvider{status: http.StatusNotFound, body: `{"error":"model 'llama3' not found"}`}
		srv := fake.server(t)
		client, err := NewOllamaClient(OllamaConfig{BaseURL: srv.URL, Model: "llama3"}, zap.NewNop())
		require.NoError(t, err)

		_, err = client.Generate(context.Background(), testRequest())
		assert.ErrorIs(t, err, models.ErrAIGenerationFailed)
	})

	t.Run("requires base url", func(t *testing.T) {
		_, err := NewOllamaClient(OllamaConfig{}, zap.NewNop())
		assert.Error(t, err)
	})
}

func TestNewClient_Factory(t *testing.T) {
	ctx := context.Background()
	base := config.Config{AIAPIKey: "k", AIModel: "m", AIBaseURL: "http://localhost:11434", AITimeout: time.Second}

	for _, provider := range []string{ProviderGemini, ProviderOpenAI, ProviderOllama} {
		cfg := base
		cfg.AIClientType = strings.ToUpper(provider)
		client, err := NewClient(ctx, &cfg, zap.NewNop())
		require.NoError(t, err, provider)
		assert.Equal(t, provider, client.Provider())
	}

	cfg := base
	cfg.AIClientType = "claude"
	_, err := NewClient(ctx, &cfg, zap.NewNop())
	assert.Error(t, err)
	assert.False(t, errors.Is(err, models.ErrAIGenerationFailed))
}

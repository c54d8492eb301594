package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storyteller-server/internal/models"

	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

// OllamaConfig настройки локального Ollama.
type OllamaConfig struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

type ollamaClient struct {
	client *api.Client
	model  string
	logger *zap.Logger
}

// NewOllamaClient создает клиента нативного API Ollama.
func NewOllamaClient(cfg OllamaConfig, logger *zap.Logger) (Client, error) {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	baseURL = strings.TrimSuffix(baseURL, "/v1") // OpenAI-совместимый суффикс не нужен
	if baseURL == "" {
		return nil, errors.New("ollama base URL is required")
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга Ollama Base URL '%s': %w", baseURL, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	logger.Info("Ollama клиент создан", zap.String("base_url", baseURL), zap.String("model", cfg.Model))
	return &ollamaClient{
		client: api.NewClient(parsedURL, httpClient),
		model:  cfg.Model,
		logger: logger.Named("ollama_client"),
	}, nil
}

func (c *ollamaClient) Provider() string { return ProviderOllama }
func (c *ollamaClient) Model() string    { return c.model }

func (c *ollamaClient) Generate(ctx context.Context, req Request) (*Response, error) {
	messages := make([]api.Message, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, api.Message{Role: "user", Content: req.Prompt})

	options := map[string]interface{}{}
	if req.Params.Temperature != nil {
		options["temperature"] = *req.Params.Temperature
	}
	if req.Params.TopP != nil {
		options["top_p"] = *req.Params.TopP
	}
	if req.Params.TopK != nil {
		options["top_k"] = int(*req.Params.TopK)
	}
	if req.Params.MaxTokens > 0 {
		options["num_predict"] = req.Params.MaxTokens
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}
	if req.Params.JSONResponse {
		chatReq.Format = json.RawMessage(`"json"`)
	}

	start := time.Now()
	var resp api.ChatResponse
	err := c.client.Chat(ctx, chatReq, func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	duration := time.Since(start)
	if err != nil {
		c.logger.Error("Ollama request failed", zap.Duration("duration", duration), zap.Error(err))
		observe(ProviderOllama, c.model, "error", duration, Usage{})
		return nil, fmt.Errorf("%w: %v", models.ErrAIGenerationFailed, err)
	}

	usage := Usage{
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
		TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
	}

	if resp.Message.Content == "" {
		observe(ProviderOllama, c.model, "empty", duration, usage)
		return nil, models.ErrAIEmptyResponse
	}

	observe(ProviderOllama, c.model, "success", duration, usage)
	c.logger.Debug("Ollama response received",
		zap.Duration("duration", duration),
		zap.Int("length", len(resp.Message.Content)),
		zap.String("done_reason", resp.DoneReason),
	)
	return &Response{Text: resp.Message.Content, Usage: usage}, nil
}

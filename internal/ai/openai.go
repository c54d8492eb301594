package ai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"storyteller-server/internal/models"

	"github.com/pkoukk/tiktoken-go"
	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIConfig настройки OpenAI-совместимого API (OpenAI, OpenRouter, vLLM и т.п.).
type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

type openAIClient struct {
	client *openaigo.Client
	model  string
	logger *zap.Logger
}

// NewOpenAIClient создает клиента OpenAI-совместимого API.
func NewOpenAIClient(cfg OpenAIConfig, logger *zap.Logger) Client {
	openaiConfig := openaigo.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		openaiConfig.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		openaiConfig.HTTPClient = cfg.HTTPClient
	}

	logger.Info("OpenAI клиент создан", zap.String("base_url", openaiConfig.BaseURL), zap.String("model", cfg.Model))
	return &openAIClient{
		client: openaigo.NewClientWithConfig(openaiConfig),
		model:  cfg.Model,
		logger: logger.Named("openai_client"),
	}
}

func (c *openAIClient) Provider() string { return ProviderOpenAI }
func (c *openAIClient) Model() string    { return c.model }

func (c *openAIClient) Generate(ctx context.Context, req Request) (*Response, error) {
	messages := make([]openaigo.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openaigo.ChatCompletionMessage{
			Role:    openaigo.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openaigo.ChatCompletionMessage{
		Role:    openaigo.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	chatReq := openaigo.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32Val(req.Params.Temperature),
		TopP:        float32Val(req.Params.TopP),
		MaxTokens:   int(req.Params.MaxTokens),
	}
	if req.Params.JSONResponse {
		chatReq.ResponseFormat = &openaigo.ChatCompletionResponseFormat{
			Type: openaigo.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	duration := time.Since(start)
	if err != nil {
		c.logger.Error("OpenAI request failed", zap.Duration("duration", duration), zap.Error(err))
		observe(ProviderOpenAI, c.model, "error", duration, Usage{})
		return nil, fmt.Errorf("%w: %v", models.ErrAIGenerationFailed, err)
	}

	if len(resp.Choices) > 0 && resp.Choices[0].FinishReason == openaigo.FinishReasonContentFilter {
		observe(ProviderOpenAI, c.model, "blocked", duration, Usage{})
		return nil, &models.PromptBlockedError{Reason: string(openaigo.FinishReasonContentFilter)}
	}

	usage := Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		observe(ProviderOpenAI, c.model, "empty", duration, usage)
		return nil, models.ErrAIEmptyResponse
	}
	text := resp.Choices[0].Message.Content

	// Некоторые совместимые сервера не присылают usage
	if usage.TotalTokens == 0 {
		usage = c.estimateUsage(req, text)
	}

	observe(ProviderOpenAI, c.model, "success", duration, usage)
	c.logger.Debug("OpenAI response received",
		zap.Duration("duration", duration),
		zap.Int("length", len(text)),
		zap.Int("total_tokens", usage.TotalTokens),
	)
	return &Response{Text: text, Usage: usage}, nil
}

// estimateUsage считает токены локально через tiktoken. Пустой Usage, если модель неизвестна.
func (c *openAIClient) estimateUsage(req Request, completion string) Usage {
	tke, err := tiktoken.EncodingForModel(c.model)
	if err != nil {
		c.logger.Debug("No tokenizer for model, skipping token estimate", zap.Error(err))
		return Usage{}
	}
	prompt := len(tke.Encode(req.SystemPrompt, nil, nil)) + len(tke.Encode(req.Prompt, nil, nil))
	out := len(tke.Encode(completion, nil, nil))
	return Usage{PromptTokens: prompt, CompletionTokens: out, TotalTokens: prompt + out}
}

func float32Val(f *float32) float32 {
	if f == nil {
		return 0 // 0 означает дефолт API
	}
	return *f
}

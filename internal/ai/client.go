// Package ai содержит клиентов генеративных моделей для прокси промптов.
package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"storyteller-server/internal/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Провайдеры
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// SystemPrompt системная инструкция: модель обязана вернуть JSON с полем text_content.
const SystemPrompt = `You are a helpful assistant for storytelling. Please be concise and precise.
**Your response must always be a valid JSON object with the following structure:

* **text_content:** the generated content.
`

var (
	aiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storyteller_ai_requests_total",
			Help: "Total number of requests to the AI provider.",
		},
		[]string{"provider", "model", "status"},
	)
	aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storyteller_ai_request_duration_seconds",
			Help:    "Histogram of AI provider request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "model"},
	)
	aiTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storyteller_ai_tokens",
			Help:    "Histogram of token counts per request.",
			Buckets: prometheus.ExponentialBuckets(16, 2, 10), // 16 ... 8192
		},
		[]string{"provider", "model", "kind"}, // kind: prompt | completion | total
	)
)

// GenerationParams параметры генерации. nil означает дефолт провайдера.
type GenerationParams struct {
	Temperature  *float32
	TopP         *float32
	TopK         *float32
	MaxTokens    int32
	JSONResponse bool
}

// DefaultParams параметры, с которыми работает прокси промптов.
func DefaultParams() GenerationParams {
	temperature, topP, topK := float32(1), float32(0.95), float32(64)
	return GenerationParams{
		Temperature:  &temperature,
		TopP:         &topP,
		TopK:         &topK,
		MaxTokens:    8192,
		JSONResponse: true,
	}
}

// Request запрос к модели.
type Request struct {
	SystemPrompt string
	Prompt       string
	Params       GenerationParams
}

// Usage расход токенов.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response ответ модели.
type Response struct {
	Text  string
	Usage Usage
}

// Client генеративная модель.
//
// Generate возвращает *models.PromptBlockedError, если провайдер отклонил промпт,
// models.ErrAIEmptyResponse, если текста нет, и ошибку с models.ErrAIGenerationFailed
// при сбое транспорта или провайдера.
//
//go:generate mockery --name Client --output ../mocks --outpkg mocks --structname AIClient --case=underscore
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	Provider() string
	Model() string
}

// NewClient создает клиента по AI_CLIENT_TYPE.
func NewClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Client, error) {
	httpClient := &http.Client{Timeout: cfg.AITimeout}

	switch strings.ToLower(cfg.AIClientType) {
	case ProviderGemini:
		return NewGeminiClient(ctx, GeminiConfig{
			APIKey:     cfg.AIAPIKey,
			Model:      cfg.AIModel,
			BaseURL:    cfg.AIBaseURL,
			HTTPClient: httpClient,
		}, logger)
	case ProviderOpenAI:
		return NewOpenAIClient(OpenAIConfig{
			APIKey:     cfg.AIAPIKey,
			Model:      cfg.AIModel,
			BaseURL:    cfg.AIBaseURL,
			HTTPClient: httpClient,
		}, logger), nil
	case ProviderOllama:
		return NewOllamaClient(OllamaConfig{
			BaseURL:    cfg.AIBaseURL,
			Model:      cfg.AIModel,
			HTTPClient: httpClient,
		}, logger)
	default:
		return nil, fmt.Errorf("неизвестный тип AI клиента: %s", cfg.AIClientType)
	}
}

// observe пишет метрики одного запроса.
func observe(provider, model, status string, duration time.Duration, usage Usage) {
	aiRequestsTotal.With(prometheus.Labels{"provider": provider, "model": model, "status": status}).Inc()
	aiRequestDuration.With(prometheus.Labels{"provider": provider, "model": model}).Observe(duration.Seconds())
	if usage.TotalTokens > 0 {
		aiTokens.With(prometheus.Labels{"provider": provider, "model": model, "kind": "prompt"}).Observe(float64(usage.PromptTokens))
		aiTokens.With(prometheus.Labels{"provider": provider, "model": model, "kind": "completion"}).Observe(float64(usage.CompletionTokens))
		aiTokens.With(prometheus.Labels{"provider": provider, "model": model, "kind": "total"}).Observe(float64(usage.TotalTokens))
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storyteller-server/internal/ai"
	"storyteller-server/internal/models"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Исходы запроса к прокси промптов
const (
	promptOutcomeSuccess       = "success"
	promptOutcomeEmptyPrompt   = "empty_prompt"
	promptOutcomeNotConfigured = "not_configured"
	promptOutcomeBlocked       = "blocked"
	promptOutcomeEmpty         = "empty"
	promptOutcomeMalformed     = "malformed"
	promptOutcomeFailed        = "failed"
)

// PromptService проксирует промпты пользователя к генеративной модели.
type PromptService struct {
	client  ai.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewPromptService создает сервис. client может быть nil: тогда каждый запрос
// завершается models.ErrAINotConfigured. maxRPS <= 0 отключает ограничение.
func NewPromptService(client ai.Client, maxRPS float64, logger *zap.Logger) *PromptService {
	limit := rate.Inf
	burst := 1
	if maxRPS > 0 {
		limit = rate.Limit(maxRPS)
		burst = max(1, int(maxRPS))
	}
	return &PromptService{
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.Named("PromptService"),
	}
}

// Configured сообщает, подключен ли AI провайдер.
func (s *PromptService) Configured() bool {
	return s.client != nil
}

// Complete отправляет промпт модели и возвращает разобранный ответ.
func (s *PromptService) Complete(ctx context.Context, prompt string) (*models.Completion, error) {
	if strings.TrimSpace(prompt) == "" {
		promptRequestsTotal.WithLabelValues(promptOutcomeEmptyPrompt).Inc()
		return nil, models.ErrEmptyPrompt
	}
	if s.client == nil {
		promptRequestsTotal.WithLabelValues(promptOutcomeNotConfigured).Inc()
		return nil, models.ErrAINotConfigured
	}

	log := s.logger.With(zap.String("provider", s.client.Provider()), zap.String("model", s.client.Model()))

	if err := s.limiter.Wait(ctx); err != nil {
		promptRequestsTotal.WithLabelValues(promptOutcomeFailed).Inc()
		log.Warn("Prompt throttled until context end", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", models.ErrAIGenerationFailed, err)
	}

	start := time.Now()
	resp, err := s.client.Generate(ctx, ai.Request{
		SystemPrompt: ai.SystemPrompt,
		Prompt:       prompt,
		Params:       ai.DefaultParams(),
	})
	if err != nil {
		var blocked *models.PromptBlockedError
		switch {
		case errors.As(err, &blocked):
			promptRequestsTotal.WithLabelValues(promptOutcomeBlocked).Inc()
			log.Warn("Prompt blocked by provider", zap.String("reason", blocked.Reason))
			return nil, err
		case errors.Is(err, models.ErrAIEmptyResponse):
			promptRequestsTotal.WithLabelValues(promptOutcomeEmpty).Inc()
			log.Warn("AI returned no text")
			return nil, err
		case errors.Is(err, models.ErrAIGenerationFailed):
			promptRequestsTotal.WithLabelValues(promptOutcomeFailed).Inc()
			log.Error("AI generation failed", zap.Error(err))
			return nil, err
		default:
			promptRequestsTotal.WithLabelValues(promptOutcomeFailed).Inc()
			log.Error("AI generation failed", zap.Error(err))
			return nil, fmt.Errorf("%w: %v", models.ErrAIGenerationFailed, err)
		}
	}

	completion, err := parseCompletion(resp.Text, log)
	if err != nil {
		promptRequestsTotal.WithLabelValues(promptOutcomeMalformed).Inc()
		log.Warn("AI response is not a text_content object", zap.Error(err), zap.Int("length", len(resp.Text)))
		return nil, err
	}

	promptRequestsTotal.WithLabelValues(promptOutcomeSuccess).Inc()
	log.Info("Prompt completed",
		zap.Duration("duration", time.Since(start)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return completion, nil
}

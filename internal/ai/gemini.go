package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"storyteller-server/internal/models"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiConfig настройки Gemini API.
type GeminiConfig struct {
	APIKey     string
	Model      string
	BaseURL    string // Пусто: публичный endpoint Google
	HTTPClient *http.Client
}

type geminiClient struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewGeminiClient создает клиента Gemini API.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	logger.Info("Gemini клиент создан", zap.String("model", cfg.Model), zap.String("base_url", cfg.BaseURL))
	return &geminiClient{
		client: client,
		model:  cfg.Model,
		logger: logger.Named("gemini_client"),
	}, nil
}

func (c *geminiClient) Provider() string { return ProviderGemini }
func (c *geminiClient) Model() string    { return c.model }

func (c *geminiClient) Generate(ctx context.Context, req Request) (*Response, error) {
	genCfg := &genai.GenerateContentConfig{
		Temperature:     req.Params.Temperature,
		TopP:            req.Params.TopP,
		TopK:            req.Params.TopK,
		MaxOutputTokens: req.Params.MaxTokens,
	}
	if req.SystemPrompt != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleModel)
	}
	if req.Params.JSONResponse {
		genCfg.ResponseMIMEType = "application/json"
	}

	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, genCfg)
	duration := time.Since(start)
	if err != nil {
		c.logger.Error("Gemini request failed", zap.Duration("duration", duration), zap.Error(err))
		observe(ProviderGemini, c.model, "error", duration, Usage{})
		return nil, fmt.Errorf("%w: %v", models.ErrAIGenerationFailed, err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		reason := string(resp.PromptFeedback.BlockReason)
		c.logger.Warn("Prompt blocked by Gemini", zap.String("reason", reason))
		observe(ProviderGemini, c.model, "blocked", duration, Usage{})
		return nil, &models.PromptBlockedError{Reason: reason}
	}

	var usage Usage
	if md := resp.UsageMetadata; md != nil {
		usage = Usage{
			PromptTokens:     int(md.PromptTokenCount),
			CompletionTokens: int(md.CandidatesTokenCount),
			TotalTokens:      int(md.TotalTokenCount),
		}
	}

	text := firstCandidateText(resp)
	if text == "" {
		c.logger.Warn("Gemini returned no text", zap.Duration("duration", duration))
		observe(ProviderGemini, c.model, "empty", duration, usage)
		return nil, models.ErrAIEmptyResponse
	}

	observe(ProviderGemini, c.model, "success", duration, usage)
	c.logger.Debug("Gemini response received",
		zap.Duration("duration", duration),
		zap.Int("length", len(text)),
		zap.Int("total_tokens", usage.TotalTokens),
	)
	return &Response{Text: text, Usage: usage}, nil
}

// firstCandidateText текст первой части первого кандидата.
func firstCandidateText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 {
		return ""
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil || len(cand.Content.Parts) == 0 || cand.Content.Parts[0] == nil {
		return ""
	}
	return cand.Content.Parts[0].Text
}

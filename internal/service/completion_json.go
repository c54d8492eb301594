package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"storyteller-server/internal/models"

	"go.uber.org/zap"
)

// parseCompletion достает text_content из ответа модели.
// Снимает только markdown-обертку ```json. Оборванный JSON (лимит токенов) не чинится:
// половина истории отдается клиенту как ErrAIMalformedResponse.
func parseCompletion(raw string, logger *zap.Logger) (*models.Completion, error) {
	cleaned := stripCodeFence(raw)

	completion, err := decodeCompletion(cleaned)
	if err != nil {
		logger.Warn("AI response is not a valid completion object",
			zap.Int("length", len(raw)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", models.ErrAIMalformedResponse, err)
	}
	return completion, nil
}

func decodeCompletion(s string) (*models.Completion, error) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &payload); err != nil {
		return nil, err
	}
	raw, ok := payload["text_content"]
	if !ok {
		return nil, fmt.Errorf("missing text_content field")
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return nil, fmt.Errorf("text_content is not a string: %w", err)
	}
	return &models.Completion{TextContent: text}, nil
}

// stripCodeFence убирает ```json ... ``` вокруг ответа.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:] // язык блока: json, JSON и т.п.
	} else {
		s = strings.TrimPrefix(strings.TrimPrefix(s, "json"), "JSON")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

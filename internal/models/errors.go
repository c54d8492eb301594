package models

import (
	"errors"
	"fmt"
)

var (
	// Хранилище историй
	ErrStoryNotFound      = errors.New("story not found")
	ErrStoriesUnavailable = errors.New("story store unavailable")

	// Агрегация планет
	ErrCycleSuperseded  = errors.New("fetch cycle superseded by a newer one")
	ErrAggregatorClosed = errors.New("planet aggregator closed")
	ErrPlanetNotFound   = errors.New("planet not found")

	// AI прокси
	ErrEmptyPrompt         = errors.New("fill all fields")
	ErrAINotConfigured     = errors.New("AI API key not configured")
	ErrAIEmptyResponse     = errors.New("No response generated")
	ErrAIMalformedResponse = errors.New("Invalid response format from AI")
	ErrAIGenerationFailed  = errors.New("Failed to get a response from AI")
)

// PromptBlockedError промпт отклонен фильтром провайдера.
type PromptBlockedError struct {
	Reason string
}

func (e *PromptBlockedError) Error() string {
	return fmt.Sprintf("Blocked for %s", e.Reason)
}

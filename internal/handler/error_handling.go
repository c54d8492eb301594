package handler

import (
	"context"
	"errors"
	"net/http"

	"storyteller-server/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func handleServiceError(c *gin.Context, err error, logger *zap.Logger) {
	var statusCode int
	var errResp models.ErrorResponse
	var blocked *models.PromptBlockedError

	switch {
	case errors.Is(err, models.ErrEmptyPrompt):
		statusCode = http.StatusBadRequest
		errResp = models.ErrorResponse{Error: models.ErrEmptyPrompt.Error()}
	case errors.As(err, &blocked):
		// Клиент показывает причину блокировки как обычный ответ
		statusCode = http.StatusOK
		errResp = models.ErrorResponse{Error: blocked.Error()}
	case errors.Is(err, models.ErrAINotConfigured):
		statusCode = http.StatusInternalServerError
		errResp = models.ErrorResponse{Error: models.ErrAINotConfigured.Error()}
	case errors.Is(err, models.ErrAIEmptyResponse):
		statusCode = http.StatusInternalServerError
		errResp = models.ErrorResponse{Error: models.ErrAIEmptyResponse.Error()}
	case errors.Is(err, models.ErrAIMalformedResponse):
		statusCode = http.StatusInternalServerError
		errResp = models.ErrorResponse{Error: models.ErrAIMalformedResponse.Error()}
	case errors.Is(err, models.ErrAIGenerationFailed):
		statusCode = http.StatusInternalServerError
		errResp = models.ErrorResponse{Error: models.ErrAIGenerationFailed.Error()}
	case errors.Is(err, models.ErrStoryNotFound):
		statusCode = http.StatusNotFound
		errResp = models.ErrorResponse{Error: "Story not found"}
	case errors.Is(err, models.ErrPlanetNotFound):
		statusCode = http.StatusNotFound
		errResp = models.ErrorResponse{Error: "Planet not found"}
	case errors.Is(err, models.ErrStoriesUnavailable):
		statusCode = http.StatusServiceUnavailable
		errResp = models.ErrorResponse{Error: "Story store is unavailable"}
	case errors.Is(err, models.ErrCycleSuperseded):
		statusCode = http.StatusConflict
		errResp = models.ErrorResponse{Error: "Refresh superseded by a newer one"}
	case errors.Is(err, models.ErrAggregatorClosed):
		statusCode = http.StatusServiceUnavailable
		errResp = models.ErrorResponse{Error: "Service is shutting down"}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		statusCode = http.StatusServiceUnavailable
		errResp = models.ErrorResponse{Error: "Request canceled"}
	default:
		logger.Error("Unhandled internal error in handleServiceError", zap.Error(err))
		statusCode = http.StatusInternalServerError
		errResp = models.ErrorResponse{Error: "An unexpected internal error occurred"}
	}

	c.AbortWithStatusJSON(statusCode, errResp)
}

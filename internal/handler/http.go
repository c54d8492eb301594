package handler

import (
	"context"
	"net/http"
	"strings"

	"storyteller-server/internal/interfaces"
	"storyteller-server/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PlanetService источник снимков планет.
type PlanetService interface {
	State() models.Snapshot
	Refresh(ctx context.Context) (models.Snapshot, error)
	GetPlanetByID(planetID string) (models.PlanetView, error)
	GetPlanetByStoryID(storyID string) (models.PlanetView, error)
	Subscribe() (<-chan models.Snapshot, func())
}

// PromptCompleter проксирует промпт к модели.
type PromptCompleter interface {
	Complete(ctx context.Context, prompt string) (*models.Completion, error)
	// Configured false, если AI провайдер не подключен.
	Configured() bool
}

type StoryHandler struct {
	planets        PlanetService
	stories        interfaces.StoryStore
	prompts        PromptCompleter
	allowedOrigins []string
	logger         *zap.Logger
}

func NewStoryHandler(
	planets PlanetService,
	stories interfaces.StoryStore,
	prompts PromptCompleter,
	allowedOrigins []string,
	logger *zap.Logger,
) *StoryHandler {
	return &StoryHandler{
		planets:        planets,
		stories:        stories,
		prompts:        prompts,
		allowedOrigins: allowedOrigins,
		logger:         logger.Named("StoryHandler"),
	}
}

// RegisterRoutes регистрирует маршруты. promptLimiter ограничивает /api/gemini, может быть nil.
func (h *StoryHandler) RegisterRoutes(router *gin.Engine, promptLimiter gin.HandlerFunc) {
	api := router.Group("/api")
	{
		api.GET("/planets", h.getPlanets)
		api.POST("/planets/refresh", h.refreshPlanets)
		api.GET("/planets/by-story/:storyId", h.getPlanetByStory)
		api.GET("/planets/:planetId", h.getPlanet)
		api.GET("/books", h.getBooks)

		api.GET("/stories", h.listStories)
		api.GET("/stories/:storyId", h.getStory)

		promptHandlers := []gin.HandlerFunc{h.completePrompt}
		if promptLimiter != nil {
			promptHandlers = append([]gin.HandlerFunc{promptLimiter}, promptHandlers...)
		}
		api.POST("/gemini", promptHandlers...)
		api.GET("/gemini", h.promptMethodNotAllowed)
	}

	router.GET("/ws", h.ServeWS)
	router.GET("/health", h.health)
	router.HEAD("/health", h.health)
}

// health всегда 200: без AI и до первого цикла сервис все равно отвечает.
func (h *StoryHandler) health(c *gin.Context) {
	snap := h.planets.State()
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"ai_configured": h.prompts.Configured(),
		"planets":       len(snap.Planets),
		"loading":       snap.Loading,
	})
}

func (h *StoryHandler) getPlanets(c *gin.Context) {
	c.JSON(http.StatusOK, h.planets.State())
}

// refreshPlanetsResponse тело ответа при сбое цикла: ошибка и последний снимок.
type refreshPlanetsResponse struct {
	Error    string          `json:"error"`
	Snapshot models.Snapshot `json:"snapshot"`
}

func (h *StoryHandler) refreshPlanets(c *gin.Context) {
	snap, err := h.planets.Refresh(c.Request.Context())
	if err != nil {
		if snap.Error != "" {
			h.logger.Warn("Refresh cycle failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, refreshPlanetsResponse{Error: snap.Error, Snapshot: snap})
			return
		}
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *StoryHandler) getPlanet(c *gin.Context) {
	planet, err := h.planets.GetPlanetByID(c.Param("planetId"))
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, planet)
}

func (h *StoryHandler) getPlanetByStory(c *gin.Context) {
	planet, err := h.planets.GetPlanetByStoryID(c.Param("storyId"))
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, planet)
}

func (h *StoryHandler) getBooks(c *gin.Context) {
	c.JSON(http.StatusOK, h.planets.State().Books)
}

func (h *StoryHandler) listStories(c *gin.Context) {
	var (
		stories []models.StoryRecord
		err     error
	)
	if title := strings.TrimSpace(c.Query("title")); title != "" {
		stories, err = h.stories.GetStoriesByTitle(c.Request.Context(), title)
	} else {
		stories, err = h.stories.GetAllStories(c.Request.Context())
	}
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	if stories == nil {
		stories = []models.StoryRecord{}
	}
	c.JSON(http.StatusOK, stories)
}

func (h *StoryHandler) getStory(c *gin.Context) {
	story, err := h.stories.GetStoryByID(c.Request.Context(), c.Param("storyId"))
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, story)
}

func (h *StoryHandler) completePrompt(c *gin.Context) {
	var req models.PromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug("Invalid prompt request body", zap.Error(err))
		handleServiceError(c, models.ErrEmptyPrompt, h.logger)
		return
	}

	completion, err := h.prompts.Complete(c.Request.Context(), req.Prompt)
	if err != nil {
		handleServiceError(c, err, h.logger)
		return
	}
	c.JSON(http.StatusOK, completion)
}

func (h *StoryHandler) promptMethodNotAllowed(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, gin.H{"message": "Method not allowed"})
}

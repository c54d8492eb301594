package interfaces

import (
	"context"

	"storyteller-server/internal/models"
)

// StoryStore доступ к историям только на чтение.
//
//go:generate mockery --name StoryStore --output ../mocks --outpkg mocks --case=underscore
type StoryStore interface {
	// GetAllStories возвращает все истории в порядке хранилища.
	GetAllStories(ctx context.Context) ([]models.StoryRecord, error)
	// GetStoryByID возвращает models.ErrStoryNotFound, если истории нет.
	GetStoryByID(ctx context.Context, id string) (*models.StoryRecord, error)
	// GetStoriesByTitle ищет истории с точным совпадением заголовка.
	GetStoriesByTitle(ctx context.Context, title string) ([]models.StoryRecord, error)
}

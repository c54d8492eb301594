package mocks

import (
	"context"

	"storyteller-server/internal/models"

	"github.com/stretchr/testify/mock"
)

// StoryStore мок interfaces.StoryStore.
type StoryStore struct {
	mock.Mock
}

func (m *StoryStore) GetAllStories(ctx context.Context) ([]models.StoryRecord, error) {
	args := m.Called(ctx)
	stories, _ := args.Get(0).([]models.StoryRecord)
	return stories, args.Error(1)
}

func (m *StoryStore) GetStoryByID(ctx context.Context, id string) (*models.StoryRecord, error) {
	args := m.Called(ctx, id)
	story, _ := args.Get(0).(*models.StoryRecord)
	return story, args.Error(1)
}

func (m *StoryStore) GetStoriesByTitle(ctx context.Context, title string) ([]models.StoryRecord, error) {
	args := m.Called(ctx, title)
	stories, _ := args.Get(0).([]models.StoryRecord)
	return stories, args.Error(1)
}

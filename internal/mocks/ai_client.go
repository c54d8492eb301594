package mocks

import (
	"context"

	"storyteller-server/internal/ai"

	"github.com/stretchr/testify/mock"
)

// AIClient мок ai.Client.
type AIClient struct {
	mock.Mock
}

func (m *AIClient) Generate(ctx context.Context, req ai.Request) (*ai.Response, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*ai.Response)
	return resp, args.Error(1)
}

func (m *AIClient) Provider() string {
	return m.Called().String(0)
}

func (m *AIClient) Model() string {
	return m.Called().String(0)
}

// Package cli команды операторской утилиты storyctl.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"storyteller-server/internal/ai"
	"storyteller-server/internal/interfaces"
	"storyteller-server/internal/messaging"
	"storyteller-server/internal/projection"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RefreshPublisher отправляет запрос на обновление планет.
type RefreshPublisher interface {
	Publish(ctx context.Context, payload messaging.RefreshPayload) error
}

// Deps зависимости команд. Фабрики вызываются лениво, только нужной командой.
type Deps struct {
	Logger       *zap.Logger
	Projector    *projection.Projector
	Concurrency  int
	OpenStore    func(ctx context.Context) (interfaces.StoryStore, func(), error)
	NewAIClient  func(ctx context.Context) (ai.Client, error)
	NewPublisher func(ctx context.Context) (RefreshPublisher, func(), error)
}

type rootOptions struct {
	asJSON bool
}

// NewRootCmd собирает storyctl.
func NewRootCmd(deps Deps) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "storyctl",
		Short:         "Операторская утилита StoryTeller: планеты, истории, промпты",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "вывод в JSON")

	root.AddCommand(
		newPlanetsCmd(deps, opts),
		newStoriesCmd(deps, opts),
		newStoryCmd(deps, opts),
		newPromptCmd(deps, opts),
		newRefreshCmd(deps),
	)
	return root
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

package cli

import (
	"errors"
	"fmt"
	"strings"

	"storyteller-server/internal/messaging"
	"storyteller-server/internal/models"
	"storyteller-server/internal/projection"
	"storyteller-server/internal/service"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	idColor    = color.New(color.FgCyan)
	nameColor  = color.New(color.FgHiMagenta)
	okColor    = color.New(color.FgGreen)
	warnColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed)
)

func newPlanetsCmd(deps Deps, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "planets",
		Short: "Выполнить цикл обновления и показать планеты",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, closeStore, err := deps.OpenStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			aggregator := service.NewPlanetAggregator(store, deps.Projector, deps.Concurrency, deps.Logger)
			defer aggregator.Close()

			snap, err := aggregator.Refresh(ctx)
			if err != nil {
				return fmt.Errorf("fetch cycle failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if opts.asJSON {
				return writeJSON(out, snap)
			}
			if len(snap.Planets) == 0 {
				fmt.Fprintln(out, warnColor.Sprint("Планет нет"))
				return nil
			}
			for _, p := range snap.Planets {
				diary := okColor.Sprint("diary")
				if p.DiaryContent == nil {
					diary = warnColor.Sprint("no diary")
				}
				fmt.Fprintf(out, "%s  %s  %s  %s  [%s]\n",
					idColor.Sprint(p.ID), nameColor.Sprint(p.Name), p.Color, p.Title, diary)
			}
			fmt.Fprintf(out, "\n%d planets, generation %d\n", len(snap.Planets), snap.Generation)
			return nil
		},
	}
}

func newStoriesCmd(deps Deps, opts *rootOptions) *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "stories",
		Short: "Показать истории из хранилища",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, closeStore, err := deps.OpenStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			var stories []models.StoryRecord
			if title != "" {
				stories, err = store.GetStoriesByTitle(ctx, title)
			} else {
				stories, err = store.GetAllStories(ctx)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.asJSON {
				if stories == nil {
					stories = []models.StoryRecord{}
				}
				return writeJSON(out, stories)
			}
			for _, s := range stories {
				fmt.Fprintf(out, "%s  %s  %d pages  %s\n",
					idColor.Sprint(s.ID), s.Title, len(s.Pages), s.CreatedAt)
			}
			fmt.Fprintf(out, "\n%d stories\n", len(stories))
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "точное совпадение заголовка")
	return cmd
}

// Ключи Firebase push начинаются с '-', поэтому ID передается через --id или после "--".
func newStoryCmd(deps Deps, opts *rootOptions) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "story [--id <id> | -- <id>]",
		Short: "Показать одну историю со страницами по порядку",
		Example: `  storyctl story --id -OWKo20VEu1lzsK7OaFT
  storyctl story -- -OWKo20VEu1lzsK7OaFT`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case id != "" && len(args) == 1:
				return errors.New("pass the story ID either with --id or as an argument, not both")
			case len(args) == 1:
				id = args[0]
			case id == "":
				return errors.New("story ID is required: storyctl story --id <id>")
			}

			ctx := cmd.Context()
			store, closeStore, err := deps.OpenStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			story, err := store.GetStoryByID(ctx, id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.asJSON {
				return writeJSON(out, story)
			}
			fmt.Fprintf(out, "%s  %s\n", idColor.Sprint(story.ID), nameColor.Sprint(story.Title))
			fmt.Fprintf(out, "created: %s  color: %s\n", story.CreatedAt, projection.PrimaryColor(*story))
			for _, page := range projection.SortPages(story.Pages) {
				fmt.Fprintf(out, "  [%d] %s\n       %s\n", page.PageNumber, page.Text, page.ImageURL)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "ключ истории в хранилище")
	return cmd
}

func newPromptCmd(deps Deps, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "prompt <text>",
		Short: "Отправить промпт модели, как это делает /api/gemini",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := deps.NewAIClient(ctx)
			if err != nil {
				return err
			}
			prompts := service.NewPromptService(client, 0, deps.Logger)

			completion, err := prompts.Complete(ctx, strings.Join(args, " "))
			out := cmd.OutOrStdout()
			var blocked *models.PromptBlockedError
			if errors.As(err, &blocked) {
				fmt.Fprintln(out, warnColor.Sprint(blocked.Error()))
				return nil
			}
			if err != nil {
				return err
			}
			if opts.asJSON {
				return writeJSON(out, completion)
			}
			fmt.Fprintln(out, completion.TextContent)
			return nil
		},
	}
}

func newRefreshCmd(deps Deps) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Попросить все экземпляры сервиса обновить планеты (RabbitMQ)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			publisher, closePublisher, err := deps.NewPublisher(ctx)
			if err != nil {
				return err
			}
			defer closePublisher()

			if err := publisher.Publish(ctx, messaging.RefreshPayload{Reason: reason, RequestedBy: "storyctl"}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okColor.Sprint("refresh requested"))
			return nil
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "manual", "причина обновления для логов")
	return cmd
}

// PrintError печатает ошибку команды красным.
func PrintError(cmd *cobra.Command, err error) {
	fmt.Fprintln(cmd.ErrOrStderr(), errorColor.Sprint("Error: "+err.Error()))
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"storyteller-server/internal/ai"
	"storyteller-server/internal/cli"
	"storyteller-server/internal/config"
	"storyteller-server/internal/interfaces"
	"storyteller-server/internal/messaging"
	"storyteller-server/internal/projection"
	"storyteller-server/internal/repository"
	sharedLogger "storyteller-server/shared/logger"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Утилита пишет в stdout результат, логи только предупреждения в stderr
	logger, err := sharedLogger.New(sharedLogger.Config{
		Level:      "warn",
		Encoding:   "console",
		OutputPath: "stderr",
		Service:    "storyctl",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	location, err := cfg.Location()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	deps := cli.Deps{
		Logger: logger,
		Projector: projection.New(projection.Options{
			Location:            location,
			RemoteImagePrefixes: cfg.GetRemoteImagePrefixes(),
		}),
		Concurrency: cfg.AggregatorConcurrency,
		OpenStore: func(ctx context.Context) (interfaces.StoryStore, func(), error) {
			return repository.OpenStoryStore(ctx, cfg, logger)
		},
		NewAIClient: func(ctx context.Context) (ai.Client, error) {
			if !cfg.AIConfigured() {
				return nil, nil
			}
			return ai.NewClient(ctx, cfg, logger)
		},
		NewPublisher: func(ctx context.Context) (cli.RefreshPublisher, func(), error) {
			if cfg.RabbitMQURL == "" {
				return nil, nil, errors.New("RABBITMQ_URL is not set")
			}
			conn, err := messaging.Connect(ctx, cfg.RabbitMQURL, 1, 0, logger)
			if err != nil {
				return nil, nil, err
			}
			publisher, err := messaging.NewRefreshPublisher(conn, cfg.RefreshExchange, logger)
			if err != nil {
				_ = conn.Close()
				return nil, nil, err
			}
			return publisher, func() {
				_ = publisher.Close()
				_ = conn.Close()
			}, nil
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.AITimeout+30*time.Second)
	defer cancel()

	root := cli.NewRootCmd(deps)
	if err := root.ExecuteContext(ctx); err != nil {
		cli.PrintError(root, err)
		os.Exit(1)
	}
}

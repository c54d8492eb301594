package repository

import (
	"context"
	"fmt"

	"storyteller-server/internal/config"
	"storyteller-server/internal/database"
	"storyteller-server/internal/interfaces"

	"go.uber.org/zap"
)

// OpenStoryStore создает хранилище историй по STORE_BACKEND.
// ctx ограничивает только подключение и миграции; клиенты хранилища его не сохраняют.
// Возвращаемая функция освобождает ресурсы хранилища.
func OpenStoryStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (interfaces.StoryStore, func(), error) {
	switch cfg.StoreBackend {
	case config.StoreBackendFirebase:
		store, err := NewFirebaseStoryStore(FirebaseConfig{
			DatabaseURL:     cfg.FirebaseDatabaseURL,
			ProjectID:       cfg.FirebaseProjectID,
			CredentialsPath: cfg.FirebaseCredentialsPath,
			StoriesPath:     cfg.FirebaseStoriesPath,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil

	case config.StoreBackendPostgres:
		pool, err := database.NewPool(ctx, database.PoolConfig{
			DSN:         cfg.GetDSN(),
			MaxConns:    cfg.DBMaxConns,
			MaxIdleTime: cfg.DBIdleTimeout,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := database.ApplyMigrations(pool, logger); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return NewPgStoryStore(pool, logger), pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storyteller-server/internal/interfaces"
	"storyteller-server/internal/models"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Compile-time check
var _ interfaces.StoryStore = (*firebaseStoryStore)(nil)

// FirebaseConfig настройки подключения к Realtime Database.
type FirebaseConfig struct {
	DatabaseURL     string
	ProjectID       string
	CredentialsPath string // Пусто: Application Default Credentials или эмулятор
	StoriesPath     string
}

type firebaseStoryStore struct {
	stories *db.Ref
	logger  *zap.Logger
}

// NewFirebaseStoryStore создает клиент Realtime Database один раз на процесс.
// URL вида "localhost:9000?ns=<namespace>" включает режим эмулятора без авторизации.
// Клиент живет весь процесс и обновляет токены сам, поэтому строится на context.Background().
func NewFirebaseStoryStore(cfg FirebaseConfig, logger *zap.Logger) (interfaces.StoryStore, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("firebase database URL is empty")
	}
	storiesPath := strings.Trim(cfg.StoriesPath, "/")
	if storiesPath == "" {
		storiesPath = "stories"
	}

	var opts []option.ClientOption
	if cfg.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsPath))
	}

	app, err := firebase.NewApp(context.Background(), &firebase.Config{
		DatabaseURL: cfg.DatabaseURL,
		ProjectID:   cfg.ProjectID,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации Firebase App: %w", err)
	}

	client, err := app.Database(context.Background())
	if err != nil {
		return nil, fmt.Errorf("ошибка получения Realtime Database client: %w", err)
	}

	logger.Info("Firebase story store initialized",
		zap.String("database_url", cfg.DatabaseURL),
		zap.String("stories_path", storiesPath),
	)
	return &firebaseStoryStore{
		stories: client.NewRef(storiesPath),
		logger:  logger.Named("FirebaseStoryStore"),
	}, nil
}

// GetAllStories читает весь узел историй. Порядок по ключу, как у push-ключей Firebase.
func (s *firebaseStoryStore) GetAllStories(ctx context.Context) ([]models.StoryRecord, error) {
	nodes, err := s.stories.OrderByKey().GetOrdered(ctx)
	if err != nil {
		s.logger.Error("Failed to read stories", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", models.ErrStoriesUnavailable, err)
	}
	return s.decodeNodes(nodes)
}

// GetStoryByID читает stories/<id>.
func (s *firebaseStoryStore) GetStoryByID(ctx context.Context, id string) (*models.StoryRecord, error) {
	log := s.logger.With(zap.String("storyID", id))
	if id == "" || strings.ContainsAny(id, "/.#$[]") {
		log.Warn("Invalid story key requested")
		return nil, models.ErrStoryNotFound
	}

	var story *models.StoryRecord
	if err := s.stories.Child(id).Get(ctx, &story); err != nil {
		log.Error("Failed to read story", zap.Error(err))
		return nil, fmt.Errorf("failed to get story %s: %w", id, err)
	}
	if story == nil {
		log.Debug("Story not found")
		return nil, models.ErrStoryNotFound
	}
	story.ID = id
	return story, nil
}

// GetStoriesByTitle выполняет orderByChild("title").equalTo(title).
func (s *firebaseStoryStore) GetStoriesByTitle(ctx context.Context, title string) ([]models.StoryRecord, error) {
	nodes, err := s.stories.OrderByChild("title").EqualTo(title).GetOrdered(ctx)
	if err != nil {
		s.logger.Error("Failed to query stories by title", zap.String("title", title), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", models.ErrStoriesUnavailable, err)
	}
	return s.decodeNodes(nodes)
}

// decodeNodes пропускает узлы, которые не разбираются как история,
// чтобы одна битая запись не ломала весь список.
func (s *firebaseStoryStore) decodeNodes(nodes []db.QueryNode) ([]models.StoryRecord, error) {
	stories := make([]models.StoryRecord, 0, len(nodes))
	for _, node := range nodes {
		var story models.StoryRecord
		if err := node.Unmarshal(&story); err != nil {
			s.logger.Warn("Skipping malformed story node", zap.String("key", node.Key()), zap.Error(err))
			continue
		}
		story.ID = node.Key()
		stories = append(stories, story)
	}
	return stories, nil
}

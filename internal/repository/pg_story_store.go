package repository

import (
	"context"
	"errors"
	"fmt"

	"storyteller-server/internal/interfaces"
	"storyteller-server/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DBTX общий интерфейс для pgxpool.Pool, pgx.Conn и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Compile-time check
var _ interfaces.StoryStore = (*pgStoryStore)(nil)

const storyColumns = `id, story_id, title, created_at, color_palette, pages, planet_name, source_image`

const (
	getAllStoriesQuery = `SELECT ` + storyColumns + ` FROM stories ORDER BY inserted_at, id`

	getStoryByIDQuery = `SELECT ` + storyColumns + ` FROM stories WHERE id = $1`

	getStoriesByTitleQuery = `SELECT ` + storyColumns + ` FROM stories WHERE title = $1 ORDER BY inserted_at, id`
)

type pgStoryStore struct {
	db     DBTX
	logger *zap.Logger
}

// NewPgStoryStore создает хранилище историй поверх PostgreSQL.
func NewPgStoryStore(db DBTX, logger *zap.Logger) interfaces.StoryStore {
	return &pgStoryStore{
		db:     db,
		logger: logger.Named("PgStoryStore"),
	}
}

// GetAllStories возвращает истории в порядке добавления.
func (r *pgStoryStore) GetAllStories(ctx context.Context) ([]models.StoryRecord, error) {
	var stories []models.StoryRecord
	if err := pgxscan.Select(ctx, r.db, &stories, getAllStoriesQuery); err != nil {
		r.logger.Error("Failed to select stories", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", models.ErrStoriesUnavailable, err)
	}
	if stories == nil {
		stories = []models.StoryRecord{}
	}
	return stories, nil
}

// GetStoryByID возвращает models.ErrStoryNotFound, если строки нет.
func (r *pgStoryStore) GetStoryByID(ctx context.Context, id string) (*models.StoryRecord, error) {
	log := r.logger.With(zap.String("storyID", id))

	var story models.StoryRecord
	if err := pgxscan.Get(ctx, r.db, &story, getStoryByIDQuery, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			log.Debug("Story not found")
			return nil, models.ErrStoryNotFound
		}
		log.Error("Failed to get story", zap.Error(err))
		return nil, fmt.Errorf("failed to get story %s: %w", id, err)
	}
	return &story, nil
}

// GetStoriesByTitle ищет по точному совпадению заголовка.
func (r *pgStoryStore) GetStoriesByTitle(ctx context.Context, title string) ([]models.StoryRecord, error) {
	var stories []models.StoryRecord
	if err := pgxscan.Select(ctx, r.db, &stories, getStoriesByTitleQuery, title); err != nil {
		r.logger.Error("Failed to select stories by title", zap.String("title", title), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", models.ErrStoriesUnavailable, err)
	}
	if stories == nil {
		stories = []models.StoryRecord{}
	}
	return stories, nil
}

package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"storyteller-server/shared/utils"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Бэкенды хранилища историй
const (
	StoreBackendFirebase = "firebase"
	StoreBackendPostgres = "postgres"
)

// Config содержит конфигурацию StoryTeller сервиса.
type Config struct {
	Env         string `envconfig:"ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`
	ServerPort  string `envconfig:"SERVER_PORT" default:"8080"`

	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`

	// Хранилище историй
	StoreBackend string `envconfig:"STORE_BACKEND" default:"firebase"`

	// Firebase Realtime Database
	FirebaseDatabaseURL     string `envconfig:"FIREBASE_DATABASE_URL"`
	FirebaseProjectID       string `envconfig:"FIREBASE_PROJECT_ID"`
	FirebaseCredentialsPath string `envconfig:"FIREBASE_CREDENTIALS_PATH"` // Путь к ключу сервис-аккаунта
	FirebaseStoriesPath     string `envconfig:"FIREBASE_STORIES_PATH" default:"stories"`

	// PostgreSQL (STORE_BACKEND=postgres)
	DBHost        string        `envconfig:"DB_HOST" default:"localhost"`
	DBPort        string        `envconfig:"DB_PORT" default:"5432"`
	DBUser        string        `envconfig:"DB_USER" default:"storyteller"`
	DBName        string        `envconfig:"DB_NAME" default:"storyteller"`
	DBSSLMode     string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns    int           `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	DBIdleTimeout time.Duration `envconfig:"DB_MAX_IDLE_MINUTES" default:"5m"`
	// Секретное поле БЕЗ envconfig тега
	DBPassword string

	// Redis (опционально, для rate limit эндпоинта промптов)
	RedisAddr string `envconfig:"REDIS_ADDR"`
	RedisDB   int    `envconfig:"REDIS_DB" default:"0"`
	// Секретное поле БЕЗ envconfig тега
	RedisPassword string

	PromptRateLimit  uint          `envconfig:"PROMPT_RATE_LIMIT" default:"10"`
	PromptRateWindow time.Duration `envconfig:"PROMPT_RATE_WINDOW" default:"1m"`

	// AI провайдер
	AIClientType string        `envconfig:"AI_CLIENT_TYPE" default:"gemini"` // gemini | openai | ollama
	AIModel      string        `envconfig:"AI_MODEL" default:"gemini-2.0-flash"`
	AIBaseURL    string        `envconfig:"AI_BASE_URL"`
	AITimeout    time.Duration `envconfig:"AI_TIMEOUT" default:"60s"`
	AIMaxRPS     float64       `envconfig:"AI_MAX_RPS" default:"2"`
	AIAPIKey     string        `envconfig:"AI_API_KEY"` // Перекрывается секретом ai_api_key

	// RabbitMQ (опционально, внешний триггер обновления)
	RabbitMQURL     string `envconfig:"RABBITMQ_URL"`
	RefreshExchange string `envconfig:"REFRESH_EXCHANGE" default:"story_refresh_exchange"`

	// Агрегация планет
	AggregatorConcurrency int    `envconfig:"AGGREGATOR_CONCURRENCY" default:"8"`
	DiaryTimezone         string `envconfig:"DIARY_TIMEZONE" default:"Asia/Taipei"`
	RemoteImagePrefixes   string `envconfig:"REMOTE_IMAGE_PREFIXES" default:"https://firebasestorage.googleapis.com"`
}

// GetDSN возвращает строку подключения (DSN) для PostgreSQL.
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// GetAllowedOrigins разбивает CORSAllowedOrigins по запятой.
func (c *Config) GetAllowedOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

// GetRemoteImagePrefixes разбивает RemoteImagePrefixes по запятой.
func (c *Config) GetRemoteImagePrefixes() []string {
	return splitList(c.RemoteImagePrefixes)
}

// Location возвращает часовой пояс для дат дневника.
func (c *Config) Location() (*time.Location, error) {
	if c.DiaryTimezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.DiaryTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid DIARY_TIMEZONE %q: %w", c.DiaryTimezone, err)
	}
	return loc, nil
}

// AIConfigured сообщает, можно ли создать AI клиента.
// Ollama работает без ключа, остальным провайдерам он нужен.
func (c *Config) AIConfigured() bool {
	if strings.EqualFold(c.AIClientType, "ollama") {
		return c.AIBaseURL != ""
	}
	return c.AIAPIKey != ""
}

// Validate проверяет зависимые друг от друга настройки.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreBackendFirebase:
		if c.FirebaseDatabaseURL == "" {
			return fmt.Errorf("FIREBASE_DATABASE_URL is required for store backend %q", c.StoreBackend)
		}
	case StoreBackendPostgres:
		if c.DBPassword == "" {
			return fmt.Errorf("secret db_password is required for store backend %q", c.StoreBackend)
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch strings.ToLower(c.AIClientType) {
	case "gemini", "openai", "ollama":
	default:
		return fmt.Errorf("unknown AI_CLIENT_TYPE %q", c.AIClientType)
	}

	if c.AggregatorConcurrency <= 0 {
		return fmt.Errorf("AGGREGATOR_CONCURRENCY must be positive, got %d", c.AggregatorConcurrency)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// LoadConfig загружает конфигурацию из .env (если есть), окружения и секретов.
func LoadConfig(envFilePath string) (*Config, error) {
	if envFilePath != "" {
		if _, err := os.Stat(envFilePath); err == nil {
			if err := godotenv.Load(envFilePath); err != nil {
				log.Printf("Warning: Could not load %s file: %v", envFilePath, err)
			} else {
				log.Printf("Loaded configuration from %s", envFilePath)
			}
		} else if !os.IsNotExist(err) {
			log.Printf("Warning: Error checking %s file: %v", envFilePath, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env vars: %w", err)
	}

	// Все секреты необязательные: какие нужны, решает Validate по выбранному бэкенду
	var err error
	if cfg.DBPassword, err = utils.ReadOptionalSecret("db_password"); err != nil {
		return nil, err
	}
	if cfg.RedisPassword, err = utils.ReadOptionalSecret("redis_password"); err != nil {
		return nil, err
	}
	aiKey, err := utils.ReadOptionalSecret("ai_api_key")
	if err != nil {
		return nil, err
	}
	if aiKey != "" {
		cfg.AIAPIKey = aiKey
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Printf("Конфигурация StoryTeller загружена: env=%s store=%s ai=%s/%s port=%s",
		cfg.Env, cfg.StoreBackend, cfg.AIClientType, cfg.AIModel, cfg.ServerPort)
	return &cfg, nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

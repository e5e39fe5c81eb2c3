package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Queue    QueueConfig    `toml:"queue"`
	Storage  StorageConfig  `toml:"storage"`
	Search   SearchConfig   `toml:"search"`
	OCR      OCRConfig      `toml:"ocr"`
	Logging  LoggingConfig  `toml:"logging"`
}

type ServerConfig struct {
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	MaxUploadSize   string   `toml:"max_upload_size"`
	ShutdownTimeout string   `toml:"shutdown_timeout"`
	AllowedOrigins  []string `toml:"allowed_origins"`
	RateLimitRPS    float64  `toml:"rate_limit_rps"`
	RateLimitBurst  int      `toml:"rate_limit_burst"`
}

type DatabaseConfig struct {
	URL      string `toml:"url"`
	MaxConns int    `toml:"max_conns"`
	MinConns int    `toml:"min_conns"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type QueueConfig struct {
	ConnectAttempts int    `toml:"connect_attempts"`
	ConnectDelay    string `toml:"connect_delay"`
	Concurrency     int    `toml:"concurrency"`
	TaskTimeout     string `toml:"task_timeout"`
	DeadLetter      bool   `toml:"dead_letter"`
	ClaimTTL        string `toml:"claim_ttl"`
}

type StorageConfig struct {
	Endpoint  string `toml:"endpoint"`
	Region    string `toml:"region"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	PathStyle bool   `toml:"path_style"`
}

type SearchConfig struct {
	Addresses     []string `toml:"addresses"`
	Username      string   `toml:"username"`
	Password      string   `toml:"password"`
	Index         string   `toml:"index"`
	FuzzyDistance int      `toml:"fuzzy_distance"`
	ReadyTimeout  string   `toml:"ready_timeout"`
}

type OCRConfig struct {
	DPI         int     `toml:"dpi"`
	Language    string  `toml:"language"`
	Contrast    int     `toml:"contrast"`
	Sharpen     float64 `toml:"sharpen"`
	PageWorkers int     `toml:"page_workers"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

// Load builds the configuration from defaults, an optional TOML file named by
// CONFIG_FILE, and environment overrides, in that order.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			MaxUploadSize:   "32MB",
			ShutdownTimeout: "30s",
			AllowedOrigins:  []string{"*"},
			RateLimitRPS:    100,
			RateLimitBurst:  200,
		},
		Database: DatabaseConfig{
			MaxConns: 20,
			MinConns: 2,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Queue: QueueConfig{
			ConnectAttempts: 5,
			ConnectDelay:    "5s",
			Concurrency:     10,
			TaskTimeout:     "10m",
			DeadLetter:      true,
			ClaimTTL:        "1h",
		},
		Storage: StorageConfig{
			Endpoint:  "http://localhost:9000",
			Region:    "us-east-1",
			AccessKey: "minioadmin",
			SecretKey: "minioadmin",
			Bucket:    "files",
			PathStyle: true,
		},
		Search: SearchConfig{
			Addresses:     []string{"http://localhost:9200"},
			Index:         "documents",
			FuzzyDistance: 4,
			ReadyTimeout:  "10s",
		},
		OCR: OCRConfig{
			DPI:         300,
			Language:    "eng",
			Contrast:    20,
			Sharpen:     1.0,
			PageWorkers: 2,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func (c *Config) loadEnv() error {
	var err error

	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	if c.Server.Port, err = getEnvInt("SERVER_PORT", c.Server.Port); err != nil {
		return fmt.Errorf("invalid SERVER_PORT: %w", err)
	}
	c.Server.MaxUploadSize = getEnv("UPLOAD_MAX_SIZE", c.Server.MaxUploadSize)
	c.Server.ShutdownTimeout = getEnv("SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if c.Server.RateLimitRPS, err = strconv.ParseFloat(v, 64); err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
		}
	}
	if c.Server.RateLimitBurst, err = getEnvInt("RATE_LIMIT_BURST", c.Server.RateLimitBurst); err != nil {
		return fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	if c.Database.MaxConns, err = getEnvInt("DB_MAX_CONNS", c.Database.MaxConns); err != nil {
		return fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}
	if c.Database.MinConns, err = getEnvInt("DB_MIN_CONNS", c.Database.MinConns); err != nil {
		return fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	if c.Redis.DB, err = getEnvInt("REDIS_DB", c.Redis.DB); err != nil {
		return fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	if c.Queue.ConnectAttempts, err = getEnvInt("QUEUE_CONNECT_ATTEMPTS", c.Queue.ConnectAttempts); err != nil {
		return fmt.Errorf("invalid QUEUE_CONNECT_ATTEMPTS: %w", err)
	}
	c.Queue.ConnectDelay = getEnv("QUEUE_CONNECT_DELAY", c.Queue.ConnectDelay)
	if c.Queue.Concurrency, err = getEnvInt("QUEUE_CONCURRENCY", c.Queue.Concurrency); err != nil {
		return fmt.Errorf("invalid QUEUE_CONCURRENCY: %w", err)
	}
	c.Queue.TaskTimeout = getEnv("QUEUE_TASK_TIMEOUT", c.Queue.TaskTimeout)
	if c.Queue.DeadLetter, err = getEnvBool("QUEUE_DEAD_LETTER", c.Queue.DeadLetter); err != nil {
		return fmt.Errorf("invalid QUEUE_DEAD_LETTER: %w", err)
	}
	c.Queue.ClaimTTL = getEnv("QUEUE_CLAIM_TTL", c.Queue.ClaimTTL)

	c.Storage.Endpoint = getEnv("STORAGE_ENDPOINT", c.Storage.Endpoint)
	c.Storage.Region = getEnv("STORAGE_REGION", c.Storage.Region)
	c.Storage.AccessKey = getEnv("STORAGE_ACCESS_KEY", c.Storage.AccessKey)
	c.Storage.SecretKey = getEnv("STORAGE_SECRET_KEY", c.Storage.SecretKey)
	c.Storage.Bucket = getEnv("STORAGE_BUCKET", c.Storage.Bucket)
	if c.Storage.PathStyle, err = getEnvBool("STORAGE_PATH_STYLE", c.Storage.PathStyle); err != nil {
		return fmt.Errorf("invalid STORAGE_PATH_STYLE: %w", err)
	}

	if v := os.Getenv("ELASTICSEARCH_ADDRESSES"); v != "" {
		c.Search.Addresses = strings.Split(v, ",")
	}
	c.Search.Username = getEnv("ELASTICSEARCH_USERNAME", c.Search.Username)
	c.Search.Password = getEnv("ELASTICSEARCH_PASSWORD", c.Search.Password)
	c.Search.Index = getEnv("SEARCH_INDEX", c.Search.Index)
	if c.Search.FuzzyDistance, err = getEnvInt("SEARCH_FUZZY_DISTANCE", c.Search.FuzzyDistance); err != nil {
		return fmt.Errorf("invalid SEARCH_FUZZY_DISTANCE: %w", err)
	}
	c.Search.ReadyTimeout = getEnv("SEARCH_READY_TIMEOUT", c.Search.ReadyTimeout)

	if c.OCR.DPI, err = getEnvInt("OCR_DPI", c.OCR.DPI); err != nil {
		return fmt.Errorf("invalid OCR_DPI: %w", err)
	}
	c.OCR.Language = getEnv("OCR_LANGUAGE", c.OCR.Language)
	if c.OCR.Contrast, err = getEnvInt("OCR_CONTRAST", c.OCR.Contrast); err != nil {
		return fmt.Errorf("invalid OCR_CONTRAST: %w", err)
	}
	if v := os.Getenv("OCR_SHARPEN"); v != "" {
		if c.OCR.Sharpen, err = strconv.ParseFloat(v, 64); err != nil {
			return fmt.Errorf("invalid OCR_SHARPEN: %w", err)
		}
	}
	if c.OCR.PageWorkers, err = getEnvInt("OCR_PAGE_WORKERS", c.OCR.PageWorkers); err != nil {
		return fmt.Errorf("invalid OCR_PAGE_WORKERS: %w", err)
	}

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// MaxUploadBytes returns the parsed upload limit. Validate guarantees it parses.
func (c *Config) MaxUploadBytes() int64 {
	n, _ := units.FromHumanSize(c.Server.MaxUploadSize)
	return n
}

func (c *Config) ShutdownTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Server.ShutdownTimeout)
	return d
}

func (c QueueConfig) ConnectDelayDuration() time.Duration {
	d, _ := time.ParseDuration(c.ConnectDelay)
	return d
}

func (c QueueConfig) TaskTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.TaskTimeout)
	return d
}

func (c QueueConfig) ClaimTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.ClaimTTL)
	return d
}

func (c SearchConfig) ReadyTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ReadyTimeout)
	return d
}

// SlogLevel maps the configured level name; unknown names fall back to info.
func (c LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) Validate() error {
	var problems []string

	if size, err := units.FromHumanSize(c.Server.MaxUploadSize); err != nil || size <= 0 {
		problems = append(problems, "UPLOAD_MAX_SIZE must be a positive size such as 32MB")
	}

	durations := map[string]string{
		"SHUTDOWN_TIMEOUT":     c.Server.ShutdownTimeout,
		"QUEUE_CONNECT_DELAY":  c.Queue.ConnectDelay,
		"QUEUE_TASK_TIMEOUT":   c.Queue.TaskTimeout,
		"QUEUE_CLAIM_TTL":      c.Queue.ClaimTTL,
		"SEARCH_READY_TIMEOUT": c.Search.ReadyTimeout,
	}
	for name, v := range durations {
		if _, err := time.ParseDuration(v); err != nil {
			problems = append(problems, name+" must be a duration")
		}
	}

	if c.Server.RateLimitRPS <= 0 || c.Server.RateLimitBurst < 1 {
		problems = append(problems, "RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.Queue.ConnectAttempts < 1 {
		problems = append(problems, "QUEUE_CONNECT_ATTEMPTS must be at least 1")
	}
	if c.Queue.Concurrency < 1 {
		problems = append(problems, "QUEUE_CONCURRENCY must be at least 1")
	}
	if c.Storage.Bucket == "" {
		problems = append(problems, "STORAGE_BUCKET is required")
	}
	if c.Search.Index == "" {
		problems = append(problems, "SEARCH_INDEX is required")
	}
	if len(c.Search.Addresses) == 0 {
		problems = append(problems, "ELASTICSEARCH_ADDRESSES is required")
	}
	if c.OCR.DPI < 72 || c.OCR.DPI > 1200 {
		problems = append(problems, "OCR_DPI must be between 72 and 1200")
	}
	if c.OCR.Contrast < -100 || c.OCR.Contrast > 100 {
		problems = append(problems, "OCR_CONTRAST must be between -100 and 100")
	}
	if c.OCR.PageWorkers < 1 {
		problems = append(problems, "OCR_PAGE_WORKERS must be at least 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// RequireDatabase reports a missing DATABASE_URL; only processes that touch the
// document store call it.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return fmt.Errorf("missing required env vars: DATABASE_URL")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

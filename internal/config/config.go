package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	JWT           JWTConfig
	Storage       StorageConfig
	Tracing       TracingConfig `mapstructure:"tracing"`
	Redis         RedisConfig
	AI            AIConfig
	Transcription TranscriptionConfig `mapstructure:"transcription"`
	Selection     SelectionConfig     `mapstructure:"selection"`
	Evaluation    EvaluationConfig    `mapstructure:"evaluation"`
	Sweep         SweepConfig         `mapstructure:"sweep"`
	Events        EventsConfig        `mapstructure:"events"`
	CORS          CORSConfig          `mapstructure:"cors"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`

	// Set from command-line flags, never from the config file.
	ForceMigrate bool `mapstructure:"-"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

// AIConfig selects the judgment provider. BaseURL/APIKey/Model address an
// OpenAI-compatible endpoint; Anthropic and Gemini carry their own keys.
type AIConfig struct {
	Provider       string              `mapstructure:"provider"` // openai, anthropic, gemini, mock
	BaseURL        string              `mapstructure:"base_url"`
	APIKey         string              `mapstructure:"api_key"`
	Model          string              `mapstructure:"model"`
	Anthropic      ProviderCredentials `mapstructure:"anthropic"`
	Gemini         ProviderCredentials `mapstructure:"gemini"`
	MaxTokens      int                 `mapstructure:"max_tokens"`
	Temperature    float64             `mapstructure:"temperature"`
	RequestTimeout time.Duration       `mapstructure:"request_timeout"` // per provider call
}

type ProviderCredentials struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type TranscriptionConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	WorkDir string `mapstructure:"work_dir"`
}

// SelectionConfig holds the per-type quota drawn for every attempt.
type SelectionConfig struct {
	MCQ         int `mapstructure:"mcq"`
	ShortAnswer int `mapstructure:"short_answer"`
	Audio       int `mapstructure:"audio"`
	Video       int `mapstructure:"video"`
}

type EvaluationConfig struct {
	JudgeMaxRetries   int           `mapstructure:"judge_max_retries"`
	JudgeBaseDelay    time.Duration `mapstructure:"judge_base_delay"`
	FallbackRatio     float64       `mapstructure:"fallback_ratio"`
	StrengthThreshold float64       `mapstructure:"strength_threshold"`
	Timeout           time.Duration `mapstructure:"timeout"`
	LockTTL           time.Duration `mapstructure:"lock_ttl"`
}

type SweepConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Interval   time.Duration `mapstructure:"interval"`
	BatchSize  int           `mapstructure:"batch_size"`
	MaxRetries int           `mapstructure:"max_retries"`
}

type EventsConfig struct {
	AMQPURL  string `mapstructure:"amqp_url"`
	Exchange string `mapstructure:"exchange"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Driver    string // mysql, postgres, sqlite (DBName is the file path)
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
	SSLMode   string `mapstructure:"sslmode"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
	MinioUseSSL   bool   `mapstructure:"minio_use_ssl"`
	OSSEndpoint   string `mapstructure:"oss_endpoint"`
	OSSAccessKey  string `mapstructure:"oss_access_key"`
	OSSSecretKey  string `mapstructure:"oss_secret_key"`
	OSSBucket     string `mapstructure:"oss_bucket"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parsetime", true)
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "uploads")

	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.max_tokens", 512)
	v.SetDefault("ai.temperature", 0.2)
	v.SetDefault("ai.request_timeout", 30*time.Second)

	v.SetDefault("transcription.model", "whisper-1")
	v.SetDefault("transcription.work_dir", os.TempDir())

	v.SetDefault("selection.mcq", 10)
	v.SetDefault("selection.short_answer", 5)
	v.SetDefault("selection.audio", 2)
	v.SetDefault("selection.video", 1)

	v.SetDefault("evaluation.judge_max_retries", 2)
	v.SetDefault("evaluation.judge_base_delay", time.Second)
	v.SetDefault("evaluation.fallback_ratio", 0.5)
	v.SetDefault("evaluation.strength_threshold", 90.0)
	v.SetDefault("evaluation.timeout", 5*time.Minute)
	v.SetDefault("evaluation.lock_ttl", 10*time.Minute)

	v.SetDefault("sweep.enabled", true)
	v.SetDefault("sweep.interval", time.Minute)
	v.SetDefault("sweep.batch_size", 20)
	v.SetDefault("sweep.max_retries", 3)

	v.SetDefault("events.exchange", "teacher_dev.events")

	v.SetDefault("rate_limit.max_requests", 600)
	v.SetDefault("rate_limit.window_minutes", 1)
}

func bindEnv(v *viper.Viper) {
	// Database
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	v.BindEnv("server.mode", "SERVER_MODE")
	v.BindEnv("server.port", "SERVER_PORT")

	// AI
	v.BindEnv("ai.provider", "AI_PROVIDER")
	v.BindEnv("ai.base_url", "AI_BASE_URL")
	v.BindEnv("ai.api_key", "AI_API_KEY")
	v.BindEnv("ai.model", "AI_MODEL")
	v.BindEnv("ai.anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("ai.gemini.api_key", "GEMINI_API_KEY")

	// Transcription
	v.BindEnv("transcription.base_url", "TRANSCRIPTION_BASE_URL")
	v.BindEnv("transcription.api_key", "TRANSCRIPTION_API_KEY")

	// Storage
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.oss_endpoint", "OSS_ENDPOINT")
	v.BindEnv("storage.oss_access_key", "OSS_ACCESS_KEY")
	v.BindEnv("storage.oss_secret_key", "OSS_SECRET_KEY")
	v.BindEnv("storage.oss_bucket", "OSS_BUCKET")
	v.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	v.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Events
	v.BindEnv("events.amqp_url", "AMQP_URL")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")
}

// LoadConfig reads config.yaml from path, overlaid with .env and the process
// environment. A missing config file is not an error.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("TPD")
	v.AutomaticEnv()

	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Mode == "release" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(c.JWT.Secret))
	}
	if c.Selection.MCQ < 0 || c.Selection.ShortAnswer < 0 || c.Selection.Audio < 0 || c.Selection.Video < 0 {
		return fmt.Errorf("selection quotas must not be negative")
	}
	if c.Selection.MCQ+c.Selection.ShortAnswer+c.Selection.Audio+c.Selection.Video == 0 {
		return fmt.Errorf("selection quotas select no questions")
	}
	if c.Evaluation.FallbackRatio < 0 || c.Evaluation.FallbackRatio > 1 {
		return fmt.Errorf("evaluation.fallback_ratio must be within [0, 1], got %v", c.Evaluation.FallbackRatio)
	}
	if c.Sweep.MaxRetries < 1 {
		return fmt.Errorf("sweep.max_retries must be at least 1")
	}
	return nil
}

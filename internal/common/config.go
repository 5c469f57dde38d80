package common

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	OCR      OCRConfig
	LLM      LLMConfig
	Store    StoreConfig
	Pipeline PipelineConfig
	Log      LogConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr string
	GRPCAddr string
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Provider   string // mistral | pdftotext
	APIKey     string
	Model      string
	BaseURL    string
	UploadMode string // signed_url | inline
	RateLimit  float64
	Timeout    time.Duration
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Provider    string // mistral | openai
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	Timeout     time.Duration
}

// StoreConfig points at the extraction history database. Empty DSN means an
// in-memory SQLite database.
type StoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

type PipelineConfig struct {
	ParseAttempts int
	RepairJSON    bool
	MaxUploadMB   int
	MaxPages      int
}

type LogConfig struct {
	Level  string
	Format string // text | json
}

const (
	OCRProviderMistral   = "mistral"
	OCRProviderPDFToText = "pdftotext"

	LLMProviderMistral = "mistral"
	LLMProviderOpenAI  = "openai"

	UploadModeSignedURL = "signed_url"
	UploadModeInline    = "inline"
)

// envBindings maps viper keys to the environment variables that override them.
var envBindings = map[string]string{
	"server.http_addr":         "HTTP_ADDR",
	"server.grpc_addr":         "GRPC_ADDR",
	"ocr.provider":             "OCR_PROVIDER",
	"ocr.api_key":              "MISTRAL_API_KEY",
	"ocr.model":                "OCR_MODEL",
	"ocr.base_url":             "OCR_BASE_URL",
	"ocr.upload_mode":          "OCR_UPLOAD_MODE",
	"ocr.rate_limit":           "OCR_RATE_LIMIT",
	"ocr.timeout":              "OCR_TIMEOUT",
	"llm.provider":             "LLM_PROVIDER",
	"llm.model":                "LLM_MODEL",
	"llm.api_key":              "LLM_API_KEY",
	"llm.base_url":             "LLM_BASE_URL",
	"llm.temperature":          "LLM_TEMPERATURE",
	"llm.timeout":              "LLM_TIMEOUT",
	"store.dsn":                "STORE_DSN",
	"store.max_conns":          "STORE_MAX_CONNS",
	"store.min_conns":          "STORE_MIN_CONNS",
	"store.max_conn_lifetime":  "STORE_MAX_CONN_LIFETIME",
	"store.max_conn_idle_time": "STORE_MAX_CONN_IDLE_TIME",
	"pipeline.parse_attempts":  "PIPELINE_PARSE_ATTEMPTS",
	"pipeline.repair_json":     "PIPELINE_REPAIR_JSON",
	"pipeline.max_upload_mb":   "PIPELINE_MAX_UPLOAD_MB",
	"pipeline.max_pages":       "PIPELINE_MAX_PAGES",
	"log.level":                "LOG_LEVEL",
	"log.format":               "LOG_FORMAT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.grpc_addr", ":9090")

	v.SetDefault("ocr.provider", OCRProviderMistral)
	v.SetDefault("ocr.model", "mistral-ocr-latest")
	v.SetDefault("ocr.base_url", "https://api.mistral.ai/v1")
	v.SetDefault("ocr.upload_mode", UploadModeSignedURL)
	v.SetDefault("ocr.rate_limit", 1.0)
	v.SetDefault("ocr.timeout", 120*time.Second)

	v.SetDefault("llm.provider", LLMProviderMistral)
	v.SetDefault("llm.model", "mistral-large-latest")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.timeout", 90*time.Second)

	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("store.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("store.max_conn_idle_time", 5*time.Minute)

	v.SetDefault("pipeline.parse_attempts", 1)
	v.SetDefault("pipeline.repair_json", false)
	v.SetDefault("pipeline.max_upload_mb", 25)
	v.SetDefault("pipeline.max_pages", 50)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadConfig loads configuration from defaults, an optional config file and
// the environment, in increasing order of precedence. A .env file in the
// working directory is loaded first when present.
func LoadConfig(cfgFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("labreport")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.labreport")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Server: ServerConfig{
			HTTPAddr: v.GetString("server.http_addr"),
			GRPCAddr: v.GetString("server.grpc_addr"),
		},
		OCR: OCRConfig{
			Provider:   strings.ToLower(v.GetString("ocr.provider")),
			APIKey:     v.GetString("ocr.api_key"),
			Model:      v.GetString("ocr.model"),
			BaseURL:    v.GetString("ocr.base_url"),
			UploadMode: strings.ToLower(v.GetString("ocr.upload_mode")),
			RateLimit:  v.GetFloat64("ocr.rate_limit"),
			Timeout:    v.GetDuration("ocr.timeout"),
		},
		LLM: LLMConfig{
			Provider:    strings.ToLower(v.GetString("llm.provider")),
			Model:       v.GetString("llm.model"),
			APIKey:      v.GetString("llm.api_key"),
			BaseURL:     v.GetString("llm.base_url"),
			Temperature: v.GetFloat64("llm.temperature"),
			Timeout:     v.GetDuration("llm.timeout"),
		},
		Store: StoreConfig{
			DSN:             v.GetString("store.dsn"),
			MaxConns:        v.GetInt32("store.max_conns"),
			MinConns:        v.GetInt32("store.min_conns"),
			MaxConnLifetime: v.GetDuration("store.max_conn_lifetime"),
			MaxConnIdleTime: v.GetDuration("store.max_conn_idle_time"),
		},
		Pipeline: PipelineConfig{
			ParseAttempts: v.GetInt("pipeline.parse_attempts"),
			RepairJSON:    v.GetBool("pipeline.repair_json"),
			MaxUploadMB:   v.GetInt("pipeline.max_upload_mb"),
			MaxPages:      v.GetInt("pipeline.max_pages"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
	}

	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case LLMProviderMistral:
			cfg.LLM.APIKey = cfg.OCR.APIKey
		case LLMProviderOpenAI:
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if cfg.LLM.BaseURL == "" && cfg.LLM.Provider == LLMProviderMistral {
		cfg.LLM.BaseURL = cfg.OCR.BaseURL
	}
	return cfg
}

// MaxUploadBytes is the upload size limit in bytes.
func (c PipelineConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("ocr.provider", c.OCR.Provider, OneOf(OCRProviderMistral, OCRProviderPDFToText))
	v.Field("llm.provider", c.LLM.Provider, OneOf(LLMProviderMistral, LLMProviderOpenAI))
	v.Field("llm.model", c.LLM.Model, Required)
	v.Field("llm.api_key", c.LLM.APIKey, Required)
	v.Field("pipeline.parse_attempts", c.Pipeline.ParseAttempts, Min(1))
	v.Field("pipeline.max_upload_mb", c.Pipeline.MaxUploadMB, Min(1))
	v.Field("pipeline.max_pages", c.Pipeline.MaxPages, Min(1))
	v.Field("log.level", c.Log.Level, OneOf("debug", "info", "warn", "error"))
	v.Field("log.format", c.Log.Format, OneOf("text", "json"))
	if c.OCR.Provider == OCRProviderMistral {
		v.Field("ocr.api_key (MISTRAL_API_KEY)", c.OCR.APIKey, Required)
		v.Field("ocr.upload_mode", c.OCR.UploadMode, OneOf(UploadModeSignedURL, UploadModeInline))
		v.Field("ocr.base_url", c.OCR.BaseURL, Required)
	}
	if v.HasErrors() {
		return NewAppError("CONFIG_ERROR", v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}

// NewLogger builds the process logger described by c.
func (c LogConfig) NewLogger() *slog.Logger {
	var level slog.Level
	switch c.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

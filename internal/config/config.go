package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
	Booking   BookingConfig   `yaml:"booking" mapstructure:"booking"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	Catalog   CatalogConfig   `yaml:"catalog" mapstructure:"catalog"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	TripLog   TripLogConfig   `yaml:"triplog" mapstructure:"triplog"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// OpenAIConfig holds the embeddings API settings used for preference enrichment.
type OpenAIConfig struct {
	Key            string `yaml:"key" mapstructure:"key"`
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	EmbeddingModel string `yaml:"embedding_model" mapstructure:"embedding_model"`
	TopK           int    `yaml:"top_k" mapstructure:"top_k"`
}

// BookingConfig holds the flight/hotel price API settings.
type BookingConfig struct {
	Key          string  `yaml:"key" mapstructure:"key"`
	Host         string  `yaml:"host" mapstructure:"host"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	Currency     string  `yaml:"currency" mapstructure:"currency"`
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	CacheTTLMins int     `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
}

// PricingConfig holds the cost model rates.
type PricingConfig struct {
	Meals          map[string]MealPricing `yaml:"meals" mapstructure:"meals"`
	AttractionFee  float64                `yaml:"attraction_fee" mapstructure:"attraction_fee"`
	LocalTransport float64                `yaml:"local_transport" mapstructure:"local_transport"`
	BaseFlight     float64                `yaml:"base_flight" mapstructure:"base_flight"`
	FlightMul      map[string]float64     `yaml:"flight_multiplier" mapstructure:"flight_multiplier"`
	HotelNightly   map[string]float64     `yaml:"hotel_nightly" mapstructure:"hotel_nightly"`
}

// MealPricing holds per-meal prices (USD) for one travel style.
type MealPricing struct {
	Breakfast float64 `yaml:"breakfast" mapstructure:"breakfast"`
	Lunch     float64 `yaml:"lunch" mapstructure:"lunch"`
	Dinner    float64 `yaml:"dinner" mapstructure:"dinner"`
}

// CatalogConfig points at an optional venue catalog override.
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PipelineConfig configures orchestration behavior.
type PipelineConfig struct {
	MaxReoptimizations int `yaml:"max_reoptimizations" mapstructure:"max_reoptimizations"`
	StageTimeoutSecs   int `yaml:"stage_timeout_secs" mapstructure:"stage_timeout_secs"`
}

// TripLogConfig configures the request/response log.
type TripLogConfig struct {
	Dir     string `yaml:"dir" mapstructure:"dir"`
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentRequests int `yaml:"max_concurrent_requests" mapstructure:"max_concurrent_requests"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TRIP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "trip.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("batch.max_concurrent_requests", 4)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("openai.embedding_model", "text-embedding-3-small")
	v.SetDefault("openai.top_k", 3)
	v.SetDefault("booking.host", "booking-com15.p.rapidapi.com")
	v.SetDefault("booking.base_url", "https://booking-com15.p.rapidapi.com")
	v.SetDefault("booking.currency", "USD")
	v.SetDefault("booking.rate_limit", 2.0)
	v.SetDefault("booking.cache_ttl_mins", 60)
	v.SetDefault("pipeline.max_reoptimizations", 3)
	v.SetDefault("pipeline.stage_timeout_secs", 10)
	v.SetDefault("triplog.dir", "logs")
	v.SetDefault("triplog.enabled", true)

	v.SetDefault("pricing.meals.budget.breakfast", 10)
	v.SetDefault("pricing.meals.budget.lunch", 15)
	v.SetDefault("pricing.meals.budget.dinner", 20)
	v.SetDefault("pricing.meals.moderate.breakfast", 15)
	v.SetDefault("pricing.meals.moderate.lunch", 25)
	v.SetDefault("pricing.meals.moderate.dinner", 40)
	v.SetDefault("pricing.meals.luxury.breakfast", 30)
	v.SetDefault("pricing.meals.luxury.lunch", 50)
	v.SetDefault("pricing.meals.luxury.dinner", 100)
	v.SetDefault("pricing.attraction_fee", 25)
	v.SetDefault("pricing.local_transport", 30)
	v.SetDefault("pricing.base_flight", 300)
	v.SetDefault("pricing.flight_multiplier.budget", 0.8)
	v.SetDefault("pricing.flight_multiplier.moderate", 1.0)
	v.SetDefault("pricing.flight_multiplier.luxury", 1.5)
	v.SetDefault("pricing.hotel_nightly.budget", 80)
	v.SetDefault("pricing.hotel_nightly.moderate", 150)
	v.SetDefault("pricing.hotel_nightly.luxury", 300)
}

// Validate checks the settings required by the given command mode.
// Modes: "plan", "serve", "seed".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Pipeline.MaxReoptimizations < 0 || c.Pipeline.MaxReoptimizations > 10 {
		errs = append(errs, "pipeline.max_reoptimizations must be between 0 and 10")
	}
	if c.Pipeline.StageTimeoutSecs <= 0 {
		errs = append(errs, "pipeline.stage_timeout_secs must be > 0")
	}

	switch mode {
	case "plan":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Batch.MaxConcurrentRequests < 1 || c.Batch.MaxConcurrentRequests > 50 {
			errs = append(errs, "batch.max_concurrent_requests must be between 1 and 50")
		}
	case "batch":
		if c.Batch.MaxConcurrentRequests < 1 || c.Batch.MaxConcurrentRequests > 50 {
			errs = append(errs, "batch.max_concurrent_requests must be between 1 and 50")
		}
	case "seed":
		if c.OpenAI.Key == "" {
			errs = append(errs, "openai.key is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

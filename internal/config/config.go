package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Prompts   PromptsConfig   `yaml:"prompts" mapstructure:"prompts"`
	Evaluator EvaluatorConfig `yaml:"evaluator" mapstructure:"evaluator"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Azure     AzureConfig     `yaml:"azure" mapstructure:"azure"`
	OpenAI    OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// PromptsConfig locates the prompt document.
type PromptsConfig struct {
	Path      string `yaml:"path" mapstructure:"path"`
	MaxPasses int    `yaml:"max_passes" mapstructure:"max_passes"`
}

// EvaluatorConfig selects the remote evaluator and its call settings.
type EvaluatorConfig struct {
	Provider          string  `yaml:"provider" mapstructure:"provider"`
	Temperature       float64 `yaml:"temperature" mapstructure:"temperature"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// Timeout returns the per-attempt deadline.
func (e EvaluatorConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSecs) * time.Second
}

// RetryConfig configures retries of transient evaluator failures.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// AzureConfig holds Azure OpenAI deployment settings.
type AzureConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	Endpoint   string `yaml:"endpoint" mapstructure:"endpoint"`
	Deployment string `yaml:"deployment" mapstructure:"deployment"`
	APIVersion string `yaml:"api_version" mapstructure:"api_version"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// StoreConfig configures the attempt history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// Evaluator providers.
const (
	ProviderAzure     = "azure"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TUTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("prompts.path", "prompts/workbook.yml")
	v.SetDefault("prompts.max_passes", 3)
	v.SetDefault("evaluator.provider", ProviderAzure)
	v.SetDefault("evaluator.temperature", 0.3)
	v.SetDefault("evaluator.timeout_secs", 60)
	v.SetDefault("evaluator.requests_per_second", 0)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 1000)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 1.5)
	v.SetDefault("retry.jitter_fraction", 0)
	v.SetDefault("azure.key", "")
	v.SetDefault("azure.endpoint", "")
	v.SetDefault("azure.deployment", "")
	v.SetDefault("azure.api_version", "2024-06-01")
	v.SetDefault("openai.key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.database_url", "file::memory:?cache=shared")

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

// Validate checks the settings required by a command mode ("serve" or
// "evaluate"). All problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		switch c.Store.Driver {
		case "memory":
		case "sqlite":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required for the sqlite driver")
			}
		default:
			errs = append(errs, fmt.Sprintf("store.driver %q must be memory or sqlite", c.Store.Driver))
		}
		errs = append(errs, c.evaluatorErrors()...)
	case "evaluate":
		errs = append(errs, c.evaluatorErrors()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) evaluatorErrors() []string {
	var errs []string

	if c.Prompts.Path == "" {
		errs = append(errs, "prompts.path is required")
	}
	if c.Evaluator.Temperature < 0 || c.Evaluator.Temperature > 2 {
		errs = append(errs, "evaluator.temperature must be between 0 and 2")
	}
	if c.Evaluator.TimeoutSecs <= 0 {
		errs = append(errs, "evaluator.timeout_secs must be > 0")
	}
	if c.Evaluator.RequestsPerSecond < 0 {
		errs = append(errs, "evaluator.requests_per_second must be >= 0")
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry.max_attempts must be >= 1")
	}

	switch c.Evaluator.Provider {
	case ProviderAzure:
		if c.Azure.Key == "" {
			errs = append(errs, "azure.key is required")
		}
		if c.Azure.Endpoint == "" {
			errs = append(errs, "azure.endpoint is required")
		}
		if c.Azure.Deployment == "" {
			errs = append(errs, "azure.deployment is required")
		}
	case ProviderOpenAI:
		if c.OpenAI.Key == "" {
			errs = append(errs, "openai.key is required")
		}
	case ProviderAnthropic:
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("evaluator.provider %q must be azure, openai or anthropic", c.Evaluator.Provider))
	}
	return errs
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

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"hypoforge/internal/errors"
	"hypoforge/models"
)

// Config represents the complete application configuration
type Config struct {
	Database  DatabaseConfig
	AI        AIConfig
	Auth      AuthConfig
	Sandbox   SandboxConfig
	Server    ServerConfig
	Paths     PathConfig
	Profiling ProfilingConfig
	LogLevel  string
}

// DatabaseConfig holds database connection settings. An empty URL keeps test
// runs and usage in memory.
type DatabaseConfig struct {
	URL string
}

// Enabled reports whether a database is configured
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// AIConfig holds model endpoint settings
type AIConfig struct {
	BaseURL     string
	Model       string
	Temperature float64
	AppTag      string
	Timeout     time.Duration
	PromptsDir  string
}

// AuthConfig selects where the bearer credential comes from. Precedence:
// APIKey, then TokenFile, then TokenURL.
type AuthConfig struct {
	TokenURL  string
	LoginURL  string
	APIKey    string
	TokenFile string
}

// SandboxConfig holds the python runtime settings
type SandboxConfig struct {
	PythonBin string
	Timeout   time.Duration
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string
	GinMode string
}

// PathConfig holds file system paths
type PathConfig struct {
	DemosConfig string
}

// ProfilingConfig holds performance profiling settings
type ProfilingConfig struct {
	Port    string
	Enabled bool
}

// Load reads configuration from environment variables and validates it. No
// variable is required; a missing credential surfaces later as AUTH_MISSING.
func Load() (*Config, error) {
	defaults := models.DefaultAIConfig()

	config := &Config{
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		AI: AIConfig{
			BaseURL:     getEnvOrDefault("LLM_BASE_URL", defaults.BaseURL),
			Model:       getEnvOrDefault("LLM_MODEL", defaults.Model),
			Temperature: getEnvFloatOrDefault("TEMPERATURE", defaults.Temperature),
			AppTag:      getEnvOrDefault("LLM_APP_TAG", defaults.AppTag),
			Timeout:     getEnvDurationOrDefault("LLM_TIMEOUT", defaults.Timeout),
			PromptsDir:  getEnvOrDefault("PROMPTS_DIR", defaults.PromptsDir),
		},
		Auth: AuthConfig{
			TokenURL:  getEnvOrDefault("TOKEN_URL", "https://llmfoundry.straive.com/token"),
			LoginURL:  getEnvOrDefault("LOGIN_URL", "https://llmfoundry.straive.com/login"),
			APIKey:    os.Getenv("LLM_API_KEY"),
			TokenFile: os.Getenv("TOKEN_FILE"),
		},
		Sandbox: SandboxConfig{
			PythonBin: getEnvOrDefault("PYTHON_BIN", "python3"),
			Timeout:   getEnvDurationOrDefault("SANDBOX_TIMEOUT", 2*time.Minute),
		},
		Server: ServerConfig{
			Port:    getEnvOrDefault("PORT", "8080"),
			GinMode: getEnvOrDefault("GIN_MODE", "debug"),
		},
		Paths: PathConfig{
			DemosConfig: getEnvOrDefault("DEMOS_CONFIG", "config.json"),
		},
		Profiling: ProfilingConfig{
			Port:    getEnvOrDefault("PPROF_PORT", "6060"),
			Enabled: getEnvBoolOrDefault("PPROF_ENABLED", false),
		},
		LogLevel: getEnvOrDefault("LOG_LEVEL", "INFO"),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

// ModelConfig converts the AI settings for the chat client
func (c *Config) ModelConfig() *models.AIConfig {
	return &models.AIConfig{
		BaseURL:     c.AI.BaseURL,
		Model:       c.AI.Model,
		Temperature: c.AI.Temperature,
		AppTag:      c.AI.AppTag,
		Timeout:     c.AI.Timeout,
		PromptsDir:  c.AI.PromptsDir,
	}
}

func validateConfig(config *Config) error {
	if config.AI.BaseURL == "" {
		return errors.ConfigInvalid("LLM_BASE_URL must not be empty")
	}
	if config.AI.Temperature < 0 || config.AI.Temperature > 2 {
		return errors.ConfigInvalid(fmt.Sprintf("TEMPERATURE must be within [0, 2], got %g", config.AI.Temperature))
	}
	if config.AI.Timeout <= 0 {
		return errors.ConfigInvalid("LLM_TIMEOUT must be positive")
	}
	if config.Sandbox.Timeout <= 0 {
		return errors.ConfigInvalid("SANDBOX_TIMEOUT must be positive")
	}
	if config.Server.Port == "" {
		return errors.ConfigInvalid("PORT must not be empty")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault accepts Go durations ("90s") or plain seconds ("90")
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

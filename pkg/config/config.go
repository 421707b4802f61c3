package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
	GoogleAPIKey    string
	DeepSeekAPIKey  string
	RoutingConfig   *RoutingConfig
	Server          ServerConfig
	Storage         StorageConfig
	Redis           RedisConfig
	Embedding       EmbeddingConfig
	Logging         LoggingConfig
	ConfigDir       string
}

// FileConfig represents the structure of ~/.switchboard/config.yaml.
// Secrets are never read from it.
type FileConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the HTTP intake surface.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	AdminSecret     string        `yaml:"-"`
	AllowAllOrigins bool          `yaml:"allow_all_origins"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ProcessInterval time.Duration `yaml:"process_interval"`
}

// StorageConfig selects the durable store.
type StorageConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`
}

// RedisConfig enables the cross-process feedback lock when URL is set.
type RedisConfig struct {
	URL     string        `yaml:"-"`
	LockTTL time.Duration `yaml:"lock_ttl"`
}

// EmbeddingConfig selects the embedding generator.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // "openai", "google" or "hash"
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	Production bool   `yaml:"production"`
}

// Load reads configuration from config files and environment variables.
// Environment variables take precedence over file configuration.
func Load() (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	routingPath := filepath.Join(configDir, "routing.yaml")
	var routing *RoutingConfig
	if _, err := os.Stat(routingPath); err == nil {
		routing, err = LoadRoutingConfig(routingPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load routing config: %w", err)
		}
	} else {
		routing = DefaultRoutingConfig()
	}

	return build(configDir, routing)
}

// LoadWithRoutingFile loads config with a specific routing file.
func LoadWithRoutingFile(routingPath string) (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	routing, err := LoadRoutingConfig(routingPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load routing config from %s: %w", routingPath, err)
	}

	return build(configDir, routing)
}

func build(configDir string, routing *RoutingConfig) (*Config, error) {
	fileConfig, err := loadFileConfig(filepath.Join(configDir, "config.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		GoogleAPIKey:    os.Getenv("GOOGLE_API_KEY"),
		DeepSeekAPIKey:  os.Getenv("DEEPSEEK_API_KEY"),
		RoutingConfig:   routing,
		Server:          fileConfig.Server,
		Storage:         fileConfig.Storage,
		Redis:           fileConfig.Redis,
		Embedding:       fileConfig.Embedding,
		Logging:         fileConfig.Logging,
		ConfigDir:       configDir,
	}

	cfg.Server.Addr = getEnvOrDefault("SWITCHBOARD_ADDR", cfg.Server.Addr)
	cfg.Server.AdminSecret = os.Getenv("SWITCHBOARD_ADMIN_SECRET")
	cfg.Storage.Driver = getEnvOrDefault("SWITCHBOARD_DB_DRIVER", cfg.Storage.Driver)
	cfg.Storage.DSN = getEnvOrDefault("SWITCHBOARD_DB_DSN", cfg.Storage.DSN)
	cfg.Redis.URL = os.Getenv("SWITCHBOARD_REDIS_URL")
	cfg.Embedding.Provider = getEnvOrDefault("SWITCHBOARD_EMBEDDING_PROVIDER", cfg.Embedding.Provider)
	cfg.Logging.Level = getEnvOrDefault("SWITCHBOARD_LOG_LEVEL", cfg.Logging.Level)
	if dims := os.Getenv("SWITCHBOARD_EMBEDDING_DIMENSIONS"); dims != "" {
		n, err := strconv.Atoi(dims)
		if err != nil {
			return nil, fmt.Errorf("invalid SWITCHBOARD_EMBEDDING_DIMENSIONS %q: %w", dims, err)
		}
		cfg.Embedding.Dimensions = n
	}

	applyDefaults(cfg)
	return cfg, nil
}

// HasAdapter returns true if the API key for the given adapter is configured.
func (c *Config) HasAdapter(name string) bool {
	switch name {
	case "anthropic":
		return c.AnthropicAPIKey != ""
	case "openai":
		return c.OpenAIAPIKey != ""
	case "google":
		return c.GoogleAPIKey != ""
	case "deepseek":
		return c.DeepSeekAPIKey != ""
	case "mock":
		return true
	default:
		return false
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8088"
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 30 * time.Second
	}
	if cfg.Server.ProcessInterval == 0 {
		cfg.Server.ProcessInterval = time.Hour
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.DSN == "" && cfg.Storage.Driver == "sqlite" {
		cfg.Storage.DSN = filepath.Join(cfg.ConfigDir, "switchboard.db")
	}
	if cfg.Redis.LockTTL == 0 {
		cfg.Redis.LockTTL = 10 * time.Minute
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "hash"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 768
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// loadFileConfig reads the config file, returning empty config if not found.
func loadFileConfig(path string) (*FileConfig, error) {
	cfg := &FileConfig{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// getEnvOrDefault returns the environment variable value if set,
// otherwise returns the default value.
func getEnvOrDefault(envVar, defaultValue string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultValue
}

func getConfigDir() (string, error) {
	if dir := os.Getenv("SWITCHBOARD_HOME"); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", err
		}
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(home, ".switchboard")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}
	return configDir, nil
}

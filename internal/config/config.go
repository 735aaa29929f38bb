package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ZanzyTHEbar/review-relay/internal/errors"
)

// KnownEvents lists the webhook event types a repository may enable
var KnownEvents = []string{"issues", "pull_request", "pull_request_review", "workflow_run"}

// Config is the resolved runtime configuration.
// Resolution order is defaults, then the YAML file, then environment overrides.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	GitHub       GitHubConfig       `yaml:"github"`
	Claude       ClaudeConfig       `yaml:"claude"`
	Repositories []RepositoryConfig `yaml:"repositories"`
	Prompts      PromptsConfig      `yaml:"prompts"`
	Outputs      OutputsConfig      `yaml:"outputs"`
	Logging      LoggingConfig      `yaml:"logging"`
	Features     FeaturesConfig     `yaml:"features"`
	Redis        RedisConfig        `yaml:"redis"`
	Journal      JournalConfig      `yaml:"journal"`
}

type ServerConfig struct {
	Host         string   `yaml:"host"`
	Port         int      `yaml:"port"`
	WebhookPath  string   `yaml:"webhook_path"`
	CORSOrigins  []string `yaml:"cors_origins"`
	EnableDocs   bool     `yaml:"enable_docs"`
	MaxBodyBytes int64    `yaml:"max_body_bytes"`
}

// Addr is the listen address for the HTTP server
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type GitHubConfig struct {
	Token         string `yaml:"token"`
	WebhookSecret string `yaml:"webhook_secret"`
	BaseURL       string `yaml:"base_url"`
}

type ClaudeConfig struct {
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	BaseURL     string        `yaml:"base_url"`
	MinInterval time.Duration `yaml:"min_interval"`
	Timeout     time.Duration `yaml:"timeout"`
}

// RepositoryConfig enables a set of events for one owner/name repository
type RepositoryConfig struct {
	Name     string         `yaml:"name"`
	Events   []string       `yaml:"events"`
	Settings map[string]any `yaml:"settings"`
}

type PromptsConfig struct {
	BaseDir   string                       `yaml:"base_dir"`
	Templates map[string]map[string]string `yaml:"templates"`
}

type OutputsConfig struct {
	BaseDir     string            `yaml:"base_dir"`
	Directories map[string]string `yaml:"directories"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type FeaturesConfig struct {
	AsyncProcessing     bool   `yaml:"async_processing"`
	RateLimiting        bool   `yaml:"rate_limiting"`
	SignatureValidation bool   `yaml:"signature_validation"`
	PayloadLogging      bool   `yaml:"payload_logging"`
	SentinelLabel       string `yaml:"sentinel_label"`
	MaxConcurrentTasks  int    `yaml:"max_concurrent_tasks"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type JournalConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Default returns the configuration used when a key is absent from the file
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        9000,
			WebhookPath: "/github-webhook",
		},
		Claude: ClaudeConfig{
			Model:       "claude-3-5-sonnet-20241022",
			MaxTokens:   4000,
			BaseURL:     "https://api.anthropic.com",
			MinInterval: time.Second,
			Timeout:     120 * time.Second,
		},
		Prompts: PromptsConfig{
			BaseDir:   "prompts",
			Templates: map[string]map[string]string{},
		},
		Outputs: OutputsConfig{
			BaseDir: "outputs",
			Directories: map[string]string{
				"issues":        "issues",
				"pull_requests": "pull_requests",
				"reviews":       "reviews",
				"workflows":     "workflows",
			},
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "json",
		},
		Features: FeaturesConfig{
			AsyncProcessing:     true,
			RateLimiting:        true,
			SignatureValidation: true,
			SentinelLabel:       "clide-analyzed",
			MaxConcurrentTasks:  4,
		},
		Journal: JournalConfig{
			Driver: "none",
		},
	}
}

// Load reads path, expands ${VAR} references and applies environment overrides
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.NewConfigurationError(fmt.Sprintf("read config file %s", path), err)
	}

	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return Config{}, errors.NewConfigurationError("parse config file", err)
	}

	applyEnv(&cfg)
	cfg.fillDefaults()

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.GitHub.Token = v
	}
	if v := os.Getenv("GITHUB_WEBHOOK_SECRET"); v != "" {
		cfg.GitHub.WebhookSecret = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Claude.APIKey = v
	}
	if v := os.Getenv("HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Journal.Driver = "postgres"
		cfg.Journal.DSN = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// fillDefaults restores defaults that an explicit empty value in the file cleared
func (c *Config) fillDefaults() {
	def := Default()
	if c.Server.WebhookPath == "" {
		c.Server.WebhookPath = def.Server.WebhookPath
	}
	if !strings.HasPrefix(c.Server.WebhookPath, "/") {
		c.Server.WebhookPath = "/" + c.Server.WebhookPath
	}
	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Claude.MaxTokens <= 0 {
		c.Claude.MaxTokens = def.Claude.MaxTokens
	}
	if c.Claude.Model == "" {
		c.Claude.Model = def.Claude.Model
	}
	if c.Claude.BaseURL == "" {
		c.Claude.BaseURL = def.Claude.BaseURL
	}
	if c.Features.SentinelLabel == "" {
		c.Features.SentinelLabel = def.Features.SentinelLabel
	}
	if c.Features.MaxConcurrentTasks <= 0 {
		c.Features.MaxConcurrentTasks = def.Features.MaxConcurrentTasks
	}
	if c.Outputs.Directories == nil {
		c.Outputs.Directories = def.Outputs.Directories
	}
	if c.Journal.Driver == "" {
		c.Journal.Driver = def.Journal.Driver
	}
}

// Validate reports the first problem that would prevent the service from running
func (c Config) Validate() error {
	if c.GitHub.Token == "" {
		return errors.NewConfigurationError("github.token is required", nil)
	}
	if c.Features.SignatureValidation && c.GitHub.WebhookSecret == "" {
		return errors.NewConfigurationError("github.webhook_secret is required when signature validation is enabled", nil)
	}
	if c.Claude.APIKey == "" {
		return errors.NewConfigurationError("claude.api_key is required", nil)
	}

	seen := make(map[string]bool, len(c.Repositories))
	for _, repo := range c.Repositories {
		owner, name, ok := strings.Cut(repo.Name, "/")
		if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
			return errors.NewConfigurationError(fmt.Sprintf("repository %q must be owner/name", repo.Name), nil)
		}
		if seen[repo.Name] {
			return errors.NewConfigurationError(fmt.Sprintf("repository %q configured twice", repo.Name), nil)
		}
		seen[repo.Name] = true

		for _, ev := range repo.Events {
			if !isKnownEvent(ev) {
				return errors.NewConfigurationError(fmt.Sprintf("repository %q enables unknown event %q", repo.Name, ev), nil)
			}
		}
	}

	switch c.Journal.Driver {
	case "none", "sqlite", "postgres":
	default:
		return errors.NewConfigurationError(fmt.Sprintf("journal.driver %q is not supported", c.Journal.Driver), nil)
	}
	if c.Journal.Driver == "postgres" && c.Journal.DSN == "" {
		return errors.NewConfigurationError("journal.dsn is required for the postgres driver", nil)
	}

	return nil
}

func isKnownEvent(ev string) bool {
	for _, known := range KnownEvents {
		if ev == known {
			return true
		}
	}
	return false
}

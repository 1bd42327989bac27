package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/dyluth/wikibot/internal/content"
	"github.com/dyluth/wikibot/internal/contribution"
	"github.com/dyluth/wikibot/internal/event"
	"github.com/dyluth/wikibot/internal/hosting"
	"github.com/dyluth/wikibot/internal/lock"
)

const (
	// DefaultConfigFile is read from the working directory when present.
	DefaultConfigFile = "wikibot.yml"
	// DefaultEnvFile is loaded into the environment before reading it.
	DefaultEnvFile = ".env"
	// EnvPrefix prefixes every environment override (WIKIBOT_LOCK_BACKEND, ...).
	EnvPrefix = "WIKIBOT"
)

// Lock backends.
const (
	BackendIssue = "issue"
	BackendRedis = "redis"
)

// Config is the bot configuration, assembled from wikibot.yml, .env and the
// environment.
type Config struct {
	Token         string          `mapstructure:"token"`
	Event         string          `mapstructure:"event"` // Raw event payload JSON
	Marker        string          `mapstructure:"marker"`
	Reviewer      string          `mapstructure:"reviewer"`
	Branch        string          `mapstructure:"branch"`
	DefaultBranch string          `mapstructure:"default_branch"`
	Workdir       string          `mapstructure:"workdir"`
	Committer     CommitterConfig `mapstructure:"committer"`
	Git           GitConfig       `mapstructure:"git"`
	Lock          LockConfig      `mapstructure:"lock"`
}

// CommitterConfig is the identity contributions are committed as.
type CommitterConfig struct {
	Name  string `mapstructure:"name"`
	Email string `mapstructure:"email"`
}

// GitConfig holds content repository transport settings.
type GitConfig struct {
	Username string `mapstructure:"username"` // HTTP basic auth user paired with the token
}

// LockConfig selects the lock backend and the acquisition policy.
type LockConfig struct {
	Backend      string        `mapstructure:"backend"`
	Issue        int           `mapstructure:"issue"`
	RedisURL     string        `mapstructure:"redis_url"`
	SettlePeriod time.Duration `mapstructure:"settle_period"`
	Wait         time.Duration `mapstructure:"wait"`
	MaxJitter    time.Duration `mapstructure:"max_jitter"`
	MaxAttempts  int           `mapstructure:"max_attempts"` // 0 = unlimited
	Deadline     time.Duration `mapstructure:"deadline"`     // 0 = none
}

func setDefaults(v *viper.Viper) {
	policy := lock.DefaultPolicy()

	v.SetDefault("token", "")
	v.SetDefault("event", "")
	v.SetDefault("marker", event.DefaultMarker)
	v.SetDefault("reviewer", contribution.DefaultReviewer)
	v.SetDefault("branch", "main")
	v.SetDefault("default_branch", "main")
	v.SetDefault("workdir", ".")
	v.SetDefault("committer.name", content.DefaultCommitter.Name)
	v.SetDefault("committer.email", content.DefaultCommitter.Email)
	v.SetDefault("git.username", content.DefaultCommitter.Name)

	v.SetDefault("lock.backend", BackendIssue)
	v.SetDefault("lock.issue", hosting.DefaultLockIssue)
	v.SetDefault("lock.redis_url", "")
	v.SetDefault("lock.settle_period", policy.SettlePeriod)
	v.SetDefault("lock.wait", policy.Wait)
	v.SetDefault("lock.max_jitter", policy.MaxJitter)
	v.SetDefault("lock.max_attempts", policy.MaxAttempts)
	v.SetDefault("lock.deadline", policy.Deadline)
}

func bindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Names used by the existing workflow definitions.
	if err := v.BindEnv("token", EnvPrefix+"_TOKEN", "BAIPIAO_BOT_TOKEN"); err != nil {
		return err
	}
	return v.BindEnv("event", EnvPrefix+"_EVENT", "JSON")
}

// Load reads the configuration from path (or wikibot.yml if present when
// path is empty), .env and the environment, then validates it.
func Load(path string) (*Config, error) {
	return LoadFiles(path, DefaultEnvFile)
}

// LoadFiles is Load with an explicit env file. Missing env files are ignored.
func LoadFiles(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate performs strict validation on the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Marker) == "" {
		return fmt.Errorf("marker is required")
	}
	if c.Reviewer == "" {
		return fmt.Errorf("reviewer is required")
	}
	if c.Branch == "" || c.DefaultBranch == "" {
		return fmt.Errorf("branch and default_branch are required")
	}
	if c.Committer.Name == "" || c.Committer.Email == "" {
		return fmt.Errorf("committer.name and committer.email are required")
	}

	return c.Lock.Validate()
}

// Validate checks the lock backend and policy.
func (l *LockConfig) Validate() error {
	switch l.Backend {
	case BackendIssue:
		if l.Issue <= 0 {
			return fmt.Errorf("lock.issue must be > 0, got %d", l.Issue)
		}
	case BackendRedis:
		if l.RedisURL == "" {
			return fmt.Errorf("lock.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("invalid lock.backend: %s (must be '%s' or '%s')", l.Backend, BackendIssue, BackendRedis)
	}

	if l.SettlePeriod < 0 || l.Wait < 0 || l.MaxJitter < 0 || l.Deadline < 0 {
		return fmt.Errorf("lock durations must be >= 0")
	}
	if l.MaxAttempts < 0 {
		return fmt.Errorf("lock.max_attempts must be >= 0 (0 = unlimited), got %d", l.MaxAttempts)
	}
	return nil
}

// RequireToken fails when no hosting token is configured.
func (c *Config) RequireToken() error {
	if c.Token == "" {
		return fmt.Errorf("no token configured (set %s_TOKEN or BAIPIAO_BOT_TOKEN)", EnvPrefix)
	}
	return nil
}

// Policy returns the lock acquisition policy.
func (c *Config) Policy() lock.Policy {
	return lock.Policy{
		SettlePeriod: c.Lock.SettlePeriod,
		Wait:         c.Lock.Wait,
		MaxJitter:    c.Lock.MaxJitter,
		MaxAttempts:  c.Lock.MaxAttempts,
		Deadline:     c.Lock.Deadline,
	}
}

// CommitterSignature returns the commit identity.
func (c *Config) CommitterSignature() content.Signature {
	return content.Signature{Name: c.Committer.Name, Email: c.Committer.Email}
}

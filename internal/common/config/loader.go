// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml on top
// and applies environment overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // env overlay is optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars replaces ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills secrets from well-known env vars when the config
// files left them empty.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Backend.APIToken == "" {
		if val := os.Getenv("PROJECT_API_TOKEN"); val != "" {
			cfg.Backend.APIToken = val
		}
	}
	if cfg.Drafts.Redis.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.Drafts.Redis.Password = val
		}
	}
	if cfg.Files.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Files.Postgres.User = val
		}
	}
	if cfg.Files.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Files.Postgres.Password = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "project-editor"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}

	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = 10000
	}

	if cfg.Autosave.QuietPeriodMs == 0 {
		cfg.Autosave.QuietPeriodMs = 2000
	}
	if cfg.Autosave.SaveTimeout == 0 {
		cfg.Autosave.SaveTimeout = 15000
	}

	if cfg.Drafts.KeyPrefix == "" {
		cfg.Drafts.KeyPrefix = "project-draft"
	}

	if cfg.Files.Source == "" {
		cfg.Files.Source = FileSourceAPI
	}
	if cfg.Files.Postgres.MaxConnections == 0 {
		cfg.Files.Postgres.MaxConnections = 5
	}
	if cfg.Files.Postgres.MaxIdle == 0 {
		cfg.Files.Postgres.MaxIdle = 2
	}
	if cfg.Files.Postgres.SSLMode == "" {
		cfg.Files.Postgres.SSLMode = "disable"
	}

	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":9090"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if cfg.Backend.Timeout < 0 {
		return fmt.Errorf("backend.timeout must not be negative")
	}
	if cfg.Autosave.QuietPeriodMs < 0 {
		return fmt.Errorf("autosave.quiet_period_ms must not be negative")
	}

	if cfg.Drafts.Redis.Address == "" {
		return fmt.Errorf("drafts.redis.address is required")
	}

	switch cfg.Files.Source {
	case FileSourceAPI:
	case FileSourcePostgres:
		if cfg.Files.Postgres.Host == "" {
			return fmt.Errorf("files.postgres.host is required when files.source is postgres")
		}
		if cfg.Files.Postgres.Database == "" {
			return fmt.Errorf("files.postgres.database is required when files.source is postgres")
		}
	default:
		return fmt.Errorf("files.source must be %q or %q, got %q", FileSourceAPI, FileSourcePostgres, cfg.Files.Source)
	}

	if cfg.Notifications.SNS.Enabled {
		if cfg.Notifications.SNS.TopicARN == "" {
			return fmt.Errorf("notifications.sns.topic_arn is required when sns is enabled")
		}
		if cfg.Notifications.SNS.Region == "" {
			return fmt.Errorf("notifications.sns.region is required when sns is enabled")
		}
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

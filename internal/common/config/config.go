// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Backend       BackendConfig      `mapstructure:"backend"`
	Autosave      AutosaveConfig     `mapstructure:"autosave"`
	Drafts        DraftsConfig       `mapstructure:"drafts"`
	Files         FilesConfig        `mapstructure:"files"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Metrics       MetricsConfig      `mapstructure:"metrics"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// BackendConfig points at the project REST API.
type BackendConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	APIToken string `mapstructure:"api_token"`
	Timeout  int    `mapstructure:"timeout"` // milliseconds
}

// AutosaveConfig tunes the debounced save cycle.
type AutosaveConfig struct {
	QuietPeriodMs int `mapstructure:"quiet_period_ms"`
	SaveTimeout   int `mapstructure:"save_timeout"` // milliseconds
}

// DraftsConfig configures the local draft overlay store.
type DraftsConfig struct {
	Redis     RedisConfig `mapstructure:"redis"`
	KeyPrefix string      `mapstructure:"key_prefix"`
	TTL       int         `mapstructure:"ttl"` // seconds, 0 keeps drafts forever
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

const (
	FileSourceAPI      = "api"
	FileSourcePostgres = "postgres"
)

// FilesConfig selects where output artifact counts come from.
type FilesConfig struct {
	Source   string         `mapstructure:"source"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// NotificationConfig holds settings for the completion hand-off event.
type NotificationConfig struct {
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		Region   string `mapstructure:"region"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

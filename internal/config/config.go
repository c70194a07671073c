// Package config provides configuration loading and management for pgsentry.
// Settings come from a single YAML file; unset values fall back to defaults.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pgsentry/internal/domain"
)

// EnvConfigPath names the environment variable that overrides the config path.
const EnvConfigPath = "PGSENTRY_CONFIG"

// StorageMode represents the storage backend mode.
type StorageMode string

const (
	// StorageModeMemory uses in-memory implementations for all storage.
	StorageModeMemory StorageMode = "memory"
	// StorageModeStorage uses real storage backends (Kafka, Redis, PostgreSQL).
	StorageModeStorage StorageMode = "storage"
)

// IsValid returns true if the storage mode is valid.
func (m StorageMode) IsValid() bool {
	return m == StorageModeMemory || m == StorageModeStorage
}

// Notification providers.
const (
	ProviderStub   = "stub"
	ProviderSMTP   = "smtp"
	ProviderResend = "resend"
)

// Config represents the complete application configuration.
type Config struct {
	Storage       StorageConfig           `yaml:"storage"`
	Server        ServerConfig            `yaml:"server"`
	Kafka         KafkaConfig             `yaml:"kafka"`
	Redis         RedisConfig             `yaml:"redis"`
	Postgres      PostgresConfig          `yaml:"postgres"`
	Logger        LoggerConfig            `yaml:"logger"`
	Auth          AuthConfig              `yaml:"auth"`
	Catalog       CatalogConfig           `yaml:"catalog"`
	Execution     ExecutionConfig         `yaml:"execution"`
	Notifications NotificationConfig      `yaml:"notifications"`
	Targets       map[string]TargetConfig `yaml:"targets"`
}

// StorageConfig holds the storage mode configuration.
type StorageConfig struct {
	Mode StorageMode `yaml:"mode"`
}

// UseMemory returns true if in-memory storage should be used.
func (c *StorageConfig) UseMemory() bool {
	return c.Mode == StorageModeMemory
}

// UseStorage returns true if real storage backends should be used.
func (c *StorageConfig) UseStorage() bool {
	return c.Mode == StorageModeStorage
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// KafkaConfig holds Kafka connection and topic settings for the
// notification queue.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	Topic         string   `yaml:"topic"`
	ConsumerGroup string   `yaml:"consumer_group"`
}

// RedisConfig holds Redis connection settings for the alert cache.
type RedisConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	AlertTTL time.Duration `yaml:"alert_ttl"`
}

// PostgresConfig holds PostgreSQL connection settings for alert storage.
type PostgresConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int32  `yaml:"max_open_conns"`
	MaxIdleConns int32  `yaml:"max_idle_conns"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// AuthConfig holds credentials used to authenticate API callers.
type AuthConfig struct {
	// JWTSecret signs operator tokens (HS256).
	JWTSecret string `yaml:"jwt_secret"`
	// BotToken is the static bearer token of the alerting bot.
	BotToken string `yaml:"bot_token"`
}

// CatalogConfig points at the declarative alert, action and view files.
type CatalogConfig struct {
	AlertsPath  string `yaml:"alerts_path"`
	ActionsPath string `yaml:"actions_path"`
	ViewsPath   string `yaml:"views_path"`
}

// ExecutionConfig tunes the step runners.
type ExecutionConfig struct {
	SQLTimeout          time.Duration     `yaml:"sql_timeout"`
	SSHTimeout          time.Duration     `yaml:"ssh_timeout"`
	KnownHostsFile      string            `yaml:"known_hosts_file"`
	ExposeTargetSecrets bool              `yaml:"expose_target_secrets"`
	TemplateVars        map[string]string `yaml:"template_vars"`
}

// NotificationConfig controls alert emails.
type NotificationConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Provider   string       `yaml:"provider"`
	Severities []string     `yaml:"severities"`
	From       string       `yaml:"from"`
	SMTP       SMTPConfig   `yaml:"smtp"`
	Resend     ResendConfig `yaml:"resend"`
}

// SMTPConfig holds SMTP relay settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ResendConfig holds Resend API settings.
type ResendConfig struct {
	APIKey string `yaml:"api_key"`
}

// TargetConfig describes one monitored database host.
type TargetConfig struct {
	DBURL       string   `yaml:"db_url"`
	SSHHost     string   `yaml:"ssh_host"`
	SSHPort     int      `yaml:"ssh_port"`
	SSHUsername string   `yaml:"ssh_username"`
	SSHPassword string   `yaml:"ssh_password"`
	Admins      IDList   `yaml:"admins"`
	Receivers   IDList   `yaml:"receivers"`
	Emails      []string `yaml:"emails"`
}

// IDList is a list of principal ids. It decodes from a YAML sequence or from
// a string such as "[111, 222]".
type IDList []int64

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *IDList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var ids []int64
		if err := node.Decode(&ids); err != nil {
			return err
		}
		*l = ids
		return nil
	case yaml.ScalarNode:
		ids, err := parseIDList(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*l = ids
		return nil
	default:
		return fmt.Errorf("line %d: expected a list of ids", node.Line)
	}
}

func parseIDList(s string) (IDList, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")

	ids := IDList{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Load reads configuration from the specified YAML file path.
// Returns a *domain.ConfigLoadError if the file cannot be read, parsed or validated.
func Load(path string) (*Config, error) {
	// Clean the path to prevent path traversal attacks
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, &domain.ConfigLoadError{Source: cleanPath, Err: err}
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, &domain.ConfigLoadError{Source: cleanPath, Err: err}
	}
	return cfg, nil
}

// Parse decodes configuration from YAML bytes, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults sets sensible default values for configuration fields
// that are not explicitly set in the config file.
func applyDefaults(cfg *Config) {
	// Storage defaults
	if cfg.Storage.Mode == "" {
		cfg.Storage.Mode = StorageModeMemory
	}

	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		// Actions can run SSH steps for up to a minute.
		cfg.Server.WriteTimeout = 120 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}

	// Kafka defaults
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "pgsentry-notifications"
	}
	if cfg.Kafka.ConsumerGroup == "" {
		cfg.Kafka.ConsumerGroup = "pgsentry-notifier"
	}

	// Redis defaults
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.AlertTTL == 0 {
		cfg.Redis.AlertTTL = 24 * time.Hour
	}

	// Postgres defaults
	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = "localhost"
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}
	if cfg.Postgres.MaxOpenConns == 0 {
		cfg.Postgres.MaxOpenConns = 25
	}
	if cfg.Postgres.MaxIdleConns == 0 {
		cfg.Postgres.MaxIdleConns = 5
	}

	// Logger defaults
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = "json"
	}

	// Catalog defaults
	if cfg.Catalog.AlertsPath == "" {
		cfg.Catalog.AlertsPath = "config/alerts.yaml"
	}
	if cfg.Catalog.ActionsPath == "" {
		cfg.Catalog.ActionsPath = "config/actions.yaml"
	}

	// Execution defaults
	if cfg.Execution.SQLTimeout == 0 {
		cfg.Execution.SQLTimeout = 30 * time.Second
	}
	if cfg.Execution.SSHTimeout == 0 {
		cfg.Execution.SSHTimeout = 60 * time.Second
	}

	// Notification defaults
	if cfg.Notifications.Provider == "" {
		cfg.Notifications.Provider = ProviderStub
	}
	if len(cfg.Notifications.Severities) == 0 {
		cfg.Notifications.Severities = []string{"critical"}
	}
	if cfg.Notifications.SMTP.Port == 0 {
		cfg.Notifications.SMTP.Port = 587
	}

	// Target defaults
	for alias, t := range cfg.Targets {
		if t.SSHPort == 0 {
			t.SSHPort = domain.DefaultSSHPort
		}
		if t.Receivers == nil {
			t.Receivers = slices.Clone(t.Admins)
		}
		cfg.Targets[alias] = t
	}
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	var errs []error

	if !c.Storage.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("storage.mode: unknown mode %q", c.Storage.Mode))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Auth.BotToken == "" {
		errs = append(errs, errors.New("auth.bot_token is required"))
	}
	switch c.Notifications.Provider {
	case ProviderStub:
	case ProviderSMTP:
		if c.Notifications.SMTP.Host == "" {
			errs = append(errs, errors.New("notifications.smtp.host is required for the smtp provider"))
		}
	case ProviderResend:
		if c.Notifications.Resend.APIKey == "" {
			errs = append(errs, errors.New("notifications.resend.api_key is required for the resend provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("notifications.provider: unknown provider %q", c.Notifications.Provider))
	}
	for alias, t := range c.Targets {
		if t.DBURL == "" && t.SSHHost == "" {
			errs = append(errs, fmt.Errorf("targets.%s: db_url or ssh_host is required", alias))
		}
	}

	return errors.Join(errs...)
}

// TargetList converts the configured targets into domain targets.
func (c *Config) TargetList() map[string]*domain.Target {
	targets := make(map[string]*domain.Target, len(c.Targets))
	for alias, t := range c.Targets {
		targets[alias] = &domain.Target{
			Alias:       alias,
			DBURL:       t.DBURL,
			SSHHost:     t.SSHHost,
			SSHPort:     t.SSHPort,
			SSHUsername: t.SSHUsername,
			SSHPassword: t.SSHPassword,
			Admins:      slices.Clone([]int64(t.Admins)),
			Receivers:   slices.Clone([]int64(t.Receivers)),
			Emails:      slices.Clone(t.Emails),
		}
	}
	return targets
}

// Address returns the full server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ConnString returns the PostgreSQL connection URL. Credentials are
// escaped, so they may contain URL delimiters.
func (c *PostgresConfig) ConnString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// RedisAddr returns the Redis address in host:port format.
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SMTPAddr returns the SMTP relay address in host:port format.
func (c *SMTPConfig) SMTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

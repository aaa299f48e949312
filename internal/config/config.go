package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"

	defaultPort        = 2333
	defaultEnv         = "development"
	defaultDBHost      = "127.0.0.1"
	defaultDBPort      = 3306
	defaultDBUser      = "root"
	defaultDBPassword  = "password"
	defaultDBName      = "tileverse"
	defaultDBCharset   = "utf8mb4"
	defaultRedisHost   = "localhost"
	defaultRedisPort   = 6379
	defaultRetention   = 180
	defaultSummaryTTL  = 60
	defaultArchiveMode = false
)

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int             `yaml:"port"`
	Env            string          `yaml:"env"` // "development" | "production"
	DSN            string          `yaml:"dsn"` // MySQL DSN; overrides database block
	Database       DatabaseConfig  `yaml:"database"`
	RedisURL       string          `yaml:"redis_url"`
	Redis          RedisConfig     `yaml:"redis"`
	JWTSecret      string          `yaml:"jwt_secret"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	Analytics      AnalyticsConfig `yaml:"analytics"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Charset  string `yaml:"charset"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AnalyticsConfig controls the analytics engine's housekeeping.
type AnalyticsConfig struct {
	// LogRetentionDays bounds the per-record interaction log; entries older
	// than this are pruned by the retention job.
	LogRetentionDays int `yaml:"log_retention_days"`
	// SummaryCacheTTLSeconds is the Redis TTL for the aggregate summary.
	SummaryCacheTTLSeconds int           `yaml:"summary_cache_ttl_seconds"`
	Archive                ArchiveConfig `yaml:"archive"`
}

// ArchiveConfig configures S3 archival of pruned interaction logs.
type ArchiveConfig struct {
	Enable       bool   `yaml:"enable"`
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
	// PathPrefix prefixes every archive object key, e.g. "analytics/logs".
	PathPrefix string `yaml:"path_prefix"`
}

// Load reads and validates the YAML config file.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	cfg := defaultAppConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}

	cfg.normalize()
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsDev reports whether the app runs in development mode.
func (c *AppConfig) IsDev() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "development")
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Port: defaultPort,
		Env:  defaultEnv,
		Database: DatabaseConfig{
			Host:     defaultDBHost,
			Port:     defaultDBPort,
			User:     defaultDBUser,
			Password: defaultDBPassword,
			Name:     defaultDBName,
			Charset:  defaultDBCharset,
		},
		Redis: RedisConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
		},
		Analytics: AnalyticsConfig{
			LogRetentionDays:       defaultRetention,
			SummaryCacheTTLSeconds: defaultSummaryTTL,
			Archive:                ArchiveConfig{Enable: defaultArchiveMode},
		},
	}
}

func (c *AppConfig) normalize() {
	if strings.TrimSpace(c.DSN) == "" {
		c.DSN = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
			c.Database.User, c.Database.Password,
			c.Database.Host, c.Database.Port,
			c.Database.Name, c.Database.Charset)
	}
	if strings.TrimSpace(c.RedisURL) == "" {
		auth := ""
		if c.Redis.Username != "" || c.Redis.Password != "" {
			auth = c.Redis.Username + ":" + c.Redis.Password + "@"
		}
		c.RedisURL = fmt.Sprintf("redis://%s%s:%d/%d", auth, c.Redis.Host, c.Redis.Port, c.Redis.DB)
	}
}

func (c *AppConfig) validate(path string) error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d in %q, expected 1-65535", c.Port, path)
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database.port %d in %q, expected 1-65535", c.Database.Port, path)
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("invalid redis.db %d in %q, expected >= 0", c.Redis.DB, path)
	}
	if c.Analytics.LogRetentionDays < 1 {
		return fmt.Errorf("invalid analytics.log_retention_days %d in %q, expected >= 1", c.Analytics.LogRetentionDays, path)
	}
	if c.Analytics.SummaryCacheTTLSeconds < 0 {
		return fmt.Errorf("invalid analytics.summary_cache_ttl_seconds %d in %q, expected >= 0", c.Analytics.SummaryCacheTTLSeconds, path)
	}
	if c.Analytics.Archive.Enable && strings.TrimSpace(c.Analytics.Archive.Bucket) == "" {
		return fmt.Errorf("analytics.archive.bucket is required in %q when archive is enabled", path)
	}
	return nil
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Session   SessionConfig   `mapstructure:"session"`
	Courses   CoursesConfig   `mapstructure:"courses"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Snowflake SnowflakeConfig `mapstructure:"snowflake"`
}

type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Mode          string        `mapstructure:"mode"`
	CORSOrigins   []string      `mapstructure:"cors_origins"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	ShutdownWait  time.Duration `mapstructure:"shutdown_wait"`
}

// DatabaseConfig selects the driver. "sqlite" uses SQLitePath and is meant for
// local development.
type DatabaseConfig struct {
	Driver     string `mapstructure:"driver"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type PostgresConfig struct {
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

type JWTConfig struct {
	Secret        string        `mapstructure:"secret"`
	TTL           time.Duration `mapstructure:"ttl"`
	RefreshWindow time.Duration `mapstructure:"refresh_window"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"` // json, text
	Output   string `mapstructure:"output"` // stdout, file
	FilePath string `mapstructure:"file_path"`
}

// RateLimitConfig bounds message sends per user and sign-in attempts per
// client address.
type RateLimitConfig struct {
	SendLimit  int64         `mapstructure:"send_limit"`
	SendWindow time.Duration `mapstructure:"send_window"`
	AuthLimit  int64         `mapstructure:"auth_limit"`
	AuthWindow time.Duration `mapstructure:"auth_window"`
}

type KafkaConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Brokers     []string      `mapstructure:"brokers"`
	Topic       string        `mapstructure:"topic"`
	GroupID     string        `mapstructure:"group_id"`
	ClientID    string        `mapstructure:"client_id"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

type StorageConfig struct {
	Root             string   `mapstructure:"root"`
	PublicBaseURL    string   `mapstructure:"public_base_url"`
	DeniedExtensions []string `mapstructure:"denied_extensions"`
	MaxFileSize      int64    `mapstructure:"max_file_size"`
}

type SessionConfig struct {
	AuthCheckTimeout time.Duration `mapstructure:"auth_check_timeout"`
	SignInPath       string        `mapstructure:"sign_in_path"`
}

// CoursesConfig maps server id to the role key allowed to upload course content.
type CoursesConfig struct {
	ProfessorKeys map[string]string `mapstructure:"professor_keys"`
}

type ChatConfig struct {
	HistoryLimit     int `mapstructure:"history_limit"`
	MaxContentLength int `mapstructure:"max_content_length"`
}

type SnowflakeConfig struct {
	NodeID int64 `mapstructure:"node_id"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.max_concurrent", 1024)
	v.SetDefault("server.shutdown_wait", 10*time.Second)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("postgres.max_idle_conns", 10)
	v.SetDefault("postgres.max_open_conns", 50)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("jwt.ttl", 24*time.Hour)
	v.SetDefault("jwt.refresh_window", time.Hour)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("ratelimit.send_limit", 5)
	v.SetDefault("ratelimit.send_window", 5*time.Second)
	v.SetDefault("ratelimit.auth_limit", 10)
	v.SetDefault("ratelimit.auth_window", time.Minute)
	v.SetDefault("kafka.topic", "lob.mentions")
	v.SetDefault("kafka.group_id", "lob-mentions")
	v.SetDefault("kafka.client_id", "lob")
	v.SetDefault("kafka.send_timeout", 5*time.Second)
	v.SetDefault("storage.root", "./data/bucket")
	v.SetDefault("storage.public_base_url", "/files")
	v.SetDefault("storage.max_file_size", 25<<20)
	v.SetDefault("session.auth_check_timeout", 5*time.Second)
	v.SetDefault("session.sign_in_path", "/signin")
	v.SetDefault("chat.history_limit", 200)
	v.SetDefault("chat.max_content_length", 2000)
}

// LoadConfig reads a TOML file. Environment variables prefixed LOB_ override
// file values, e.g. LOB_JWT_SECRET.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("LOB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if config.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt.secret must be set")
	}
	return &config, nil
}

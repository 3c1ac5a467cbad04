package config

import (
	"chatcore/internal/snowflake"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "CHAT_"

type ConfigFile struct {
	Address           string   `koanf:"address"`
	Port              string   `koanf:"port"`
	BehindNginx       bool     `koanf:"behind_nginx"`
	TlsCert           string   `koanf:"tls_cert"`
	TlsKey            string   `koanf:"tls_key"`
	Cors              bool     `koanf:"cors"`
	AllowedOrigins    []string `koanf:"allowed_origins"`
	PrintHttpRequests bool     `koanf:"print_http_requests"`
	LogToFile         bool     `koanf:"log_to_file"`
	LogLevel          string   `koanf:"log_level"`

	JwtSecret       string        `koanf:"jwt_secret"`
	RefreshSecret   string        `koanf:"refresh_secret"`
	AccessTokenTTL  time.Duration `koanf:"access_token_ttl"`
	RefreshTokenTTL time.Duration `koanf:"refresh_token_ttl"`
	BcryptCost      int           `koanf:"bcrypt_cost"`

	SnowflakeWorkerID int64 `koanf:"snowflake_worker_id"`

	// SelfContained runs on sqlite and in-process state instead of mysql and redis
	SelfContained bool   `koanf:"self_contained"`
	SqlitePath    string `koanf:"sqlite_path"`
	DbUser        string `koanf:"db_user"`
	DbPassword    string `koanf:"db_password"`
	DbAddress     string `koanf:"db_address"`
	DbPort        string `koanf:"db_port"`
	DbDatabase    string `koanf:"db_database"`

	RedisAddress  string `koanf:"redis_address"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	PresenceTTL   time.Duration `koanf:"presence_ttl"`
	HubSendBuffer int           `koanf:"hub_send_buffer"`

	RateLimitRequests   int           `koanf:"rate_limit_requests"`
	RateLimitWindow     time.Duration `koanf:"rate_limit_window"`
	WsMessagesPerSecond float64       `koanf:"ws_messages_per_second"`
	WsBurst             int           `koanf:"ws_burst"`
}

func defaultConfig() ConfigFile {
	return ConfigFile{
		Address:             "0.0.0.0",
		Port:                "3000",
		LogLevel:            "info",
		AccessTokenTTL:      30 * time.Minute,
		RefreshTokenTTL:     7 * 24 * time.Hour,
		BcryptCost:          12,
		SelfContained:       true,
		SqlitePath:          "./database.db",
		DbAddress:           "localhost",
		DbPort:              "3306",
		RedisAddress:        "localhost:6379",
		PresenceTTL:         300 * time.Second,
		HubSendBuffer:       256,
		RateLimitRequests:   100,
		RateLimitWindow:     time.Minute,
		WsMessagesPerSecond: 20,
		WsBurst:             40,
	}
}

// Load layers the defaults, an optional yaml file and CHAT_ prefixed
// environment variables, later layers winning.
func Load(path string) (*ConfigFile, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("loading config file %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg ConfigFile
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *ConfigFile) Validate() error {
	if c.JwtSecret == "" {
		return errors.New("jwt_secret must be set")
	}
	if c.SnowflakeWorkerID < 0 || c.SnowflakeWorkerID > snowflake.MaxWorkerID {
		return fmt.Errorf("snowflake_worker_id must be between 0 and %d", snowflake.MaxWorkerID)
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	if c.PresenceTTL <= 0 {
		return errors.New("presence_ttl must be positive")
	}
	if !c.SelfContained && c.DbDatabase == "" {
		return errors.New("db_database must be set when not self contained")
	}
	return nil
}

func (c *ConfigFile) IsHttps() bool {
	return c.TlsCert != "" && c.TlsKey != ""
}

func (c *ConfigFile) ListenAddress() string {
	return fmt.Sprintf("%s:%s", c.Address, c.Port)
}

// Package config loads the daemon configuration: a YAML file with
// defaults, then CELLRULES_* environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CELLRULES_"

// Storage backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config is the daemon configuration.
type Config struct {
	LogLevel    string        `yaml:"log_level" env:"LOG_LEVEL"`
	Definitions string        `yaml:"definitions" env:"DEFINITIONS"`
	Storage     StorageConfig `yaml:"storage" envPrefix:"STORAGE_"`
	MQTT        MQTTConfig    `yaml:"mqtt" envPrefix:"MQTT_"`
	Metrics     MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`
	Notify      NotifyConfig  `yaml:"notify" envPrefix:"NOTIFY_"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend string      `yaml:"backend" env:"BACKEND"`
	SQLite  string      `yaml:"sqlite_path" env:"SQLITE_PATH"`
	Redis   RedisConfig `yaml:"redis" envPrefix:"REDIS_"`
}

// RedisConfig addresses the redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
	Prefix   string `yaml:"prefix" env:"PREFIX"`
}

// MQTTConfig addresses the broker. An empty broker disables the bridge.
type MQTTConfig struct {
	Broker   string `yaml:"broker" env:"BROKER"`
	ClientID string `yaml:"client_id" env:"CLIENT_ID"`
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
}

// MetricsConfig configures the /metrics listener. An empty address
// disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen" env:"LISTEN"`
}

// NotifyConfig holds process-wide recipient settings.
type NotifyConfig struct {
	Sendmail      string `yaml:"sendmail" env:"SENDMAIL"`
	SMSCommand    string `yaml:"sms_command" env:"SMS_COMMAND"`
	TelegramURL   string `yaml:"telegram_url" env:"TELEGRAM_URL"`
	TelegramToken string `yaml:"telegram_token" env:"TELEGRAM_TOKEN"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LogLevel:    "info",
		Definitions: "/etc/cellrules",
		Storage: StorageConfig{
			Backend: BackendSQLite,
			SQLite:  "/var/lib/cellrules/storage.db",
			Redis:   RedisConfig{Addr: "localhost:6379"},
		},
		MQTT: MQTTConfig{
			Broker:   "tcp://localhost:1883",
			ClientID: "cellrules",
		},
		Notify: NotifyConfig{
			Sendmail: "/usr/sbin/sendmail",
		},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ParseEnv applies CELLRULES_* overrides to target.
func ParseEnv(target *Config) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks field combinations.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Storage.SQLite == "" {
			return errors.New("storage.sqlite_path is required for the sqlite backend")
		}
	case BackendRedis:
		if c.Storage.Redis.Addr == "" {
			return errors.New("storage.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.MQTT.Broker != "" && c.MQTT.ClientID == "" {
		return errors.New("mqtt.client_id is required when a broker is set")
	}
	return nil
}

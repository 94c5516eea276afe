// Package config loads service settings from defaults, an optional YAML
// file and environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"routeopt/internal/opt"
)

type Config struct {
	Env           string          `yaml:"env"`
	Port          string          `yaml:"port"`
	DatabaseURL   string          `yaml:"database_url"`
	DBMigrate     bool            `yaml:"db_migrate"`
	MigrationsDir string          `yaml:"migrations_dir"`
	RedisURL      string          `yaml:"redis_url"`
	GazetteerFile string          `yaml:"gazetteer_file"`
	SpeedKmh      float64         `yaml:"speed_kmh"`
	Log           LogConfig       `yaml:"log"`
	Kafka         KafkaConfig     `yaml:"kafka"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	Auth          AuthConfig      `yaml:"auth"`
	Webhook       WebhookConfig   `yaml:"webhook"`
	Runner        RunnerConfig    `yaml:"runner"`
	Optimizer     opt.Config      `yaml:"optimizer"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// File, when set, adds a size-rotated JSON log file next to stderr.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"` // 0 disables limiting
	Burst int     `yaml:"burst"`
}

type AuthConfig struct {
	Mode       string `yaml:"mode"` // dev | hmac | jwks
	HMACSecret string `yaml:"hmac_secret"`
	JWKSURL    string `yaml:"jwks_url"`
	Issuer     string `yaml:"issuer"`
}

type WebhookConfig struct {
	Secret      string `yaml:"secret"`
	MaxAttempts int    `yaml:"max_attempts"`
}

type RunnerConfig struct {
	MaxConcurrentRuns int           `yaml:"max_concurrent_runs"`
	RunTimeout        time.Duration `yaml:"run_timeout"`
	ProgressEvery     int           `yaml:"progress_every"`
}

// envBindings maps config keys to the plain environment variable names
// the service has always honored. ROUTEOPT_<KEY> works for every key too.
var envBindings = map[string]string{
	"env":                        "APP_ENV",
	"port":                       "PORT",
	"database_url":               "DATABASE_URL",
	"db_migrate":                 "DB_MIGRATE",
	"migrations_dir":             "MIGRATIONS_DIR",
	"redis_url":                  "REDIS_URL",
	"gazetteer_file":             "GAZETTEER_FILE",
	"speed_kmh":                  "SPEED_KMH",
	"log.level":                  "LOG_LEVEL",
	"log.file":                   "LOG_FILE",
	"kafka.brokers":              "KAFKA_BROKERS",
	"kafka.topic":                "KAFKA_TOPIC",
	"rate_limit.rps":             "RATE_RPS",
	"rate_limit.burst":           "RATE_BURST",
	"auth.mode":                  "AUTH_MODE",
	"auth.hmac_secret":           "AUTH_HMAC_SECRET",
	"auth.jwks_url":              "AUTH_JWKS_URL",
	"auth.issuer":                "AUTH_ISSUER",
	"webhook.secret":             "WEBHOOK_SECRET",
	"webhook.max_attempts":       "WEBHOOK_MAX_ATTEMPTS",
	"runner.max_concurrent_runs": "MAX_CONCURRENT_RUNS",
	"runner.run_timeout":         "RUN_TIMEOUT",
	"runner.progress_every":      "PROGRESS_EVERY",
}

func setDefaults(v *viper.Viper) {
	d := opt.DefaultConfig()
	v.SetDefault("env", "development")
	v.SetDefault("port", "8080")
	v.SetDefault("database_url", "")
	v.SetDefault("db_migrate", true)
	v.SetDefault("migrations_dir", "db/migrations")
	v.SetDefault("redis_url", "")
	v.SetDefault("gazetteer_file", "configs/gazetteer.yaml")
	v.SetDefault("speed_kmh", opt.AssumedSpeedKmh)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "routeopt.runs")
	v.SetDefault("rate_limit.rps", 10.0)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("auth.mode", "dev")
	v.SetDefault("auth.hmac_secret", "")
	v.SetDefault("auth.jwks_url", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.max_attempts", 5)
	v.SetDefault("runner.max_concurrent_runs", 4)
	v.SetDefault("runner.run_timeout", 2*time.Minute)
	v.SetDefault("runner.progress_every", 1)
	v.SetDefault("optimizer.population-size", d.PopulationSize)
	v.SetDefault("optimizer.offspring", d.Offspring)
	v.SetDefault("optimizer.generations", d.Generations)
	v.SetDefault("optimizer.crossover-prob", d.CrossoverProb)
	v.SetDefault("optimizer.mutation-prob", d.MutationProb)
	v.SetDefault("optimizer.gene-mutation-prob", d.GeneMutationProb)
	v.SetDefault("optimizer.tournament-size", d.TournamentSize)
	v.SetDefault("optimizer.seed", d.Seed)
	v.SetDefault("optimizer.polish", d.Polish)
}

// Load reads path (skipped when empty) and applies environment overrides.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ROUTEOPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		prefixed := "ROUTEOPT_" + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return Config{}, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) { dc.TagName = "yaml" }); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// splitList trims entries and expands any that still hold commas.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Validate checks the settings that would otherwise fail at first use.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Port) == "" {
		errs = append(errs, errors.New("port is required"))
	}
	switch strings.ToLower(c.Auth.Mode) {
	case "dev", "jwks":
	case "hmac":
		if c.Auth.HMACSecret == "" {
			errs = append(errs, errors.New("auth.hmac_secret is required in hmac mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.mode %q is not one of dev, hmac, jwks", c.Auth.Mode))
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("rate_limit values must be >= 0"))
	}
	if c.Runner.MaxConcurrentRuns < 1 {
		errs = append(errs, errors.New("runner.max_concurrent_runs must be >= 1"))
	}
	if c.Runner.RunTimeout < 0 {
		errs = append(errs, errors.New("runner.run_timeout must be >= 0"))
	}
	if err := c.Optimizer.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// IsProduction is true for any environment other than development/test.
func (c Config) IsProduction() bool {
	switch strings.ToLower(c.Env) {
	case "", "dev", "development", "test", "local":
		return false
	}
	return true
}

// Sanitized returns a copy safe to expose on /debug/info.
func (c Config) Sanitized() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "******"
	}
	c.DatabaseURL = mask(c.DatabaseURL)
	c.RedisURL = mask(c.RedisURL)
	c.Auth.HMACSecret = mask(c.Auth.HMACSecret)
	c.Webhook.Secret = mask(c.Webhook.Secret)
	return c
}

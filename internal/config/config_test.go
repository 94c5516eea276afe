package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routeopt/internal/opt"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, opt.DefaultConfig(), cfg.Optimizer)
	assert.Equal(t, "routeopt.runs", cfg.Kafka.Topic)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, 2*time.Minute, cfg.Runner.RunTimeout)
	assert.True(t, cfg.DBMigrate)
	assert.False(t, cfg.IsProduction())
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
env: production
port: "9000"
kafka:
  brokers: ["k1:9092"]
runner:
  run_timeout: 45s
optimizer:
  generations: 250
  polish: true
`), 0o600))

	t.Setenv("PORT", "9100")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("DB_MIGRATE", "false")
	t.Setenv("ROUTEOPT_OPTIMIZER_POPULATION_SIZE", "80")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9100", cfg.Port, "env wins over file")
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.DBMigrate)
	assert.Equal(t, 45*time.Second, cfg.Runner.RunTimeout)
	assert.Equal(t, 250, cfg.Optimizer.Generations)
	assert.Equal(t, 80, cfg.Optimizer.PopulationSize)
	assert.True(t, cfg.Optimizer.Polish)
	assert.Equal(t, opt.DefaultCrossoverProb, cfg.Optimizer.CrossoverProb, "unset keys keep defaults")
	assert.True(t, cfg.IsProduction())
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("AUTH_MODE", "hmac")
	_, err := Load("")
	assert.ErrorContains(t, err, "hmac_secret")

	t.Setenv("AUTH_MODE", "dev")
	t.Setenv("ROUTEOPT_OPTIMIZER_CROSSOVER_PROB", "0.95")
	_, err = Load("")
	assert.ErrorIs(t, err, opt.ErrInvalidConfig)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "config.example.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Runner.MaxConcurrentRuns)
}

func TestSanitized(t *testing.T) {
	c := Config{DatabaseURL: "postgres://u:p@h/db", Webhook: WebhookConfig{Secret: "x"}}
	s := c.Sanitized()
	assert.Equal(t, "******", s.DatabaseURL)
	assert.Equal(t, "******", s.Webhook.Secret)
	assert.Empty(t, s.RedisURL)
	assert.Equal(t, "postgres://u:p@h/db", c.DatabaseURL)
}

// Package logging builds the service's zap loggers.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Env     string
	Service string
	Level   string // debug | info | warn | error; empty means info
	// File adds a rotated JSON log file alongside stderr.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// New returns a JSON production logger, or a console development logger
// when env is "development" (or empty), tagged with the service name.
func New(env, service string) (*zap.Logger, error) {
	return NewWithOptions(Options{Env: env, Service: service})
}

func NewWithOptions(o Options) (*zap.Logger, error) {
	level := zap.InfoLevel
	if o.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(o.Level))); err != nil {
			return nil, err
		}
	}

	var cfg zap.Config
	if isDevelopment(o.Env) {
		cfg = zap.NewDevelopmentConfig()
		if o.Level == "" {
			level = zap.DebugLevel
		}
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	opts := []zap.Option{}
	if o.File != "" {
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(&lumberjack.Logger{
				Filename:   o.File,
				MaxSize:    orDefault(o.MaxSizeMB, 100), // MB
				MaxBackups: orDefault(o.MaxBackups, 3),
				Compress:   true,
			}),
			cfg.Level,
		)
		opts = append(opts, zap.WrapCore(func(c zapcore.Core) zapcore.Core { return zapcore.NewTee(c, fileCore) }))
	}

	log, err := cfg.Build(opts...)
	if err != nil {
		return nil, err
	}
	if o.Service != "" {
		log = log.With(zap.String("service", o.Service))
	}
	return log, nil
}

// Must unwraps a New result for main packages. On error it reports to
// stderr and returns a no-op logger.
func Must(log *zap.Logger, err error) *zap.Logger {
	if err != nil {
		_, _ = os.Stderr.WriteString("logger init failed: " + err.Error() + "\n")
		return zap.NewNop()
	}
	return log
}

func isDevelopment(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "", "dev", "development", "local":
		return true
	}
	return false
}

func orDefault(v, d int) int {
	if v > 0 {
		return v
	}
	return d
}

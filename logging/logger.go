// Package logging configures the process-wide zap logger.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls log level and optional file output with rotation.
type Config struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

var level = zap.NewAtomicLevelAt(zap.InfoLevel)

// Init builds the global logger. Logs always go to stderr; if cfg.File is set
// they additionally go to a size-rotated file.
func Init(cfg Config) *zap.SugaredLogger {
	level.SetLevel(parseLevel(cfg.Level))

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewConsoleEncoder(encCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level),
	}
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    defaultInt(cfg.MaxSizeMB, 50),
			MaxBackups: defaultInt(cfg.MaxBackups, 5),
			MaxAge:     defaultInt(cfg.MaxAgeDays, 14),
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotator), level))
	}

	logger := zap.New(zapcore.NewTee(cores...))
	zap.ReplaceGlobals(logger)
	return logger.Sugar()
}

// SetLevel changes the level of the running logger, used by config reload.
func SetLevel(s string) {
	level.SetLevel(parseLevel(s))
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

func defaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

package cli

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rgsync/redmine-gitlab-sync/pkg/config"
)

// bindLoggingFlags attaches the shared logging flags to a flag set. The
// flags override the LOG_LEVEL / LOG_FORMAT environment settings.
func bindLoggingFlags(fs *pflag.FlagSet) {
	fs.StringP("log-level", "l", "", "Log level (debug, info, warn, error)")
	fs.String("log-format", "", "Log format (text, json)")
}

// newLogger builds the run logger from config plus flag overrides.
func newLogger(cfg *config.Config, fs *pflag.FlagSet) (logr.Logger, error) {
	level := cfg.LogLevel
	if v, _ := fs.GetString("log-level"); v != "" {
		level = v
	}
	format := cfg.LogFormat
	if v, _ := fs.GetString("log-format"); v != "" {
		format = v
	}

	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return logr.Logger{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	zapCfg := zap.NewProductionConfig()
	if format == "text" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zapCfg.DisableStacktrace = true

	zapLog, err := zapCfg.Build()
	if err != nil {
		return logr.Logger{}, fmt.Errorf("building logger: %w", err)
	}
	return zapr.NewLogger(zapLog), nil
}

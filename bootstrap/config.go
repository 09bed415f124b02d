package bootstrap

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"reqtrace/config"
)

// InitLogger initializes the zap logger. Console output uses colored levels;
// jsonOutput switches to the production JSON encoder. Logs go to stderr.
func InitLogger(level string, jsonOutput bool) (*zap.Logger, *zap.SugaredLogger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var encoder zapcore.Encoder
	if jsonOutput {
		encoderConfig := zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), lvl)
	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, logger.Sugar(), nil
}

// InitConfig loads the application configuration and resolves the backend token.
func InitConfig(path string, overrides map[string]interface{}) (*config.Config, error) {
	cfg, err := config.LoadWithOverrides(path, overrides)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.LoadSecrets(context.Background(), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func logConfig(cfg *config.Config, sugar *zap.SugaredLogger) {
	if cfg.Offline() {
		sugar.Infow("Config loaded",
			"backend", "snapshot",
			"snapshot", cfg.Backend.Snapshot)
		return
	}
	sugar.Infow("Config loaded",
		"backend", cfg.Backend.BaseURL,
		"organization", cfg.Backend.Organization,
		"project", cfg.Backend.Project,
		"max_concurrency", cfg.Fetch.MaxConcurrency,
		"token_set", cfg.Backend.Token != "")
}

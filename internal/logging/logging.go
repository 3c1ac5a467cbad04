package logging

import (
	"chatcore/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func Setup(cfg *config.ConfigFile) (*zap.SugaredLogger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	zapConfig.OutputPaths = []string{"stdout"}
	if cfg.LogToFile {
		zapConfig.OutputPaths = append(zapConfig.OutputPaths, "app.log")
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	return logger.Sugar(), nil
}

// Package providers contains dependency injection providers for the ToolLender edge server.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/toollender/toollender/internal/config"
	"github.com/toollender/toollender/internal/logger"
)

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Info("Starting ToolLender edge server",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"data_path", cfg.App.DataPath,
		"remote_backend", cfg.Remote.Backend,
	)

	return log, nil
}

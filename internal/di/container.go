// Package di provides dependency injection configuration for the ToolLender edge server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/toollender/toollender/internal/auth"
	"github.com/toollender/toollender/internal/blob"
	"github.com/toollender/toollender/internal/config"
	"github.com/toollender/toollender/internal/di/providers"
	"github.com/toollender/toollender/internal/logger"
	"github.com/toollender/toollender/internal/metrics"
	"github.com/toollender/toollender/internal/remote"
	"github.com/toollender/toollender/internal/validation"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer(cfg *config.Config) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.ProvideValue(injector, cfg)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideMetrics)
	do.Provide(injector, providers.ProvideValidator)

	// Storage layer
	do.Provide(injector, providers.ProvideLocalStore)
	do.Provide(injector, providers.ProvideBlobStore)
	do.Provide(injector, providers.ProvideSearchIndex)

	// Remote store
	do.Provide(injector, providers.ProvideBackend)
	do.Provide(injector, providers.ProvideConnectivity)
	do.Provide(injector, providers.ProvideRemoteClient)

	// Events and background refresh
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideSynchronizer)

	// Repositories
	do.Provide(injector, providers.ProvideRepositories)

	// Auth layer
	do.Provide(injector, providers.ProvideTokenService)
	do.Provide(injector, providers.ProvideAuthService)
	do.Provide(injector, providers.ProvideSignInLimiter)

	// Workers
	do.Provide(injector, providers.ProvideSessionCleanupJob)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and returns handles for lifecycle management.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	// Storage and remote first, so a bad path or URL fails before the server starts.
	steps := []func(do.Injector) error{
		invoke[*logger.Logger],
		invoke[*metrics.Metrics],
		invoke[*validation.Validator],
		invoke[*providers.LocalStoreHandle],
		invoke[*blob.Store],
		invoke[*providers.SearchIndexHandle],
		invoke[*providers.BackendHandle],
		invoke[*providers.ConnectivityHandle],
		invoke[*remote.Client],
		invoke[*providers.SSEManagerHandle],
		invoke[*providers.SynchronizerHandle],
		invoke[*providers.Repositories],
		invoke[*auth.TokenService],
		invoke[*auth.Service],
		invoke[*providers.SignInLimiterHandle],

		// Workers
		invoke[*providers.SessionCleanupJob],

		// Server
		invoke[*providers.HTTPServerHandle],
	}
	for _, step := range steps {
		if err := step(injector); err != nil {
			return err
		}
	}
	return nil
}

func invoke[T any](i do.Injector) error {
	_, err := do.Invoke[T](i)
	return err
}

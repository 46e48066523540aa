package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/toollender/toollender/internal/api"
	"github.com/toollender/toollender/internal/auth"
	"github.com/toollender/toollender/internal/blob"
	"github.com/toollender/toollender/internal/config"
	"github.com/toollender/toollender/internal/logger"
	"github.com/toollender/toollender/internal/metrics"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the edge HTTP server and starts it.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	repos := do.MustInvoke[*Repositories](i)
	authService := do.MustInvoke[*auth.Service](i)
	index := do.MustInvoke[*SearchIndexHandle](i)
	blobs := do.MustInvoke[*blob.Store](i)
	conn := do.MustInvoke[*ConnectivityHandle](i)
	sync := do.MustInvoke[*SynchronizerHandle](i)
	local := do.MustInvoke[*LocalStoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	limiter := do.MustInvoke[*SignInLimiterHandle](i)

	services := &api.Services{
		Tools:        repos.Tools,
		Users:        repos.Users,
		Associations: repos.Associations,
		Auth:         authService,
		Search:       index.Index,
		Blobs:        blobs,
		Connectivity: conn.Monitor,
		Sync:         sync.Synchronizer,
		Local:        local.Store,
		Events:       sseHandle.Manager,
		Metrics:      m,
	}

	handler := api.NewServer(services, api.Options{
		Version:     Version,
		CORSOrigins: cfg.Server.CORSOrigins,
		AuthLimiter: limiter.KeyedRateLimiter,
		DataPath:    cfg.App.DataPath,
		Logger:      log.Component("api"),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr, "public_url", cfg.Server.PublicURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv}, nil
}

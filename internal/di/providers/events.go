package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/toollender/toollender/internal/config"
	"github.com/toollender/toollender/internal/logger"
	"github.com/toollender/toollender/internal/metrics"
	"github.com/toollender/toollender/internal/refresh"
	"github.com/toollender/toollender/internal/sse"
)

// SSEManagerHandle wraps the SSE manager with its context for lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the server-sent events manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)
	conn := do.MustInvoke[*ConnectivityHandle](i)

	manager := sse.NewManager(log.Component("sse"))

	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	conn.Subscribe(manager.OnConnectivity)

	log.Info("SSE manager started")

	return &SSEManagerHandle{
		Manager: manager,
		cancel:  cancel,
	}, nil
}

// SynchronizerHandle wraps the background refresh registry.
type SynchronizerHandle struct {
	*refresh.Synchronizer
	grace time.Duration
}

// Shutdown implements do.Shutdownable. Refreshes still running after the
// grace period are cancelled.
func (h *SynchronizerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), h.grace)
	defer cancel()
	return h.Synchronizer.Shutdown(ctx)
}

// ProvideSynchronizer provides the background refresh registry.
func ProvideSynchronizer(i do.Injector) (*SynchronizerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	sync := refresh.New(refresh.Options{
		Logger:   log.Component("refresh"),
		Timeout:  cfg.Sync.RefreshTimeout,
		Recorder: m,
		Emitter:  sseHandle.Manager,
	})

	return &SynchronizerHandle{Synchronizer: sync, grace: cfg.Sync.ShutdownGrace}, nil
}

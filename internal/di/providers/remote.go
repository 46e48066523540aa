package providers

import (
	"context"
	"fmt"

	"github.com/samber/do/v2"

	"github.com/toollender/toollender/internal/config"
	"github.com/toollender/toollender/internal/connectivity"
	"github.com/toollender/toollender/internal/docstore"
	"github.com/toollender/toollender/internal/logger"
	"github.com/toollender/toollender/internal/metrics"
	"github.com/toollender/toollender/internal/remote"
	"github.com/toollender/toollender/internal/remote/httpbackend"
)

// BackendHandle wraps the remote backend. close is set when the backend
// owns resources, as the embedded document store does.
type BackendHandle struct {
	remote.Backend
	close func() error
}

// Shutdown implements do.Shutdownable.
func (h *BackendHandle) Shutdown() error {
	if h.close == nil {
		return nil
	}
	return h.close()
}

// ProvideBackend provides the remote document store backend selected by
// configuration.
func ProvideBackend(i do.Injector) (*BackendHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	switch cfg.Remote.Backend {
	case config.BackendEmbedded:
		store, err := docstore.Open(cfg.DocStore.DBPath, log.Component("docstore"))
		if err != nil {
			return nil, err
		}
		log.Info("Using embedded document store", "path", cfg.DocStore.DBPath)
		return &BackendHandle{Backend: store, close: store.Close}, nil

	case config.BackendHTTP:
		backend, err := httpbackend.New(httpbackend.Options{
			BaseURL: cfg.Remote.URL,
			APIKey:  cfg.Remote.APIKey,
			Timeout: cfg.Remote.Timeout,
		})
		if err != nil {
			return nil, err
		}
		log.Info("Using remote document store", "url", cfg.Remote.URL, "timeout", cfg.Remote.Timeout)
		return &BackendHandle{Backend: backend}, nil

	default:
		return nil, fmt.Errorf("unknown remote backend %q", cfg.Remote.Backend)
	}
}

// ConnectivityHandle wraps the reachability monitor with shutdown capability.
type ConnectivityHandle struct {
	*connectivity.Monitor
}

// Shutdown implements do.Shutdownable.
func (h *ConnectivityHandle) Shutdown() error {
	h.Stop()
	return nil
}

// ProvideConnectivity provides the reachability monitor and starts it.
func ProvideConnectivity(i do.Injector) (*ConnectivityHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	componentLog := log.Component("connectivity")
	source, err := connectivity.NewSource(cfg.Connectivity.Source, cfg.Connectivity.ProbeAddress,
		cfg.Connectivity.ProbeInterval, componentLog)
	if err != nil {
		return nil, err
	}

	monitor := connectivity.NewMonitor(source, componentLog)
	monitor.Subscribe(m.OnConnectivity)
	monitor.Start(context.Background())

	if source == nil {
		log.Info("Connectivity monitoring disabled")
	}

	return &ConnectivityHandle{Monitor: monitor}, nil
}

// ProvideRemoteClient provides the remote store client. It fails fast while
// the network is known to be down.
func ProvideRemoteClient(i do.Injector) (*remote.Client, error) {
	backend := do.MustInvoke[*BackendHandle](i)
	conn := do.MustInvoke[*ConnectivityHandle](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	log := do.MustInvoke[*logger.Logger](i)

	return remote.NewClient(backend.Backend, remote.Options{
		Logger:       log.Component("remote"),
		Reachability: conn.Monitor,
		Observer:     m,
	}), nil
}

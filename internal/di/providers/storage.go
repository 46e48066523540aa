package providers

import (
	"github.com/samber/do/v2"

	"github.com/toollender/toollender/internal/blob"
	"github.com/toollender/toollender/internal/config"
	"github.com/toollender/toollender/internal/localstore"
	"github.com/toollender/toollender/internal/logger"
)

// LocalStoreHandle wraps the local cache with shutdown capability.
type LocalStoreHandle struct {
	*localstore.Store
}

// Shutdown implements do.Shutdownable.
func (h *LocalStoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideLocalStore provides the Badger-backed local cache.
func ProvideLocalStore(i do.Injector) (*LocalStoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	store, err := localstore.New(cfg.Cache.Path, log.Component("localstore"))
	if err != nil {
		return nil, err
	}

	log.Info("Local cache opened", "path", cfg.Cache.Path)

	return &LocalStoreHandle{Store: store}, nil
}

// ProvideBlobStore provides image storage.
func ProvideBlobStore(i do.Injector) (*blob.Store, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	store, err := blob.NewStore(blob.Options{
		Path:      cfg.Blob.Path,
		PublicURL: cfg.Server.PublicURL + "/api/v1/blobs",
		MaxBytes:  int(cfg.Blob.MaxBytes),
		Logger:    log.Component("blob"),
	})
	if err != nil {
		return nil, err
	}

	log.Info("Blob store initialized", "path", cfg.Blob.Path, "max_bytes", cfg.Blob.MaxBytes)

	return store, nil
}

package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/toollender/toollender/internal/auth"
	"github.com/toollender/toollender/internal/config"
	"github.com/toollender/toollender/internal/logger"
	"github.com/toollender/toollender/internal/remote"
	"github.com/toollender/toollender/internal/validation"
)

// ProvideTokenService loads or generates the PASETO key and provides the
// token service.
func ProvideTokenService(i do.Injector) (*auth.TokenService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	key, err := auth.LoadOrGenerateKey(cfg.Auth.KeyPath)
	if err != nil {
		return nil, err
	}

	log.Info("Authentication key loaded",
		"path", cfg.Auth.KeyPath,
		"token_duration", cfg.Auth.TokenDuration,
	)

	return auth.NewTokenService(key, cfg.Auth.TokenDuration), nil
}

// ProvideAuthService provides sign-up, sign-in and session checks.
func ProvideAuthService(i do.Injector) (*auth.Service, error) {
	log := do.MustInvoke[*logger.Logger](i)
	client := do.MustInvoke[*remote.Client](i)
	local := do.MustInvoke[*LocalStoreHandle](i)
	repos := do.MustInvoke[*Repositories](i)
	tokens := do.MustInvoke[*auth.TokenService](i)
	validator := do.MustInvoke[*validation.Validator](i)

	return auth.NewService(auth.Config{
		Remote:    client,
		Local:     local.Store,
		Profiles:  repos.Users,
		Tokens:    tokens,
		Validator: validator,
		Logger:    log.Component("auth"),
	}), nil
}

// SessionCleanupJob runs periodic session cleanup.
type SessionCleanupJob struct {
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (j *SessionCleanupJob) Shutdown() error {
	j.cancel()
	return nil
}

// ProvideSessionCleanupJob provides the periodic session cleanup job.
func ProvideSessionCleanupJob(i do.Injector) (*SessionCleanupJob, error) {
	authService := do.MustInvoke[*auth.Service](i)
	log := do.MustInvoke[*logger.Logger](i)

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		ticker := time.NewTicker(sessionCleanupInterval)
		defer ticker.Stop()

		prune := func() {
			if count, err := authService.PruneSessions(ctx); err != nil {
				log.Warn("Session cleanup failed", "error", err)
			} else if count > 0 {
				log.Info("Session cleanup completed", "deleted", count)
			}
		}

		prune()
		for {
			select {
			case <-ticker.C:
				prune()
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info("Session cleanup job started")

	return &SessionCleanupJob{cancel: cancel}, nil
}

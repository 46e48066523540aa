package providers

import (
	"github.com/samber/do/v2"

	"github.com/toollender/toollender/internal/logger"
	"github.com/toollender/toollender/internal/remote"
	"github.com/toollender/toollender/internal/repository"
	"github.com/toollender/toollender/internal/validation"
)

// Repositories groups the entity repositories.
type Repositories struct {
	Tools        *repository.ToolRepository
	Users        *repository.UserRepository
	Associations *repository.AssociationRepository
}

// ProvideValidator provides the shared struct validator.
func ProvideValidator(_ do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}

// ProvideRepositories provides the tool, user and association repositories
// and subscribes them to connectivity changes.
func ProvideRepositories(i do.Injector) (*Repositories, error) {
	log := do.MustInvoke[*logger.Logger](i)
	client := do.MustInvoke[*remote.Client](i)
	local := do.MustInvoke[*LocalStoreHandle](i)
	sync := do.MustInvoke[*SynchronizerHandle](i)
	validator := do.MustInvoke[*validation.Validator](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	index := do.MustInvoke[*SearchIndexHandle](i)
	conn := do.MustInvoke[*ConnectivityHandle](i)

	deps := repository.Deps{
		Remote:    client,
		Local:     local.Store,
		Sync:      sync.Synchronizer,
		Validator: validator,
		Notifier:  sseHandle.Manager,
		Logger:    log.Component("repository"),
	}

	repos := &Repositories{
		Tools:        repository.NewToolRepository(deps, index.Index),
		Users:        repository.NewUserRepository(deps),
		Associations: repository.NewAssociationRepository(deps),
	}

	conn.Subscribe(repos.Tools.OnConnectivity)
	conn.Subscribe(repos.Associations.OnConnectivity)

	return repos, nil
}

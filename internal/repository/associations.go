package repository

import (
	"context"
	"log/slog"

	"github.com/toollender/toollender/internal/domain"
	domainerrors "github.com/toollender/toollender/internal/errors"
	"github.com/toollender/toollender/internal/id"
	"github.com/toollender/toollender/internal/normalize"
	"github.com/toollender/toollender/internal/refresh"
	"github.com/toollender/toollender/internal/remote"
)

var allAssociationsQuery = remote.Query{}.Ordered(fieldName, false)

// AssociationRepository reads and writes associations. Associations are
// identified by name; names are unique by normalize.AssociationKey.
type AssociationRepository struct {
	deps   Deps
	cache  *cache[domain.Association]
	logger *slog.Logger
}

// NewAssociationRepository creates the association repository.
func NewAssociationRepository(deps Deps) *AssociationRepository {
	return &AssociationRepository{
		deps: deps,
		cache: newCache(deps, CollectionAssociations, "association",
			func(a *domain.Association) string { return normalize.AssociationKey(a.Name) }, decodeAssociation),
		logger: deps.logger().With("repository", "associations"),
	}
}

// FetchAll returns the associations ordered by name. With includeAll the
// virtual All association is put first, once.
func (r *AssociationRepository) FetchAll(ctx context.Context, policy ReadPolicy, includeAll bool) ([]domain.Association, error) {
	list, err := r.cache.list(ctx, viewAll, allAssociationsQuery, policy)
	if err != nil {
		return nil, err
	}
	if includeAll {
		list = domain.WithAll(list)
	}
	return list, nil
}

// FetchOne returns the association called name. "All" is answered without a
// lookup.
func (r *AssociationRepository) FetchOne(ctx context.Context, name string, policy ReadPolicy) (domain.Association, error) {
	name = normalize.Name(name)
	if name == "" {
		return domain.Association{}, domainerrors.Validation("association name is required")
	}
	if name == domain.AllAssociations {
		return domain.Association{Name: domain.AllAssociations}, nil
	}
	key := normalize.AssociationKey(name)

	if policy == CacheFirst {
		if rec, err := r.cache.local.Get(ctx, key); err == nil {
			r.cache.scheduleList(viewAll, allAssociationsQuery)
			return rec.Value, nil
		}
	}

	a, err := refresh.Do(ctx, r.deps.Sync, r.cache.itemKey(key), func(ctx context.Context) (domain.Association, error) {
		docs, err := r.find(ctx, name)
		if err != nil {
			return domain.Association{}, err
		}
		if len(docs) == 0 {
			r.cache.evict(ctx, key)
			return domain.Association{}, remote.ErrNotFound
		}
		a, err := decodeAssociation(docs[0])
		if err != nil {
			return domain.Association{}, err
		}
		r.cache.put(ctx, a, docs[0], id.Stamp())
		return a, nil
	})
	err = remoteError(err, "association")
	if domainerrors.Is(err, domainerrors.ErrRemoteUnavailable) {
		if rec, lerr := r.cache.local.Get(ctx, key); lerr == nil {
			r.logger.Warn("server read failed, serving cached association", "name", name, "error", err)
			return rec.Value, nil
		}
	}
	return a, err
}

// Create adds an association. The name is trimmed; blank names and "All"
// are rejected. Uniqueness is enforced by the remote store on the normalized
// name, so concurrent creates of the same name yield one association.
func (r *AssociationRepository) Create(ctx context.Context, name string) (domain.Association, error) {
	name = normalize.Name(name)
	key := normalize.AssociationKey(name)
	switch {
	case name == "":
		return domain.Association{}, domainerrors.ValidationWithDetails("validation failed",
			map[string]string{"name": "must not be blank"})
	case key == normalize.AssociationKey(domain.AllAssociations):
		return domain.Association{}, domainerrors.ValidationWithDetails("validation failed",
			map[string]string{"name": "is reserved"})
	}

	// Fast path; the unique key below is what actually guarantees it.
	existing, err := r.find(ctx, name)
	if err != nil {
		return domain.Association{}, remoteError(err, "association")
	}
	if len(existing) > 0 {
		return domain.Association{}, domainerrors.AlreadyExistsf("association %q already exists", name)
	}

	docID, err := r.deps.Remote.AddUnique(ctx, CollectionAssociations, key, remote.Fields{
		fieldName: name,
		fieldKey:  key,
	})
	if err != nil {
		if domainerrors.Is(remoteError(err, "association"), domainerrors.ErrAlreadyExists) {
			return domain.Association{}, domainerrors.AlreadyExistsf("association %q already exists", name)
		}
		return domain.Association{}, remoteError(err, "association")
	}

	doc, err := r.deps.Remote.Get(ctx, CollectionAssociations, docID, remote.ModeServer)
	if err != nil {
		return domain.Association{}, remoteError(err, "association")
	}
	a, err := decodeAssociation(doc)
	if err != nil {
		return domain.Association{}, err
	}
	r.cache.put(ctx, a, doc, id.Stamp())

	r.logger.Info("association created", "name", a.Name)
	r.cache.scheduleList(viewAll, allAssociationsQuery)
	r.deps.notify(EventAssociationCreated, a)
	return a, nil
}

// Delete removes the association called name. Tools and profiles that refer
// to it are left as they are.
func (r *AssociationRepository) Delete(ctx context.Context, name string) error {
	name = normalize.Name(name)
	if domain.IsAll(name) {
		return domainerrors.Validation("the All association cannot be deleted")
	}
	docs, err := r.find(ctx, name)
	if err != nil {
		return remoteError(err, "association")
	}
	if len(docs) == 0 {
		return domainerrors.NotFoundf("association %q not found", name)
	}
	for _, doc := range docs {
		if err := r.deps.Remote.Delete(ctx, CollectionAssociations, doc.ID); err != nil {
			return remoteError(err, "association")
		}
	}
	r.cache.evict(ctx, normalize.AssociationKey(name))

	r.logger.Info("association deleted", "name", name)
	r.cache.scheduleList(viewAll, allAssociationsQuery)
	r.deps.notify(EventAssociationDeleted, domain.Association{Name: name})
	return nil
}

// find returns the documents for name from the server, matching on the
// normalized key and, for documents written before keys existed, on the
// exact name.
func (r *AssociationRepository) find(ctx context.Context, name string) ([]remote.Document, error) {
	docs, err := r.deps.Remote.Query(ctx, CollectionAssociations,
		remote.Where(fieldKey, normalize.AssociationKey(name)), remote.ModeServer)
	if err != nil || len(docs) > 0 {
		return docs, err
	}
	return r.deps.Remote.Query(ctx, CollectionAssociations, remote.Where(fieldName, name), remote.ModeServer)
}

// OnConnectivity refreshes the association list when the network comes back.
func (r *AssociationRepository) OnConnectivity(online bool) {
	if !online {
		return
	}
	r.cache.scheduleList(viewAll, allAssociationsQuery)
}

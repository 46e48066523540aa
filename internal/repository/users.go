package repository

import (
	"context"
	"log/slog"
	"strings"

	"github.com/toollender/toollender/internal/domain"
	domainerrors "github.com/toollender/toollender/internal/errors"
	"github.com/toollender/toollender/internal/remote"
)

// UserRepository reads and writes user profiles. Profiles are keyed by the
// identity subject ID.
type UserRepository struct {
	deps   Deps
	cache  *cache[domain.UserProfile]
	logger *slog.Logger
}

// NewUserRepository creates the user repository.
func NewUserRepository(deps Deps) *UserRepository {
	return &UserRepository{
		deps: deps,
		cache: newCache(deps, CollectionUsers, "user",
			func(u *domain.UserProfile) string { return u.ID }, decodeUser),
		logger: deps.logger().With("repository", "users"),
	}
}

// FetchOne returns the profile of id. While the remote store is unreachable
// the cached profile is returned; with nothing cached it returns the default
// profile instead of failing.
func (r *UserRepository) FetchOne(ctx context.Context, id string, policy ReadPolicy) (domain.UserProfile, error) {
	if strings.TrimSpace(id) == "" {
		return domain.UserProfile{}, domainerrors.Validation("user id is required")
	}
	u, err := r.cache.one(ctx, id, policy)
	if domainerrors.Is(err, domainerrors.ErrRemoteUnavailable) {
		r.logger.Warn("remote unavailable, using default profile", "user_id", id, "error", err)
		return domain.DefaultProfile(id), nil
	}
	return u, err
}

// Create writes the full profile of id, replacing any previous document.
func (r *UserRepository) Create(ctx context.Context, id string, in domain.NewUserProfile) (domain.UserProfile, error) {
	if strings.TrimSpace(id) == "" {
		return domain.UserProfile{}, domainerrors.Validation("user id is required")
	}
	in = in.Trimmed()
	if err := r.deps.Validator.Validate(in); err != nil {
		return domain.UserProfile{}, err
	}

	if err := r.deps.Remote.Set(ctx, CollectionUsers, id, newUserFields(in), remote.Overwrite); err != nil {
		return domain.UserProfile{}, remoteError(err, "user")
	}
	u, err := r.cache.fetchOne(ctx, id)
	if err != nil {
		return domain.UserProfile{}, remoteError(err, "user")
	}
	r.logger.Info("user profile created", "user_id", id)
	return u, nil
}

// Update merges patch into the profile. An empty patch does nothing.
func (r *UserRepository) Update(ctx context.Context, id string, patch domain.UserPatch) error {
	if patch.IsEmpty() {
		return nil
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return domainerrors.ValidationWithDetails("validation failed", map[string]string{"name": "must not be blank"})
	}
	if patch.AssociationID != nil && strings.TrimSpace(*patch.AssociationID) == "" {
		all := domain.AllAssociations
		patch.AssociationID = &all
	}

	if err := r.deps.Remote.Set(ctx, CollectionUsers, id, userPatchFields(patch), remote.Merge); err != nil {
		return remoteError(err, "user")
	}
	if _, err := r.cache.fetchOne(ctx, id); err != nil {
		r.logger.Warn("failed to re-read profile after update", "user_id", id, "error", err)
	}
	return nil
}

// Delete removes the profile. Tools owned by the user are not deleted.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	if err := r.deps.Remote.Delete(ctx, CollectionUsers, id); err != nil {
		return remoteError(err, "user")
	}
	r.cache.evict(ctx, id)
	r.logger.Info("user profile deleted", "user_id", id)
	return nil
}

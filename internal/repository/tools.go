package repository

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/toollender/toollender/internal/domain"
	domainerrors "github.com/toollender/toollender/internal/errors"
	"github.com/toollender/toollender/internal/normalize"
	"github.com/toollender/toollender/internal/remote"
)

// ToolIndexer keeps a search index in step with the cached tools.
type ToolIndexer interface {
	// IndexTools adds or replaces tools. When complete is true, tools is the
	// whole catalog and anything else in the index is dropped.
	IndexTools(ctx context.Context, tools []domain.Tool, complete bool) error
	RemoveTool(ctx context.Context, id string) error
}

var allToolsQuery = remote.Query{}.Ordered(fieldCreatedAt, true)

// ToolRepository reads and writes tools.
type ToolRepository struct {
	deps   Deps
	cache  *cache[domain.Tool]
	index  ToolIndexer
	logger *slog.Logger
	now    func() time.Time
}

// NewToolRepository creates the tool repository. index may be nil.
func NewToolRepository(deps Deps, index ToolIndexer) *ToolRepository {
	r := &ToolRepository{
		deps:   deps,
		index:  index,
		logger: deps.logger().With("repository", "tools"),
		now:    time.Now,
	}
	r.cache = newCache(deps, CollectionTools, "tool",
		func(t *domain.Tool) string { return t.ID }, decodeTool)
	r.cache.fetched = r.indexFetched
	return r
}

// FetchAll returns every tool, newest first.
func (r *ToolRepository) FetchAll(ctx context.Context, policy ReadPolicy) ([]domain.Tool, error) {
	return r.cache.list(ctx, viewAll, allToolsQuery, policy)
}

// FetchByOwner returns the tools owned by ownerID, newest first.
func (r *ToolRepository) FetchByOwner(ctx context.Context, ownerID string, policy ReadPolicy) ([]domain.Tool, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, domainerrors.Validation("owner id is required")
	}
	view, q := ownerView(ownerID)
	return r.cache.list(ctx, view, q, policy)
}

func ownerView(ownerID string) (string, remote.Query) {
	return "owner:" + ownerID, remote.Where(fieldOwnerID, ownerID).Ordered(fieldCreatedAt, true)
}

// FetchOne returns the tool id. It fails with NOT_FOUND when the server has
// no such tool and DECODE_ERROR when the stored document is malformed.
func (r *ToolRepository) FetchOne(ctx context.Context, id string, policy ReadPolicy) (domain.Tool, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Tool{}, domainerrors.Validation("tool id is required")
	}
	return r.cache.one(ctx, id, policy)
}

// Create lists a new tool and returns it as stored by the server.
func (r *ToolRepository) Create(ctx context.Context, in domain.NewTool) (domain.Tool, error) {
	in = in.Trimmed()
	in.Description = normalize.Description(in.Description)
	if err := r.deps.Validator.Validate(in); err != nil {
		return domain.Tool{}, err
	}
	if domain.IsAll(in.Category) {
		return domain.Tool{}, domainerrors.ValidationWithDetails("validation failed",
			map[string]string{"category": "must name an association"})
	}

	docID, err := r.deps.Remote.Add(ctx, CollectionTools, newToolFields(in, r.now()))
	if err != nil {
		return domain.Tool{}, remoteError(err, "tool")
	}

	// Read back so the caller gets the stored document, not our input.
	tool, err := r.cache.fetchOne(ctx, docID)
	if err != nil {
		return domain.Tool{}, remoteError(err, "tool")
	}

	r.logger.Info("tool created", "id", tool.ID, "owner_id", tool.OwnerID)
	r.refreshViews(tool.OwnerID)
	r.deps.notify(EventToolCreated, tool)
	return tool, nil
}

// Update merges patch into the tool. An empty patch does nothing.
func (r *ToolRepository) Update(ctx context.Context, id string, patch domain.ToolPatch) error {
	if patch.IsEmpty() {
		return nil
	}
	if err := validateToolPatch(&patch); err != nil {
		return err
	}
	if err := r.deps.Remote.Set(ctx, CollectionTools, id, toolPatchFields(patch), remote.Merge); err != nil {
		return remoteError(err, "tool")
	}
	r.afterWrite(ctx, id, EventToolUpdated)
	return nil
}

func validateToolPatch(p *domain.ToolPatch) error {
	details := map[string]string{}
	blank := func(field string, v *string) {
		if v != nil && strings.TrimSpace(*v) == "" {
			details[field] = "must not be blank"
		}
	}
	blank("name", p.Name)
	blank("description", p.Description)
	blank("category", p.Category)
	if p.Category != nil && domain.IsAll(strings.TrimSpace(*p.Category)) && details["category"] == "" {
		details["category"] = "must name an association"
	}
	if p.PricePerDay != nil && *p.PricePerDay < 0 {
		details["price_per_day"] = "must be greater than or equal to 0"
	}
	if len(details) > 0 {
		return domainerrors.ValidationWithDetails("validation failed", details)
	}
	if p.Description != nil {
		d := normalize.Description(*p.Description)
		p.Description = &d
	}
	return nil
}

// Delete removes the tool. The owner's other data is untouched.
func (r *ToolRepository) Delete(ctx context.Context, id string) error {
	var ownerID string
	if rec, err := r.cache.local.Get(ctx, id); err == nil {
		ownerID = rec.Value.OwnerID
	}

	if err := r.deps.Remote.Delete(ctx, CollectionTools, id); err != nil {
		return remoteError(err, "tool")
	}
	r.cache.evict(ctx, id)
	if r.index != nil {
		if err := r.index.RemoveTool(ctx, id); err != nil {
			r.logger.Warn("failed to remove tool from index", "id", id, "error", err)
		}
	}

	r.logger.Info("tool deleted", "id", id)
	r.refreshViews(ownerID)
	r.deps.notify(EventToolDeleted, map[string]string{"id": id})
	return nil
}

// ToggleHold flips isOnHold and returns the updated tool. Two concurrent
// toggles may both read the same state; the last write wins.
func (r *ToolRepository) ToggleHold(ctx context.Context, id string) (domain.Tool, error) {
	current, err := r.cache.fetchOne(ctx, id)
	if err != nil {
		return domain.Tool{}, remoteError(err, "tool")
	}

	fields := remote.Fields{fieldIsOnHold: !current.IsOnHold}
	if err := r.deps.Remote.Set(ctx, CollectionTools, id, fields, remote.Merge); err != nil {
		return domain.Tool{}, remoteError(err, "tool")
	}

	tool, err := r.cache.fetchOne(ctx, id)
	if err != nil {
		return domain.Tool{}, remoteError(err, "tool")
	}
	r.refreshViews(tool.OwnerID)
	r.deps.notify(EventToolUpdated, tool)
	return tool, nil
}

// OnConnectivity refreshes the catalog when the network comes back.
func (r *ToolRepository) OnConnectivity(online bool) {
	if !online {
		return
	}
	r.logger.Info("network online, refreshing tools")
	r.cache.scheduleList(viewAll, allToolsQuery)
}

// afterWrite re-reads the tool so the local copy matches the server. The
// write already succeeded, so a failed re-read is only logged.
func (r *ToolRepository) afterWrite(ctx context.Context, id, event string) {
	tool, err := r.cache.fetchOne(ctx, id)
	if err != nil {
		r.logger.Warn("failed to re-read tool after write", "id", id, "error", err)
		r.refreshViews("")
		return
	}
	r.refreshViews(tool.OwnerID)
	r.deps.notify(event, tool)
}

// refreshViews schedules background refreshes of the views a write touched.
func (r *ToolRepository) refreshViews(ownerID string) {
	r.cache.scheduleList(viewAll, allToolsQuery)
	if ownerID != "" {
		view, q := ownerView(ownerID)
		r.cache.scheduleList(view, q)
	}
}

func (r *ToolRepository) indexFetched(ctx context.Context, tools []domain.Tool, complete bool) {
	if r.index == nil {
		return
	}
	if err := r.index.IndexTools(ctx, tools, complete); err != nil {
		r.logger.Warn("failed to index tools", "count", len(tools), "error", err)
	}
}

package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/toollender/toollender/internal/catalog"
	"github.com/toollender/toollender/internal/domain"
	domainerrors "github.com/toollender/toollender/internal/errors"
	"github.com/toollender/toollender/internal/repository"
)

func (s *Server) registerToolRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listTools",
		Method:      http.MethodGet,
		Path:        "/api/v1/tools",
		Summary:     "List tools",
		Description: "Returns tools, optionally filtered by association, owner and text. Answers from the cache when possible.",
		Tags:        []string{"Tools"},
	}, s.handleListTools)

	huma.Register(s.api, huma.Operation{
		OperationID: "getTool",
		Method:      http.MethodGet,
		Path:        "/api/v1/tools/{id}",
		Summary:     "Get tool",
		Description: "Returns a tool by ID",
		Tags:        []string{"Tools"},
	}, s.handleGetTool)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createTool",
		Method:        http.MethodPost,
		Path:          "/api/v1/tools",
		Summary:       "List a tool",
		Description:   "Creates a tool owned by the signed-in member",
		Tags:          []string{"Tools"},
		Security:      []map[string][]string{{"bearer": {}}},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateTool)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateTool",
		Method:      http.MethodPatch,
		Path:        "/api/v1/tools/{id}",
		Summary:     "Update tool",
		Description: "Changes the given fields of a tool. Owner only.",
		Tags:        []string{"Tools"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleUpdateTool)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deleteTool",
		Method:        http.MethodDelete,
		Path:          "/api/v1/tools/{id}",
		Summary:       "Delete tool",
		Description:   "Removes a tool. Owner only.",
		Tags:          []string{"Tools"},
		Security:      []map[string][]string{{"bearer": {}}},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteTool)

	huma.Register(s.api, huma.Operation{
		OperationID: "toggleToolHold",
		Method:      http.MethodPost,
		Path:        "/api/v1/tools/{id}/hold",
		Summary:     "Toggle hold",
		Description: "Puts the tool on hold or releases it. Owner only.",
		Tags:        []string{"Tools"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleToggleHold)
}

// === DTOs ===

// ListToolsInput contains parameters for listing tools.
type ListToolsInput struct {
	Association string `query:"association" doc:"Association to filter by; empty or All lists every tool"`
	Query       string `query:"q" doc:"Case-insensitive text matched against name and description"`
	Owner       string `query:"owner" doc:"Only tools of this owner"`
	HideOnHold  bool   `query:"hide_on_hold" doc:"Leave out tools their owner put on hold"`
	Sort        string `query:"sort" doc:"name, newest or oldest; default keeps the store order (newest first)"`
	Fresh       bool   `query:"fresh" doc:"Bypass the cache and read from the remote store"`
}

// ToolListResponse is a list of tools.
type ToolListResponse struct {
	Tools []domain.Tool `json:"tools" doc:"Matching tools"`
	Count int           `json:"count" doc:"Number of tools returned"`
}

// ToolListOutput wraps the list for Huma.
type ToolListOutput struct {
	Body ToolListResponse
}

// GetToolInput contains parameters for getting a tool.
type GetToolInput struct {
	ID    string `path:"id" doc:"Tool ID"`
	Fresh bool   `query:"fresh" doc:"Bypass the cache"`
}

// ToolOutput wraps a tool for Huma.
type ToolOutput struct {
	Body domain.Tool
}

// CreateToolRequest is the request body for listing a tool.
type CreateToolRequest struct {
	Name          string   `json:"name" doc:"Tool name"`
	Description   string   `json:"description" doc:"Description; HTML is converted to Markdown"`
	Category      string   `json:"category" doc:"Association the tool is listed under"`
	PricePerDay   *float64 `json:"price_per_day,omitempty" doc:"Daily price; omitted means free"`
	ImageURL      string   `json:"image_url,omitempty" doc:"URL of an uploaded image"`
	ImageBlurHash string   `json:"image_blurhash,omitempty" doc:"BlurHash of the image"`
}

// CreateToolInput wraps the create request for Huma.
type CreateToolInput struct {
	Body CreateToolRequest
}

// UpdateToolInput wraps a partial update for Huma.
type UpdateToolInput struct {
	ID   string `path:"id" doc:"Tool ID"`
	Body domain.ToolPatch
}

// ToolIDInput addresses a single tool.
type ToolIDInput struct {
	ID string `path:"id" doc:"Tool ID"`
}

// === Handlers ===

func (s *Server) handleListTools(ctx context.Context, input *ListToolsInput) (*ToolListOutput, error) {
	if !catalog.ValidSort(input.Sort) {
		return nil, domainerrors.ValidationWithDetails("validation failed",
			map[string]string{"sort": "must be name, newest or oldest"})
	}
	policy := readPolicy(input.Fresh)

	var (
		tools []domain.Tool
		err   error
	)
	if input.Owner != "" {
		tools, err = s.services.Tools.FetchByOwner(ctx, input.Owner, policy)
	} else {
		tools, err = s.services.Tools.FetchAll(ctx, policy)
	}
	if err != nil {
		return nil, err
	}

	tools = catalog.Browse(tools, catalog.Filter{
		Association: input.Association,
		Query:       input.Query,
		HideOnHold:  input.HideOnHold,
		Sort:        input.Sort,
	})
	return &ToolListOutput{Body: ToolListResponse{Tools: tools, Count: len(tools)}}, nil
}

func (s *Server) handleGetTool(ctx context.Context, input *GetToolInput) (*ToolOutput, error) {
	tool, err := s.services.Tools.FetchOne(ctx, input.ID, readPolicy(input.Fresh))
	if err != nil {
		return nil, err
	}
	return &ToolOutput{Body: tool}, nil
}

func (s *Server) handleCreateTool(ctx context.Context, input *CreateToolInput) (*ToolOutput, error) {
	subject, err := GetSubject(ctx)
	if err != nil {
		return nil, err
	}

	tool, err := s.services.Tools.Create(ctx, domain.NewTool{
		Name:          input.Body.Name,
		Description:   input.Body.Description,
		ImageURL:      input.Body.ImageURL,
		ImageBlurHash: input.Body.ImageBlurHash,
		OwnerID:       subject.ID,
		PricePerDay:   input.Body.PricePerDay,
		Category:      input.Body.Category,
	})
	if err != nil {
		return nil, err
	}
	return &ToolOutput{Body: tool}, nil
}

func (s *Server) handleUpdateTool(ctx context.Context, input *UpdateToolInput) (*ToolOutput, error) {
	if _, err := s.requireToolOwner(ctx, input.ID); err != nil {
		return nil, err
	}
	if err := s.services.Tools.Update(ctx, input.ID, input.Body); err != nil {
		return nil, err
	}
	tool, err := s.services.Tools.FetchOne(ctx, input.ID, repository.ServerOnly)
	if err != nil {
		return nil, err
	}
	return &ToolOutput{Body: tool}, nil
}

func (s *Server) handleDeleteTool(ctx context.Context, input *ToolIDInput) (*struct{}, error) {
	if _, err := s.requireToolOwner(ctx, input.ID); err != nil {
		return nil, err
	}
	if err := s.services.Tools.Delete(ctx, input.ID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Server) handleToggleHold(ctx context.Context, input *ToolIDInput) (*ToolOutput, error) {
	if _, err := s.requireToolOwner(ctx, input.ID); err != nil {
		return nil, err
	}
	tool, err := s.services.Tools.ToggleHold(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &ToolOutput{Body: tool}, nil
}

// requireToolOwner reads the tool from the server and checks that the
// signed-in subject owns it.
func (s *Server) requireToolOwner(ctx context.Context, toolID string) (domain.Tool, error) {
	if _, err := GetSubject(ctx); err != nil {
		return domain.Tool{}, err
	}
	tool, err := s.services.Tools.FetchOne(ctx, toolID, repository.ServerOnly)
	if err != nil {
		return domain.Tool{}, err
	}
	if _, err := requireOwner(ctx, tool.OwnerID); err != nil {
		return domain.Tool{}, err
	}
	return tool, nil
}

func readPolicy(fresh bool) repository.ReadPolicy {
	if fresh {
		return repository.ServerOnly
	}
	return repository.CacheFirst
}

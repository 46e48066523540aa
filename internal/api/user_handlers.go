package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/toollender/toollender/internal/domain"
	"github.com/toollender/toollender/internal/repository"
)

func (s *Server) registerUserRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getCurrentUser",
		Method:      http.MethodGet,
		Path:        "/api/v1/users/me",
		Summary:     "Get current user",
		Description: "Returns the profile of the signed-in member. Falls back to a default profile while offline.",
		Tags:        []string{"Users"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetCurrentUser)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateCurrentUser",
		Method:      http.MethodPatch,
		Path:        "/api/v1/users/me",
		Summary:     "Update profile",
		Description: "Changes the given profile fields",
		Tags:        []string{"Users"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleUpdateCurrentUser)

	huma.Register(s.api, huma.Operation{
		OperationID: "listMyTools",
		Method:      http.MethodGet,
		Path:        "/api/v1/users/me/tools",
		Summary:     "List my tools",
		Description: "Returns the tools the signed-in member listed",
		Tags:        []string{"Users"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListMyTools)

	huma.Register(s.api, huma.Operation{
		OperationID: "getUserContact",
		Method:      http.MethodGet,
		Path:        "/api/v1/users/{id}",
		Summary:     "Get owner contact",
		Description: "Returns the contact card of a member, used to reach a tool owner",
		Tags:        []string{"Users"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetUserContact)
}

// === DTOs ===

// FreshInput lets a caller bypass the cache.
type FreshInput struct {
	Fresh bool `query:"fresh" doc:"Bypass the cache"`
}

// ProfileOutput wraps a profile for Huma.
type ProfileOutput struct {
	Body domain.UserProfile
}

// UpdateProfileInput wraps a profile patch for Huma.
type UpdateProfileInput struct {
	Body domain.UserPatch
}

// ContactInput addresses a member.
type ContactInput struct {
	ID string `path:"id" doc:"User ID"`
}

// ContactOutput wraps a contact card for Huma.
type ContactOutput struct {
	Body domain.ContactCard
}

// === Handlers ===

func (s *Server) handleGetCurrentUser(ctx context.Context, input *FreshInput) (*ProfileOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}
	profile, err := s.services.Users.FetchOne(ctx, userID, readPolicy(input.Fresh))
	if err != nil {
		return nil, err
	}
	return &ProfileOutput{Body: profile}, nil
}

func (s *Server) handleUpdateCurrentUser(ctx context.Context, input *UpdateProfileInput) (*ProfileOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.services.Users.Update(ctx, userID, input.Body); err != nil {
		return nil, err
	}
	profile, err := s.services.Users.FetchOne(ctx, userID, repository.ServerOnly)
	if err != nil {
		return nil, err
	}
	return &ProfileOutput{Body: profile}, nil
}

func (s *Server) handleListMyTools(ctx context.Context, input *FreshInput) (*ToolListOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}
	tools, err := s.services.Tools.FetchByOwner(ctx, userID, readPolicy(input.Fresh))
	if err != nil {
		return nil, err
	}
	if tools == nil {
		tools = []domain.Tool{}
	}
	return &ToolListOutput{Body: ToolListResponse{Tools: tools, Count: len(tools)}}, nil
}

func (s *Server) handleGetUserContact(ctx context.Context, input *ContactInput) (*ContactOutput, error) {
	if _, err := GetSubject(ctx); err != nil {
		return nil, err
	}
	profile, err := s.services.Users.FetchOne(ctx, input.ID, repository.CacheFirst)
	if err != nil {
		return nil, err
	}
	return &ContactOutput{Body: profile.Contact()}, nil
}

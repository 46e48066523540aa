package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/toollender/toollender/internal/domain"
)

func (s *Server) registerAssociationRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listAssociations",
		Method:      http.MethodGet,
		Path:        "/api/v1/associations",
		Summary:     "List associations",
		Description: "Returns the associations ordered by name, optionally preceded by All",
		Tags:        []string{"Associations"},
	}, s.handleListAssociations)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createAssociation",
		Method:        http.MethodPost,
		Path:          "/api/v1/associations",
		Summary:       "Create association",
		Description:   "Creates an association. Names are unique regardless of case and accents.",
		Tags:          []string{"Associations"},
		Security:      []map[string][]string{{"bearer": {}}},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateAssociation)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deleteAssociation",
		Method:        http.MethodDelete,
		Path:          "/api/v1/associations/{name}",
		Summary:       "Delete association",
		Description:   "Removes an association. Tools listed under it keep their category.",
		Tags:          []string{"Associations"},
		Security:      []map[string][]string{{"bearer": {}}},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteAssociation)
}

// ListAssociationsInput contains list parameters.
type ListAssociationsInput struct {
	IncludeAll bool `query:"include_all" doc:"Prepend the virtual All association"`
	Fresh      bool `query:"fresh" doc:"Bypass the cache"`
}

// AssociationListOutput wraps the list for Huma.
type AssociationListOutput struct {
	Body []domain.Association
}

// CreateAssociationRequest is the request body for creating an association.
type CreateAssociationRequest struct {
	Name string `json:"name" doc:"Association name"`
}

// CreateAssociationInput wraps the request for Huma.
type CreateAssociationInput struct {
	Body CreateAssociationRequest
}

// AssociationOutput wraps an association for Huma.
type AssociationOutput struct {
	Body domain.Association
}

// AssociationNameInput addresses an association.
type AssociationNameInput struct {
	Name string `path:"name" doc:"Association name"`
}

func (s *Server) handleListAssociations(ctx context.Context, input *ListAssociationsInput) (*AssociationListOutput, error) {
	list, err := s.services.Associations.FetchAll(ctx, readPolicy(input.Fresh), input.IncludeAll)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []domain.Association{}
	}
	return &AssociationListOutput{Body: list}, nil
}

func (s *Server) handleCreateAssociation(ctx context.Context, input *CreateAssociationInput) (*AssociationOutput, error) {
	if _, err := GetSubject(ctx); err != nil {
		return nil, err
	}
	assoc, err := s.services.Associations.Create(ctx, input.Body.Name)
	if err != nil {
		return nil, err
	}
	return &AssociationOutput{Body: assoc}, nil
}

func (s *Server) handleDeleteAssociation(ctx context.Context, input *AssociationNameInput) (*struct{}, error) {
	if _, err := GetSubject(ctx); err != nil {
		return nil, err
	}
	if err := s.services.Associations.Delete(ctx, input.Name); err != nil {
		return nil, err
	}
	return nil, nil
}

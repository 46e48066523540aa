package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/toollender/toollender/internal/search"
)

func (s *Server) registerSearchRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "searchTools",
		Method:      http.MethodGet,
		Path:        "/api/v1/search/tools",
		Summary:     "Search tools",
		Description: "Full-text search over the tools this server has seen",
		Tags:        []string{"Search"},
	}, s.handleSearchTools)
}

// SearchToolsInput contains search parameters.
type SearchToolsInput struct {
	Query       string `query:"q" doc:"Search text"`
	Association string `query:"association" doc:"Limit to one association"`
	Owner       string `query:"owner" doc:"Limit to one owner"`
	HideOnHold  bool   `query:"hide_on_hold" doc:"Leave out tools on hold"`
	Sort        string `query:"sort" enum:"relevance,name,newest,oldest,price" doc:"Result order"`
	Limit       int    `query:"limit" minimum:"0" maximum:"100" doc:"Page size (default 20)"`
	Offset      int    `query:"offset" minimum:"0" doc:"Hits to skip"`
}

// SearchOutput wraps the result for Huma.
type SearchOutput struct {
	Body search.Result
}

func (s *Server) handleSearchTools(ctx context.Context, input *SearchToolsInput) (*SearchOutput, error) {
	if s.services.Search == nil {
		return nil, huma.Error503ServiceUnavailable("Search is not available")
	}

	res, err := s.services.Search.Search(ctx, search.Params{
		Query:       input.Query,
		Association: input.Association,
		OwnerID:     input.Owner,
		HideOnHold:  input.HideOnHold,
		Limit:       input.Limit,
		Offset:      input.Offset,
		SortBy:      input.Sort,
	})
	if err != nil {
		return nil, err
	}
	if res.Hits == nil {
		res.Hits = []search.Hit{}
	}
	return &SearchOutput{Body: *res}, nil
}

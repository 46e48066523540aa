package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/toollender/toollender/internal/connectivity"
)

func (s *Server) registerConnectivityRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getConnectivity",
		Method:      http.MethodGet,
		Path:        "/api/v1/connectivity",
		Summary:     "Connectivity status",
		Description: "Reports whether the remote store is reachable and which refreshes are running",
		Tags:        []string{"Health"},
	}, s.handleGetConnectivity)
}

// ConnectivityResponse describes reachability of the remote store.
type ConnectivityResponse struct {
	State     string   `json:"state" doc:"online, offline or unknown"`
	Online    bool     `json:"online" doc:"False only when the network is known to be down"`
	Refreshes []string `json:"refreshes" doc:"Views with a background refresh in flight"`
}

// ConnectivityOutput wraps the status for Huma.
type ConnectivityOutput struct {
	Body ConnectivityResponse
}

func (s *Server) handleGetConnectivity(_ context.Context, _ *struct{}) (*ConnectivityOutput, error) {
	state := connectivity.Unknown
	if s.services.Connectivity != nil {
		state = s.services.Connectivity.State()
	}
	refreshes := []string{}
	if s.services.Sync != nil {
		refreshes = s.services.Sync.InFlight()
	}
	return &ConnectivityOutput{Body: ConnectivityResponse{
		State:     state.String(),
		Online:    state != connectivity.Offline,
		Refreshes: refreshes,
	}}, nil
}

package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/toollender/toollender/internal/connectivity"
)

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns server health status with component checks",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// lowDiskBytes is the free space below which the disk is reported degraded.
const lowDiskBytes = 256 << 20

// Component statuses.
const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// ComponentHealth describes the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status" doc:"Component status: healthy, degraded, or unhealthy"`
	Latency string `json:"latency,omitempty" doc:"Response time for this component"`
	Message string `json:"message,omitempty" doc:"Additional status information"`
}

// HealthResponse contains health check data in API responses.
type HealthResponse struct {
	Status     string                     `json:"status" doc:"Overall status: healthy, degraded, or unhealthy"`
	Uptime     string                     `json:"uptime" doc:"Time since the server started"`
	Components map[string]ComponentHealth `json:"components" doc:"Individual component statuses"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Body HealthResponse
}

func (s *Server) handleHealthCheck(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	components := map[string]ComponentHealth{
		"local_store": s.checkLocalStore(ctx),
		"remote":      s.checkRemote(),
		"refresh":     s.checkRefresh(),
		"search":      s.checkSearchIndex(),
		"events":      s.checkEvents(),
	}
	if s.dataPath != "" {
		components["disk"] = s.checkDisk()
	}

	overall := statusHealthy
	for _, c := range components {
		switch c.Status {
		case statusUnhealthy:
			overall = statusUnhealthy
		case statusDegraded:
			if overall == statusHealthy {
				overall = statusDegraded
			}
		}
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:     overall,
			Uptime:     time.Since(s.started).Round(time.Second).String(),
			Components: components,
		},
	}, nil
}

// checkLocalStore verifies Badger is accessible. Without it nothing is served.
func (s *Server) checkLocalStore(ctx context.Context) ComponentHealth {
	if s.services.Local == nil {
		return ComponentHealth{Status: statusDegraded, Message: "local store not configured"}
	}
	start := time.Now()
	err := s.services.Local.Ping(ctx)
	latency := time.Since(start)
	if err != nil {
		return ComponentHealth{Status: statusUnhealthy, Latency: latency.String(), Message: "local store read failed"}
	}
	return ComponentHealth{Status: statusHealthy, Latency: latency.String()}
}

// checkRemote reports reachability of the document store. Offline is only
// degraded: cached data is still served.
func (s *Server) checkRemote() ComponentHealth {
	if s.services.Connectivity == nil {
		return ComponentHealth{Status: statusHealthy, Message: "not monitored"}
	}
	state := s.services.Connectivity.State()
	if state == connectivity.Offline {
		return ComponentHealth{Status: statusDegraded, Message: "offline, serving cached data"}
	}
	return ComponentHealth{Status: statusHealthy, Message: state.String()}
}

func (s *Server) checkRefresh() ComponentHealth {
	if s.services.Sync == nil {
		return ComponentHealth{Status: statusDegraded, Message: "synchronizer not configured"}
	}
	return ComponentHealth{
		Status:  statusHealthy,
		Message: strconv.Itoa(len(s.services.Sync.InFlight())) + " refreshes in flight",
	}
}

// checkSearchIndex verifies the Bleve index is accessible.
func (s *Server) checkSearchIndex() ComponentHealth {
	if s.services.Search == nil {
		return ComponentHealth{Status: statusDegraded, Message: "search not configured"}
	}
	start := time.Now()
	count, err := s.services.Search.DocumentCount()
	latency := time.Since(start)
	if err != nil {
		return ComponentHealth{Status: statusUnhealthy, Latency: latency.String(), Message: "search index unreachable"}
	}
	return ComponentHealth{
		Status:  statusHealthy,
		Latency: latency.String(),
		Message: strconv.FormatUint(count, 10) + " tools indexed",
	}
}

func (s *Server) checkEvents() ComponentHealth {
	if s.services.Events == nil {
		return ComponentHealth{Status: statusDegraded, Message: "event stream not configured"}
	}
	return ComponentHealth{Status: statusHealthy, Message: formatClientCount(s.services.Events.ClientCount())}
}

// checkDisk reports free space on the data volume. Badger and the blob store
// stop accepting writes when it runs out.
func (s *Server) checkDisk() ComponentHealth {
	free, err := diskFree(s.dataPath)
	if err != nil {
		return ComponentHealth{Status: statusHealthy, Message: "unknown: " + err.Error()}
	}
	msg := strconv.FormatUint(free>>20, 10) + " MiB free"
	if free < lowDiskBytes {
		return ComponentHealth{Status: statusDegraded, Message: msg}
	}
	return ComponentHealth{Status: statusHealthy, Message: msg}
}

func formatClientCount(count int) string {
	if count == 1 {
		return "1 connected client"
	}
	return strconv.Itoa(count) + " connected clients"
}

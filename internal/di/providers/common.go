package providers

import "time"

const (
	// shutdownTimeout is the maximum time to wait for graceful shutdown of services.
	shutdownTimeout = 30 * time.Second

	// sessionCleanupInterval is how often expired sessions are pruned.
	sessionCleanupInterval = time.Hour

	// limiterIdleTTL is how long a client IP is tracked after its last request.
	limiterIdleTTL = 10 * time.Minute
)

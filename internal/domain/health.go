package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// BoardMetrics is returned by GET /v1/metrics/board.
type BoardMetrics struct {
	Mutations        int64   `json:"mutations"`
	FailedMutations  int64   `json:"failedMutations"`
	RollbacksApplied int64   `json:"rollbacksApplied"`
	RollbacksSkipped int64   `json:"rollbacksSkipped"`
	FetchErrors      int64   `json:"fetchErrors"`
	FailureRate      float64 `json:"failureRate"`
	CacheHitRate     float64 `json:"cacheHitRate"`
	Period           string  `json:"period"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

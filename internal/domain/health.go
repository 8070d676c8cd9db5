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

// AnalysisMetrics is returned by GET /v1/metrics/analysis.
type AnalysisMetrics struct {
	TotalAnalyses    int64   `json:"totalAnalyses"`
	ErrorRate        float64 `json:"errorRate"`
	CacheHitRate     float64 `json:"cacheHitRate"`
	InsightsEmitted  int64   `json:"insightsEmitted"`
	OverspendAlerts  int64   `json:"overspendAlerts"`
	DominantWarnings int64   `json:"dominantCategoryWarnings"`
	Period           string  `json:"period"`
}

// ============================================================
// Generic API Response wrappers
// ============================================================

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

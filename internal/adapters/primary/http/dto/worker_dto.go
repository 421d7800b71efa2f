package dto

import "time"

// WorkerStatusResponse is the GET /worker/status response, per §6.
type WorkerStatusResponse struct {
	IsRunning         bool      `json:"isRunning"`
	CurrentQueueDepth int       `json:"currentQueueDepth"`
	LastPollTime      time.Time `json:"lastPollTime"`
	CorrelationID     string    `json:"correlationId"`
}

// WorkerStatsResponse extends WorkerStatusResponse with per-replica
// counters, per §6.
type WorkerStatsResponse struct {
	WorkerStatusResponse
	TotalProcessed int64   `json:"totalProcessed"`
	TotalSucceeded int64   `json:"totalSucceeded"`
	TotalFailed    int64   `json:"totalFailed"`
	TotalRetries   int64   `json:"totalRetries"`
	UptimeSeconds  float64 `json:"uptimeSeconds"`
}

// HealthResponse is the GET /healthz response, per §6.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyChecks is the inner "checks" object of ReadyResponse.
type ReadyChecks struct {
	JWKS    bool `json:"jwks"`
	Records bool `json:"records"`
	Secrets bool `json:"secrets"`
}

// ReadyResponse is the GET /readyz response, per §6.
type ReadyResponse struct {
	Ready  bool        `json:"ready"`
	Checks ReadyChecks `json:"checks"`
}

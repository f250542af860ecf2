package handler

// WebhookResponse represents the JSON response for a delivered batch
type WebhookResponse struct {
	Status string `json:"status"`
}

// ErrorResponse represents the JSON response for a rejected request
type ErrorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// RelayErrorResponse reports how far a batch got before a send failed.
// Alerts after the failed one were not sent.
type RelayErrorResponse struct {
	ErrorResponse
	Sent  int `json:"sent"`
	Total int `json:"total"`
}

// HealthResponse represents the JSON response for the /health endpoint
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

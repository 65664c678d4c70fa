package api

const postCommandMaxSize = 256 * 1024 // rich-text notes payloads ride along

// POST /api/commands response body
type postCommandResponse struct {
	IdempotencyKeys []string `json:"idempotencyKeys,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// POST /api/tasks/:id/move request body
type moveTaskRequest struct {
	TaskDate string `json:"taskDate"`
}

// POST /api/periods/:id/reports request body
type generateReportRequest struct {
	Name string `json:"name"`
}

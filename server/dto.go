package server

import "github.com/synapse-a2a/synapse/types"

// CreateTaskRequest is the body of POST /tasks/create and /tasks/send
// (spec.md §4.2, §6).
type CreateTaskRequest struct {
	Message  types.Message  `json:"message" binding:"required"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Status  string `json:"status"`
	Context string `json:"context"`
}

// TaskListResponse is the body of GET /tasks.
type TaskListResponse struct {
	Tasks []types.Task `json:"tasks"`
	Total int          `json:"total"`
}

// SpawnRequest is the body of POST /spawn.
type SpawnRequest struct {
	Profile  string `json:"profile" binding:"required"`
	Name     string `json:"name,omitempty"`
	Role     string `json:"role,omitempty"`
	SkillSet string `json:"skill_set,omitempty"`
}

// SpawnResponse is the body returned from POST /spawn.
type SpawnResponse struct {
	AgentID string `json:"agent_id"`
}

// TeamStartRequest is the body of POST /team/start.
type TeamStartRequest struct {
	Agents []SpawnRequest `json:"agents" binding:"required"`
}

// TeamStartResponse is the body returned from POST /team/start.
type TeamStartResponse struct {
	AgentIDs []string `json:"agent_ids"`
}

// ExternalDiscoverRequest is the body of POST /external/discover.
type ExternalDiscoverRequest struct {
	Alias    string `json:"alias" binding:"required"`
	Endpoint string `json:"endpoint" binding:"required"`
}

// ExternalPeer is a remembered remote A2A peer discovered via
// POST /external/discover.
type ExternalPeer struct {
	Alias    string          `json:"alias"`
	Endpoint string          `json:"endpoint"`
	Card     types.AgentCard `json:"card"`
}

// ExternalSendRequest is the body of POST /external/agents/{alias}/send.
type ExternalSendRequest struct {
	Message  types.Message  `json:"message" binding:"required"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// WebhookRegisterRequest is the body of POST /webhooks.
type WebhookRegisterRequest struct {
	URL    string   `json:"url" binding:"required"`
	Secret string   `json:"secret,omitempty"`
	Events []string `json:"events,omitempty"`
}

// BoardCreateRequest is the body of POST /tasks/board.
type BoardCreateRequest struct {
	Subject     string   `json:"subject" binding:"required"`
	Description string   `json:"description,omitempty"`
	CreatedBy   string   `json:"created_by" binding:"required"`
	BlockedBy   []string `json:"blocked_by,omitempty"`
}

// BoardCreateResponse is the body returned from POST /tasks/board.
type BoardCreateResponse struct {
	ID string `json:"id"`
}

// BoardClaimRequest is the body of POST /tasks/board/{id}/claim.
type BoardClaimRequest struct {
	AgentID string `json:"agent_id" binding:"required"`
}

// BoardClaimResponse is the body returned from POST /tasks/board/{id}/claim.
type BoardClaimResponse struct {
	Claimed bool `json:"claimed"`
}

// BoardCompleteRequest is the body of POST /tasks/board/{id}/complete.
type BoardCompleteRequest struct {
	AgentID string `json:"agent_id" binding:"required"`
}

// BoardCompleteResponse is the body returned from POST /tasks/board/{id}/complete.
type BoardCompleteResponse struct {
	Unblocked []string `json:"unblocked"`
}

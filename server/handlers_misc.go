package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/synapse-a2a/synapse/internal/registry"
	"github.com/synapse-a2a/synapse/types"
)

// maxStatusContext bounds the /status response body (spec.md §4.2).
const maxStatusContext = 2048

// spawnReadyTimeout bounds how long POST /spawn waits for the new agent's
// registry entry to appear before reporting success anyway.
const spawnReadyTimeout = 10 * time.Second

// handleAgentCard implements GET /.well-known/agent.json.
func (s *Server) handleAgentCard(c *gin.Context) {
	s.responder.JSON(c, http.StatusOK, s.card)
}

// handleStatus implements GET /status.
func (s *Server) handleStatus(c *gin.Context) {
	s.responder.JSON(c, http.StatusOK, StatusResponse{
		Status:  string(s.controller.Status()),
		Context: truncateContext(s.controller.Context(), maxStatusContext),
	})
}

// handleSpawn implements POST /spawn: launches a new synapse-agentd process
// of the requested profile, allocating it a port from its type's band
// (spec.md §4.7).
func (s *Server) handleSpawn(c *gin.Context) {
	var req SpawnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.responder.Error(c, NewValidationError(err.Error()))
		return
	}

	agentID, err := s.spawnAgent(req)
	if err != nil {
		s.responder.Error(c, NewValidationError(err.Error()))
		return
	}
	s.responder.JSON(c, http.StatusCreated, SpawnResponse{AgentID: agentID})
}

// handleTeamStart implements POST /team/start: spawns a batch of agents.
func (s *Server) handleTeamStart(c *gin.Context) {
	var req TeamStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.responder.Error(c, NewValidationError(err.Error()))
		return
	}

	ids := make([]string, 0, len(req.Agents))
	for _, agentReq := range req.Agents {
		id, err := s.spawnAgent(agentReq)
		if err != nil {
			s.logger.Warn("team member spawn failed", zap.String("profile", agentReq.Profile), zap.Error(err))
			continue
		}
		ids = append(ids, id)
	}
	s.responder.JSON(c, http.StatusCreated, TeamStartResponse{AgentIDs: ids})
}

// spawnAgent execs a detached child synapse-agentd process for req.Profile
// and waits for its registry entry to appear.
func (s *Server) spawnAgent(req SpawnRequest) (string, error) {
	port, err := s.portManager.Acquire(req.Profile)
	if err != nil {
		return "", fmt.Errorf("acquire port: %w", err)
	}
	agentID := registry.AgentID(req.Profile, port)

	cmd := exec.Command(os.Args[0])
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("SYNAPSE_PROFILE=%s", req.Profile),
		fmt.Sprintf("SYNAPSE_PORT=%d", port),
		fmt.Sprintf("SYNAPSE_AGENT_TYPE=%s", req.Profile),
	)
	if req.Name != "" {
		cmd.Env = append(cmd.Env, fmt.Sprintf("SYNAPSE_AGENT_NAME=%s", req.Name))
	}
	if req.Role != "" {
		cmd.Env = append(cmd.Env, fmt.Sprintf("SYNAPSE_AGENT_ROLE=%s", req.Role))
	}
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start agent process: %w", err)
	}
	go func() { _ = cmd.Wait() }()

	deadline := time.Now().Add(spawnReadyTimeout)
	for time.Now().Before(deadline) {
		if _, ok := s.reg.Get(agentID); ok {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	return agentID, nil
}

// handleExternalDiscover implements POST /external/discover: fetches a
// remote agent's card and remembers it under an alias.
func (s *Server) handleExternalDiscover(c *gin.Context) {
	var req ExternalDiscoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.responder.Error(c, NewValidationError(err.Error()))
		return
	}

	httpReq, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet,
		req.Endpoint+"/.well-known/agent.json", nil)
	if err != nil {
		s.responder.Error(c, NewValidationError(err.Error()))
		return
	}
	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		s.responder.Error(c, fmt.Errorf("discover %s: %w", req.Endpoint, err))
		return
	}
	defer func() { _ = resp.Body.Close() }()

	var card types.AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		s.responder.Error(c, NewValidationError("invalid agent card from peer: "+err.Error()))
		return
	}

	peer := ExternalPeer{Alias: normalizeAlias(req.Alias), Endpoint: req.Endpoint, Card: card}
	s.mu.Lock()
	s.external[peer.Alias] = peer
	s.mu.Unlock()

	s.responder.JSON(c, http.StatusOK, peer)
}

// handleExternalSend implements POST /external/agents/{alias}/send:
// forwards a message to a previously discovered peer's /tasks/send.
func (s *Server) handleExternalSend(c *gin.Context) {
	alias := normalizeAlias(c.Param("alias"))

	s.mu.RLock()
	peer, ok := s.external[alias]
	s.mu.RUnlock()
	if !ok {
		s.responder.Error(c, NewNotFoundError("external agent", alias))
		return
	}

	var req ExternalSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.responder.Error(c, NewValidationError(err.Error()))
		return
	}
	if len(req.Message.Parts) == 0 {
		s.responder.Error(c, NewEmptyMessagePartsError())
		return
	}

	if req.Metadata == nil {
		req.Metadata = map[string]any{}
	}
	req.Metadata[types.MetaSender] = map[string]any{
		"sender_id":       s.agentID,
		"sender_endpoint": s.card.URL,
		"sender_type":     s.cfg.AgentType,
	}

	payload, err := json.Marshal(CreateTaskRequest{Message: req.Message, Metadata: req.Metadata})
	if err != nil {
		s.responder.Error(c, err)
		return
	}
	httpReq, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost,
		peer.Endpoint+"/tasks/send", bytes.NewReader(payload))
	if err != nil {
		s.responder.Error(c, err)
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		s.responder.Error(c, fmt.Errorf("send to external agent %s: %w", alias, err))
		return
	}
	defer func() { _ = resp.Body.Close() }()

	c.Status(resp.StatusCode)
	c.Header("Content-Type", "application/json")
	_, _ = io.Copy(c.Writer, resp.Body)
}

// handleWebhookRegister implements POST /webhooks.
func (s *Server) handleWebhookRegister(c *gin.Context) {
	var req WebhookRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.responder.Error(c, NewValidationError(err.Error()))
		return
	}
	sub, err := s.webhooks.Register(req.URL, req.Secret, req.Events)
	if err != nil {
		s.responder.Error(c, NewValidationError(err.Error()))
		return
	}
	s.responder.JSON(c, http.StatusCreated, sub)
}

// handleWebhookUnregister implements DELETE /webhooks/{id}.
func (s *Server) handleWebhookUnregister(c *gin.Context) {
	s.webhooks.Unregister(c.Param("id"))
	c.Status(http.StatusNoContent)
}

// handleWebhookList implements GET /webhooks.
func (s *Server) handleWebhookList(c *gin.Context) {
	s.responder.JSON(c, http.StatusOK, s.webhooks.List())
}

// handleWebhookDeliveries implements GET /webhooks/deliveries?webhook_id=.
func (s *Server) handleWebhookDeliveries(c *gin.Context) {
	id := c.Query("webhook_id")
	if id == "" {
		s.responder.Error(c, NewValidationError("webhook_id query parameter is required"))
		return
	}
	s.responder.JSON(c, http.StatusOK, s.webhooks.RecentDeliveries(id, 100))
}

// handleBoardList implements GET /tasks/board?status=&assignee=.
func (s *Server) handleBoardList(c *gin.Context) {
	tasks, err := s.boardStore.ListTasks(c.Query("status"), c.Query("assignee"))
	if err != nil {
		s.responder.Error(c, mapBoardError(err))
		return
	}
	s.responder.JSON(c, http.StatusOK, tasks)
}

// handleBoardCreate implements POST /tasks/board.
func (s *Server) handleBoardCreate(c *gin.Context) {
	var req BoardCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.responder.Error(c, NewValidationError(err.Error()))
		return
	}
	id, err := s.boardStore.CreateTask(req.Subject, req.Description, req.CreatedBy, req.BlockedBy)
	if err != nil {
		s.responder.Error(c, mapBoardError(err))
		return
	}
	s.responder.JSON(c, http.StatusCreated, BoardCreateResponse{ID: id})
}

// handleBoardClaim implements POST /tasks/board/{id}/claim.
func (s *Server) handleBoardClaim(c *gin.Context) {
	var req BoardClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.responder.Error(c, NewValidationError(err.Error()))
		return
	}
	claimed, err := s.boardStore.ClaimTask(c.Param("id"), req.AgentID)
	if err != nil {
		s.responder.Error(c, mapBoardError(err))
		return
	}
	s.responder.JSON(c, http.StatusOK, BoardClaimResponse{Claimed: claimed})
}

// handleBoardComplete implements POST /tasks/board/{id}/complete.
func (s *Server) handleBoardComplete(c *gin.Context) {
	var req BoardCompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.responder.Error(c, NewValidationError(err.Error()))
		return
	}
	unblocked, err := s.boardStore.CompleteTask(c.Param("id"), req.AgentID)
	if err != nil {
		s.responder.Error(c, mapBoardError(err))
		return
	}
	s.responder.JSON(c, http.StatusOK, BoardCompleteResponse{Unblocked: unblocked})
}

func mapBoardError(err error) error {
	if err == nil {
		return nil
	}
	if err.Error() == "task board is disabled" {
		return NewFeatureDisabledError("task board")
	}
	return err
}

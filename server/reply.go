package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/synapse-a2a/synapse/types"
)

// completeTask transitions a task to a terminal state, attaches the given
// message as a final artifact, fires the matching webhook event and, if the
// task carries a sender envelope, routes the message back to that sender
// (spec.md §4.4 reply routing, §4.6 webhooks).
func (s *Server) completeTask(task *types.Task, state types.TaskState, msg *types.Message) {
	if err := s.tasks.UpdateStatus(task.ID, state, msg); err != nil {
		s.logger.Warn("failed to complete task", zap.String("task_id", task.ID), zap.Error(err))
		return
	}
	if msg != nil {
		_ = s.tasks.AppendArtifact(task.ID, msg.Parts)
	}

	event := types.EventTaskCompleted
	if state == types.TaskStateFailed {
		event = types.EventTaskFailed
	}
	s.dispatcher.Dispatch(event, map[string]any{"task_id": task.ID, "state": string(state)})
	s.recordObservation("task."+string(state), task.ID, map[string]any{})

	sender, ok := s.replies.Pop(task.ID)
	if !ok || msg == nil {
		return
	}
	go s.routeReply(sender, *msg, task.ID)
}

// routeReply posts msg to the sender's /tasks/send endpoint, preferring its
// Unix domain socket when the sender advertised one (spec.md §6).
func (s *Server) routeReply(sender types.SenderInfo, msg types.Message, inReplyToID string) {
	client := newUDSAwareClient(sender.SenderUDSPath)

	body := CreateTaskRequest{
		Message: msg,
		Metadata: map[string]any{
			types.MetaInReplyTo: inReplyToID,
		},
	}
	if sender.SenderTaskID != "" {
		body.Metadata[types.MetaInReplyTo] = sender.SenderTaskID
	}

	payload, err := json.Marshal(body)
	if err != nil {
		s.logger.Error("failed to marshal reply", zap.Error(err))
		return
	}

	url := fmt.Sprintf("%s/tasks/send", sender.SenderEndpoint)
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		s.logger.Error("failed to build reply request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.Auth.APIKey != "" {
		req.Header.Set("X-Synapse-Api-Key", s.cfg.Auth.APIKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		s.logger.Warn("reply delivery failed", zap.String("sender_id", sender.SenderID), zap.Error(err))
		return
	}
	_ = resp.Body.Close()
}

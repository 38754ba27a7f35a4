package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/synapse-a2a/synapse/internal/taskstore"
	"github.com/synapse-a2a/synapse/types"
)

// priorityInterruptThreshold is the minimum send-priority value that
// preempts the wrapped process with SIGINT before writing (spec.md §4.2).
const priorityInterruptThreshold = 5

// handleCreateTask implements POST /tasks/create: records a task in the
// submitted state without writing anything to the PTY (spec.md §4.2).
func (s *Server) handleCreateTask(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.responder.Error(c, NewValidationError(err.Error()))
		return
	}
	if len(req.Message.Parts) == 0 {
		s.responder.Error(c, NewEmptyMessagePartsError())
		return
	}

	task := s.tasks.Create(&req.Message, types.TaskStateSubmitted, req.Metadata)
	s.rememberSender(task, req.Metadata)
	s.dispatcher.Dispatch(types.EventTaskCreated, map[string]any{"task_id": task.ID})
	s.recordObservation("task.created", task.ID, map[string]any{})
	s.responder.JSON(c, http.StatusCreated, task)
}

// rememberSender pushes the task's sender envelope, if any, onto the Reply
// Stack keyed by task id so a later completion can route its result back
// without re-parsing the task's stored metadata (spec.md §4.4).
func (s *Server) rememberSender(task *types.Task, metadata map[string]any) {
	if sender, ok := senderFromMetadata(metadata); ok {
		s.replies.Set(task.ID, sender)
	}
}

// handleSendTask implements POST /tasks/send: creates a task and writes its
// message text to the wrapped process, or completes a matching local task
// when the message carries a reply envelope (spec.md §4.2, §4.4).
func (s *Server) handleSendTask(c *gin.Context) {
	s.sendTask(c, 0)
}

// handleSendTaskPriority implements POST /tasks/send-priority?priority=N.
func (s *Server) handleSendTaskPriority(c *gin.Context) {
	priority, _ := strconv.Atoi(c.Query("priority"))
	s.sendTask(c, priority)
}

func (s *Server) sendTask(c *gin.Context, priority int) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.responder.Error(c, NewValidationError(err.Error()))
		return
	}
	if len(req.Message.Parts) == 0 {
		s.responder.Error(c, NewEmptyMessagePartsError())
		return
	}

	if replyID, ok := inReplyTo(req.Metadata); ok {
		if target, err := s.tasks.Resolve(replyID); err == nil && !target.Status.State.Terminal() {
			s.completeTask(target, types.TaskStateCompleted, &req.Message)
			s.responder.JSON(c, http.StatusOK, target)
			return
		}
	}

	if priority >= priorityInterruptThreshold {
		if err := s.controller.Interrupt(); err != nil {
			s.logger.Warn("priority interrupt failed", zap.Error(err))
		}
	}

	task := s.tasks.Create(&req.Message, types.TaskStateWorking, req.Metadata)
	s.rememberSender(task, req.Metadata)
	s.dispatcher.Dispatch(types.EventTaskCreated, map[string]any{"task_id": task.ID})
	s.recordObservation("task.created", task.ID, map[string]any{})

	if err := s.controller.Write(messageText(&req.Message), ""); err != nil {
		s.completeTask(task, types.TaskStateFailed, nil)
		s.responder.Error(c, err)
		return
	}

	s.responder.JSON(c, http.StatusCreated, task)
}

// messageText concatenates a Message's text parts with newlines, the form
// the wrapped CLI is written as if typed (spec.md §4.1). Non-text parts
// have no terminal-typing representation and are skipped.
func messageText(msg *types.Message) string {
	var lines []string
	for _, part := range msg.Parts {
		if part.Type == "text" && part.Text != "" {
			lines = append(lines, part.Text)
		}
	}
	return strings.Join(lines, "\n")
}

// handleGetTask implements GET /tasks/{id} with case-insensitive unique
// prefix resolution (spec.md §4.2, §8 property 3).
func (s *Server) handleGetTask(c *gin.Context) {
	task, err := s.tasks.Resolve(c.Param("id"))
	if err != nil {
		s.responder.Error(c, mapTaskStoreError(c.Param("id"), err))
		return
	}
	s.responder.JSON(c, http.StatusOK, task)
}

// handleCancelTask implements POST /tasks/{id}/cancel.
func (s *Server) handleCancelTask(c *gin.Context) {
	task, err := s.tasks.Resolve(c.Param("id"))
	if err != nil {
		s.responder.Error(c, mapTaskStoreError(c.Param("id"), err))
		return
	}
	if task.Status.State.Terminal() {
		s.responder.Error(c, NewTerminalStatusError(task.ID, string(task.Status.State)))
		return
	}
	if err := s.tasks.UpdateStatus(task.ID, types.TaskStateCanceled, nil); err != nil {
		s.responder.Error(c, err)
		return
	}
	resolved, _ := s.tasks.Get(task.ID)
	s.responder.JSON(c, http.StatusOK, resolved)
}

// handleListTasks implements GET /tasks, with optional ?state=, ?limit= and
// ?offset= filters.
func (s *Server) handleListTasks(c *gin.Context) {
	var statePtr *types.TaskState
	if raw := c.Query("state"); raw != "" {
		state := types.TaskState(raw)
		statePtr = &state
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	tasks, total := s.tasks.List(statePtr, limit, offset)
	s.responder.JSON(c, http.StatusOK, TaskListResponse{Tasks: tasks, Total: total})
}

// mapTaskStoreError converts a taskstore error into this package's HTTP
// error taxonomy.
func mapTaskStoreError(id string, err error) error {
	if matches, ok := taskstore.Ambiguous(err); ok {
		return NewAmbiguousTaskError(id, matches)
	}
	if taskstore.NotFound(err) {
		return NewTaskNotFoundError(id)
	}
	if taskstore.Terminal(err) {
		return NewTerminalStatusError(id, "")
	}
	return err
}

package server

import "fmt"

// TaskNotFoundError reports that no task matches a given id or id prefix.
type TaskNotFoundError struct {
	ID string
}

func NewTaskNotFoundError(id string) *TaskNotFoundError { return &TaskNotFoundError{ID: id} }

func (e *TaskNotFoundError) Error() string { return fmt.Sprintf("task not found: %s", e.ID) }

// AmbiguousTaskError reports that an id prefix matched more than one task.
type AmbiguousTaskError struct {
	Prefix  string
	Matches []string
}

func NewAmbiguousTaskError(prefix string, matches []string) *AmbiguousTaskError {
	return &AmbiguousTaskError{Prefix: prefix, Matches: matches}
}

func (e *AmbiguousTaskError) Error() string {
	return fmt.Sprintf("task id prefix %q matches %d tasks", e.Prefix, len(e.Matches))
}

// TerminalStatusError reports an attempt to transition a task out of a
// terminal status (spec.md §3 Task invariants).
type TerminalStatusError struct {
	TaskID string
	From   string
}

func NewTerminalStatusError(taskID, from string) *TerminalStatusError {
	return &TerminalStatusError{TaskID: taskID, From: from}
}

func (e *TerminalStatusError) Error() string {
	return fmt.Sprintf("task %s is already in terminal status %s", e.TaskID, e.From)
}

// EmptyMessagePartsError reports a Message with no parts, rejected before
// it reaches the Terminal Controller.
type EmptyMessagePartsError struct{}

func NewEmptyMessagePartsError() *EmptyMessagePartsError { return &EmptyMessagePartsError{} }

func (e *EmptyMessagePartsError) Error() string { return "message must contain at least one part" }

// NotReadyError reports that a write-bearing request arrived before the
// identity-injection handshake completed (spec.md §4.2 readiness gate).
type NotReadyError struct{}

func NewNotReadyError() *NotReadyError { return &NotReadyError{} }

func (e *NotReadyError) Error() string { return "agent is not ready to accept tasks yet" }

// ValidationError reports a malformed request body or parameter
// (spec.md §7 Protocol errors).
type ValidationError struct {
	Detail string
}

func NewValidationError(detail string) *ValidationError { return &ValidationError{Detail: detail} }

func (e *ValidationError) Error() string { return e.Detail }

// NotFoundError reports a missing resource other than a task (webhook,
// external peer, board task).
type NotFoundError struct {
	Resource string
	ID       string
}

func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s not found: %s", e.Resource, e.ID) }

// FeatureDisabledError reports a request against an optional subsystem that
// is configured off for this run (spec.md §7 Persistence errors).
type FeatureDisabledError struct {
	Feature string
}

func NewFeatureDisabledError(feature string) *FeatureDisabledError {
	return &FeatureDisabledError{Feature: feature}
}

func (e *FeatureDisabledError) Error() string { return e.Feature + " is disabled" }

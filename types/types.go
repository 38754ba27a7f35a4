package types

import "time"

// Role identifies the author of a Message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// TaskState is the lifecycle state of a Task (spec.md §3).
type TaskState string

const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input_required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateFailed        TaskState = "failed"
	TaskStateCanceled      TaskState = "canceled"
)

// Terminal reports whether a TaskState no longer accepts transitions
// (spec.md §3 Task invariants).
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
		return true
	default:
		return false
	}
}

// DataPart carries a structured JSON blob.
type DataPart struct {
	Data map[string]any `json:"data"`
}

// FilePart references file content, inline or by path (spec.md §6).
type FilePart struct {
	Path      string  `json:"path"`
	Action    string  `json:"action,omitempty"`
	MimeType  string  `json:"mimeType,omitempty"`
	Content   *string `json:"content,omitempty"`
}

// Part is a section of message content: text, a file reference or a
// structured data blob, tagged by Type (spec.md §9: "do not rely on
// structural typing"). Exactly one of Text/File/Data is populated for the
// matching Type.
type Part struct {
	Type string    `json:"type"`
	Text string    `json:"text,omitempty"`
	File *FilePart `json:"file,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

// NewTextPart builds a text Part.
func NewTextPart(text string) Part {
	return Part{Type: "text", Text: text}
}

// NewDataPart builds a data Part.
func NewDataPart(data map[string]any) Part {
	return Part{Type: "data", Data: data}
}

// NewFilePart builds a file Part.
func NewFilePart(path, mimeType, content string) Part {
	return Part{Type: "file", File: &FilePart{Path: path, MimeType: mimeType, Content: &content}}
}

// Message is one turn of A2A communication (spec.md §6).
type Message struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// Artifact is an indexed, ordered collection of parts attached to a task as
// the wrapped process produces output (spec.md §6).
type Artifact struct {
	Index int    `json:"index"`
	Parts []Part `json:"parts"`
}

// TaskStatus is the current state of a Task plus the message that produced
// that state, if any.
type TaskStatus struct {
	State   TaskState `json:"state"`
	Message *Message  `json:"message,omitempty"`
}

// SenderInfo identifies the peer that originated a Task, carried in
// Task.Metadata["sender"] (spec.md §6).
type SenderInfo struct {
	SenderID       string `json:"sender_id"`
	SenderEndpoint string `json:"sender_endpoint"`
	SenderTaskID   string `json:"sender_task_id,omitempty"`
	SenderUDSPath  string `json:"sender_uds_path,omitempty"`
	SenderType     string `json:"sender_type,omitempty"`
}

const (
	MetaSender           = "sender"
	MetaInReplyTo        = "in_reply_to"
	MetaResponseExpected = "response_expected"
)

// Task is the core unit of work tracked by the Task Store (spec.md §4.3).
type Task struct {
	ID        string         `json:"id"`
	Status    TaskStatus     `json:"status"`
	Message   *Message       `json:"message,omitempty"`
	Artifacts []Artifact     `json:"artifacts"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// AgentProvider identifies who operates an agent.
type AgentProvider struct {
	Organization string `json:"organization"`
	URL          string `json:"url,omitempty"`
}

// AgentCapabilities advertises optional protocol features an agent
// supports.
type AgentCapabilities struct {
	Streaming         bool `json:"streaming"`
	PushNotifications bool `json:"pushNotifications"`
}

// AgentSkill describes one capability an agent exposes.
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
}

// AgentCard is the manifest served at /.well-known/agent.json
// (spec.md §4.2, §4.7).
type AgentCard struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Role               string            `json:"role,omitempty"`
	Description        string            `json:"description"`
	Version            string            `json:"version"`
	URL                string            `json:"url"`
	Provider           *AgentProvider    `json:"provider,omitempty"`
	Capabilities       AgentCapabilities `json:"capabilities"`
	DefaultInputModes  []string          `json:"defaultInputModes"`
	DefaultOutputModes []string          `json:"defaultOutputModes"`
	Skills             []AgentSkill      `json:"skills"`
}

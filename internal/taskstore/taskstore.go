// Package taskstore implements the in-memory Task Store (spec.md §4.3),
// adapted from the teacher's DefaultTaskManager map+mutex shape to this
// system's prefix-lookup and sender/reply metadata model.
package taskstore

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/synapse-a2a/synapse/types"
)

// maxTasks is the size above which terminal tasks are evicted, oldest first
// (spec.md §4.3 eviction policy). Non-terminal tasks are never evicted, so
// the store grows past maxTasks when they alone fill it.
const maxTasks = 1000

// Store is a thread-safe in-memory collection of Tasks.
type Store struct {
	mu     sync.RWMutex
	tasks  map[string]*types.Task
	order  []string
	logger *zap.Logger
}

// New creates an empty Store.
func New(logger *zap.Logger) *Store {
	return &Store{tasks: make(map[string]*types.Task), logger: logger}
}

// Create builds and stores a new Task in the given state. metadata may
// carry spec.md §6 keys (sender, response_expected); it is copied in as-is.
func (s *Store) Create(msg *types.Message, state types.TaskState, metadata map[string]any) *types.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	task := &types.Task{
		ID:        uuid.New().String(),
		Status:    types.TaskStatus{State: state, Message: msg},
		Message:   msg,
		Artifacts: []types.Artifact{},
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.tasks[task.ID] = task
	s.order = append(s.order, task.ID)
	s.evictIfFull()

	s.logger.Debug("task created", zap.String("task_id", task.ID), zap.String("state", string(state)))
	return task
}

// Resolve looks a task up by full id or unique prefix (case-insensitive),
// distinguishing NotFound from Ambiguous (spec.md §4.2, §8 property 3).
func (s *Store) Resolve(idOrPrefix string) (*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if task, ok := s.tasks[idOrPrefix]; ok {
		return task, nil
	}

	needle := strings.ToLower(idOrPrefix)
	var matches []*types.Task
	for id, task := range s.tasks {
		if strings.HasPrefix(strings.ToLower(id), needle) {
			matches = append(matches, task)
		}
	}

	switch len(matches) {
	case 0:
		return nil, errNotFound{id: idOrPrefix}
	case 1:
		return matches[0], nil
	default:
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.ID
		}
		sort.Strings(ids)
		return nil, errAmbiguous{prefix: idOrPrefix, matches: ids}
	}
}

// Get returns a task by exact id only.
func (s *Store) Get(taskID string) (*types.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	return task, ok
}

// UpdateStatus transitions a task to a new state, refusing to move a task
// out of a terminal state (spec.md §3 Task invariants, §8 universal
// invariant "Task status is monotonic").
func (s *Store) UpdateStatus(taskID string, state types.TaskState, msg *types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return errNotFound{id: taskID}
	}
	if task.Status.State.Terminal() {
		return errTerminal{taskID: taskID, from: string(task.Status.State)}
	}

	task.Status = types.TaskStatus{State: state, Message: msg}
	if msg != nil {
		task.Message = msg
	}
	task.UpdatedAt = time.Now().UTC()
	return nil
}

// AppendArtifact appends an artifact produced by the wrapped process to a
// task's artifact list (spec.md §6).
func (s *Store) AppendArtifact(taskID string, parts []types.Part) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return errNotFound{id: taskID}
	}
	task.Artifacts = append(task.Artifacts, types.Artifact{Index: len(task.Artifacts), Parts: parts})
	task.UpdatedAt = time.Now().UTC()
	return nil
}

// List returns tasks matching the given optional state filter, newest
// first.
func (s *Store) List(state *types.TaskState, limit, offset int) ([]types.Task, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []types.Task
	for i := len(s.order) - 1; i >= 0; i-- {
		task, ok := s.tasks[s.order[i]]
		if !ok {
			continue
		}
		if state != nil && task.Status.State != *state {
			continue
		}
		all = append(all, *task)
	}

	total := len(all)
	if offset > len(all) {
		offset = len(all)
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, total
}

// evictIfFull drops the oldest terminal tasks once the store exceeds
// maxTasks. Must be called with mu held.
func (s *Store) evictIfFull() {
	if len(s.tasks) <= maxTasks {
		return
	}
	for i := 0; i < len(s.order) && len(s.tasks) > maxTasks; i++ {
		id := s.order[i]
		task, ok := s.tasks[id]
		if !ok || !task.Status.State.Terminal() {
			continue
		}
		delete(s.tasks, id)
		s.order = append(s.order[:i], s.order[i+1:]...)
		i--
	}
}

type errNotFound struct{ id string }

func (e errNotFound) Error() string { return "task not found: " + e.id }

// NotFound reports whether err denotes an unresolved task id.
func NotFound(err error) bool { _, ok := err.(errNotFound); return ok }

type errAmbiguous struct {
	prefix  string
	matches []string
}

func (e errAmbiguous) Error() string { return "ambiguous task id prefix: " + e.prefix }

// Ambiguous reports whether err denotes a prefix matching multiple tasks,
// returning the matching ids.
func Ambiguous(err error) ([]string, bool) {
	if e, ok := err.(errAmbiguous); ok {
		return e.matches, true
	}
	return nil, false
}

type errTerminal struct {
	taskID string
	from   string
}

func (e errTerminal) Error() string {
	return "task " + e.taskID + " is already terminal (" + e.from + ")"
}

// Terminal reports whether err denotes an attempted transition out of a
// terminal state.
func Terminal(err error) bool { _, ok := err.(errTerminal); return ok }

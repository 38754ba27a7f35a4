// Package replystack implements the reply routing store (spec.md §4.4),
// generalizing original_source's single global reply_stack.py list into a
// store keyed by task id (one originating sender per task, so a task id is
// an unambiguous key even when one sender has several outstanding tasks)
// while preserving its keyless LIFO pop semantics.
package replystack

import (
	"sync"

	"github.com/synapse-a2a/synapse/types"
)

// Stack holds one ReplyTarget per task id plus the insertion order needed
// for the keyless LIFO pop.
type Stack struct {
	mu      sync.Mutex
	targets map[string]types.SenderInfo
	order   []string
}

// New creates an empty Stack.
func New() *Stack {
	return &Stack{targets: make(map[string]types.SenderInfo)}
}

// Set records or replaces the reply target for a task id.
func (s *Stack) Set(taskID string, target types.SenderInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.targets[taskID]; !exists {
		s.order = append(s.order, taskID)
	}
	s.targets[taskID] = target
}

// Get returns the reply target for a task id without removing it.
func (s *Stack) Get(taskID string) (types.SenderInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.targets[taskID]
	return target, ok
}

// Pop removes and returns the reply target for taskID. When taskID is empty
// it pops the most recently inserted target across all tasks, matching
// original_source's single-stack LIFO pop() behavior.
func (s *Stack) Pop(taskID string) (types.SenderInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if taskID != "" {
		target, ok := s.targets[taskID]
		if !ok {
			return types.SenderInfo{}, false
		}
		delete(s.targets, taskID)
		s.removeFromOrder(taskID)
		return target, true
	}

	for i := len(s.order) - 1; i >= 0; i-- {
		id := s.order[i]
		if target, ok := s.targets[id]; ok {
			delete(s.targets, id)
			s.order = append(s.order[:i], s.order[i+1:]...)
			return target, true
		}
	}
	return types.SenderInfo{}, false
}

// Clear empties the stack.
func (s *Stack) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.targets = make(map[string]types.SenderInfo)
	s.order = nil
}

// Len reports how many distinct tasks currently have a target recorded.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.targets)
}

func (s *Stack) removeFromOrder(taskID string) {
	for i, id := range s.order {
		if id == taskID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

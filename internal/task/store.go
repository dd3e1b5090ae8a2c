// Package task tracks task lifecycle state in memory. Status moves strictly
// forward: pending, running, then exactly one of completed or failed.
package task

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is a task lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Task is one unit of orchestrated work.
type Task struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Profile   string    `json:"profile"`
	Status    Status    `json:"status"`
	Answer    string    `json:"answer,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var validNext = map[Status][]Status{
	StatusPending: {StatusRunning},
	StatusRunning: {StatusCompleted, StatusFailed},
}

// Store holds tasks in memory, keyed by uuid.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

// NewStore creates an empty task store.
func NewStore() *Store {
	return &Store{tasks: make(map[string]*Task)}
}

// Create registers a new pending task and returns it.
func (s *Store) Create(text, profile string) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	t := &Task{
		ID:        uuid.NewString(),
		Text:      text,
		Profile:   profile,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.tasks[t.ID] = t
	return cloneTask(t)
}

// Transition moves a task to the next status. Invalid transitions are
// programming errors surfaced as errors, never silent.
func (s *Store) Transition(id string, next Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %s not found", id)
	}
	for _, allowed := range validNext[t.Status] {
		if next == allowed {
			t.Status = next
			t.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("task %s: invalid transition %s -> %s", id, t.Status, next)
}

// SetOutcome records the final answer or error text on a task.
func (s *Store) SetOutcome(id, answer, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %s not found", id)
	}
	t.Answer = answer
	t.Error = errText
	t.UpdatedAt = time.Now()
	return nil
}

// Get returns a snapshot of one task.
func (s *Store) Get(id string) (*Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	return cloneTask(t), true
}

// List returns snapshots of all tasks, newest first.
func (s *Store) List() []*Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, cloneTask(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func cloneTask(t *Task) *Task {
	c := *t
	return &c
}

package tasks

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a task id is unknown or already evicted.
// The HTTP layer maps it to a 404; the executor treats it as a stop signal.
var ErrNotFound = errors.New("task not found")

// StoreConfig bounds task retention.
type StoreConfig struct {
	// TerminalTTL is how long a completed/failed/cancelled task stays
	// queryable so a polling client can observe the final state.
	TerminalTTL time.Duration
	// MaxAge evicts any task, whatever its status, to bound memory for
	// tasks that were never polled to completion.
	MaxAge time.Duration
}

// DefaultStoreConfig mirrors the retention the service ran with historically:
// terminal tasks linger half a minute, nothing survives a day.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		TerminalTTL: 30 * time.Second,
		MaxAge:      24 * time.Hour,
	}
}

// Store is the thread-safe, in-memory registry of task records. It is the
// single source of truth for progress and results. Entries are ephemeral by
// design: they do not survive a process restart.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	cfg   StoreConfig
	now   func() time.Time
}

// NewStore creates an empty task store with the given retention policy.
func NewStore(cfg StoreConfig) *Store {
	if cfg.TerminalTTL <= 0 {
		cfg.TerminalTTL = DefaultStoreConfig().TerminalTTL
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultStoreConfig().MaxAge
	}
	return &Store{
		tasks: make(map[string]*Task),
		cfg:   cfg,
		now:   time.Now,
	}
}

// Create allocates a fresh id and inserts a pending task.
func (s *Store) Create(kind Kind, metadata map[string]interface{}) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	for {
		if _, exists := s.tasks[id]; !exists {
			break
		}
		id = uuid.New().String()
	}

	now := s.now()
	s.tasks[id] = &Task{
		ID:        id,
		Kind:      kind,
		Status:    StatusPending,
		Progress:  0,
		Metadata:  cloneMap(metadata),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return id
}

// Get returns a snapshot of the task. Expired entries report ErrNotFound
// even if the sweeper has not removed them yet.
func (s *Store) Get(id string) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok || s.expired(t, s.now()) {
		return Task{}, ErrNotFound
	}
	return snapshot(t), nil
}

// Update describes a partial mutation of a task record. Nil fields are left
// untouched.
type Update struct {
	Status      *Status
	Progress    *int
	CurrentStep *string
	Result      map[string]interface{}
	Error       *TaskError
}

// Apply merges an update into the stored task. Progress never decreases and
// a terminal status is never overwritten.
func (s *Store) Apply(id string, u Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok || s.expired(t, s.now()) {
		return ErrNotFound
	}
	if t.Status.Terminal() {
		return nil
	}

	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.Progress != nil && *u.Progress > t.Progress {
		t.Progress = *u.Progress
	}
	if u.CurrentStep != nil {
		t.CurrentStep = *u.CurrentStep
	}
	if u.Result != nil {
		t.Result = cloneMap(u.Result)
	}
	if u.Error != nil {
		t.Error = u.Error
	}
	t.UpdatedAt = s.now()
	return nil
}

// RequestCancel flags the task for cooperative cancellation. It reports
// whether the flag was newly set; cancelling a terminal task is a no-op.
func (s *Store) RequestCancel(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok || s.expired(t, s.now()) {
		return false, ErrNotFound
	}
	if t.Status.Terminal() {
		return false, nil
	}
	t.CancelRequested = true
	t.UpdatedAt = s.now()
	return true, nil
}

// CancelRequested reports the cancellation flag. A missing task counts as
// cancelled so the running step stops reporting into the void.
func (s *Store) CancelRequested(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return true
	}
	return t.CancelRequested
}

// Active returns snapshots of every pending or running task.
func (s *Store) Active() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	var out []Task
	for _, t := range s.tasks {
		if !t.Status.Terminal() && !s.expired(t, now) {
			out = append(out, snapshot(t))
		}
	}
	return out
}

// Sweep evicts expired entries and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, t := range s.tasks {
		if s.expired(t, now) {
			delete(s.tasks, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of live entries, mainly for tests and stats.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

func (s *Store) expired(t *Task, now time.Time) bool {
	if t.Status.Terminal() && now.Sub(t.UpdatedAt) > s.cfg.TerminalTTL {
		return true
	}
	return now.Sub(t.CreatedAt) > s.cfg.MaxAge
}

func snapshot(t *Task) Task {
	out := *t
	out.Metadata = cloneMap(t.Metadata)
	out.Result = cloneMap(t.Result)
	if t.Error != nil {
		e := *t.Error
		out.Error = &e
	}
	return out
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

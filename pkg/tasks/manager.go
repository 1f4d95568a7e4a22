package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrCancelled is returned by a step function that observed the cancel flag
// at a checkpoint. The executor maps it to the cancelled status rather than
// a task failure.
var ErrCancelled = errors.New("task cancelled")

// Progress is the capability handed to a step function for reporting and
// cooperative cancellation. Implementations must be cheap: steps call
// Cancelled once per listing page or delete batch.
type Progress interface {
	Report(progress int, step string)
	Cancelled() bool
}

// StepFunc is the kind-specific body of a task. It returns the result
// payload for a completed task, ErrCancelled when it stopped at a
// cancellation checkpoint, or any other error to fail the task.
type StepFunc func(ctx context.Context, p Progress) (map[string]interface{}, error)

// Manager creates tasks and schedules their execution on a bounded set of
// workers. Starting a task never blocks on the work itself: beyond capacity
// tasks simply stay pending until a slot frees up.
type Manager struct {
	store *Store
	sem   chan struct{}
	log   *logrus.Entry
	ctx   context.Context
	wg    sync.WaitGroup
}

// NewManager wires a manager to its store. ctx bounds the lifetime of all
// task execution; workers caps how many tasks run concurrently against the
// backing object store.
func NewManager(ctx context.Context, store *Store, workers int, log *logrus.Entry) *Manager {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Manager{
		store: store,
		sem:   make(chan struct{}, workers),
		log:   log,
		ctx:   ctx,
	}
}

// Start creates a pending task and queues its execution. The returned id is
// the sole external handle; once it is handed out the work is guaranteed to
// run (or be cancelled), never silently dropped.
func (m *Manager) Start(kind Kind, metadata map[string]interface{}, step StepFunc) string {
	id := m.store.Create(kind, metadata)
	m.log.WithFields(logrus.Fields{"task_id": id, "kind": kind}).Info("task queued")

	m.wg.Add(1)
	go m.run(id, step)
	return id
}

// Wait blocks until every started task has finished. Used on shutdown.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) run(id string, step StepFunc) {
	defer m.wg.Done()

	select {
	case m.sem <- struct{}{}:
		defer func() { <-m.sem }()
	case <-m.ctx.Done():
		m.finish(id, StatusCancelled, nil, nil)
		return
	}

	log := m.log.WithField("task_id", id)

	// Cancelled (or evicted) while still queued: never transition to running.
	t, err := m.store.Get(id)
	if err != nil {
		log.Warn("task evicted before execution")
		return
	}
	if t.CancelRequested {
		log.Info("task cancelled while pending")
		m.finish(id, StatusCancelled, nil, nil)
		return
	}

	running := StatusRunning
	zero := 0
	initial := "Starting..."
	if err := m.store.Apply(id, Update{Status: &running, Progress: &zero, CurrentStep: &initial}); err != nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("panic in task: %v", r)
			m.finish(id, StatusFailed, nil, &TaskError{Message: fmt.Sprintf("internal error: %v", r)})
		}
	}()

	result, err := step(m.ctx, &storeProgress{store: m.store, id: id})
	switch {
	case errors.Is(err, ErrCancelled):
		log.Info("task cancelled")
		m.finish(id, StatusCancelled, nil, nil)
	case err != nil:
		log.WithError(err).Error("task failed")
		m.finish(id, StatusFailed, nil, &TaskError{Message: err.Error()})
	default:
		log.Info("task completed")
		m.finish(id, StatusCompleted, result, nil)
	}
}

func (m *Manager) finish(id string, status Status, result map[string]interface{}, taskErr *TaskError) {
	u := Update{Status: &status, Error: taskErr}
	if status == StatusCompleted {
		full := 100
		u.Progress = &full
		u.Result = result
		if u.Result == nil {
			u.Result = map[string]interface{}{}
		}
	}
	if err := m.store.Apply(id, u); err != nil && !errors.Is(err, ErrNotFound) {
		m.log.WithField("task_id", id).WithError(err).Warn("failed to record task outcome")
	}
}

// storeProgress reports into the task store; it is the only writer for its
// task while the step runs.
type storeProgress struct {
	store *Store
	id    string
}

func (p *storeProgress) Report(progress int, step string) {
	u := Update{CurrentStep: &step}
	if progress >= 0 {
		u.Progress = &progress
	}
	_ = p.store.Apply(p.id, u)
}

func (p *storeProgress) Cancelled() bool {
	return p.store.CancelRequested(p.id)
}

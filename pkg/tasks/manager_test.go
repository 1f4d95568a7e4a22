package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, workers int) (*Manager, *Store) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	store := NewStore(DefaultStoreConfig())
	m := NewManager(context.Background(), store, workers, logrus.NewEntry(log))
	return m, store
}

func waitForStatus(t *testing.T, store *Store, id string, want Status) Task {
	t.Helper()
	var task Task
	require.Eventually(t, func() bool {
		got, err := store.Get(id)
		if err != nil {
			return false
		}
		task = got
		return got.Status == want
	}, 2*time.Second, 5*time.Millisecond, "task never reached %s", want)
	return task
}

func TestManagerCompletesTask(t *testing.T) {
	m, store := newTestManager(t, 2)

	id := m.Start(KindCalculateSize, map[string]interface{}{"bucket": "b"}, func(_ context.Context, p Progress) (map[string]interface{}, error) {
		p.Report(40, "Halfway")
		return map[string]interface{}{"size_bytes": int64(42)}, nil
	})
	require.NotEmpty(t, id)

	task := waitForStatus(t, store, id, StatusCompleted)
	assert.Equal(t, 100, task.Progress)
	assert.Equal(t, int64(42), task.Result["size_bytes"])
	assert.Nil(t, task.Error)
}

func TestManagerFailsTask(t *testing.T) {
	m, store := newTestManager(t, 2)

	id := m.Start(KindBulkDelete, nil, func(context.Context, Progress) (map[string]interface{}, error) {
		return nil, errors.New("backend unreachable")
	})

	task := waitForStatus(t, store, id, StatusFailed)
	require.NotNil(t, task.Error)
	assert.Equal(t, "backend unreachable", task.Error.Message)
	assert.Nil(t, task.Result)
}

func TestManagerRecoversFromPanic(t *testing.T) {
	m, store := newTestManager(t, 2)

	id := m.Start(KindBucketDelete, nil, func(context.Context, Progress) (map[string]interface{}, error) {
		panic("boom")
	})

	task := waitForStatus(t, store, id, StatusFailed)
	require.NotNil(t, task.Error)
	assert.Contains(t, task.Error.Message, "boom")
}

func TestManagerCancelWhilePending(t *testing.T) {
	m, store := newTestManager(t, 1)

	release := make(chan struct{})
	started := make(chan struct{})
	blocker := m.Start(KindPrefixDelete, nil, func(context.Context, Progress) (map[string]interface{}, error) {
		close(started)
		<-release
		return map[string]interface{}{}, nil
	})
	<-started

	// The single worker is busy, so this one stays pending.
	id := m.Start(KindPrefixDelete, nil, func(context.Context, Progress) (map[string]interface{}, error) {
		t.Error("step ran despite pending cancellation")
		return nil, nil
	})

	ok, err := store.RequestCancel(id)
	require.NoError(t, err)
	assert.True(t, ok)

	close(release)
	m.Wait()

	task, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, task.Status)
	assert.Nil(t, task.Result)
	assert.Nil(t, task.Error)

	blocked := waitForStatus(t, store, blocker, StatusCompleted)
	assert.Equal(t, 100, blocked.Progress)
}

func TestManagerCancelWhileRunning(t *testing.T) {
	m, store := newTestManager(t, 1)

	started := make(chan struct{})
	id := m.Start(KindPrefixDelete, nil, func(_ context.Context, p Progress) (map[string]interface{}, error) {
		close(started)
		for !p.Cancelled() {
			time.Sleep(time.Millisecond)
		}
		return nil, ErrCancelled
	})

	<-started
	waitForStatus(t, store, id, StatusRunning)
	ok, err := store.RequestCancel(id)
	require.NoError(t, err)
	assert.True(t, ok)

	task := waitForStatus(t, store, id, StatusCancelled)
	assert.Nil(t, task.Result)
	assert.Nil(t, task.Error)
}

func TestManagerCancelAfterTerminalIsNoop(t *testing.T) {
	m, store := newTestManager(t, 1)

	id := m.Start(KindCalculateSize, nil, func(context.Context, Progress) (map[string]interface{}, error) {
		return map[string]interface{}{}, nil
	})
	m.Wait()

	ok, err := store.RequestCancel(id)
	require.NoError(t, err)
	assert.False(t, ok)

	task, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)
}

func TestManagerProgressNeverRegresses(t *testing.T) {
	m, store := newTestManager(t, 1)

	reported := make(chan struct{})
	release := make(chan struct{})
	id := m.Start(KindCalculateSize, nil, func(_ context.Context, p Progress) (map[string]interface{}, error) {
		p.Report(60, "Scanning")
		close(reported)
		<-release
		// A stale reporter must not pull progress backwards.
		p.Report(20, "Scanning")
		return map[string]interface{}{}, nil
	})

	<-reported
	task, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 60, task.Progress)

	close(release)
	m.Wait()

	task, err = store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 100, task.Progress)
}

func TestManagerStartReturnsImmediately(t *testing.T) {
	m, _ := newTestManager(t, 1)

	release := make(chan struct{})
	for i := 0; i < 5; i++ {
		done := make(chan string, 1)
		go func() {
			done <- m.Start(KindBulkDelete, nil, func(context.Context, Progress) (map[string]interface{}, error) {
				<-release
				return map[string]interface{}{}, nil
			})
		}()
		select {
		case id := <-done:
			require.NotEmpty(t, id)
		case <-time.After(time.Second):
			t.Fatal("Start blocked on a saturated worker pool")
		}
	}
	close(release)
	m.Wait()
}

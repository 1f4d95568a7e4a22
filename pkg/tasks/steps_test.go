package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeObjectStore is an in-memory ObjectStore with deterministic pagination.
type fakeObjectStore struct {
	mu       sync.Mutex
	buckets  map[string]map[string]int64
	pageSize int

	failKeys  map[string]string // keys DeleteBatch reports as failed
	listErr   error
	deleteErr error

	deleteBatchCalls int
	afterDeleteBatch func()
	onDeleteBucket   func(calls int) error
	bucketCalls      int
}

func newFakeObjectStore(pageSize int) *fakeObjectStore {
	return &fakeObjectStore{
		buckets:  make(map[string]map[string]int64),
		pageSize: pageSize,
		failKeys: make(map[string]string),
	}
}

func (f *fakeObjectStore) put(bucket, key string, size int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.buckets[bucket] == nil {
		f.buckets[bucket] = make(map[string]int64)
	}
	f.buckets[bucket][key] = size
}

func (f *fakeObjectStore) count(bucket string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buckets[bucket])
}

func (f *fakeObjectStore) ListPage(_ context.Context, bucket, prefix, token string) (ObjectPage, error) {
	if f.listErr != nil {
		return ObjectPage{}, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.buckets[bucket] {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	offset := 0
	if token != "" {
		offset, _ = strconv.Atoi(token)
	}
	end := offset + f.pageSize
	if end > len(keys) {
		end = len(keys)
	}

	page := ObjectPage{}
	for _, k := range keys[offset:end] {
		page.Objects = append(page.Objects, ObjectInfo{Key: k, Size: f.buckets[bucket][k]})
	}
	if end < len(keys) {
		page.Truncated = true
		page.NextToken = strconv.Itoa(end)
	}
	return page, nil
}

func (f *fakeObjectStore) DeleteBatch(_ context.Context, bucket string, keys []string) (BatchResult, error) {
	if f.deleteErr != nil {
		return BatchResult{}, f.deleteErr
	}
	f.mu.Lock()
	res := BatchResult{}
	for _, k := range keys {
		if reason, bad := f.failKeys[k]; bad {
			res.Failed = append(res.Failed, KeyFailure{Key: k, Reason: reason})
			continue
		}
		delete(f.buckets[bucket], k)
		res.Deleted++
	}
	f.deleteBatchCalls++
	after := f.afterDeleteBatch
	f.mu.Unlock()

	if after != nil {
		after()
	}
	return res, nil
}

func (f *fakeObjectStore) DeleteBucket(_ context.Context, bucket string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bucketCalls++
	if f.onDeleteBucket != nil {
		if err := f.onDeleteBucket(f.bucketCalls); err != nil {
			return err
		}
	}
	if len(f.buckets[bucket]) > 0 {
		return fmt.Errorf("delete bucket %q: %w", bucket, ErrBucketNotEmpty)
	}
	delete(f.buckets, bucket)
	return nil
}

// recProgress records Report calls and exposes a switchable cancel flag.
type recProgress struct {
	mu        sync.Mutex
	progress  []int
	steps     []string
	cancelled bool
}

func (r *recProgress) Report(progress int, step string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, progress)
	r.steps = append(r.steps, step)
}

func (r *recProgress) Cancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

func (r *recProgress) cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = true
}

func (r *recProgress) maxProgress() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	max := 0
	for _, p := range r.progress {
		if p > max {
			max = p
		}
	}
	return max
}

type fakeShareCleaner struct {
	calls  int
	bucket string
	err    error
}

func (f *fakeShareCleaner) DeleteForBucket(_ context.Context, _ int64, bucket string) (int64, error) {
	f.calls++
	f.bucket = bucket
	return 2, f.err
}

func seedObjects(f *fakeObjectStore, bucket, prefix string, n int) {
	for i := 0; i < n; i++ {
		f.put(bucket, fmt.Sprintf("%skey-%04d", prefix, i), int64(i))
	}
}

func TestBucketDeleteStep(t *testing.T) {
	store := newFakeObjectStore(100)
	seedObjects(store, "archive", "", 250)
	shares := &fakeShareCleaner{}
	prog := &recProgress{}

	step := BucketDeleteStep(store, shares, BucketDeleteParams{AccountID: 1, Bucket: "archive"})
	result, err := step(context.Background(), prog)
	require.NoError(t, err)

	assert.Equal(t, 250, result["deleted_count"])
	assert.Equal(t, 0, store.count("archive"))
	_, stillThere := store.buckets["archive"]
	assert.False(t, stillThere)
	assert.Equal(t, 1, shares.calls)
	assert.Equal(t, "archive", shares.bucket)
	assert.GreaterOrEqual(t, prog.maxProgress(), 95)
}

func TestBucketDeleteStepEmptyBucket(t *testing.T) {
	store := newFakeObjectStore(100)
	store.buckets["empty"] = map[string]int64{}
	prog := &recProgress{}

	step := BucketDeleteStep(store, nil, BucketDeleteParams{Bucket: "empty"})
	result, err := step(context.Background(), prog)
	require.NoError(t, err)
	assert.Equal(t, 0, result["deleted_count"])
}

func TestBucketDeleteStepRetriesWhenRefilled(t *testing.T) {
	store := newFakeObjectStore(100)
	seedObjects(store, "busy", "", 50)

	// A concurrent writer sneaks one object in just before the container
	// delete; the step must empty it again and retry.
	store.onDeleteBucket = func(calls int) error {
		if calls == 1 {
			store.buckets["busy"]["late-arrival"] = 1
		}
		return nil
	}

	step := BucketDeleteStep(store, nil, BucketDeleteParams{Bucket: "busy"})
	result, err := step(context.Background(), &recProgress{})
	require.NoError(t, err)
	assert.Equal(t, 51, result["deleted_count"])
	assert.Equal(t, 2, store.bucketCalls)
}

func TestBucketDeleteStepGivesUpAfterRetryBound(t *testing.T) {
	store := newFakeObjectStore(100)
	store.onDeleteBucket = func(int) error {
		return fmt.Errorf("delete bucket: %w", ErrBucketNotEmpty)
	}

	step := BucketDeleteStep(store, nil, BucketDeleteParams{Bucket: "stubborn"})
	_, err := step(context.Background(), &recProgress{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBucketNotEmpty)
	assert.Equal(t, bucketDeleteRetries+1, store.bucketCalls)
}

func TestPrefixDeleteStep(t *testing.T) {
	store := newFakeObjectStore(100)
	seedObjects(store, "media", "photos/", 120)
	seedObjects(store, "media", "videos/", 30)
	prog := &recProgress{}

	step := PrefixDeleteStep(store, PrefixDeleteParams{Bucket: "media", Prefix: "photos"})
	result, err := step(context.Background(), prog)
	require.NoError(t, err)

	assert.Equal(t, 120, result["deleted_count"])
	assert.Equal(t, "photos/", result["prefix"])
	// Objects outside the prefix are untouched.
	assert.Equal(t, 30, store.count("media"))
}

func TestPrefixDeleteStepEmptyFolder(t *testing.T) {
	store := newFakeObjectStore(100)
	store.buckets["media"] = map[string]int64{}

	step := PrefixDeleteStep(store, PrefixDeleteParams{Bucket: "media", Prefix: "missing/"})
	result, err := step(context.Background(), &recProgress{})
	require.NoError(t, err)
	assert.Equal(t, 0, result["deleted_count"])
}

func TestPrefixDeleteStepCancelledMidway(t *testing.T) {
	store := newFakeObjectStore(100)
	seedObjects(store, "media", "photos/", 250)
	prog := &recProgress{}

	// Flip the cancel flag right after the first delete batch; the next
	// checkpoint must observe it.
	store.afterDeleteBatch = func() { prog.cancel() }

	step := PrefixDeleteStep(store, PrefixDeleteParams{Bucket: "media", Prefix: "photos/"})
	_, err := step(context.Background(), prog)
	assert.ErrorIs(t, err, ErrCancelled)

	// Work done before the checkpoint stands, work after it never happened.
	assert.Equal(t, 150, store.count("media"))
	assert.Equal(t, 1, store.deleteBatchCalls)
}

func TestBulkDeleteStepPartialFailure(t *testing.T) {
	store := newFakeObjectStore(100)
	keys := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		k := fmt.Sprintf("doc-%d", i)
		store.put("docs", k, 1)
		keys = append(keys, k)
	}
	store.failKeys["doc-3"] = "access denied"
	store.failKeys["doc-7"] = "access denied"

	step := BulkDeleteStep(store, BulkDeleteParams{Bucket: "docs", Keys: keys})
	result, err := step(context.Background(), &recProgress{})
	require.NoError(t, err)

	assert.Equal(t, 8, result["deleted_count"])
	failed := result["failed_keys"].([]KeyFailure)
	require.Len(t, failed, 2)
	assert.Equal(t, "doc-3", failed[0].Key)
}

func TestBulkDeleteStepExpandsFolders(t *testing.T) {
	store := newFakeObjectStore(100)
	seedObjects(store, "docs", "reports/", 5)
	store.put("docs", "readme.txt", 1)

	step := BulkDeleteStep(store, BulkDeleteParams{
		Bucket: "docs",
		Keys:   []string{"reports/", "readme.txt"},
	})
	result, err := step(context.Background(), &recProgress{})
	require.NoError(t, err)

	assert.Equal(t, 6, result["deleted_count"])
	assert.Equal(t, 1, result["folders"])
	assert.Equal(t, 1, result["files"])
	assert.Equal(t, 0, store.count("docs"))
}

func TestBulkDeleteStepTransportFailure(t *testing.T) {
	store := newFakeObjectStore(100)
	store.put("docs", "a", 1)
	store.deleteErr = errors.New("connection reset")

	step := BulkDeleteStep(store, BulkDeleteParams{Bucket: "docs", Keys: []string{"a"}})
	_, err := step(context.Background(), &recProgress{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestCalculateSizeStep(t *testing.T) {
	store := newFakeObjectStore(100)
	var want int64
	for i := 0; i < 250; i++ {
		store.put("media", fmt.Sprintf("f-%04d", i), 1024)
		want += 1024
	}

	step := CalculateSizeStep(store, CalculateSizeParams{Bucket: "media"})
	result, err := step(context.Background(), &recProgress{})
	require.NoError(t, err)

	assert.Equal(t, want, result["size_bytes"])
	assert.Equal(t, 250, result["object_count"])
	assert.Equal(t, FormatSize(want), result["size_formatted"])
}

func TestCalculateSizeStepEmptyPrefix(t *testing.T) {
	store := newFakeObjectStore(100)
	store.buckets["media"] = map[string]int64{}

	step := CalculateSizeStep(store, CalculateSizeParams{Bucket: "media", Prefix: "nothing/"})
	result, err := step(context.Background(), &recProgress{})
	require.NoError(t, err)

	assert.Equal(t, int64(0), result["size_bytes"])
	assert.Equal(t, "0 B", result["size_formatted"])
	assert.Equal(t, 0, result["object_count"])
}

func TestStepParamsValidate(t *testing.T) {
	assert.Error(t, BucketDeleteParams{}.Validate())
	assert.NoError(t, BucketDeleteParams{Bucket: "b"}.Validate())

	assert.Error(t, PrefixDeleteParams{Bucket: "b"}.Validate())
	assert.Error(t, PrefixDeleteParams{Prefix: "p/"}.Validate())
	assert.NoError(t, PrefixDeleteParams{Bucket: "b", Prefix: "p/"}.Validate())

	assert.Error(t, BulkDeleteParams{Bucket: "b"}.Validate())
	assert.Error(t, BulkDeleteParams{Keys: []string{"k"}}.Validate())
	assert.NoError(t, BulkDeleteParams{Bucket: "b", Keys: []string{"k"}}.Validate())

	assert.Error(t, CalculateSizeParams{}.Validate())
	assert.NoError(t, CalculateSizeParams{Bucket: "b"}.Validate())
}

package tasks

import (
	"context"
	"errors"
)

// ErrBucketNotEmpty is wrapped by ObjectStore.DeleteBucket when objects are
// still present, typically because something wrote concurrently with the
// emptying pass. Bucket deletion retries a bounded number of times on it.
var ErrBucketNotEmpty = errors.New("bucket not empty")

// ObjectInfo is one listed object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// ObjectPage is a single page of a paginated listing.
type ObjectPage struct {
	Objects   []ObjectInfo
	NextToken string
	Truncated bool
}

// KeyFailure records one key a batch delete could not remove.
type KeyFailure struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// BatchResult is the per-key outcome of a batch delete. A partially failed
// batch is not an error: the transport call succeeded, some keys did not.
type BatchResult struct {
	Deleted int
	Failed  []KeyFailure
}

// ObjectStore is the object-storage capability the step functions run
// against. Calls have at-least-once semantics and no cross-call
// transactionality; implementations must be safe for concurrent use.
type ObjectStore interface {
	// ListPage returns one page of keys under bucket/prefix, continuing
	// from token ("" for the first page).
	ListPage(ctx context.Context, bucket, prefix, token string) (ObjectPage, error)
	// DeleteBatch deletes the given keys in one backend call and reports
	// per-key outcomes.
	DeleteBatch(ctx context.Context, bucket string, keys []string) (BatchResult, error)
	// DeleteBucket removes the bucket container itself. Wraps
	// ErrBucketNotEmpty when objects remain.
	DeleteBucket(ctx context.Context, bucket string) error
}

// ShareCleaner removes share links that point into a deleted bucket. Bucket
// deletion tolerates a nil cleaner.
type ShareCleaner interface {
	DeleteForBucket(ctx context.Context, accountID int64, bucket string) (int64, error)
}

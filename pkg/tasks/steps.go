package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	// deleteBatchSize keeps each backend call well under the S3 limit of
	// 1000 keys while still amortizing round trips.
	deleteBatchSize = 100
	// bucketDeleteRetries bounds how often bucket deletion re-empties a
	// bucket that a concurrent writer refilled.
	bucketDeleteRetries = 3
)

// BucketDeleteParams identifies the bucket to delete.
type BucketDeleteParams struct {
	AccountID int64
	Bucket    string
}

func (p BucketDeleteParams) Validate() error {
	if p.Bucket == "" {
		return errors.New("bucket name is required")
	}
	return nil
}

// BucketDeleteStep empties a bucket page by page, deletes the container and
// purges share links pointing into it. Work already done is never rolled
// back on failure or cancellation.
func BucketDeleteStep(store ObjectStore, shares ShareCleaner, p BucketDeleteParams) StepFunc {
	return func(ctx context.Context, prog Progress) (map[string]interface{}, error) {
		prog.Report(5, "Listing objects...")
		keys, err := listKeys(ctx, store, p.Bucket, "", prog)
		if err != nil {
			return nil, err
		}

		total := len(keys)
		if total == 0 {
			prog.Report(50, "No objects to delete")
		} else {
			prog.Report(10, fmt.Sprintf("Found %d objects", total))
		}

		deleted := 0
		for start := 0; start < total; start += deleteBatchSize {
			if prog.Cancelled() {
				return nil, ErrCancelled
			}
			end := start + deleteBatchSize
			if end > total {
				end = total
			}
			res, err := store.DeleteBatch(ctx, p.Bucket, keys[start:end])
			if err != nil {
				return nil, fmt.Errorf("delete objects in %q: %w", p.Bucket, err)
			}
			deleted += res.Deleted
			pct := 10 + int(float64(deleted)/float64(total)*70)
			prog.Report(pct, fmt.Sprintf("Deleted %d/%d objects", deleted, total))
		}

		prog.Report(85, "Deleting bucket...")
		for attempt := 0; ; attempt++ {
			err := store.DeleteBucket(ctx, p.Bucket)
			if err == nil {
				break
			}
			if !errors.Is(err, ErrBucketNotEmpty) || attempt >= bucketDeleteRetries {
				return nil, fmt.Errorf("delete bucket %q after removing %d objects: %w", p.Bucket, deleted, err)
			}
			if prog.Cancelled() {
				return nil, ErrCancelled
			}
			// Something wrote concurrently; empty the leftovers and retry.
			prog.Report(85, "Bucket not empty, removing remaining objects...")
			n, err := deleteAll(ctx, store, p.Bucket, "", prog)
			if err != nil {
				return nil, err
			}
			deleted += n
		}

		if shares != nil {
			prog.Report(95, "Cleaning up...")
			if _, err := shares.DeleteForBucket(ctx, p.AccountID, p.Bucket); err != nil {
				return nil, fmt.Errorf("clean up share links for %q: %w", p.Bucket, err)
			}
		}

		return map[string]interface{}{
			"bucket":        p.Bucket,
			"deleted_count": deleted,
		}, nil
	}
}

// PrefixDeleteParams identifies the folder to delete.
type PrefixDeleteParams struct {
	AccountID int64
	Bucket    string
	Prefix    string
}

func (p PrefixDeleteParams) Validate() error {
	if p.Bucket == "" {
		return errors.New("bucket name is required")
	}
	if p.Prefix == "" {
		return errors.New("prefix is required")
	}
	return nil
}

// normalized returns the prefix with the trailing slash folders carry.
func (p PrefixDeleteParams) normalized() string {
	if strings.HasSuffix(p.Prefix, "/") {
		return p.Prefix
	}
	return p.Prefix + "/"
}

// PrefixDeleteStep deletes everything under a key prefix. Same shape as
// bucket deletion without the container step.
func PrefixDeleteStep(store ObjectStore, p PrefixDeleteParams) StepFunc {
	return func(ctx context.Context, prog Progress) (map[string]interface{}, error) {
		prefix := p.normalized()

		prog.Report(5, "Listing objects in folder...")
		keys, err := listKeys(ctx, store, p.Bucket, prefix, prog)
		if err != nil {
			return nil, err
		}

		total := len(keys)
		if total == 0 {
			prog.Report(90, "Folder is empty")
			return map[string]interface{}{
				"prefix":        prefix,
				"deleted_count": 0,
			}, nil
		}
		prog.Report(10, fmt.Sprintf("Found %d objects", total))

		deleted := 0
		for start := 0; start < total; start += deleteBatchSize {
			if prog.Cancelled() {
				return nil, ErrCancelled
			}
			end := start + deleteBatchSize
			if end > total {
				end = total
			}
			res, err := store.DeleteBatch(ctx, p.Bucket, keys[start:end])
			if err != nil {
				return nil, fmt.Errorf("delete objects under %q: %w", prefix, err)
			}
			deleted += res.Deleted
			pct := 10 + int(float64(deleted)/float64(total)*85)
			prog.Report(pct, fmt.Sprintf("Deleted %d/%d objects", deleted, total))
		}

		return map[string]interface{}{
			"prefix":        prefix,
			"deleted_count": deleted,
		}, nil
	}
}

// BulkDeleteParams carries an explicit key list. Keys with a trailing slash
// are folders and expand to their contents.
type BulkDeleteParams struct {
	AccountID int64
	Bucket    string
	Keys      []string
}

func (p BulkDeleteParams) Validate() error {
	if p.Bucket == "" {
		return errors.New("bucket name is required")
	}
	if len(p.Keys) == 0 {
		return errors.New("no keys provided")
	}
	return nil
}

// BulkDeleteStep deletes the listed keys in batches. Per-key failures are
// collected into the result; only a transport-wide error fails the task.
func BulkDeleteStep(store ObjectStore, p BulkDeleteParams) StepFunc {
	return func(ctx context.Context, prog Progress) (map[string]interface{}, error) {
		prog.Report(5, "Preparing deletion...")

		var folders, files []string
		for _, k := range p.Keys {
			if strings.HasSuffix(k, "/") {
				folders = append(folders, k)
			} else {
				files = append(files, k)
			}
		}

		targets := append([]string(nil), files...)
		if len(folders) > 0 {
			prog.Report(10, fmt.Sprintf("Expanding %d folders...", len(folders)))
			for _, folder := range folders {
				expanded, err := listKeys(ctx, store, p.Bucket, folder, prog)
				if err != nil {
					return nil, err
				}
				targets = append(targets, expanded...)
			}
		}

		total := len(targets)
		if total == 0 {
			return map[string]interface{}{
				"deleted_count": 0,
				"failed_keys":   []KeyFailure{},
				"folders":       len(folders),
				"files":         len(files),
			}, nil
		}
		prog.Report(15, fmt.Sprintf("Deleting %d objects...", total))

		deleted := 0
		failed := []KeyFailure{}
		for start := 0; start < total; start += deleteBatchSize {
			if prog.Cancelled() {
				return nil, ErrCancelled
			}
			end := start + deleteBatchSize
			if end > total {
				end = total
			}
			res, err := store.DeleteBatch(ctx, p.Bucket, targets[start:end])
			if err != nil {
				return nil, fmt.Errorf("delete objects in %q: %w", p.Bucket, err)
			}
			deleted += res.Deleted
			failed = append(failed, res.Failed...)
			pct := 15 + int(float64(start+len(targets[start:end]))/float64(total)*85)
			prog.Report(pct, fmt.Sprintf("Deleted %d/%d objects", deleted, total))
		}

		return map[string]interface{}{
			"deleted_count": deleted,
			"failed_keys":   failed,
			"folders":       len(folders),
			"files":         len(files),
		}, nil
	}
}

// CalculateSizeParams scopes the size scan.
type CalculateSizeParams struct {
	AccountID int64
	Bucket    string
	Prefix    string
}

func (p CalculateSizeParams) Validate() error {
	if p.Bucket == "" {
		return errors.New("bucket name is required")
	}
	return nil
}

// CalculateSizeStep accumulates byte size over a paginated scan. The total
// is unknown up front, so progress steps coarsely by page and the executor
// forces 100 on completion.
func CalculateSizeStep(store ObjectStore, p CalculateSizeParams) StepFunc {
	return func(ctx context.Context, prog Progress) (map[string]interface{}, error) {
		prog.Report(5, "Scanning objects...")

		var totalSize int64
		count := 0
		pages := 0
		token := ""
		for {
			if prog.Cancelled() {
				return nil, ErrCancelled
			}
			page, err := store.ListPage(ctx, p.Bucket, p.Prefix, token)
			if err != nil {
				return nil, fmt.Errorf("list objects in %q: %w", p.Bucket, err)
			}
			for _, obj := range page.Objects {
				totalSize += obj.Size
				count++
			}
			pages++
			pct := 5 + pages*5
			if pct > 90 {
				pct = 90
			}
			prog.Report(pct, fmt.Sprintf("Scanned %d objects...", count))
			if !page.Truncated {
				break
			}
			token = page.NextToken
		}

		return map[string]interface{}{
			"size_bytes":     totalSize,
			"size_formatted": FormatSize(totalSize),
			"object_count":   count,
		}, nil
	}
}

// listKeys collects every key under bucket/prefix, checking for
// cancellation once per page.
func listKeys(ctx context.Context, store ObjectStore, bucket, prefix string, prog Progress) ([]string, error) {
	var keys []string
	token := ""
	for {
		if prog.Cancelled() {
			return nil, ErrCancelled
		}
		page, err := store.ListPage(ctx, bucket, prefix, token)
		if err != nil {
			return nil, fmt.Errorf("list objects in %q: %w", bucket, err)
		}
		for _, obj := range page.Objects {
			keys = append(keys, obj.Key)
		}
		if !page.Truncated {
			return keys, nil
		}
		token = page.NextToken
	}
}

// deleteAll removes everything currently under bucket/prefix and returns
// how many objects went away. Used by the bucket-delete retry path.
func deleteAll(ctx context.Context, store ObjectStore, bucket, prefix string, prog Progress) (int, error) {
	keys, err := listKeys(ctx, store, bucket, prefix, prog)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for start := 0; start < len(keys); start += deleteBatchSize {
		if prog.Cancelled() {
			return deleted, ErrCancelled
		}
		end := start + deleteBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		res, err := store.DeleteBatch(ctx, bucket, keys[start:end])
		if err != nil {
			return deleted, fmt.Errorf("delete objects in %q: %w", bucket, err)
		}
		deleted += res.Deleted
	}
	return deleted, nil
}

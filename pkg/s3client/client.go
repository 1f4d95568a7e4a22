package s3client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/Rudra370/s3manager/pkg/tasks"
)

// Config holds everything needed to talk to one storage account.
type Config struct {
	EndpointURL string
	Region      string
	AccessKey   string
	SecretKey   string
	MaxRetries  int
	Timeout     time.Duration
}

// DefaultConfig returns the connection defaults for S3-compatible providers.
func DefaultConfig() Config {
	return Config{
		Region:     "us-east-1",
		MaxRetries: 3,
		Timeout:    30 * time.Second,
	}
}

// Client wraps an S3 API client for a single storage account.
type Client struct {
	api         *s3.Client
	endpointURL string
}

// New builds a client for the given account credentials.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	// The SDK needs a region for request signing even when an
	// S3-compatible endpoint ignores it.
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	configOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithRetryMaxAttempts(cfg.MaxRetries),
	}

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		configOptions = append(configOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	if cfg.EndpointURL != "" {
		// Don't follow redirects: they turn into 301 PermanentRedirect
		// failures on S3-compatible storage.
		configOptions = append(configOptions, awsconfig.WithHTTPClient(&http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.RetryMaxAttempts = cfg.MaxRetries
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			// Path-style addressing is required for most non-AWS
			// providers (MinIO, Ceph, Wasabi, ...).
			o.UsePathStyle = true
		}
	})

	return &Client{api: api, endpointURL: cfg.EndpointURL}, nil
}

// TestConnection verifies the credentials by listing buckets.
func (c *Client) TestConnection(ctx context.Context) error {
	if _, err := c.api.ListBuckets(ctx, &s3.ListBucketsInput{}); err != nil {
		return fmt.Errorf("connection test failed: %w", wrapErr(err))
	}
	return nil
}

// BucketInfo describes one bucket in a listing.
type BucketInfo struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ListBuckets returns every bucket visible to the account.
func (c *Client) ListBuckets(ctx context.Context) ([]BucketInfo, error) {
	resp, err := c.api.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", wrapErr(err))
	}

	buckets := make([]BucketInfo, 0, len(resp.Buckets))
	for _, b := range resp.Buckets {
		info := BucketInfo{Name: aws.ToString(b.Name)}
		if b.CreationDate != nil {
			info.CreatedAt = *b.CreationDate
		}
		buckets = append(buckets, info)
	}
	return buckets, nil
}

// CreateBucket creates a bucket, tolerating one that already exists and is
// owned by the caller.
func (c *Client) CreateBucket(ctx context.Context, name string) error {
	input := &s3.CreateBucketInput{Bucket: aws.String(name)}

	// AWS wants a LocationConstraint outside us-east-1; custom providers
	// reject one.
	if c.endpointURL == "" {
		if region := c.api.Options().Region; region != "" && region != "us-east-1" {
			input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
				LocationConstraint: types.BucketLocationConstraint(region),
			}
		}
	}

	if _, err := c.api.CreateBucket(ctx, input); err != nil {
		if IsAlreadyOwned(err) {
			return nil
		}
		return fmt.Errorf("failed to create bucket %q: %w", name, wrapErr(err))
	}
	return nil
}

// DeleteBucket removes an empty bucket. A non-empty bucket reports
// tasks.ErrBucketNotEmpty so callers can empty it and retry.
func (c *Client) DeleteBucket(ctx context.Context, name string) error {
	if _, err := c.api.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(name)}); err != nil {
		return fmt.Errorf("failed to delete bucket %q: %w", name, wrapErr(err))
	}
	return nil
}

// ListPage returns one flat page of objects under prefix. An empty token
// starts from the beginning.
func (c *Client) ListPage(ctx context.Context, bucket, prefix, token string) (tasks.ObjectPage, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	if token != "" {
		input.ContinuationToken = aws.String(token)
	}

	resp, err := c.api.ListObjectsV2(ctx, input)
	if err != nil {
		return tasks.ObjectPage{}, fmt.Errorf("failed to list objects in %q: %w", bucket, wrapErr(err))
	}

	page := tasks.ObjectPage{
		Truncated: aws.ToBool(resp.IsTruncated),
		NextToken: aws.ToString(resp.NextContinuationToken),
	}
	for _, obj := range resp.Contents {
		page.Objects = append(page.Objects, tasks.ObjectInfo{
			Key:  aws.ToString(obj.Key),
			Size: aws.ToInt64(obj.Size),
		})
	}
	return page, nil
}

// ObjectEntry is one row in a folder-style listing.
type ObjectEntry struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	SizeDisplay  string    `json:"size_display"`
	LastModified time.Time `json:"last_modified"`
	ETag         string    `json:"etag,omitempty"`
}

// Listing is one page of a delimiter-based folder view.
type Listing struct {
	Objects   []ObjectEntry `json:"objects"`
	Folders   []string      `json:"folders"`
	NextToken string        `json:"next_token,omitempty"`
	Truncated bool          `json:"truncated"`
}

// ListObjects returns a folder view of bucket/prefix: immediate objects plus
// common prefixes collapsed into folders.
func (c *Client) ListObjects(ctx context.Context, bucket, prefix, token string, maxKeys int32) (Listing, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Delimiter: aws.String("/"),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	if token != "" {
		input.ContinuationToken = aws.String(token)
	}
	if maxKeys > 0 {
		input.MaxKeys = aws.Int32(maxKeys)
	}

	resp, err := c.api.ListObjectsV2(ctx, input)
	if err != nil {
		return Listing{}, fmt.Errorf("failed to list objects in %q: %w", bucket, wrapErr(err))
	}

	listing := Listing{
		Objects:   []ObjectEntry{},
		Folders:   []string{},
		Truncated: aws.ToBool(resp.IsTruncated),
		NextToken: aws.ToString(resp.NextContinuationToken),
	}
	for _, obj := range resp.Contents {
		key := aws.ToString(obj.Key)
		if key == prefix {
			// The placeholder object that marks the folder itself.
			continue
		}
		entry := ObjectEntry{
			Key:         key,
			Size:        aws.ToInt64(obj.Size),
			SizeDisplay: tasks.FormatSize(aws.ToInt64(obj.Size)),
			ETag:        aws.ToString(obj.ETag),
		}
		if obj.LastModified != nil {
			entry.LastModified = *obj.LastModified
		}
		listing.Objects = append(listing.Objects, entry)
	}
	for _, cp := range resp.CommonPrefixes {
		listing.Folders = append(listing.Folders, aws.ToString(cp.Prefix))
	}
	return listing, nil
}

// DeleteBatch deletes up to 1000 keys in one call. Per-key failures come
// back in the result; the error covers only request-level failures.
func (c *Client) DeleteBatch(ctx context.Context, bucket string, keys []string) (tasks.BatchResult, error) {
	objects := make([]types.ObjectIdentifier, 0, len(keys))
	for _, k := range keys {
		objects = append(objects, types.ObjectIdentifier{Key: aws.String(k)})
	}

	resp, err := c.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucket),
		Delete: &types.Delete{
			Objects: objects,
			Quiet:   aws.Bool(false),
		},
	})
	if err != nil {
		return tasks.BatchResult{}, fmt.Errorf("failed to delete objects in %q: %w", bucket, wrapErr(err))
	}

	res := tasks.BatchResult{Deleted: len(resp.Deleted)}
	for _, e := range resp.Errors {
		res.Failed = append(res.Failed, tasks.KeyFailure{
			Key:    aws.ToString(e.Key),
			Reason: aws.ToString(e.Message),
		})
	}
	return res, nil
}

// DeleteObject removes a single key.
func (c *Client) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, wrapErr(err))
	}
	return nil
}

// ObjectMetadata describes one stored object.
type ObjectMetadata struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size"`
	SizeDisplay  string            `json:"size_display"`
	ContentType  string            `json:"content_type"`
	LastModified time.Time         `json:"last_modified"`
	ETag         string            `json:"etag,omitempty"`
	UserMetadata map[string]string `json:"user_metadata,omitempty"`
}

// HeadObject fetches metadata without the body.
func (c *Client) HeadObject(ctx context.Context, bucket, key string) (ObjectMetadata, error) {
	resp, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return ObjectMetadata{}, fmt.Errorf("failed to stat %q: %w", key, wrapErr(err))
	}

	meta := ObjectMetadata{
		Key:          key,
		Size:         aws.ToInt64(resp.ContentLength),
		SizeDisplay:  tasks.FormatSize(aws.ToInt64(resp.ContentLength)),
		ContentType:  aws.ToString(resp.ContentType),
		ETag:         aws.ToString(resp.ETag),
		UserMetadata: resp.Metadata,
	}
	if resp.LastModified != nil {
		meta.LastModified = *resp.LastModified
	}
	return meta, nil
}

// PutObject streams body into bucket/key.
func (c *Client) PutObject(ctx context.Context, bucket, key, contentType string, body io.Reader) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := c.api.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload %q: %w", key, wrapErr(err))
	}
	return nil
}

// GetObject opens bucket/key for reading. The caller owns the body.
func (c *Client) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectMetadata, error) {
	resp, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, ObjectMetadata{}, fmt.Errorf("failed to download %q: %w", key, wrapErr(err))
	}

	meta := ObjectMetadata{
		Key:         key,
		Size:        aws.ToInt64(resp.ContentLength),
		SizeDisplay: tasks.FormatSize(aws.ToInt64(resp.ContentLength)),
		ContentType: aws.ToString(resp.ContentType),
		ETag:        aws.ToString(resp.ETag),
	}
	if resp.LastModified != nil {
		meta.LastModified = *resp.LastModified
	}
	return resp.Body, meta, nil
}

// CreatePrefix writes the zero-byte placeholder that makes an empty folder
// visible in delimiter listings.
func (c *Client) CreatePrefix(ctx context.Context, bucket, prefix string) error {
	if prefix == "" {
		return fmt.Errorf("prefix is required")
	}
	if prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(prefix),
		Body:   nil,
	})
	if err != nil {
		return fmt.Errorf("failed to create folder %q: %w", prefix, wrapErr(err))
	}
	return nil
}

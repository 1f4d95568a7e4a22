package s3client

import (
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/Rudra370/s3manager/pkg/tasks"
)

// wrapErr maps provider error codes onto the sentinels callers branch on.
// S3-compatible vendors are sloppy about typed errors, so the string
// fallback stays.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case IsBucketNotEmpty(err):
		return errors.Join(err, tasks.ErrBucketNotEmpty)
	default:
		return err
	}
}

// IsNotFound reports whether err means the bucket or key does not exist.
func IsNotFound(err error) bool {
	var noKey *types.NoSuchKey
	var noBucket *types.NoSuchBucket
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &noBucket) || errors.As(err, &notFound) {
		return true
	}
	return hasCode(err, "NoSuchKey", "NoSuchBucket", "NotFound", "404")
}

// IsAccessDenied reports whether err is a permissions failure.
func IsAccessDenied(err error) bool {
	return hasCode(err, "AccessDenied", "Forbidden", "403", "InvalidAccessKeyId", "SignatureDoesNotMatch")
}

// IsBucketNotEmpty reports whether a bucket delete failed because objects
// remain in it.
func IsBucketNotEmpty(err error) bool {
	return hasCode(err, "BucketNotEmpty")
}

// IsAlreadyOwned reports whether a bucket create collided with a bucket the
// caller already owns.
func IsAlreadyOwned(err error) bool {
	var exists *types.BucketAlreadyExists
	var owned *types.BucketAlreadyOwnedByYou
	if errors.As(err, &exists) || errors.As(err, &owned) {
		return true
	}
	return hasCode(err, "BucketAlreadyOwnedByYou")
}

func hasCode(err error, codes ...string) bool {
	if err == nil {
		return false
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		for _, code := range codes {
			if apiErr.ErrorCode() == code {
				return true
			}
		}
	}

	msg := err.Error()
	for _, code := range codes {
		if strings.Contains(msg, code) {
			return true
		}
	}
	return false
}

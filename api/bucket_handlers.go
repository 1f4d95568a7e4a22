package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Rudra370/s3manager/pkg/tasks"
)

// listBuckets returns every bucket on the selected account.
func (s *Server) listBuckets(c *gin.Context) {
	acct, ok := s.account(c)
	if !ok {
		return
	}
	client, ok := s.client(c, acct)
	if !ok {
		return
	}

	buckets, err := client.ListBuckets(c.Request.Context())
	if err != nil {
		s.storageError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account_id": acct.ID, "buckets": buckets})
}

type createBucketRequest struct {
	Name string `json:"name" binding:"required"`
}

// createBucket creates an empty bucket.
func (s *Server) createBucket(c *gin.Context) {
	var req createBucketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "bucket name is required")
		return
	}

	acct, ok := s.account(c)
	if !ok {
		return
	}
	client, ok := s.client(c, acct)
	if !ok {
		return
	}

	if err := client.CreateBucket(c.Request.Context(), req.Name); err != nil {
		s.storageError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": req.Name})
}

// getBucketSize sums the bucket synchronously. Fine for small buckets; the
// calculate-size task covers large ones without tying up the request.
func (s *Server) getBucketSize(c *gin.Context) {
	acct, ok := s.account(c)
	if !ok {
		return
	}
	client, ok := s.client(c, acct)
	if !ok {
		return
	}

	bucket := c.Param("bucket")
	var size int64
	count := 0
	token := ""
	for {
		page, err := client.ListPage(c.Request.Context(), bucket, "", token)
		if err != nil {
			s.storageError(c, err)
			return
		}
		for _, obj := range page.Objects {
			size += obj.Size
			count++
		}
		if !page.Truncated {
			break
		}
		token = page.NextToken
	}

	c.JSON(http.StatusOK, gin.H{
		"bucket":         bucket,
		"size":           size,
		"size_formatted": tasks.FormatSize(size),
		"object_count":   count,
	})
}

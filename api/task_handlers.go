package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Rudra370/s3manager/pkg/tasks"
)

// startBucketDelete queues deletion of a whole bucket and everything in it.
func (s *Server) startBucketDelete(c *gin.Context) {
	bucket := c.Param("bucket")

	acct, ok := s.account(c)
	if !ok {
		return
	}

	params := tasks.BucketDeleteParams{AccountID: acct.ID, Bucket: bucket}
	if err := params.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}

	client, ok := s.client(c, acct)
	if !ok {
		return
	}

	id := s.manager.Start(tasks.KindBucketDelete, map[string]interface{}{
		"account_id":  acct.ID,
		"bucket_name": bucket,
	}, tasks.BucketDeleteStep(client, s.shares, params))

	c.JSON(http.StatusAccepted, gin.H{
		"task_id": id,
		"message": fmt.Sprintf("Bucket deletion started for %q", bucket),
	})
}

type prefixDeleteRequest struct {
	Prefix string `json:"prefix" binding:"required"`
}

// startPrefixDelete queues deletion of everything under a folder prefix.
func (s *Server) startPrefixDelete(c *gin.Context) {
	var req prefixDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "prefix is required")
		return
	}

	acct, ok := s.account(c)
	if !ok {
		return
	}

	params := tasks.PrefixDeleteParams{AccountID: acct.ID, Bucket: c.Param("bucket"), Prefix: req.Prefix}
	if err := params.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}

	client, ok := s.client(c, acct)
	if !ok {
		return
	}

	id := s.manager.Start(tasks.KindPrefixDelete, map[string]interface{}{
		"account_id":  acct.ID,
		"bucket_name": params.Bucket,
		"prefix":      req.Prefix,
	}, tasks.PrefixDeleteStep(client, params))

	c.JSON(http.StatusAccepted, gin.H{
		"task_id": id,
		"message": fmt.Sprintf("Folder deletion started for %q", req.Prefix),
	})
}

type bulkDeleteRequest struct {
	Bucket string   `json:"bucket_name" binding:"required"`
	Keys   []string `json:"keys" binding:"required"`
}

// startBulkDelete queues deletion of an explicit set of keys and folders.
func (s *Server) startBulkDelete(c *gin.Context) {
	var req bulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "bucket_name and keys are required")
		return
	}

	acct, ok := s.account(c)
	if !ok {
		return
	}

	params := tasks.BulkDeleteParams{AccountID: acct.ID, Bucket: req.Bucket, Keys: req.Keys}
	if err := params.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}

	client, ok := s.client(c, acct)
	if !ok {
		return
	}

	id := s.manager.Start(tasks.KindBulkDelete, map[string]interface{}{
		"account_id":   acct.ID,
		"bucket_name":  req.Bucket,
		"object_count": len(req.Keys),
	}, tasks.BulkDeleteStep(client, params))

	c.JSON(http.StatusAccepted, gin.H{
		"task_id": id,
		"message": fmt.Sprintf("Bulk delete started for %d objects", len(req.Keys)),
	})
}

type calculateSizeRequest struct {
	Bucket string `json:"bucket_name" binding:"required"`
	Prefix string `json:"prefix"`
}

// startCalculateSize queues a size scan over a bucket or folder.
func (s *Server) startCalculateSize(c *gin.Context) {
	var req calculateSizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "bucket_name is required")
		return
	}

	acct, ok := s.account(c)
	if !ok {
		return
	}

	params := tasks.CalculateSizeParams{AccountID: acct.ID, Bucket: req.Bucket, Prefix: req.Prefix}
	if err := params.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}

	client, ok := s.client(c, acct)
	if !ok {
		return
	}

	id := s.manager.Start(tasks.KindCalculateSize, map[string]interface{}{
		"account_id":  acct.ID,
		"bucket_name": req.Bucket,
		"prefix":      req.Prefix,
	}, tasks.CalculateSizeStep(client, params))

	c.JSON(http.StatusAccepted, gin.H{
		"task_id": id,
		"message": fmt.Sprintf("Size calculation started for %q", req.Bucket),
	})
}

// getTaskProgress returns the current snapshot of one task. Expired or
// unknown tasks are indistinguishable: both are 404.
func (s *Server) getTaskProgress(c *gin.Context) {
	task, err := s.store.Get(c.Param("id"))
	if errors.Is(err, tasks.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// cancelTask requests cooperative cancellation. Repeating the request, or
// cancelling an already finished task, succeeds without effect.
func (s *Server) cancelTask(c *gin.Context) {
	id := c.Param("id")
	accepted, err := s.store.RequestCancel(id)
	if errors.Is(err, tasks.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	task, err := s.store.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"task_id":          id,
		"status":           task.Status,
		"cancel_requested": accepted || task.Status == tasks.StatusCancelled,
	})
}

// listActiveTasks returns every pending or running task.
func (s *Server) listActiveTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": s.store.Active()})
}

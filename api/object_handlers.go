package api

import (
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// listObjects returns one folder-view page of a bucket.
func (s *Server) listObjects(c *gin.Context) {
	acct, ok := s.account(c)
	if !ok {
		return
	}
	client, ok := s.client(c, acct)
	if !ok {
		return
	}

	prefix := c.Query("prefix")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	listing, err := client.ListObjects(c.Request.Context(), c.Param("bucket"), prefix, c.Query("token"), s.cfg.ListPageSize)
	if err != nil {
		s.storageError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

// uploadObject stores the request body as bucket/key.
func (s *Server) uploadObject(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		badRequest(c, "key is required")
		return
	}
	if c.Request.ContentLength > s.cfg.MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("upload exceeds the %d byte limit", s.cfg.MaxUploadSize),
		})
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

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		badRequest(c, "multipart file field is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if err := client.PutObject(c.Request.Context(), c.Param("bucket"), key, contentType, file); err != nil {
		s.storageError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"key": key, "size": header.Size})
}

// downloadObject streams bucket/key back to the caller.
func (s *Server) downloadObject(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		badRequest(c, "key is required")
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

	body, meta, err := client.GetObject(c.Request.Context(), c.Param("bucket"), key)
	if err != nil {
		s.storageError(c, err)
		return
	}
	defer body.Close()

	streamObject(c, body, meta.Size, meta.ContentType, path.Base(key))
}

// getObjectMetadata returns object metadata without the body.
func (s *Server) getObjectMetadata(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		badRequest(c, "key is required")
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

	meta, err := client.HeadObject(c.Request.Context(), c.Param("bucket"), key)
	if err != nil {
		s.storageError(c, err)
		return
	}
	c.JSON(http.StatusOK, meta)
}

// deleteObject removes a single object synchronously. Folder and bulk
// deletion go through the task endpoints instead.
func (s *Server) deleteObject(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		badRequest(c, "key is required")
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

	if err := client.DeleteObject(c.Request.Context(), c.Param("bucket"), key); err != nil {
		s.storageError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "deleted": true})
}

type createFolderRequest struct {
	Prefix string `json:"prefix" binding:"required"`
}

// createFolder writes the placeholder object that makes an empty folder
// browsable.
func (s *Server) createFolder(c *gin.Context) {
	var req createFolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "prefix is required")
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

	if err := client.CreatePrefix(c.Request.Context(), c.Param("bucket"), req.Prefix); err != nil {
		s.storageError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"prefix": req.Prefix})
}

func streamObject(c *gin.Context, body io.Reader, size int64, contentType, filename string) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if size > 0 {
		c.Header("Content-Length", strconv.FormatInt(size, 10))
	}
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	io.Copy(c.Writer, body)
}

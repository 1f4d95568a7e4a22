package api

import (
	"errors"
	"net/http"
	"path"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Rudra370/s3manager/pkg/shares"
)

type createShareRequest struct {
	AccountID    int64  `json:"account_id"`
	Bucket       string `json:"bucket" binding:"required"`
	Key          string `json:"key" binding:"required"`
	Password     string `json:"password"`
	MaxDownloads int    `json:"max_downloads"`
	ExpiresIn    string `json:"expires_in"`
}

// createShare issues a public download link for one object.
func (s *Server) createShare(c *gin.Context) {
	var req createShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "bucket and key are required")
		return
	}

	var expiresIn time.Duration
	if req.ExpiresIn != "" {
		d, err := time.ParseDuration(req.ExpiresIn)
		if err != nil {
			badRequest(c, "expires_in must be a duration like 24h or 30m")
			return
		}
		expiresIn = d
	}

	accountID := req.AccountID
	if accountID == 0 {
		acct, ok := s.account(c)
		if !ok {
			return
		}
		accountID = acct.ID
	}

	share, err := s.shares.Create(c.Request.Context(), shares.CreateParams{
		AccountID:    accountID,
		Bucket:       req.Bucket,
		Key:          req.Key,
		Password:     req.Password,
		MaxDownloads: req.MaxDownloads,
		ExpiresIn:    expiresIn,
	})
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"share": share,
		"url":   "/s/" + share.Token,
	})
}

// listShares returns the account's share links.
func (s *Server) listShares(c *gin.Context) {
	acct, ok := s.account(c)
	if !ok {
		return
	}
	list, err := s.shares.List(c.Request.Context(), acct.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shares": list})
}

// deleteShare revokes a share link.
func (s *Server) deleteShare(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid share id")
		return
	}
	if err := s.shares.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, shares.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "share link not found"})
			return
		}
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

type accessShareRequest struct {
	Password string `json:"password"`
}

// downloadShared resolves a public token and streams the object. POST keeps
// the password out of URLs and access logs.
func (s *Server) downloadShared(c *gin.Context) {
	var req accessShareRequest
	// The body is optional for links without a password.
	_ = c.ShouldBindJSON(&req)

	share, err := s.shares.Access(c.Request.Context(), c.Param("token"), req.Password)
	if err != nil {
		switch {
		case errors.Is(err, shares.ErrNotFound), errors.Is(err, shares.ErrExpired):
			c.JSON(http.StatusNotFound, gin.H{"error": "share link not found"})
		case errors.Is(err, shares.ErrExhausted):
			c.JSON(http.StatusGone, gin.H{"error": err.Error()})
		case errors.Is(err, shares.ErrPasswordRequired):
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		case errors.Is(err, shares.ErrWrongPassword):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		default:
			s.fail(c, err)
		}
		return
	}

	acct, ok := s.lookupAccount(c, c.Request.Context(), share.AccountID)
	if !ok {
		return
	}
	client, ok := s.client(c, acct)
	if !ok {
		return
	}

	body, meta, err := client.GetObject(c.Request.Context(), share.Bucket, share.Key)
	if err != nil {
		s.storageError(c, err)
		return
	}
	defer body.Close()

	if err := s.shares.RecordDownload(c.Request.Context(), share); err != nil {
		s.log.WithError(err).WithField("share_id", share.ID).Warn("failed to count download")
	}

	streamObject(c, body, meta.Size, meta.ContentType, path.Base(share.Key))
}

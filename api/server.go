package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Rudra370/s3manager/pkg/accounts"
	"github.com/Rudra370/s3manager/pkg/config"
	"github.com/Rudra370/s3manager/pkg/s3client"
	"github.com/Rudra370/s3manager/pkg/shares"
	"github.com/Rudra370/s3manager/pkg/tasks"
)

// Server bundles the HTTP handlers with their collaborators.
type Server struct {
	cfg      *config.Config
	log      *logrus.Logger
	store    *tasks.Store
	manager  *tasks.Manager
	accounts *accounts.Repository
	shares   *shares.Service
	clients  *s3client.Cache
}

func New(cfg *config.Config, log *logrus.Logger, store *tasks.Store, manager *tasks.Manager,
	accountRepo *accounts.Repository, shareService *shares.Service, clients *s3client.Cache) *Server {
	return &Server{
		cfg:      cfg,
		log:      log,
		store:    store,
		manager:  manager,
		accounts: accountRepo,
		shares:   shareService,
		clients:  clients,
	}
}

// account resolves the storage account for a request. The account_id query
// parameter selects one explicitly; without it the default account is used.
func (s *Server) account(c *gin.Context) (*accounts.Account, bool) {
	ctx := c.Request.Context()

	if raw := c.Query("account_id"); raw != "" {
		id, err := parseID(raw)
		if err != nil {
			badRequest(c, "invalid account_id")
			return nil, false
		}
		return s.lookupAccount(c, ctx, id)
	}

	acct, err := s.accounts.Default(ctx)
	if errors.Is(err, accounts.ErrNotFound) {
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": "no storage account configured"})
		return nil, false
	}
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return acct, true
}

func (s *Server) lookupAccount(c *gin.Context, ctx context.Context, id int64) (*accounts.Account, bool) {
	acct, err := s.accounts.Get(ctx, id)
	if errors.Is(err, accounts.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return nil, false
	}
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return acct, true
}

// client returns the cached S3 client for an account.
func (s *Server) client(c *gin.Context, acct *accounts.Account) (*s3client.Client, bool) {
	cfg := s3client.Config{
		EndpointURL: acct.EndpointURL,
		Region:      acct.Region,
		AccessKey:   acct.AccessKey,
		SecretKey:   acct.SecretKey,
		MaxRetries:  s.cfg.S3MaxRetries,
		Timeout:     s.cfg.S3Timeout,
	}
	client, err := s.clients.Get(c.Request.Context(), acct.ID, cfg)
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return client, true
}

// storageError maps S3 failures onto HTTP statuses.
func (s *Server) storageError(c *gin.Context, err error) {
	switch {
	case s3client.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case s3client.IsAccessDenied(err):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		s.fail(c, err)
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	s.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

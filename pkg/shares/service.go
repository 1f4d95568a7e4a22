package shares

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"golang.org/x/crypto/bcrypt"
)

// store is the persistence surface the service needs.
type store interface {
	Create(ctx context.Context, s *Share) error
	GetByToken(ctx context.Context, token string) (*Share, error)
	Get(ctx context.Context, id int64) (*Share, error)
	List(ctx context.Context, accountID int64) ([]*Share, error)
	Delete(ctx context.Context, id int64) error
	DeleteForBucket(ctx context.Context, accountID int64, bucket string) (int64, error)
	IncrementDownloads(ctx context.Context, id int64) (int, error)
}

// Service issues share tokens and gates access to them.
type Service struct {
	store store
	now   func() time.Time
}

func NewService(store store) *Service {
	return &Service{store: store, now: time.Now}
}

// CreateParams describes a new share link.
type CreateParams struct {
	AccountID    int64
	Bucket       string
	Key          string
	Password     string
	MaxDownloads int
	ExpiresIn    time.Duration
}

func (p CreateParams) validate() error {
	if p.Bucket == "" {
		return errors.New("bucket name is required")
	}
	if p.Key == "" {
		return errors.New("object key is required")
	}
	if p.MaxDownloads < 0 {
		return errors.New("max downloads cannot be negative")
	}
	if p.ExpiresIn < 0 {
		return errors.New("expiry cannot be in the past")
	}
	return nil
}

// Create issues a new share link for an object.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Share, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	share := &Share{
		Token:        shortuuid.New(),
		AccountID:    p.AccountID,
		Bucket:       p.Bucket,
		Key:          p.Key,
		MaxDownloads: p.MaxDownloads,
	}

	if p.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		share.PasswordHash = string(hash)
	}

	if p.ExpiresIn > 0 {
		at := s.now().Add(p.ExpiresIn)
		share.ExpiresAt = &at
	}

	if err := s.store.Create(ctx, share); err != nil {
		return nil, err
	}
	return share, nil
}

// Access resolves a token to its share, enforcing expiry, the download cap
// and the password. Wrong or missing passwords come back as typed errors so
// the handler can distinguish 401 from 403.
func (s *Service) Access(ctx context.Context, token, password string) (*Share, error) {
	share, err := s.store.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if share.ExpiresAt != nil && s.now().After(*share.ExpiresAt) {
		return nil, ErrExpired
	}
	if share.MaxDownloads > 0 && share.Downloads >= share.MaxDownloads {
		return nil, ErrExhausted
	}

	if share.HasPassword() {
		if password == "" {
			return nil, ErrPasswordRequired
		}
		if bcrypt.CompareHashAndPassword([]byte(share.PasswordHash), []byte(password)) != nil {
			return nil, ErrWrongPassword
		}
	}

	return share, nil
}

// RecordDownload counts one successful download against the link.
func (s *Service) RecordDownload(ctx context.Context, share *Share) error {
	downloads, err := s.store.IncrementDownloads(ctx, share.ID)
	if err != nil {
		return err
	}
	share.Downloads = downloads
	return nil
}

// List returns an account's share links.
func (s *Service) List(ctx context.Context, accountID int64) ([]*Share, error) {
	return s.store.List(ctx, accountID)
}

// Get returns one share link by id.
func (s *Service) Get(ctx context.Context, id int64) (*Share, error) {
	return s.store.Get(ctx, id)
}

// Delete revokes a share link.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.Delete(ctx, id)
}

// DeleteForBucket revokes every link into a bucket. Bucket deletion calls
// this as its cleanup step.
func (s *Service) DeleteForBucket(ctx context.Context, accountID int64, bucket string) (int64, error) {
	return s.store.DeleteForBucket(ctx, accountID, bucket)
}

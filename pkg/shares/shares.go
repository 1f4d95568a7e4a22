package shares

import (
	"errors"
	"time"
)

// Share is a public download link for one object, optionally protected by a
// password and bounded by expiry or a download cap.
type Share struct {
	ID           int64      `json:"id"`
	Token        string     `json:"token"`
	AccountID    int64      `json:"account_id"`
	Bucket       string     `json:"bucket"`
	Key          string     `json:"key"`
	PasswordHash string     `json:"-"`
	MaxDownloads int        `json:"max_downloads"`
	Downloads    int        `json:"downloads"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// HasPassword reports whether the link is password protected.
func (s *Share) HasPassword() bool {
	return s.PasswordHash != ""
}

var (
	ErrNotFound         = errors.New("share link not found")
	ErrExpired          = errors.New("share link expired")
	ErrExhausted        = errors.New("share link download limit reached")
	ErrPasswordRequired = errors.New("password required")
	ErrWrongPassword    = errors.New("wrong password")
)

package accounts

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Account holds the connection details for one S3-compatible storage
// account. SecretKey never serializes.
type Account struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	EndpointURL string    `json:"endpoint_url"`
	Region      string    `json:"region"`
	AccessKey   string    `json:"access_key"`
	SecretKey   string    `json:"-"`
	IsDefault   bool      `json:"is_default"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

var (
	ErrNotFound      = errors.New("account not found")
	ErrDuplicateName = errors.New("account name already exists")
)

// Validate checks the fields a new or updated account must carry.
func (a *Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return errors.New("account name is required")
	}
	if a.AccessKey == "" {
		return errors.New("access key is required")
	}
	if a.SecretKey == "" {
		return errors.New("secret key is required")
	}
	if a.EndpointURL != "" {
		u, err := url.Parse(a.EndpointURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return errors.New("endpoint URL must be a valid http(s) URL")
		}
	}
	return nil
}

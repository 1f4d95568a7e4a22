package accounts

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestAccountValidate(t *testing.T) {
	valid := Account{
		Name:        "minio-local",
		EndpointURL: "http://localhost:9000",
		AccessKey:   "minioadmin",
		SecretKey:   "minioadmin",
	}
	assert.NoError(t, valid.Validate())

	aws := Account{Name: "aws", Region: "eu-west-1", AccessKey: "AKIA...", SecretKey: "secret"}
	assert.NoError(t, aws.Validate())

	tests := []struct {
		name    string
		mutate  func(*Account)
		wantErr string
	}{
		{"missing name", func(a *Account) { a.Name = "  " }, "name is required"},
		{"missing access key", func(a *Account) { a.AccessKey = "" }, "access key is required"},
		{"missing secret key", func(a *Account) { a.SecretKey = "" }, "secret key is required"},
		{"bad endpoint scheme", func(a *Account) { a.EndpointURL = "ftp://host" }, "valid http(s) URL"},
		{"endpoint without host", func(a *Account) { a.EndpointURL = "http://" }, "valid http(s) URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := valid
			tt.mutate(&a)
			err := a.Validate()
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestAccountSecretNeverSerializes(t *testing.T) {
	a := Account{Name: "x", AccessKey: "ak", SecretKey: "topsecret"}
	assert.NotContains(t, mustJSON(t, a), "topsecret")
}

package shares

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore keeps shares in memory for service tests.
type memStore struct {
	shares map[int64]*Share
	nextID int64
}

func newMemStore() *memStore {
	return &memStore{shares: make(map[int64]*Share), nextID: 1}
}

func (m *memStore) Create(_ context.Context, s *Share) error {
	s.ID = m.nextID
	m.nextID++
	s.CreatedAt = time.Now()
	cp := *s
	m.shares[s.ID] = &cp
	return nil
}

func (m *memStore) GetByToken(_ context.Context, token string) (*Share, error) {
	for _, s := range m.shares {
		if s.Token == token {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) Get(_ context.Context, id int64) (*Share, error) {
	s, ok := m.shares[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) List(_ context.Context, accountID int64) ([]*Share, error) {
	out := []*Share{}
	for _, s := range m.shares {
		if s.AccountID == accountID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) Delete(_ context.Context, id int64) error {
	if _, ok := m.shares[id]; !ok {
		return ErrNotFound
	}
	delete(m.shares, id)
	return nil
}

func (m *memStore) DeleteForBucket(_ context.Context, accountID int64, bucket string) (int64, error) {
	var n int64
	for id, s := range m.shares {
		if s.AccountID == accountID && s.Bucket == bucket {
			delete(m.shares, id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) IncrementDownloads(_ context.Context, id int64) (int, error) {
	s, ok := m.shares[id]
	if !ok {
		return 0, ErrNotFound
	}
	s.Downloads++
	return s.Downloads, nil
}

func TestServiceCreateAndAccess(t *testing.T) {
	svc := NewService(newMemStore())
	ctx := context.Background()

	share, err := svc.Create(ctx, CreateParams{AccountID: 1, Bucket: "media", Key: "photo.jpg"})
	require.NoError(t, err)
	assert.NotEmpty(t, share.Token)
	assert.False(t, share.HasPassword())

	got, err := svc.Access(ctx, share.Token, "")
	require.NoError(t, err)
	assert.Equal(t, "photo.jpg", got.Key)

	_, err = svc.Access(ctx, "no-such-token", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServiceCreateValidation(t *testing.T) {
	svc := NewService(newMemStore())
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateParams{Key: "k"})
	assert.ErrorContains(t, err, "bucket name is required")

	_, err = svc.Create(ctx, CreateParams{Bucket: "b"})
	assert.ErrorContains(t, err, "object key is required")

	_, err = svc.Create(ctx, CreateParams{Bucket: "b", Key: "k", MaxDownloads: -1})
	assert.Error(t, err)

	_, err = svc.Create(ctx, CreateParams{Bucket: "b", Key: "k", ExpiresIn: -time.Hour})
	assert.Error(t, err)
}

func TestServicePasswordProtection(t *testing.T) {
	svc := NewService(newMemStore())
	ctx := context.Background()

	share, err := svc.Create(ctx, CreateParams{AccountID: 1, Bucket: "b", Key: "k", Password: "hunter2"})
	require.NoError(t, err)
	assert.True(t, share.HasPassword())
	assert.NotEqual(t, "hunter2", share.PasswordHash)

	_, err = svc.Access(ctx, share.Token, "")
	assert.ErrorIs(t, err, ErrPasswordRequired)

	_, err = svc.Access(ctx, share.Token, "wrong")
	assert.ErrorIs(t, err, ErrWrongPassword)

	got, err := svc.Access(ctx, share.Token, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, share.ID, got.ID)
}

func TestServiceExpiry(t *testing.T) {
	svc := NewService(newMemStore())
	ctx := context.Background()

	share, err := svc.Create(ctx, CreateParams{AccountID: 1, Bucket: "b", Key: "k", ExpiresIn: time.Hour})
	require.NoError(t, err)

	_, err = svc.Access(ctx, share.Token, "")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.Access(ctx, share.Token, "")
	assert.ErrorIs(t, err, ErrExpired)
}

func TestServiceDownloadCap(t *testing.T) {
	svc := NewService(newMemStore())
	ctx := context.Background()

	share, err := svc.Create(ctx, CreateParams{AccountID: 1, Bucket: "b", Key: "k", MaxDownloads: 2})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		got, err := svc.Access(ctx, share.Token, "")
		require.NoError(t, err)
		require.NoError(t, svc.RecordDownload(ctx, got))
	}

	_, err = svc.Access(ctx, share.Token, "")
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestServiceDeleteForBucket(t *testing.T) {
	svc := NewService(newMemStore())
	ctx := context.Background()

	for _, key := range []string{"a", "b"} {
		_, err := svc.Create(ctx, CreateParams{AccountID: 1, Bucket: "doomed", Key: key})
		require.NoError(t, err)
	}
	keep, err := svc.Create(ctx, CreateParams{AccountID: 1, Bucket: "other", Key: "c"})
	require.NoError(t, err)

	n, err := svc.DeleteForBucket(ctx, 1, "doomed")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = svc.Access(ctx, keep.Token, "")
	assert.NoError(t, err)
}

func TestServiceDelete(t *testing.T) {
	svc := NewService(newMemStore())
	ctx := context.Background()

	share, err := svc.Create(ctx, CreateParams{AccountID: 1, Bucket: "b", Key: "k"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, share.ID))
	assert.ErrorIs(t, svc.Delete(ctx, share.ID), ErrNotFound)

	_, err = svc.Access(ctx, share.Token, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

package storage

import (
	"context"
	"duo-lab/errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

var gifPixel = []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00\xff\xff\xff\x00\x00\x00!\xf9\x04\x01\x00\x00\x00\x00,\x00\x00\x00\x00\x01\x00\x01\x00\x00\x02\x02D\x01\x00;")

func tokenOf(t *testing.T, signed string) string {
	u, err := url.Parse(signed)
	require.NoError(t, err)
	return u.Query().Get("token")
}

func TestBlobStore_UploadSignVerify(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewBlobStore(afero.NewMemMapFs(), []byte("test-secret"), "http://localhost:8080/")

	// Given an uploaded avatar
	req.NoError(store.UploadBlob(ctx, "images", "angy-avatar.gif", gifPixel, false))
	req.ErrorIs(store.UploadBlob(ctx, "images", "angy-avatar.gif", gifPixel, false), errors.ErrBlobExists)
	req.NoError(store.UploadBlob(ctx, "images", "angy-avatar.gif", gifPixel, true))

	// When signing it
	signed, err := store.SignedURL(ctx, "images", "angy-avatar.gif", time.Hour)
	req.NoError(err)
	req.True(strings.HasPrefix(signed, "http://localhost:8080/storage/v1/object/sign/images/angy-avatar.gif?token="))

	// Then the token opens this object only
	token := tokenOf(t, signed)
	req.NoError(store.Verify("images", "angy-avatar.gif", token))
	req.ErrorIs(store.Verify("images", "bozy-avatar.gif", token), errors.ErrInvalidSignature)
	req.ErrorIs(store.Verify("images", "angy-avatar.gif", token+"x"), errors.ErrInvalidSignature)

	data, contentType, err := store.Open("images", "angy-avatar.gif")
	req.NoError(err)
	req.Equal(gifPixel, data)
	req.Equal("image/gif", contentType)
}

func TestBlobStore_ExpiredURL(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewBlobStore(afero.NewMemMapFs(), []byte("test-secret"), "")
	req.NoError(store.UploadBlob(ctx, "images", "bozy-background.gif", gifPixel, true))

	signed, err := store.SignedURL(ctx, "images", "bozy-background.gif", time.Minute)
	req.NoError(err)

	store.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	req.ErrorIs(store.Verify("images", "bozy-background.gif", tokenOf(t, signed)), errors.ErrSignedURLExpired)
}

func TestBlobStore_RejectsEscapingPaths(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewBlobStore(afero.NewMemMapFs(), []byte("test-secret"), "")

	req.ErrorIs(store.UploadBlob(ctx, "images", "../secret", gifPixel, true), errors.ErrInvalidBlobPath)
	req.ErrorIs(store.UploadBlob(ctx, "a/b", "x.gif", gifPixel, true), errors.ErrInvalidBlobPath)
	_, err := store.SignedURL(ctx, "images", "missing.gif", time.Minute)
	req.ErrorIs(err, errors.ErrBlobNotFound)
	_, _, err = store.Open("images", "missing.gif")
	req.ErrorIs(err, errors.ErrBlobNotFound)
}

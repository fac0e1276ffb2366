package storage

import (
	"context"
	"duo-lab/errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	stderrors "errors"

	"github.com/gabriel-vasile/mimetype"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/afero"
)

const signedURLIssuer = "duo-lab"

// BlobClaims is what a signed URL grants: reading one object until expiry.
type BlobClaims struct {
	Bucket string `json:"bucket"`
	Path   string `json:"path"`
	jwt.RegisteredClaims
}

// BlobStore keeps objects as files of an afero filesystem, one directory per bucket.
// Read access is given through signed URLs carrying an HS256 token.
type BlobStore struct {
	fs      afero.Fs
	secret  []byte
	baseURL string
	now     func() time.Time
}

func NewBlobStore(fs afero.Fs, secret []byte, baseURL string) *BlobStore {
	return &BlobStore{fs: fs, secret: secret, baseURL: strings.TrimSuffix(baseURL, "/"), now: time.Now}
}

// objectPath rejects anything escaping its bucket.
func objectPath(bucket, name string) (string, error) {
	if bucket == "" || name == "" || strings.Contains(bucket, "/") {
		return "", fmt.Errorf("%w: %q/%q", errors.ErrInvalidBlobPath, bucket, name)
	}
	clean := path.Clean("/" + name)
	if clean == "/" || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q/%q", errors.ErrInvalidBlobPath, bucket, name)
	}
	return path.Join("/", bucket, clean), nil
}

func (s *BlobStore) UploadBlob(_ context.Context, bucket, name string, data []byte, upsert bool) error {
	p, err := objectPath(bucket, name)
	if err != nil {
		return err
	}
	exists, err := afero.Exists(s.fs, p)
	if err != nil {
		return fmt.Errorf("stat %s: %w", p, err)
	}
	if exists && !upsert {
		return fmt.Errorf("%w: %s/%s", errors.ErrBlobExists, bucket, name)
	}
	if err := s.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return afero.WriteFile(s.fs, p, data, 0o644)
}

// SignedURL returns a relative URL granting read access to the object for ttl.
func (s *BlobStore) SignedURL(_ context.Context, bucket, name string, ttl time.Duration) (string, error) {
	p, err := objectPath(bucket, name)
	if err != nil {
		return "", err
	}
	exists, err := afero.Exists(s.fs, p)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", p, err)
	}
	if !exists {
		return "", fmt.Errorf("%w: %s/%s", errors.ErrBlobNotFound, bucket, name)
	}

	now := s.now()
	claims := &BlobClaims{
		Bucket: bucket,
		Path:   name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    signedURLIssuer,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s/%s: %w", bucket, name, err)
	}
	return fmt.Sprintf("%s/storage/v1/object/sign/%s/%s?token=%s", s.baseURL, bucket, name, token), nil
}

// Verify checks that token grants access to bucket/name.
func (s *BlobStore) Verify(bucket, name, token string) error {
	claims := &BlobClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(signedURLIssuer),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case stderrors.Is(err, jwt.ErrTokenExpired):
		return errors.ErrSignedURLExpired
	case err != nil:
		return fmt.Errorf("%w: %v", errors.ErrInvalidSignature, err)
	case claims.Bucket != bucket || claims.Path != name:
		return errors.ErrInvalidSignature
	}
	return nil
}

// Open reads an object and detects its content type.
func (s *BlobStore) Open(bucket, name string) ([]byte, string, error) {
	p, err := objectPath(bucket, name)
	if err != nil {
		return nil, "", err
	}
	data, err := afero.ReadFile(s.fs, p)
	if stderrors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("%w: %s/%s", errors.ErrBlobNotFound, bucket, name)
	}
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", p, err)
	}
	return data, mimetype.Detect(data).String(), nil
}

package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aruniapsara/DrapeStudio/internal/domain"
)

const localScheme = "local://"

// FileStore persists objects on the local filesystem. Upload URLs are signed
// with an HMAC over the key and expiry so the direct-upload endpoint can
// reject expired or forged grants without any server-side state.
type FileStore struct {
	basePath string
	secret   []byte
	now      func() time.Time
}

// NewFileStore initializes a FileStore rooted at basePath. secret keys the
// upload URL signatures.
func NewFileStore(basePath, secret string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if secret == "" {
		return nil, errors.New("storage: signing secret is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath, secret: []byte(secret), now: time.Now}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	return s.basePath
}

func (s *FileStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("%w: ensure directory: %v", domain.ErrStorageFailure, err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: write file: %v", domain.ErrStorageFailure, err)
	}
	return localScheme + cleanKey, nil
}

func (s *FileStore) Get(ctx context.Context, fileURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cleanKey, err := sanitizeKey(strings.TrimPrefix(fileURL, localScheme))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.basePath, filepath.FromSlash(cleanKey)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, cleanKey)
		}
		return nil, fmt.Errorf("%w: read file: %v", domain.ErrStorageFailure, err)
	}
	return data, nil
}

// SignUpload returns a relative upload URL for the direct-upload endpoint,
// carrying the expiry and an HMAC signature as query parameters.
func (s *FileStore) SignUpload(ctx context.Context, key, contentType string, expiry time.Duration) (SignedUpload, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return SignedUpload{}, err
	}
	expires := s.now().Add(expiry).Unix()
	sig := s.sign(cleanKey, expires)

	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", sig)

	// The direct-upload handler mounts at /v1/uploads/direct/{key}; the
	// "uploads/" prefix is part of the key and stripped from the path.
	path := "/v1/uploads/direct/" + strings.TrimPrefix(cleanKey, "uploads/")
	return SignedUpload{
		UploadURL: path + "?" + q.Encode(),
		FileURL:   localScheme + cleanKey,
	}, nil
}

func (s *FileStore) SignDownload(ctx context.Context, fileURL string, expiry time.Duration) (string, error) {
	cleanKey, err := sanitizeKey(strings.TrimPrefix(fileURL, localScheme))
	if err != nil {
		return "", err
	}
	return "/v1/files/" + cleanKey, nil
}

func (s *FileStore) Delete(ctx context.Context, fileURL string) error {
	cleanKey, err := sanitizeKey(strings.TrimPrefix(fileURL, localScheme))
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(s.basePath, filepath.FromSlash(cleanKey)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: remove file: %v", domain.ErrStorageFailure, err)
	}
	return nil
}

// VerifyUpload checks the signature and expiry of a direct-upload grant for
// the given key. Expired or forged grants return ErrUploadAuth.
func (s *FileStore) VerifyUpload(key string, expires int64, sig string) error {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	if s.now().Unix() > expires {
		return fmt.Errorf("%w: upload url expired", domain.ErrUploadAuth)
	}
	want := s.sign(cleanKey, expires)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return fmt.Errorf("%w: invalid signature", domain.ErrUploadAuth)
	}
	return nil
}

func (s *FileStore) sign(key string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s|%d", key, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%w: storage key is required", domain.ErrValidation)
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: invalid storage key %q", domain.ErrValidation, key)
	}
	return cleaned, nil
}

var _ Gateway = (*FileStore)(nil)

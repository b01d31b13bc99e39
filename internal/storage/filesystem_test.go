package storage

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/aruniapsara/DrapeStudio/internal/domain"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir(), "test-secret")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	data := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 1, 2, 3}

	fileURL, err := s.Put(ctx, "outputs/gen_x/variation_0.jpg", data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !strings.HasPrefix(fileURL, "local://") {
		t.Errorf("fileURL = %q, want local:// prefix", fileURL)
	}

	got, err := s.Get(ctx, fileURL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("round-tripped bytes differ")
	}
}

func TestGetMissingFile(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get(context.Background(), "local://uploads/nope.jpg"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPutRejectsTraversalKeys(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Put(context.Background(), "../escape.jpg", []byte("x")); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func parseUploadURL(t *testing.T, uploadURL string) (expires int64, sig string) {
	t.Helper()
	u, err := url.Parse(uploadURL)
	if err != nil {
		t.Fatalf("parse upload url: %v", err)
	}
	expires, err = strconv.ParseInt(u.Query().Get("expires"), 10, 64)
	if err != nil {
		t.Fatalf("parse expires: %v", err)
	}
	return expires, u.Query().Get("sig")
}

func TestSignedUploadVerifies(t *testing.T) {
	s := newTestStore(t)
	grant, err := s.SignUpload(context.Background(), "uploads/sess/front.jpg", "image/jpeg", 15*time.Minute)
	if err != nil {
		t.Fatalf("SignUpload: %v", err)
	}
	if grant.FileURL != "local://uploads/sess/front.jpg" {
		t.Errorf("FileURL = %q", grant.FileURL)
	}

	expires, sig := parseUploadURL(t, grant.UploadURL)
	if err := s.VerifyUpload("uploads/sess/front.jpg", expires, sig); err != nil {
		t.Fatalf("VerifyUpload: %v", err)
	}
}

func TestExpiredUploadURLRejected(t *testing.T) {
	s := newTestStore(t)
	grant, err := s.SignUpload(context.Background(), "uploads/sess/front.jpg", "image/jpeg", time.Minute)
	if err != nil {
		t.Fatalf("SignUpload: %v", err)
	}
	expires, sig := parseUploadURL(t, grant.UploadURL)

	s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if err := s.VerifyUpload("uploads/sess/front.jpg", expires, sig); !errors.Is(err, domain.ErrUploadAuth) {
		t.Fatalf("err = %v, want ErrUploadAuth", err)
	}
}

func TestForgedSignatureRejected(t *testing.T) {
	s := newTestStore(t)
	grant, err := s.SignUpload(context.Background(), "uploads/sess/front.jpg", "image/jpeg", time.Minute)
	if err != nil {
		t.Fatalf("SignUpload: %v", err)
	}
	expires, _ := parseUploadURL(t, grant.UploadURL)

	err = s.VerifyUpload("uploads/sess/front.jpg", expires, "deadbeef")
	if !errors.Is(err, domain.ErrUploadAuth) {
		t.Fatalf("err = %v, want ErrUploadAuth", err)
	}

	// Signature for one key must not authorize another.
	_, sig := parseUploadURL(t, grant.UploadURL)
	err = s.VerifyUpload("uploads/sess/other.jpg", expires, sig)
	if !errors.Is(err, domain.ErrUploadAuth) {
		t.Fatalf("err = %v, want ErrUploadAuth", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	fileURL, err := s.Put(ctx, "outputs/gen_y/variation_0.jpg", []byte("img"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Delete(ctx, fileURL); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, fileURL); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, err := s.Get(ctx, fileURL); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound after delete", err)
	}
}

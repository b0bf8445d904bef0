package storage

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"
)

type fakeSigner struct {
	email    string
	payloads [][]byte
	err      error
}

func (f *fakeSigner) Email() string {
	return f.email
}

func (f *fakeSigner) SignBytes(_ context.Context, payload []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.payloads = append(f.payloads, append([]byte(nil), payload...))
	return []byte("signed"), nil
}

func TestUploadURLSuccess(t *testing.T) {
	signer := &fakeSigner{email: "signer@example.iam.gserviceaccount.com"}
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	client, err := NewClient(signer, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}

	res, err := client.UploadURL(context.Background(), "bucket", "vehicles/veh_1/images/u1/front.png", UploadOptions{
		ContentType:         "image/png",
		AllowedContentTypes: []string{"image/png"},
		MaxSize:             1 << 20,
		ExpiresIn:           10 * time.Minute,
	})
	if err != nil {
		t.Fatalf("UploadURL returned error: %v", err)
	}
	if res.Method != "PUT" {
		t.Fatalf("expected PUT, got %s", res.Method)
	}
	if !res.ExpiresAt.Equal(now.Add(10 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", res.ExpiresAt)
	}
	if res.Headers["Content-Type"] != "image/png" {
		t.Fatalf("expected Content-Type header, got %v", res.Headers)
	}
	if res.Headers["x-goog-content-length-range"] != "0,1048576" {
		t.Fatalf("expected content length header, got %v", res.Headers)
	}

	parsed, err := url.Parse(res.URL)
	if err != nil {
		t.Fatalf("failed to parse signed URL: %v", err)
	}
	if !strings.Contains(parsed.RawQuery, "X-Goog-Signature=") {
		t.Fatalf("expected signature in query: %s", parsed.RawQuery)
	}
	if len(signer.payloads) == 0 {
		t.Fatalf("expected signer to be invoked")
	}
}

func TestUploadURLRejectsContentType(t *testing.T) {
	client, err := NewClient(&fakeSigner{email: "signer@example.iam.gserviceaccount.com"})
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}

	_, err = client.UploadURL(context.Background(), "bucket", "object", UploadOptions{
		ContentType:         "application/pdf",
		AllowedContentTypes: []string{"image/png"},
	})
	if !errors.Is(err, errContentTypeDenied) {
		t.Fatalf("expected errContentTypeDenied, got %v", err)
	}

	_, err = client.UploadURL(context.Background(), "bucket", "object", UploadOptions{})
	if !errors.Is(err, errContentTypeMissing) {
		t.Fatalf("expected errContentTypeMissing, got %v", err)
	}
}

func TestDownloadURL(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	client, err := NewClient(&fakeSigner{email: "signer@example.iam.gserviceaccount.com"}, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}

	res, err := client.DownloadURL(context.Background(), "bucket", "object.png", 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Method != "GET" {
		t.Fatalf("expected GET method, got %s", res.Method)
	}
	if !res.ExpiresAt.Equal(now.Add(defaultDownloadExpiry)) {
		t.Fatalf("unexpected expiry: %v", res.ExpiresAt)
	}

	if _, err := client.DownloadURL(context.Background(), "bucket", "object.png", 30*24*time.Hour); !errors.Is(err, errExpiryTooLong) {
		t.Fatalf("expected errExpiryTooLong, got %v", err)
	}
	if _, err := client.DownloadURL(context.Background(), "", "object.png", 0); !errors.Is(err, errInvalidBucket) {
		t.Fatalf("expected errInvalidBucket, got %v", err)
	}
}

func TestDownloadURLPropagatesSignerFailure(t *testing.T) {
	client, err := NewClient(&fakeSigner{email: "signer@example.iam.gserviceaccount.com", err: errors.New("kms down")})
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}
	if _, err := client.DownloadURL(context.Background(), "bucket", "object.png", 0); err == nil {
		t.Fatalf("expected signer error")
	}
}

func TestNewClientRequiresSigner(t *testing.T) {
	if _, err := NewClient(nil); !errors.Is(err, errNoSigner) {
		t.Fatalf("expected errNoSigner, got %v", err)
	}
	if _, err := NewClient(&fakeSigner{}); !errors.Is(err, errNoSigner) {
		t.Fatalf("expected errNoSigner for empty email, got %v", err)
	}
}

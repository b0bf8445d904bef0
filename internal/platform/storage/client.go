package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const (
	defaultUploadExpiry   = 15 * time.Minute
	defaultDownloadExpiry = 15 * time.Minute
	maxSignedURLExpiry    = 7 * 24 * time.Hour
)

var (
	errNoSigner           = errors.New("storage: signer is required")
	errInvalidBucket      = errors.New("storage: bucket name is required")
	errInvalidObject      = errors.New("storage: object name is required")
	errContentTypeMissing = errors.New("storage: content type is required for uploads")
	errContentTypeDenied  = errors.New("storage: content type not allowed")
	errExpiryTooLong      = errors.New("storage: expiry exceeds permitted maximum")
)

// Client issues V4 signed URLs for Cloud Storage objects.
type Client struct {
	signer Signer
	now    func() time.Time
}

// ClientOption customises client behaviour.
type ClientOption func(*Client)

// WithClock injects a custom clock.
func WithClock(clock func() time.Time) ClientOption {
	return func(c *Client) {
		if clock != nil {
			c.now = clock
		}
	}
}

// NewClient constructs a signed URL client.
func NewClient(signer Signer, opts ...ClientOption) (*Client, error) {
	if signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, errNoSigner
	}
	client := &Client{signer: signer, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// UploadOptions constrain a signed PUT.
type UploadOptions struct {
	ContentType         string
	AllowedContentTypes []string
	// MaxSize, when positive, is enforced through x-goog-content-length-range.
	MaxSize   int64
	ExpiresIn time.Duration
}

// SignedURL describes a generated URL and the headers the caller must send with it.
type SignedURL struct {
	URL       string
	Method    string
	ExpiresAt time.Time
	Headers   map[string]string
}

// UploadURL signs a PUT for object in bucket.
func (c *Client) UploadURL(ctx context.Context, bucket, object string, opts UploadOptions) (SignedURL, error) {
	if err := validateTarget(bucket, object); err != nil {
		return SignedURL{}, err
	}
	contentType := strings.ToLower(strings.TrimSpace(opts.ContentType))
	if contentType == "" {
		return SignedURL{}, errContentTypeMissing
	}
	if len(opts.AllowedContentTypes) > 0 && !slices.Contains(opts.AllowedContentTypes, contentType) {
		return SignedURL{}, errContentTypeDenied
	}
	expiry, err := expiryOrDefault(opts.ExpiresIn, defaultUploadExpiry)
	if err != nil {
		return SignedURL{}, err
	}

	headers := map[string]string{"Content-Type": contentType}
	var extHeaders []string
	if opts.MaxSize > 0 {
		sizeRange := fmt.Sprintf("0,%d", opts.MaxSize)
		headers["x-goog-content-length-range"] = sizeRange
		extHeaders = append(extHeaders, "x-goog-content-length-range:"+sizeRange)
	}

	expiresAt := c.now().Add(expiry)
	signed, err := storage.SignedURL(strings.TrimSpace(bucket), strings.TrimSpace(object), &storage.SignedURLOptions{
		GoogleAccessID: c.signer.Email(),
		Scheme:         storage.SigningSchemeV4,
		Method:         http.MethodPut,
		ContentType:    contentType,
		Headers:        extHeaders,
		Expires:        expiresAt,
		SignBytes:      c.signBytes(ctx),
	})
	if err != nil {
		return SignedURL{}, fmt.Errorf("storage: sign upload url: %w", err)
	}
	return SignedURL{URL: signed, Method: http.MethodPut, ExpiresAt: expiresAt, Headers: headers}, nil
}

// DownloadURL signs a GET for object in bucket.
func (c *Client) DownloadURL(ctx context.Context, bucket, object string, expiresIn time.Duration) (SignedURL, error) {
	if err := validateTarget(bucket, object); err != nil {
		return SignedURL{}, err
	}
	expiry, err := expiryOrDefault(expiresIn, defaultDownloadExpiry)
	if err != nil {
		return SignedURL{}, err
	}

	expiresAt := c.now().Add(expiry)
	signed, err := storage.SignedURL(strings.TrimSpace(bucket), strings.TrimSpace(object), &storage.SignedURLOptions{
		GoogleAccessID: c.signer.Email(),
		Scheme:         storage.SigningSchemeV4,
		Method:         http.MethodGet,
		Expires:        expiresAt,
		SignBytes:      c.signBytes(ctx),
	})
	if err != nil {
		return SignedURL{}, fmt.Errorf("storage: sign download url: %w", err)
	}
	return SignedURL{URL: signed, Method: http.MethodGet, ExpiresAt: expiresAt}, nil
}

func (c *Client) signBytes(ctx context.Context) func([]byte) ([]byte, error) {
	return func(payload []byte) ([]byte, error) {
		return c.signer.SignBytes(ctx, payload)
	}
}

func validateTarget(bucket, object string) error {
	if strings.TrimSpace(bucket) == "" {
		return errInvalidBucket
	}
	if strings.TrimSpace(object) == "" {
		return errInvalidObject
	}
	return nil
}

func expiryOrDefault(expiry, fallback time.Duration) (time.Duration, error) {
	if expiry <= 0 {
		return fallback, nil
	}
	if expiry > maxSignedURLExpiry {
		return 0, errExpiryTooLong
	}
	return expiry, nil
}

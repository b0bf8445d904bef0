package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rentwheel/api/internal/services"
)

const maxVehicleImageSize = 5 << 20

var vehicleImageContentTypes = []string{"image/jpeg", "image/png", "image/webp"}

// ImageSigner serves vehicle images out of one bucket.
type ImageSigner struct {
	client   *Client
	bucket   string
	ttl      time.Duration
	uploadID func() string
}

var _ services.VehicleImageStore = (*ImageSigner)(nil)

// NewImageSigner binds a signed URL client to the vehicle image bucket.
func NewImageSigner(client *Client, bucket string, ttl time.Duration) (*ImageSigner, error) {
	if client == nil {
		return nil, errNoSigner
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}
	return &ImageSigner{
		client:   client,
		bucket:   bucket,
		ttl:      ttl,
		uploadID: func() string { return strings.ToLower(ulid.Make().String()) },
	}, nil
}

// SignedImageURL turns a gs:// reference into a short lived download URL. References to other
// buckets are refused.
func (s *ImageSigner) SignedImageURL(ctx context.Context, ref string) (string, error) {
	bucket, object, err := ParseReference(ref)
	if err != nil {
		return "", err
	}
	if bucket != s.bucket {
		return "", fmt.Errorf("storage: bucket %q is not the vehicle image bucket", bucket)
	}
	signed, err := s.client.DownloadURL(ctx, bucket, object, s.ttl)
	if err != nil {
		return "", err
	}
	return signed.URL, nil
}

// SignedUploadURL issues a PUT target under a fresh upload folder of the vehicle.
func (s *ImageSigner) SignedUploadURL(ctx context.Context, vehicleID, fileName, contentType string) (services.VehicleImageUpload, error) {
	object, err := VehicleImagePath(vehicleID, s.uploadID(), fileName)
	if err != nil {
		return services.VehicleImageUpload{}, err
	}
	signed, err := s.client.UploadURL(ctx, s.bucket, object, UploadOptions{
		ContentType:         contentType,
		AllowedContentTypes: vehicleImageContentTypes,
		MaxSize:             maxVehicleImageSize,
		ExpiresIn:           s.ttl,
	})
	if err != nil {
		if errors.Is(err, errContentTypeDenied) {
			return services.VehicleImageUpload{}, fmt.Errorf("%w: %v", services.ErrInvalidInput, err)
		}
		return services.VehicleImageUpload{}, err
	}
	return services.VehicleImageUpload{
		URL:       signed.URL,
		Method:    signed.Method,
		Headers:   signed.Headers,
		ImageRef:  Reference(s.bucket, object),
		ExpiresAt: signed.ExpiresAt,
	}, nil
}

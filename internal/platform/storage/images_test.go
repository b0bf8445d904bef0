package storage

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rentwheel/api/internal/services"
)

func newTestSigner(t *testing.T) *ServiceAccountSigner {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	block := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	signer, err := NewServiceAccountSigner("images@example.iam.gserviceaccount.com", string(block))
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return signer
}

func newTestImageSigner(t *testing.T) *ImageSigner {
	t.Helper()
	client, err := NewClient(newTestSigner(t))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	images, err := NewImageSigner(client, "vehicle-images", 10*time.Minute)
	if err != nil {
		t.Fatalf("new image signer: %v", err)
	}
	images.uploadID = func() string { return "upload1" }
	return images
}

func TestImageSignerUpload(t *testing.T) {
	images := newTestImageSigner(t)

	upload, err := images.SignedUploadURL(context.Background(), "veh_1", "front.png", "image/png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if upload.ImageRef != "gs://vehicle-images/vehicles/veh_1/images/upload1/front.png" {
		t.Fatalf("unexpected image ref %s", upload.ImageRef)
	}
	if !strings.Contains(upload.URL, "vehicles/veh_1/images/upload1/front.png") {
		t.Fatalf("upload url does not target the object: %s", upload.URL)
	}
	if upload.Headers["Content-Type"] != "image/png" {
		t.Fatalf("expected content type header, got %v", upload.Headers)
	}

	_, err = images.SignedUploadURL(context.Background(), "veh_1", "notes.txt", "text/plain")
	if !errors.Is(err, services.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestImageSignerDownload(t *testing.T) {
	images := newTestImageSigner(t)

	signed, err := images.SignedImageURL(context.Background(), "gs://vehicle-images/vehicles/veh_1/images/u/front.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(signed, "https://storage.googleapis.com/vehicle-images/") {
		t.Fatalf("unexpected signed url %s", signed)
	}

	if _, err := images.SignedImageURL(context.Background(), "gs://other-bucket/front.png"); err == nil {
		t.Fatalf("expected foreign bucket to be refused")
	}
}

func TestNewServiceAccountSignerFromJSON(t *testing.T) {
	if _, err := NewServiceAccountSignerFromJSON([]byte(`{"client_email":"a@b","private_key":""}`)); err == nil {
		t.Fatalf("expected missing key error")
	}
	if _, err := NewServiceAccountSignerFromJSON([]byte(`{"client_email":"a@b","private_key":"not pem"}`)); err == nil {
		t.Fatalf("expected PEM decode error")
	}
}

package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewS3Storage(t *testing.T) {
	dir := filepath.Join(os.TempDir(), "autocrop_s3_test_"+randomSuffix())
	defer os.RemoveAll(dir)

	cfg := S3Config{
		Bucket:          "test-bucket",
		Region:          "us-east-1",
		Prefix:          "outputs",
		Endpoint:        "http://localhost:4566", // LocalStack-like endpoint
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
	}

	store, err := NewS3Storage(dir, cfg)
	if err != nil {
		t.Fatalf("NewS3Storage() error = %v", err)
	}

	if store.bucket != cfg.Bucket {
		t.Errorf("bucket = %v, want %v", store.bucket, cfg.Bucket)
	}
	if store.prefix != cfg.Prefix {
		t.Errorf("prefix = %v, want %v", store.prefix, cfg.Prefix)
	}
	if store.urlExpiry != time.Hour {
		t.Errorf("urlExpiry = %v, want default %v", store.urlExpiry, time.Hour)
	}
}

func TestS3Storage_InheritsLocalStorage(t *testing.T) {
	dir := filepath.Join(os.TempDir(), "autocrop_s3_test_"+randomSuffix())
	defer os.RemoveAll(dir)

	cfg := S3Config{
		Bucket:          "test-bucket",
		Region:          "us-east-1",
		Endpoint:        "http://localhost:4566",
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
	}

	store, err := NewS3Storage(dir, cfg)
	if err != nil {
		t.Fatalf("NewS3Storage() error = %v", err)
	}

	ctx := context.Background()

	// Inherited SaveUpload
	path, err := store.SaveUpload(ctx, "clip.mp4", bytes.NewReader([]byte("test data")))
	if err != nil {
		t.Fatalf("SaveUpload() error = %v", err)
	}
	defer os.Remove(path)

	// Inherited Open
	reader, err := store.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("failed to read: %v", err)
	}
	if string(content) != "test data" {
		t.Errorf("got %q, want %q", string(content), "test data")
	}

	// Inherited Remove
	err = store.Remove(ctx, path)
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
}

func TestS3Storage_Publish_MockServer(t *testing.T) {
	// Create a mock S3 server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT method, got %s", r.Method)
		}

		if !strings.Contains(r.URL.Path, "/outputs/job-123/output.mp4") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("failed to read body: %v", err)
		}
		if string(body) != "finished video" {
			t.Errorf("unexpected body: %s", string(body))
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dir := filepath.Join(os.TempDir(), "autocrop_s3_mock_test_"+randomSuffix())
	defer os.RemoveAll(dir)

	cfg := S3Config{
		Bucket:          "test-bucket",
		Region:          "us-east-1",
		Prefix:          "outputs",
		Endpoint:        server.URL,
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
		URLExpiry:       15 * time.Minute,
	}

	store, err := NewS3Storage(dir, cfg)
	if err != nil {
		t.Fatalf("NewS3Storage() error = %v", err)
	}

	outputPath := filepath.Join(dir, "output.mp4")
	if err := os.WriteFile(outputPath, []byte("finished video"), 0o600); err != nil {
		t.Fatalf("write output file: %v", err)
	}

	ctx := context.Background()
	url, err := store.Publish(ctx, outputPath, "job-123/output.mp4")
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if !strings.Contains(url, "outputs/job-123/output.mp4") {
		t.Errorf("url %s should contain the object key", url)
	}
	if !strings.Contains(url, "X-Amz-Signature") {
		t.Errorf("url %s should be presigned", url)
	}
}

func TestS3Storage_Publish_MissingFile(t *testing.T) {
	dir := filepath.Join(os.TempDir(), "autocrop_s3_test_"+randomSuffix())
	defer os.RemoveAll(dir)

	cfg := S3Config{
		Bucket:          "test-bucket",
		Region:          "us-east-1",
		Endpoint:        "http://localhost:4566",
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
	}

	store, err := NewS3Storage(dir, cfg)
	if err != nil {
		t.Fatalf("NewS3Storage() error = %v", err)
	}

	_, err = store.Publish(context.Background(), filepath.Join(dir, "missing.mp4"), "key")
	if err == nil {
		t.Error("expected error for missing local file")
	}
}

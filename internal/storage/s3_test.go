package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewS3Storage(t *testing.T) {
	cfg := S3Config{
		Bucket:          "test-bucket",
		Region:          "us-east-1",
		Prefix:          "/transcripts/",
		Endpoint:        "http://localhost:4566/", // LocalStack-like endpoint
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
	}

	storage, err := NewS3Storage(t.TempDir(), cfg)
	if err != nil {
		t.Fatalf("NewS3Storage() error = %v", err)
	}

	if storage.bucket != cfg.Bucket {
		t.Errorf("bucket = %v, want %v", storage.bucket, cfg.Bucket)
	}
	if storage.region != cfg.Region {
		t.Errorf("region = %v, want %v", storage.region, cfg.Region)
	}
	if storage.prefix != "transcripts" {
		t.Errorf("prefix = %v, want %v", storage.prefix, "transcripts")
	}
	if storage.endpoint != "http://localhost:4566" {
		t.Errorf("endpoint = %v", storage.endpoint)
	}
}

func TestS3Storage_InheritsLocalStorage(t *testing.T) {
	storage, err := NewS3Storage(t.TempDir(), S3Config{
		Bucket:          "test-bucket",
		Region:          "us-east-1",
		Endpoint:        "http://localhost:4566",
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
	})
	if err != nil {
		t.Fatalf("NewS3Storage() error = %v", err)
	}

	ctx := context.Background()

	if _, err := storage.Save(ctx, "timestamps/talk.md", strings.NewReader("test data")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reader, err := storage.Load(ctx, "timestamps/talk.md")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("failed to read: %v", err)
	}
	if string(content) != "test data" {
		t.Errorf("got %q, want %q", string(content), "test data")
	}
}

func TestS3Storage_UploadToS3_MockServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT method, got %s", r.Method)
		}

		if r.URL.Path != "/test-bucket/transcripts/timestamps/talk.md" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		if ct := r.Header.Get("Content-Type"); ct != "text/markdown; charset=utf-8" {
			t.Errorf("unexpected content type: %s", ct)
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("failed to read body: %v", err)
		}
		if string(body) != "test content" {
			t.Errorf("unexpected body: %s", string(body))
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	storage, err := NewS3Storage(t.TempDir(), S3Config{
		Bucket:          "test-bucket",
		Region:          "us-east-1",
		Prefix:          "transcripts",
		Endpoint:        server.URL,
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
	})
	if err != nil {
		t.Fatalf("NewS3Storage() error = %v", err)
	}

	url, err := storage.UploadToS3(context.Background(), "timestamps/talk.md", strings.NewReader("test content"))
	if err != nil {
		t.Fatalf("UploadToS3() error = %v", err)
	}

	expectedURL := server.URL + "/test-bucket/transcripts/timestamps/talk.md"
	if url != expectedURL {
		t.Errorf("url = %v, want %v", url, expectedURL)
	}
}

func TestS3Storage_ObjectURL_AWS(t *testing.T) {
	s := &S3Storage{bucket: "b", region: "eu-west-1"}

	if got := s.objectURL("jsons/a.json"); got != "https://b.s3.eu-west-1.amazonaws.com/jsons/a.json" {
		t.Errorf("objectURL() = %v", got)
	}
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"a.md":      "text/markdown; charset=utf-8",
		"a.json":    "application/json; charset=utf-8",
		"a.unknown": "application/octet-stream",
	}
	for key, want := range tests {
		if got := contentType(key); got != want {
			t.Errorf("contentType(%q) = %q, want %q", key, got, want)
		}
	}
}

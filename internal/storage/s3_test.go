package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
)

func testS3Config(endpoint string) S3Config {
	return S3Config{
		Bucket:          "test-bucket",
		Region:          "us-east-1",
		Endpoint:        endpoint,
		AccessKeyID:     "test-access-key",
		SecretAccessKey: "test-secret-key",
	}
}

func TestNewS3Store(t *testing.T) {
	store, err := NewS3Store(filepath.Join(t.TempDir(), "chunks"), testS3Config("http://localhost:4566"))
	if err != nil {
		t.Fatalf("NewS3Store() error = %v", err)
	}

	if store.bucket != "test-bucket" {
		t.Errorf("bucket = %v, want test-bucket", store.bucket)
	}
	if store.region != "us-east-1" {
		t.Errorf("region = %v, want us-east-1", store.region)
	}
}

func TestS3Store_InheritsFSStore(t *testing.T) {
	store, err := NewS3Store(filepath.Join(t.TempDir(), "chunks"), testS3Config("http://localhost:4566"))
	if err != nil {
		t.Fatalf("NewS3Store() error = %v", err)
	}

	// Chunk artifacts go through the embedded FSStore.
	if err := store.SaveTranscript(0, "first chunk"); err != nil {
		t.Fatalf("SaveTranscript() error = %v", err)
	}
	if !store.TranscriptExists(0) {
		t.Error("TranscriptExists(0) = false after save")
	}

	text, err := store.LoadTranscript(0)
	if err != nil {
		t.Fatalf("LoadTranscript() error = %v", err)
	}
	if text != "first chunk" {
		t.Errorf("got %q, want %q", text, "first chunk")
	}
}

func TestS3Store_Publish_MockServer(t *testing.T) {
	// Create a mock S3 server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT method, got %s", r.Method)
		}

		if !strings.Contains(r.URL.Path, "/transcript.md") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("failed to read body: %v", err)
		}
		if string(body) != "# Merged transcript" {
			t.Errorf("unexpected body: %s", string(body))
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store, err := NewS3Store(filepath.Join(t.TempDir(), "chunks"), testS3Config(server.URL))
	if err != nil {
		t.Fatalf("NewS3Store() error = %v", err)
	}

	url, err := store.Publish(context.Background(), "transcript.md", bytes.NewReader([]byte("# Merged transcript")))
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	expectedURL := "https://test-bucket.s3.us-east-1.amazonaws.com/transcript.md"
	if url != expectedURL {
		t.Errorf("url = %v, want %v", url, expectedURL)
	}
}

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ktgames/mining/pkg/core"
)

func TestNew(t *testing.T) {
	c := New("http://localhost:5000", "secret123")

	if c == nil {
		t.Fatal("New returned nil")
	}
	if c.baseURL != "http://localhost:5000" {
		t.Errorf("expected baseURL=http://localhost:5000, got %s", c.baseURL)
	}
	if c.apiKey != "secret123" {
		t.Errorf("expected apiKey=secret123, got %s", c.apiKey)
	}
	if c.httpClient == nil {
		t.Error("httpClient is nil")
	}
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	c := New("http://localhost:5000/", "secret")
	if c.baseURL != "http://localhost:5000" {
		t.Errorf("expected trailing slash trimmed, got %s", c.baseURL)
	}
}

func TestHealthcheck_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthcheck" {
			t.Errorf("expected path /healthcheck, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := New(server.URL, "")
	if err := c.Healthcheck(context.Background()); err != nil {
		t.Errorf("Healthcheck failed: %v", err)
	}
}

func TestHealthcheck_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := New(server.URL, "")
	if err := c.Healthcheck(context.Background()); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestHealthcheck_Cancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New(server.URL, "").Healthcheck(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestUpload_Success(t *testing.T) {
	received := map[string]string{}
	var receivedFileContent []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != UploadPath {
			t.Errorf("expected path %s, got %s", UploadPath, r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}

		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("failed to parse multipart form: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for _, key := range []string{"secret", "filename", "worldName", "sessionUuid", "sessionDuration", "tag"} {
			received[key] = r.FormValue(key)
		}

		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("failed to get file: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		receivedFileContent, _ = io.ReadAll(file)

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	testFile := filepath.Join(t.TempDir(), "quarry_20240101_000000.json.gz")
	if err := os.WriteFile(testFile, []byte("test content"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	c := New(server.URL, "mysecret")
	meta := core.UploadMetadata{
		WorldName:       "quarry",
		SessionUUID:     "c0ffee",
		SessionDuration: 3600.5,
		Tag:             "Session",
	}

	if err := c.Upload(context.Background(), testFile, meta); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	want := map[string]string{
		"secret":          "mysecret",
		"filename":        "quarry_20240101_000000.json.gz",
		"worldName":       "quarry",
		"sessionUuid":     "c0ffee",
		"sessionDuration": "3600.500000",
		"tag":             "Session",
	}
	for key, v := range want {
		if received[key] != v {
			t.Errorf("expected %s=%s, got %s", key, v, received[key])
		}
	}
	if string(receivedFileContent) != "test content" {
		t.Errorf("expected file content 'test content', got '%s'", string(receivedFileContent))
	}
}

func TestUpload_FileNotFound(t *testing.T) {
	c := New("http://localhost:5000", "secret")
	if err := c.Upload(context.Background(), "/nonexistent/file.json.gz", core.UploadMetadata{}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestUpload_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	testFile := filepath.Join(t.TempDir(), "test.json.gz")
	if err := os.WriteFile(testFile, []byte("content"), 0644); err != nil {
		t.Fatal(err)
	}

	c := New(server.URL, "wrong-secret")
	if err := c.Upload(context.Background(), testFile, core.UploadMetadata{}); err == nil {
		t.Error("expected error for 403 response")
	}
}

func writeReport(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "report.json.gz")
	if err := os.WriteFile(path, []byte("content"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestUpload_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := New(server.URL, "s")
	c.backoff = time.Millisecond
	if err := c.Upload(context.Background(), writeReport(t), core.UploadMetadata{}); err != nil {
		t.Fatalf("expected the third attempt to succeed, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestUpload_GivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := New(server.URL, "s")
	c.backoff = time.Millisecond
	err := c.Upload(context.Background(), writeReport(t), core.UploadMetadata{})

	var status *StatusError
	if !errors.As(err, &status) || status.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected StatusError 503, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestUpload_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	c := New(server.URL, "wrong")
	c.backoff = time.Millisecond
	if err := c.Upload(context.Background(), writeReport(t), core.UploadMetadata{}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single attempt, got %d", calls.Load())
	}
}
